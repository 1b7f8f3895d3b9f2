package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/smnsjas/go-sasl2/native"
)

// registry maps the opaque context pointers stored in callback tables to
// bridges. Function pointers are created once per Library, so the context is
// the only per-connection state the engine carries.
type registry struct {
	mu      sync.Mutex
	next    atomic.Uint64
	bridges map[uintptr]*bridge
}

func newRegistry() *registry {
	return &registry{bridges: make(map[uintptr]*bridge)}
}

// add registers b and returns its non-zero context handle.
func (r *registry) add(b *bridge) uintptr {
	h := uintptr(r.next.Add(1))
	r.mu.Lock()
	r.bridges[h] = b
	r.mu.Unlock()
	return h
}

func (r *registry) get(h uintptr) *bridge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bridges[h]
}

func (r *registry) remove(h uintptr) {
	r.mu.Lock()
	delete(r.bridges, h)
	r.mu.Unlock()
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bridges)
}

// bridge adapts providers to the native callback signatures for one
// connection, or for the global table.
type bridge struct {
	lib *Library

	authname Provider
	user     Provider
	pass     Provider
	log      LogFunc

	mu     sync.Mutex
	values valueSlots
	secret secretSlot
}

func newBridge(lib *Library, p Params) *bridge {
	return &bridge{
		lib:      lib,
		authname: p.Authname,
		user:     p.User,
		pass:     p.Pass,
		values:   make(valueSlots),
	}
}

// release zeroes every buffer handed to the engine and drops the providers.
func (b *bridge) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values.clear()
	b.secret.replace(nil)
	b.authname, b.user, b.pass, b.log = nil, nil, nil, nil
}

// invoke calls p, converting a panic into an error.
func invoke(p Provider) (v string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	return p()
}

// value calls p and reports any failure other than ErrNoValue.
func (b *bridge) value(p Provider, loc FaultLocation, source string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, err := invoke(p)
	if err != nil {
		if !errors.Is(err, ErrNoValue) {
			b.lib.fault(err, loc, source)
		}
		return "", false
	}
	return v, true
}

// getSimple answers SASL_CB_USER and SASL_CB_AUTHNAME.
func (b *bridge) getSimple(id native.CallbackID, result, length uintptr) native.Status {
	var (
		p      Provider
		source string
	)
	b.mu.Lock()
	defer b.mu.Unlock()
	switch id {
	case native.CallbackUser:
		p, source = b.user, "user"
	case native.CallbackAuthName:
		p, source = b.authname, "authname"
	default:
		return native.StatusBadParam
	}
	if result == 0 {
		return native.StatusBadParam
	}

	v, ok := b.value(p, LocationSimple, source)
	if !ok {
		b.values.replace(id, nil)
		native.WriteUintptr(result, 0)
		native.WriteUint32(length, 0)
		return native.StatusOK
	}
	block := native.CString(v)
	b.values.replace(id, block)
	native.WriteUintptr(result, block.Addr())
	native.WriteUint32(length, uint32(len(v)))
	return native.StatusOK
}

// getSecret answers SASL_CB_PASS. The previous buffer is released before
// anything else, including the id check.
func (b *bridge) getSecret(id native.CallbackID, psecret uintptr) native.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.secret.replace(nil)
	if id != native.CallbackPass || psecret == 0 {
		return native.StatusBadParam
	}

	v, ok := b.value(b.pass, LocationSecret, "pass")
	if !ok {
		native.WriteUintptr(psecret, 0)
		return native.StatusOK
	}
	plain := []byte(v)
	block := b.lib.layout.EncodeSecret(plain)
	clear(plain)
	b.secret.replace(block)
	native.WriteUintptr(psecret, block.Addr())
	return native.StatusOK
}

// logMessage forwards an engine log message to the sink.
func (b *bridge) logMessage(level native.LogLevel, message string) {
	sink := b.log
	if sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.lib.fault(fmt.Errorf("log sink panic: %v", r), LocationLog, "log")
		}
	}()
	sink(level, message)
}

// pluginPath is the directory reported through SASL_CB_GETPATH.
func pluginPath(configured string) string {
	if configured != "" {
		return configured
	}
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// Trampolines. Each is registered once per Library and dispatches on the
// context handle. None may panic into the engine.

func (l *Library) logTrampoline(context, level, message uintptr) (ret uintptr) {
	defer l.guard(&ret)
	if b := l.registry.get(context); b != nil {
		b.logMessage(native.LogLevel(int32(level)), native.GoString(message))
	}
	return statusRet(native.StatusOK)
}

func (l *Library) pathTrampoline(_, path uintptr) (ret uintptr) {
	defer l.guard(&ret)
	if path == 0 {
		return statusRet(native.StatusBadParam)
	}
	native.WriteUintptr(path, l.pathBlock.Addr())
	return statusRet(native.StatusOK)
}

func (l *Library) simpleTrampoline(context, id, result, length uintptr) (ret uintptr) {
	defer l.guard(&ret)
	b := l.registry.get(context)
	if b == nil {
		return statusRet(native.StatusBadParam)
	}
	return statusRet(b.getSimple(native.CallbackID(id), result, length))
}

func (l *Library) secretTrampoline(_, context, id, psecret uintptr) (ret uintptr) {
	defer l.guard(&ret)
	b := l.registry.get(context)
	if b == nil {
		return statusRet(native.StatusBadParam)
	}
	return statusRet(b.getSecret(native.CallbackID(id), psecret))
}

// guard turns a panic escaping a trampoline into SASL_FAIL.
func (l *Library) guard(ret *uintptr) {
	if r := recover(); r != nil {
		l.logger.Error("panic in sasl callback", "panic", r)
		*ret = statusRet(native.StatusFail)
	}
}

func statusRet(s native.Status) uintptr {
	return uintptr(s)
}
