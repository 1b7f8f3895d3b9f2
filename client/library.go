package client

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/smnsjas/go-sasl2/native"
	"github.com/smnsjas/go-sasl2/native/goengine"
	"github.com/smnsjas/go-sasl2/native/libsasl2"
)

var (
	initOnce sync.Once
	instance *Library
	initErr  error
)

// Init initializes the engine for the process. Only the first call does any
// work; later calls return the same Library, or the same error, and ignore
// cfg.
func Init(cfg Config) (*Library, error) {
	initOnce.Do(func() {
		instance, initErr = newLibrary(cfg)
	})
	return instance, initErr
}

// Instance returns the process Library, initializing it with DefaultConfig
// if Init has not been called.
func Instance() (*Library, error) {
	return Init(DefaultConfig())
}

// Library is the initialized engine and the factory for Clients.
type Library struct {
	cfg      Config
	engine   native.Engine
	layout   native.Layout
	logger   *slog.Logger
	registry *registry

	// Function pointers shared by every callback table.
	logProc    uintptr
	pathProc   uintptr
	simpleProc uintptr
	secretProc uintptr

	// Process-lifetime memory referenced by the global table.
	global    *bridge
	globals   *native.Table
	pathBlock *native.Block
}

// openEngine prefers libsasl2 and falls back to the pure Go engine.
func openEngine(logger *slog.Logger) native.Engine {
	lib, err := libsasl2.Open()
	if err == nil {
		logger.Debug("using libsasl2", "path", lib.Path())
		return lib
	}
	logger.Debug("libsasl2 unavailable, using go engine", "error", err)
	return goengine.New()
}

// newLibrary builds and initializes a Library. Tests call it directly to get
// an engine per test; production code goes through Init.
func newLibrary(cfg Config) (*Library, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &EngineInitError{Op: "config", Err: fmt.Errorf("invalid config: %w", err)}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if cfg.NeedWSAStartup {
		if err := native.SocketStartup(); err != nil {
			return nil, &EngineInitError{Op: "WSAStartup", Err: err}
		}
	}

	engine := cfg.Engine
	if engine == nil {
		engine = openEngine(logger)
	}

	l := &Library{
		cfg:      cfg,
		engine:   engine,
		layout:   native.HostLayout,
		logger:   logger.With("engine", engine.Name()),
		registry: newRegistry(),
	}
	if err := l.layout.Validate(); err != nil {
		return nil, &EngineInitError{Op: "layout", Err: err}
	}

	l.logProc = engine.NewCallback(native.LogFunc(l.logTrampoline))
	l.pathProc = engine.NewCallback(native.GetPathFunc(l.pathTrampoline))
	l.simpleProc = engine.NewCallback(native.GetSimpleFunc(l.simpleTrampoline))
	l.secretProc = engine.NewCallback(native.GetSecretFunc(l.secretTrampoline))

	l.global = &bridge{lib: l, log: cfg.Log, values: make(valueSlots)}
	ctx := l.registry.add(l.global)

	var entries []native.Entry
	if native.NeedsPluginPath || cfg.PluginPath != "" {
		path := pluginPath(cfg.PluginPath)
		l.pathBlock = native.CString(path)
		entries = append(entries, native.Entry{ID: native.CallbackGetPath, Proc: l.pathProc, Context: ctx})
		l.logger.Debug("registering plugin path", "path", path)
	}
	if cfg.Log != nil {
		entries = append(entries, native.Entry{ID: native.CallbackLog, Proc: l.logProc, Context: ctx})
	}
	l.globals = native.NewTable(l.layout, entries)

	if status := engine.ClientInit(l.globals.Addr()); status != native.StatusOK {
		l.globals.Free()
		l.pathBlock.Free()
		l.registry.remove(ctx)
		return nil, &EngineInitError{Op: "sasl_client_init", Status: status}
	}
	l.logger.Debug("sasl engine initialized")
	return l, nil
}

// Engine returns the native engine in use.
func (l *Library) Engine() native.Engine {
	return l.engine
}

// fault delivers a provider failure to the configured hook.
func (l *Library) fault(err error, loc FaultLocation, source string) {
	l.logger.Warn("sasl callback provider failed",
		"location", loc.String(),
		"source", source,
		"error", err)
	hook := l.cfg.OnFault
	if hook == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	hook(err, loc, source)
}
