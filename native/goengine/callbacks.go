package goengine

import (
	"github.com/smnsjas/go-sasl2/native"
)

// lookup finds the entry for id, first in the connection table and then in
// the global table. Tables are read from native memory on every call.
func (e *Engine) lookup(c *conn, id native.CallbackID) (native.Entry, bool) {
	if c != nil {
		if entry, ok := e.find(c.callbacks, id); ok {
			return entry, true
		}
	}
	e.mu.Lock()
	globals := e.globals
	e.mu.Unlock()
	return e.find(globals, id)
}

func (e *Engine) find(table uintptr, id native.CallbackID) (native.Entry, bool) {
	entries, _ := e.layout.DecodeAt(table)
	for _, entry := range entries {
		if entry.ID == id && entry.Proc != 0 {
			return entry, true
		}
	}
	return native.Entry{}, false
}

// log delivers msg to the registered log callback, if any.
func (e *Engine) log(c *conn, level native.LogLevel, msg string) {
	entry, ok := e.lookup(c, native.CallbackLog)
	if !ok {
		return
	}
	fn, ok := e.symbol(entry.Proc).(native.LogFunc)
	if !ok {
		return
	}
	b := native.CString(msg)
	defer b.Free()
	fn(entry.Context, uintptr(level), b.Addr())
}

// getPath asks the getpath callback for the plugin directory.
func (e *Engine) getPath() (string, bool) {
	entry, ok := e.lookup(nil, native.CallbackGetPath)
	if !ok {
		return "", false
	}
	fn, ok := e.symbol(entry.Proc).(native.GetPathFunc)
	if !ok {
		return "", false
	}
	cell := native.NewCell()
	defer cell.Free()
	if native.Status(int32(fn(entry.Context, cell.Addr()))) != native.StatusOK {
		return "", false
	}
	p := native.ReadUintptr(cell.Addr())
	if p == 0 {
		return "", false
	}
	return native.GoString(p), true
}

// session gives a mechanism access to the credentials of one connection.
type session struct {
	e *Engine
	c *conn
}

func (s *session) has(id native.CallbackID) bool {
	_, ok := s.e.lookup(s.c, id)
	return ok
}

// simple fetches a user or authname value. A missing callback or a NULL
// result yields ok == false.
func (s *session) simple(id native.CallbackID) (string, bool, error) {
	entry, ok := s.e.lookup(s.c, id)
	if !ok {
		return "", false, nil
	}
	fn, ok := s.e.symbol(entry.Proc).(native.GetSimpleFunc)
	if !ok {
		return "", false, newStatusError(native.StatusBadParam, "%s callback has the wrong signature", id)
	}
	result := native.NewCell()
	length := native.NewCell()
	defer result.Free()
	defer length.Free()

	status := native.Status(int32(fn(entry.Context, uintptr(id), result.Addr(), length.Addr())))
	if status != native.StatusOK {
		return "", false, newStatusError(status, "%s callback failed", id)
	}
	p := native.ReadUintptr(result.Addr())
	if p == 0 {
		return "", false, nil
	}
	if n := native.ReadUint32(length.Addr()); n > 0 {
		return string(native.GoBytes(p, int(n))), true, nil
	}
	return native.GoString(p), true, nil
}

// authname returns the authentication identity, which is required.
func (s *session) authname() (string, error) {
	v, ok, err := s.simple(native.CallbackAuthName)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", newStatusError(native.StatusBadParam, "no authentication name")
	}
	return v, nil
}

// user returns the authorization identity, or "" when none is supplied.
func (s *session) user() (string, error) {
	v, _, err := s.simple(native.CallbackUser)
	return v, err
}

// password fetches the secret through the getsecret callback. The caller
// clears the returned slice when done.
func (s *session) password() ([]byte, error) {
	entry, ok := s.e.lookup(s.c, native.CallbackPass)
	if !ok {
		return nil, newStatusError(native.StatusBadParam, "no password callback")
	}
	fn, ok := s.e.symbol(entry.Proc).(native.GetSecretFunc)
	if !ok {
		return nil, newStatusError(native.StatusBadParam, "%s callback has the wrong signature", native.CallbackPass)
	}
	cell := native.NewCell()
	defer cell.Free()

	status := native.Status(int32(fn(s.c.addr, entry.Context, uintptr(native.CallbackPass), cell.Addr())))
	if status != native.StatusOK {
		return nil, newStatusError(status, "password callback failed")
	}
	p := native.ReadUintptr(cell.Addr())
	if p == 0 {
		return nil, newStatusError(native.StatusBadParam, "no password")
	}
	return s.e.layout.DecodeSecretAt(p), nil
}

func (s *session) debug(msg string) {
	s.e.log(s.c, native.LogDebug, msg)
}
