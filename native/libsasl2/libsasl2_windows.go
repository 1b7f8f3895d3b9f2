//go:build windows

package libsasl2

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/smnsjas/go-sasl2/native"
	"golang.org/x/sys/windows"
)

var libraryNames = []string{"libsasl2.dll", "libsasl.dll", "sasl2.dll"}

var searchDirs = windowsSearchDirs()

func windowsSearchDirs() []string {
	dirs := []string{"."}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	return dirs
}

// Library is a loaded libsasl2 DLL.
type Library struct {
	path string
	dll  *windows.DLL

	clientInit  *windows.Proc
	clientNew   *windows.Proc
	dispose     *windows.Proc
	listMech    *windows.Proc
	clientStart *windows.Proc
	clientStep  *windows.Proc
	errDetail   *windows.Proc
	errString   *windows.Proc
}

// load opens the DLL and resolves the entry points.
func load(path string) (*Library, error) {
	dll, err := windows.LoadDLL(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	l := &Library{path: path, dll: dll}
	procs := []struct {
		dst  **windows.Proc
		name string
	}{
		{&l.clientInit, "sasl_client_init"},
		{&l.clientNew, "sasl_client_new"},
		{&l.dispose, "sasl_dispose"},
		{&l.listMech, "sasl_listmech"},
		{&l.clientStart, "sasl_client_start"},
		{&l.clientStep, "sasl_client_step"},
		{&l.errDetail, "sasl_errdetail"},
		{&l.errString, "sasl_errstring"},
	}
	for _, p := range procs {
		proc, err := dll.FindProc(p.name)
		if err != nil {
			_ = dll.Release()
			return nil, fmt.Errorf("find %s: %w", p.name, err)
		}
		*p.dst = proc
	}
	return l, nil
}

func status(r1 uintptr) native.Status {
	return native.Status(int32(uint32(r1)))
}

// ClientInit implements native.Engine.
func (l *Library) ClientInit(callbacks uintptr) native.Status {
	r1, _, _ := l.clientInit.Call(callbacks)
	return status(r1)
}

// ClientNew implements native.Engine.
func (l *Library) ClientNew(service, serverFQDN, ipLocalPort, ipRemotePort, callbacks uintptr, flags uint32, pconn uintptr) native.Status {
	r1, _, _ := l.clientNew.Call(service, serverFQDN, ipLocalPort, ipRemotePort, callbacks, uintptr(flags), pconn)
	return status(r1)
}

// Dispose implements native.Engine.
func (l *Library) Dispose(pconn uintptr) {
	_, _, _ = l.dispose.Call(pconn)
}

// ListMech implements native.Engine.
func (l *Library) ListMech(conn, user, prefix, sep, suffix, result, plen, pcount uintptr) native.Status {
	r1, _, _ := l.listMech.Call(conn, user, prefix, sep, suffix, result, plen, pcount)
	return status(r1)
}

// ClientStart implements native.Engine.
func (l *Library) ClientStart(conn, mechlist, promptNeed, clientOut, clientOutLen, mech uintptr) native.Status {
	r1, _, _ := l.clientStart.Call(conn, mechlist, promptNeed, clientOut, clientOutLen, mech)
	return status(r1)
}

// ClientStep implements native.Engine.
func (l *Library) ClientStep(conn, serverIn uintptr, serverInLen uint32, promptNeed, clientOut, clientOutLen uintptr) native.Status {
	r1, _, _ := l.clientStep.Call(conn, serverIn, uintptr(serverInLen), promptNeed, clientOut, clientOutLen)
	return status(r1)
}

// ErrDetail implements native.Engine.
func (l *Library) ErrDetail(conn uintptr) uintptr {
	r1, _, _ := l.errDetail.Call(conn)
	return r1
}

// ErrString implements native.Engine.
func (l *Library) ErrString(s native.Status) uintptr {
	r1, _, _ := l.errString.Call(uintptr(int32(s)), 0, 0)
	return r1
}

// NewCallback implements native.Engine. libsasl2 callbacks use the cdecl
// calling convention.
func (l *Library) NewCallback(fn any) uintptr {
	return windows.NewCallbackCDecl(fn)
}
