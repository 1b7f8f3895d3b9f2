//go:build darwin || freebsd || linux

package libsasl2

import (
	"fmt"
	"runtime"

	"github.com/ebitengine/purego"
	"github.com/smnsjas/go-sasl2/native"
)

var libraryNames = libraryNamesFor(runtime.GOOS)

func libraryNamesFor(goos string) []string {
	if goos == "darwin" {
		return []string{"libsasl2.2.dylib", "libsasl2.dylib"}
	}
	return []string{"libsasl2.so.3", "libsasl2.so.2", "libsasl2.so"}
}

var searchDirs = []string{
	".",
	"/usr/local/lib",
	"/usr/lib",
	"/usr/lib64",
	"/usr/lib/x86_64-linux-gnu",
	"/usr/lib/aarch64-linux-gnu",
	"/opt/homebrew/opt/cyrus-sasl/lib",
	"/usr/local/opt/cyrus-sasl/lib",
}

// Library is a loaded libsasl2. FFI signatures use uintptr for every pointer.
type Library struct {
	path   string
	handle uintptr

	clientInit  func(callbacks uintptr) int32
	clientNew   func(service, serverFQDN, ipLocalPort, ipRemotePort, promptSupp uintptr, flags uint32, pconn uintptr) int32
	dispose     func(pconn uintptr)
	listMech    func(conn, user, prefix, sep, suffix, result, plen, pcount uintptr) int32
	clientStart func(conn, mechlist, promptNeed, clientOut, clientOutLen, mech uintptr) int32
	clientStep  func(conn, serverIn uintptr, serverInLen uint32, promptNeed, clientOut, clientOutLen uintptr) int32
	errDetail   func(conn uintptr) uintptr
	errString   func(status int32, langList, outLang uintptr) uintptr
}

// load opens the shared library and registers the entry points.
func load(path string) (*Library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", path, err)
	}

	l := &Library{path: path, handle: handle}
	purego.RegisterLibFunc(&l.clientInit, handle, "sasl_client_init")
	purego.RegisterLibFunc(&l.clientNew, handle, "sasl_client_new")
	purego.RegisterLibFunc(&l.dispose, handle, "sasl_dispose")
	purego.RegisterLibFunc(&l.listMech, handle, "sasl_listmech")
	purego.RegisterLibFunc(&l.clientStart, handle, "sasl_client_start")
	purego.RegisterLibFunc(&l.clientStep, handle, "sasl_client_step")
	purego.RegisterLibFunc(&l.errDetail, handle, "sasl_errdetail")
	purego.RegisterLibFunc(&l.errString, handle, "sasl_errstring")
	return l, nil
}

// ClientInit implements native.Engine.
func (l *Library) ClientInit(callbacks uintptr) native.Status {
	return native.Status(l.clientInit(callbacks))
}

// ClientNew implements native.Engine.
func (l *Library) ClientNew(service, serverFQDN, ipLocalPort, ipRemotePort, callbacks uintptr, flags uint32, pconn uintptr) native.Status {
	return native.Status(l.clientNew(service, serverFQDN, ipLocalPort, ipRemotePort, callbacks, flags, pconn))
}

// Dispose implements native.Engine.
func (l *Library) Dispose(pconn uintptr) {
	l.dispose(pconn)
}

// ListMech implements native.Engine.
func (l *Library) ListMech(conn, user, prefix, sep, suffix, result, plen, pcount uintptr) native.Status {
	return native.Status(l.listMech(conn, user, prefix, sep, suffix, result, plen, pcount))
}

// ClientStart implements native.Engine.
func (l *Library) ClientStart(conn, mechlist, promptNeed, clientOut, clientOutLen, mech uintptr) native.Status {
	return native.Status(l.clientStart(conn, mechlist, promptNeed, clientOut, clientOutLen, mech))
}

// ClientStep implements native.Engine.
func (l *Library) ClientStep(conn, serverIn uintptr, serverInLen uint32, promptNeed, clientOut, clientOutLen uintptr) native.Status {
	return native.Status(l.clientStep(conn, serverIn, serverInLen, promptNeed, clientOut, clientOutLen))
}

// ErrDetail implements native.Engine.
func (l *Library) ErrDetail(conn uintptr) uintptr {
	return l.errDetail(conn)
}

// ErrString implements native.Engine.
func (l *Library) ErrString(status native.Status) uintptr {
	return l.errString(int32(status), 0, 0)
}

// NewCallback implements native.Engine using purego's C-callable trampolines.
// purego never frees callbacks and caps their number, so callers must create
// them once per process.
func (l *Library) NewCallback(fn any) uintptr {
	return purego.NewCallback(fn)
}
