//go:build !(darwin || freebsd || linux || windows)

package libsasl2

import "github.com/smnsjas/go-sasl2/native"

var (
	libraryNames []string
	searchDirs   []string
)

// Library is unavailable on this platform.
type Library struct {
	path string
}

func load(string) (*Library, error) {
	return nil, ErrNotFound
}

func (l *Library) ClientInit(uintptr) native.Status { return native.StatusNotInit }

func (l *Library) ClientNew(_, _, _, _, _ uintptr, _ uint32, _ uintptr) native.Status {
	return native.StatusNotInit
}

func (l *Library) Dispose(uintptr) {}

func (l *Library) ListMech(_, _, _, _, _, _, _, _ uintptr) native.Status {
	return native.StatusNotInit
}

func (l *Library) ClientStart(_, _, _, _, _, _ uintptr) native.Status {
	return native.StatusNotInit
}

func (l *Library) ClientStep(_, _ uintptr, _ uint32, _, _, _ uintptr) native.Status {
	return native.StatusNotInit
}

func (l *Library) ErrDetail(uintptr) uintptr { return 0 }

func (l *Library) ErrString(native.Status) uintptr { return 0 }

func (l *Library) NewCallback(any) uintptr { return 0 }
