// Package libsasl2 implements native.Engine on top of the Cyrus SASL shared
// library, loaded at runtime without cgo.
//
// The library is located through the SASL2_LIB environment variable first,
// then through a list of platform-specific names and directories.
package libsasl2

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/smnsjas/go-sasl2/native"
)

// EnvLibraryPath overrides the library search.
const EnvLibraryPath = "SASL2_LIB"

// ErrNotFound is returned when no libsasl2 shared library can be located.
var ErrNotFound = errors.New("libsasl2: shared library not found")

var (
	loadOnce sync.Once
	loaded   *Library
	loadErr  error
)

// Open loads libsasl2 once per process and returns the engine bound to it.
func Open() (*Library, error) {
	loadOnce.Do(func() {
		path, err := findLibrary()
		if err != nil {
			loadErr = err
			return
		}
		loaded, loadErr = load(path)
	})
	return loaded, loadErr
}

// Available reports whether the shared library can be located.
func Available() bool {
	if loaded != nil {
		return true
	}
	_, err := findLibrary()
	return err == nil
}

// findLibrary locates the libsasl2 shared library.
func findLibrary() (string, error) {
	if path := os.Getenv(EnvLibraryPath); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, dir := range searchDirs {
		for _, name := range libraryNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				abs, _ := filepath.Abs(path)
				return abs, nil
			}
		}
	}

	return "", fmt.Errorf("%w: set %s or install one of %v", ErrNotFound, EnvLibraryPath, libraryNames)
}

// Name implements native.Engine.
func (l *Library) Name() string {
	return "libsasl2"
}

// Path returns the file the library was loaded from.
func (l *Library) Path() string {
	return l.path
}

var _ native.Engine = (*Library)(nil)
