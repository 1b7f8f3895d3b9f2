package client

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-sasl2/native"
	"github.com/smnsjas/go-sasl2/native/goengine"
)

// failingInitEngine is an engine whose initialization always fails.
type failingInitEngine struct {
	*goengine.Engine
	status native.Status
}

func (e *failingInitEngine) ClientInit(uintptr) native.Status {
	return e.status
}

// countingEngine counts dispose calls on top of the go engine.
type countingEngine struct {
	*goengine.Engine

	mu       sync.Mutex
	disposed int
}

func (e *countingEngine) Dispose(pconn uintptr) {
	e.mu.Lock()
	if native.ReadUintptr(pconn) != 0 {
		e.disposed++
	}
	e.mu.Unlock()
	e.Engine.Dispose(pconn)
}

func (e *countingEngine) disposals() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

// faultRecorder collects FaultFunc notifications.
type faultRecorder struct {
	mu     sync.Mutex
	faults []recordedFault
}

type recordedFault struct {
	err      error
	location FaultLocation
	source   string
}

func (r *faultRecorder) hook(err error, loc FaultLocation, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, recordedFault{err, loc, source})
}

func (r *faultRecorder) all() []recordedFault {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedFault(nil), r.faults...)
}

// logRecorder collects engine log messages.
type logRecorder struct {
	mu       sync.Mutex
	levels   []native.LogLevel
	messages []string
}

func (r *logRecorder) sink(level native.LogLevel, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, level)
	r.messages = append(r.messages, msg)
}

func (r *logRecorder) snapshot() ([]native.LogLevel, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]native.LogLevel(nil), r.levels...), append([]string(nil), r.messages...)
}

// newTestLibrary initializes a Library over a fresh go engine.
func newTestLibrary(t *testing.T, cfg Config, opts ...goengine.Option) (*Library, *goengine.Engine) {
	t.Helper()
	engine := goengine.New(opts...)
	if cfg.Engine == nil {
		cfg.Engine = engine
	}
	lib, err := newLibrary(cfg)
	require.NoError(t, err)
	return lib, engine
}

func plainParams() Params {
	return Params{
		Service:    "imap",
		ServerFQDN: "mail.example.com",
		Authname:   Static("alice"),
		Pass:       Static("secret"),
	}
}
