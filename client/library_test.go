package client

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-sasl2/native"
	"github.com/smnsjas/go-sasl2/native/goengine"
)

func TestInit_Once(t *testing.T) {
	engine := goengine.New()
	first, err := Init(Config{Engine: engine})
	require.NoError(t, err)

	second, err := Init(Config{Engine: goengine.New()})
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Same(t, engine, first.Engine())

	third, err := Instance()
	require.NoError(t, err)
	assert.Same(t, first, third)
}

func TestNewLibrary_InitFailure(t *testing.T) {
	_, err := newLibrary(Config{Engine: &failingInitEngine{Engine: goengine.New(), status: native.StatusBadVers}})
	require.Error(t, err)

	var initErr *EngineInitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "sasl_client_init", initErr.Op)
	assert.Equal(t, native.StatusBadVers, initErr.Status)

	status, ok := StatusOf(err)
	assert.True(t, ok)
	assert.Equal(t, native.StatusBadVers, status)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"absolute plugin path", Config{PluginPath: "/usr/lib/sasl2"}, false},
		{"relative plugin path", Config{PluginPath: "plugins"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := newLibrary(Config{Engine: goengine.New(), PluginPath: "plugins"})
	var initErr *EngineInitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, "config", initErr.Op)
}

func TestLibrary_DebugLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	lib, _ := newTestLibrary(t, Config{Logger: logger})

	c, err := lib.NewClient(plainParams())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	out := buf.String()
	assert.Contains(t, out, "sasl engine initialized")
	assert.Contains(t, out, "engine=go")
	assert.Contains(t, out, "sasl client created")
	assert.NotContains(t, out, "secret")
}

func TestErrors(t *testing.T) {
	callErr := &EngineCallError{Op: "sasl_client_step", Status: native.StatusBadAuth, Detail: "SASL(-13): authentication failure"}
	assert.Equal(t, "sasl_client_step: SASL_BADAUTH: SASL(-13): authentication failure", callErr.Error())
	assert.True(t, callErr.IsAuthFailure())
	assert.False(t, callErr.IsNoMechanism())
	assert.True(t, errors.Is(callErr, ErrNegotiationFailed))

	createErr := &EngineCreateError{Status: native.StatusBadParam}
	assert.Equal(t, "sasl client create: SASL_BADPARAM", createErr.Error())

	cause := errors.New("WSAStartup failed")
	initErr := &EngineInitError{Op: "WSAStartup", Err: cause}
	assert.ErrorIs(t, initErr, cause)
	_, ok := StatusOf(initErr)
	assert.False(t, ok)

	_, ok = StatusOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestParams_LogValueDoesNotCallProviders(t *testing.T) {
	p := Params{
		Service:    "imap",
		ServerFQDN: "mail.example.com",
		Authname:   func() (string, error) { t.Fatal("provider called"); return "", nil },
		Pass:       func() (string, error) { t.Fatal("provider called"); return "", nil },
	}
	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("params", "params", p)
	assert.Contains(t, buf.String(), `"service":"imap"`)
	assert.Contains(t, buf.String(), `"has_pass":true`)
	assert.Equal(t, "imap/mail.example.com", p.String())
	assert.Equal(t, "imap", Params{Service: "imap"}.String())
}

func TestIPPort(t *testing.T) {
	assert.Equal(t, "127.0.0.1;143", IPPort(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 143}))
	assert.Equal(t, "::1;993", IPPort(&net.TCPAddr{IP: net.IPv6loopback, Port: 993}))
	assert.Equal(t, "", IPPort(nil))
}

func TestSlogSink(t *testing.T) {
	tests := []struct {
		level native.LogLevel
		want  slog.Level
	}{
		{native.LogErr, slog.LevelError},
		{native.LogFail, slog.LevelWarn},
		{native.LogWarn, slog.LevelWarn},
		{native.LogNote, slog.LevelInfo},
		{native.LogDebug, slog.LevelDebug},
		{native.LogTrace, slog.LevelDebug},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slogLevel(tt.level), "level %d", tt.level)
	}

	var buf bytes.Buffer
	sink := SlogSink(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	sink(native.LogNote, "hello")
	assert.Contains(t, buf.String(), "level=INFO")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "sasl_level=4")
}

func TestFaultLocation_String(t *testing.T) {
	assert.Equal(t, "LogCallback", LocationLog.String())
	assert.Equal(t, "GetsimpleCallback", LocationSimple.String())
	assert.Equal(t, "GetsecretCallback", LocationSecret.String())
	assert.Equal(t, "FaultLocation(9)", FaultLocation(9).String())
}

func TestSecurityLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewSecurityLogger(slog.New(slog.NewJSONHandler(&buf, nil)), "imap/mail")
	l.setMechanism("PLAIN")
	l.LogAuthentication(SubtypeAuthFailure, OutcomeFailure, SeverityWarning, map[string]any{"status": "SASL(-13)"})

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"mechanism":"PLAIN"`)
	assert.Contains(t, out, `"action":"authentication.failure"`)
	assert.Contains(t, out, l.CorrelationID())

	// Disabled loggers are no-ops.
	NewSecurityLogger(nil, "").LogSession(SubtypeSessionOpen, OutcomeSuccess, SeverityInfo, nil)
	var nilLogger *SecurityLogger
	nilLogger.LogSession(SubtypeSessionOpen, OutcomeSuccess, SeverityInfo, nil)
}
