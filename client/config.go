package client

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/smnsjas/go-sasl2/native"
)

// LogFunc receives messages logged by the engine.
type LogFunc func(level native.LogLevel, message string)

// FaultLocation identifies the callback in which a provider fault happened.
type FaultLocation int

const (
	// LocationLog is the logging callback.
	LocationLog FaultLocation = iota
	// LocationSimple is the authname/user callback.
	LocationSimple
	// LocationSecret is the password callback.
	LocationSecret
)

// String returns the callback name.
func (l FaultLocation) String() string {
	switch l {
	case LocationLog:
		return "LogCallback"
	case LocationSimple:
		return "GetsimpleCallback"
	case LocationSecret:
		return "GetsecretCallback"
	default:
		return fmt.Sprintf("FaultLocation(%d)", int(l))
	}
}

// FaultFunc is notified when a provider or log sink fails inside a callback.
// source names the provider ("authname", "user", "pass" or "log"). Panics in
// the hook are swallowed.
type FaultFunc func(err error, location FaultLocation, source string)

// Config holds process-wide engine configuration. It is applied once, by the
// first call to Init.
type Config struct {
	// Engine is the native engine. nil selects libsasl2 when it can be
	// loaded and the pure Go engine otherwise.
	Engine native.Engine

	// Log receives engine log messages. When nil no logging callback is
	// registered.
	Log LogFunc

	// OnFault is notified of provider faults.
	OnFault FaultFunc

	// NeedWSAStartup initializes the Windows socket subsystem before the
	// engine. Ignored on other platforms.
	NeedWSAStartup bool

	// PluginPath is the directory reported to the engine when it asks for
	// mechanism plugins. Defaults to the directory of the running binary.
	PluginPath string

	// Logger receives debug records about negotiation steps.
	Logger *slog.Logger

	// AuditLogger receives security events (attempt, success, failure).
	AuditLogger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		NeedWSAStartup: runtime.GOOS == "windows",
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.PluginPath != "" && !filepath.IsAbs(c.PluginPath) {
		return errors.New("plugin path must be absolute")
	}
	return nil
}
