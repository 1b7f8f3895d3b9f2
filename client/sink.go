package client

import (
	"context"
	"log/slog"

	"github.com/smnsjas/go-sasl2/native"
)

// slogLevel maps engine log levels to slog levels.
func slogLevel(level native.LogLevel) slog.Level {
	switch {
	case level <= native.LogErr:
		return slog.LevelError
	case level <= native.LogWarn:
		return slog.LevelWarn
	case level == native.LogNote:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// SlogSink returns a LogFunc writing engine messages to logger.
func SlogSink(logger *slog.Logger) LogFunc {
	return func(level native.LogLevel, message string) {
		logger.Log(context.Background(), slogLevel(level), message, "sasl_level", int(level))
	}
}
