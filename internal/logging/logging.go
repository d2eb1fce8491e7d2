// Package logging builds the zap logger shared by every Proctor component.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// New returns a logger at levelStr. format is "json", "console", or "auto";
// auto picks console output when stderr is a terminal.
func New(levelStr, format string) (*zap.Logger, error) {
	var cfg zap.Config
	if resolveFormat(format, term.IsTerminal(int(os.Stderr.Fd()))) == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(levelStr))
	return cfg.Build()
}

// ParseLevel maps a config level name to a zap level. Unknown names fall
// back to info.
func ParseLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func resolveFormat(format string, tty bool) string {
	switch format {
	case "json", "console":
		return format
	}
	if tty {
		return "console"
	}
	return "json"
}
