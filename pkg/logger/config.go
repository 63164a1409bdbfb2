/* pkg/logger/config.go */

package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls where and how loudly credsync logs.
type Options struct {
	// Path of the durable JSON log sink. Empty disables the file sink.
	Path string
	// Level is one of DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string
	// MaxSizeMB is the size at which the sink is rolled over. Rolled files
	// are kept forever.
	MaxSizeMB int
	// Color enables ANSI level colours on the console. Set it only when the
	// console is a terminal.
	Color bool
}

// ParseLogLevel maps LOG_LEVEL style strings onto zap levels.
func ParseLogLevel(level string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE", "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ConsoleEncoderConfig is the human-readable console format. Without color
// the output is plain text for cron mail and the journal.
func ConsoleEncoderConfig(color bool) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "T"
	cfg.LevelKey = "L"
	cfg.NameKey = "N"
	cfg.CallerKey = ""
	cfg.MessageKey = "M"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if color {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg
}

func fileEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}
