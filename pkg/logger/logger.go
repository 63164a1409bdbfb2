package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	log    *zap.Logger
	closer io.Closer
)

// InitializeWithFallback installs a console-only logger. main() calls it
// so that anything logged before the configuration is loaded has a home.
func InitializeWithFallback() {
	mu.Lock()
	defer mu.Unlock()

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(ConsoleEncoderConfig(IsTerminal(os.Stdout))),
		zapcore.Lock(os.Stdout),
		ParseLogLevel(os.Getenv("LOG_LEVEL")),
	)
	install(zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)), nil)
}

// InitializeWithConsole installs the run logger: human-readable lines on
// console and timestamped JSON lines appended to opts.Path.
func InitializeWithConsole(opts Options, console zapcore.WriteSyncer) error {
	mu.Lock()
	defer mu.Unlock()

	level := ParseLogLevel(opts.Level)
	if opts.Level == "" {
		level = ParseLogLevel(os.Getenv("LOG_LEVEL"))
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(ConsoleEncoderConfig(opts.Color)), console, level),
	}

	var c io.Closer
	if opts.Path != "" {
		writer, rotator, err := GetLogFileWriter(opts.Path, opts.MaxSizeMB)
		if err != nil {
			return fmt.Errorf("initialize log sink %s: %w", opts.Path, err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig()), writer, level))
		c = rotator
	}

	install(zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), c)
	log.Debug("Logger initialized",
		zap.String("log_path", opts.Path),
		zap.String("log_level", level.String()))
	return nil
}

func install(l *zap.Logger, c io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
	log = l
	closer = c
	zap.ReplaceGlobals(l)
	otelzap.ReplaceGlobals(otelzap.New(l))
}

// L returns the global logger, installing the console fallback if needed.
func L() *zap.Logger {
	mu.Lock()
	l := log
	mu.Unlock()
	if l == nil {
		InitializeWithFallback()
		return L()
	}
	return l
}

// Sync flushes buffered entries. Call before the process exits.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if log == nil {
		return nil
	}
	return log.Sync()
}

// Close flushes and releases the durable log sink.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if log != nil {
		_ = log.Sync()
	}
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}
