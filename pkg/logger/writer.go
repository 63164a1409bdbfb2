// pkg/logger/writer.go

package logger

import (
	"fmt"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultMaxSizeMB = 100

// GetLogFileWriter returns an append-only writer for the durable log sink.
// Rolled-over files are never pruned.
func GetLogFileWriter(path string, maxSizeMB int) (zapcore.WriteSyncer, *lumberjack.Logger, error) {
	if err := EnsureLogPermissions(path); err != nil {
		return nil, nil, fmt.Errorf("log permission error: %w", err)
	}

	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 0,
		MaxAge:     0,
		Compress:   false,
		LocalTime:  true,
	}

	return zapcore.AddSync(rotator), rotator, nil
}
