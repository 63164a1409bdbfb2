// pkg/eos_io/context.go

package eos_io

import (
	"context"
	"os"
	"os/user"
	"runtime"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_err"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/telemetry"
	cerr "github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RuntimeContext is threaded through every command: one per invocation.
type RuntimeContext struct {
	Ctx        context.Context
	Log        *zap.Logger
	Timestamp  time.Time
	Span       trace.Span
	RunID      string
	Command    string
	Attributes map[string]string
}

// NewContext sets up tracing and a run-scoped logger.
func NewContext(parent context.Context, cmdName string) *RuntimeContext {
	runID := GenerateRunID()
	ctx, span := telemetry.Start(parent, cmdName, attribute.String("run_id", runID))

	logger := zap.L().With(
		zap.String("command", cmdName),
		zap.String("run_id", runID),
	)

	return &RuntimeContext{
		Ctx:        ctx,
		Span:       span,
		Log:        logger,
		Timestamp:  time.Now(),
		RunID:      runID,
		Command:    cmdName,
		Attributes: make(map[string]string),
	}
}

// GenerateRunID returns a short 8-char run ID.
func GenerateRunID() string {
	return uuid.New().String()[:8]
}

// HandlePanic recovers panics, logs them, and converts to an error.
func (rc *RuntimeContext) HandlePanic(errPtr *error) {
	if r := recover(); r != nil {
		*errPtr = cerr.AssertionFailedf("panic: %v", r)
		rc.Log.Error("panic recovered", zap.Any("panic", r))
	}
}

// End logs outcome, closes the span with key attributes, and flushes.
func (rc *RuntimeContext) End(errPtr *error) {
	defer rc.Span.End()

	var err error
	if errPtr != nil {
		err = *errPtr
	}
	duration := time.Since(rc.Timestamp)
	success := err == nil

	if success {
		rc.Log.Info("Command completed", zap.Duration("duration", duration))
	} else {
		rc.Log.Error("Command failed",
			zap.Duration("duration", duration),
			zap.Int("exit_code", eos_err.GetExitCode(err)),
			zap.Error(err))
		rc.Span.RecordError(err)
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
		attribute.Int64("duration_ms", duration.Milliseconds()),
		attribute.String("os", runtime.GOOS),
		attribute.String("version", shared.Version),
		attribute.Int("exit_code", eos_err.GetExitCode(err)),
	}
	for k, v := range rc.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	rc.Span.SetAttributes(attrs...)

	shared.SafeSync()
}

// LogRuntimeExecutionContext records who is running what, for the audit trail.
func LogRuntimeExecutionContext(rc *RuntimeContext) {
	currentUser, err := user.Current()
	if err != nil {
		rc.Log.Warn("Failed to get current user", zap.Error(err))
	} else {
		rc.Log.Info("User context",
			zap.String("username", currentUser.Username),
			zap.String("uid", currentUser.Uid),
			zap.Int("effective_uid", os.Geteuid()),
			zap.Int("effective_gid", os.Getegid()),
		)
	}

	if execPath, err := os.Executable(); err != nil {
		rc.Log.Warn("Failed to resolve executable path", zap.Error(err))
	} else {
		rc.Log.Debug("Executing binary",
			zap.String("path", execPath),
			zap.String("args", strings.Join(os.Args[1:], " ")),
			zap.String("version", shared.Version))
	}
}
