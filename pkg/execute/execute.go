// pkg/execute/execute.go

package execute

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_err"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/telemetry"
	cerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// Options describes a single external command. Commands are never run
// through a shell.
type Options struct {
	Command string
	Args    []string
	Dir     string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Run executes a command once and returns its combined output. A non-zero
// exit is returned as an error; ExitCode recovers the status.
func Run(ctx context.Context, opts Options) (string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.L()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Command == "" {
		return "", errors.New("execute: empty command")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runCtx, span := telemetry.Start(runCtx, "execute.Run",
		attribute.String("command", opts.Command),
		attribute.String("args", strings.Join(opts.Args, " ")),
	)
	defer span.End()

	cmdStr := buildCommandString(opts.Command, opts.Args...)
	logger.Debug("Starting execution", zap.String("command", cmdStr))

	cmd := exec.CommandContext(runCtx, opts.Command, opts.Args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := buf.String()

	if err != nil {
		span.RecordError(err)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = cerr.Wrapf(err, "timed out after %s", timeout)
		}
		logger.Debug("Execution failed",
			zap.String("command", cmdStr),
			zap.Int("exit_code", ExitCode(err)),
			zap.String("summary", eos_err.ExtractSummary(output, 2)),
			zap.Error(err))
		return output, cerr.Wrapf(err, "%s", cmdStr)
	}

	logger.Debug("Execution succeeded", zap.String("command", cmdStr))
	return output, nil
}

// ExitCode returns the process exit status carried by err, 0 for nil and
// -1 when the process did not run to completion.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func buildCommandString(command string, args ...string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + strings.Join(args, " ")
}
