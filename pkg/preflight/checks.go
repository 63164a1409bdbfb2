// Package preflight runs ordered readiness checks before a sync touches
// anything. Required failures are aggregated into one error; optional
// failures are reported as warnings.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// DefaultCheckTimeout bounds a single check.
const DefaultCheckTimeout = 10 * time.Second

// Check represents a single preflight check
type Check struct {
	Name        string
	Description string
	Check       func(context.Context) error
	Required    bool
	Timeout     time.Duration
}

// CheckResult contains the result of running preflight checks
type CheckResult struct {
	Name     string
	Required bool
	Passed   bool
	Error    error
	Warning  string
}

// CheckError names the check that failed.
type CheckError struct {
	Name string
	Err  error
}

func (e *CheckError) Error() string { return fmt.Sprintf("%s: %v", e.Name, e.Err) }
func (e *CheckError) Unwrap() error { return e.Err }

// RunChecks runs every check in order and returns all results. The error is
// non-nil when at least one required check failed and wraps each failure as
// a *CheckError.
func RunChecks(ctx context.Context, checks []Check) ([]CheckResult, error) {
	logger := otelzap.Ctx(ctx)

	logger.Info("Running preflight checks", zap.Int("total_checks", len(checks)))

	results := make([]CheckResult, 0, len(checks))
	var failures *multierror.Error

	for _, check := range checks {
		logger.Debug("Running check", zap.String("check", check.Name))

		result := CheckResult{Name: check.Name, Required: check.Required}

		timeout := check.Timeout
		if timeout <= 0 {
			timeout = DefaultCheckTimeout
		}
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := check.Check(checkCtx)
		cancel()

		switch {
		case err == nil:
			result.Passed = true
			logger.Info("Check passed", zap.String("check", check.Name))
		case check.Required:
			result.Error = err
			failures = multierror.Append(failures, &CheckError{Name: check.Name, Err: err})
			logger.Error("Check failed (required)",
				zap.String("check", check.Name),
				zap.Error(err))
		default:
			result.Error = err
			result.Warning = err.Error()
			logger.Warn("Check failed (optional)",
				zap.String("check", check.Name),
				zap.Error(err))
		}

		results = append(results, result)
	}

	if err := failures.ErrorOrNil(); err != nil {
		return results, err
	}

	logger.Info("All required preflight checks passed")
	return results, nil
}

// CheckExecutable verifies path exists, is a regular file and is executable
// by the current process.
func CheckExecutable(path string) func(context.Context) error {
	return func(ctx context.Context) error {
		info, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s is not installed", path)
		}
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%s is not a regular file", path)
		}
		if err := unix.Access(path, unix.X_OK); err != nil {
			return fmt.Errorf("%s is not executable: %w", path, err)
		}
		return nil
	}
}
