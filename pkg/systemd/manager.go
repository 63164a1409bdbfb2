// Package systemd controls the dependent service unit: state queries,
// start and restart, and a bounded wait for the unit to become active.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Manager is the service control surface the sync depends on.
type Manager interface {
	IsActive(ctx context.Context, unit string) (bool, error)
	Start(ctx context.Context, unit string) error
	Restart(ctx context.Context, unit string) error
}

// ErrNotActive is returned by WaitActive when the unit never reported active.
var ErrNotActive = errors.New("unit did not become active")

// WaitActive polls m every interval until unit is active or timeout
// elapses. Query errors are treated as "not yet active" and the last one is
// attached to the timeout error.
func WaitActive(ctx context.Context, m Manager, unit string, timeout, interval time.Duration) error {
	logger := otelzap.Ctx(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	attempts := 0
	op := func() error {
		attempts++
		active, err := m.IsActive(waitCtx, unit)
		if err != nil {
			lastErr = err
			return err
		}
		if !active {
			return ErrNotActive
		}
		return nil
	}

	notify := func(err error, next time.Duration) {
		logger.Debug("Waiting for unit to become active",
			zap.String("unit", unit),
			zap.Int("attempt", attempts),
			zap.Duration("next_poll", next),
			zap.Error(err))
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(interval), waitCtx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if lastErr != nil {
			return fmt.Errorf("%w within %s (%d checks): last error: %v", ErrNotActive, timeout, attempts, lastErr)
		}
		return fmt.Errorf("%w within %s (%d checks)", ErrNotActive, timeout, attempts)
	}

	logger.Info("Unit is active",
		zap.String("unit", unit),
		zap.Int("checks", attempts))
	return nil
}
