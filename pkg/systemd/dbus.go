package systemd

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const jobModeReplace = "replace"

// DBus talks to systemd over the system bus. The connection is opened on
// first use and reopened if it stops answering. Its lifetime is bounded by
// Close, never by the context of the call that opened it.
type DBus struct {
	mu   sync.Mutex
	conn *dbus.Conn
	dial func(context.Context) (*dbus.Conn, error)
}

// NewDBus returns a manager that connects lazily.
func NewDBus() *DBus {
	return &DBus{dial: dbus.NewSystemdConnectionContext}
}

// Probe opens the connection and asks systemd for its version, failing
// when the bus does not answer before ctx ends.
func (d *DBus) Probe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		conn, err := d.getConn(ctx)
		if err == nil {
			_, err = conn.GetManagerProperty("Version")
		}
		errc <- err
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return fmt.Errorf("systemd bus did not answer: %w", ctx.Err())
	}
}

func (d *DBus) getConn(ctx context.Context) (*dbus.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn != nil {
		if _, err := d.conn.GetManagerProperty("Version"); err == nil {
			return d.conn, nil
		}
		d.conn.Close()
		d.conn = nil
	}

	conn, err := d.dial(context.WithoutCancel(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd bus: %w", err)
	}
	d.conn = conn
	return conn, nil
}

// Close releases the bus connection.
func (d *DBus) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
}

// ActiveState returns the unit's ActiveState property.
func (d *DBus) ActiveState(ctx context.Context, unit string) (string, error) {
	conn, err := d.getConn(ctx)
	if err != nil {
		return "", err
	}

	prop, err := conn.GetUnitPropertyContext(ctx, unit, "ActiveState")
	if err != nil {
		return "", fmt.Errorf("failed to read ActiveState of %s: %w", unit, err)
	}
	state, ok := prop.Value.Value().(string)
	if !ok {
		return "", fmt.Errorf("unexpected ActiveState value for %s: %v", unit, prop.Value)
	}
	return state, nil
}

func (d *DBus) IsActive(ctx context.Context, unit string) (bool, error) {
	state, err := d.ActiveState(ctx, unit)
	if err != nil {
		return false, err
	}
	otelzap.Ctx(ctx).Debug("Unit state", zap.String("unit", unit), zap.String("active_state", state))
	return state == "active", nil
}

func (d *DBus) Start(ctx context.Context, unit string) error {
	return d.runJob(ctx, "start", unit, func(conn *dbus.Conn, ch chan<- string) (int, error) {
		return conn.StartUnitContext(ctx, unit, jobModeReplace, ch)
	})
}

func (d *DBus) Restart(ctx context.Context, unit string) error {
	return d.runJob(ctx, "restart", unit, func(conn *dbus.Conn, ch chan<- string) (int, error) {
		return conn.RestartUnitContext(ctx, unit, jobModeReplace, ch)
	})
}

// runJob queues a unit job and waits for systemd to report its result.
func (d *DBus) runJob(ctx context.Context, action, unit string, enqueue func(*dbus.Conn, chan<- string) (int, error)) error {
	logger := otelzap.Ctx(ctx)

	conn, err := d.getConn(ctx)
	if err != nil {
		return err
	}

	done := make(chan string, 1)
	jobID, err := enqueue(conn, done)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", action, unit, err)
	}
	logger.Debug("Queued systemd job",
		zap.String("action", action),
		zap.String("unit", unit),
		zap.Int("job_id", jobID))

	select {
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("%s %s: job finished with result %q", action, unit, result)
		}
		logger.Info("Systemd job completed", zap.String("action", action), zap.String("unit", unit))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s %s: %w", action, unit, ctx.Err())
	}
}
