package systemd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBusConnectionOutlivesCallContext(t *testing.T) {
	var dialCtx context.Context
	d := &DBus{dial: func(ctx context.Context) (*dbus.Conn, error) {
		dialCtx = ctx
		return nil, errors.New("no bus in test")
	}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	err := d.Probe(ctx)
	cancel()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no bus in test")
	require.NotNil(t, dialCtx)
	assert.NoError(t, dialCtx.Err(), "connection context must not end with the check")
}

func TestDBusCheckTimesOutOnSilentBus(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	d := &DBus{dial: func(ctx context.Context) (*dbus.Conn, error) {
		<-release
		return nil, errors.New("released")
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := d.Probe(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second)
}
