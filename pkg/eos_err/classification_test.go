package eos_err

import (
	"errors"
	"fmt"
	"testing"

	cerr "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

type codedError struct{ code int }

func (e codedError) Error() string { return fmt.Sprintf("coded %d", e.code) }
func (e codedError) ExitCode() int { return e.code }

func TestGetExitCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "plain", err: errors.New("boom"), want: 1},
		{name: "validation", err: NewValidationError("bad"), want: 2},
		{name: "internal", err: NewInternalError("bug", errors.New("x")), want: 3},
		{name: "permission", err: NewPermissionError("/etc/x", "write"), want: 1},
		{name: "own code", err: codedError{code: 12}, want: 12},
		{name: "wrapped own code", err: cerr.Wrap(codedError{code: 14}, "restart"), want: 14},
		{name: "fmt wrapped", err: fmt.Errorf("outer: %w", NewValidationError("bad")), want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestClassifiedErrorMessage(t *testing.T) {
	t.Parallel()

	err := NewFilesystemError("cannot write userlist", errors.New("read-only file system"),
		"Remount the filesystem read-write")

	msg := err.Error()
	assert.Contains(t, msg, "cannot write userlist: read-only file system")
	assert.Contains(t, msg, "How to fix:")
	assert.Contains(t, msg, "1. Remount the filesystem read-write")
	assert.Equal(t, CategorySystem, CategoryOf(err))
	assert.Equal(t, "system", CategoryOf(err).String())
}

func TestExpectedUserError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, NewExpectedError(nil))

	base := errors.New("missing flag")
	err := NewExpectedError(base)
	assert.True(t, IsExpectedUserError(err))
	assert.True(t, errors.Is(err, base))
	assert.True(t, IsExpectedUserError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsExpectedUserError(base))
}

func TestExtractSummary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		max    int
		want   string
	}{
		{name: "empty", output: "  \n ", max: 2, want: "No output provided."},
		{name: "error lines", output: "starting\nERROR: bad\nfailed to x\nfatal", max: 2, want: "ERROR: bad - failed to x"},
		{name: "first line fallback", output: "\nPgBouncer 1.22.0\nlibevent 2.1.12", max: 2, want: "PgBouncer 1.22.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExtractSummary(tt.output, tt.max))
		})
	}
}

func TestWrapValidationError(t *testing.T) {
	t.Parallel()

	assert.Nil(t, WrapValidationError(nil))

	base := errors.New("field 'source.port' is required")
	wrapped := WrapValidationError(base)
	assert.True(t, errors.Is(wrapped, base))
	assert.Contains(t, cerr.FlattenHints(wrapped), "validation failed")

	cfgErr := WrapConfigError(base, "/etc/credsync/credsync.yaml")
	assert.Contains(t, cerr.FlattenHints(cfgErr), "/etc/credsync/credsync.yaml")
}
