package userlist

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tag = "SCRAM-SHA-256"

func TestNormalizeSecretPassThrough(t *testing.T) {
	got, err := NormalizeSecret(aliceSecret, tag)
	require.NoError(t, err)
	assert.Equal(t, aliceSecret, got)
}

func TestNormalizeSecretRetags(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "other scram label", in: "SCRAM-SHA-1$4096:c2FsdA==$c3RvcmVk:c2VydmVy"},
		{name: "lowercase label", in: "scram-sha-256$10000:abcd$efgh:ijkl"},
		{name: "empty label", in: "$4096:abcd$efgh:ijkl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSecret(tt.in, tag)
			require.NoError(t, err)

			suffix := tt.in[strings.Index(tt.in, "$")+1:]
			assert.True(t, strings.HasPrefix(got, tag+"$"))
			assert.Equal(t, suffix, strings.TrimPrefix(got, tag+"$"))

			again, err := NormalizeSecret(got, tag)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestNormalizeSecretRejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "md5", in: "md5d41d8cd98f00b204e9800998ecf8427e"},
		{name: "plain", in: "hunter2"},
		{name: "no keys", in: "SCRAM-SHA-1$4096:abcd"},
		{name: "bad iterations", in: "X$many:abcd$efgh:ijkl"},
		{name: "zero iterations", in: "X$0:abcd$efgh:ijkl"},
		{name: "empty salt", in: "X$4096:$efgh:ijkl"},
		{name: "missing server key", in: "X$4096:abcd$efgh"},
		{name: "extra section", in: "X$4096:abcd$efgh:ijkl$mnop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeSecret(tt.in, tag)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedSecret))
			assert.Empty(t, got)
		})
	}
}
