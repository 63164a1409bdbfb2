package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"debug":   zapcore.DebugLevel,
		"TRACE":   zapcore.DebugLevel,
		"warn":    zapcore.WarnLevel,
		"Warning": zapcore.WarnLevel,
		"ERROR":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLogLevel(in), "level %q", in)
	}
}

func TestEnsureLogPermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "credsync.log")

	require.NoError(t, EnsureLogPermissions(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())

	// a pre-existing world-readable file is tightened, not truncated
	loose := filepath.Join(dir, "loose.log")
	require.NoError(t, os.WriteFile(loose, []byte("keep me\n"), 0644))
	require.NoError(t, EnsureLogPermissions(loose))

	info, err = os.Stat(loose)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	data, err := os.ReadFile(loose)
	require.NoError(t, err)
	assert.Equal(t, "keep me\n", string(data))
}

func TestInitializeAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credsync.log")
	t.Cleanup(func() { _ = Close() })

	var console bytes.Buffer
	require.NoError(t, InitializeWithConsole(Options{Path: path, Level: "INFO"}, zapcore.AddSync(&console)))
	L().Info("first run", zap.String("step", "fetch"))
	require.NoError(t, Close())

	require.NoError(t, InitializeWithConsole(Options{Path: path, Level: "INFO"}, zapcore.AddSync(&console)))
	zap.L().Info("second run")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "first run", first["msg"])
	assert.Equal(t, "fetch", first["step"])
	assert.Equal(t, "INFO", first["level"])
	assert.NotEmpty(t, first["ts"])

	assert.Contains(t, lines[1], "second run")
	assert.Contains(t, console.String(), "first run")
	assert.Contains(t, console.String(), "second run")
}

func TestConsoleColourOnlyWhenRequested(t *testing.T) {
	t.Cleanup(func() { _ = Close() })

	var plain bytes.Buffer
	require.NoError(t, InitializeWithConsole(Options{Level: "INFO"}, zapcore.AddSync(&plain)))
	L().Warn("plain line")
	assert.Contains(t, plain.String(), "WARN")
	assert.NotContains(t, plain.String(), "\x1b[")

	var coloured bytes.Buffer
	require.NoError(t, InitializeWithConsole(Options{Level: "INFO", Color: true}, zapcore.AddSync(&coloured)))
	L().Warn("coloured line")
	assert.Contains(t, coloured.String(), "\x1b[")
}

func TestIsTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "not-a-tty")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.False(t, IsTerminal(f))
	assert.False(t, IsTerminal(nil))
}

func TestInitializeRejectsUnwritableSink(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can write anywhere")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0700) })

	err := InitializeWithConsole(Options{Path: filepath.Join(dir, "sub", "x.log")}, zapcore.AddSync(&bytes.Buffer{}))
	assert.Error(t, err)
}
