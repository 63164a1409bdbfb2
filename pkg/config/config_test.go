package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_err"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/vault"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), LoadOptions{
		ConfigFile: filepath.Join(t.TempDir(), "absent.yaml"),
		EnvFile:    filepath.Join(t.TempDir(), "absent.env"),
	})
	require.NoError(t, err)

	assert.Equal(t, shared.PostgresHost, cfg.Source.Host)
	assert.Equal(t, 5432, cfg.Source.Port)
	assert.Equal(t, shared.DefaultConnectTimeout, cfg.Source.ConnectTimeout)
	assert.Equal(t, shared.PgBouncerBinary, cfg.Target.Binary)
	assert.Empty(t, cfg.Target.AuthFile)
	assert.Equal(t, "SCRAM-SHA-256", cfg.Target.ExpectedTag)
	assert.Equal(t, "pgbouncer.service", cfg.Service.Unit)
	assert.Equal(t, 30*time.Second, cfg.Service.RestartTimeout)
	assert.Equal(t, time.Second, cfg.Service.PollInterval)
	assert.Equal(t, "auto", cfg.Service.Control)
	assert.False(t, cfg.Vault.Enabled)
	assert.Equal(t, shared.CredsyncLogFile, cfg.Log.Path)
	assert.Equal(t, "text", cfg.Output)
}

func TestLoadPrecedence(t *testing.T) {
	configFile := writeFile(t, "credsync.yaml", `
source:
  host: db.internal
  port: 6543
service:
  restart_timeout: 45s
target:
  auth_file: /srv/pgbouncer/users.txt
`)
	envFile := writeFile(t, "credsync.env", "CREDSYNC_SOURCE_USER=syncer\nCREDSYNC_SOURCE_PORT=7000\n")

	t.Setenv("CREDSYNC_SOURCE_PORT", "6000")
	t.Cleanup(func() { _ = os.Unsetenv("CREDSYNC_SOURCE_USER") })

	v := viper.New()
	v.Set("service.poll_interval", "250ms")

	cfg, err := Load(v, LoadOptions{ConfigFile: configFile, EnvFile: envFile})
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Source.Host)
	// real environment beats both the dotenv file and the config file
	assert.Equal(t, 6000, cfg.Source.Port)
	assert.Equal(t, "syncer", cfg.Source.User)
	assert.Equal(t, 45*time.Second, cfg.Service.RestartTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Service.PollInterval)
	assert.Equal(t, "/srv/pgbouncer/users.txt", cfg.Target.AuthFile)
}

func TestLoadExplicitFileMustExist(t *testing.T) {
	_, err := Load(viper.New(), LoadOptions{
		ConfigFile:         filepath.Join(t.TempDir(), "absent.yaml"),
		ConfigFileExplicit: true,
	})
	require.Error(t, err)

	_, err = Load(viper.New(), LoadOptions{
		EnvFile:         filepath.Join(t.TempDir(), "absent.env"),
		EnvFileExplicit: true,
	})
	require.Error(t, err)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeFile(t, "credsync.yaml", "source: [unclosed\n")
	_, err := Load(viper.New(), LoadOptions{ConfigFile: path})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(viper.New(), LoadOptions{})
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{name: "zero restart timeout", mutate: func(c *Config) { c.Service.RestartTimeout = 0 }, key: "service.restart_timeout"},
		{name: "bad control", mutate: func(c *Config) { c.Service.Control = "upstart" }, key: "service.control"},
		{name: "bad output", mutate: func(c *Config) { c.Output = "xml" }, key: "output"},
		{name: "bad sslmode", mutate: func(c *Config) { c.Source.SSLMode = "sometimes" }, key: "source.sslmode"},
		{name: "non-scram tag", mutate: func(c *Config) { c.Target.ExpectedTag = "md5" }, key: "target.expected_tag"},
		{name: "no host without dsn", mutate: func(c *Config) { c.Source.Host = "" }, key: "source.host"},
		{name: "approle without role", mutate: func(c *Config) {
			c.Vault.Enabled = true
			c.Vault.AuthMethod = "approle"
		}, key: "vault.role_id"},
		{name: "vault without key", mutate: func(c *Config) {
			c.Vault.Enabled = true
			c.Vault.Key = ""
		}, key: "vault.key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
			assert.Equal(t, 2, eos_err.GetExitCode(err))
		})
	}

	cfg := base()
	cfg.Source.Host = ""
	cfg.Source.DSN = "postgres://localhost/postgres"
	assert.NoError(t, cfg.Validate())
}

func TestConversions(t *testing.T) {
	cfg, err := Load(viper.New(), LoadOptions{})
	require.NoError(t, err)

	conn := cfg.Source.ConnOptions()
	assert.Equal(t, cfg.Source.Host, conn.Host)
	assert.Equal(t, cfg.Source.ConnectTimeout, conn.ConnectTimeout)

	opts := cfg.Vault.Options()
	assert.Equal(t, vault.AuthToken, opts.AuthMethod)
	assert.Equal(t, "secret", opts.Mount)

	assert.Equal(t, cfg.Log.Path, cfg.Log.Options().Path)
}
