// Package config loads the credsync configuration from (in increasing
// precedence) built-in defaults, /etc/credsync/credsync.yaml, a dotenv
// file, CREDSYNC_* environment variables, and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_err"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/shared"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is passed explicitly into every run; nothing here is global.
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Target    TargetConfig    `mapstructure:"target"`
	Service   ServiceConfig   `mapstructure:"service"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	DryRun bool   `mapstructure:"dry_run"`
	Output string `mapstructure:"output" validate:"oneof=text yaml json"`
}

// SourceConfig locates the PostgreSQL server whose pg_authid is read.
type SourceConfig struct {
	DSN            string        `mapstructure:"dsn"`
	Host           string        `mapstructure:"host" validate:"required_without=DSN"`
	Port           int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	User           string        `mapstructure:"user" validate:"required_without=DSN"`
	Password       string        `mapstructure:"password"`
	Database       string        `mapstructure:"database"`
	SSLMode        string        `mapstructure:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"gte=0"`
}

// TargetConfig describes the PgBouncer installation.
type TargetConfig struct {
	Binary      string `mapstructure:"binary" validate:"required"`
	Ini         string `mapstructure:"ini"`
	AuthFile    string `mapstructure:"auth_file"`
	Account     string `mapstructure:"account" validate:"required"`
	MinVersion  string `mapstructure:"min_version" validate:"required"`
	ExpectedTag string `mapstructure:"expected_tag" validate:"oneof=SCRAM-SHA-256"`
}

// ServiceConfig controls the dependent service restart.
type ServiceConfig struct {
	Unit           string        `mapstructure:"unit" validate:"required"`
	Control        string        `mapstructure:"control" validate:"oneof=auto dbus systemctl"`
	RestartTimeout time.Duration `mapstructure:"restart_timeout" validate:"gt=0"`
	PollInterval   time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	// StartInactive starts a stopped unit after a change instead of
	// leaving it stopped.
	StartInactive bool `mapstructure:"start_inactive"`
}

// VaultConfig is consulted only when Enabled.
type VaultConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Address      string `mapstructure:"address"`
	CACert       string `mapstructure:"ca_cert"`
	AuthMethod   string `mapstructure:"auth_method" validate:"oneof=token approle userpass"`
	AuthMount    string `mapstructure:"auth_mount"`
	Token        string `mapstructure:"token"`
	RoleID       string `mapstructure:"role_id" validate:"required_if=AuthMethod approle"`
	SecretIDFile string `mapstructure:"secret_id_file" validate:"required_if=AuthMethod approle"`
	Username     string `mapstructure:"username" validate:"required_if=AuthMethod userpass"`
	PasswordFile string `mapstructure:"password_file" validate:"required_if=AuthMethod userpass"`
	Mount        string `mapstructure:"mount" validate:"required_if=Enabled true"`
	Path         string `mapstructure:"path" validate:"required_if=Enabled true"`
	Key          string `mapstructure:"key" validate:"required_if=Enabled true"`
}

// LogConfig configures the durable log sink.
type LogConfig struct {
	Path      string `mapstructure:"path"`
	Level     string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	MaxSizeMB int    `mapstructure:"max_size_mb" validate:"gte=0"`
}

// TelemetryConfig enables span export to a JSON-lines file.
type TelemetryConfig struct {
	Path string `mapstructure:"path"`
}

// SetDefaults registers every key so environment variables are honoured
// even when no config file mentions them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source.dsn", "")
	v.SetDefault("source.host", shared.PostgresHost)
	v.SetDefault("source.port", shared.PostgresPort)
	v.SetDefault("source.user", shared.PostgresUser)
	v.SetDefault("source.password", "")
	v.SetDefault("source.database", shared.PostgresDB)
	v.SetDefault("source.sslmode", shared.PostgresSSLMode)
	v.SetDefault("source.connect_timeout", shared.DefaultConnectTimeout)

	v.SetDefault("target.binary", shared.PgBouncerBinary)
	v.SetDefault("target.ini", shared.PgBouncerIni)
	v.SetDefault("target.auth_file", "")
	v.SetDefault("target.account", shared.PgBouncerAccount)
	v.SetDefault("target.min_version", shared.PgBouncerMinScramVersion)
	v.SetDefault("target.expected_tag", shared.ScramTag)

	v.SetDefault("service.unit", shared.PgBouncerUnit)
	v.SetDefault("service.control", "auto")
	v.SetDefault("service.restart_timeout", shared.DefaultRestartTimeout)
	v.SetDefault("service.poll_interval", shared.DefaultPollInterval)
	v.SetDefault("service.start_inactive", false)

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "")
	v.SetDefault("vault.ca_cert", "")
	v.SetDefault("vault.auth_method", "token")
	v.SetDefault("vault.auth_mount", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.role_id", "")
	v.SetDefault("vault.secret_id_file", "")
	v.SetDefault("vault.username", "")
	v.SetDefault("vault.password_file", "")
	v.SetDefault("vault.mount", "secret")
	v.SetDefault("vault.path", "credsync/source")
	v.SetDefault("vault.key", "password")

	v.SetDefault("log.path", shared.CredsyncLogFile)
	v.SetDefault("log.level", "")
	v.SetDefault("log.max_size_mb", 100)

	v.SetDefault("telemetry.path", "")

	v.SetDefault("dry_run", false)
	v.SetDefault("output", "text")
}

// SetEnv makes CREDSYNC_SOURCE_HOST override source.host and so on.
func SetEnv(v *viper.Viper) {
	v.SetEnvPrefix(shared.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// LoadOptions name the optional config and dotenv files. A file that was
// named explicitly must exist; the defaults may be absent.
type LoadOptions struct {
	ConfigFile         string
	ConfigFileExplicit bool
	EnvFile            string
	EnvFileExplicit    bool
}

// Load reads configuration into v and returns the validated result. Flags
// must already be bound to v.
func Load(v *viper.Viper, opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			if opts.EnvFileExplicit || !errors.Is(err, os.ErrNotExist) {
				return nil, eos_err.WrapConfigError(fmt.Errorf("load env file: %w", err), opts.EnvFile)
			}
		}
	}

	SetDefaults(v)
	SetEnv(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			if opts.ConfigFileExplicit || !errors.Is(err, os.ErrNotExist) {
				return nil, eos_err.WrapConfigError(fmt.Errorf("read config: %w", err), opts.ConfigFile)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eos_err.WrapConfigError(fmt.Errorf("decode config: %w", err), v.ConfigFileUsed())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return eos_err.WrapValidationError(err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", configKey(fe.Namespace()), fe.Tag()))
	}
	return eos_err.NewValidationError("invalid configuration: "+strings.Join(msgs, "; "),
		"check "+shared.CredsyncConfigFile+" and CREDSYNC_* environment variables")
}

// configKey turns "Config.service.restart_timeout" into "service.restart_timeout".
func configKey(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
