// cmd/root.go

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/cli"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/config"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/credsync"
	eos "github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_cli"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_err"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_io"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	v   = viper.New()
	cfg *config.Config

	configFile string
	envFile    string
)

// RootCmd runs one synchronisation when invoked without a subcommand.
var RootCmd = &cobra.Command{
	Use:   "credsync",
	Short: "Synchronise PgBouncer's auth_file from PostgreSQL",
	Long: `credsync reads every login role with a password from pg_authid on the
source PostgreSQL server and writes them to PgBouncer's auth_file as
SCRAM-SHA-256 verifiers.

A run goes through preflight checks, compatibility warnings, fetch,
sanitize and diff. When the file changes it is backed up, replaced
atomically, and the PgBouncer unit is restarted and watched until it is
active again. Identical content is left alone and nothing is restarted.

Sanitizing removes every backslash and surrounding whitespace from role
names and secrets, so a role named corp\alice is written as corpalice.
If that collides with another role the sync stops without writing.

Exit codes:
  0   success (including "no changes")
  2   invalid configuration
  10  precondition failed, nothing changed
  11  fetch failed, nothing changed
  12  sanitize failed, nothing changed
  13  apply failed, credential file unchanged
  14  restart failed, new credential file kept

Examples:
  # Sync with /etc/credsync/credsync.yaml
  sudo credsync

  # Show what would change
  sudo credsync --dry-run

  # Machine-readable report
  sudo credsync --output json`,
	Version:           shared.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	Args:              cobra.NoArgs,
	PersistentPreRunE: setup,
	RunE:              eos.Wrap(runSync),
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", shared.CredsyncConfigFile, "Configuration file")
	pf.StringVar(&envFile, "env-file", shared.CredsyncEnvFile, "dotenv file loaded before the environment is read")

	cli.AddBoolFlag(pf, "dry-run", "dry_run", false, "Report what would change without writing or restarting")
	cli.AddStringFlag(pf, "output", "output", "text", "Report format: text, yaml or json")
	cli.AddStringFlag(pf, "log-level", "log.level", "", "Log level (debug, info, warn, error)")
	cli.AddStringFlag(pf, "log-file", "log.path", shared.CredsyncLogFile, "Durable JSON log file")
	cli.AddStringFlag(pf, "telemetry-file", "telemetry.path", "", "Append trace spans to this file")

	cli.AddStringFlag(pf, "source-dsn", "source.dsn", "", "Source connection string (overrides host, port, user, database)")
	cli.AddStringFlag(pf, "source-host", "source.host", shared.PostgresHost, "Source host or socket directory")
	cli.AddIntFlag(pf, "source-port", "source.port", shared.PostgresPort, "Source port")
	cli.AddStringFlag(pf, "source-user", "source.user", shared.PostgresUser, "Source role allowed to read pg_authid")
	cli.AddStringFlag(pf, "source-database", "source.database", shared.PostgresDB, "Source database")
	cli.AddStringFlag(pf, "source-sslmode", "source.sslmode", shared.PostgresSSLMode, "Source sslmode")

	cli.AddStringFlag(pf, "auth-file", "target.auth_file", "", "Credential file (default: auth_file from pgbouncer.ini)")
	cli.AddStringFlag(pf, "pgbouncer-bin", "target.binary", shared.PgBouncerBinary, "PgBouncer binary")
	cli.AddStringFlag(pf, "pgbouncer-ini", "target.ini", shared.PgBouncerIni, "PgBouncer configuration file")
	cli.AddStringFlag(pf, "owner", "target.account", shared.PgBouncerAccount, "Account that owns the credential file")

	cli.AddStringFlag(pf, "service", "service.unit", shared.PgBouncerUnit, "systemd unit restarted after a change")
	cli.AddStringFlag(pf, "service-control", "service.control", "auto", "How to drive systemd: auto, dbus or systemctl")
	cli.AddDurationFlag(pf, "restart-timeout", "service.restart_timeout", shared.DefaultRestartTimeout, "How long to wait for the unit to become active")
	cli.AddBoolFlag(pf, "start-inactive", "service.start_inactive", false, "Start the unit after a change if it is not running")

	cli.AddBoolFlag(pf, "vault", "vault.enabled", false, "Read the source password from Vault")
}

// setup loads configuration and replaces the fallback logger with the
// configured sinks. It runs before every command.
func setup(cmd *cobra.Command, args []string) error {
	if err := cli.BindFlagsToViper(cmd, v); err != nil {
		return eos_err.NewInternalError("bind flags", err)
	}

	loaded, err := config.Load(v, config.LoadOptions{
		ConfigFile:         configFile,
		ConfigFileExplicit: cmd.Flags().Changed("config"),
		EnvFile:            envFile,
		EnvFileExplicit:    cmd.Flags().Changed("env-file"),
	})
	if err != nil {
		return err
	}
	cfg = loaded

	stream := os.Stdout
	if cfg.Output != credsync.FormatText {
		stream = os.Stderr
	}
	logOpts := cfg.Log.Options()
	logOpts.Color = logger.IsTerminal(stream)
	if err := logger.InitializeWithConsole(logOpts, zapcore.Lock(stream)); err != nil {
		logger.L().Warn("Durable log sink unavailable, logging to console only",
			zap.String("path", cfg.Log.Path),
			zap.Error(err))
	}

	if err := telemetry.Init(shared.CredsyncID, cfg.Telemetry.Path); err != nil {
		logger.L().Warn("Telemetry disabled", zap.Error(err))
	}
	return nil
}

func runSync(rc *eos_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	return runWorkflow(rc, true, func(w *credsync.Workflow) (*credsync.Report, error) {
		return w.Run(rc)
	})
}

// runWorkflow builds a workflow against the host, runs op and prints its
// report. The report is printed on failure too.
func runWorkflow(rc *eos_io.RuntimeContext, withSource bool, op func(*credsync.Workflow) (*credsync.Report, error)) error {
	w, closeFn, err := credsync.New(rc, cfg, withSource)
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := op(w)
	if report != nil {
		styled := cfg.Output == credsync.FormatText && logger.IsTerminal(os.Stdout)
		if rerr := report.Render(os.Stdout, cfg.Output, styled); rerr != nil {
			rc.Log.Warn("Failed to print report", zap.Error(rerr))
		}
	}
	return err
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to flush telemetry: %v\n", err)
		}
		if err := logger.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
		}
	}()

	RootCmd.AddCommand(CheckCmd, RollbackCmd, VersionCmd)

	err := RootCmd.Execute()
	code := eos_err.GetExitCode(err)
	if err == nil {
		return code
	}

	if eos_err.IsExpectedUserError(err) {
		logger.L().Warn("credsync completed with user error", zap.Error(err))
	} else {
		logger.L().Error("credsync failed",
			zap.Int("exit_code", code),
			zap.String("category", eos_err.CategoryOf(err).String()),
			zap.Error(err))
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return code
}
