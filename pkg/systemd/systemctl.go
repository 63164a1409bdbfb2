package systemd

import (
	"context"
	"fmt"
	"strings"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_err"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/execute"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Systemctl exit codes, see systemctl(1).
const (
	ExitSuccess     = 0
	ExitGenericFail = 1

	// is-active
	ExitInactive  = 3
	ExitUnknown   = 4
	ExitNotLoaded = 5
)

// SystemctlCommand represents a systemctl subcommand
type SystemctlCommand string

const (
	CmdIsActive SystemctlCommand = "is-active"
	CmdStart    SystemctlCommand = "start"
	CmdRestart  SystemctlCommand = "restart"
)

// InterpretSystemctlExitCode interprets exit codes based on the systemctl command
func InterpretSystemctlExitCode(cmd SystemctlCommand, exitCode int) string {
	switch cmd {
	case CmdIsActive:
		switch exitCode {
		case ExitSuccess:
			return "active"
		case ExitInactive:
			return "inactive"
		case ExitUnknown:
			return "unknown"
		case ExitNotLoaded:
			return "not loaded"
		default:
			return fmt.Sprintf("unknown exit code %d", exitCode)
		}
	default:
		if exitCode == ExitSuccess {
			return "success"
		}
		return fmt.Sprintf("failed with exit code %d", exitCode)
	}
}

// Runner executes a command. execute.Run satisfies it.
type Runner func(ctx context.Context, opts execute.Options) (string, error)

// Systemctl controls units by running the systemctl binary.
type Systemctl struct {
	Binary string
	Run    Runner
}

// NewSystemctl returns a manager that shells out to systemctl.
func NewSystemctl() *Systemctl {
	return &Systemctl{Binary: "systemctl", Run: execute.Run}
}

func (s *Systemctl) run(ctx context.Context, cmd SystemctlCommand, unit string) (string, int, error) {
	out, err := s.Run(ctx, execute.Options{
		Command: s.Binary,
		Args:    []string{string(cmd), unit},
	})
	return strings.TrimSpace(out), execute.ExitCode(err), err
}

func (s *Systemctl) IsActive(ctx context.Context, unit string) (bool, error) {
	out, code, err := s.run(ctx, CmdIsActive, unit)
	otelzap.Ctx(ctx).Debug("systemctl is-active",
		zap.String("unit", unit),
		zap.String("state", InterpretSystemctlExitCode(CmdIsActive, code)),
		zap.String("output", out))

	switch {
	case err == nil:
		return true, nil
	case code == ExitInactive, code == ExitUnknown:
		return false, nil
	case code == ExitNotLoaded:
		return false, eos_err.NewDependencyError(unit, "service control",
			fmt.Sprintf("check that %s is installed: systemctl list-unit-files %s", unit, unit))
	default:
		return false, fmt.Errorf("systemctl is-active %s: %w", unit, err)
	}
}

func (s *Systemctl) Start(ctx context.Context, unit string) error {
	return s.job(ctx, CmdStart, unit)
}

func (s *Systemctl) Restart(ctx context.Context, unit string) error {
	return s.job(ctx, CmdRestart, unit)
}

func (s *Systemctl) job(ctx context.Context, cmd SystemctlCommand, unit string) error {
	out, code, err := s.run(ctx, cmd, unit)
	if err != nil {
		return fmt.Errorf("systemctl %s %s %s: %s: %w", cmd, unit,
			InterpretSystemctlExitCode(cmd, code), eos_err.ExtractSummary(out, 2), err)
	}
	otelzap.Ctx(ctx).Info("systemctl command completed",
		zap.String("command", string(cmd)),
		zap.String("unit", unit))
	return nil
}
