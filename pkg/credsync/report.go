package credsync

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_err"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_io"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/preflight"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Outcome is the end state of a run.
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeUnchanged  Outcome = "unchanged"
	OutcomeWouldApply Outcome = "would-apply"
	OutcomeChecked    Outcome = "checked"
	OutcomeRolledBack Outcome = "rolled-back"
	OutcomeFailed     Outcome = "failed"
)

// RestartAction records what happened to the dependent service.
type RestartAction string

const (
	RestartNotNeeded RestartAction = "not-needed"
	RestartRestarted RestartAction = "restarted"
	RestartStarted   RestartAction = "started"
	RestartSkipped   RestartAction = "skipped-inactive"
	RestartFailed    RestartAction = "failed"
)

// CheckStatus is one preflight check result.
type CheckStatus struct {
	Name     string `json:"name" yaml:"name"`
	Required bool   `json:"required" yaml:"required"`
	Passed   bool   `json:"passed" yaml:"passed"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newCheckStatus(r preflight.CheckResult) CheckStatus {
	cs := CheckStatus{Name: r.Name, Required: r.Required, Passed: r.Passed}
	if r.Error != nil {
		cs.Error = r.Error.Error()
	}
	return cs
}

// CapabilitySummary is what the capability step observed.
type CapabilitySummary struct {
	PasswordEncryption string `json:"password_encryption,omitempty" yaml:"password_encryption,omitempty"`
	AuthType           string `json:"auth_type,omitempty" yaml:"auth_type,omitempty"`
	TargetVersion      string `json:"target_version,omitempty" yaml:"target_version,omitempty"`
}

// Report summarises a run for the operator and for automation. Secrets
// never appear in it.
type Report struct {
	RunID         string            `json:"run_id" yaml:"run_id"`
	Command       string            `json:"command" yaml:"command"`
	StartedAt     time.Time         `json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time         `json:"finished_at" yaml:"finished_at"`
	DryRun        bool              `json:"dry_run" yaml:"dry_run"`
	Target        string            `json:"target,omitempty" yaml:"target,omitempty"`
	Outcome       Outcome           `json:"outcome" yaml:"outcome"`
	Records       int               `json:"records" yaml:"records"`
	Changed       bool              `json:"changed" yaml:"changed"`
	TargetExisted bool              `json:"target_existed" yaml:"target_existed"`
	Backup        string            `json:"backup,omitempty" yaml:"backup,omitempty"`
	RestoredFrom  string            `json:"restored_from,omitempty" yaml:"restored_from,omitempty"`
	Restart       RestartAction     `json:"restart,omitempty" yaml:"restart,omitempty"`
	Capabilities  CapabilitySummary `json:"capabilities" yaml:"capabilities"`
	Checks        []CheckStatus     `json:"checks,omitempty" yaml:"checks,omitempty"`
	Warnings      []Warning         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	ErrorKind     Kind              `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error         string            `json:"error,omitempty" yaml:"error,omitempty"`
	ExitCode      int               `json:"exit_code" yaml:"exit_code"`
}

func (w *Workflow) newReport(rc *eos_io.RuntimeContext) *Report {
	return &Report{
		RunID:     rc.RunID,
		Command:   rc.Command,
		StartedAt: w.now(),
	}
}

func (w *Workflow) finish(rc *eos_io.RuntimeContext, report *Report, err error) (*Report, error) {
	report.FinishedAt = w.now()
	report.ExitCode = eos_err.GetExitCode(err)

	if err != nil {
		report.Error = err.Error()
		report.ErrorKind = KindOf(err)
		if report.Outcome == "" {
			report.Outcome = OutcomeFailed
		}
		rc.Log.Error("Credential sync failed",
			zap.String("kind", string(report.ErrorKind)),
			zap.String("outcome", string(report.Outcome)),
			zap.Int("exit_code", report.ExitCode),
			zap.Error(err))
		return report, err
	}

	rc.Attributes["outcome"] = string(report.Outcome)
	rc.Log.Info("Credential sync finished",
		zap.String("outcome", string(report.Outcome)),
		zap.Int("records", report.Records),
		zap.Bool("changed", report.Changed),
		zap.String("restart", string(report.Restart)),
		zap.Int("warnings", len(report.Warnings)))
	return report, nil
}

// Output formats accepted by Render.
const (
	FormatText = "text"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Render writes the report. styled enables colours for terminals.
func (r *Report) Render(w io.Writer, format string, styled bool) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		_, err := io.WriteString(w, r.text(styled))
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

var (
	colorOK    = lipgloss.Color("#00aa00")
	colorWarn  = lipgloss.Color("#ffaa00")
	colorError = lipgloss.Color("#ff0000")
	colorMuted = lipgloss.Color("#666666")
)

func (r *Report) text(styled bool) string {
	paint := func(c lipgloss.Color, bold bool, s string) string {
		if !styled {
			return s
		}
		return lipgloss.NewStyle().Foreground(c).Bold(bold).Render(s)
	}

	var b strings.Builder
	line := func(label, value string) {
		fmt.Fprintf(&b, "  %-14s %s\n", label+":", value)
	}

	status := paint(colorOK, true, string(r.Outcome))
	switch {
	case r.Error != "":
		status = paint(colorError, true, string(r.Outcome))
	case len(r.Warnings) > 0:
		status = paint(colorWarn, true, string(r.Outcome))
	}

	title := fmt.Sprintf("credsync %s (run %s)", r.Command, r.RunID)
	if r.DryRun {
		title += " [dry run]"
	}
	b.WriteString(paint(colorMuted, true, title) + "\n")

	line("outcome", status)
	if r.Target != "" {
		line("credential file", r.Target)
	}
	if r.Records > 0 {
		line("records", fmt.Sprint(r.Records))
	}
	if r.RestoredFrom != "" {
		line("restored from", r.RestoredFrom)
	}
	if r.Backup != "" {
		line("backup", r.Backup)
	}
	if r.Restart != "" {
		line("service", string(r.Restart))
	}
	if r.Capabilities.TargetVersion != "" {
		line("pgbouncer", r.Capabilities.TargetVersion)
	}
	for _, c := range r.Checks {
		mark := paint(colorOK, false, "ok")
		if !c.Passed {
			mark = paint(colorError, false, "FAIL "+c.Error)
		}
		line("check "+c.Name, mark)
	}
	for _, wn := range r.Warnings {
		line("warning", paint(colorWarn, false, wn.Check+": "+wn.Message))
	}
	if r.Error != "" {
		line("error", paint(colorError, false, r.Error))
	}
	line("duration", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String())

	return b.String()
}
