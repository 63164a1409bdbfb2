// Package credsync synchronises PgBouncer's auth_file from PostgreSQL's
// pg_authid: preflight, capability checks, fetch, sanitize, diff, backup
// plus atomic apply, and a bounded service restart.
package credsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/catalog"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/config"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_err"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_io"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/fileops"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/pgbouncer"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/preflight"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/privilege_check"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/shared"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/systemd"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/telemetry"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/userlist"
	"github.com/hashicorp/go-version"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Target is the PgBouncer installation being fed.
type Target interface {
	CheckInstalled(ctx context.Context) error
	Settings(ctx context.Context) (*pgbouncer.Settings, error)
	Version(ctx context.Context) (*version.Version, error)
}

// Account is the service account that owns the credential file.
type Account struct {
	Name string
	UID  int
	GID  int
}

// AccountLookup resolves a service account by name.
type AccountLookup func(name string) (Account, error)

// Workflow holds the collaborators of one run. Every field except Now and
// Identity is required.
type Workflow struct {
	Config        *config.Config
	Catalog       catalog.Catalog
	Service       systemd.Manager
	Target        Target
	Files         *fileops.FileSystemOperations
	Identity      privilege_check.Identity
	LookupAccount AccountLookup
	Now           func() time.Time

	// resolved during preflight
	settings *pgbouncer.Settings
	authFile string
	account  Account
}

func (w *Workflow) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Run performs one synchronisation. The report is returned even on
// failure; the error is a *StepError for every workflow failure.
func (w *Workflow) Run(rc *eos_io.RuntimeContext) (*Report, error) {
	report := w.newReport(rc)
	report.DryRun = w.Config.DryRun
	err := w.run(rc, report)
	return w.finish(rc, report, err)
}

func (w *Workflow) run(rc *eos_io.RuntimeContext, report *Report) error {
	if err := w.preflight(rc, report, true); err != nil {
		return err
	}
	w.capabilities(rc, report)

	records, err := w.fetch(rc)
	if err != nil {
		return err
	}

	records, err = w.sanitize(rc, records)
	if err != nil {
		return err
	}
	report.Records = len(records)

	return w.applyContent(rc, report, userlist.Encode(records))
}

// applyContent is the shared diff, apply and restart tail of sync and
// rollback.
func (w *Workflow) applyContent(rc *eos_io.RuntimeContext, report *Report, content []byte) error {
	changed, err := w.diff(rc, report, content)
	if err != nil {
		return err
	}
	if !changed {
		report.Outcome = OutcomeUnchanged
		report.Restart = RestartNotNeeded
		return nil
	}
	if w.Config.DryRun {
		report.Outcome = OutcomeWouldApply
		report.Restart = RestartNotNeeded
		rc.Log.Info("Dry run: changes not applied", zap.String("step", string(StepApply)))
		return nil
	}

	if err := w.apply(rc, report, content); err != nil {
		return err
	}
	report.Outcome = OutcomeApplied

	return w.restart(rc, report)
}

func (w *Workflow) step(rc *eos_io.RuntimeContext, step Step) (context.Context, func(*error)) {
	ctx, span := telemetry.Start(rc.Ctx, "credsync."+string(step),
		attribute.String("run_id", rc.RunID))
	rc.Log.Info("Step started", zap.String("step", string(step)))
	return ctx, func(errp *error) {
		if errp != nil && *errp != nil {
			span.RecordError(*errp)
		}
		span.End()
	}
}

// preflight runs the required checks. withSource adds the database ping.
func (w *Workflow) preflight(rc *eos_io.RuntimeContext, report *Report, withSource bool) (err error) {
	ctx, end := w.step(rc, StepPreflight)
	defer end(&err)

	checks := []preflight.Check{
		{
			Name:        "privileges",
			Description: "running as root",
			Required:    true,
			Check: func(ctx context.Context) error {
				return eos_err.NewExpectedError(privilege_check.RequireRoot(ctx, w.Identity))
			},
		},
		{
			Name:        "target-installed",
			Description: "PgBouncer binary is installed and executable",
			Required:    true,
			Check: func(ctx context.Context) error {
				return eos_err.NewExpectedError(w.Target.CheckInstalled(ctx))
			},
		},
		{
			Name:        "target-account",
			Description: "credential file owner account exists",
			Required:    true,
			Check: func(ctx context.Context) error {
				acct, err := w.LookupAccount(w.Config.Target.Account)
				if err != nil {
					return fmt.Errorf("account %q: %w", w.Config.Target.Account, err)
				}
				w.account = acct
				return nil
			},
		},
		{
			Name:        "target-auth-file",
			Description: "credential file path is known",
			Required:    true,
			Check:       w.resolveAuthFile,
		},
	}
	if withSource {
		checks = append(checks, preflight.Check{
			Name:        "source-reachable",
			Description: "source database answers a ping",
			Required:    true,
			Timeout:     w.Config.Source.ConnectTimeout + time.Second,
			Check: func(ctx context.Context) error {
				if err := w.Catalog.Ping(ctx); err != nil {
					return eos_err.NewNetworkError("source database did not answer", err,
						"check source.host, source.port and that PostgreSQL is running")
				}
				return nil
			},
		})
	}

	results, err := preflight.RunChecks(ctx, checks)
	for _, r := range results {
		report.Checks = append(report.Checks, newCheckStatus(r))
	}
	if err != nil {
		return stepError(KindPrecondition, StepPreflight, err)
	}

	report.Target = w.authFile
	rc.Log.Info("Preflight passed",
		zap.String("step", string(StepPreflight)),
		zap.String("auth_file", w.authFile),
		zap.String("owner", w.account.Name))
	return nil
}

// resolveAuthFile picks the configured auth_file, else the one named in
// pgbouncer.ini, else the packaging default.
func (w *Workflow) resolveAuthFile(ctx context.Context) error {
	if w.Config.Target.AuthFile != "" {
		w.authFile = w.Config.Target.AuthFile
		return nil
	}

	settings, err := w.loadSettings(ctx)
	switch {
	case err == nil && settings.AuthFile != "":
		w.authFile = settings.AuthFile
	case err == nil:
		w.authFile = shared.PgBouncerAuthFile
		otelzap.Ctx(ctx).Warn("auth_file not set in pgbouncer.ini, using default",
			zap.String("ini", settings.Path),
			zap.String("auth_file", w.authFile))
	default:
		w.authFile = shared.PgBouncerAuthFile
		otelzap.Ctx(ctx).Warn("Could not read pgbouncer.ini, using default auth_file",
			zap.String("auth_file", w.authFile),
			zap.Error(err))
	}
	return nil
}

func (w *Workflow) loadSettings(ctx context.Context) (*pgbouncer.Settings, error) {
	if w.settings != nil {
		return w.settings, nil
	}
	s, err := w.Target.Settings(ctx)
	if err != nil {
		return nil, err
	}
	w.settings = s
	return s, nil
}

// capabilities collects compatibility warnings. It never fails the run.
func (w *Workflow) capabilities(rc *eos_io.RuntimeContext, report *Report) {
	ctx, end := w.step(rc, StepCapabilities)
	defer end(nil)

	var caps pgbouncer.Capabilities

	if enc, err := w.Catalog.PasswordEncryption(ctx); err != nil {
		rc.Log.Warn("Could not read source password_encryption", zap.Error(err))
	} else {
		caps.PasswordEncryption = enc
	}

	if s, err := w.loadSettings(ctx); err != nil {
		rc.Log.Warn("Could not read target settings", zap.Error(err))
	} else {
		caps.AuthType = s.AuthType
	}

	if v, err := w.Target.Version(ctx); err != nil {
		rc.Log.Warn("Could not read target version", zap.Error(err))
	} else {
		caps.Version = v
	}

	minVersion, err := version.NewVersion(w.Config.Target.MinVersion)
	if err != nil {
		rc.Log.Warn("Invalid minimum target version, skipping version comparison",
			zap.String("min_version", w.Config.Target.MinVersion),
			zap.Error(err))
		minVersion = nil
	}

	report.Capabilities = CapabilitySummary{
		PasswordEncryption: caps.PasswordEncryption,
		AuthType:           caps.AuthType,
	}
	if caps.Version != nil {
		report.Capabilities.TargetVersion = caps.Version.String()
	}

	for _, f := range pgbouncer.Assess(caps, minVersion) {
		warning := Warning{Kind: KindCompatibility, Check: f.Check, Message: f.Message}
		report.Warnings = append(report.Warnings, warning)
		rc.Log.Warn("Compatibility warning",
			zap.String("step", string(StepCapabilities)),
			zap.String("check", f.Check),
			zap.String("detail", f.Message))
	}
}

// fetch reads login credentials and re-tags their secrets.
func (w *Workflow) fetch(rc *eos_io.RuntimeContext) (records []userlist.Record, err error) {
	ctx, end := w.step(rc, StepFetch)
	defer end(&err)

	rows, err := w.Catalog.FetchLoginCredentials(ctx)
	if err != nil {
		return nil, stepError(KindFetch, StepFetch, err)
	}
	if len(rows) == 0 {
		return nil, stepError(KindFetch, StepFetch,
			errors.New("source returned no login roles with a password, refusing to write an empty credential file"))
	}

	tag := w.Config.Target.ExpectedTag
	retagged := 0
	for i := range rows {
		secret, err := userlist.NormalizeSecret(rows[i].Secret, tag)
		if err != nil {
			return nil, stepError(KindFetch, StepFetch,
				fmt.Errorf("role %q: %w", rows[i].Username, err))
		}
		if secret != rows[i].Secret {
			retagged++
		}
		rows[i].Secret = secret
	}

	rc.Log.Info("Fetched login credentials",
		zap.String("step", string(StepFetch)),
		zap.Int("records", len(rows)),
		zap.Int("retagged", retagged))
	return rows, nil
}

func (w *Workflow) sanitize(rc *eos_io.RuntimeContext, records []userlist.Record) (out []userlist.Record, err error) {
	_, end := w.step(rc, StepSanitize)
	defer end(&err)

	out, err = userlist.SanitizeRecords(records)
	if err != nil {
		return nil, stepError(KindSanitize, StepSanitize, err)
	}
	return out, nil
}

// diff reports whether content differs from the current file.
func (w *Workflow) diff(rc *eos_io.RuntimeContext, report *Report, content []byte) (changed bool, err error) {
	ctx, end := w.step(rc, StepDiff)
	defer end(&err)

	current, exists, err := w.Files.ReadIfExists(ctx, w.authFile)
	if err != nil {
		return false, stepError(KindApply, StepDiff, err)
	}
	report.TargetExisted = exists

	if exists && bytes.Equal(current, content) {
		rc.Log.Info("No changes", zap.String("step", string(StepDiff)), zap.String("auth_file", w.authFile))
		return false, nil
	}

	rc.Log.Info("Credential file differs",
		zap.String("step", string(StepDiff)),
		zap.String("auth_file", w.authFile),
		zap.Bool("exists", exists),
		zap.Int("current_bytes", len(current)),
		zap.Int("new_bytes", len(content)))
	return true, nil
}

// apply snapshots the current file, if any, then replaces it atomically.
func (w *Workflow) apply(rc *eos_io.RuntimeContext, report *Report, content []byte) (err error) {
	ctx, end := w.step(rc, StepApply)
	defer end(&err)

	if report.TargetExisted {
		backup, err := w.Files.Backup(ctx, w.authFile, w.now())
		if err != nil {
			return stepError(KindApply, StepApply, eos_err.NewFilesystemError("backup failed", err,
				"check free space and permissions in "+filepath.Dir(w.authFile)))
		}
		report.Backup = backup
	}

	own := fileops.Ownership{UID: w.account.UID, GID: w.account.GID, Mode: shared.FilePermOwnerReadWrite}
	if err := w.Files.AtomicWriteFile(ctx, w.authFile, content, own); err != nil {
		return stepError(KindApply, StepApply, eos_err.NewFilesystemError("replace "+w.authFile, err,
			"check free space and permissions in "+filepath.Dir(w.authFile)))
	}
	report.Changed = true

	rc.Log.Info("Credential file applied",
		zap.String("step", string(StepApply)),
		zap.String("auth_file", w.authFile),
		zap.String("backup", report.Backup),
		zap.String("owner", w.account.Name))
	return nil
}

// restart bounces the dependent service after a change. A failure here
// leaves the new file in place.
func (w *Workflow) restart(rc *eos_io.RuntimeContext, report *Report) (err error) {
	ctx, end := w.step(rc, StepRestart)
	defer end(&err)

	unit := w.Config.Service.Unit
	timeout := w.Config.Service.RestartTimeout
	fail := func(err error) error {
		report.Restart = RestartFailed
		return stepError(KindRestart, StepRestart, err)
	}

	// The job and the wait for "active" share one deadline.
	deadline := time.Now().Add(timeout)
	jobCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	active, err := w.Service.IsActive(jobCtx, unit)
	if err != nil {
		return fail(fmt.Errorf("query %s: %w", unit, err))
	}

	if !active {
		if !w.Config.Service.StartInactive {
			report.Restart = RestartSkipped
			rc.Log.Warn("Service not active, restart skipped",
				zap.String("step", string(StepRestart)),
				zap.String("unit", unit))
			return nil
		}
		if err := w.Service.Start(jobCtx, unit); err != nil {
			return fail(jobError("start", unit, timeout, err))
		}
		report.Restart = RestartStarted
	} else {
		if err := w.Service.Restart(jobCtx, unit); err != nil {
			return fail(jobError("restart", unit, timeout, err))
		}
		report.Restart = RestartRestarted
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return fail(fmt.Errorf("%s: %w within %s", unit, systemd.ErrNotActive, timeout))
	}
	if err := systemd.WaitActive(ctx, w.Service, unit, remaining, w.Config.Service.PollInterval); err != nil {
		return fail(fmt.Errorf("%s: %w", unit, err))
	}

	rc.Log.Info("Service active after credential change",
		zap.String("step", string(StepRestart)),
		zap.String("unit", unit),
		zap.String("action", string(report.Restart)))
	return nil
}

func jobError(action, unit string, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s did not complete within %s: %w", action, unit, timeout, err)
	}
	return fmt.Errorf("%s %s: %w", action, unit, err)
}

// Check runs preflight and the capability checks only.
func (w *Workflow) Check(rc *eos_io.RuntimeContext) (*Report, error) {
	report := w.newReport(rc)
	err := w.preflight(rc, report, true)
	if err == nil {
		w.capabilities(rc, report)
		report.Outcome = OutcomeChecked
	}
	return w.finish(rc, report, err)
}

// Rollback restores a backup snapshot through the normal apply path. An
// empty backup means the newest snapshot of the credential file.
func (w *Workflow) Rollback(rc *eos_io.RuntimeContext, backup string) (*Report, error) {
	report := w.newReport(rc)
	report.DryRun = w.Config.DryRun
	err := w.rollback(rc, report, backup)
	if err == nil && report.Outcome == OutcomeApplied {
		report.Outcome = OutcomeRolledBack
	}
	return w.finish(rc, report, err)
}

func (w *Workflow) rollback(rc *eos_io.RuntimeContext, report *Report, backup string) error {
	if err := w.preflight(rc, report, false); err != nil {
		return err
	}

	if backup == "" {
		latest, err := w.Files.FindLatestBackup(rc.Ctx, w.authFile)
		if err != nil {
			return stepError(KindPrecondition, StepPreflight, err)
		}
		backup = latest
	} else if !strings.HasPrefix(backup, w.authFile+".bak.") {
		rc.Log.Warn("Restoring a file that is not a snapshot of the credential file",
			zap.String("backup", backup),
			zap.String("auth_file", w.authFile))
	}
	report.RestoredFrom = backup

	content, exists, err := w.Files.ReadIfExists(rc.Ctx, backup)
	if err != nil {
		return stepError(KindPrecondition, StepPreflight, err)
	}
	if !exists {
		return stepError(KindPrecondition, StepPreflight, fmt.Errorf("backup %s does not exist", backup))
	}

	records, err := userlist.Decode(content)
	if err != nil {
		return stepError(KindSanitize, StepSanitize, fmt.Errorf("backup %s: %w", backup, err))
	}
	if len(records) == 0 {
		return stepError(KindSanitize, StepSanitize, fmt.Errorf("backup %s contains no credentials", backup))
	}
	report.Records = len(records)

	rc.Log.Info("Restoring backup snapshot",
		zap.String("backup", backup),
		zap.String("auth_file", w.authFile),
		zap.Int("records", len(records)))
	return w.applyContent(rc, report, content)
}
