package credsync

import (
	"context"
	"fmt"
	"os/user"
	"strconv"
	"time"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/catalog"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/config"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_io"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/execute"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/fileops"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/pgbouncer"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/privilege_check"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/systemd"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/vault"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const defaultProbeTimeout = 5 * time.Second

// LookupSystemAccount resolves name through the host's user database.
func LookupSystemAccount(name string) (Account, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return Account{}, err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Account{}, fmt.Errorf("non-numeric uid %q", u.Uid)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Account{}, fmt.Errorf("non-numeric gid %q", u.Gid)
	}
	return Account{Name: u.Username, UID: uid, GID: gid}, nil
}

// New wires a Workflow against the real host. withSource opens the catalog
// (and reads its password from Vault when configured); rollback does not
// need it. The returned closer releases the catalog and bus connections.
func New(rc *eos_io.RuntimeContext, cfg *config.Config, withSource bool) (*Workflow, func(), error) {
	fs := afero.NewOsFs()

	w := &Workflow{
		Config: cfg,
		Target: &pgbouncer.Installation{
			Binary: cfg.Target.Binary,
			Ini:    cfg.Target.Ini,
			Fs:     fs,
			Run:    execute.Run,
		},
		Files:         fileops.NewFileSystemOperations(fs, rc.Log),
		Identity:      privilege_check.ProcessIdentity,
		LookupAccount: LookupSystemAccount,
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	service, closeService := newServiceManager(rc, cfg.Service.Control)
	w.Service = service
	closers = append(closers, closeService)

	if withSource {
		cat, err := openCatalog(rc, cfg)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		w.Catalog = cat
		closers = append(closers, func() {
			if err := cat.Close(); err != nil {
				rc.Log.Debug("Failed to close source connection", zap.Error(err))
			}
		})
	}

	return w, closeAll, nil
}

func openCatalog(rc *eos_io.RuntimeContext, cfg *config.Config) (*catalog.Postgres, error) {
	opts := cfg.Source.ConnOptions()

	if cfg.Vault.Enabled {
		password, err := vault.LookupPassword(rc.Ctx, cfg.Vault.Options())
		if err != nil {
			return nil, stepError(KindPrecondition, StepPreflight, fmt.Errorf("source password from vault: %w", err))
		}
		opts.Password = password
	}

	cat, err := catalog.Open(rc.Ctx, opts)
	if err != nil {
		return nil, stepError(KindPrecondition, StepPreflight, err)
	}
	return cat, nil
}

// newServiceManager picks D-Bus unless told otherwise or the bus is
// unreachable, in which case it falls back to the systemctl binary.
func newServiceManager(rc *eos_io.RuntimeContext, control string) (systemd.Manager, func()) {
	switch control {
	case "systemctl":
		return systemd.NewSystemctl(), func() {}
	case "dbus":
		d := systemd.NewDBus()
		return d, d.Close
	}

	d := systemd.NewDBus()
	ctx, cancel := context.WithTimeout(rc.Ctx, defaultProbeTimeout)
	defer cancel()
	if err := d.Probe(ctx); err != nil {
		rc.Log.Warn("systemd bus unavailable, using systemctl", zap.Error(err))
		// a connection that completes after the timeout is released here
		go d.Close()
		return systemd.NewSystemctl(), func() {}
	}
	return d, d.Close
}
