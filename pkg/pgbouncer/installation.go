package pgbouncer

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/preflight"
	"github.com/hashicorp/go-version"
	"github.com/spf13/afero"
)

// Installation is a PgBouncer binary plus its ini file on this host.
type Installation struct {
	Binary string
	Ini    string
	Fs     afero.Fs
	Run    Runner
}

// CheckInstalled fails unless the binary exists and is executable.
func (i *Installation) CheckInstalled(ctx context.Context) error {
	return preflight.CheckExecutable(i.Binary)(ctx)
}

// Settings parses the ini file.
func (i *Installation) Settings(ctx context.Context) (*Settings, error) {
	fs := i.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return LoadSettings(fs, i.Ini)
}

// Version asks the binary for its version.
func (i *Installation) Version(ctx context.Context) (*version.Version, error) {
	return Version(ctx, i.Run, i.Binary)
}
