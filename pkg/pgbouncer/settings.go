// Package pgbouncer inspects the local PgBouncer installation: its ini
// settings, its version, and whether both can serve SCRAM secrets from the
// credential file.
package pgbouncer

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
	"github.com/spf13/afero"
)

const section = "pgbouncer"

// Settings are the pgbouncer.ini values the sync cares about.
type Settings struct {
	Path     string
	AuthType string
	AuthFile string
}

// LoadSettings parses the [pgbouncer] section of the ini file at path.
// A relative auth_file is resolved against the ini file's directory,
// matching how PgBouncer itself resolves it.
func LoadSettings(fs afero.Fs, path string) (*Settings, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{
		Insensitive:      true,
		AllowBooleanKeys: true,
	}, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	sec, err := cfg.GetSection(section)
	if err != nil {
		return nil, fmt.Errorf("%s has no [%s] section", path, section)
	}

	s := &Settings{
		Path:     path,
		AuthType: strings.ToLower(strings.TrimSpace(sec.Key("auth_type").String())),
		AuthFile: strings.TrimSpace(sec.Key("auth_file").String()),
	}

	if s.AuthFile != "" && !filepath.IsAbs(s.AuthFile) {
		s.AuthFile = filepath.Join(filepath.Dir(path), s.AuthFile)
	}

	return s, nil
}
