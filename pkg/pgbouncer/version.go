package pgbouncer

import (
	"context"
	"fmt"
	"regexp"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/execute"
	"github.com/hashicorp/go-version"
)

var versionLine = regexp.MustCompile(`(?i)pgbouncer\s+(?:version\s+)?v?(\d+(?:\.\d+)*)`)

// Runner executes a command. execute.Run satisfies it.
type Runner func(ctx context.Context, opts execute.Options) (string, error)

// Version runs `<binary> --version` and parses the reported version.
func Version(ctx context.Context, run Runner, binary string) (*version.Version, error) {
	if run == nil {
		run = execute.Run
	}

	out, err := run(ctx, execute.Options{Command: binary, Args: []string{"--version"}})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s version: %w", binary, err)
	}
	return ParseVersion(out)
}

// ParseVersion extracts the version from `pgbouncer --version` output.
func ParseVersion(output string) (*version.Version, error) {
	m := versionLine.FindStringSubmatch(output)
	if m == nil {
		return nil, fmt.Errorf("no PgBouncer version in output %q", output)
	}
	raw := m[1]
	v, err := version.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid PgBouncer version %q: %w", raw, err)
	}
	return v, nil
}
