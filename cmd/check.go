// cmd/check.go

package cmd

import (
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/credsync"
	eos "github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_cli"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_io"
	"github.com/spf13/cobra"
)

// CheckCmd runs preflight and compatibility checks without touching anything.
var CheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run preflight and compatibility checks only",
	Long: `Verify that a sync could run: privileges, the PgBouncer installation,
the owner account, the credential file location and the source database.
Compatibility warnings (password_encryption, auth_type, PgBouncer version)
are reported but never fail the check.

Nothing is read from pg_authid, written, or restarted.`,
	Args: cobra.NoArgs,
	RunE: eos.Wrap(func(rc *eos_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		return runWorkflow(rc, true, func(w *credsync.Workflow) (*credsync.Report, error) {
			return w.Check(rc)
		})
	}),
}
