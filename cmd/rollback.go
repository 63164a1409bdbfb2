// cmd/rollback.go

package cmd

import (
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/credsync"
	eos "github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_cli"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_io"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rollbackBackup string

// RollbackCmd restores a backup snapshot of the credential file.
var RollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore the credential file from a backup snapshot",
	Long: `Restore the credential file from a snapshot written by an earlier sync.
Without --backup the newest <auth_file>.bak.<timestamp> is used.

The snapshot goes through the same path as a sync: the current file is
backed up, the snapshot is written atomically, and the service is
restarted. The source database is not contacted.

Examples:
  sudo credsync rollback
  sudo credsync rollback --backup /etc/pgbouncer/userlist.txt.bak.20260314-150926`,
	Args: cobra.NoArgs,
	RunE: eos.Wrap(func(rc *eos_io.RuntimeContext, cmd *cobra.Command, args []string) error {
		rc.Log.Info("Rolling back credential file", zap.String("backup", rollbackBackup))
		return runWorkflow(rc, false, func(w *credsync.Workflow) (*credsync.Report, error) {
			return w.Rollback(rc, rollbackBackup)
		})
	}),
}

func init() {
	RollbackCmd.Flags().StringVar(&rollbackBackup, "backup", "",
		"Snapshot to restore (default: the newest one)")
}
