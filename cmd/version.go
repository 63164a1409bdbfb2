// cmd/version.go

package cmd

import (
	"fmt"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/shared"
	"github.com/spf13/cobra"
)

// VersionCmd prints the build version. It skips configuration loading so
// it works on hosts without a config file.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the credsync version",
	Args:  cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "credsync "+shared.Version)
	},
}
