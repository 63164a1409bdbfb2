// pkg/eos_cli/wrap.go

package eos_cli

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_err"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/eos_io"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Wrap ensures panic recovery, telemetry, and lifecycle logging
func Wrap(fn func(rc *eos_io.RuntimeContext, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}

		rc := eos_io.NewContext(parent, cmd.Name())
		defer rc.End(&err)
		defer rc.HandlePanic(&err)

		eos_io.LogRuntimeExecutionContext(rc)
		rc.Log.Debug("Command arguments", zap.Strings("args", args))

		err = fn(rc, cmd, args)
		if err != nil && !eos_err.IsExpectedUserError(err) {
			err = cerr.WithStack(err)
		}
		return err
	}
}
