package cli

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsToViper(t *testing.T) {
	root := &cobra.Command{Use: "credsync"}
	AddBoolFlag(root.PersistentFlags(), "dry-run", "dry_run", false, "")
	child := &cobra.Command{Use: "check", RunE: func(*cobra.Command, []string) error { return nil }}
	AddStringFlag(child.Flags(), "source-host", "source.host", "/var/run/postgresql", "")
	AddIntFlag(child.Flags(), "source-port", "source.port", 5432, "")
	AddDurationFlag(child.Flags(), "restart-timeout", "service.restart_timeout", 30*time.Second, "")
	root.AddCommand(child)

	root.SetArgs([]string{"check", "--source-host", "db", "--restart-timeout", "5s", "--dry-run"})
	require.NoError(t, root.Execute())

	v := viper.New()
	require.NoError(t, BindFlagsToViper(child, v))

	assert.Equal(t, "db", v.GetString("source.host"))
	assert.Equal(t, 5432, v.GetInt("source.port"))
	assert.Equal(t, 5*time.Second, v.GetDuration("service.restart_timeout"))
	assert.True(t, v.GetBool("dry_run"))
}

func TestViperKeyFallsBackToName(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().String("plain", "", "")
	assert.Equal(t, "plain", ViperKey(cmd.Flags().Lookup("plain")))
}
