package cmd

import (
	"testing"

	"github.com/CodeMonkeyCybersecurity/credsync/pkg/cli"
	"github.com/CodeMonkeyCybersecurity/credsync/pkg/config"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFlagsMapToConfigKeys(t *testing.T) {
	known := viper.New()
	config.SetDefaults(known)
	keys := map[string]bool{}
	for _, k := range known.AllKeys() {
		keys[k] = true
	}

	bound := 0
	RootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		if _, ok := f.Annotations[cli.ViperKeyAnnotation]; !ok {
			return
		}
		key := cli.ViperKey(f)
		bound++
		assert.True(t, keys[key], "flag --%s bound to unknown key %q", f.Name, key)
	})
	assert.Greater(t, bound, 10)
}

func TestRollbackHasBackupFlag(t *testing.T) {
	f := RollbackCmd.Flags().Lookup("backup")
	if assert.NotNil(t, f) {
		assert.Empty(t, f.DefValue)
	}
}
