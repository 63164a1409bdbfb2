// pkg/cli/cli.go
//
// Flag helpers. Every flag carries the viper key it overrides, so one
// BindFlagsToViper call wires the whole command line into the config.
package cli

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ViperKeyAnnotation maps a flag to its configuration key.
const ViperKeyAnnotation = "credsync/viper-key"

func annotate(fs *pflag.FlagSet, name, key string) {
	if key == "" {
		return
	}
	// only fails for unknown flags, and name was just defined
	_ = fs.SetAnnotation(name, ViperKeyAnnotation, []string{key})
}

// AddStringFlag adds a string flag bound to key.
func AddStringFlag(fs *pflag.FlagSet, name, key, def, help string) {
	fs.String(name, def, help)
	annotate(fs, name, key)
}

// AddBoolFlag adds a boolean flag bound to key.
func AddBoolFlag(fs *pflag.FlagSet, name, key string, def bool, help string) {
	fs.Bool(name, def, help)
	annotate(fs, name, key)
}

// AddIntFlag adds an int flag bound to key.
func AddIntFlag(fs *pflag.FlagSet, name, key string, def int, help string) {
	fs.Int(name, def, help)
	annotate(fs, name, key)
}

// AddDurationFlag adds a duration flag bound to key.
func AddDurationFlag(fs *pflag.FlagSet, name, key string, def time.Duration, help string) {
	fs.Duration(name, def, help)
	annotate(fs, name, key)
}

// ViperKey returns the configuration key of f, or its name.
func ViperKey(f *pflag.Flag) string {
	if keys := f.Annotations[ViperKeyAnnotation]; len(keys) > 0 {
		return keys[0]
	}
	return f.Name
}

// BindFlagsToViper binds every flag visible to cmd (its own and inherited
// persistent flags) to v. Unset flags do not override file or env values.
func BindFlagsToViper(cmd *cobra.Command, v *viper.Viper) error {
	var result error
	bind := func(f *pflag.Flag) {
		if err := v.BindPFlag(ViperKey(f), f); err != nil {
			result = multierror.Append(result, fmt.Errorf("bind --%s: %w", f.Name, err))
		}
	}
	cmd.Flags().VisitAll(bind)
	cmd.InheritedFlags().VisitAll(bind)
	return result
}
