package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// configFlag is a command line flag that overrides a config key.
type configFlag struct {
	name  string
	key   string
	usage string
	add   func(fs *pflag.FlagSet, name, usage string)
}

var buildFlags = []configFlag{
	{name: "output", key: "build.output", usage: "Bundle output file", add: stringFlag},
	{name: "sourcemap", key: "build.sourcemap", usage: "Emit a source map", add: boolFlag},
	{name: "dotenv", key: "env.dotenv", usage: "Dotenv file read before replacement", add: stringFlag},
	{name: "strict-env", key: "env.strict", usage: "Fail when a replaced variable is unset", add: boolFlag},
	{name: "no-service-worker", key: "service_worker.enabled", usage: "Skip service worker generation", add: boolFlag},
}

var watchFlags = []configFlag{
	{name: "debounce", key: "watch.debounce", usage: "Quiet period before a rebuild", add: durationFlag},
	{name: "livereload-port", key: "livereload.port", usage: "Live reload listen port", add: intFlag},
}

func stringFlag(fs *pflag.FlagSet, name, usage string)   { fs.String(name, "", usage) }
func boolFlag(fs *pflag.FlagSet, name, usage string)     { fs.Bool(name, false, usage) }
func intFlag(fs *pflag.FlagSet, name, usage string)      { fs.Int(name, 0, usage) }
func durationFlag(fs *pflag.FlagSet, name, usage string) { fs.Duration(name, 0, usage) }

// addConfigFlags registers flags on cmd. Values reach viper only when the
// flag was set, so config files and NBUILD_ variables keep their precedence
// otherwise.
func addConfigFlags(cmd *cobra.Command, flags []configFlag) {
	for _, f := range flags {
		f.add(cmd.Flags(), f.name, f.usage)
	}
}

// applyConfigFlags copies changed flags into v. Flags missing from fs are
// skipped.
func applyConfigFlags(fs *pflag.FlagSet, v *viper.Viper, flags []configFlag) error {
	for _, f := range flags {
		flag := fs.Lookup(f.name)
		if flag == nil || !flag.Changed {
			continue
		}
		if f.key == "" {
			return fmt.Errorf("flag %q has no config key", f.name)
		}
		value := flag.Value.String()
		// --no-service-worker inverts its key.
		if f.name == "no-service-worker" {
			if value == "true" {
				v.Set(f.key, false)
			}
			continue
		}
		v.Set(f.key, value)
	}
	return nil
}
