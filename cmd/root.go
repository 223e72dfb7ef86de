package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/neatbudget/nbuild/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "nbuild",
	Short: "Build and watch driver for the neatBudget web app",
	Long: `nbuild bundles the neatBudget web app, bakes build-time environment values
into the bundle, regenerates the offline service worker, and in watch mode
keeps a dev server and live reload running while sources change.

Quick Start:
  nbuild build                    Production build into public/
  nbuild watch                    Development build, dev server and live reload
  nbuild config show              Print the effective configuration

Command Aliases:
  build (b), watch (w, dev)`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .nbuild.yml, can also use NBUILD_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig picks the config file (--config, then NBUILD_CONFIG_FILE, then
// .nbuild.yml in the working directory) and binds NBUILD_<SECTION>_<KEY>
// environment overrides.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("NBUILD_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".nbuild")
	}

	viper.SetEnvPrefix("NBUILD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// A missing file is fine; defaults apply.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogger builds the process logger from the --log-level and --log-format
// flags. An unknown level falls back to info.
func newLogger() logging.Logger {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(viper.GetString("log-level")); err == nil {
		cfg.Level = level
	}
	if viper.GetString("log-format") == "json" {
		cfg.Format = "json"
	}
	return logging.NewLogger(cfg)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
