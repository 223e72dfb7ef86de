package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/neatbudget/nbuild/internal/build"
	"github.com/neatbudget/nbuild/internal/config"
	"github.com/neatbudget/nbuild/internal/workbox"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Run one production build",
	Long: `Run the build pipeline once in production mode:

  1. remove stale service-worker artifacts (public/workbox-*)
  2. bundle src/main.js into public/build/bundle.js (minified)
  3. bake NODE_ENV, NETLIFY, the FIREBASE_*_DEV values and .env into the bundle
  4. regenerate public/service-worker.js with the versioned cache id

Examples:
  nbuild build                    # Production build
  nbuild build --dev              # Unminified build with NODE_ENV=development`,
	RunE: runBuild,
}

var buildDev bool

// Seams for tests.
var (
	newRunner = func() build.Runner { return build.NewExecRunner() }
	newFs     = afero.NewOsFs
)

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolVar(&buildDev, "dev", false, "Build in development mode")
	addConfigFlags(buildCmd, buildFlags)
}

func runBuild(cmd *cobra.Command, args []string) error {
	if err := applyConfigFlags(cmd.Flags(), viper.GetViper(), buildFlags); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	mode := build.ModeProduction
	if buildDev {
		mode = build.ModeDevelopment
	}

	logger := newLogger()
	pipeline := build.NewPipeline(mode, newFs(), logger, build.Steps(cfg, newRunner(), os.LookupEnv)...)

	result := pipeline.Run(commandContext(cmd))
	if result.Error != nil {
		return fmt.Errorf("build failed: %w", result.Error)
	}

	printSummary(cmd.OutOrStdout(), cfg, result)
	return nil
}

func printSummary(w io.Writer, cfg *config.Config, result build.Result) {
	fmt.Fprintf(w, "Build completed (%s) in %s\n", result.Mode, result.Duration.Round(time.Millisecond))

	var total int64
	for _, a := range result.Artifacts {
		total += a.Size
		fmt.Fprintf(w, "  %-40s %10s\n", a.Path, humanize.Bytes(uint64(a.Size)))
	}
	if len(result.Artifacts) > 1 {
		fmt.Fprintf(w, "  %-40s %10s\n", "total", humanize.Bytes(uint64(total)))
	}
	if cfg.ServiceWorker.Enabled {
		fmt.Fprintf(w, "Service worker cache: %s\n", workbox.CacheID(cfg.ServiceWorker.CachePrefix, cfg.ServiceWorker.Version))
	}
}
