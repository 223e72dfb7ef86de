package cmd

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/neatbudget/nbuild/internal/build"
	"github.com/neatbudget/nbuild/internal/config"
	"github.com/neatbudget/nbuild/internal/devserver"
	nberrors "github.com/neatbudget/nbuild/internal/errors"
	"github.com/neatbudget/nbuild/internal/livereload"
	"github.com/neatbudget/nbuild/internal/logging"
	"github.com/neatbudget/nbuild/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w", "dev"},
	Short:   "Rebuild on source changes with dev server and live reload",
	Long: `Build in development mode, then rebuild whenever a source file changes.

After the first successful build the dev server (npm run start -- --dev) is
started once for the whole session. Browsers connected to the live reload
endpoint reload when public/ changes. Ctrl+C or SIGTERM stops the dev server
and exits.

Examples:
  nbuild watch                    # Watch src/ with dev server and live reload
  nbuild watch --no-dev-server    # Rebuild and live reload only
  nbuild watch --verbose          # Log every changed file`,
	RunE: runWatch,
}

var (
	watchVerbose     bool
	watchNoDevServer bool
	watchNoReload    bool
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "Log every changed file")
	watchCmd.Flags().BoolVar(&watchNoDevServer, "no-dev-server", false, "Do not start the dev server")
	watchCmd.Flags().BoolVar(&watchNoReload, "no-livereload", false, "Do not start the live reload server")
	addConfigFlags(watchCmd, watchFlags)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := applyConfigFlags(cmd.Flags(), viper.GetViper(), watchFlags); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if watchNoDevServer {
		cfg.DevServer.Enabled = false
	}
	if watchNoReload {
		cfg.LiveReload.Enabled = false
	}

	logger := newLogger()

	hooks := devserver.NewSignalHooks(os.Interrupt, syscall.SIGTERM)
	defer hooks.Exit()

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()
	hooks.OnShutdown(func(reason devserver.ShutdownReason) {
		logger.Info(ctx, "Shutting down", "reason", reason.String())
		cancel()
	})

	session, err := newWatchSession(ctx, cfg, logger, hooks, devserver.NewExecSpawner(logger))
	if err != nil {
		return err
	}
	defer session.close()

	logger.Info(ctx, "Watching for changes (Press Ctrl+C to stop)", "paths", cfg.Watch.Paths)
	<-ctx.Done()
	return nil
}

// watchSession wires the development pipeline, the dev server launcher, the
// live reload server and the source watcher for one run of `nbuild watch`.
type watchSession struct {
	pipeline   *build.Pipeline
	launcher   *devserver.Launcher
	livereload *livereload.Server
	watcher    *watcher.FileWatcher
	logger     logging.Logger
}

func newWatchSession(
	ctx context.Context,
	cfg *config.Config,
	logger logging.Logger,
	shutdown devserver.ShutdownSource,
	spawner devserver.Spawner,
) (*watchSession, error) {
	s := &watchSession{logger: logger}

	// Started first so the loader added to the bundle names the bound port.
	if cfg.LiveReload.Enabled {
		s.livereload = livereload.NewServer(cfg.LiveReload, logger)
		if err := s.livereload.Start(ctx, cfg.Watch.Debounce); err != nil {
			return nil, fmt.Errorf("failed to start live reload: %w", err)
		}
		cfg.LiveReload.Port = s.livereload.Port()
	}

	s.pipeline = build.NewPipeline(build.ModeDevelopment, newFs(), logger, build.Steps(cfg, newRunner(), os.LookupEnv)...)

	if cfg.DevServer.Enabled {
		s.launcher = devserver.NewLauncher(
			devserver.Command{Line: cfg.DevServer.Command, Dir: cfg.DevServer.Dir},
			spawner,
			shutdown,
			logger,
		)
		s.pipeline.OnWrite(func(build.Result) {
			if err := s.launcher.EnsureStarted(ctx); err != nil {
				logger.Error(ctx, err, "Dev server did not start")
			}
		})
	}

	fw, err := watcher.NewFileWatcher(cfg.Watch.Debounce, cfg.Watch.Ignore, logger)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	s.watcher = fw
	fw.AddFilter(watcher.SourceFilter)
	fw.AddFilter(watcher.NoEditorTempFilter)
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		s.logChanges(ctx, events)
		s.reportFailure(ctx, s.pipeline.Run(ctx).Error)
		return nil
	})
	for _, path := range cfg.Watch.Paths {
		if err := fw.AddRecursive(path); err != nil {
			logger.Warn(ctx, err, "Cannot watch path", "path", path)
		}
	}

	// A failed first build still leaves the session watching.
	s.reportFailure(ctx, s.pipeline.Run(ctx).Error)

	if err := fw.Start(ctx); err != nil {
		s.close()
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}
	return s, nil
}

// reportFailure logs a failed build. Recoverable build errors wait for the next change;
// anything else is logged as an error.
func (s *watchSession) reportFailure(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if nberrors.IsBuildError(err) && nberrors.IsRecoverable(err) {
		s.logger.Warn(ctx, err, "Build failed, waiting for changes")
		return
	}
	s.logger.Error(ctx, err, "Build failed")
}

func (s *watchSession) logChanges(ctx context.Context, events []watcher.ChangeEvent) {
	if !watchVerbose {
		s.logger.Info(ctx, "Files changed, rebuilding", "count", len(events))
		return
	}
	for _, e := range events {
		s.logger.Info(ctx, "File changed", "type", e.Type.String(), "path", e.Path)
	}
}

func (s *watchSession) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.watcher != nil {
		_ = s.watcher.Stop()
	}
	if s.livereload != nil {
		if err := s.livereload.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, err, "Live reload shutdown")
		}
	}
	if s.launcher != nil {
		s.launcher.Stop(ctx)
	}

	if s.pipeline == nil {
		return
	}
	m := s.pipeline.Metrics()
	s.logger.Info(ctx, "Watch session ended",
		"builds", m.TotalBuilds, "failed", m.FailedBuilds,
		"success_rate", fmt.Sprintf("%.0f%%", m.SuccessRate()), "avg_duration", m.AverageDuration)
}
