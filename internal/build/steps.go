package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/neatbudget/nbuild/internal/config"
	"github.com/neatbudget/nbuild/internal/envsubst"
	nberrors "github.com/neatbudget/nbuild/internal/errors"
	"github.com/neatbudget/nbuild/internal/livereload"
	"github.com/neatbudget/nbuild/internal/logging"
	"github.com/neatbudget/nbuild/internal/workbox"
)

// Steps returns the configured steps in run order.
func Steps(cfg *config.Config, runner Runner, lookup envsubst.Lookup) []Step {
	steps := []Step{
		&CleanStep{Patterns: cfg.Build.Clean},
		&BundleStep{Config: cfg.Build, Runner: runner},
		&ReplaceStep{Env: cfg.Env, Files: []string{cfg.Build.Output}, Lookup: lookup},
	}
	if cfg.LiveReload.Enabled {
		steps = append(steps, &LiveReloadStep{
			Host:  cfg.LiveReload.Host,
			Port:  cfg.LiveReload.Port,
			Files: []string{cfg.Build.Output},
		})
	}
	if cfg.ServiceWorker.Enabled {
		steps = append(steps, &ServiceWorkerStep{Config: cfg.ServiceWorker, Runner: runner})
	}
	return steps
}

// CleanStep removes stale artifacts matching glob patterns.
type CleanStep struct {
	Patterns []string
}

func (s *CleanStep) Name() string { return "clean" }

func (s *CleanStep) Execute(ctx context.Context, b *Build) error {
	removed := 0
	for _, pattern := range s.Patterns {
		matches, err := afero.Glob(b.Fs, pattern)
		if err != nil {
			return nberrors.WrapBuild(err, nberrors.ErrCodeCleanFailed, "invalid clean pattern "+pattern, s.Name())
		}
		for _, match := range matches {
			if err := b.Fs.RemoveAll(match); err != nil {
				return nberrors.WrapBuild(err, nberrors.ErrCodeCleanFailed, "cannot remove "+match, s.Name()).WithFile(match)
			}
			removed++
		}
	}
	if removed > 0 {
		b.Logger.Debug(ctx, "Removed stale artifacts", "count", removed)
	}
	return nil
}

// BundleStep runs the external bundler.
type BundleStep struct {
	Config config.BuildConfig
	Runner Runner
}

func (s *BundleStep) Name() string { return "bundle" }

// usesScript reports whether the bundle is built by the generated script.
func (s *BundleStep) usesScript() bool {
	return s.Config.Svelte && len(s.Config.Args) == 0
}

// Invocation derives the bundler command line. Explicit build.args replace the
// derived arguments; Svelte builds run the generated script.
func (s *BundleStep) Invocation(mode Mode) Invocation {
	inv := Invocation{
		Command: s.Config.Command,
		Timeout: s.Config.Timeout,
	}
	if len(s.Config.IncludePaths) > 0 {
		inv.Env = []string{"NODE_PATH=" + strings.Join(s.Config.IncludePaths, string(os.PathListSeparator))}
	}

	if len(s.Config.Args) > 0 {
		inv.Args = append([]string(nil), s.Config.Args...)
		return inv
	}
	if s.Config.Svelte {
		inv.Command = ScriptCommand
		inv.Args = []string{s.Config.Script}
		return inv
	}

	args := []string{
		s.Config.Input,
		"--bundle",
		"--outfile=" + s.Config.Output,
		"--format=" + s.Config.Format,
	}
	if s.Config.Format == "iife" && s.Config.Name != "" {
		args = append(args, "--global-name="+s.Config.Name)
	}
	if s.Config.Sourcemap {
		args = append(args, "--sourcemap")
	}
	if len(s.Config.Extensions) > 0 {
		args = append(args, "--resolve-extensions="+strings.Join(s.Config.Extensions, ","))
	}
	if mode == ModeProduction {
		args = append(args, "--minify")
	}
	inv.Args = args
	return inv
}

func (s *BundleStep) Execute(ctx context.Context, b *Build) error {
	if s.Config.Output != "" {
		if err := b.Fs.MkdirAll(filepath.Dir(s.Config.Output), 0755); err != nil {
			return nberrors.WrapBuild(err, nberrors.ErrCodeBundleFailed, "cannot create output directory", s.Name())
		}
	}

	if s.usesScript() {
		if err := WriteScript(b.Fs, s.Config.Script, NewScriptOptions(s.Config, b.Mode)); err != nil {
			return nberrors.WrapBuild(err, nberrors.ErrCodeBundleFailed, "cannot prepare build script", s.Name())
		}
	}

	inv := s.Invocation(b.Mode)
	b.Logger.Debug(ctx, "Running bundler", "command", inv.String())

	output, err := s.Runner.Run(ctx, inv)
	if err != nil {
		return nberrors.WrapBuild(err, nberrors.ErrCodeBundleFailed, "bundler failed", s.Name()).
			WithContext("command", inv.String())
	}
	if len(output) > 0 {
		b.Logger.Debug(ctx, "Bundler output", "output", strings.TrimSpace(string(output)))
	}

	b.AddArtifact(s.Config.Output)
	optional := []string{Stylesheet(s.Config.Output)}
	if s.Config.Sourcemap {
		optional = append(optional, s.Config.Output+".map")
	}
	for _, path := range optional {
		if _, err := b.Fs.Stat(path); err == nil {
			b.AddArtifact(path)
		}
	}
	return nil
}

// ReplaceStep bakes environment values into the emitted files.
type ReplaceStep struct {
	Env    config.EnvConfig
	Files  []string
	Lookup envsubst.Lookup
}

func (s *ReplaceStep) Name() string { return "replace" }

func (s *ReplaceStep) Execute(ctx context.Context, b *Build) error {
	dotenv, err := envsubst.LoadDotenv(b.Fs, s.Env.Dotenv)
	if err != nil {
		return nberrors.WrapBuild(err, nberrors.ErrCodeDotenv, "cannot load dotenv file", s.Name())
	}

	table, err := envsubst.BuildTable(envsubst.Options{
		Production:  b.Mode == ModeProduction,
		PlatformVar: s.Env.PlatformVar,
		Variables:   s.Env.Variables,
		Dotenv:      dotenv,
		Strict:      s.Env.Strict,
	}, s.Lookup)
	if err != nil {
		return nberrors.WrapBuild(err, nberrors.ErrCodeMissingEnv, "cannot resolve environment", s.Name())
	}

	if missing := envsubst.Missing(s.Env.Variables, envsubst.WithDotenv(s.Lookup, dotenv)); len(missing) > 0 {
		b.Logger.Warn(ctx, nil, "Environment variables not set, substituting undefined", "variables", missing)
	}
	for _, key := range table.Keys() {
		b.Logger.Debug(ctx, "Substitution", "token", key, "value", logging.SanitizeForLog(key, table[key]))
	}

	replacer, err := envsubst.NewReplacer(table, s.Env.DelimiterLeft, s.Env.DelimiterRight)
	if err != nil {
		return nberrors.WrapBuild(err, nberrors.ErrCodeReplaceFailed, "cannot compile replacements", s.Name())
	}

	for _, file := range s.Files {
		n, err := replacer.ReplaceFile(b.Fs, file)
		if err != nil {
			return nberrors.WrapBuild(err, nberrors.ErrCodeReplaceFailed, "cannot rewrite "+file, s.Name()).WithFile(file)
		}
		b.Logger.Debug(ctx, "Replaced environment tokens", "file", file, "count", n)
	}
	return nil
}

// LiveReloadStep adds the live reload loader to development bundles so the
// page connects to the reload server. Production builds are left untouched.
type LiveReloadStep struct {
	Host  string
	Port  int
	Files []string
}

func (s *LiveReloadStep) Name() string { return "livereload" }

func (s *LiveReloadStep) Execute(ctx context.Context, b *Build) error {
	if b.Mode == ModeProduction {
		return nil
	}
	loader := livereload.Loader(s.Host, s.Port)
	for _, file := range s.Files {
		injected, err := livereload.InjectFile(b.Fs, file, loader)
		if err != nil {
			return nberrors.WrapBuild(err, nberrors.ErrCodeLiveReload, "cannot add live reload loader", s.Name()).WithFile(file)
		}
		if injected {
			b.Logger.Debug(ctx, "Added live reload loader", "file", file, "port", s.Port)
		}
	}
	return nil
}

// ServiceWorkerStep writes the workbox config and runs the generator.
type ServiceWorkerStep struct {
	Config config.ServiceWorkerConfig
	Runner Runner
}

func (s *ServiceWorkerStep) Name() string { return "service-worker" }

func (s *ServiceWorkerStep) Invocation() Invocation {
	return Invocation{
		Command: s.Config.Command,
		Args:    []string{"generateSW", s.Config.ConfigFile},
	}
}

func (s *ServiceWorkerStep) Execute(ctx context.Context, b *Build) error {
	opts := workbox.FromConfig(s.Config)
	if err := workbox.WriteConfig(b.Fs, s.Config.ConfigFile, opts); err != nil {
		return nberrors.WrapBuild(err, nberrors.ErrCodeServiceWorker, "cannot write workbox config", s.Name())
	}

	inv := s.Invocation()
	output, err := s.Runner.Run(ctx, inv)
	if err != nil {
		return nberrors.WrapBuild(err, nberrors.ErrCodeServiceWorker, "service worker generation failed", s.Name()).
			WithContext("command", inv.String())
	}
	if len(output) > 0 {
		b.Logger.Debug(ctx, "Generator output", "output", strings.TrimSpace(string(output)))
	}

	b.Logger.Info(ctx, "Service worker generated", "cache_id", opts.CacheID)
	b.AddArtifact(s.Config.SwDest)
	return nil
}
