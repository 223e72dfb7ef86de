// Package config provides configuration management for nbuild using Viper for
// loading from .nbuild.yml, NBUILD_* environment variables, and command-line
// flags.
//
// The configuration drives the external bundler invocation, build-time
// environment substitution, the service-worker generator, the dev server that
// watch mode launches, live reload, and the source watcher.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Build         BuildConfig         `mapstructure:"build" yaml:"build" json:"build"`
	Env           EnvConfig           `mapstructure:"env" yaml:"env" json:"env"`
	ServiceWorker ServiceWorkerConfig `mapstructure:"service_worker" yaml:"service_worker" json:"service_worker"`
	DevServer     DevServerConfig     `mapstructure:"dev_server" yaml:"dev_server" json:"dev_server"`
	LiveReload    LiveReloadConfig    `mapstructure:"livereload" yaml:"livereload" json:"livereload"`
	Watch         WatchConfig         `mapstructure:"watch" yaml:"watch" json:"watch"`
}

// BuildConfig parameterizes the external bundler. With Svelte set and no
// Args, a build script using the esbuild API and esbuild-svelte is written to
// Script and run with node. Otherwise Command runs with Args, or with esbuild
// CLI arguments derived from the fields below.
type BuildConfig struct {
	Command      string        `mapstructure:"command" yaml:"command" json:"command"`
	Args         []string      `mapstructure:"args" yaml:"args,omitempty" json:"args,omitempty"`
	Svelte       bool          `mapstructure:"svelte" yaml:"svelte" json:"svelte"`
	Script       string        `mapstructure:"script" yaml:"script" json:"script"`
	Input        string        `mapstructure:"input" yaml:"input" json:"input"`
	Output       string        `mapstructure:"output" yaml:"output" json:"output"`
	Format       string        `mapstructure:"format" yaml:"format" json:"format"`
	Name         string        `mapstructure:"name" yaml:"name" json:"name"`
	Sourcemap    bool          `mapstructure:"sourcemap" yaml:"sourcemap" json:"sourcemap"`
	IncludePaths []string      `mapstructure:"include_paths" yaml:"include_paths" json:"include_paths"`
	Extensions   []string      `mapstructure:"extensions" yaml:"extensions" json:"extensions"`
	Clean        []string      `mapstructure:"clean" yaml:"clean" json:"clean"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// EnvConfig lists the variables baked into the bundle at build time.
type EnvConfig struct {
	Dotenv         string   `mapstructure:"dotenv" yaml:"dotenv" json:"dotenv"`
	PlatformVar    string   `mapstructure:"platform_var" yaml:"platform_var" json:"platform_var"`
	Variables      []string `mapstructure:"variables" yaml:"variables" json:"variables"`
	Strict         bool     `mapstructure:"strict" yaml:"strict" json:"strict"`
	DelimiterLeft  string   `mapstructure:"delimiter_left" yaml:"delimiter_left" json:"delimiter_left"`
	DelimiterRight string   `mapstructure:"delimiter_right" yaml:"delimiter_right" json:"delimiter_right"`
}

// ServiceWorkerConfig parameterizes the workbox generateSW run.
type ServiceWorkerConfig struct {
	Enabled               bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Command               string        `mapstructure:"command" yaml:"command" json:"command"`
	ConfigFile            string        `mapstructure:"config_file" yaml:"config_file" json:"config_file"`
	SwDest                string        `mapstructure:"sw_dest" yaml:"sw_dest" json:"sw_dest"`
	GlobDirectory         string        `mapstructure:"glob_directory" yaml:"glob_directory" json:"glob_directory"`
	GlobPatterns          []string      `mapstructure:"glob_patterns" yaml:"glob_patterns" json:"glob_patterns"`
	CachePrefix           string        `mapstructure:"cache_prefix" yaml:"cache_prefix" json:"cache_prefix"`
	Version               string        `mapstructure:"version" yaml:"version" json:"version"`
	NavigateFallback      string        `mapstructure:"navigate_fallback" yaml:"navigate_fallback" json:"navigate_fallback"`
	CleanupOutdatedCaches bool          `mapstructure:"cleanup_outdated_caches" yaml:"cleanup_outdated_caches" json:"cleanup_outdated_caches"`
	SkipWaiting           bool          `mapstructure:"skip_waiting" yaml:"skip_waiting" json:"skip_waiting"`
	RuntimeCaching        []RuntimeRule `mapstructure:"runtime_caching" yaml:"runtime_caching" json:"runtime_caching"`
}

// RuntimeRule maps a request destination to a workbox strategy and cache name.
type RuntimeRule struct {
	Destination string `mapstructure:"destination" yaml:"destination" json:"destination"`
	Handler     string `mapstructure:"handler" yaml:"handler" json:"handler"`
	CacheName   string `mapstructure:"cache_name" yaml:"cache_name" json:"cache_name"`
}

// DevServerConfig describes the static dev server watch mode launches once.
type DevServerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Command string `mapstructure:"command" yaml:"command" json:"command"`
	Dir     string `mapstructure:"dir" yaml:"dir" json:"dir"`
}

type LiveReloadConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Host    string `mapstructure:"host" yaml:"host" json:"host"`
	Port    int    `mapstructure:"port" yaml:"port" json:"port"`
	Dir     string `mapstructure:"dir" yaml:"dir" json:"dir"`
}

type WatchConfig struct {
	Paths    []string      `mapstructure:"paths" yaml:"paths" json:"paths"`
	Ignore   []string      `mapstructure:"ignore" yaml:"ignore" json:"ignore"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
}

// DefaultFirebaseVariables are the identity/storage backend settings the web
// app reads as process.env.<NAME>.
var DefaultFirebaseVariables = []string{
	"FIREBASE_API_KEY_DEV",
	"FIREBASE_APP_ID_DEV",
	"FIREBASE_AUTH_DOMAIN_DEV",
	"FIREBASE_MEASUREMENT_ID_DEV",
	"FIREBASE_MESSAGING_ID_DEV",
	"FIREBASE_PROJECT_ID_DEV",
	"FIREBASE_STORAGE_BUCKET_DEV",
}

// DefaultRuntimeCaching mirrors the app's image/style/script caching rules.
func DefaultRuntimeCaching() []RuntimeRule {
	return []RuntimeRule{
		{Destination: "image", Handler: "CacheFirst", CacheName: "images"},
		{Destination: "style", Handler: "StaleWhileRevalidate", CacheName: "css"},
		{Destination: "script", Handler: "StaleWhileRevalidate", CacheName: "javascript"},
	}
}

// SetDefaults registers scalar defaults on v. Slices are defaulted after
// unmarshalling so an explicitly empty list in a file is still replaced.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("build.command", "npx esbuild")
	v.SetDefault("build.svelte", true)
	v.SetDefault("build.script", ".nbuild/esbuild.config.mjs")
	v.SetDefault("build.input", "src/main.js")
	v.SetDefault("build.output", "public/build/bundle.js")
	v.SetDefault("build.format", "iife")
	v.SetDefault("build.name", "app")
	v.SetDefault("build.sourcemap", true)
	v.SetDefault("build.timeout", 2*time.Minute)

	v.SetDefault("env.dotenv", ".env")
	v.SetDefault("env.platform_var", "NETLIFY")
	v.SetDefault("env.strict", false)

	v.SetDefault("service_worker.enabled", true)
	v.SetDefault("service_worker.command", "npx workbox-cli")
	v.SetDefault("service_worker.config_file", ".nbuild/workbox-config.js")
	v.SetDefault("service_worker.sw_dest", "public/service-worker.js")
	v.SetDefault("service_worker.glob_directory", "public/")
	v.SetDefault("service_worker.cache_prefix", "neatBudget")
	v.SetDefault("service_worker.version", "0.0.1-5")
	v.SetDefault("service_worker.navigate_fallback", "/index.html")
	v.SetDefault("service_worker.cleanup_outdated_caches", true)
	v.SetDefault("service_worker.skip_waiting", true)

	v.SetDefault("dev_server.enabled", true)
	v.SetDefault("dev_server.command", "npm run start -- --dev")
	v.SetDefault("dev_server.dir", ".")

	v.SetDefault("livereload.enabled", true)
	v.SetDefault("livereload.host", "localhost")
	v.SetDefault("livereload.port", 35729)
	v.SetDefault("livereload.dir", "public")

	v.SetDefault("watch.debounce", 300*time.Millisecond)
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals, defaults, and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	applySliceDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func applySliceDefaults(config *Config) {
	if len(config.Build.IncludePaths) == 0 {
		config.Build.IncludePaths = []string{"src"}
	}
	if len(config.Build.Extensions) == 0 {
		config.Build.Extensions = []string{".js", ".json", ".svelte"}
	}
	if len(config.Build.Clean) == 0 {
		config.Build.Clean = []string{"public/workbox-*"}
	}
	if len(config.Env.Variables) == 0 {
		config.Env.Variables = append([]string(nil), DefaultFirebaseVariables...)
	}
	if len(config.ServiceWorker.GlobPatterns) == 0 {
		config.ServiceWorker.GlobPatterns = []string{"**/*.{js,css,html}"}
	}
	if len(config.ServiceWorker.RuntimeCaching) == 0 {
		config.ServiceWorker.RuntimeCaching = DefaultRuntimeCaching()
	}
	if len(config.Watch.Paths) == 0 {
		config.Watch.Paths = []string{"src"}
	}
	if len(config.Watch.Ignore) == 0 {
		config.Watch.Ignore = []string{"node_modules", ".git"}
	}
}
