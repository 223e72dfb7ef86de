package config

import (
	"fmt"
	"path/filepath"
	"strings"

	nberrors "github.com/neatbudget/nbuild/internal/errors"
)

// AllowedCommands is the allowlist for the first word of every external
// command nbuild runs (bundler, service-worker generator, dev server).
var AllowedCommands = map[string]bool{
	"npx":         true,
	"npm":         true,
	"yarn":        true,
	"pnpm":        true,
	"node":        true,
	"esbuild":     true,
	"rollup":      true,
	"workbox":     true,
	"workbox-cli": true,
	"sirv":        true,
}

// WorkboxStrategies are the handler names workbox accepts for runtime caching.
var WorkboxStrategies = map[string]bool{
	"CacheFirst":           true,
	"CacheOnly":            true,
	"NetworkFirst":         true,
	"NetworkOnly":          true,
	"StaleWhileRevalidate": true,
}

var dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateBuildConfig(&config.Build); err != nil {
		return configError("build", err)
	}
	if err := validateEnvConfig(&config.Env); err != nil {
		return configError("env", err)
	}
	if err := validateServiceWorkerConfig(&config.ServiceWorker); err != nil {
		return configError("service_worker", err)
	}
	if err := validateDevServerConfig(&config.DevServer); err != nil {
		return configError("dev_server", err)
	}
	if err := validateLiveReloadConfig(&config.LiveReload); err != nil {
		return configError("livereload", err)
	}
	if err := validateWatchConfig(&config.Watch); err != nil {
		return configError("watch", err)
	}

	return nil
}

func configError(section string, cause error) error {
	ne := nberrors.NewConfigError(nberrors.ErrCodeConfigInvalid, section+" config")
	ne.Cause = cause
	return ne.WithContext("section", section)
}

func validateBuildConfig(config *BuildConfig) error {
	if err := ValidateCommandLine(config.Command); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	for _, arg := range config.Args {
		if err := ValidateArgument(arg); err != nil {
			return fmt.Errorf("invalid argument '%s': %w", arg, err)
		}
	}
	if config.Svelte && len(config.Args) == 0 {
		if err := validatePath(config.Script); err != nil {
			return fmt.Errorf("script: %w", err)
		}
	}
	for name, path := range map[string]string{"input": config.Input, "output": config.Output} {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	switch config.Format {
	case "iife", "esm", "cjs":
	default:
		return fmt.Errorf("format %q is not one of iife, esm, cjs", config.Format)
	}
	for _, path := range config.IncludePaths {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("include path: %w", err)
		}
	}
	for _, ext := range config.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("extension %q must start with a dot", ext)
		}
	}
	for _, target := range config.Clean {
		if err := validatePath(target); err != nil {
			return fmt.Errorf("clean target: %w", err)
		}
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}

	return nil
}

func validateEnvConfig(config *EnvConfig) error {
	if config.Dotenv != "" {
		if err := validatePath(config.Dotenv); err != nil {
			return fmt.Errorf("dotenv: %w", err)
		}
	}
	for _, name := range config.Variables {
		if !isEnvName(name) {
			return fmt.Errorf("variable name %q is not a valid environment variable name", name)
		}
	}
	if config.PlatformVar != "" && !isEnvName(config.PlatformVar) {
		return fmt.Errorf("platform_var %q is not a valid environment variable name", config.PlatformVar)
	}

	return nil
}

func validateServiceWorkerConfig(config *ServiceWorkerConfig) error {
	if !config.Enabled {
		return nil
	}
	if err := ValidateCommandLine(config.Command); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	for name, path := range map[string]string{
		"config_file":    config.ConfigFile,
		"sw_dest":        config.SwDest,
		"glob_directory": config.GlobDirectory,
	} {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if config.CachePrefix == "" || config.Version == "" {
		return fmt.Errorf("cache_prefix and version are required")
	}
	for i, rule := range config.RuntimeCaching {
		if rule.Destination == "" {
			return fmt.Errorf("runtime_caching[%d]: destination is required", i)
		}
		if !WorkboxStrategies[rule.Handler] {
			return fmt.Errorf("runtime_caching[%d]: unknown handler %q", i, rule.Handler)
		}
		if rule.CacheName == "" {
			return fmt.Errorf("runtime_caching[%d]: cache_name is required", i)
		}
	}

	return nil
}

func validateDevServerConfig(config *DevServerConfig) error {
	if !config.Enabled {
		return nil
	}
	if err := ValidateCommandLine(config.Command); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	if config.Dir != "" {
		if err := validatePath(config.Dir); err != nil {
			return fmt.Errorf("dir: %w", err)
		}
	}

	return nil
}

func validateLiveReloadConfig(config *LiveReloadConfig) error {
	if !config.Enabled {
		return nil
	}
	// 0 lets the OS pick a port, which tests rely on.
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}
	for _, char := range dangerousChars {
		if strings.Contains(config.Host, char) {
			return fmt.Errorf("host contains dangerous character: %s", char)
		}
	}

	return validatePath(config.Dir)
}

func validateWatchConfig(config *WatchConfig) error {
	for _, path := range config.Paths {
		if err := validatePath(path); err != nil {
			return fmt.Errorf("watch path: %w", err)
		}
	}
	if config.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative")
	}

	return nil
}

// ValidateCommandLine checks that the first word of a command line is on the
// allowlist and that no word carries shell metacharacters.
func ValidateCommandLine(command string) error {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return fmt.Errorf("empty command")
	}
	if !AllowedCommands[parts[0]] {
		return nberrors.NewValidationError(nberrors.ErrCodeCommandRejected,
			fmt.Sprintf("command '%s' is not allowed", parts[0]))
	}
	for _, arg := range parts[1:] {
		if err := ValidateArgument(arg); err != nil {
			return fmt.Errorf("invalid argument '%s': %w", arg, err)
		}
	}

	return nil
}

// ValidateArgument rejects shell metacharacters and path traversal.
func ValidateArgument(arg string) error {
	for _, char := range dangerousChars {
		if strings.Contains(arg, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}
	if strings.Contains(arg, "..") {
		return fmt.Errorf("path traversal attempt detected")
	}

	return nil
}

// validatePath validates a project-relative file path
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return nberrors.NewValidationError(nberrors.ErrCodeInvalidPath, "path contains traversal: "+path)
	}
	if filepath.IsAbs(cleanPath) {
		return nberrors.NewValidationError(nberrors.ErrCodeInvalidPath, "path should be relative: "+path)
	}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

func isEnvName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
