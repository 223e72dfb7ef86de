// Package cmd provides the command-line interface for nbuild.
//
// # Available Commands
//
//   - build: one production build (bundle, environment substitution, service worker)
//   - watch: development builds on every source change, plus the dev server and live reload
//   - config show: print the effective configuration as YAML or JSON
//   - version: print build information
//
// # Configuration
//
// Settings come from, highest priority first:
//
//  1. Command-line flags
//  2. NBUILD_<SECTION>_<KEY> environment variables (NBUILD_BUILD_OUTPUT, NBUILD_LIVERELOAD_PORT, ...)
//  3. The file named by --config or NBUILD_CONFIG_FILE
//  4. .nbuild.yml in the working directory
//  5. Built-in defaults
//
// # Examples
//
//	nbuild build --log-level debug
//	NBUILD_SERVICE_WORKER_VERSION=0.0.2-0 nbuild build
//	nbuild watch --no-livereload
//	nbuild config show --format json
package cmd
