// Package internal contains the implementation packages for the nbuild CLI.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - build: Ordered build steps (clean, bundle, replace, service worker) and metrics
//   - config: Viper-backed configuration with validation and command allowlisting
//   - devserver: Dev server launcher and process-wide shutdown hooks
//   - envsubst: Environment replacement table and bundle rewriting
//   - errors: Typed errors with codes, context, and build step metadata
//   - livereload: WebSocket hub and output directory watcher for browser reloads
//   - logging: Structured logging on top of log/slog
//   - watcher: Debounced fsnotify watching with filters
//   - workbox: Service worker generator configuration
//   - version: Build information injected through ldflags
//
// # Data Flow
//
// A watch session wires the packages together:
//
//   - Watcher reports source changes and triggers a pipeline run
//   - Pipeline runs the build steps and notifies write callbacks on success
//   - The first write callback starts the dev server through the launcher
//   - Livereload watches the output directory and tells browsers to refresh
//   - Shutdown hooks terminate the dev server when the process exits
//
// # Security Considerations
//
// Every external command is checked against an allowlist in the config
// package, and arguments carrying shell metacharacters are rejected before
// anything is executed. Paths in the configuration must stay relative to the
// project root.
package internal
