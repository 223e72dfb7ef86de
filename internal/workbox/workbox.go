// Package workbox renders the configuration module consumed by the workbox
// service-worker generator.
package workbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"text/template"

	"github.com/spf13/afero"

	"github.com/neatbudget/nbuild/internal/config"
	nberrors "github.com/neatbudget/nbuild/internal/errors"
)

// CacheID joins the cache prefix and app version. Bumping the version makes
// clients discard caches created by older service workers.
func CacheID(prefix, version string) string {
	if version == "" {
		return prefix
	}
	return prefix + "-" + version
}

// Rule routes requests for one resource destination to a caching strategy.
type Rule struct {
	Destination string
	Handler     string
	CacheName   string
}

// Options is the rendered subset of the generateSW options.
type Options struct {
	SwDest                string
	GlobDirectory         string
	GlobPatterns          []string
	CacheID               string
	NavigateFallback      string
	CleanupOutdatedCaches bool
	SkipWaiting           bool
	RuntimeCaching        []Rule
}

// FromConfig maps the service_worker section onto generator options.
func FromConfig(cfg config.ServiceWorkerConfig) Options {
	rules := make([]Rule, 0, len(cfg.RuntimeCaching))
	for _, r := range cfg.RuntimeCaching {
		rules = append(rules, Rule{Destination: r.Destination, Handler: r.Handler, CacheName: r.CacheName})
	}
	return Options{
		SwDest:                cfg.SwDest,
		GlobDirectory:         cfg.GlobDirectory,
		GlobPatterns:          cfg.GlobPatterns,
		CacheID:               CacheID(cfg.CachePrefix, cfg.Version),
		NavigateFallback:      cfg.NavigateFallback,
		CleanupOutdatedCaches: cfg.CleanupOutdatedCaches,
		SkipWaiting:           cfg.SkipWaiting,
		RuntimeCaching:        rules,
	}
}

var configTemplate = template.Must(template.New("workbox-config").Funcs(template.FuncMap{
	"js": jsValue,
}).Parse(`// Generated by nbuild. Do not edit.
module.exports = {
  swDest: {{js .SwDest}},
  globDirectory: {{js .GlobDirectory}},
  globPatterns: {{js .GlobPatterns}},
  cacheId: {{js .CacheID}},
{{- if .NavigateFallback}}
  navigateFallback: {{js .NavigateFallback}},
{{- end}}
  cleanupOutdatedCaches: {{.CleanupOutdatedCaches}},
  skipWaiting: {{.SkipWaiting}},
  runtimeCaching: [
{{- range .RuntimeCaching}}
    {
      urlPattern: ({ request }) => request.destination === {{js .Destination}},
      handler: {{js .Handler}},
      options: { cacheName: {{js .CacheName}} },
    },
{{- end}}
  ],
};
`))

// Render produces the workbox-config.js source.
func Render(opts Options) ([]byte, error) {
	if opts.GlobPatterns == nil {
		opts.GlobPatterns = []string{}
	}
	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, opts); err != nil {
		return nil, nberrors.NewInternalError(nberrors.ErrCodeServiceWorker, "cannot render workbox config", err)
	}
	return buf.Bytes(), nil
}

// WriteConfig renders opts to path, creating parent directories.
func WriteConfig(fs afero.Fs, path string, opts Options) error {
	src, err := Render(opts)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nberrors.NewIOError(nberrors.ErrCodeServiceWorker, "cannot create workbox config directory", err).WithFile(path)
	}
	if err := afero.WriteFile(fs, path, src, 0644); err != nil {
		return nberrors.NewIOError(nberrors.ErrCodeServiceWorker, "cannot write workbox config", err).WithFile(path)
	}
	return nil
}

func jsValue(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %v: %w", v, err)
	}
	return string(b), nil
}
