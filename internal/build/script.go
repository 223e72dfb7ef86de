package build

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/afero"

	"github.com/neatbudget/nbuild/internal/config"
	nberrors "github.com/neatbudget/nbuild/internal/errors"
)

// ScriptCommand runs the generated build script.
const ScriptCommand = "node"

// ScriptOptions are the esbuild API options rendered into the build script.
type ScriptOptions struct {
	Input      string
	Output     string
	Format     string
	GlobalName string
	Sourcemap  bool
	Minify     bool
	Extensions []string
	NodePaths  []string
	// Dev turns on the Svelte compiler's runtime checks.
	Dev bool
}

// NewScriptOptions derives script options from the build section for mode.
func NewScriptOptions(cfg config.BuildConfig, mode Mode) ScriptOptions {
	opts := ScriptOptions{
		Input:      cfg.Input,
		Output:     cfg.Output,
		Format:     cfg.Format,
		Sourcemap:  cfg.Sourcemap,
		Minify:     mode == ModeProduction,
		Extensions: cfg.Extensions,
		NodePaths:  cfg.IncludePaths,
		Dev:        mode == ModeDevelopment,
	}
	if cfg.Format == "iife" {
		opts.GlobalName = cfg.Name
	}
	return opts
}

// Stylesheet is where esbuild writes the CSS extracted from components: next
// to the bundle, with a .css extension.
func Stylesheet(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".css"
}

var scriptTemplate = template.Must(template.New("esbuild-config").Funcs(template.FuncMap{
	"js": jsValue,
}).Parse(`// Generated by nbuild. Do not edit.
import { build } from "esbuild";
import sveltePlugin from "esbuild-svelte";

await build({
  entryPoints: [{{js .Input}}],
  bundle: true,
  outfile: {{js .Output}},
  format: {{js .Format}},
{{- if .GlobalName}}
  globalName: {{js .GlobalName}},
{{- end}}
  sourcemap: {{.Sourcemap}},
  minify: {{.Minify}},
  resolveExtensions: {{js .Extensions}},
  nodePaths: {{js .NodePaths}},
  mainFields: ["svelte", "browser", "module", "main"],
  conditions: ["svelte", "browser"],
  plugins: [sveltePlugin({ compilerOptions: { dev: {{.Dev}} } })],
  logLevel: "warning",
});
`))

// RenderScript produces the build script source.
func RenderScript(opts ScriptOptions) ([]byte, error) {
	if opts.Extensions == nil {
		opts.Extensions = []string{}
	}
	if opts.NodePaths == nil {
		opts.NodePaths = []string{}
	}
	var buf bytes.Buffer
	if err := scriptTemplate.Execute(&buf, opts); err != nil {
		return nil, nberrors.NewInternalError(nberrors.ErrCodeBundleFailed, "cannot render build script", err)
	}
	return buf.Bytes(), nil
}

// WriteScript renders opts to path, creating parent directories.
func WriteScript(fs afero.Fs, path string, opts ScriptOptions) error {
	src, err := RenderScript(opts)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nberrors.WrapIO(err, nberrors.ErrCodeBundleFailed, "cannot create build script directory").WithFile(path)
	}
	if err := afero.WriteFile(fs, path, src, 0644); err != nil {
		return nberrors.WrapIO(err, nberrors.ErrCodeBundleFailed, "cannot write build script").WithFile(path)
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
