// Package envsubst bakes a fixed set of environment values into build output.
//
// A Table maps source tokens (process.env.NODE_ENV, _process, ...) to the
// literal JavaScript text that replaces them. Nothing is looked up at runtime
// in the shipped bundle.
package envsubst

import (
	"bytes"
	"encoding/json"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/subosito/gotenv"

	nberrors "github.com/neatbudget/nbuild/internal/errors"
)

const (
	// NodeEnvToken is replaced by "production" or "development".
	NodeEnvToken = "process.env.NODE_ENV"
	// ProcessToken is replaced by {"env": {...}} built from the dotenv file.
	ProcessToken = "_process"
	// Undefined is what a missing variable serializes to.
	Undefined = "undefined"
)

// Lookup resolves an environment variable. os.LookupEnv satisfies it.
type Lookup func(name string) (string, bool)

// Options selects what goes into a Table.
type Options struct {
	Production  bool
	PlatformVar string
	Variables   []string
	Dotenv      map[string]string
	// Strict turns a missing variable into an error instead of "undefined".
	Strict bool
}

// Table maps source tokens to replacement text.
type Table map[string]string

// Keys returns the tokens longest first, ties broken lexically. This is the
// order the Replacer tries them in.
func (t Table) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// BuildTable resolves every configured variable through lookup.
func BuildTable(opts Options, lookup Lookup) (Table, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	table := make(Table, len(opts.Variables)+3)

	processJSON, err := marshalJS(map[string]interface{}{"env": nonNil(opts.Dotenv)})
	if err != nil {
		return nil, nberrors.NewInternalError(nberrors.ErrCodeInternalError, "cannot encode dotenv values", err)
	}
	table[ProcessToken] = processJSON

	if opts.PlatformVar != "" {
		v, _ := lookup(opts.PlatformVar)
		table[envToken(opts.PlatformVar)] = strconv.FormatBool(v == "true")
	}

	// The platform variable is read before dotenv values apply; the rest see
	// them as a fallback.
	vars := WithDotenv(lookup, opts.Dotenv)

	var missing []string
	for _, name := range opts.Variables {
		v, ok := vars(name)
		if !ok {
			missing = append(missing, name)
			table[envToken(name)] = Undefined
			continue
		}
		encoded, err := marshalJS(v)
		if err != nil {
			return nil, nberrors.NewInternalError(nberrors.ErrCodeInternalError, "cannot encode "+name, err)
		}
		table[envToken(name)] = encoded
	}
	if opts.Strict && len(missing) > 0 {
		return nil, nberrors.NewConfigError(nberrors.ErrCodeMissingEnv,
			"missing environment variables: "+strings.Join(missing, ", ")).
			WithContext("variables", missing)
	}

	mode := "development"
	if opts.Production {
		mode = "production"
	}
	table[NodeEnvToken] = strconv.Quote(mode)

	return table, nil
}

// WithDotenv resolves names through lookup and falls back to the parsed
// dotenv values. Variables already set in the environment win.
func WithDotenv(lookup Lookup, dotenv map[string]string) Lookup {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return func(name string) (string, bool) {
		if v, ok := lookup(name); ok {
			return v, true
		}
		v, ok := dotenv[name]
		return v, ok
	}
}

// Missing lists the configured variables lookup cannot resolve.
func Missing(variables []string, lookup Lookup) []string {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var missing []string
	for _, name := range variables {
		if _, ok := lookup(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// LoadDotenv parses a dotenv file. A missing file yields an empty map.
func LoadDotenv(fs afero.Fs, path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, nberrors.NewIOError(nberrors.ErrCodeDotenv, "cannot open dotenv file", err).WithFile(path)
	}
	defer f.Close()

	env, err := gotenv.StrictParse(f)
	if err != nil {
		return nil, nberrors.NewConfigError(nberrors.ErrCodeDotenv, "cannot parse dotenv file: "+err.Error()).WithFile(path)
	}
	return env, nil
}

func envToken(name string) string {
	return "process.env." + name
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// marshalJS encodes v as JSON the way JSON.stringify would, without escaping
// HTML characters.
func marshalJS(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
