package envsubst

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

// Replacer rewrites every table token found in a source text.
type Replacer struct {
	table   Table
	pattern *regexp.Regexp
}

// NewReplacer compiles the table into one alternation, longest token first so
// process.env.FOO_BAR wins over process.env.FOO. left and right are regular
// expression fragments placed around the alternation (for example `\b`); empty
// strings match tokens anywhere.
func NewReplacer(table Table, left, right string) (*Replacer, error) {
	r := &Replacer{table: table}
	if len(table) == 0 {
		return r, nil
	}

	keys := table.Keys()
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = regexp.QuoteMeta(k)
	}

	pattern, err := regexp.Compile(left + "(" + strings.Join(quoted, "|") + ")" + right)
	if err != nil {
		return nil, fmt.Errorf("invalid replacement delimiters: %w", err)
	}
	r.pattern = pattern
	return r, nil
}

// Replace returns src with every match replaced and the number of matches.
func (r *Replacer) Replace(src []byte) ([]byte, int) {
	if r.pattern == nil {
		return src, 0
	}

	matches := r.pattern.FindAllSubmatchIndex(src, -1)
	if len(matches) == 0 {
		return src, 0
	}

	var out bytes.Buffer
	out.Grow(len(src))
	last := 0
	for _, m := range matches {
		out.Write(src[last:m[0]])
		out.WriteString(r.table[string(src[m[2]:m[3]])])
		last = m[1]
	}
	out.Write(src[last:])
	return out.Bytes(), len(matches)
}

// ReplaceFile rewrites path in place. The file is left untouched when nothing
// matches.
func (r *Replacer) ReplaceFile(fs afero.Fs, path string) (int, error) {
	src, err := afero.ReadFile(fs, path)
	if err != nil {
		return 0, err
	}

	out, n := r.Replace(src)
	if n == 0 {
		return 0, nil
	}

	mode := os.FileMode(0644)
	if info, err := fs.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := afero.WriteFile(fs, path, out, mode); err != nil {
		return 0, err
	}
	return n, nil
}
