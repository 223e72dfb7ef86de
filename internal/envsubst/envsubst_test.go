package envsubst

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nberrors "github.com/neatbudget/nbuild/internal/errors"
)

func mapLookup(env map[string]string) Lookup {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func TestBuildTable(t *testing.T) {
	env := map[string]string{
		"NETLIFY":                 "true",
		"FIREBASE_API_KEY_DEV":    "abc<123>",
		"FIREBASE_PROJECT_ID_DEV": `say "hi"`,
	}

	table, err := BuildTable(Options{
		Production:  true,
		PlatformVar: "NETLIFY",
		Variables:   []string{"FIREBASE_API_KEY_DEV", "FIREBASE_PROJECT_ID_DEV", "FIREBASE_APP_ID_DEV"},
		Dotenv:      map[string]string{"API_URL": "https://example.test"},
	}, mapLookup(env))
	require.NoError(t, err)

	assert.Equal(t, `"production"`, table[NodeEnvToken])
	assert.Equal(t, "true", table["process.env.NETLIFY"])
	assert.Equal(t, `"abc<123>"`, table["process.env.FIREBASE_API_KEY_DEV"])
	assert.Equal(t, `"say \"hi\""`, table["process.env.FIREBASE_PROJECT_ID_DEV"])
	assert.Equal(t, Undefined, table["process.env.FIREBASE_APP_ID_DEV"])
	assert.Equal(t, `{"env":{"API_URL":"https://example.test"}}`, table[ProcessToken])
}

func TestBuildTableDevelopmentDefaults(t *testing.T) {
	table, err := BuildTable(Options{PlatformVar: "NETLIFY"}, mapLookup(nil))
	require.NoError(t, err)

	assert.Equal(t, `"development"`, table[NodeEnvToken])
	assert.Equal(t, "false", table["process.env.NETLIFY"])
	assert.Equal(t, `{"env":{}}`, table[ProcessToken])
	assert.Len(t, table, 3)
}

func TestBuildTablePlatformVarOnlyTrueIsTrue(t *testing.T) {
	tests := map[string]string{
		"true":  "true",
		"TRUE":  "false",
		"1":     "false",
		"":      "false",
		"false": "false",
	}
	for value, want := range tests {
		t.Run(value, func(t *testing.T) {
			table, err := BuildTable(Options{PlatformVar: "NETLIFY"}, mapLookup(map[string]string{"NETLIFY": value}))
			require.NoError(t, err)
			assert.Equal(t, want, table["process.env.NETLIFY"])
		})
	}
}

func TestBuildTableStrict(t *testing.T) {
	_, err := BuildTable(Options{
		Variables: []string{"PRESENT", "ABSENT_ONE", "ABSENT_TWO"},
		Strict:    true,
	}, mapLookup(map[string]string{"PRESENT": "x"}))

	require.Error(t, err)
	assert.True(t, nberrors.IsConfigError(err))
	assert.Contains(t, err.Error(), "ABSENT_ONE, ABSENT_TWO")
}

func TestBuildTableDotenvFallback(t *testing.T) {
	table, err := BuildTable(Options{
		PlatformVar: "NETLIFY",
		Variables:   []string{"FIREBASE_API_KEY_DEV", "FIREBASE_APP_ID_DEV", "FIREBASE_PROJECT_ID_DEV"},
		Dotenv: map[string]string{
			"NETLIFY":              "true",
			"FIREBASE_API_KEY_DEV": "from-dotenv",
			"FIREBASE_APP_ID_DEV":  "from-dotenv",
		},
		Strict: true,
	}, mapLookup(map[string]string{
		"FIREBASE_APP_ID_DEV":     "from-env",
		"FIREBASE_PROJECT_ID_DEV": "budget",
	}))
	require.NoError(t, err)

	assert.Equal(t, `"from-dotenv"`, table["process.env.FIREBASE_API_KEY_DEV"])
	assert.Equal(t, `"from-env"`, table["process.env.FIREBASE_APP_ID_DEV"], "environment wins over dotenv")
	assert.Equal(t, `"budget"`, table["process.env.FIREBASE_PROJECT_ID_DEV"])
	assert.Equal(t, "false", table["process.env.NETLIFY"], "platform variable ignores dotenv")
}

func TestWithDotenv(t *testing.T) {
	lookup := WithDotenv(mapLookup(map[string]string{"A": "env", "EMPTY": ""}), map[string]string{"A": "file", "B": "file", "EMPTY": "file"})

	v, ok := lookup("A")
	assert.True(t, ok)
	assert.Equal(t, "env", v)

	v, ok = lookup("B")
	assert.True(t, ok)
	assert.Equal(t, "file", v)

	v, ok = lookup("EMPTY")
	assert.True(t, ok)
	assert.Equal(t, "", v, "an empty value in the environment is still set")

	_, ok = lookup("C")
	assert.False(t, ok)

	assert.Equal(t, []string{"C"}, Missing([]string{"A", "B", "C"}, lookup))
}

func TestMissing(t *testing.T) {
	got := Missing([]string{"A", "B", "C"}, mapLookup(map[string]string{"B": ""}))
	assert.Equal(t, []string{"A", "C"}, got)
}

func TestTableKeysLongestFirst(t *testing.T) {
	table := Table{"a": "", "ccc": "", "bb": "", "aa": ""}
	assert.Equal(t, []string{"ccc", "aa", "bb", "a"}, table.Keys())
}

func TestLoadDotenv(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, ".env", []byte("API_URL=https://example.test\n# comment\nQUOTED=\"a b\"\n"), 0644))

	env, err := LoadDotenv(fs, ".env")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"API_URL": "https://example.test", "QUOTED": "a b"}, env)
}

func TestLoadDotenvMissingFile(t *testing.T) {
	env, err := LoadDotenv(afero.NewMemMapFs(), ".env")
	require.NoError(t, err)
	assert.Empty(t, env)

	env, err = LoadDotenv(afero.NewMemMapFs(), "")
	require.NoError(t, err)
	assert.Empty(t, env)
}

func TestLoadDotenvInvalid(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, ".env", []byte("NOT A VALID LINE\n"), 0644))

	_, err := LoadDotenv(fs, ".env")
	require.Error(t, err)
	assert.True(t, nberrors.IsConfigError(err))
}

func TestReplacer(t *testing.T) {
	table := Table{
		"process.env.FOO":     `"short"`,
		"process.env.FOO_BAR": `"long"`,
		NodeEnvToken:          `"production"`,
	}

	tests := []struct {
		name  string
		left  string
		right string
		input string
		want  string
		count int
	}{
		{
			name:  "longest key wins",
			input: "a(process.env.FOO_BAR, process.env.FOO)",
			want:  `a("long", "short")`,
			count: 2,
		},
		{
			name:  "no matches",
			input: "console.log(1)",
			want:  "console.log(1)",
		},
		{
			name:  "empty delimiters match inside identifiers",
			input: "xprocess.env.NODE_ENVy",
			want:  `x"production"y`,
			count: 1,
		},
		{
			name:  "word boundary delimiters",
			left:  `\b`,
			right: `\b`,
			input: "process.env.FOOX process.env.FOO",
			want:  `process.env.FOOX "short"`,
			count: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReplacer(table, tt.left, tt.right)
			require.NoError(t, err)
			out, n := r.Replace([]byte(tt.input))
			assert.Equal(t, tt.want, string(out))
			assert.Equal(t, tt.count, n)
		})
	}
}

func TestReplacerEmptyTable(t *testing.T) {
	r, err := NewReplacer(Table{}, "", "")
	require.NoError(t, err)
	out, n := r.Replace([]byte("process.env.X"))
	assert.Equal(t, "process.env.X", string(out))
	assert.Zero(t, n)
}

func TestReplacerInvalidDelimiter(t *testing.T) {
	_, err := NewReplacer(Table{"a": "b"}, "(", "")
	assert.Error(t, err)
}

func TestReplaceFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "bundle.js", []byte("var p=_process;var e=process.env.NODE_ENV;"), 0600))

	r, err := NewReplacer(Table{ProcessToken: `{"env":{}}`, NodeEnvToken: `"development"`}, "", "")
	require.NoError(t, err)

	n, err := r.ReplaceFile(fs, "bundle.js")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := afero.ReadFile(fs, "bundle.js")
	require.NoError(t, err)
	assert.Equal(t, `var p={"env":{}};var e="development";`, string(got))

	info, err := fs.Stat("bundle.js")
	require.NoError(t, err)
	assert.Equal(t, "-rw-------", info.Mode().Perm().String())
}

func TestReplaceFileMissing(t *testing.T) {
	r, err := NewReplacer(Table{"a": "b"}, "", "")
	require.NoError(t, err)
	_, err = r.ReplaceFile(afero.NewMemMapFs(), "nope.js")
	assert.Error(t, err)
}
