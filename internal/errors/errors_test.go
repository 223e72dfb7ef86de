package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNBuildErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *NBuildError
		expected string
	}{
		{
			name:     "message only",
			err:      &NBuildError{Message: "boom"},
			expected: "boom",
		},
		{
			name:     "code and step",
			err:      NewBuildError(ErrCodeBundleFailed, "bundler exited", nil).WithStep("bundle"),
			expected: "[ERR_BUNDLE_FAILED] step:bundle bundler exited",
		},
		{
			name: "file and cause",
			err: NewIOError(ErrCodeReplaceFailed, "cannot rewrite", stderrors.New("permission denied")).
				WithFile("public/build/bundle.js"),
			expected: "[ERR_REPLACE_FAILED] public/build/bundle.js cannot rewrite: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestConstructorsSetType(t *testing.T) {
	cause := stderrors.New("cause")

	assert.Equal(t, ErrorTypeValidation, NewValidationError("c", "m").Type)
	assert.Equal(t, ErrorTypeConfig, NewConfigError("c", "m").Type)
	assert.Equal(t, ErrorTypeBuild, NewBuildError("c", "m", cause).Type)
	assert.Equal(t, ErrorTypeIO, NewIOError("c", "m", cause).Type)
	assert.Equal(t, ErrorTypeProcess, NewProcessError("c", "m", cause).Type)
	assert.Equal(t, ErrorTypeInternal, NewInternalError("c", "m", cause).Type)

	assert.True(t, NewBuildError("c", "m", nil).Recoverable)
	assert.True(t, NewValidationError("c", "m").Recoverable)
	assert.False(t, NewProcessError("c", "m", nil).Recoverable)
}

func TestUnwrapAndIs(t *testing.T) {
	root := stderrors.New("exit status 1")
	err := fmt.Errorf("build: %w", NewBuildError(ErrCodeBundleFailed, "bundler failed", root))

	assert.True(t, stderrors.Is(err, root))
	assert.True(t, stderrors.Is(err, &NBuildError{Type: ErrorTypeBuild, Code: ErrCodeBundleFailed}))
	assert.False(t, stderrors.Is(err, &NBuildError{Type: ErrorTypeBuild, Code: ErrCodeCleanFailed}))

	assert.True(t, IsBuildError(err))
	assert.False(t, IsConfigError(err))
	assert.True(t, IsRecoverable(err))
	assert.False(t, IsRecoverable(root))
}

func TestWithContext(t *testing.T) {
	err := NewConfigError(ErrCodeMissingEnv, "missing variable").
		WithContext("variable", "FIREBASE_API_KEY_DEV")

	require.NotNil(t, err.Context)
	assert.Equal(t, "FIREBASE_API_KEY_DEV", err.Context["variable"])
}

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, Wrap(nil, ErrorTypeIO, "c", "m"))
		assert.Nil(t, WrapBuild(nil, "c", "m", "bundle"))
	})

	t.Run("plain error", func(t *testing.T) {
		cause := stderrors.New("disk full")
		err := WrapIO(cause, ErrCodeCleanFailed, "cannot remove")

		assert.Equal(t, ErrorTypeIO, err.Type)
		assert.False(t, err.Recoverable)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("nested keeps step and file", func(t *testing.T) {
		inner := NewBuildError(ErrCodeReplaceFailed, "bad token", nil).
			WithStep("replace").
			WithFile("bundle.js")
		outer := Wrap(inner, ErrorTypeBuild, ErrCodeBundleFailed, "pipeline failed")

		assert.Equal(t, "replace", outer.Step)
		assert.Equal(t, "bundle.js", outer.FilePath)
		assert.True(t, stderrors.Is(outer, inner))
	})

	t.Run("build wrapper sets step", func(t *testing.T) {
		err := WrapBuild(stderrors.New("x"), ErrCodeBundleFailed, "failed", "bundle")
		assert.Equal(t, "bundle", err.Step)
		assert.True(t, err.Recoverable)
	})

	t.Run("process wrapper", func(t *testing.T) {
		err := WrapProcess(stderrors.New("no such file"), ErrCodeSpawnFailed, "spawn failed")
		assert.Equal(t, ErrorTypeProcess, err.Type)
	})
}
