package build

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neatbudget/nbuild/internal/config"
	nberrors "github.com/neatbudget/nbuild/internal/errors"
)

// allowCommand adds name to the command allowlist for one test.
func allowCommand(t *testing.T, name string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs POSIX utilities")
	}
	config.AllowedCommands[name] = true
	t.Cleanup(func() { delete(config.AllowedCommands, name) })
}

func TestExecRunnerRejectsUnlistedCommand(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), Invocation{Command: "rm", Args: []string{"-rf", "/"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command validation failed")
}

func TestExecRunnerRejectsDangerousArguments(t *testing.T) {
	tests := []string{
		"src/main.js; rm -rf /",
		"$(whoami)",
		"`id`",
		"../../etc/passwd",
		"a|b",
	}
	for _, arg := range tests {
		t.Run(arg, func(t *testing.T) {
			_, err := NewExecRunner().Run(context.Background(), Invocation{Command: "npx esbuild", Args: []string{arg}})
			assert.Error(t, err)
		})
	}
}

func TestExecRunnerEmptyCommand(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), Invocation{})
	assert.Error(t, err)
}

func TestInvocationString(t *testing.T) {
	assert.Equal(t, "npx esbuild src/main.js --bundle",
		Invocation{Command: "npx esbuild", Args: []string{"src/main.js", "--bundle"}}.String())
	assert.Equal(t, "npx", Invocation{Command: "npx"}.String())
}

func TestExecRunnerFailureIsRecoverableProcessError(t *testing.T) {
	allowCommand(t, "false")

	_, err := NewExecRunner().Run(context.Background(), Invocation{Command: "false"})
	require.Error(t, err)
	assert.True(t, nberrors.IsType(err, nberrors.ErrorTypeProcess))
	assert.True(t, nberrors.IsRecoverable(err))
	assert.Contains(t, err.Error(), "false failed")

	wrapped := nberrors.WrapBuild(err, nberrors.ErrCodeBundleFailed, "bundler failed", "bundle")
	assert.True(t, nberrors.IsBuildError(wrapped))
	assert.True(t, nberrors.IsRecoverable(wrapped))
}

func TestExecRunnerTimeout(t *testing.T) {
	allowCommand(t, "sleep")

	start := time.Now()
	_, err := NewExecRunner().Run(context.Background(), Invocation{
		Command: "sleep",
		Args:    []string{"5"},
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Contains(t, err.Error(), "timed out")
	assert.False(t, nberrors.IsRecoverable(err))
}
