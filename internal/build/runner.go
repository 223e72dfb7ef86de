// Package build drives one build of the web app: clean, bundle, substitute
// environment values, generate the service worker.
package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/neatbudget/nbuild/internal/config"
	nberrors "github.com/neatbudget/nbuild/internal/errors"
)

// Invocation is one external tool run.
type Invocation struct {
	// Command is a command line prefix such as "npx esbuild".
	Command string
	Args    []string
	Dir     string
	// Env entries are appended to the current environment.
	Env     []string
	Timeout time.Duration
}

func (i Invocation) String() string {
	return strings.TrimSpace(i.Command + " " + strings.Join(i.Args, " "))
}

// Runner executes external tools.
type Runner interface {
	Run(ctx context.Context, inv Invocation) ([]byte, error)
}

// ExecRunner runs tools as child processes and returns their combined output.
type ExecRunner struct{}

// NewExecRunner creates a runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run validates the invocation and runs it to completion.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) ([]byte, error) {
	if err := validateInvocation(inv); err != nil {
		return nil, fmt.Errorf("command validation failed: %w", err)
	}

	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	parts := strings.Fields(inv.Command)
	args := append(parts[1:], inv.Args...)
	cmd := exec.CommandContext(ctx, parts[0], args...)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return output, nberrors.NewProcessError(nberrors.ErrCodeCommandFailed, parts[0]+" timed out", ctx.Err()).
				WithContext("timeout", inv.Timeout.String())
		}
		// Recoverable: watch mode rebuilds on the next change.
		ne := nberrors.NewProcessError(nberrors.ErrCodeCommandFailed,
			fmt.Sprintf("%s failed\nOutput: %s", parts[0], output), err)
		ne.Recoverable = true
		return output, ne
	}

	return output, nil
}

func validateInvocation(inv Invocation) error {
	if err := config.ValidateCommandLine(inv.Command); err != nil {
		return err
	}
	for _, arg := range inv.Args {
		if err := config.ValidateArgument(arg); err != nil {
			return fmt.Errorf("invalid argument '%s': %w", arg, err)
		}
	}
	return nil
}
