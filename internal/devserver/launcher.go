// Package devserver owns the lifecycle of the static dev server that watch mode
// runs next to the bundler.
//
// A Launcher starts the server at most once per session and terminates it when
// the session ends. Session end is reported by a ShutdownSource, which in
// production is driven by OS signals and the normal exit path, and in tests by
// a fake.
package devserver

import (
	"context"
	"fmt"
	"sync"

	nberrors "github.com/neatbudget/nbuild/internal/errors"
	"github.com/neatbudget/nbuild/internal/logging"
)

// State is the launcher's position in its lifecycle.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateStopped
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Command is what the launcher spawns.
type Command struct {
	Line string
	Dir  string
}

// Process is a spawned child the launcher can ask to terminate.
type Process interface {
	Pid() int
	Terminate() error
}

// Spawner starts a child process without waiting for it to become ready.
type Spawner interface {
	Spawn(cmd Command) (Process, error)
}

// Launcher guarantees a single dev-server child per session.
//
// Invariants:
//   - at most one Spawn call is ever made
//   - Terminate is called at most once, and only on a spawned process
//   - once Stopped, the launcher never returns to NotStarted or Running
type Launcher struct {
	command  Command
	spawner  Spawner
	shutdown ShutdownSource
	logger   logging.Logger

	mu    sync.Mutex
	state State
	proc  Process
}

// NewLauncher creates a launcher for one build-watch session.
func NewLauncher(cmd Command, spawner Spawner, shutdown ShutdownSource, logger logging.Logger) *Launcher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Launcher{
		command:  cmd,
		spawner:  spawner,
		shutdown: shutdown,
		logger:   logger.WithComponent("devserver"),
		state:    StateNotStarted,
	}
}

// EnsureStarted spawns the dev server on its first call and is a no-op on
// every later call. It does not wait for the server to accept connections.
//
// A spawn failure is returned once; the launcher then counts as stopped and
// does not retry for the rest of the session.
func (l *Launcher) EnsureStarted(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateNotStarted {
		l.mu.Unlock()
		return nil
	}

	proc, err := l.spawner.Spawn(l.command)
	if err != nil {
		l.state = StateStopped
		l.mu.Unlock()
		return nberrors.WrapProcess(err, nberrors.ErrCodeSpawnFailed,
			fmt.Sprintf("failed to start dev server %q", l.command.Line))
	}

	l.proc = proc
	l.state = StateRunning
	l.mu.Unlock()

	l.logger.Info(ctx, "Dev server started", "command", l.command.Line, "pid", proc.Pid())

	// Registered outside the lock: a source that has already fired calls the
	// handler synchronously.
	if l.shutdown != nil {
		l.shutdown.OnShutdown(l.handleShutdown)
	}
	return nil
}

// handleShutdown is the cleanup hook registered with the ShutdownSource.
func (l *Launcher) handleShutdown(reason ShutdownReason) {
	l.stop(context.Background(), reason)
}

// Stop terminates the dev server if it is running. Exposed for callers that
// end a session without going through the ShutdownSource.
func (l *Launcher) Stop(ctx context.Context) {
	l.stop(ctx, ReasonExit)
}

func (l *Launcher) stop(ctx context.Context, reason ShutdownReason) {
	l.mu.Lock()
	proc := l.proc
	wasRunning := l.state == StateRunning
	l.state = StateStopped
	l.proc = nil
	l.mu.Unlock()

	if !wasRunning || proc == nil {
		return
	}

	// Best effort: the session is ending either way.
	if err := proc.Terminate(); err != nil {
		l.logger.Debug(ctx, "Dev server termination failed",
			"pid", proc.Pid(), "reason", reason.String(), "error", err.Error())
		return
	}
	l.logger.Info(ctx, "Dev server stopped", "pid", proc.Pid(), "reason", reason.String())
}

// State returns the current lifecycle state.
func (l *Launcher) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Pid returns the child's pid, or 0 when no child is running.
func (l *Launcher) Pid() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.proc == nil {
		return 0
	}
	return l.proc.Pid()
}
