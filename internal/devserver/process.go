package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/neatbudget/nbuild/internal/logging"
)

// ExecSpawner runs the command line through the platform shell with stdin
// detached and stdout/stderr inherited.
type ExecSpawner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger logging.Logger
}

// NewExecSpawner returns a spawner wired to the current process's output.
func NewExecSpawner(logger logging.Logger) *ExecSpawner {
	return &ExecSpawner{Stdout: os.Stdout, Stderr: os.Stderr, Logger: logger}
}

// Spawn starts the command and returns immediately.
func (s *ExecSpawner) Spawn(c Command) (Process, error) {
	name, args := shellCommand(c.Line)
	cmd := exec.Command(name, args...)
	cmd.Dir = c.Dir
	cmd.Stdin = nil
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go p.wait(s.Logger)
	go p.trackLoop()
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error

	mu      sync.Mutex
	tracked map[int32]*process.Process
}

// trackInterval is how often the descendants of a running child are
// recorded.
var trackInterval = 2 * time.Second

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

// wait reaps the child. A child that exits on its own is only logged; there
// is no restart policy.
func (p *execProcess) wait(logger logging.Logger) {
	p.waitErr = p.cmd.Wait()
	close(p.done)

	if logger == nil {
		return
	}
	ctx := context.Background()
	if p.waitErr != nil {
		logger.Warn(ctx, p.waitErr, "Dev server exited", "pid", p.Pid())
	} else {
		logger.Info(ctx, "Dev server exited", "pid", p.Pid())
	}
}

// trackLoop records descendants until the child exits. Once the shell is
// gone its children are reparented and can no longer be found from its pid.
func (p *execProcess) trackLoop() {
	ticker := time.NewTicker(trackInterval)
	defer ticker.Stop()
	for {
		p.track()
		select {
		case <-p.done:
			return
		case <-ticker.C:
		}
	}
}

func (p *execProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// track adds the child's current descendants to the tracked set.
func (p *execProcess) track() {
	if p.exited() {
		return
	}
	found := descendants(int32(p.Pid()))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tracked == nil {
		p.tracked = make(map[int32]*process.Process)
	}
	for _, d := range found {
		p.tracked[d.Pid] = d
	}
}

// survivors returns the live tracked descendants that are not members of
// the child's process group.
func (p *execProcess) survivors(group []*process.Process) []*process.Process {
	inGroup := make(map[int32]bool, len(group))
	for _, m := range group {
		inGroup[m.Pid] = true
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*process.Process
	for pid, d := range p.tracked {
		if inGroup[pid] {
			continue
		}
		if !running(d) {
			delete(p.tracked, pid)
			continue
		}
		out = append(out, d)
	}
	return out
}

// Alive reports whether the child or anything it started is still running.
func (p *execProcess) Alive() bool {
	if !p.exited() {
		return true
	}
	group := groupMembers(p.Pid())
	return len(group) > 0 || len(p.survivors(group)) > 0
}

// Terminate asks the child and anything it spawned to stop. The group is
// signalled even after the shell itself has exited, and descendants that
// left the group are terminated one by one.
func (p *execProcess) Terminate() error {
	p.track()
	group := groupMembers(p.Pid())
	strays := p.survivors(group)
	if p.exited() && len(group) == 0 && len(strays) == 0 {
		return nil
	}

	var errs []error
	if err := terminateGroup(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		errs = append(errs, err)
	}
	for _, d := range strays {
		if err := d.Terminate(); err != nil && running(d) {
			errs = append(errs, fmt.Errorf("terminate pid %d: %w", d.Pid, err))
		}
	}
	return errors.Join(errs...)
}

// descendants walks the process tree below pid.
func descendants(pid int32) []*process.Process {
	root, err := process.NewProcess(pid)
	if err != nil {
		return nil
	}
	var out []*process.Process
	queue := []*process.Process{root}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		children, err := next.Children()
		if err != nil {
			continue
		}
		out = append(out, children...)
		queue = append(queue, children...)
	}
	return out
}

// running is false for processes that are gone or defunct.
func running(p *process.Process) bool {
	ok, err := p.IsRunning()
	if err != nil || !ok {
		return false
	}
	status, err := p.Status()
	if err != nil {
		return true
	}
	for _, st := range status {
		if st == process.Zombie {
			return false
		}
	}
	return true
}
