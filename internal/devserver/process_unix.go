//go:build !windows

package devserver

import (
	"errors"
	"os"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

func shellCommand(line string) (string, []string) {
	return "/bin/sh", []string{"-c", line}
}

// sysProcAttr puts the child in its own process group so the shell and
// whatever it started are signalled together.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup sends SIGTERM to the group led by p. The group outlives
// its leader, so this is attempted even when p has exited.
func terminateGroup(p *os.Process) error {
	err := syscall.Kill(-p.Pid, syscall.SIGTERM)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, syscall.ESRCH):
		return os.ErrProcessDone
	}
	if serr := p.Signal(syscall.SIGTERM); serr != nil && !errors.Is(serr, os.ErrProcessDone) {
		return err
	}
	return nil
}

// groupMembers lists the live processes in the group pgid.
func groupMembers(pgid int) []*process.Process {
	pids, err := process.Pids()
	if err != nil {
		return nil
	}
	var out []*process.Process
	for _, pid := range pids {
		if g, err := syscall.Getpgid(int(pid)); err != nil || g != pgid {
			continue
		}
		m, err := process.NewProcess(pid)
		if err != nil || !running(m) {
			continue
		}
		out = append(out, m)
	}
	return out
}
