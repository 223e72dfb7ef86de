//go:build windows

package devserver

import (
	"os"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

func shellCommand(line string) (string, []string) {
	return "cmd", []string{"/C", line}
}

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// terminateGroup kills the shell. Its descendants are tracked separately.
func terminateGroup(p *os.Process) error {
	return p.Kill()
}

// groupMembers is empty on Windows; every descendant is a tracked stray.
func groupMembers(int) []*process.Process {
	return nil
}
