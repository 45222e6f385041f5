//go:build !windows
// +build !windows

package main

import (
	"fmt"
	"os"
	"syscall"
)

// daemonize re-executes the binary in its own session with stdio on
// /dev/null. The working directory is inherited so relative arguments
// resolve the same way in the child. Returns in the parent once the child
// is released.
func daemonize() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot locate executable: %w", err)
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	proc, err := os.StartProcess(exe, os.Args, &os.ProcAttr{
		Env:   append(os.Environ(), daemonEnv+"=1"),
		Files: []*os.File{devNull, devNull, devNull},
		Sys:   &syscall.SysProcAttr{Setsid: true},
	})
	if err != nil {
		return fmt.Errorf("cannot start background process: %w", err)
	}
	fmt.Printf("blueprintfs: serving in the background, pid %d\n", proc.Pid)
	return proc.Release()
}
