//go:build windows

package stdio

import (
	"os"

	"golang.org/x/sys/windows"
)

// sendGracefulStop terminates the backend process. Windows has no SIGTERM;
// Kill() calls TerminateProcess.
func sendGracefulStop(proc *os.Process) error {
	return proc.Kill()
}

// processIsAlive reports whether the backend process is still running.
func processIsAlive(proc *os.Process) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(proc.Pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	return exitCode == 259
}
