// Package pidfile enforces that at most one keeper process runs
// against a given PGDATA at a time. Where the teacher's embedded
// containerd manager tracks a child it forked (cm.cmd.Process, PID
// recorded in memory, liveness checked with Process.Signal), a keeper
// has no parent to ask: it must track itself and detect an impostor
// holding the same data directory, using the PID file on disk as the
// single source of truth across process restarts.
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/gmr/pg-auto-failover/pkg/types"
)

// Guard is the PID-file-based mutual exclusion lock described by
// KeeperConfig.Path.Pid.
type Guard struct {
	path string
	pid  int
}

// New returns a Guard for the given PID file path.
func New(path string) *Guard {
	return &Guard{path: path}
}

// Acquire claims the PID file for the calling process. If the file
// already names a live process, Acquire fails with a KeeperError of
// kind PidConflict and leaves the existing file untouched. If the file
// names a PID that is no longer running, Acquire treats it as stale
// and overwrites it.
func (g *Guard) Acquire() error {
	if existing, err := readPid(g.path); err == nil {
		if processAlive(existing) {
			return types.NewError(types.ErrKindPidConflict, "pidfile.Acquire",
				fmt.Errorf("%w: pid %d still running against %s", types.ErrPidConflict, existing, g.path))
		}
	}

	pid := os.Getpid()
	if err := writePid(g.path, pid); err != nil {
		return types.NewError(types.ErrKindInternal, "pidfile.Acquire", err)
	}
	g.pid = pid
	return nil
}

// Check re-reads the PID file and reports whether it still names this
// process. A mismatch means another keeper has taken over the data
// directory (or the file was removed from under us), and the caller
// must treat this as a fatal condition per the PidConflict error kind.
func (g *Guard) Check() error {
	current, err := readPid(g.path)
	if err != nil {
		return types.NewError(types.ErrKindPidConflict, "pidfile.Check",
			fmt.Errorf("%w: pid file %s unreadable: %v", types.ErrPidConflict, g.path, err))
	}
	if current != g.pid {
		return types.NewError(types.ErrKindPidConflict, "pidfile.Check",
			fmt.Errorf("%w: pid file %s now names pid %d, not us (%d)", types.ErrPidConflict, g.path, current, g.pid))
	}
	return nil
}

// Release removes the PID file, but only if it still names this
// process; it is a no-op if ownership was already lost.
func (g *Guard) Release() error {
	current, err := readPid(g.path)
	if err != nil {
		return nil
	}
	if current != g.pid {
		return nil
	}
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pidfile: release %s: %w", g.path, err)
	}
	return nil
}

func readPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("pidfile: malformed pid in %s: %w", path, err)
	}
	return pid, nil
}

func writePid(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644)
}

// processAlive reports whether pid refers to a running process. On
// POSIX systems os.FindProcess always succeeds, so liveness is
// determined by sending the null signal (signal 0), which only checks
// for existence and permission without affecting the process.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
