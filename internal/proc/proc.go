// Package proc wraps os/exec for long-running children that are supervised by
// polling: each child leads its own process group, is reaped by a dedicated
// goroutine, and reports its exit status without blocking the caller.
package proc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ExitIOError is the synthetic status recorded when a child could not be
// started or its input was missing (EX_IOERR from sysexits.h).
const ExitIOError = 74

// Process is a started child running in its own process group.
type Process struct {
	cmd  *exec.Cmd
	pid  int
	done chan struct{}

	mu       sync.Mutex
	exitCode int
	waitErr  error
}

// Start launches cmd as the leader of a new process group and begins reaping it.
func Start(cmd *exec.Cmd) (*Process, error) {
	if cmd == nil {
		return nil, errors.New("proc: nil command")
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", filepath.Base(cmd.Path), err)
	}
	p := &Process{cmd: cmd, pid: cmd.Process.Pid, done: make(chan struct{})}
	go p.reap()
	return p, nil
}

func (p *Process) reap() {
	err := p.cmd.Wait()
	code := ExitStatus(err, p.cmd.ProcessState)
	p.mu.Lock()
	p.exitCode = code
	p.waitErr = err
	p.mu.Unlock()
	close(p.done)
}

// PID returns the child's process ID, which is also its process group ID.
func (p *Process) PID() int {
	return p.pid
}

// Poll reports the exit status if the child has been reaped. It never blocks.
func (p *Process) Poll() (int, bool) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.exitCode, true
	default:
		return 0, false
	}
}

// Done is closed once the child has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the child exits or timeout elapses. A non-positive timeout
// waits indefinitely.
func (p *Process) Wait(timeout time.Duration) (int, bool) {
	if timeout <= 0 {
		<-p.done
		return p.Poll()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return p.Poll()
	case <-timer.C:
		return 0, false
	}
}

// SignalGroup delivers sig to the child's whole process group. A group that
// has already disappeared is not an error.
func (p *Process) SignalGroup(sig unix.Signal) error {
	return SignalGroup(p.pid, sig)
}

// SignalGroup delivers sig to the process group led by pgid.
func SignalGroup(pgid int, sig unix.Signal) error {
	if pgid <= 0 {
		return fmt.Errorf("proc: invalid process group %d", pgid)
	}
	if err := unix.Kill(-pgid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal process group %d: %w", pgid, err)
	}
	return nil
}

// ExitStatus converts the result of exec.Cmd.Wait into a status code: the
// exit code for normal termination and the negated signal number when the
// child was killed by a signal.
func ExitStatus(err error, state *os.ProcessState) int {
	if state == nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			state = exitErr.ProcessState
		}
	}
	if state == nil {
		if err == nil {
			return 0
		}
		return -1
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return -int(status.Signal())
	}
	return state.ExitCode()
}

// Alive reports whether pid names a live process. EPERM means the process
// exists but belongs to another user.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
