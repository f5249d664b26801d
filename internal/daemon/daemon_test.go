package daemon_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"flowpool/internal/daemon"
)

type fakeProgram struct {
	ctl         daemon.Control
	initialized chan struct{}
	runs        atomic.Int32
	updates     atomic.Int32
	shutdowns   atomic.Int32
	runErr      error
	onRun       func(n int32)
	once        sync.Once
}

func newFakeProgram() *fakeProgram {
	return &fakeProgram{initialized: make(chan struct{})}
}

func (p *fakeProgram) Initialize(_ context.Context, ctl daemon.Control) error {
	p.ctl = ctl
	p.once.Do(func() { close(p.initialized) })
	return nil
}

func (p *fakeProgram) Run(context.Context) error {
	n := p.runs.Add(1)
	if p.onRun != nil {
		p.onRun(n)
	}
	return p.runErr
}

func (p *fakeProgram) Interval() time.Duration    { return 10 * time.Millisecond }
func (p *fakeProgram) OnUpdate(context.Context)   { p.updates.Add(1) }
func (p *fakeProgram) OnShutdown(context.Context) { p.shutdowns.Add(1) }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func serve(t *testing.T, ctx context.Context, d *daemon.Daemon, p daemon.Program) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx, p) }()
	return done
}

func awaitServe(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestServeWritesAndRemovesPIDFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "flowpool.pid")
	d := daemon.New(pidFile, nil)
	if d.State() != daemon.StateNotStarted {
		t.Fatalf("initial state = %s", d.State())
	}
	prog := newFakeProgram()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := serve(t, ctx, d, prog)
	<-prog.initialized
	waitFor(t, "first run", func() bool { return prog.runs.Load() > 0 })

	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pid = %d, want %d", pid, os.Getpid())
	}
	data, _ := os.ReadFile(pidFile)
	if string(data[len(data)-1]) != "\n" {
		t.Fatalf("pid file should end in newline, got %q", data)
	}
	if d.State() != daemon.StateRunning {
		t.Fatalf("state = %s, want running", d.State())
	}

	cancel()
	if err := awaitServe(t, done); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Fatalf("pid file should be removed, stat err = %v", err)
	}
	if got := prog.shutdowns.Load(); got != 1 {
		t.Fatalf("OnShutdown calls = %d, want 1", got)
	}
	if d.State() != daemon.StateStopped {
		t.Fatalf("state = %s, want stopped", d.State())
	}
	if d.KeepRunning() {
		t.Fatal("keep-running flag should be cleared")
	}
}

func TestServeTreatsMissingPIDFileAsShutdown(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "flowpool.pid")
	d := daemon.New(pidFile, nil)
	prog := newFakeProgram()
	prog.onRun = func(n int32) {
		if n == 2 {
			_ = os.Remove(pidFile)
		}
	}

	done := serve(t, context.Background(), d, prog)
	if err := awaitServe(t, done); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if got := prog.shutdowns.Load(); got != 1 {
		t.Fatalf("OnShutdown calls = %d, want 1", got)
	}
	if got := prog.runs.Load(); got != 2 {
		t.Fatalf("runs = %d, want 2", got)
	}
}

func TestServeReturnsRunErrorWithoutShutdownHook(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "flowpool.pid")
	d := daemon.New(pidFile, nil)
	boom := errors.New("queue unavailable")
	prog := newFakeProgram()
	prog.runErr = boom

	err := d.Serve(context.Background(), prog)
	if !errors.Is(err, boom) {
		t.Fatalf("Serve error = %v, want %v", err, boom)
	}
	if got := prog.shutdowns.Load(); got != 0 {
		t.Fatalf("OnShutdown calls = %d, want 0", got)
	}
	if _, statErr := os.Stat(pidFile); !os.IsNotExist(statErr) {
		t.Fatalf("pid file should be removed on error path")
	}
}

func TestServeStopsWhenProgramClearsFlag(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "flowpool.pid")
	d := daemon.New(pidFile, nil)
	prog := newFakeProgram()
	prog.onRun = func(n int32) {
		if n == 3 {
			prog.ctl.StopRunning()
		}
	}
	if err := d.Serve(context.Background(), prog); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if got := prog.runs.Load(); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
	if got := prog.shutdowns.Load(); got != 1 {
		t.Fatalf("OnShutdown calls = %d, want 1", got)
	}
}

func TestServeDispatchesSignals(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "flowpool.pid")
	d := daemon.New(pidFile, nil)
	prog := newFakeProgram()

	done := serve(t, context.Background(), d, prog)
	<-prog.initialized

	if err := syscall.Kill(os.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatalf("send SIGHUP: %v", err)
	}
	waitFor(t, "update", func() bool { return prog.updates.Load() == 1 })
	runsAfterUpdate := prog.runs.Load()
	waitFor(t, "loop to continue after update", func() bool { return prog.runs.Load() > runsAfterUpdate })

	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("send SIGTERM: %v", err)
	}
	if err := awaitServe(t, done); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if got := prog.shutdowns.Load(); got != 1 {
		t.Fatalf("OnShutdown calls = %d, want 1", got)
	}
}

func TestServeRejectsSecondInstance(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "flowpool.pid")
	first := daemon.New(pidFile, nil)
	prog := newFakeProgram()
	ctx, cancel := context.WithCancel(context.Background())
	done := serve(t, ctx, first, prog)
	<-prog.initialized

	second := daemon.New(pidFile, nil)
	err := second.Serve(context.Background(), newFakeProgram())
	if !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("second Serve error = %v, want ErrAlreadyRunning", err)
	}

	cancel()
	if err := awaitServe(t, done); err != nil {
		t.Fatalf("Serve: %v", err)
	}
}

func TestStateString(t *testing.T) {
	tests := map[daemon.State]string{
		daemon.StateNotStarted:   "not_started",
		daemon.StateDaemonizing:  "daemonizing",
		daemon.StateRunning:      "running",
		daemon.StateShuttingDown: "shutting_down",
		daemon.StateStopped:      "stopped",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", int(state), got, want)
		}
	}
}

func TestMarkDaemonizing(t *testing.T) {
	d := daemon.New(filepath.Join(t.TempDir(), "flowpool.pid"), nil)
	d.MarkDaemonizing()
	if d.State() != daemon.StateDaemonizing {
		t.Fatalf("state = %s, want daemonizing", d.State())
	}
}

// deadPID returns the PID of a child that has already exited and been reaped.
func deadPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run child: %v", err)
	}
	return cmd.ProcessState.Pid()
}
