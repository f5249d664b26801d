package proc_test

import (
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"flowpool/internal/proc"
)

func TestPollReportsExitCode(t *testing.T) {
	p, err := proc.Start(exec.Command("/bin/sh", "-c", "exit 3"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	code, ok := p.Wait(5 * time.Second)
	if !ok {
		t.Fatal("process did not exit")
	}
	if code != 3 {
		t.Fatalf("exit code = %d, want 3", code)
	}
	if again, ok := p.Poll(); !ok || again != 3 {
		t.Fatalf("Poll after exit = %d,%v", again, ok)
	}
}

func TestPollDoesNotBlockWhileRunning(t *testing.T) {
	p, err := proc.Start(exec.Command("/bin/sh", "-c", "sleep 30"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = p.SignalGroup(unix.SIGKILL) })

	if _, ok := p.Poll(); ok {
		t.Fatal("expected running process")
	}
	if !proc.Alive(p.PID()) {
		t.Fatal("expected pid to be alive")
	}
}

func TestSignalGroupReportsNegativeStatus(t *testing.T) {
	// The shell forks a child; killing the group must take both down.
	p, err := proc.Start(exec.Command("/bin/sh", "-c", "sleep 30; true"))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.SignalGroup(unix.SIGKILL); err != nil {
		t.Fatalf("SignalGroup: %v", err)
	}
	code, ok := p.Wait(5 * time.Second)
	if !ok {
		t.Fatal("process did not exit after SIGKILL")
	}
	if code != -int(unix.SIGKILL) {
		t.Fatalf("exit code = %d, want %d", code, -int(unix.SIGKILL))
	}
	if err := p.SignalGroup(unix.SIGTERM); err != nil {
		t.Fatalf("signalling a reaped group should be a no-op: %v", err)
	}
}

func TestStartFailure(t *testing.T) {
	_, err := proc.Start(exec.Command("/nonexistent/flowpool-engine"))
	if err == nil {
		t.Fatal("expected start error")
	}
}

func TestExitStatusWithoutState(t *testing.T) {
	if proc.ExitStatus(nil, nil) != 0 {
		t.Fatal("nil error should be success")
	}
	if proc.ExitStatus(errors.New("wait failed"), nil) != -1 {
		t.Fatal("unknown wait error should be treated as killed")
	}
}

func TestAliveRejectsInvalidPID(t *testing.T) {
	if proc.Alive(0) || proc.Alive(-5) {
		t.Fatal("non-positive pids are never alive")
	}
	if !proc.Alive(os.Getpid()) {
		t.Fatal("own pid should be alive")
	}
}

func TestCaptureWritesAndRemoves(t *testing.T) {
	dir := t.TempDir()
	capture, err := proc.OpenCapture(dir, "run-1")
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}
	cmd := exec.Command("/bin/sh", "-c", "echo out; echo err >&2")
	cmd.Stdout = capture.Stdout
	cmd.Stderr = capture.Stderr
	p, err := proc.Start(cmd)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, ok := p.Wait(5 * time.Second); !ok {
		t.Fatal("process did not exit")
	}
	if err := capture.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := capture.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	out, _ := os.ReadFile(capture.StdoutPath)
	errOut, _ := os.ReadFile(capture.StderrPath)
	if strings.TrimSpace(string(out)) != "out" || strings.TrimSpace(string(errOut)) != "err" {
		t.Fatalf("unexpected capture contents: %q %q", out, errOut)
	}

	if err := capture.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := capture.Remove(); err != nil {
		t.Fatalf("second Remove should tolerate missing files: %v", err)
	}
	if _, err := os.Stat(capture.StdoutPath); !os.IsNotExist(err) {
		t.Fatal("expected stdout log removed")
	}
}
