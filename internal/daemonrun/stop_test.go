package daemonrun_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"flowpool/internal/config"
	"flowpool/internal/daemon"
	"flowpool/internal/daemonrun"
	"flowpool/internal/logging"
	"flowpool/internal/services"
	"flowpool/internal/supervisor"
	"flowpool/internal/testsupport"
)

func TestStopTimeoutCoversShutdown(t *testing.T) {
	cfg := config.Default()
	got := daemonrun.StopTimeout(&cfg)
	floor := cfg.ShutdownWait() +
		time.Duration(cfg.Pool.MaxSize)*supervisor.DefaultKillWait +
		4*services.DefaultStopGrace
	if got <= floor {
		t.Fatalf("StopTimeout = %s, want more than %s", got, floor)
	}
	if got <= daemon.DefaultStopTimeout {
		t.Fatalf("StopTimeout = %s should exceed the bare controller default %s with the default shutdown_wait", got, daemon.DefaultStopTimeout)
	}

	cfg.Pool.ShutdownWait = 600
	if longer := daemonrun.StopTimeout(&cfg); longer-got != 540*time.Second {
		t.Fatalf("StopTimeout should grow with shutdown_wait, got %s and %s", got, longer)
	}
}

func TestStopWaitsOutShutdownDrain(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pool.ShutdownWait = 2
	pidFile := filepath.Join(t.TempDir(), "flowpool.pid")

	// Stands in for a daemon that spends the whole drain window before it
	// removes its PID file.
	script := `echo $$ > "$PID_FILE"; trap 'sleep 3; rm -f "$PID_FILE"; exit 0' TERM; while :; do sleep 0.1; done`
	cmd := exec.Command("/bin/sh", "-c", script)
	cmd.Env = append(os.Environ(), "PID_FILE="+pidFile)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-done
	})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := daemon.ReadPID(pidFile); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	ctl := daemon.NewController(pidFile, nil, logging.NewNop())
	ctl.StopTimeout = daemonrun.StopTimeout(cfg)
	if err := ctl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("daemon stand-in did not exit")
	}
}
