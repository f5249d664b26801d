package daemonrun_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"flowpool/internal/daemon"
	"flowpool/internal/daemonrun"
	"flowpool/internal/queue"
	"flowpool/internal/testsupport"
)

func TestRunProcessesQueueUntilCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithEngineScript("exit 0"))
	cfg.Logging.Format = "json"

	store := testsupport.MustOpenStore(t, cfg)
	doc := testsupport.WriteDocument(t, filepath.Join(testsupport.BaseDir(cfg), "incoming"), "lynx.dag")
	testsupport.Enqueue(t, store, doc, 1, "")
	_ = store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- daemonrun.Run(ctx, cfg, daemonrun.Options{})
	}()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if !testsupport.Exists(t, doc) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if testsupport.Exists(t, doc) {
		t.Fatal("chain document should be consumed by a successful run")
	}
	pid, err := daemon.ReadPID(cfg.Paths.PIDFile)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != os.Getpid() {
		t.Fatalf("pid = %d, want %d", pid, os.Getpid())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if _, err := daemon.ReadPID(cfg.Paths.PIDFile); !errors.Is(err, daemon.ErrNotRunning) {
		t.Fatalf("pid file should be removed, ReadPID err = %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	chains, err := reopened.List(context.Background(), queue.AllStatuses()...)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(chains) != 0 {
		t.Fatalf("queue should be empty, got %+v", chains)
	}
	if !testsupport.Exists(t, cfg.DaemonLogPath()) {
		t.Fatal("daemon log file should exist")
	}
}

func TestRunFailsWhenServicesCannotStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Services.Workers.Command = filepath.Join(t.TempDir(), "missing")
	err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{})
	if err == nil {
		t.Fatal("expected Run to fail")
	}
	if _, statErr := os.Stat(cfg.Paths.PIDFile); !os.IsNotExist(statErr) {
		t.Fatal("pid file should not survive a failed start")
	}
}
