package main

import (
	"errors"
	"strings"
	"testing"

	"flowpool/internal/daemon"
	"flowpool/internal/deps"
	"flowpool/internal/queue"
)

func TestRenderStatusLine(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", false)
	if !strings.Contains(got, "Daemon:") || !strings.HasSuffix(got, "[OK] Running") {
		t.Fatalf("unexpected line %q", got)
	}
	colored := renderStatusLine("Daemon", statusError, "", true)
	if !strings.HasPrefix(colored, "\x1b[31m") || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected red line, got %q", colored)
	}
}

func TestRenderStatusSnapshot(t *testing.T) {
	snapshot := statusSnapshot{
		Daemon:  daemon.Status{PID: 42, Stale: true},
		Backend: "sqlite",
		Checks: []deps.Status{
			{Name: "Workflow engine", Available: true},
			{Name: "Catalog server", Detail: "binary \"catalog_server\" not found"},
		},
		Queue: queue.Stats{queue.StatusPending: 2, queue.StatusGeneralError: 1},
	}
	out := renderStatus(snapshot, false)
	for _, want := range []string{"stale pid 42", "[OK] Ready", "[ERROR] binary", "pending:", "[WARN] 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}

	snapshot.QueueErr = errors.New("database is locked")
	out = renderStatus(snapshot, false)
	if !strings.Contains(out, "[ERROR] database is locked") {
		t.Fatalf("expected queue error, got:\n%s", out)
	}
}
