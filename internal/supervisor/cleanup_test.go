package supervisor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"flowpool/internal/proc"
	"flowpool/internal/queue"
	"flowpool/internal/retention"
	"flowpool/internal/services"
	"flowpool/internal/testsupport"
)

type recordingClient struct {
	deletes int
	status  queue.Status
}

func (c *recordingClient) Open(context.Context) error { return nil }
func (c *recordingClient) Close() error               { return nil }
func (c *recordingClient) FindReady(context.Context, int) ([]*queue.Chain, error) {
	return nil, nil
}
func (c *recordingClient) Delete(context.Context, *queue.Chain) error {
	c.deletes++
	return nil
}
func (c *recordingClient) UpdateStatus(_ context.Context, _ *queue.Chain, status queue.Status) error {
	c.status = status
	return nil
}

func TestCleanupSlotIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	client := &recordingClient{}
	sup, err := New(cfg, client, services.NewManager(cfg, nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	doc := testsupport.WriteDocument(t, filepath.Join(testsupport.BaseDir(cfg), "incoming"), "frog.dag")
	chain := &queue.Chain{ID: 1, DocumentPath: doc, RelativeDir: "frog"}
	copyPath, err := sup.materialize(chain)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	capture, err := proc.OpenCapture(cfg.ChainLogDir(), "frog-run")
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}
	_ = capture.Close()

	outputs := filepath.Join(cfg.Paths.OutputDir, "frog")
	sibling := copyPath + ".makeflowlog"
	failedDir := filepath.Join(cfg.Paths.WorkspaceDir, "makeflow.failed.12")
	for _, dir := range []string{outputs, failedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if err := os.WriteFile(sibling, []byte("log"), 0o644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}

	slot := &Slot{Chain: chain, Document: copyPath, RunName: "frog-run", StartedAt: time.Now(), capture: capture}
	sup.cleanupSlot(context.Background(), slot, 0)
	sup.cleanupSlot(context.Background(), slot, 0)

	for _, path := range []string{doc, copyPath, sibling, failedDir, outputs, capture.StdoutPath, capture.StderrPath} {
		if testsupport.Exists(t, path) {
			t.Fatalf("%s should be removed", path)
		}
	}
	if slot.State != SlotCompleted {
		t.Fatalf("state = %s, want completed", slot.State)
	}
	if !testsupport.Exists(t, cfg.Paths.OutputDir) {
		t.Fatal("output root must survive cleanup")
	}
}

func TestCleanupSlotNeverRemovesOutputRoot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sup, err := New(cfg, &recordingClient{}, services.NewManager(cfg, nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, rel := range []string{"", ".", "..", "../elsewhere"} {
		slot := &Slot{Chain: &queue.Chain{ID: 2, DocumentPath: "/nonexistent/x.dag", RelativeDir: rel}}
		sup.cleanupSlot(context.Background(), slot, 0)
		if !testsupport.Exists(t, cfg.Paths.OutputDir) {
			t.Fatalf("relative dir %q removed the output root", rel)
		}
	}
}

func TestKillSlotSkipsExitedChain(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	tests := []struct {
		name       string
		script     string
		wantKilled bool
		wantState  SlotState
		wantStatus queue.Status
		wantDelete int
	}{
		{"already exited", "exit 0", false, SlotCompleted, "", 1},
		{"still running", "sleep 30", true, SlotKilled, queue.StatusInitialize, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &recordingClient{}
			sup, err := New(cfg, client, services.NewManager(cfg, nil), nil, WithKillWait(5*time.Second))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			process, err := proc.Start(exec.Command("/bin/sh", "-c", tt.script))
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			t.Cleanup(func() {
				if _, done := process.Poll(); !done {
					_ = process.SignalGroup(unix.SIGKILL)
					process.Wait(5 * time.Second)
				}
			})
			if !tt.wantKilled {
				if _, ok := process.Wait(5 * time.Second); !ok {
					t.Fatal("child did not exit")
				}
			}

			chain := &queue.Chain{ID: 7, DocumentPath: "/nonexistent/x.dag", RelativeDir: "x"}
			slot := &Slot{Chain: chain, RunName: "x-run", StartedAt: time.Now(), process: process}
			if got := sup.killSlot(context.Background(), slot); got != tt.wantKilled {
				t.Fatalf("killSlot = %v, want %v", got, tt.wantKilled)
			}
			if slot.State != tt.wantState {
				t.Fatalf("state = %s, want %s", slot.State, tt.wantState)
			}
			if client.status != tt.wantStatus || client.deletes != tt.wantDelete {
				t.Fatalf("queue saw status %q and %d deletes, want %q and %d", client.status, client.deletes, tt.wantStatus, tt.wantDelete)
			}
		})
	}
}

func TestStatusForOutcome(t *testing.T) {
	if got := statusFor(retention.OutcomeKilled); got != queue.StatusInitialize {
		t.Fatalf("killed -> %s", got)
	}
	if got := statusFor(retention.OutcomeFailed); got != queue.StatusGeneralError {
		t.Fatalf("failed -> %s", got)
	}
}

func TestMaterializeKeepsExistingCopy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sup, err := New(cfg, &recordingClient{}, services.NewManager(cfg, nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	doc := testsupport.WriteDocument(t, filepath.Join(testsupport.BaseDir(cfg), "incoming"), "toad.dag")
	existing := filepath.Join(cfg.Paths.WorkspaceDir, "3-toad.dag")
	if err := os.WriteFile(existing, []byte("already here"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := sup.materialize(&queue.Chain{ID: 3, DocumentPath: doc})
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	data, _ := os.ReadFile(got)
	if string(data) != "already here" {
		t.Fatalf("existing workspace copy was overwritten: %q", data)
	}
}

func TestWorkspaceDocumentIsChainUnique(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sup, err := New(cfg, &recordingClient{}, services.NewManager(cfg, nil), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a, err := sup.workspaceDocument(&queue.Chain{ID: 4, DocumentPath: "/data/owner1/flow.dag"})
	if err != nil {
		t.Fatalf("workspaceDocument: %v", err)
	}
	b, err := sup.workspaceDocument(&queue.Chain{ID: 5, DocumentPath: "/data/owner2/flow.dag"})
	if err != nil {
		t.Fatalf("workspaceDocument: %v", err)
	}
	if a == b {
		t.Fatalf("chains 4 and 5 share workspace copy %s", a)
	}
	if want := filepath.Join(cfg.Paths.WorkspaceDir, "4-flow.dag"); a != want {
		t.Fatalf("workspace copy = %s, want %s", a, want)
	}
	if _, err := sup.workspaceDocument(&queue.Chain{ID: 6, DocumentPath: "/"}); err == nil {
		t.Fatal("expected error for a document path without a file name")
	}
}

func TestGlobEscape(t *testing.T) {
	if got := globEscape("a*b?[c].dag"); got != `a\*b\?\[c].dag` {
		t.Fatalf("globEscape = %q", got)
	}
}
