package main

import (
	"context"
	"path/filepath"
	"testing"

	"flowpool/internal/queue"
	"flowpool/internal/testsupport"
)

func TestQueueAddListStats(t *testing.T) {
	env := setupCLITestEnv(t)
	doc := testsupport.WriteDocument(t, filepath.Join(testsupport.BaseDir(env.cfg), "incoming"), "otter.dag")

	out, _, err := runCLI(t, env.configPath, "queue", "add", doc, "--priority", "5", "--owner", "Zoë", "--dir", "otter")
	if err != nil {
		t.Fatalf("queue add: %v", err)
	}
	requireContains(t, out, "Queued chain 1 (priority 5)")

	out, _, err = runCLI(t, env.configPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "otter.dag")
	requireContains(t, out, "pending")
	requireContains(t, out, "Zoë")

	out, _, err = runCLI(t, env.configPath, "queue", "stats")
	if err != nil {
		t.Fatalf("queue stats: %v", err)
	}
	requireContains(t, out, "pending")
	requireContains(t, out, "total")
}

func TestQueueAddRejectsMissingDocument(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env.configPath, "queue", "add", filepath.Join(t.TempDir(), "nope.dag")); err == nil {
		t.Fatal("expected error for missing document")
	}
}

func TestQueueRetryAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	doc := testsupport.WriteDocument(t, filepath.Join(testsupport.BaseDir(env.cfg), "incoming"), "heron.dag")
	chain := testsupport.Enqueue(t, store, doc, 1, "")
	if err := store.UpdateStatus(context.Background(), chain, queue.StatusGeneralError); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	out, _, err := runCLI(t, env.configPath, "queue", "retry")
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Retrying 1 chain(s)")

	out, _, err = runCLI(t, env.configPath, "queue", "list", "--status", "pending")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "heron.dag")

	out, _, err = runCLI(t, env.configPath, "queue", "clear")
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Cleared 1 chain(s)")

	out, _, err = runCLI(t, env.configPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Queue is empty")
}

func TestQueueClearRefusesRunning(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env.configPath, "queue", "clear", "--status", "running"); err == nil {
		t.Fatal("expected clear of running chains to fail")
	}
}

func TestQueueRejectsUnknownStatus(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, env.configPath, "queue", "list", "--status", "bogus"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"3", " 9 "})
	if err != nil || len(ids) != 2 || ids[0] != 3 || ids[1] != 9 {
		t.Fatalf("parseIDs = %v, %v", ids, err)
	}
	if _, err := parseIDs([]string{"0"}); err == nil {
		t.Fatal("expected zero id to be rejected")
	}
}
