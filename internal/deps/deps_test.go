package deps_test

import (
	"os"
	"path/filepath"
	"testing"

	"flowpool/internal/deps"
	"flowpool/internal/testsupport"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []deps.Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Empty", Command: "  "},
	}

	results := deps.CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected empty command result: %#v", results[2])
	}
}

func TestCheckSystemWithStubs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Engine.Command = "makeflow"
	cfg.Services.Catalog.Command = "catalog_server"
	cfg.Services.Workers.Command = "work_queue_factory"

	for _, status := range deps.CheckSystem(cfg) {
		if !status.Available {
			t.Fatalf("expected %s available: %s", status.Name, status.Detail)
		}
	}
}

func TestCheckDirectoryRejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if status := deps.CheckDirectory("File", file); status.Available {
		t.Fatal("a regular file is not a usable directory")
	}
	if status := deps.CheckDirectory("Missing", filepath.Join(file, "nope")); status.Available {
		t.Fatal("a missing path is not a usable directory")
	}
}
