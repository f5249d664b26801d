package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"flowpool/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Engine and services default to harmless shell commands so nothing in PATH
// is required; the metrics endpoint is disabled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkspaceDir = filepath.Join(base, "workspace")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.PIDFile = filepath.Join(base, "logs", "flowpool.pid")
	cfgVal.Queue.SQLitePath = filepath.Join(base, "logs", "queue.db")
	cfgVal.Pool.SleepInterval = 1
	cfgVal.Pool.ShutdownWait = 1
	cfgVal.Engine.Command = "/bin/sh"
	cfgVal.Engine.Args = []string{"-c", "exit 0"}
	cfgVal.Services.Catalog = config.Service{Command: "/bin/sh", Args: []string{"-c", "sleep 60"}}
	cfgVal.Services.Workers = config.Service{Command: "/bin/sh", Args: []string{"-c", "sleep 60"}}
	cfgVal.Metrics.Bind = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithEngineScript makes the workflow engine run script under /bin/sh. The
// script receives the document path as $1.
func WithEngineScript(script string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Engine.Command = "/bin/sh"
		b.cfg.Engine.Args = []string{"-c", script, "engine", "{document}"}
	}
}

// WithServiceScripts replaces the catalog and worker commands.
func WithServiceScripts(catalog, workers string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Services.Catalog = config.Service{Command: "/bin/sh", Args: []string{"-c", catalog}}
		b.cfg.Services.Workers = config.Service{Command: "/bin/sh", Args: []string{"-c", workers}}
	}
}

// WithPool overrides the pool size.
func WithPool(maxSize int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pool.MaxSize = maxSize
	}
}

// WithRetention overrides all three retention modes.
func WithRetention(logs, documents, outputs string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retention = config.Retention{Logs: logs, Documents: documents, Outputs: outputs}
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default engine and service
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"makeflow", "catalog_server", "work_queue_factory"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkspaceDir)
}
