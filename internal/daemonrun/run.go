package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"flowpool/internal/config"
	"flowpool/internal/daemon"
	"flowpool/internal/deps"
	"flowpool/internal/logging"
	"flowpool/internal/metrics"
	"flowpool/internal/queue"
	"flowpool/internal/services"
	"flowpool/internal/supervisor"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// ConfigPath is reloaded on SIGHUP. It must be absolute once detached.
	ConfigPath  string
	LogLevel    string
	Development bool
}

// Run starts the flowpool daemon and blocks until it stops.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.ChainLogDir(), Pattern: "*.log"},
		logging.RetentionTarget{Dir: cfg.ServiceLogDir(), Pattern: "*.log"},
	)

	store, err := queue.Open(ctx, cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open queue store", "queue_open_failed",
			logging.Error(err),
			logging.String("backend", cfg.Queue.Backend),
			logging.String(logging.FieldErrorHint, "check the [queue] configuration"),
		)
		return err
	}
	// Shutdown closes the store; this covers the error paths.
	defer store.Close()

	d := daemon.New(cfg.Paths.PIDFile, logger)
	if daemon.CurrentStage() == daemon.StageDetached {
		d.MarkDaemonizing()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	poolMetrics := metrics.New(registry)

	var server *metrics.Server
	if cfg.Metrics.Bind != "" {
		server, err = metrics.Start(cfg.Metrics.Bind, metrics.NewRouter(registry, healthCheck(d)), logger)
		if err != nil {
			logging.WarnWithContext(logger, "metrics endpoint disabled", "metrics_start_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "change metrics.bind or leave it empty"),
				logging.String(logging.FieldImpact, "no /metrics or /healthz endpoint"),
			)
			server = nil
		}
	}
	// The metrics endpoint outlives the supervisor so /healthz reports the
	// drain; nothing else stops it.
	defer func() {
		if err := server.Stop(context.Background()); err != nil {
			logging.WarnWithContext(logger, "failed to stop metrics endpoint", "metrics_stop_failed",
				logging.Error(err),
			)
		}
	}()

	svc := services.NewManager(cfg, logger)
	defer svc.StopAll()

	sup, err := supervisor.New(cfg, store, svc, logger,
		supervisor.WithMetrics(poolMetrics),
		supervisor.WithConfigPath(opts.ConfigPath),
	)
	if err != nil {
		return fmt.Errorf("create supervisor: %w", err)
	}

	if err := d.Serve(ctx, sup); err != nil {
		logging.ErrorWithContext(logger, "flowpool daemon exited with error", "daemon_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "see preceding log lines for the failing component"),
		)
		return err
	}
	return nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	if opts.LogLevel == "" && !opts.Development {
		return logging.NewFromConfig(cfg)
	}
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.DaemonLogPath()},
		Development: opts.Development,
	})
}

func healthCheck(d *daemon.Daemon) metrics.HealthFunc {
	return func() error {
		if state := d.State(); state != daemon.StateRunning {
			return fmt.Errorf("daemon %s", state)
		}
		return nil
	}
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("queue_backend", cfg.Queue.Backend),
		logging.String("workspace_dir", cfg.Paths.WorkspaceDir),
		logging.String("output_dir", cfg.Paths.OutputDir),
		logging.Int("pid", os.Getpid()),
	}
	missing := 0
	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		key := filepath.Base(status.Command)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
		if !status.Available && !status.Optional {
			missing++
		}
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
	if missing > 0 {
		logging.WarnWithContext(logger, "required binaries missing", "dependency_missing",
			logging.Int("missing", missing),
			logging.String(logging.FieldErrorHint, "install the binaries or fix their paths in the config"),
			logging.String(logging.FieldImpact, "services or chains will fail to start"),
		)
	}
}
