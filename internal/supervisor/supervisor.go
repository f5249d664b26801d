package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"flowpool/internal/config"
	"flowpool/internal/daemon"
	"flowpool/internal/engine"
	"flowpool/internal/logging"
	"flowpool/internal/metrics"
	"flowpool/internal/notifications"
	"flowpool/internal/queue"
	"flowpool/internal/retention"
	"flowpool/internal/services"
)

// ErrDependentServiceExited is returned by Run when the catalog or the worker
// factory is found dead.
var ErrDependentServiceExited = errors.New("dependent service exited")

// ServiceManager is the part of services.Manager the supervisor drives.
type ServiceManager interface {
	StartCatalog() error
	StartWorkerProvisioning() error
	Check() *services.Service
	StopOthers(dead *services.Service)
	StopAll()
	Services() []*services.Service
}

// Tuning holds the values a configuration reload may replace.
type Tuning struct {
	MaxSize       int
	SleepInterval time.Duration
	ShutdownWait  time.Duration
	Policy        retention.Policy
}

// TuningFromConfig extracts the reloadable values from cfg.
func TuningFromConfig(cfg *config.Config) Tuning {
	return Tuning{
		MaxSize:       cfg.Pool.MaxSize,
		SleepInterval: cfg.SleepInterval(),
		ShutdownWait:  cfg.ShutdownWait(),
		Policy:        cfg.RetentionPolicy(),
	}
}

// Supervisor runs workflow chains from the queue in a bounded pool.
type Supervisor struct {
	cfg      *config.Config
	store    queue.Client
	services ServiceManager
	builder  *engine.Builder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	notifier notifications.Service

	configPath string
	loadConfig func(path string) (*config.Config, error)
	killWait   time.Duration

	ctl    daemon.Control
	tuning Tuning
	slots  []*Slot
}

// Option configures optional Supervisor collaborators.
type Option func(*Supervisor)

// WithMetrics records pool activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// WithNotifier replaces the ntfy notifier built from the config.
func WithNotifier(n notifications.Service) Option {
	return func(s *Supervisor) { s.notifier = n }
}

// WithConfigPath sets the file OnUpdate reloads.
func WithConfigPath(path string) Option {
	return func(s *Supervisor) { s.configPath = path }
}

// WithConfigLoader replaces the loader used by OnUpdate.
func WithConfigLoader(load func(path string) (*config.Config, error)) Option {
	return func(s *Supervisor) { s.loadConfig = load }
}

// DefaultKillWait is how long shutdown waits for each killed chain to be
// reaped.
const DefaultKillWait = 2 * time.Second

// WithKillWait bounds how long shutdown waits for a killed chain to be reaped.
func WithKillWait(d time.Duration) Option {
	return func(s *Supervisor) { s.killWait = d }
}

// New constructs a supervisor. Nothing is started until Initialize.
func New(cfg *config.Config, store queue.Client, svc ServiceManager, logger *slog.Logger, opts ...Option) (*Supervisor, error) {
	if cfg == nil || store == nil || svc == nil {
		return nil, errors.New("supervisor requires config, queue client, and service manager")
	}
	s := &Supervisor{
		cfg:        cfg,
		store:      store,
		services:   svc,
		builder:    engine.NewBuilder(cfg.Engine),
		logger:     logging.NewComponentLogger(logger, "supervisor"),
		notifier:   notifications.NewService(cfg),
		loadConfig: loadConfigFile,
		killWait:   DefaultKillWait,
		tuning:     TuningFromConfig(cfg),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func loadConfigFile(path string) (*config.Config, error) {
	cfg, _, _, err := config.Load(path)
	return cfg, err
}

// Tuning returns the active pool tuning.
func (s *Supervisor) Tuning() Tuning {
	return s.tuning
}

// Slots returns a snapshot of the occupied pool slots.
func (s *Supervisor) Slots() []*Slot {
	return append([]*Slot(nil), s.slots...)
}

// Interval is the pause between Run passes.
func (s *Supervisor) Interval() time.Duration {
	return s.tuning.SleepInterval
}

// Initialize recovers chains orphaned by a previous daemon and starts the
// dependent services. A failure to start either service is fatal.
func (s *Supervisor) Initialize(ctx context.Context, ctl daemon.Control) error {
	s.ctl = ctl
	if admin, ok := s.store.(queue.Admin); ok {
		reset, err := admin.ResetRunning(ctx)
		if err != nil {
			return fmt.Errorf("reset orphaned chains: %w", err)
		}
		if reset > 0 {
			s.logger.Info("recovered chains left running by a previous daemon",
				logging.String(logging.FieldEventType, "orphaned_chains_reset"),
				logging.Int64("count", reset),
			)
		}
	}
	if err := s.services.StartCatalog(); err != nil {
		return fmt.Errorf("start catalog: %w", err)
	}
	if err := s.services.StartWorkerProvisioning(); err != nil {
		s.services.StopAll()
		return fmt.Errorf("start worker provisioning: %w", err)
	}
	for _, svc := range s.services.Services() {
		s.metrics.SetServiceUp(svc.Name, svc.Running())
	}
	s.metrics.SetPool(0, s.tuning.MaxSize)
	s.logger.Info("pool supervisor initialized",
		logging.String(logging.FieldEventType, "supervisor_initialized"),
		logging.Int("max_size", s.tuning.MaxSize),
		logging.Duration("sleep_interval", s.tuning.SleepInterval),
		logging.String("retention", s.tuning.Policy.String()),
	)
	return nil
}

// Run performs one supervision pass.
func (s *Supervisor) Run(ctx context.Context) error {
	if dead := s.services.Check(); dead != nil {
		status, _ := dead.ExitStatus()
		logging.ErrorWithContext(s.logger, "dependent service exited", "dependent_service_exited",
			logging.String(logging.FieldService, dead.Name),
			logging.Int(logging.FieldExitStatus, status),
			logging.String(logging.FieldErrorHint, "inspect the service logs under log_dir/services"),
		)
		s.metrics.SetServiceUp(dead.Name, false)
		s.notify(ctx, notifications.EventServiceExited, notifications.Payload{
			"service":     dead.Name,
			"exit_status": strconv.Itoa(status),
		})
		s.services.StopOthers(dead)
		s.stopRunning()
		return fmt.Errorf("%w: %s (status %d)", ErrDependentServiceExited, dead.Name, status)
	}

	running := s.countRunningSlots(ctx)
	s.metrics.SetPool(running, s.tuning.MaxSize)
	toClaim := s.tuning.MaxSize - running
	if toClaim <= 0 {
		return nil
	}

	chains, err := s.store.FindReady(ctx, toClaim)
	if err != nil {
		s.metrics.QueueFailed()
		logging.ErrorWithContext(s.logger, "queue query failed", "queue_error",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue backend availability"),
		)
		s.notify(ctx, notifications.EventQueueError, notifications.Payload{"error": err.Error()})
		s.services.StopAll()
		s.stopRunning()
		return fmt.Errorf("find ready chains: %w", err)
	}
	if len(chains) == 0 {
		return nil
	}
	s.metrics.Claimed(len(chains))
	for _, chain := range chains {
		s.launch(ctx, chain)
	}
	s.metrics.SetPool(len(s.slots), s.tuning.MaxSize)
	return nil
}

func (s *Supervisor) stopRunning() {
	if s.ctl != nil {
		s.ctl.StopRunning()
	}
}
