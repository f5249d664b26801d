package services

import (
	"log/slog"
	"time"

	"flowpool/internal/config"
	"flowpool/internal/logging"
)

// DefaultStopGrace bounds how long a stop waits after SIGTERM before SIGKILL.
const DefaultStopGrace = 5 * time.Second

// Manager owns the catalog and worker-provisioning services.
type Manager struct {
	catalog   *Service
	workers   *Service
	logDir    string
	logger    *slog.Logger
	StopGrace time.Duration
}

// NewManager prepares both services from cfg without starting them.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{
		catalog:   NewService(Catalog, cfg.Services.Catalog),
		workers:   NewService(Workers, cfg.Services.Workers),
		logDir:    cfg.ServiceLogDir(),
		logger:    logging.NewComponentLogger(logger, "services"),
		StopGrace: DefaultStopGrace,
	}
}

// StartCatalog spawns the catalog server.
func (m *Manager) StartCatalog() error {
	return m.start(m.catalog)
}

// StartWorkerProvisioning spawns the worker factory.
func (m *Manager) StartWorkerProvisioning() error {
	return m.start(m.workers)
}

func (m *Manager) start(s *Service) error {
	if err := s.start(m.logDir); err != nil {
		return err
	}
	m.logger.Info("service started",
		logging.String(logging.FieldService, s.Name),
		logging.Int(logging.FieldPID, s.PID()),
		logging.String("command", s.String()),
		logging.String(logging.FieldEventType, "service_started"),
	)
	return nil
}

// StopCatalog terminates the catalog server. Stopping twice is a no-op.
func (m *Manager) StopCatalog() {
	m.catalog.stop(m.StopGrace, m.logger)
}

// StopWorkerProvisioning terminates the worker factory. Stopping twice is a no-op.
func (m *Manager) StopWorkerProvisioning() {
	m.workers.stop(m.StopGrace, m.logger)
}

// StopAll stops the worker factory, then the catalog.
func (m *Manager) StopAll() {
	m.StopWorkerProvisioning()
	m.StopCatalog()
}

// StopOthers stops every service except dead.
func (m *Manager) StopOthers(dead *Service) {
	for _, s := range []*Service{m.workers, m.catalog} {
		if s != dead {
			s.stop(m.StopGrace, m.logger)
		}
	}
}

// Check polls both services and returns the first one that has exited, or nil.
func (m *Manager) Check() *Service {
	for _, s := range []*Service{m.catalog, m.workers} {
		if s.poll() {
			return s
		}
	}
	return nil
}

// Services returns the managed services, catalog first.
func (m *Manager) Services() []*Service {
	return []*Service{m.catalog, m.workers}
}
