package supervisor

import (
	"context"

	"flowpool/internal/logging"
)

// OnUpdate reloads the configuration file and swaps in the new pool tuning.
// Paths, engine, services, and queue settings need a restart to change.
func (s *Supervisor) OnUpdate(ctx context.Context) {
	cfg, err := s.loadConfig(s.configPath)
	if err != nil {
		s.metrics.Reloaded(false)
		logging.WarnWithContext(s.logger, "configuration reload failed", "config_reload_failed",
			logging.Error(err),
			logging.String("config_path", s.configPath),
			logging.String(logging.FieldErrorHint, "run flowpool config validate"),
			logging.String(logging.FieldImpact, "previous settings remain active"),
		)
		return
	}
	previous := s.tuning
	s.tuning = TuningFromConfig(cfg)
	s.metrics.Reloaded(true)
	s.metrics.SetPool(len(s.slots), s.tuning.MaxSize)
	s.logger.Info("configuration reloaded",
		logging.String(logging.FieldEventType, "config_reloaded"),
		logging.Int("max_size", s.tuning.MaxSize),
		logging.Int("previous_max_size", previous.MaxSize),
		logging.Duration("sleep_interval", s.tuning.SleepInterval),
		logging.Duration("shutdown_wait", s.tuning.ShutdownWait),
		logging.String("retention", s.tuning.Policy.String()),
	)
}
