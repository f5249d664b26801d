package supervisor

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"flowpool/internal/logging"
	"flowpool/internal/notifications"
	"flowpool/internal/queue"
)

// OnShutdown drains the pool for up to the configured shutdown wait, kills
// whatever is still running, then releases the queue and the dependent
// services. Killed chains are returned to initialize so a later
// daemon retries them.
func (s *Supervisor) OnShutdown(ctx context.Context) {
	s.stopRunning()
	s.logger.Info("pool supervisor shutting down",
		logging.String(logging.FieldEventType, "supervisor_shutdown"),
		logging.Int("running", len(s.slots)),
		logging.Duration("shutdown_wait", s.tuning.ShutdownWait),
	)

	deadline := time.Now().Add(s.tuning.ShutdownWait)
	for s.countRunningSlots(ctx) > 0 && time.Now().Before(deadline) {
		time.Sleep(min(s.pollStep(), time.Until(deadline)))
	}

	killed := 0
	for _, slot := range s.slots {
		if s.killSlot(ctx, slot) {
			killed++
		}
	}
	s.slots = nil
	s.metrics.SetPool(0, s.tuning.MaxSize)

	if killed > 0 {
		s.notify(ctx, notifications.EventDaemonStopped, notifications.Payload{"killed": strconv.Itoa(killed)})
	}

	if err := s.store.Close(); err != nil {
		logging.WarnWithContext(s.logger, "failed to close queue", "queue_close_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "queue connections released by process exit"),
		)
	}
	s.services.StopAll()
	for _, svc := range s.services.Services() {
		s.metrics.SetServiceUp(svc.Name, false)
	}
	s.logger.Info("pool supervisor stopped", logging.String(logging.FieldEventType, "supervisor_stopped"))
}

func (s *Supervisor) pollStep() time.Duration {
	step := s.tuning.SleepInterval
	if step <= 0 || step > time.Second {
		step = time.Second
	}
	return step
}

// killSlot kills a chain's process group and returns it to initialize. A
// chain that exited since the last drain poll is cleaned up as finished
// instead; its PID may already belong to another process.
func (s *Supervisor) killSlot(ctx context.Context, slot *Slot) bool {
	if status, exited := slot.process.Poll(); exited {
		slot.closeLogs()
		s.cleanupSlot(ctx, slot, status)
		return false
	}
	ctx = logging.ContextWithChain(ctx, slot.Chain.ID, slot.RunName)
	logger := logging.WithContext(ctx, s.logger)
	if err := slot.process.SignalGroup(unix.SIGKILL); err != nil {
		logging.WarnWithContext(logger, "failed to kill chain", "chain_kill_failed",
			logging.Error(err),
			logging.Int(logging.FieldPID, slot.PID()),
			logging.String(logging.FieldImpact, "engine processes may outlive the daemon"),
		)
	}
	if _, ok := slot.process.Wait(s.killWait); !ok {
		logging.WarnWithContext(logger, "killed chain was not reaped in time", "chain_reap_timeout",
			logging.Int(logging.FieldPID, slot.PID()),
		)
	}
	slot.closeLogs()
	slot.State = SlotKilled
	s.metrics.Finished("killed", time.Since(slot.StartedAt))
	if err := s.store.UpdateStatus(ctx, slot.Chain, queue.StatusInitialize); err != nil {
		s.metrics.QueueFailed()
		logging.WarnWithContext(logger, "failed to return killed chain to queue", "queue_update_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "chain stays running until the next daemon start resets it"),
		)
		return true
	}
	slot.Chain.Status = queue.StatusInitialize
	logger.Warn("chain killed at shutdown",
		logging.String(logging.FieldEventType, "chain_killed"),
		logging.String(logging.FieldImpact, "chain will be retried"),
		logging.String(logging.FieldErrorHint, "raise pool.shutdown_wait to let chains finish"),
	)
	return true
}
