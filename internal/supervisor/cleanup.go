package supervisor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"flowpool/internal/fileutil"
	"flowpool/internal/logging"
	"flowpool/internal/notifications"
	"flowpool/internal/queue"
	"flowpool/internal/retention"
)

// cleanupSlot applies the retention policy to a slot that has left the pool.
// Every step is best-effort; errors are logged and never returned, and a
// repeated call finds nothing left to do.
func (s *Supervisor) cleanupSlot(ctx context.Context, slot *Slot, exitStatus int) {
	outcome := retention.Classify(exitStatus)
	decision := s.tuning.Policy.Decide(outcome)
	slot.State = slotStateFor(outcome)

	ctx = logging.ContextWithChain(ctx, slot.Chain.ID, slot.RunName)
	logger := logging.WithContext(ctx, s.logger)
	elapsed := time.Since(slot.StartedAt)
	s.metrics.Finished(outcome.String(), elapsed)

	level := logger.Info
	if outcome.Failure() {
		level = logger.Warn
	}
	level("chain finished",
		logging.String(logging.FieldEventType, "chain_finished"),
		logging.Int(logging.FieldExitStatus, exitStatus),
		logging.String("outcome", outcome.String()),
		logging.Duration("elapsed", elapsed),
		logging.Bool("keep_logs", decision.KeepLogs),
		logging.Bool("keep_documents", decision.KeepDocuments),
		logging.Bool("keep_outputs", decision.KeepOutputs),
	)

	if !decision.KeepOutputs {
		s.removeOutputs(logger, slot)
	}
	if !decision.KeepLogs && slot.capture != nil {
		if err := slot.capture.Remove(); err != nil {
			s.cleanupWarning(logger, "failed to remove chain logs", err)
		}
	}
	s.settleDocuments(ctx, logger, slot, outcome, decision.KeepDocuments)
	s.sweepWorkspace(logger, slot)

	switch outcome {
	case retention.OutcomeFailed:
		s.notify(ctx, notifications.EventChainFailed, chainPayload(slot, exitStatus))
	case retention.OutcomeKilled:
		s.notify(ctx, notifications.EventChainKilled, chainPayload(slot, exitStatus))
	}
}

func slotStateFor(outcome retention.Outcome) SlotState {
	switch outcome {
	case retention.OutcomeSuccess:
		return SlotCompleted
	case retention.OutcomeKilled:
		return SlotKilled
	default:
		return SlotFailed
	}
}

// statusFor maps a failed outcome onto the status a retained chain keeps.
// Killed chains stay eligible for another attempt.
func statusFor(outcome retention.Outcome) queue.Status {
	if outcome == retention.OutcomeKilled {
		return queue.StatusInitialize
	}
	return queue.StatusGeneralError
}

func (s *Supervisor) removeOutputs(logger *slog.Logger, slot *Slot) {
	rel := filepath.Clean(slot.Chain.RelativeDir)
	// Never remove the output root itself or anything outside it.
	if slot.Chain.RelativeDir == "" || rel == "." || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return
	}
	if err := os.RemoveAll(filepath.Join(s.cfg.Paths.OutputDir, rel)); err != nil {
		s.cleanupWarning(logger, "failed to remove chain outputs", err)
	}
}

func (s *Supervisor) settleDocuments(ctx context.Context, logger *slog.Logger, slot *Slot, outcome retention.Outcome, keep bool) {
	if !keep {
		if err := fileutil.RemoveIfExists(slot.Chain.DocumentPath); err != nil {
			s.cleanupWarning(logger, "failed to remove chain document", err)
		}
		if slot.Document != "" && slot.Document != slot.Chain.DocumentPath {
			if err := fileutil.RemoveIfExists(slot.Document); err != nil {
				s.cleanupWarning(logger, "failed to remove workspace document", err)
			}
		}
		s.deleteChain(ctx, logger, slot.Chain)
		return
	}
	if outcome == retention.OutcomeSuccess {
		s.deleteChain(ctx, logger, slot.Chain)
		return
	}
	status := statusFor(outcome)
	if err := s.store.UpdateStatus(ctx, slot.Chain, status); err != nil {
		s.metrics.QueueFailed()
		s.cleanupWarning(logger, "failed to record chain status", err, logging.String("status", string(status)))
		return
	}
	slot.Chain.Status = status
}

func (s *Supervisor) deleteChain(ctx context.Context, logger *slog.Logger, chain *queue.Chain) {
	if err := s.store.Delete(ctx, chain); err != nil {
		s.metrics.QueueFailed()
		s.cleanupWarning(logger, "failed to delete chain record", err)
	}
}

// sweepWorkspace removes engine by-products next to the workspace document
// and any failed-run directories left by the engine.
func (s *Supervisor) sweepWorkspace(logger *slog.Logger, slot *Slot) {
	var patterns []string
	if document, err := s.workspaceDocument(slot.Chain); err == nil {
		patterns = append(patterns, globEscape(document)+".*")
	}
	if pattern := s.cfg.Engine.FailedDirPattern; pattern != "" {
		patterns = append(patterns, filepath.Join(s.cfg.Paths.WorkspaceDir, pattern))
	}
	for _, pattern := range patterns {
		_, errs := fileutil.RemoveGlob(pattern)
		for _, err := range errs {
			s.cleanupWarning(logger, "failed to sweep workspace", err)
		}
	}
}

func (s *Supervisor) cleanupWarning(logger *slog.Logger, msg string, err error, attrs ...logging.Attr) {
	s.metrics.CleanupFailed()
	attrs = append(attrs,
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check file permissions and queue availability"),
		logging.String(logging.FieldImpact, "chain artifacts may need manual cleanup"),
	)
	logging.WarnWithContext(logger, msg, "cleanup_failed", attrs...)
}

func globEscape(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '*', '?', '[', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
