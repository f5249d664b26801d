package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"flowpool/internal/engine"
	"flowpool/internal/fileutil"
	"flowpool/internal/logging"
	"flowpool/internal/proc"
	"flowpool/internal/queue"
)

// SlotState tracks a chain through the pool.
type SlotState int

const (
	SlotClaimed SlotState = iota
	SlotMaterialized
	SlotSpawned
	SlotCompleted
	SlotFailed
	SlotKilled
)

func (s SlotState) String() string {
	switch s {
	case SlotClaimed:
		return "claimed"
	case SlotMaterialized:
		return "materialized"
	case SlotSpawned:
		return "spawned"
	case SlotCompleted:
		return "completed"
	case SlotFailed:
		return "failed"
	case SlotKilled:
		return "killed"
	default:
		return fmt.Sprintf("slot_state(%d)", int(s))
	}
}

// Slot is one chain occupying the pool.
type Slot struct {
	Chain *queue.Chain
	// Document is the workspace copy handed to the engine.
	Document  string
	RunName   string
	State     SlotState
	StartedAt time.Time

	process *proc.Process
	capture *proc.Capture
}

// PID returns the engine's process ID, or 0 before spawn.
func (s *Slot) PID() int {
	if s.process == nil {
		return 0
	}
	return s.process.PID()
}

func (s *Slot) closeLogs() {
	if s.capture != nil {
		_ = s.capture.Close()
	}
}

func (s *Supervisor) slotFor(id int64) *Slot {
	for _, slot := range s.slots {
		if slot.Chain.ID == id {
			return slot
		}
	}
	return nil
}

// countRunningSlots reaps slots whose engine has exited and returns how many
// are still running.
func (s *Supervisor) countRunningSlots(ctx context.Context) int {
	kept := s.slots[:0]
	var finished []finishedSlot
	for _, slot := range s.slots {
		status, exited := slot.process.Poll()
		if !exited {
			kept = append(kept, slot)
			continue
		}
		slot.closeLogs()
		finished = append(finished, finishedSlot{slot: slot, status: status})
	}
	for i := len(kept); i < len(s.slots); i++ {
		s.slots[i] = nil
	}
	s.slots = kept
	for _, f := range finished {
		s.cleanupSlot(ctx, f.slot, f.status)
	}
	return len(s.slots)
}

type finishedSlot struct {
	slot   *Slot
	status int
}

// launch materializes and spawns one claimed chain. Failures are handled as
// a chain-local I/O error and never escape.
func (s *Supervisor) launch(ctx context.Context, chain *queue.Chain) {
	if chain == nil {
		return
	}
	if existing := s.slotFor(chain.ID); existing != nil {
		s.logger.Info("chain already occupies a pool slot; skipping",
			logging.String(logging.FieldEventType, "duplicate_chain_skipped"),
			logging.Int64(logging.FieldChainID, chain.ID),
			logging.String(logging.FieldRunName, existing.RunName),
		)
		return
	}

	slot := &Slot{
		Chain:     chain,
		RunName:   engine.RunName(chain.Owner, chain.ID),
		State:     SlotClaimed,
		StartedAt: time.Now(),
	}
	ctx = logging.ContextWithChain(ctx, chain.ID, slot.RunName)
	logger := logging.WithContext(ctx, s.logger)

	document, err := s.materialize(chain)
	slot.Document = document
	if err != nil {
		logging.WarnWithContext(logger, "chain document unavailable", "document_missing",
			logging.String("document", chain.DocumentPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "verify the document path recorded in the queue"),
			logging.String(logging.FieldImpact, "chain not started"),
		)
		s.cleanupSlot(ctx, slot, proc.ExitIOError)
		return
	}
	slot.State = SlotMaterialized

	if err := s.spawn(slot); err != nil {
		logging.WarnWithContext(logger, "failed to start workflow engine", "engine_spawn_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check engine.command and the workspace directory"),
			logging.String(logging.FieldImpact, "chain not started"),
		)
		slot.closeLogs()
		s.cleanupSlot(ctx, slot, proc.ExitIOError)
		return
	}
	slot.State = SlotSpawned
	s.slots = append(s.slots, slot)
	logger.Info("chain started",
		logging.String(logging.FieldEventType, "chain_spawned"),
		logging.Int(logging.FieldPID, slot.PID()),
		logging.Int("priority", chain.Priority),
		logging.String("document", slot.Document),
	)
}

// materialize copies the chain document into the workspace unless the
// chain's copy is already there, and returns the workspace path.
func (s *Supervisor) materialize(chain *queue.Chain) (string, error) {
	target, err := s.workspaceDocument(chain)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(target); err == nil {
		return target, nil
	}
	if err := fileutil.CopyFile(chain.DocumentPath, target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return target, err
	}
	if _, err := os.Stat(target); err != nil {
		return target, fmt.Errorf("document %s: %w", chain.DocumentPath, os.ErrNotExist)
	}
	return target, nil
}

// workspaceDocument names the chain's workspace copy <id>-<base>. Documents
// from different directories may share a base name.
func (s *Supervisor) workspaceDocument(chain *queue.Chain) (string, error) {
	base := filepath.Base(chain.DocumentPath)
	if base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid document path %q", chain.DocumentPath)
	}
	name := strconv.FormatInt(chain.ID, 10) + "-" + base
	return filepath.Join(s.cfg.Paths.WorkspaceDir, name), nil
}

func (s *Supervisor) spawn(slot *Slot) error {
	capture, err := proc.OpenCapture(s.cfg.ChainLogDir(), slot.RunName)
	if err != nil {
		return err
	}
	slot.capture = capture
	inv := s.builder.Build(engine.Params{
		Document: slot.Document,
		RunName:  slot.RunName,
		Priority: slot.Chain.Priority,
		Workdir:  s.cfg.Paths.WorkspaceDir,
	})
	cmd := inv.Cmd()
	cmd.Stdout = capture.Stdout
	cmd.Stderr = capture.Stderr
	process, err := proc.Start(cmd)
	if err != nil {
		return err
	}
	slot.process = process
	return nil
}
