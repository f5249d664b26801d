package retention

import (
	"fmt"
	"strings"
)

// Mode selects when an artifact category is preserved.
type Mode string

const (
	ModeNever     Mode = "never"
	ModeOnFailure Mode = "on_failure"
	ModeAlways    Mode = "always"
)

// ParseMode normalizes a configured mode string. Accepts a few spellings the
// sample config has used historically.
func ParseMode(value string) (Mode, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch normalized {
	case "never", "":
		return ModeNever, nil
	case "on_failure", "on_failure_only", "failure":
		return ModeOnFailure, nil
	case "always":
		return ModeAlways, nil
	default:
		return "", fmt.Errorf("unknown retention mode %q (want never, on_failure, always)", value)
	}
}

// Outcome classifies how a workflow subprocess terminated.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailed
	OutcomeKilled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	case OutcomeKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// Failure reports whether the outcome counts as a failure for retention.
func (o Outcome) Failure() bool {
	return o != OutcomeSuccess
}

// Classify maps an exit status onto an Outcome. Negative statuses mean the
// process was terminated by a signal.
func Classify(exitStatus int) Outcome {
	switch {
	case exitStatus < 0:
		return OutcomeKilled
	case exitStatus == 0:
		return OutcomeSuccess
	default:
		return OutcomeFailed
	}
}

// Policy is the process-wide retention configuration.
type Policy struct {
	Logs      Mode
	Documents Mode
	Outputs   Mode
}

// Uniform returns a policy applying the same mode to every category.
func Uniform(mode Mode) Policy {
	return Policy{Logs: mode, Documents: mode, Outputs: mode}
}

// Decision lists which categories survive cleanup.
type Decision struct {
	KeepLogs      bool
	KeepDocuments bool
	KeepOutputs   bool
}

// Decide evaluates each category independently against the outcome.
func (p Policy) Decide(outcome Outcome) Decision {
	return Decision{
		KeepLogs:      keep(p.Logs, outcome),
		KeepDocuments: keep(p.Documents, outcome),
		KeepOutputs:   keep(p.Outputs, outcome),
	}
}

func keep(mode Mode, outcome Outcome) bool {
	switch mode {
	case ModeAlways:
		return true
	case ModeOnFailure:
		return outcome.Failure()
	default:
		return false
	}
}

func (p Policy) String() string {
	return fmt.Sprintf("logs=%s documents=%s outputs=%s", p.Logs, p.Documents, p.Outputs)
}
