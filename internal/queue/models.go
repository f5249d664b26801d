package queue

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a workflow chain.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	// StatusGeneralError is terminal; the chain stays for inspection.
	StatusGeneralError Status = "general_error"
	// StatusInitialize marks a chain for another attempt.
	StatusInitialize Status = "initialize"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusComplete,
	StatusGeneralError,
	StatusInitialize,
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a user-supplied string to a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Chain is one queued workflow: a DAG document plus where its outputs go.
type Chain struct {
	ID           int64
	Priority     int
	DocumentPath string
	// RelativeDir is the output directory relative to paths.output_dir.
	RelativeDir string
	Status      Status
	Owner       string
	Attempts    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (c *Chain) String() string {
	if c == nil {
		return "<nil chain>"
	}
	return fmt.Sprintf("chain %d (%s)", c.ID, c.Status)
}

// NewChain describes a chain to enqueue.
type NewChain struct {
	DocumentPath string
	RelativeDir  string
	Priority     int
	Owner        string
}

// Stats counts chains per status.
type Stats map[Status]int

// Total sums all counts.
func (s Stats) Total() int {
	total := 0
	for _, n := range s {
		total += n
	}
	return total
}
