package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flowpool/internal/config"
	"flowpool/internal/daemon"
	"flowpool/internal/deps"
	"flowpool/internal/queue"
)

type statusSnapshot struct {
	Daemon     daemon.Status
	PIDFile    string
	ConfigPath string
	Backend    string
	Pool       config.Pool
	Retention  string
	Checks     []deps.Status
	Queue      queue.Stats
	QueueErr   error
}

func buildStatusSnapshot(ctx context.Context, cfg *config.Config, status daemon.Status) statusSnapshot {
	snapshot := statusSnapshot{
		Daemon:    status,
		PIDFile:   cfg.Paths.PIDFile,
		Backend:   cfg.Queue.Backend,
		Pool:      cfg.Pool,
		Retention: cfg.RetentionPolicy().String(),
		Checks:    deps.CheckSystem(cfg),
	}
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	store, err := queue.Open(queryCtx, cfg)
	if err != nil {
		snapshot.QueueErr = err
		return snapshot
	}
	defer store.Close()
	snapshot.Queue, snapshot.QueueErr = store.Stats(queryCtx)
	return snapshot
}

func renderStatus(s statusSnapshot, colorize bool) string {
	var lines []string

	lines = append(lines, renderSectionHeader("Daemon", colorize)...)
	switch {
	case s.Daemon.Running:
		lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", s.Daemon.PID), colorize))
	case s.Daemon.Stale:
		lines = append(lines, renderStatusLine("Daemon", statusWarn, fmt.Sprintf("Not running (stale pid %d)", s.Daemon.PID), colorize))
	default:
		lines = append(lines, renderStatusLine("Daemon", statusInfo, "Not running", colorize))
	}
	lines = append(lines,
		renderStatusLine("PID file", statusInfo, s.PIDFile, colorize),
		renderStatusLine("Pool", statusInfo, fmt.Sprintf("max %d, every %ds, shutdown wait %ds", s.Pool.MaxSize, s.Pool.SleepInterval, s.Pool.ShutdownWait), colorize),
		renderStatusLine("Retention", statusInfo, s.Retention, colorize),
	)

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	for _, check := range s.Checks {
		kind := statusOK
		message := "Ready"
		if !check.Available {
			kind = statusError
			if check.Optional {
				kind = statusWarn
			}
			message = strings.TrimSpace(check.Detail)
			if message == "" {
				message = "Unavailable"
			}
		}
		lines = append(lines, renderStatusLine(check.Name, kind, message, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Queue ("+s.Backend+")", colorize)...)
	if s.QueueErr != nil {
		lines = append(lines, renderStatusLine("Queue", statusError, s.QueueErr.Error(), colorize))
		return strings.Join(lines, "\n") + "\n"
	}
	if s.Queue.Total() == 0 {
		lines = append(lines, renderStatusLine("Queue", statusInfo, "Empty", colorize))
		return strings.Join(lines, "\n") + "\n"
	}
	for _, status := range queue.AllStatuses() {
		count := s.Queue[status]
		if count == 0 {
			continue
		}
		kind := statusInfo
		if status == queue.StatusGeneralError {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(string(status), kind, fmt.Sprintf("%d", count), colorize))
	}
	return strings.Join(lines, "\n") + "\n"
}
