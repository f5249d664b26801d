package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"flowpool/internal/logging"
	"flowpool/internal/proc"
)

// Default timings for Controller.
const (
	DefaultStopPollInterval = 5 * time.Second
	DefaultStopTimeout      = 60 * time.Second
	DefaultStartTimeout     = 10 * time.Second
)

var (
	// ErrAlreadyRunning indicates the PID file names a live process or the lock is held.
	ErrAlreadyRunning = errors.New("daemon already running")
	// ErrStopTimeout indicates the daemon did not exit within the stop timeout.
	ErrStopTimeout = errors.New("timed out waiting for daemon to stop")
)

// Status describes the daemon as seen through its PID file.
type Status struct {
	Running bool
	PID     int
	// Stale is set when the PID file names a process that no longer exists.
	Stale bool
}

// Controller drives a daemon from another process through its PID file and signals.
type Controller struct {
	PIDFile          string
	StopPollInterval time.Duration
	StopTimeout      time.Duration
	StartTimeout     time.Duration
	// Launch detaches a new daemon; it typically wraps Daemonize.
	Launch func() error
	Logger *slog.Logger
}

// NewController builds a Controller with default timings.
func NewController(pidFile string, launch func() error, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{
		PIDFile:          pidFile,
		StopPollInterval: DefaultStopPollInterval,
		StopTimeout:      DefaultStopTimeout,
		StartTimeout:     DefaultStartTimeout,
		Launch:           launch,
		Logger:           logger,
	}
}

// Status reports whether the PID file names a live process.
func (c *Controller) Status() (Status, error) {
	pid, err := ReadPID(c.PIDFile)
	if err != nil {
		if errors.Is(err, ErrNotRunning) {
			return Status{}, nil
		}
		return Status{}, err
	}
	if proc.Alive(pid) {
		return Status{Running: true, PID: pid}, nil
	}
	return Status{PID: pid, Stale: true}, nil
}

// Start launches the daemon unless one is already running, then waits for it
// to publish its PID file.
func (c *Controller) Start() (int, error) {
	status, err := c.Status()
	if err != nil {
		return 0, err
	}
	if status.Running {
		return status.PID, ErrAlreadyRunning
	}
	if status.Stale {
		c.Logger.Info("removing stale pid file",
			logging.String(logging.FieldEventType, "stale_pid_file"),
			logging.Int(logging.FieldPID, status.PID),
		)
		if err := RemovePID(c.PIDFile); err != nil {
			return 0, err
		}
	}
	if c.Launch == nil {
		return 0, errors.New("no launcher configured")
	}
	if err := c.Launch(); err != nil {
		return 0, fmt.Errorf("launch daemon: %w", err)
	}
	return c.waitForStart()
}

func (c *Controller) waitForStart() (int, error) {
	deadline := time.Now().Add(c.timeout(c.StartTimeout, DefaultStartTimeout))
	var lastErr error
	for time.Now().Before(deadline) {
		pid, err := ReadPID(c.PIDFile)
		if err == nil && proc.Alive(pid) {
			return pid, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil || errors.Is(lastErr, ErrNotRunning) {
		lastErr = fmt.Errorf("timeout waiting for pid file %s", c.PIDFile)
	}
	return 0, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// Stop sends SIGTERM until the daemon removes its PID file. A missing PID
// file means there is nothing to stop.
func (c *Controller) Stop() error {
	pid, err := ReadPID(c.PIDFile)
	if err != nil {
		if errors.Is(err, ErrNotRunning) {
			c.Logger.Info("daemon not running", logging.String(logging.FieldEventType, "daemon_not_running"))
			return nil
		}
		return err
	}

	interval := c.timeout(c.StopPollInterval, DefaultStopPollInterval)
	deadline := time.Now().Add(c.timeout(c.StopTimeout, DefaultStopTimeout))
	for {
		if err := unix.Kill(pid, unix.SIGTERM); err != nil {
			if errors.Is(err, unix.ESRCH) {
				c.Logger.Info("daemon stopped",
					logging.String(logging.FieldEventType, "daemon_stopped"),
					logging.Int(logging.FieldPID, pid),
				)
				return RemovePID(c.PIDFile)
			}
			return fmt.Errorf("signal daemon %d: %w", pid, err)
		}
		if c.waitForPIDFileGone(interval, deadline) {
			c.Logger.Info("daemon stopped",
				logging.String(logging.FieldEventType, "daemon_stopped"),
				logging.Int(logging.FieldPID, pid),
			)
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w (pid %d)", ErrStopTimeout, pid)
		}
	}
}

func (c *Controller) waitForPIDFileGone(interval time.Duration, deadline time.Time) bool {
	next := time.Now().Add(interval)
	if next.After(deadline) {
		next = deadline
	}
	for {
		if !pidFileExists(c.PIDFile) {
			return true
		}
		if !time.Now().Before(next) {
			return false
		}
		time.Sleep(min(100*time.Millisecond, time.Until(next)))
	}
}

// Restart stops the daemon if it is running and starts a new one.
func (c *Controller) Restart() (int, error) {
	if err := c.Stop(); err != nil {
		return 0, err
	}
	return c.Start()
}

// Update asks a running daemon to reload its configuration.
func (c *Controller) Update() error {
	status, err := c.Status()
	if err != nil {
		return err
	}
	if !status.Running {
		c.Logger.Warn("daemon not running; nothing to update",
			logging.String(logging.FieldEventType, "update_skipped"),
			logging.String(logging.FieldErrorHint, "start the daemon with flowpool start"),
			logging.String(logging.FieldImpact, "configuration not reloaded"),
		)
		return nil
	}
	if err := unix.Kill(status.PID, unix.SIGHUP); err != nil {
		return fmt.Errorf("signal daemon %d: %w", status.PID, err)
	}
	return nil
}

func (c *Controller) timeout(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
