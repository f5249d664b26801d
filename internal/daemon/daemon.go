package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"flowpool/internal/logging"
)

// State is the lifecycle position of a Daemon.
type State int32

const (
	StateNotStarted State = iota
	StateDaemonizing
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateDaemonizing:
		return "daemonizing"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Control lets a Program inspect and clear the keep-running flag.
type Control interface {
	KeepRunning() bool
	StopRunning()
}

// Program is the work a Daemon drives. All hooks run on the goroutine that
// called Serve.
type Program interface {
	Initialize(ctx context.Context, ctl Control) error
	// Run performs one pass of work. A returned error ends Serve without
	// OnShutdown; the program is responsible for its own cleanup on that path.
	Run(ctx context.Context) error
	Interval() time.Duration
	OnUpdate(ctx context.Context)
	OnShutdown(ctx context.Context)
}

type eventKind int

const (
	eventUpdate eventKind = iota
	eventShutdown
)

type event struct {
	kind   eventKind
	signal os.Signal
}

// Daemon enforces single-instance execution and runs a Program until asked to stop.
type Daemon struct {
	pidFile  string
	lockPath string
	logger   *slog.Logger

	state       atomic.Int32
	keepRunning atomic.Bool
	shutdown    bool
}

// New constructs a daemon that publishes its PID in pidFile and locks pidFile+".lock".
func New(pidFile string, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Daemon{
		pidFile:  pidFile,
		lockPath: pidFile + ".lock",
		logger:   logging.NewComponentLogger(logger, "daemon"),
	}
}

// State returns the current lifecycle state.
func (d *Daemon) State() State {
	return State(d.state.Load())
}

// MarkDaemonizing records that the detach sequence is in progress.
func (d *Daemon) MarkDaemonizing() {
	d.state.CompareAndSwap(int32(StateNotStarted), int32(StateDaemonizing))
}

// KeepRunning reports whether the serve loop should continue.
func (d *Daemon) KeepRunning() bool {
	return d.keepRunning.Load()
}

// StopRunning clears the keep-running flag; the loop exits after the current pass.
func (d *Daemon) StopRunning() {
	d.keepRunning.Store(false)
}

func (d *Daemon) setState(s State) {
	d.state.Store(int32(s))
}

// Serve acquires the lock, writes the PID file, and drives program until a
// shutdown signal, cancellation of ctx, or removal of the PID file.
func (d *Daemon) Serve(ctx context.Context, program Program) error {
	if program == nil {
		return errors.New("daemon requires a program")
	}
	defer d.setState(StateStopped)

	lock := flock.New(d.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: lock %s is held", ErrAlreadyRunning, d.lockPath)
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(unlockErr))
		}
	}()

	if err := WritePID(d.pidFile, os.Getpid()); err != nil {
		return err
	}
	defer func() {
		if rmErr := RemovePID(d.pidFile); rmErr != nil {
			d.logger.Warn("failed to remove pid file", logging.Error(rmErr))
		}
	}()

	signalCtx, cancelSignals := context.WithCancel(ctx)
	defer cancelSignals()
	events := d.forwardSignals(signalCtx)

	d.keepRunning.Store(true)
	d.shutdown = false
	if err := program.Initialize(ctx, d); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	d.setState(StateRunning)
	d.logger.Info("flowpool daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.Int(logging.FieldPID, os.Getpid()),
		logging.String("pid_file", d.pidFile),
	)

	for d.keepRunning.Load() {
		if !pidFileExists(d.pidFile) {
			d.logger.Info("pid file removed; shutting down",
				logging.String(logging.FieldEventType, "pid_file_removed"),
				logging.String("pid_file", d.pidFile),
			)
			d.stop(ctx, program)
			break
		}
		if err := program.Run(ctx); err != nil {
			d.keepRunning.Store(false)
			return fmt.Errorf("run: %w", err)
		}
		if !d.keepRunning.Load() {
			break
		}
		d.wait(ctx, program, events)
	}

	d.stop(ctx, program)
	d.logger.Info("flowpool daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return nil
}

// forwardSignals translates process signals and context cancellation into
// events. Only the owning goroutine acts on them.
func (d *Daemon) forwardSignals(ctx context.Context) <-chan event {
	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT)
	events := make(chan event, 4)
	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				kind := eventShutdown
				if sig == syscall.SIGHUP {
					kind = eventUpdate
				}
				select {
				case events <- event{kind: kind, signal: sig}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events
}

func (d *Daemon) wait(ctx context.Context, program Program, events <-chan event) {
	timer := time.NewTimer(program.Interval())
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return
		case <-ctx.Done():
			d.stop(ctx, program)
			return
		case ev := <-events:
			if ev.kind == eventUpdate {
				d.logger.Info("update requested",
					logging.String(logging.FieldEventType, "update_requested"),
					logging.String("signal", ev.signal.String()),
				)
				program.OnUpdate(ctx)
				continue
			}
			d.logger.Info("shutdown requested",
				logging.String(logging.FieldEventType, "shutdown_requested"),
				logging.String("signal", ev.signal.String()),
			)
			d.stop(ctx, program)
			return
		}
	}
}

func (d *Daemon) stop(ctx context.Context, program Program) {
	d.keepRunning.Store(false)
	if d.shutdown {
		return
	}
	d.shutdown = true
	d.setState(StateShuttingDown)
	program.OnShutdown(context.WithoutCancel(ctx))
}
