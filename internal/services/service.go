package services

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"flowpool/internal/config"
	"flowpool/internal/logging"
	"flowpool/internal/proc"
)

// Service names.
const (
	Catalog = "catalog"
	Workers = "workers"
)

// Service is one dependent process.
type Service struct {
	Name    string
	Command string
	Args    []string

	process *proc.Process
	capture *proc.Capture
	exit    int
	exited  bool
}

// NewService describes a service from its config section.
func NewService(name string, cfg config.Service) *Service {
	return &Service{
		Name:    name,
		Command: cfg.Command,
		Args:    append([]string(nil), cfg.Args...),
	}
}

// Running reports whether the service was started and has not been observed to exit.
func (s *Service) Running() bool {
	return s.process != nil && !s.exited
}

// PID returns the service's process ID, or 0 when not started.
func (s *Service) PID() int {
	if s.process == nil {
		return 0
	}
	return s.process.PID()
}

// ExitStatus returns the status recorded by the last poll that observed an exit.
func (s *Service) ExitStatus() (int, bool) {
	return s.exit, s.exited
}

func (s *Service) String() string {
	return fmt.Sprintf("%s (%s)", s.Name, strings.Join(append([]string{s.Command}, s.Args...), " "))
}

func (s *Service) start(logDir string) error {
	if s.Running() {
		return nil
	}
	capture, err := proc.OpenCapture(logDir, s.Name)
	if err != nil {
		return fmt.Errorf("start %s: %w", s.Name, err)
	}
	cmd := exec.Command(s.Command, s.Args...)
	cmd.Stdout = capture.Stdout
	cmd.Stderr = capture.Stderr
	process, err := proc.Start(cmd)
	if err != nil {
		capture.Close()
		return fmt.Errorf("start %s: %w", s.Name, err)
	}
	s.process = process
	s.capture = capture
	s.exited = false
	s.exit = 0
	return nil
}

// poll records the exit status without blocking.
func (s *Service) poll() bool {
	if s.process == nil {
		return false
	}
	if s.exited {
		return true
	}
	status, done := s.process.Poll()
	if !done {
		return false
	}
	s.exit = status
	s.exited = true
	s.capture.Close()
	return true
}

// stop terminates the process group, escalating to SIGKILL after grace.
func (s *Service) stop(grace time.Duration, logger *slog.Logger) {
	if s.process == nil {
		return
	}
	if !s.poll() {
		if err := s.process.SignalGroup(unix.SIGTERM); err != nil {
			logging.WarnWithContext(logger, "service terminate failed", "service_stop_failed",
				logging.String(logging.FieldService, s.Name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "service may keep running after daemon exit"),
			)
		}
		if _, done := s.process.Wait(grace); !done {
			_ = s.process.SignalGroup(unix.SIGKILL)
			s.process.Wait(grace)
		}
		s.poll()
	}
	s.capture.Close()
	logger.Info("service stopped",
		logging.String(logging.FieldService, s.Name),
		logging.Int(logging.FieldExitStatus, s.exit),
		logging.String(logging.FieldEventType, "service_stopped"),
	)
	s.process = nil
	s.capture = nil
}
