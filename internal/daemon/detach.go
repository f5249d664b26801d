package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// StageEnv carries the detach stage across re-executions.
const StageEnv = "FLOWPOOL_DAEMON_STAGE"

// Stage identifies which step of the detach sequence the current process is.
type Stage int

const (
	// StageForeground runs the daemon attached to the caller, e.g. under systemd.
	StageForeground Stage = iota
	// StageSession is the session leader started by Daemonize.
	StageSession
	// StageDetached is the final daemon process.
	StageDetached
)

func (s Stage) String() string {
	switch s {
	case StageSession:
		return "session"
	case StageDetached:
		return "detached"
	default:
		return "foreground"
	}
}

// CurrentStage reads the stage marker from the environment.
func CurrentStage() Stage {
	switch strings.TrimSpace(os.Getenv(StageEnv)) {
	case "1":
		return StageSession
	case "2":
		return StageDetached
	default:
		return StageForeground
	}
}

// Daemonize re-executes executable with args as a new session leader whose
// stdio points at /dev/null, and waits for that intermediate process to exit.
// The intermediate process is expected to call Continue.
func Daemonize(executable string, args []string) error {
	cmd, devnull, err := stageCommand(executable, args, StageSession)
	if err != nil {
		return err
	}
	defer devnull.Close()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("detach stage %s: %w", StageSession, err)
	}
	return nil
}

// Continue advances the detach sequence for the current process. It returns
// true when the caller should go on to serve, and false when the caller is
// the intermediate stage and must exit successfully.
func Continue(executable string, args []string) (bool, error) {
	switch CurrentStage() {
	case StageSession:
		cmd, devnull, err := stageCommand(executable, args, StageDetached)
		if err != nil {
			return false, err
		}
		defer devnull.Close()
		if err := cmd.Start(); err != nil {
			return false, fmt.Errorf("detach stage %s: %w", StageDetached, err)
		}
		if err := cmd.Process.Release(); err != nil {
			return false, fmt.Errorf("release detached process: %w", err)
		}
		return false, nil
	case StageDetached:
		unix.Umask(0)
		if err := os.Chdir("/"); err != nil {
			return false, fmt.Errorf("chdir /: %w", err)
		}
		return true, nil
	default:
		return true, nil
	}
}

func stageCommand(executable string, args []string, stage Stage) (*exec.Cmd, *os.File, error) {
	if strings.TrimSpace(executable) == "" {
		return nil, nil, fmt.Errorf("resolve executable: executable path is empty")
	}
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	cmd := exec.Command(executable, args...)
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull
	cmd.Dir = "/"
	cmd.Env = append(withoutStage(os.Environ()), fmt.Sprintf("%s=%d", StageEnv, int(stage)))
	return cmd, devnull, nil
}

func withoutStage(env []string) []string {
	out := make([]string, 0, len(env))
	prefix := StageEnv + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return out
}
