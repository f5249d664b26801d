package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrNotRunning indicates that no PID file exists.
var ErrNotRunning = errors.New("daemon not running")

// ReadPID returns the PID recorded in path. A missing file yields ErrNotRunning.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotRunning
		}
		return 0, fmt.Errorf("read pid file %q: %w", path, err)
	}
	value := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(value)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pid file %q holds invalid pid %q", path, value)
	}
	return pid, nil
}

// WritePID records pid as a decimal line in path.
func WritePID(path string, pid int) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("pid file path is empty")
	}
	value := strconv.Itoa(pid) + "\n"
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write pid file %q: %w", path, err)
	}
	return nil
}

// RemovePID deletes the PID file; a missing file is not an error.
func RemovePID(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pid file %q: %w", path, err)
	}
	return nil
}

func pidFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
