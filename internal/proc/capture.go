package proc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Capture is a pair of files receiving a child's stdout and stderr.
type Capture struct {
	Stdout     *os.File
	Stderr     *os.File
	StdoutPath string
	StderrPath string
}

// OpenCapture creates (or truncates) dir/<name>.out.log and dir/<name>.err.log.
func OpenCapture(dir, name string) (*Capture, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	c := &Capture{
		StdoutPath: filepath.Join(dir, name+".out.log"),
		StderrPath: filepath.Join(dir, name+".err.log"),
	}
	var err error
	if c.Stdout, err = os.Create(c.StdoutPath); err != nil {
		return nil, fmt.Errorf("open stdout log: %w", err)
	}
	if c.Stderr, err = os.Create(c.StderrPath); err != nil {
		c.Stdout.Close()
		return nil, fmt.Errorf("open stderr log: %w", err)
	}
	return c, nil
}

// Close closes both files. Safe to call more than once.
func (c *Capture) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Stdout != nil {
		errs = append(errs, c.Stdout.Close())
		c.Stdout = nil
	}
	if c.Stderr != nil {
		errs = append(errs, c.Stderr.Close())
		c.Stderr = nil
	}
	return errors.Join(errs...)
}

// Remove deletes both log files. Missing files are tolerated.
func (c *Capture) Remove() error {
	if c == nil {
		return nil
	}
	var errs []error
	for _, path := range []string{c.StdoutPath, c.StderrPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
