// Package fileutil holds the small filesystem helpers the pool uses to
// materialize workflow documents and sweep their leftovers.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// CopyFile streams src to dst with default permissions (0o644).
func CopyFile(src, dst string) error {
	return CopyFileMode(src, dst, 0o644)
}

// CopyFileMode streams src into a temporary sibling of dst and renames it into
// place, so dst is never observed half-written.
func CopyFileMode(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, dst)
}

// RemoveIfExists removes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveGlob removes every entry matching pattern, directories included.
// It returns the removed paths and the errors for entries that remain.
func RemoveGlob(pattern string) ([]string, []error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, []error{fmt.Errorf("glob %q: %w", pattern, err)}
	}
	var (
		removed []string
		errs    []error
	)
	for _, match := range matches {
		if err := os.RemoveAll(match); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", match, err))
			continue
		}
		removed = append(removed, match)
	}
	return removed, errs
}
