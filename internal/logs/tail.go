package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const maxLineSize = 1024 * 1024

// DefaultPollInterval is how often Follow checks for appended lines.
const DefaultPollInterval = 250 * time.Millisecond

// Last returns up to limit trailing lines of path and the offset just past
// them. A missing file yields no lines and offset 0.
func Last(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	ring := make([]string, 0, limit)
	start := 0
	offset, err := scanLines(file, func(line string) {
		if len(ring) < limit {
			ring = append(ring, line)
			return
		}
		ring[start] = line
		start = (start + 1) % limit
	})
	if err != nil {
		return nil, 0, err
	}
	lines := append(append([]string(nil), ring[start:]...), ring[:start]...)
	return lines, offset, nil
}

// ReadFrom returns the complete lines appended to path after offset and the
// new offset. An offset beyond the end (the file was truncated) restarts at 0.
func ReadFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, offset, fmt.Errorf("log path %q is a directory", path)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	var lines []string
	consumed, err := scanLines(file, func(line string) { lines = append(lines, line) })
	if err != nil {
		return nil, offset, err
	}
	return lines, offset + consumed, nil
}

// Follow calls emit for every line appended to path after offset until ctx
// is done. Cancellation is not an error.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		lines, next, err := ReadFrom(path, offset)
		if err != nil {
			return err
		}
		for _, line := range lines {
			emit(line)
		}
		offset = next
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// scanLines feeds each newline-terminated line of r to fn and returns the
// number of bytes consumed. A trailing partial line is left for the next read.
func scanLines(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			consumed += int64(len(line))
			fn(trimEOL(line))
			if len(line) > maxLineSize {
				return consumed, fmt.Errorf("read log file: line exceeds %d bytes", maxLineSize)
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return consumed, nil
		}
		return consumed, fmt.Errorf("read log file: %w", err)
	}
}

func trimEOL(line string) string {
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
