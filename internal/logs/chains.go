package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ChainLog names the capture files of one chain run.
type ChainLog struct {
	RunName string
	Stdout  string
	Stderr  string
}

// FindChainLogs returns the chain logs in dir whose run name equals key, or
// whose chain ID equals key when key is numeric. Newest first.
func FindChainLogs(dir, key string) ([]ChainLog, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("chain key is empty")
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.out.log"))
	if err != nil {
		return nil, fmt.Errorf("list chain logs: %w", err)
	}
	_, numericErr := strconv.ParseInt(key, 10, 64)
	var found []ChainLog
	for _, stdout := range matches {
		run := strings.TrimSuffix(filepath.Base(stdout), ".out.log")
		if run != key && (numericErr != nil || runChainID(run) != key) {
			continue
		}
		found = append(found, ChainLog{
			RunName: run,
			Stdout:  stdout,
			Stderr:  filepath.Join(dir, run+".err.log"),
		})
	}
	sort.SliceStable(found, func(i, j int) bool {
		return modTime(found[i].Stdout) > modTime(found[j].Stdout)
	})
	return found, nil
}

// runChainID extracts the chain ID from a run name of the form
// <owner>-<id>-<suffix>.
func runChainID(run string) string {
	parts := strings.Split(run, "-")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-2]
}

func modTime(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixNano()
}
