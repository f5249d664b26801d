// Package deps reports whether the external binaries and directories flowpool
// drives are usable. The daemon logs the snapshot at startup and the status
// command prints it.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"flowpool/internal/config"
)

// Requirement defines an external binary flowpool relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the binaries named by cfg.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "Workflow engine",
			Command:     cfg.Engine.Command,
			Description: "Runs each workflow chain",
		},
		{
			Name:        "Catalog server",
			Command:     cfg.Services.Catalog.Command,
			Description: "Lets workers discover the engine's task queue",
		},
		{
			Name:        "Worker factory",
			Command:     cfg.Services.Workers.Command,
			Description: "Provisions workers for queued tasks",
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch {
		case cmd == "":
			status.Detail = "command not configured"
		default:
			if _, err := exec.LookPath(cmd); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", cmd)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

// CheckDirectory verifies path is a directory the daemon can read, write and traverse.
func CheckDirectory(name, path string) Status {
	status := Status{Name: name, Command: path}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		status.Detail = fmt.Sprintf("stat: %v", err)
	case !info.IsDir():
		status.Detail = "is not a directory"
	default:
		if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
			status.Detail = fmt.Sprintf("insufficient permissions: %v", err)
		} else {
			status.Available = true
			status.Detail = "read/write ok"
		}
	}
	return status
}

// CheckSystem evaluates the binaries and working directories for cfg.
func CheckSystem(cfg *config.Config) []Status {
	results := CheckBinaries(Requirements(cfg))
	results = append(results,
		CheckDirectory("Workspace", cfg.Paths.WorkspaceDir),
		CheckDirectory("Output", cfg.Paths.OutputDir),
		CheckDirectory("Logs", cfg.Paths.LogDir),
	)
	return results
}
