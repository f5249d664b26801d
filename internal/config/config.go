package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"flowpool/internal/retention"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and PID file configuration.
type Paths struct {
	WorkspaceDir string `toml:"workspace_dir"`
	OutputDir    string `toml:"output_dir"`
	LogDir       string `toml:"log_dir"`
	PIDFile      string `toml:"pid_file"`
}

// Pool contains the supervisor's tuning knobs. Durations are in seconds.
type Pool struct {
	MaxSize       int `toml:"max_size"`
	SleepInterval int `toml:"sleep_interval"`
	ShutdownWait  int `toml:"shutdown_wait"`
}

// Retention selects which chain artifacts survive cleanup.
type Retention struct {
	Logs      string `toml:"logs"`
	Documents string `toml:"documents"`
	Outputs   string `toml:"outputs"`
}

// Engine describes the workflow-engine invocation. Args may reference
// {document}, {run_name}, {priority} and {workdir}.
type Engine struct {
	Command          string   `toml:"command"`
	Args             []string `toml:"args"`
	FailedDirPattern string   `toml:"failed_dir_pattern"`
}

// Service is a long-running dependent process started with the daemon.
type Service struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// Services groups the catalog server and the worker provisioner.
type Services struct {
	Catalog Service `toml:"catalog"`
	Workers Service `toml:"workers"`
}

// Queue selects and configures the work queue backend.
type Queue struct {
	Backend     string `toml:"backend"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
	MaxAttempts int    `toml:"max_attempts"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics configures the Prometheus endpoint. An empty bind disables it.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Notifications configures ntfy alerts. An empty topic disables them.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	ChainFailures  bool   `toml:"chain_failures"`
}

// Config encapsulates all configuration values for flowpool.
//
// Configuration sections by subsystem:
//   - Paths: workspace, output, log directories and the PID file
//   - Pool: supervisor pool size and timing
//   - Retention: artifact retention per category
//   - Engine: workflow engine command line
//   - Services: catalog server and worker provisioning commands
//   - Queue: work queue backend
//   - Logging: log format, level, and retention
//   - Metrics: Prometheus endpoint bind address
//   - Notifications: ntfy alerts for failures
type Config struct {
	Paths     Paths     `toml:"paths"`
	Pool      Pool      `toml:"pool"`
	Retention Retention `toml:"retention"`
	Engine    Engine    `toml:"engine"`
	Services  Services  `toml:"services"`
	Queue     Queue     `toml:"queue"`
	Logging   Logging   `toml:"logging"`
	Metrics   Metrics   `toml:"metrics"`

	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("flowpool.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The chain and service log subdirectories live under LogDir.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.WorkspaceDir,
		c.Paths.OutputDir,
		c.Paths.LogDir,
		c.ChainLogDir(),
		c.ServiceLogDir(),
		filepath.Dir(c.Paths.PIDFile),
	}
	if c.Queue.Backend == BackendSQLite {
		dirs = append(dirs, filepath.Dir(c.Queue.SQLitePath))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ChainLogDir holds the captured stdout/stderr of workflow chains.
func (c *Config) ChainLogDir() string {
	return filepath.Join(c.Paths.LogDir, "chains")
}

// ServiceLogDir holds the captured stdout/stderr of dependent services.
func (c *Config) ServiceLogDir() string {
	return filepath.Join(c.Paths.LogDir, "services")
}

// DaemonLogPath is the daemon's own log file.
func (c *Config) DaemonLogPath() string {
	return filepath.Join(c.Paths.LogDir, "flowpool.log")
}

// LockPath is the flock file guarding single-instance startup.
func (c *Config) LockPath() string {
	return c.Paths.PIDFile + ".lock"
}

// NotifyTimeout returns the ntfy request timeout.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// SleepInterval returns the pool poll interval.
func (c *Config) SleepInterval() time.Duration {
	return time.Duration(c.Pool.SleepInterval) * time.Second
}

// ShutdownWait returns how long shutdown waits for running chains.
func (c *Config) ShutdownWait() time.Duration {
	return time.Duration(c.Pool.ShutdownWait) * time.Second
}

// RetentionPolicy converts the retention section. Load has already validated
// the modes, so parse errors fall back to never.
func (c *Config) RetentionPolicy() retention.Policy {
	logs, _ := retention.ParseMode(c.Retention.Logs)
	documents, _ := retention.ParseMode(c.Retention.Documents)
	outputs, _ := retention.ParseMode(c.Retention.Outputs)
	if logs == "" {
		logs = retention.ModeNever
	}
	if documents == "" {
		documents = retention.ModeNever
	}
	if outputs == "" {
		outputs = retention.ModeNever
	}
	return retention.Policy{Logs: logs, Documents: documents, Outputs: outputs}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && pathValue[1] == '/' {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
