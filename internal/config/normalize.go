package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRetention()
	c.normalizeEngine()
	c.normalizeServices()
	if err := c.normalizeQueue(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.PIDFile) == "" {
		c.Paths.PIDFile = filepath.Join(c.Paths.LogDir, defaultPIDFileName)
	}
	if c.Paths.PIDFile, err = expandPath(c.Paths.PIDFile); err != nil {
		return fmt.Errorf("paths.pid_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeRetention() {
	c.Retention.Logs = normalizeMode(c.Retention.Logs)
	c.Retention.Documents = normalizeMode(c.Retention.Documents)
	c.Retention.Outputs = normalizeMode(c.Retention.Outputs)
}

func normalizeMode(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.ReplaceAll(value, "-", "_")
}

func (c *Config) normalizeEngine() {
	c.Engine.Command = strings.TrimSpace(c.Engine.Command)
	c.Engine.FailedDirPattern = strings.TrimSpace(c.Engine.FailedDirPattern)
	if c.Engine.FailedDirPattern == "" {
		c.Engine.FailedDirPattern = defaultFailedDirPattern
	}
}

func (c *Config) normalizeServices() {
	c.Services.Catalog.Command = strings.TrimSpace(c.Services.Catalog.Command)
	c.Services.Workers.Command = strings.TrimSpace(c.Services.Workers.Command)
}

func (c *Config) normalizeQueue() error {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	if c.Queue.Backend == "" {
		c.Queue.Backend = defaultQueueBackend
	}
	if strings.TrimSpace(c.Queue.SQLitePath) == "" {
		c.Queue.SQLitePath = filepath.Join(c.Paths.LogDir, defaultSQLiteName)
	}
	var err error
	if c.Queue.SQLitePath, err = expandPath(c.Queue.SQLitePath); err != nil {
		return fmt.Errorf("queue.sqlite_path: %w", err)
	}
	c.Queue.PostgresDSN = strings.TrimSpace(c.Queue.PostgresDSN)
	if c.Queue.PostgresDSN == "" {
		if value, ok := os.LookupEnv("FLOWPOOL_POSTGRES_DSN"); ok {
			c.Queue.PostgresDSN = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
