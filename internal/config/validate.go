package config

import (
	"errors"
	"fmt"
	"strings"

	"flowpool/internal/retention"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePool(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkspaceDir == "" {
		return errors.New("paths.workspace_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validatePool() error {
	if err := ensurePositiveMap(map[string]int{
		"pool.max_size":       c.Pool.MaxSize,
		"pool.sleep_interval": c.Pool.SleepInterval,
	}); err != nil {
		return err
	}
	if c.Pool.ShutdownWait < 0 {
		return errors.New("pool.shutdown_wait must be zero or positive")
	}
	return nil
}

func (c *Config) validateRetention() error {
	for key, value := range map[string]string{
		"retention.logs":      c.Retention.Logs,
		"retention.documents": c.Retention.Documents,
		"retention.outputs":   c.Retention.Outputs,
	} {
		if _, err := retention.ParseMode(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.Command == "" {
		return errors.New("engine.command must be set")
	}
	return nil
}

func (c *Config) validateServices() error {
	if c.Services.Catalog.Command == "" {
		return errors.New("services.catalog.command must be set")
	}
	if c.Services.Workers.Command == "" {
		return errors.New("services.workers.command must be set")
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case BackendSQLite:
		if c.Queue.SQLitePath == "" {
			return errors.New("queue.sqlite_path must be set for the sqlite backend")
		}
	case BackendPostgres:
		if c.Queue.PostgresDSN == "" {
			return errors.New("queue.postgres_dsn is required for the postgres backend. Set FLOWPOOL_POSTGRES_DSN or edit the config file")
		}
	default:
		return fmt.Errorf("queue.backend must be %q or %q, got %q", BackendSQLite, BackendPostgres, c.Queue.Backend)
	}
	if c.Queue.MaxAttempts <= 0 {
		return errors.New("queue.max_attempts must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be zero or positive")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	if !strings.HasPrefix(c.Notifications.NtfyTopic, "http://") && !strings.HasPrefix(c.Notifications.NtfyTopic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be an http(s) URL, got %q", c.Notifications.NtfyTopic)
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
