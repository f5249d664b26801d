package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"flowpool/internal/config"
	"flowpool/internal/queue"
)

type commandContext struct {
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configExists = exists
		if resolved != "" {
			if abs, absErr := filepath.Abs(resolved); absErr == nil {
				resolved = abs
			}
		}
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// daemonArgs are the arguments a detached daemon is re-executed with. The
// config path is absolute because the daemon changes directory to /.
func (c *commandContext) daemonArgs() []string {
	args := []string{"daemon"}
	if c.configExists && c.configPath != "" {
		args = append(args, "--config", c.configPath)
	}
	return args
}

func (c *commandContext) withStore(ctx context.Context, fn func(queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
