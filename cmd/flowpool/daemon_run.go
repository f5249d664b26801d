package main

import (
	"github.com/spf13/cobra"

	"flowpool/internal/config"
	"flowpool/internal/daemonrun"
)

func runDaemon(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, logLevel string) error {
	return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
		ConfigPath: ctx.configPath,
		LogLevel:   logLevel,
	})
}
