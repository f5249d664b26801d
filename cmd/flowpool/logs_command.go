package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"flowpool/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var chain string
	var stderr bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon or chain logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			path := cfg.DaemonLogPath()
			if chain != "" {
				found, err := logs.FindChainLogs(cfg.ChainLogDir(), chain)
				if err != nil {
					return err
				}
				if len(found) == 0 {
					return fmt.Errorf("no logs retained for chain %q", chain)
				}
				path = found[0].Stdout
				if stderr {
					path = found[0].Stderr
				}
			}

			out := cmd.OutOrStdout()
			offset, printed, err := printInitialLines(out, path, lines)
			if err != nil {
				return err
			}
			if !follow {
				if !printed {
					fmt.Fprintln(out, "No log entries available")
				}
				return nil
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return logs.Follow(runCtx, path, offset, logs.DefaultPollInterval, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	cmd.Flags().StringVar(&chain, "chain", "", "Show the captured output of a chain (ID or run name)")
	cmd.Flags().BoolVar(&stderr, "stderr", false, "With --chain, show stderr instead of stdout")
	return cmd
}

func printInitialLines(out io.Writer, path string, limit int) (int64, bool, error) {
	var (
		lines  []string
		offset int64
		err    error
	)
	if limit <= 0 {
		lines, offset, err = logs.ReadFrom(path, 0)
	} else {
		lines, offset, err = logs.Last(path, limit)
	}
	if err != nil {
		return 0, false, fmt.Errorf("read logs: %w", err)
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	return offset, len(lines) > 0, nil
}
