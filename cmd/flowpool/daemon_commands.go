package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"flowpool/internal/config"
	"flowpool/internal/daemon"
	"flowpool/internal/daemonrun"
	"flowpool/internal/logging"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the flowpool daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, err := ctx.controller()
			if err != nil {
				return err
			}
			pid, err := controller.Start()
			return reportStart(cmd.OutOrStdout(), pid, err)
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the flowpool daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, err := ctx.controller()
			if err != nil {
				return err
			}
			status, err := controller.Status()
			if err != nil {
				return err
			}
			if !status.Running && !status.Stale {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopping daemon (pid %d)...\n", status.PID)
			if err := controller.Stop(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop and start the flowpool daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, err := ctx.controller()
			if err != nil {
				return err
			}
			pid, err := controller.Restart()
			return reportStart(cmd.OutOrStdout(), pid, err)
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Ask the running daemon to reload its configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, err := ctx.controller()
			if err != nil {
				return err
			}
			status, err := controller.Status()
			if err != nil {
				return err
			}
			if !status.Running {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running; nothing to update")
				return nil
			}
			if err := controller.Update(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reload requested (pid %d)\n", status.PID)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			controller, err := ctx.controller()
			if err != nil {
				return err
			}
			status, err := controller.Status()
			if err != nil {
				return err
			}
			snapshot := buildStatusSnapshot(cmd.Context(), cfg, status)
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderStatus(snapshot, shouldColorize(out)))
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, updateCmd, statusCmd}
}

func reportStart(out io.Writer, pid int, err error) error {
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		fmt.Fprintf(out, "Daemon already running (pid %d)\n", pid)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Daemon started (pid %d)\n", pid)
	return nil
}

func (c *commandContext) controller() (*daemon.Controller, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	exe, err := daemonExecutable()
	if err != nil {
		return nil, err
	}
	args := c.daemonArgs()
	ctl := daemon.NewController(cfg.Paths.PIDFile, func() error {
		return daemon.Daemonize(exe, args)
	}, cliLogger())
	ctl.StopTimeout = daemonrun.StopTimeout(cfg)
	return ctl, nil
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

// cliLogger reports controller warnings on stderr in console format.
func cliLogger() *slog.Logger {
	logger, err := logging.New(logging.Options{Level: "warn", Format: "console", OutputPaths: []string{"stderr"}})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Run the flowpool daemon (foreground unless started by start)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			stage := daemon.CurrentStage()
			proceed, err := daemon.Continue(exe, os.Args[1:])
			if err != nil {
				reportDetachFailure(cfg, stage, err)
				return err
			}
			if !proceed {
				return nil
			}
			return runDaemon(cmd, ctx, cfg, logLevel)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level")
	return cmd
}

// reportDetachFailure records a failed re-exec in the daemon log, since a
// detaching process has no terminal to report to.
func reportDetachFailure(cfg *config.Config, stage daemon.Stage, err error) {
	logger, logErr := logging.NewFromConfig(cfg)
	if logErr != nil {
		return
	}
	logging.ErrorWithContext(logger, "daemon detach failed", "detach_failed",
		logging.String("stage", stage.String()),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "run flowpool daemon in the foreground to see the error"),
	)
}
