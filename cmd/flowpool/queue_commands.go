package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"flowpool/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the workflow chain queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(listStatuses)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(store queue.Store) error {
				chains, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(chains) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]column{{Title: "ID", Right: true}, {Title: "Priority", Right: true}, {Title: "Status"}, {Title: "Attempts", Right: true}, {Title: "Owner"}, {Title: "Document"}, {Title: "Output"}, {Title: "Updated"}},
					buildQueueListRows(chains),
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func buildQueueListRows(chains []*queue.Chain) [][]string {
	rows := make([][]string, 0, len(chains))
	for _, chain := range chains {
		rows = append(rows, []string{
			strconv.FormatInt(chain.ID, 10),
			strconv.Itoa(chain.Priority),
			string(chain.Status),
			strconv.Itoa(chain.Attempts),
			fallback(chain.Owner, "-"),
			chain.DocumentPath,
			fallback(chain.RelativeDir, "-"),
			formatTimestamp(chain.UpdatedAt),
		})
	}
	return rows
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var priority int
	var owner string
	var relativeDir string

	cmd := &cobra.Command{
		Use:   "add <document>",
		Short: "Enqueue a workflow document as a pending chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			document, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve document path: %w", err)
			}
			info, err := os.Stat(document)
			if err != nil {
				return fmt.Errorf("document %s: %w", document, err)
			}
			if info.IsDir() {
				return fmt.Errorf("document %s is a directory", document)
			}
			if filepath.IsAbs(relativeDir) || strings.HasPrefix(filepath.Clean(relativeDir), "..") {
				return fmt.Errorf("--dir must be relative to the output directory, got %q", relativeDir)
			}
			return ctx.withStore(cmd.Context(), func(store queue.Store) error {
				chain, err := store.Enqueue(cmd.Context(), queue.NewChain{
					DocumentPath: document,
					RelativeDir:  relativeDir,
					Priority:     priority,
					Owner:        owner,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued chain %d (priority %d): %s\n", chain.ID, chain.Priority, chain.DocumentPath)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Higher values run first")
	cmd.Flags().StringVar(&owner, "owner", os.Getenv("USER"), "Owner recorded on the chain and used in run names")
	cmd.Flags().StringVar(&relativeDir, "dir", "", "Output directory relative to paths.output_dir")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Return failed chains to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(store queue.Store) error {
				updated, err := store.Retry(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case updated == 0 && len(ids) == 0:
					fmt.Fprintln(out, "No failed chains to retry")
				case updated == 0:
					fmt.Fprintln(out, "No matching failed chains")
				default:
					fmt.Fprintf(out, "Retrying %d chain(s)\n", updated)
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var completedErrors bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove chains from the queue (never running ones)",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			if completedErrors {
				statuses = append(statuses, queue.StatusComplete, queue.StatusGeneralError)
			}
			for _, status := range statuses {
				if status == queue.StatusRunning {
					return fmt.Errorf("running chains are owned by the daemon and cannot be cleared")
				}
			}
			return ctx.withStore(cmd.Context(), func(store queue.Store) error {
				removed, err := store.Clear(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d chain(s)\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Only clear chains in this status (repeatable)")
	cmd.Flags().BoolVar(&completedErrors, "completed-errors", false, "Only clear complete and general_error chains")
	return cmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show chain counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(store queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if stats.Total() == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]column{{Title: "Status"}, {Title: "Count", Right: true}},
					buildQueueStatsRows(stats),
				))
				return nil
			})
		},
	}
}

func buildQueueStatsRows(stats queue.Stats) [][]string {
	var rows [][]string
	for _, status := range queue.AllStatuses() {
		if count := stats[status]; count > 0 {
			rows = append(rows, []string{string(status), strconv.Itoa(count)})
		}
	}
	rows = append(rows, []string{"total", strconv.Itoa(stats.Total())})
	return rows
}

func parseStatuses(values []string) ([]queue.Status, error) {
	var statuses []queue.Status
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid chain id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
