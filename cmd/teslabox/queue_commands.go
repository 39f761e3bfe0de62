package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"teslabox/internal/archive"
	"teslabox/internal/pipeline"
	"teslabox/internal/queue"
	"teslabox/internal/stream"
)

var pipelineNames = []string{archive.PipelineName, stream.PipelineName}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage pending pipeline jobs",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

type queueRow struct {
	Pipeline  string `json:"pipeline"`
	ID        string `json:"id"`
	Step      int    `json:"step"`
	Attempts  int    `json:"attempts"`
	Running   bool   `json:"running"`
	LastError string `json:"last_error,omitempty"`
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending jobs of both pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := loadQueueRows(cmd, ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				table = append(table, []string{r.Pipeline, r.ID, strconv.Itoa(r.Step), strconv.Itoa(r.Attempts), yesNo(r.Running), r.LastError})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Pipeline", "ID", "Step", "Attempts", "Running", "Last Error"}, table, 2, 3))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

// loadQueueRows asks the running daemon for its live view and falls back to
// the journal when no daemon holds the lock.
func loadQueueRows(cmd *cobra.Command, ctx *commandContext) ([]queueRow, error) {
	running, err := ctx.daemonRunning()
	if err != nil {
		return nil, err
	}
	if running {
		client, err := ctx.client()
		if err != nil {
			return nil, err
		}
		q, err := client.Queue(cmd.Context())
		if err != nil {
			return nil, wrapAPIError(err, ctx.configValue().Paths.APIBind)
		}
		rows := pendingRows(archive.PipelineName, q.Archive)
		return append(rows, pendingRows(stream.PipelineName, q.Stream)...), nil
	}

	var rows []queueRow
	err = ctx.withStore(func(store *queue.Store) error {
		for _, name := range pipelineNames {
			records, err := store.ListJobs(cmd.Context(), name)
			if err != nil {
				return err
			}
			for _, rec := range records {
				rows = append(rows, queueRow{
					Pipeline:  rec.Pipeline,
					ID:        rec.ID,
					Step:      rec.Step,
					Attempts:  rec.Attempts,
					LastError: rec.LastError,
				})
			}
		}
		return nil
	})
	return rows, err
}

func pendingRows(name string, jobs []pipeline.PendingJob) []queueRow {
	rows := make([]queueRow, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, queueRow{Pipeline: name, ID: job.ID, Step: job.Step, Attempts: job.Attempts, Running: job.Running})
	}
	return rows
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <archive|stream> <id>",
		Short: "Cancel a pending or running job on the daemon",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := parsePipelineName(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.Cancel(cmd.Context(), name, args[1]); err != nil {
				return wrapAPIError(err, ctx.configValue().Paths.APIBind)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s job %s\n", name, args[1])
			return nil
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [archive|stream]",
		Short: "Remove journaled jobs while the daemon is stopped",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				parsed, err := parsePipelineName(args[0])
				if err != nil {
					return err
				}
				name = parsed
			}
			running, err := ctx.daemonRunning()
			if err != nil {
				return err
			}
			if running {
				return errors.New("daemon is running; stop it or use `teslabox queue cancel`")
			}
			return ctx.withStore(func(store *queue.Store) error {
				removed, err := store.ClearJobs(cmd.Context(), name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d job(s)\n", removed)
				return nil
			})
		},
	}
}

func parsePipelineName(value string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(value))
	for _, known := range pipelineNames {
		if name == known {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown pipeline %q (want archive or stream)", value)
}
