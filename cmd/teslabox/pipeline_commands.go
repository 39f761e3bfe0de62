package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"teslabox/internal/archive"
	"teslabox/internal/queue"
	"teslabox/internal/stream"
)

func newArchiveCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Queue event archives and list published ones",
	}
	cmd.AddCommand(newArchiveListCommand(ctx))
	cmd.AddCommand(newArchivePushCommand(ctx))
	return cmd
}

func newArchiveListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List published archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				records, err := store.ListArchiveRecords(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					if records == nil {
						records = []queue.ArchiveRecord{}
					}
					return writeJSON(cmd, records)
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No archives")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{
						rec.Type,
						time.UnixMilli(rec.Created).Format(time.DateTime),
						(time.Duration(rec.Taken) * time.Millisecond).Round(time.Second).String(),
						formatCoord(rec.Lat, rec.Lon),
						rec.URL,
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Type", "Created", "Taken", "Location", "URL"}, rows, 2))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newArchivePushCommand(ctx *commandContext) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Queue an archive request read from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req archive.Request
			if err := readRequest(cmd, file, &req); err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			id, err := client.PushArchive(cmd.Context(), req)
			if err != nil {
				return wrapAPIError(err, ctx.configValue().Paths.APIBind)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued archive %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Request JSON path, or - for stdin")
	return cmd
}

func newStreamCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Queue live stream clips and list the latest per angle",
	}
	cmd.AddCommand(newStreamListCommand(ctx))
	cmd.AddCommand(newStreamPushCommand(ctx))
	return cmd
}

func newStreamListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the latest stream folder per angle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				entries, err := store.ListStreams(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					if entries == nil {
						entries = []queue.StreamEntry{}
					}
					return writeJSON(cmd, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No streams")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{e.Angle, e.Folder, e.UpdatedAt.Local().Format(time.DateTime)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Angle", "Folder", "Updated"}, rows))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newStreamPushCommand(ctx *commandContext) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Queue a stream request read from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req stream.Request
			if err := readRequest(cmd, file, &req); err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			id, err := client.PushStream(cmd.Context(), req)
			if err != nil {
				return wrapAPIError(err, ctx.configValue().Paths.APIBind)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued stream %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Request JSON path, or - for stdin")
	return cmd
}

func readRequest(cmd *cobra.Command, path string, dst any) error {
	var r io.Reader
	if path = strings.TrimSpace(path); path == "" || path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open request: %w", err)
		}
		defer f.Close()
		r = f
	}
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func formatCoord(lat, lon float64) string {
	if lat == 0 && lon == 0 {
		return ""
	}
	return strconv.FormatFloat(lat, 'f', 5, 64) + "," + strconv.FormatFloat(lon, 'f', 5, 64)
}
