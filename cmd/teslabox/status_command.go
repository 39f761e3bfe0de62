package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"teslabox/internal/api"
	"teslabox/internal/config"
	"teslabox/internal/deps"
	"teslabox/internal/preflight"
	"teslabox/internal/storage"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and environment status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			running, lockErr := ctx.daemonRunning()
			printSection(stdout, "Daemon", colorize, daemonLines(cmd.Context(), cfg, running, lockErr, colorize))
			printSection(stdout, "Dependencies", colorize, dependencyLines(preflight.CheckSystemDeps(cfg), colorize))

			objects, err := storage.New(cfg, nil)
			if err != nil {
				return err
			}
			checkCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			results := preflight.RunAll(checkCtx, cfg, objects)
			results = append(results, preflight.CheckConnectivity(checkCtx, cfg))
			printSection(stdout, "Environment", colorize, preflightLines(results, colorize))
			return nil
		},
	}
}

func printSection(w io.Writer, title string, colorize bool, lines []string) {
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(w, line)
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
}

func daemonLines(ctx context.Context, cfg *config.Config, running bool, lockErr error, colorize bool) []string {
	if lockErr != nil {
		return []string{renderStatusLine("TeslaBox", statusError, lockErr.Error(), colorize)}
	}
	if !running {
		return []string{renderStatusLine("TeslaBox", statusInfo, "Not running", colorize)}
	}
	lines := []string{renderStatusLine("TeslaBox", statusOK, "Running", colorize)}

	client := api.NewClient(cfg.Paths.APIBind, cfg.Paths.APIToken)
	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	health, err := client.Health(reqCtx)
	if err != nil {
		return append(lines, renderStatusLine("API", statusWarn, err.Error(), colorize))
	}
	lines = append(lines, renderStatusLine("API", statusOK, fmt.Sprintf("%s (v%s, up %s)", cfg.Paths.APIBind, health.Version, time.Duration(health.UptimeS)*time.Second), colorize))
	if health.Online {
		lines = append(lines, renderStatusLine("Connectivity", statusOK, "Online", colorize))
	} else {
		lines = append(lines, renderStatusLine("Connectivity", statusWarn, "Offline; uploads wait for the network", colorize))
	}
	if q, err := client.Queue(reqCtx); err == nil {
		lines = append(lines, renderStatusLine("Queue", statusInfo, fmt.Sprintf("%d archive, %d stream", len(q.Archive), len(q.Stream)), colorize))
	}
	return lines
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses))
	for _, dep := range statuses {
		if dep.Available {
			lines = append(lines, renderStatusLine(dep.Name, statusOK, fmt.Sprintf("Ready (command: %s)", dep.Command), colorize))
			continue
		}
		detail := dep.Detail
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	return lines
}

func preflightLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}
