// Package daemonrun assembles the daemon process: logger, state database,
// collaborators and both pipelines.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"teslabox/internal/archive"
	"teslabox/internal/config"
	"teslabox/internal/daemon"
	"teslabox/internal/ffmpeg"
	"teslabox/internal/intake"
	"teslabox/internal/liveness"
	"teslabox/internal/logging"
	"teslabox/internal/notifications"
	"teslabox/internal/preflight"
	"teslabox/internal/queue"
	"teslabox/internal/storage"
	"teslabox/internal/stream"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the teslabox daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runCfg := *cfg
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		runCfg.Logging.Level = level
	}
	logger, err := logging.NewFromConfig(&runCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open state store", logging.Error(err))
		return err
	}
	defer store.Close()

	objects, err := storage.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}
	notifier := notifications.NewService(cfg, logger)
	defer func() {
		if err := notifications.Close(notifier); err != nil {
			logger.Warn("close notifier", logging.Error(err))
		}
	}()
	monitor := liveness.NewMonitor(cfg, logger)
	invoker := ffmpeg.NewExecInvoker(cfg.FFmpegBinary())

	runPreflight(signalCtx, cfg, objects, logger)

	archives, err := archive.New(cfg, archive.Dependencies{
		Invoker:  invoker,
		Store:    objects,
		Oracle:   monitor,
		Notifier: notifier,
		Records:  store,
		Journal:  store,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create archive pipeline: %w", err)
	}
	streams, err := stream.New(cfg, stream.Dependencies{
		Invoker:  invoker,
		Store:    objects,
		Oracle:   monitor,
		Registry: store,
		Journal:  store,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create stream pipeline: %w", err)
	}

	parts := daemon.Components{Archives: archives, Streams: streams, Monitor: monitor}
	if cfg.Kafka.Intake && cfg.KafkaEnabled() {
		parts.Intake = intake.New(cfg, archives, streams, logger)
	}

	d, err := daemon.New(cfg, parts, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running daemon and state directory access"),
			logging.String(logging.FieldImpact, "no archives or streams will be processed"),
		)
		return err
	}
	defer d.Stop()

	<-signalCtx.Done()
	logger.Info("teslabox daemon shutting down")
	return nil
}

func runPreflight(ctx context.Context, cfg *config.Config, objects *storage.Client, logger *slog.Logger) {
	for _, status := range preflight.CheckSystemDeps(cfg) {
		if !status.Available {
			logging.WarnWithContext(logger, "dependency unavailable", "dependency_missing",
				logging.String("dependency", status.Name),
				logging.String("detail", status.Detail),
				logging.String(logging.FieldImpact, "every render step will fail"),
			)
		}
	}
	for _, result := range preflight.Failed(preflight.RunAll(ctx, cfg, objects)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
	}
}
