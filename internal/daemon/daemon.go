package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"teslabox/internal/api"
	"teslabox/internal/config"
	"teslabox/internal/liveness"
	"teslabox/internal/logging"
)

// ArchivePipeline is the archive pipeline lifecycle and API surface.
type ArchivePipeline interface {
	api.ArchiveService
	Start(ctx context.Context) error
	Stop()
}

// StreamPipeline is the stream pipeline lifecycle and API surface.
type StreamPipeline interface {
	api.StreamService
	Start(ctx context.Context) error
	Stop()
}

// Monitor probes connectivity until its context ends.
type Monitor interface {
	liveness.Oracle
	Run(ctx context.Context)
}

// Intake feeds requests from an external broker.
type Intake interface {
	Start(ctx context.Context)
	Wait()
}

// Components are the services a Daemon runs. Intake is optional.
type Components struct {
	Archives ArchivePipeline
	Streams  StreamPipeline
	Monitor  Monitor
	Intake   Intake
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	parts  Components

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running   atomic.Bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	PID            int
	Online         bool
	ArchivePending int
	StreamPending  int
	DatabasePath   string
	LockFilePath   string
	APIAddress     string
}

// New constructs a daemon around already-built components.
func New(cfg *config.Config, parts Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || parts.Archives == nil || parts.Streams == nil || parts.Monitor == nil {
		return nil, errors.New("daemon requires config, archive and stream pipelines, and a liveness monitor")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		parts:    parts,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, then launches the monitor, both pipelines,
// the API server and the intake consumers.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another teslabox daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.parts.Monitor.Run(runCtx)
	}()

	if err := d.parts.Archives.Start(runCtx); err != nil {
		d.abort()
		return fmt.Errorf("start archive pipeline: %w", err)
	}
	if err := d.parts.Streams.Start(runCtx); err != nil {
		d.parts.Archives.Stop()
		d.abort()
		return fmt.Errorf("start stream pipeline: %w", err)
	}

	d.startedAt = time.Now()
	d.api = newAPIServer(d.cfg, api.ServerConfig{
		Archives:  d.parts.Archives,
		Streams:   d.parts.Streams,
		Oracle:    d.parts.Monitor,
		Token:     d.cfg.Paths.APIToken,
		StartTime: d.startedAt,
		Logger:    d.logger,
	}, d.logger)
	if err := d.api.start(runCtx); err != nil {
		d.parts.Streams.Stop()
		d.parts.Archives.Stop()
		d.abort()
		return err
	}

	if d.parts.Intake != nil {
		d.parts.Intake.Start(runCtx)
	}

	d.running.Store(true)
	d.logger.Info("teslabox daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

func (d *Daemon) abort() {
	d.cancel()
	d.wg.Wait()
	d.cancel = nil
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Stop stops background processing and releases the daemon lock. The running
// jobs are interrupted and resume from their journal on the next start.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	d.cancel()
	if d.parts.Intake != nil {
		d.parts.Intake.Wait()
	}
	d.parts.Streams.Stop()
	d.parts.Archives.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.cancel = nil
	d.running.Store(false)
	d.logger.Info("teslabox daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		Online:         d.parts.Monitor.IsAlive(),
		ArchivePending: len(d.parts.Archives.Pending()),
		StreamPending:  len(d.parts.Streams.Pending()),
		DatabasePath:   d.cfg.DatabasePath(),
		LockFilePath:   d.lockPath,
	}
	if status.Running {
		status.APIAddress = d.api.address()
	}
	return status
}

// Locked reports whether a daemon currently holds the lock at path. It is
// used by maintenance commands that must not race a running daemon.
func Locked(path string) (bool, error) {
	probe := flock.New(path)
	ok, err := probe.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock: %w", err)
	}
	if !ok {
		return true, nil
	}
	return false, probe.Unlock()
}
