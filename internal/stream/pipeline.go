// Package stream re-encodes the latest clip of each camera for live viewing
// and, when copy mode is on, republishes it to the object store.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"teslabox/internal/config"
	"teslabox/internal/ffmpeg"
	"teslabox/internal/fileutil"
	"teslabox/internal/liveness"
	"teslabox/internal/logging"
	"teslabox/internal/pipeline"
	"teslabox/internal/queue"
	"teslabox/internal/services"
	"teslabox/internal/storage"
)

// PipelineName identifies stream jobs in logs and the journal.
const PipelineName = "stream"

// CRFs maps quality tiers to stream encode factors.
var CRFs = ffmpeg.CRFTable{
	ffmpeg.Highest: 21,
	ffmpeg.High:    23,
	ffmpeg.Medium:  26,
	ffmpeg.Low:     28,
	ffmpeg.Lowest:  30,
}

// Registry records which folder each angle last published.
type Registry interface {
	SetStream(ctx context.Context, angle, folder string) error
	ListStreams(ctx context.Context) ([]queue.StreamEntry, error)
}

// Dependencies are the collaborators a stream Pipeline drives.
type Dependencies struct {
	Invoker  ffmpeg.Invoker
	Store    storage.ObjectStore
	Oracle   liveness.Oracle
	Registry Registry
	Journal  pipeline.JobStore
	Logger   *slog.Logger
}

// Option adjusts a Pipeline.
type Option func(*Pipeline)

// WithRetryDelay overrides the configured retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Pipeline) { p.retryDelay = d }
}

// Pipeline runs stream jobs one at a time.
type Pipeline struct {
	cfg        *config.Config
	deps       Dependencies
	logger     *slog.Logger
	engine     *pipeline.Engine[Job]
	retryDelay time.Duration
}

// New wires a stream pipeline.
func New(cfg *config.Config, deps Dependencies, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("stream: config is required")
	}
	if deps.Invoker == nil || deps.Store == nil || deps.Oracle == nil || deps.Registry == nil {
		return nil, fmt.Errorf("stream: invoker, object store, oracle and registry are required")
	}
	p := &Pipeline{
		cfg:        cfg,
		deps:       deps,
		logger:     logging.NewComponentLogger(deps.Logger, PipelineName),
		retryDelay: cfg.RetryDelay(),
	}
	for _, opt := range opts {
		opt(p)
	}
	engineOpts := pipeline.Options[Job]{
		Name:       PipelineName,
		Steps:      []pipeline.Step[Job]{p.caption, p.place, p.upload},
		RetryDelay: p.retryDelay,
		MaxRetries: cfg.Workflow.MaxRetries,
		OnSuccess:  p.succeeded,
		OnFailure:  p.failed,
		Logger:     deps.Logger,
	}
	if deps.Journal != nil {
		engineOpts.Journal = pipeline.NewStoreJournal[Job](deps.Journal, PipelineName)
	}
	engine, err := pipeline.New(engineOpts)
	if err != nil {
		return nil, err
	}
	p.engine = engine
	return p, nil
}

func (p *Pipeline) Start(ctx context.Context) error { return p.engine.Start(ctx) }

func (p *Pipeline) Stop() { p.engine.Stop() }

func (p *Pipeline) Cancel(id string) bool { return p.engine.Cancel(id) }

func (p *Pipeline) Pending() []pipeline.PendingJob { return p.engine.Pending() }

// List returns the angle to folder registry.
func (p *Pipeline) List(ctx context.Context) ([]queue.StreamEntry, error) {
	return p.deps.Registry.ListStreams(ctx)
}

// Push validates req and queues it.
func (p *Pipeline) Push(ctx context.Context, req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	quality, err := ffmpeg.ParseQuality(p.cfg.Stream.Quality)
	if err != nil {
		quality = ffmpeg.Medium
	}
	car := p.cfg.Car.Name
	job := Job{
		Request:   req,
		CarName:   car,
		Quality:   quality,
		Copy:      p.cfg.Stream.Copy,
		File:      filepath.Join(p.cfg.Paths.RamDir, uuid.NewString()+".mp4"),
		OutFile:   filepath.Join(p.cfg.Paths.RamDir, string(req.Angle)+".mp4"),
		OutKey:    OutKey(car, req.Folder, req.Angle),
		StartedAt: time.Now(),
		Step:      1,
	}
	return p.engine.Push(ctx, job)
}

func (p *Pipeline) caption(ctx context.Context, job Job) (Job, error) {
	args := ffmpeg.StreamCaption(ffmpeg.StreamParams{
		IconFile: p.cfg.Paths.IconFile,
		FontFile: p.cfg.Paths.FontFile,
		Input:    job.TempFile,
		Caption:  ffmpeg.Caption(job.CarName, "("+job.Angle.Title()+")", float64(job.Timestamp)),
		Tier:     ffmpeg.StreamTierFor(job.Quality, job.HWVersion),
		Encode:   ffmpeg.Encode{Preset: p.cfg.Stream.Preset, CRF: CRFs.CRF(job.Quality)},
		Output:   job.File,
	})
	if err := p.deps.Invoker.Run(ctx, args); err != nil {
		return job, err
	}
	if err := fileutil.RemoveAll(job.TempFile); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "recorded clip not removed", "cleanup_failed",
			logging.Error(err),
			logging.String("temp_file", job.TempFile),
			logging.String(logging.FieldImpact, "ram disk space is not reclaimed until the job ends"),
		)
	}
	job.Step = 2
	return job, nil
}

// place publishes the captioned clip locally. In copy mode the working file is
// kept for upload.
func (p *Pipeline) place(ctx context.Context, job Job) (Job, error) {
	var err error
	if job.Copy {
		err = fileutil.CopyFile(job.File, job.OutFile)
	} else {
		err = fileutil.MoveFile(job.File, job.OutFile)
	}
	if err != nil {
		return job, fmt.Errorf("place stream clip: %w", err)
	}
	if err := p.deps.Registry.SetStream(ctx, string(job.Angle), job.Folder); err != nil {
		return job, err
	}
	job.Step = 3
	return job, nil
}

func (p *Pipeline) upload(ctx context.Context, job Job) (Job, error) {
	if !job.Copy {
		job.Step = 4
		return job, nil
	}
	if !p.deps.Oracle.IsAlive() {
		return job, services.Wrap(services.ErrNoConnection, "stream", "upload", "liveness probe reports offline", nil)
	}
	data, err := os.ReadFile(job.File)
	if err != nil {
		return job, fmt.Errorf("read stream clip: %w", err)
	}
	if err := p.deps.Store.PutObject(ctx, job.OutKey, data, storage.ContentTypeMP4); err != nil {
		return job, err
	}
	job.Step = 4
	return job, nil
}

func (p *Pipeline) succeeded(ctx context.Context, job Job) {
	p.cleanup(ctx, job)
	logging.WithContext(ctx, p.logger).Info("streamed",
		logging.String("angle", string(job.Angle)),
		logging.Int64("taken_ms", time.Since(job.StartedAt).Milliseconds()),
	)
}

func (p *Pipeline) failed(ctx context.Context, job Job, _ error) {
	p.cleanup(ctx, job)
}

func (p *Pipeline) cleanup(ctx context.Context, job Job) {
	if err := fileutil.RemoveAll(job.TempFile, job.File); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "stream cleanup incomplete", "cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "ram disk space is not reclaimed"),
		)
	}
}
