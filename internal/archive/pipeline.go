package archive

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"teslabox/internal/camera"
	"teslabox/internal/config"
	"teslabox/internal/ffmpeg"
	"teslabox/internal/fileutil"
	"teslabox/internal/liveness"
	"teslabox/internal/logging"
	"teslabox/internal/notifications"
	"teslabox/internal/pipeline"
	"teslabox/internal/queue"
	"teslabox/internal/storage"
)

// PipelineName identifies archive jobs in logs and the journal.
const PipelineName = "archive"

// CRFs maps quality tiers to archive encode factors.
var CRFs = ffmpeg.CRFTable{
	ffmpeg.Highest: 19,
	ffmpeg.High:    23,
	ffmpeg.Medium:  28,
	ffmpeg.Low:     33,
	ffmpeg.Lowest:  36,
}

// RecordStore persists the archive result log.
type RecordStore interface {
	AppendArchiveRecord(ctx context.Context, rec queue.ArchiveRecord) error
	ListArchiveRecords(ctx context.Context) ([]queue.ArchiveRecord, error)
}

// Dependencies are the collaborators an archive Pipeline drives.
type Dependencies struct {
	Invoker  ffmpeg.Invoker
	Store    storage.ObjectStore
	Oracle   liveness.Oracle
	Notifier notifications.Service
	Records  RecordStore
	// Journal persists descriptors between steps; nil keeps jobs in memory only.
	Journal pipeline.JobStore
	Logger  *slog.Logger
}

// Option adjusts a Pipeline.
type Option func(*Pipeline)

// WithRetryDelay overrides the configured retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Pipeline) { p.retryDelay = d }
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline runs archive jobs one at a time.
type Pipeline struct {
	cfg        *config.Config
	deps       Dependencies
	logger     *slog.Logger
	engine     *pipeline.Engine[Job]
	retryDelay time.Duration
	now        func() time.Time
}

// New wires an archive pipeline. Start must be called before jobs run.
func New(cfg *config.Config, deps Dependencies, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("archive: config is required")
	}
	if deps.Invoker == nil || deps.Store == nil || deps.Oracle == nil || deps.Records == nil {
		return nil, fmt.Errorf("archive: invoker, object store, oracle and record store are required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewNoop()
	}
	p := &Pipeline{
		cfg:        cfg,
		deps:       deps,
		logger:     logging.NewComponentLogger(deps.Logger, PipelineName),
		retryDelay: cfg.RetryDelay(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	engineOpts := pipeline.Options[Job]{
		Name:       PipelineName,
		Steps:      []pipeline.Step[Job]{p.render, p.writeManifest, p.concat, p.silence, p.publish, p.link},
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

// Start resumes journaled jobs and begins draining the queue.
func (p *Pipeline) Start(ctx context.Context) error { return p.engine.Start(ctx) }

// Stop halts the worker; the running job resumes on the next Start.
func (p *Pipeline) Stop() { p.engine.Stop() }

// Push validates req, fills in the job settings and queues it.
func (p *Pipeline) Push(ctx context.Context, req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.Event.Angle == "" {
		req.Event.Angle = camera.Front
	}
	job := p.newJob(req)
	if err := p.engine.Push(ctx, job); err != nil {
		return err
	}
	p.logger.Debug("archive queued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("out_key", job.OutKey),
		logging.Bool("condensed", job.Condensed),
	)
	return nil
}

func (p *Pipeline) newJob(req Request) Job {
	car := p.cfg.Car.Name
	qualitySetting := p.cfg.Archive.DashcamQuality
	if req.Event.Type.IsSentry() {
		qualitySetting = p.cfg.Archive.SentryQuality
	}
	quality, err := ffmpeg.ParseQuality(qualitySetting)
	if err != nil {
		quality = ffmpeg.Medium
	}
	var deliver []string
	if p.deps.Notifier.Enabled() {
		deliver = append(deliver, p.cfg.Notifications.Deliver...)
	}
	return Job{
		Request:       req,
		CarName:       car,
		Notifications: deliver,
		Quality:       quality,
		Condensed:     req.Event.Type.IsSentry() && p.cfg.Archive.SentryCinematic,
		ChaptersFile:  p.tempPath(".txt"),
		ConcatFile:    p.tempPath(".mp4"),
		OutFile:       p.tempPath(".mp4"),
		OutKey:        OutKey(car, req.Folder, req.Event.Type),
		Files:         make(map[string]string),
		Caches:        make(map[int64]bool),
		StartedAt:     p.now(),
		Step:          1,
	}
}

func (p *Pipeline) tempPath(ext string) string {
	return filepath.Join(p.cfg.Paths.RamDir, uuid.NewString()+ext)
}

// Cancel drops a queued job or stops the running one after its current step.
func (p *Pipeline) Cancel(id string) bool { return p.engine.Cancel(id) }

// Pending returns a snapshot of queued and running jobs.
func (p *Pipeline) Pending() []pipeline.PendingJob { return p.engine.Pending() }

// List returns the archive records in completion order.
func (p *Pipeline) List(ctx context.Context) ([]queue.ArchiveRecord, error) {
	return p.deps.Records.ListArchiveRecords(ctx)
}

func (p *Pipeline) succeeded(ctx context.Context, job Job) {
	logger := logging.WithContext(ctx, p.logger)
	now := p.now()
	rec := queue.ArchiveRecord{
		Type:      string(job.Event.Type),
		Created:   job.Event.Timestamp * 1000,
		Processed: now.UnixMilli(),
		Lat:       job.Event.EstLat,
		Lon:       job.Event.EstLon,
		URL:       job.VideoURL,
		Taken:     now.Sub(job.StartedAt).Milliseconds(),
	}
	if err := p.deps.Records.AppendArchiveRecord(ctx, rec); err != nil {
		logging.WarnWithContext(logger, "archive record not saved", "archive_record_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir disk space and permissions"),
			logging.String(logging.FieldImpact, "the archive is uploaded but missing from the list"),
		)
	}

	if job.wantsNotification(config.NotifyFullVideo) {
		payload := notifications.Payload{
			"id":        job.ID + " (" + config.NotifyFullVideo + ")",
			"carName":   job.CarName,
			"eventType": string(job.Event.Type),
			"angle":     string(job.Event.Angle),
			"timestamp": job.Event.Timestamp,
			"lat":       job.Event.EstLat,
			"lon":       job.Event.EstLon,
			"videoUrl":  job.VideoURL,
		}
		if err := p.deps.Notifier.Publish(ctx, notifications.EventArchiveReady, payload); err != nil {
			logging.WarnWithContext(logger, "archive notification failed", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the ntfy topic and kafka brokers"),
				logging.String(logging.FieldImpact, "recipients were not told about this archive"),
			)
		}
	}

	p.purge(ctx, job)
	logger.Info("archived",
		logging.String("out_key", job.OutKey),
		logging.Int64("taken_ms", rec.Taken),
	)
}

func (p *Pipeline) failed(ctx context.Context, job Job, _ error) {
	p.purge(ctx, job)
}

func (p *Pipeline) purge(ctx context.Context, job Job) {
	if err := fileutil.RemoveAll(job.artifacts()...); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "artifact cleanup incomplete", "cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove leftover files from ram_dir"),
			logging.String(logging.FieldImpact, "ram disk space is not reclaimed"),
		)
	}
}
