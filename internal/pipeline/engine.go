package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"teslabox/internal/logging"
	"teslabox/internal/services"
)

var (
	// ErrDuplicateJob is returned by Push when the id is already queued or running.
	ErrDuplicateJob = errors.New("job already queued")
	// ErrCancelled is the failure cause handed to OnFailure for cancelled jobs.
	ErrCancelled = errors.New("job cancelled")
	// ErrStepRegressed marks a step that moved the counter backwards or failed to advance.
	ErrStepRegressed = errors.New("job step did not advance")
)

// Job is a descriptor the engine can schedule.
type Job interface {
	JobID() string
	// CurrentStep is the 1-based step to run next. Values past the last step mean done.
	CurrentStep() int
}

// Step runs one phase of a job. It returns the updated descriptor even on
// error so partial progress survives retries, and advances the step counter
// only once its own work is durably complete.
type Step[J Job] func(ctx context.Context, job J) (J, error)

// Journal persists descriptors between step invocations.
type Journal[J Job] interface {
	Load(ctx context.Context) ([]J, error)
	Save(ctx context.Context, job J, attempts int, lastErr string) error
	Delete(ctx context.Context, id string) error
}

// Options configures an Engine.
type Options[J Job] struct {
	Name       string
	Steps      []Step[J]
	RetryDelay time.Duration
	// MaxRetries bounds consecutive transient failures of one step; 0 retries forever.
	MaxRetries int
	OnSuccess  func(ctx context.Context, job J)
	OnFailure  func(ctx context.Context, job J, cause error)
	Journal    Journal[J]
	Logger     *slog.Logger
}

// PendingJob is a queue snapshot entry.
type PendingJob struct {
	ID       string `json:"id"`
	Step     int    `json:"step"`
	Attempts int    `json:"attempts"`
	Running  bool   `json:"running"`
}

type entry[J Job] struct {
	job      J
	attempts int
}

// Engine executes jobs of one kind, one at a time, in push order.
type Engine[J Job] struct {
	opts   Options[J]
	logger *slog.Logger

	mu        sync.Mutex
	queue     []*entry[J]
	inflight  *entry[J]
	cancelled map[string]struct{}
	reserved  map[string]struct{} // ids whose push is still journaling
	started   bool
	cancel    context.CancelFunc
	wake      chan struct{}
	wg        sync.WaitGroup
}

// New constructs an engine. Start must be called before jobs execute.
func New[J Job](opts Options[J]) (*Engine[J], error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, fmt.Errorf("pipeline: name is required")
	}
	if len(opts.Steps) == 0 {
		return nil, fmt.Errorf("pipeline %s: at least one step is required", opts.Name)
	}
	for i, step := range opts.Steps {
		if step == nil {
			return nil, fmt.Errorf("pipeline %s: step %d is nil", opts.Name, i+1)
		}
	}
	if opts.MaxRetries < 0 {
		return nil, fmt.Errorf("pipeline %s: max retries must be >= 0", opts.Name)
	}
	logger := logging.NewComponentLogger(opts.Logger, "pipeline").With(logging.String(logging.FieldPipeline, opts.Name))
	return &Engine[J]{
		opts:      opts,
		logger:    logger,
		cancelled: make(map[string]struct{}),
		reserved:  make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
	}, nil
}

// Name returns the pipeline name.
func (e *Engine[J]) Name() string { return e.opts.Name }

// Start reloads journaled jobs ahead of any new pushes and launches the worker.
// Calling it again is a no-op.
func (e *Engine[J]) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	if e.opts.Journal != nil {
		jobs, err := e.opts.Journal.Load(ctx)
		if err != nil {
			logging.WarnWithContext(e.logger, "journal reload incomplete", "journal_load_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect the jobs table in the state database"),
				logging.String(logging.FieldImpact, "some interrupted jobs will not resume"),
			)
		}
		e.mu.Lock()
		restored := make([]*entry[J], 0, len(jobs)+len(e.queue))
		for _, job := range jobs {
			if e.knownLocked(job.JobID()) {
				continue
			}
			restored = append(restored, &entry[J]{job: job})
		}
		e.queue = append(restored, e.queue...)
		e.mu.Unlock()
		if len(jobs) > 0 {
			e.logger.Info("resuming journaled jobs", logging.Int("count", len(jobs)))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run(runCtx)
	e.signal()
	return nil
}

// Stop cancels the worker and waits for it to exit. The in-flight job stays
// journaled at its last durable step.
func (e *Engine[J]) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	e.wg.Wait()
}

// Push enqueues a fully populated descriptor and returns immediately.
func (e *Engine[J]) Push(ctx context.Context, job J) error {
	id := strings.TrimSpace(job.JobID())
	if id == "" {
		return services.Wrap(services.ErrValidation, e.opts.Name, "push", "job id is required", nil)
	}
	if job.CurrentStep() < 1 {
		return services.Wrap(services.ErrValidation, e.opts.Name, "push", fmt.Sprintf("job %s has invalid step %d", id, job.CurrentStep()), nil)
	}

	e.mu.Lock()
	if e.knownLocked(id) {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateJob, id)
	}
	e.reserved[id] = struct{}{}
	e.mu.Unlock()

	if e.opts.Journal != nil {
		if err := e.opts.Journal.Save(ctx, job, 0, ""); err != nil {
			e.mu.Lock()
			delete(e.reserved, id)
			e.mu.Unlock()
			return fmt.Errorf("journal job %s: %w", id, err)
		}
	}

	e.mu.Lock()
	delete(e.reserved, id)
	e.queue = append(e.queue, &entry[J]{job: job})
	delete(e.cancelled, id)
	e.mu.Unlock()

	e.logger.Debug("job queued", logging.String(logging.FieldJobID, id), logging.Int(logging.FieldStep, job.CurrentStep()))
	e.signal()
	return nil
}

// Cancel drops a queued job, or stops the running job after its current step
// invocation. It reports whether the id was known.
func (e *Engine[J]) Cancel(id string) bool {
	e.mu.Lock()
	if e.inflight != nil && e.inflight.job.JobID() == id {
		e.cancelled[id] = struct{}{}
		e.mu.Unlock()
		return true
	}
	var removed *entry[J]
	for i, item := range e.queue {
		if item.job.JobID() == id {
			removed = item
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
	if removed == nil {
		return false
	}
	e.fail(context.Background(), removed.job, ErrCancelled)
	return true
}

// Pending returns the running job followed by queued jobs in execution order.
func (e *Engine[J]) Pending() []PendingJob {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PendingJob, 0, len(e.queue)+1)
	if e.inflight != nil {
		out = append(out, PendingJob{ID: e.inflight.job.JobID(), Step: e.inflight.job.CurrentStep(), Attempts: e.inflight.attempts, Running: true})
	}
	for _, item := range e.queue {
		out = append(out, PendingJob{ID: item.job.JobID(), Step: item.job.CurrentStep(), Attempts: item.attempts})
	}
	return out
}

func (e *Engine[J]) knownLocked(id string) bool {
	if _, ok := e.reserved[id]; ok {
		return true
	}
	if e.inflight != nil && e.inflight.job.JobID() == id {
		return true
	}
	for _, item := range e.queue {
		if item.job.JobID() == id {
			return true
		}
	}
	return false
}

func (e *Engine[J]) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine[J]) run(ctx context.Context) {
	defer e.wg.Done()
	for {
		item := e.next()
		if item == nil {
			select {
			case <-ctx.Done():
				return
			case <-e.wake:
				continue
			}
		}
		e.process(ctx, item)
		e.mu.Lock()
		e.inflight = nil
		e.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
	}
}

func (e *Engine[J]) next() *entry[J] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return nil
	}
	item := e.queue[0]
	e.queue = e.queue[1:]
	e.inflight = item
	return item
}

func (e *Engine[J]) isCancelled(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.cancelled[id]
	return ok
}

func (e *Engine[J]) process(ctx context.Context, item *entry[J]) {
	id := item.job.JobID()
	jobCtx := services.WithJobID(services.WithPipeline(ctx, e.opts.Name), id)
	started := time.Now()

	for {
		if ctx.Err() != nil {
			return
		}
		step := item.job.CurrentStep()
		if step > len(e.opts.Steps) {
			e.succeed(jobCtx, item.job, time.Since(started))
			return
		}
		if e.isCancelled(id) {
			e.fail(jobCtx, item.job, ErrCancelled)
			return
		}

		stepCtx := services.WithStep(jobCtx, step)
		logger := logging.WithContext(stepCtx, e.logger)
		logger.Debug("step started", logging.Int("attempt", item.attempts+1))

		next, err := e.invoke(stepCtx, step, item.job)
		if err != nil && next.JobID() == "" {
			next = item.job
		}
		if next.CurrentStep() < step || next.JobID() != id {
			e.fail(jobCtx, item.job, fmt.Errorf("%w: step %d returned step %d", ErrStepRegressed, step, next.CurrentStep()))
			return
		}
		if err == nil && next.CurrentStep() == step {
			e.update(item, next, item.attempts)
			e.fail(jobCtx, next, fmt.Errorf("%w: step %d returned without advancing", ErrStepRegressed, step))
			return
		}

		if err == nil {
			e.update(item, next, 0)
			e.journal(jobCtx, item, "")
			logger.Debug("step complete", logging.Int("next_step", next.CurrentStep()))
			continue
		}
		e.update(item, next, item.attempts)

		if ctx.Err() != nil {
			e.journal(context.WithoutCancel(jobCtx), item, "")
			logger.Info("step interrupted by shutdown", logging.Error(err))
			return
		}

		if services.Classify(err) != services.Transient || e.isCancelled(id) {
			e.fail(jobCtx, item.job, err)
			return
		}
		e.update(item, item.job, item.attempts+1)
		e.journal(jobCtx, item, err.Error())
		if e.opts.MaxRetries > 0 && item.attempts > e.opts.MaxRetries {
			e.fail(jobCtx, item.job, fmt.Errorf("retries exhausted after %d attempts: %w", item.attempts, err))
			return
		}
		logging.WarnWithContext(logger, "step failed; retrying", "step_retry",
			logging.Error(err),
			logging.Int("attempt", item.attempts),
			logging.Duration("retry_delay", e.opts.RetryDelay),
			logging.String(logging.FieldErrorHint, "check network connectivity and the object store"),
			logging.String(logging.FieldImpact, "queued jobs wait behind this retry"),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.opts.RetryDelay):
		}
	}
}

func (e *Engine[J]) update(item *entry[J], job J, attempts int) {
	e.mu.Lock()
	item.job = job
	item.attempts = attempts
	e.mu.Unlock()
}

// invoke runs one step, converting a panic into a permanent error.
func (e *Engine[J]) invoke(ctx context.Context, step int, job J) (next J, err error) {
	defer func() {
		if r := recover(); r != nil {
			next = job
			err = fmt.Errorf("step %d panicked: %v", step, r)
		}
	}()
	return e.opts.Steps[step-1](ctx, job)
}

func (e *Engine[J]) journal(ctx context.Context, item *entry[J], lastErr string) {
	if e.opts.Journal == nil {
		return
	}
	if err := e.opts.Journal.Save(ctx, item.job, item.attempts, lastErr); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "journal save failed", "journal_save_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir disk space and permissions"),
			logging.String(logging.FieldImpact, "job progress will not survive a restart"),
		)
	}
}

func (e *Engine[J]) forget(ctx context.Context, id string) {
	e.mu.Lock()
	delete(e.cancelled, id)
	e.mu.Unlock()
	if e.opts.Journal == nil {
		return
	}
	if err := e.opts.Journal.Delete(ctx, id); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "journal delete failed", "journal_delete_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir disk space and permissions"),
			logging.String(logging.FieldImpact, "a finished job may be resumed after restart"),
		)
	}
}

func (e *Engine[J]) succeed(ctx context.Context, job J, elapsed time.Duration) {
	ctx = context.WithoutCancel(ctx)
	if e.opts.OnSuccess != nil {
		e.opts.OnSuccess(ctx, job)
	}
	e.forget(ctx, job.JobID())
	logging.WithContext(ctx, e.logger).Debug("job finished", logging.Duration("elapsed", elapsed))
}

func (e *Engine[J]) fail(ctx context.Context, job J, cause error) {
	ctx = context.WithoutCancel(ctx)
	if _, ok := services.JobIDFromContext(ctx); !ok {
		ctx = services.WithJobID(services.WithPipeline(ctx, e.opts.Name), job.JobID())
	}
	logging.ErrorWithContext(logging.WithContext(ctx, e.logger), "job failed", "job_failed",
		logging.Error(cause),
		logging.Int(logging.FieldStep, job.CurrentStep()),
		logging.String("classification", classification(cause)),
		logging.String(logging.FieldErrorHint, "inspect the cause; job artifacts have been removed"),
	)
	if e.opts.OnFailure != nil {
		e.opts.OnFailure(ctx, job, cause)
	}
	e.forget(ctx, job.JobID())
}

func classification(err error) string {
	if errors.Is(err, ErrCancelled) {
		return "cancelled"
	}
	return services.Classify(err).String()
}
