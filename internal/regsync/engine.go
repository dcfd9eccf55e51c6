// Package regsync orchestrates bulk sync jobs: it selects target identifiers,
// dispatches them through the ingestion pipeline with bounded concurrency and
// records per-job progress and per-item failures.
package regsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/carrier-sync/internal/config"
	"github.com/sells-group/carrier-sync/internal/model"
	"github.com/sells-group/carrier-sync/internal/pipeline"
	"github.com/sells-group/carrier-sync/internal/registry"
	"github.com/sells-group/carrier-sync/internal/resilience"
	"github.com/sells-group/carrier-sync/internal/store"
)

const (
	defaultConcurrency = 4
	defaultStaleDays   = 30
	defaultLimit       = 100

	// progressEvery is how many processed items pass between progress writes.
	progressEvery = 10
)

// ErrJobNotRunning is returned by Cancel for jobs this engine is not running.
var ErrJobNotRunning = eris.New("regsync: job is not running")

// Processor runs one identifier through the ingestion pipeline.
type Processor interface {
	Process(ctx context.Context, dot string) (*pipeline.Outcome, error)
}

// JobRequest describes a job to start.
type JobRequest struct {
	JobType   model.JobType `json:"job_type"`
	Limit     int           `json:"limit,omitempty"`
	IDs       []string      `json:"ids,omitempty"`
	StaleDays int           `json:"stale_days,omitempty"`
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithJobHook registers fn to run after every job reaches a terminal state.
func WithJobHook(fn func(ctx context.Context, job *model.SyncJob)) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, fn) }
}

// Engine runs sync jobs.
type Engine struct {
	store  store.Store
	proc   Processor
	pinger registry.Pinger
	cfg    config.SyncConfig
	now    func() time.Time
	hooks  []func(ctx context.Context, job *model.SyncJob)

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine creates an Engine. pinger may be nil to skip the registry
// reachability preflight.
func NewEngine(st store.Store, proc Processor, pinger registry.Pinger, cfg config.SyncConfig, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		proc:    proc,
		pinger:  pinger,
		cfg:     cfg,
		now:     time.Now,
		running: make(map[string]context.CancelFunc),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Submit selects targets for req and persists a pending job. Malformed
// identifiers in a discover request reject the whole request before any
// fetch is attempted.
func (e *Engine) Submit(ctx context.Context, req JobRequest) (*model.SyncJob, error) {
	targets, err := e.selectTargets(ctx, req)
	if err != nil {
		return nil, err
	}

	job := &model.SyncJob{
		ID:        uuid.NewString(),
		JobType:   req.JobType,
		Status:    model.JobStatusPending,
		Targets:   targets,
		CreatedAt: e.now().UTC(),
	}
	if err := e.store.CreateJob(ctx, job); err != nil {
		return nil, eris.Wrap(err, "regsync: create job")
	}
	return job, nil
}

// StartJob submits req and runs it in the background. It returns as soon as
// the job is persisted.
func (e *Engine) StartJob(ctx context.Context, req JobRequest) (string, error) {
	job, err := e.Submit(ctx, req)
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.track(job.ID, cancel)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.untrack(job.ID)
		if _, err := e.run(runCtx, job); err != nil {
			zap.L().Error("regsync: background job failed",
				zap.String("component", "regsync"),
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
		}
	}()
	return job.ID, nil
}

// RunJob executes a pending job and blocks until it finishes. Cancelling ctx
// stops dispatch at the next identifier boundary; the job still completes
// with Cancelled set.
func (e *Engine) RunJob(ctx context.Context, job *model.SyncJob) (*model.SyncJob, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.track(job.ID, cancel)
	defer e.untrack(job.ID)
	return e.run(runCtx, job)
}

func (e *Engine) finish(ctx context.Context, job *model.SyncJob) {
	for _, fn := range e.hooks {
		fn(ctx, job)
	}
}

// GetJobStatus returns the persisted state of a job.
func (e *Engine) GetJobStatus(ctx context.Context, id string) (*model.SyncJob, error) {
	return e.store.GetJob(ctx, id)
}

// ListJobs returns recent jobs, newest first.
func (e *Engine) ListJobs(ctx context.Context, limit int) ([]model.SyncJob, error) {
	return e.store.ListJobs(ctx, limit)
}

// Cancel requests cooperative cancellation of a running job.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	cancel, ok := e.running[id]
	e.mu.Unlock()
	if !ok {
		return eris.Wrapf(ErrJobNotRunning, "job %s", id)
	}
	cancel()
	return nil
}

// CancelAll requests cancellation of every running job and returns how many
// were signalled.
func (e *Engine) CancelAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cancel := range e.running {
		cancel()
	}
	return len(e.running)
}

// Wait blocks until every background job has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) track(id string, cancel context.CancelFunc) {
	e.mu.Lock()
	e.running[id] = cancel
	e.mu.Unlock()
}

func (e *Engine) untrack(id string) {
	e.mu.Lock()
	delete(e.running, id)
	e.mu.Unlock()
}

func (e *Engine) run(ctx context.Context, job *model.SyncJob) (*model.SyncJob, error) {
	log := zap.L().With(
		zap.String("component", "regsync"),
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.JobType)),
	)
	// Bookkeeping writes must land even after cancellation.
	bg := context.WithoutCancel(ctx)

	if err := job.Start(e.now().UTC()); err != nil {
		return job, err
	}
	if err := e.store.UpdateJob(bg, job); err != nil {
		return job, eris.Wrapf(err, "regsync: mark job %s running", job.ID)
	}

	if err := e.preflight(bg); err != nil {
		log.Error("regsync: preflight failed", zap.Error(err))
		if ferr := job.Fail(e.now().UTC(), err.Error()); ferr != nil {
			return job, ferr
		}
		if uerr := e.store.UpdateJob(bg, job); uerr != nil {
			return job, eris.Wrapf(uerr, "regsync: mark job %s failed", job.ID)
		}
		e.finish(bg, job)
		return job, nil
	}

	log.Info("regsync: job started", zap.Int("targets", len(job.Targets)))
	start := time.Now()

	var processed, updated, changed, failed atomic.Int64
	snapshot := func() model.SyncJob {
		j := *job
		j.Processed = int(processed.Load())
		j.Updated = int(updated.Load())
		j.Changed = int(changed.Load())
		j.Failed = int(failed.Load())
		return j
	}

	pace := rate.NewLimiter(rate.Inf, 1)
	if e.cfg.RequestDelayMs > 0 {
		pace = rate.NewLimiter(rate.Every(time.Duration(e.cfg.RequestDelayMs)*time.Millisecond), 1)
	}

	progress := &progressWriter{store: e.store, log: log}

	var g errgroup.Group
	g.SetLimit(e.concurrency())

	var cancelled atomic.Bool
	for _, dot := range job.Targets {
		if ctx.Err() != nil {
			cancelled.Store(true)
			break
		}
		if err := pace.Wait(ctx); err != nil {
			cancelled.Store(true)
			break
		}

		g.Go(func() error {
			// A queued identifier may have waited for a slot past cancellation.
			if ctx.Err() != nil {
				cancelled.Store(true)
				return nil
			}
			// In-flight identifiers finish even when the job is cancelled.
			out, err := e.proc.Process(bg, dot)
			if err != nil {
				failed.Add(1)
				class := resilience.ClassifyError(err)
				log.Warn("regsync: item failed",
					zap.String("dot", dot),
					zap.String("error_class", class),
					zap.Error(err),
				)
				if rerr := e.store.RecordFailure(bg, model.JobFailure{
					JobID:      job.ID,
					ExternalID: dot,
					ErrorClass: class,
					Error:      err.Error(),
					FailedAt:   e.now().UTC(),
				}); rerr != nil {
					log.Error("regsync: record failure", zap.String("dot", dot), zap.Error(rerr))
				}
			} else {
				updated.Add(1)
				if out.Changed {
					changed.Add(1)
				}
			}

			if n := processed.Add(1); n%progressEvery == 0 {
				progress.write(bg, snapshot)
			}
			return nil
		})
	}
	_ = g.Wait()

	final := snapshot()
	job.Processed, job.Updated, job.Changed, job.Failed = final.Processed, final.Updated, final.Changed, final.Failed
	job.Cancelled = cancelled.Load()
	if err := job.Complete(e.now().UTC()); err != nil {
		return job, err
	}
	if err := e.store.UpdateJob(bg, job); err != nil {
		return job, eris.Wrapf(err, "regsync: mark job %s completed", job.ID)
	}

	log.Info("regsync: job complete",
		zap.Int("processed", job.Processed),
		zap.Int("updated", job.Updated),
		zap.Int("changed", job.Changed),
		zap.Int("failed", job.Failed),
		zap.Bool("cancelled", job.Cancelled),
		zap.Float64("success_rate", job.SuccessRate()),
		zap.Duration("elapsed", time.Since(start)),
	)
	e.finish(bg, job)
	return job, nil
}

// progressWriter persists running counts. Writes are serialized and a
// snapshot older than the last one written is dropped, so readers never see
// counts go backwards.
type progressWriter struct {
	store store.Store
	log   *zap.Logger

	mu   sync.Mutex
	last int
}

func (p *progressWriter) write(ctx context.Context, snapshot func() model.SyncJob) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j := snapshot()
	if j.Processed <= p.last {
		return
	}
	if err := p.store.UpdateJob(ctx, &j); err != nil {
		p.log.Warn("regsync: progress update failed", zap.Error(err))
		return
	}
	p.last = j.Processed
}

// preflight checks the systemic preconditions of a job: the store and the
// registry must both be reachable.
func (e *Engine) preflight(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return eris.Wrap(err, "regsync: store unreachable")
	}
	if e.pinger != nil {
		if err := e.pinger.Ping(ctx); err != nil {
			return eris.Wrap(err, "regsync: registry unreachable")
		}
	}
	return nil
}

func (e *Engine) concurrency() int {
	if e.cfg.Concurrency > 0 {
		return e.cfg.Concurrency
	}
	return defaultConcurrency
}
