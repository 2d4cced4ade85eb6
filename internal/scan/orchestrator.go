// Package scan runs the outfit-scan workflow: submit a remote detection job,
// poll it until it finishes, normalize the detections and cache the resulting
// outfit items on the post.
package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dharsanguruparan/FitSpo/internal/model"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 15
)

var tracer = otel.Tracer("github.com/dharsanguruparan/FitSpo/internal/scan")

// Remote is the scan service: one call starts a job, the other reads it back.
type Remote interface {
	Submit(ctx context.Context, postID, imageURL string) (*model.ScanJob, error)
	Status(ctx context.Context, jobID string) (*model.ScanJob, error)
}

// Cache persists normalized items onto a post, replacing earlier results.
type Cache interface {
	SaveScanResults(ctx context.Context, postID string, items []model.OutfitItem, scannedAt time.Time) error
}

// Notifier is told about every scan that reached a terminal state.
type Notifier interface {
	ScanCompleted(ctx context.Context, res *Result) error
}

// Request identifies the post to scan and where the remote service can fetch
// its image.
type Request struct {
	PostID   string `json:"postId" validate:"required"`
	ImageURL string `json:"imageURL" validate:"required,url"`
}

// Result is the outcome of a scan that reached a terminal job state.
type Result struct {
	PostID    string
	Job       *model.ScanJob
	Items     []model.OutfitItem
	StartedAt time.Time
	// Cached is true once Items were written to the post.
	Cached bool
}

// Failed reports whether the remote job ended in the failed state, as opposed
// to succeeding with zero detections.
func (r *Result) Failed() bool {
	return r.Job == nil || r.Job.Status != model.JobSucceeded
}

// Options tunes polling. Zero values fall back to the defaults.
type Options struct {
	Interval    time.Duration
	MaxAttempts int
	Sleep       Sleeper
	Now         func() time.Time
	Notifier    Notifier
}

// Orchestrator holds the dependencies of the scan workflow. It is safe for
// concurrent use across different posts.
type Orchestrator struct {
	remote   Remote
	cache    Cache
	opts     Options
	log      *slog.Logger
	validate *validator.Validate

	mu     sync.Mutex
	active map[string]struct{}
}

// New constructs an Orchestrator.
func New(remote Remote, cache Cache, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		remote:   remote,
		cache:    cache,
		opts:     opts,
		log:      logger.With("component", "scan"),
		validate: validator.New(),
		active:   make(map[string]struct{}),
	}
}

// Submit starts one remote job. There is no idempotency key: every call is a
// new, billable job, and failures are not retried.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*model.ScanJob, error) {
	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	job, err := o.remote.Submit(ctx, req.PostID, req.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: submit post %s: %w", ErrRemote, req.PostID, err)
	}
	if job == nil || job.ID == "" {
		return nil, fmt.Errorf("%w: submit post %s: response has no job id", ErrRemote, req.PostID)
	}
	if job.Status == "" {
		return nil, fmt.Errorf("%w: job %s has no status", ErrRemote, job.ID)
	}
	return job, nil
}

// Run executes submit, poll, normalize and persist in order. Only a succeeded
// job is written to the cache; a failed job comes back as a Result with
// Failed() true and no error. When the cache write fails the Result is
// returned together with an error wrapping ErrCacheWrite.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !o.acquire(req.PostID) {
		return nil, fmt.Errorf("%w %s", ErrScanInProgress, req.PostID)
	}
	defer o.release(req.PostID)

	ctx, span := tracer.Start(ctx, "scan.run", trace.WithAttributes(attribute.String("post.id", req.PostID)))
	defer span.End()
	log := o.log.With("post_id", req.PostID)
	startedAt := o.opts.Now().UTC()

	job, err := o.Submit(ctx, req)
	if err != nil {
		return nil, o.fail(span, log, "scan submit failed", err)
	}
	span.SetAttributes(attribute.String("scan.job_id", job.ID))
	log = log.With("job_id", job.ID)
	log.Info("scan submitted", "status", job.Status)

	job, err = o.Poll(ctx, job)
	if err != nil {
		return nil, o.fail(span, log, "scan poll failed", err)
	}

	res := &Result{
		PostID:    req.PostID,
		Job:       job,
		Items:     Items(Normalize(job)),
		StartedAt: startedAt,
	}
	span.SetAttributes(
		attribute.String("scan.status", string(job.Status)),
		attribute.Int("scan.items", len(res.Items)),
	)
	if res.Failed() {
		log.Warn("scan job did not succeed", "status", job.Status)
		o.notify(ctx, log, res)
		return res, nil
	}

	if err := o.cache.SaveScanResults(ctx, req.PostID, res.Items, startedAt); err != nil {
		err = fmt.Errorf("%w for post %s: %w", ErrCacheWrite, req.PostID, err)
		o.notify(ctx, log, res)
		return res, o.fail(span, log, "scan results not cached", err)
	}
	res.Cached = true
	log.Info("scan results cached", "items", len(res.Items))
	o.notify(ctx, log, res)
	return res, nil
}

// Start runs the workflow in its own goroutine. The returned Task can be
// awaited or cancelled; ctx bounds the whole run.
func (o *Orchestrator) Start(ctx context.Context, req Request) *Task {
	ctx, cancel := context.WithCancel(ctx)
	task := NewTask(cancel)
	go func() {
		defer cancel()
		task.Resolve(o.Run(ctx, req))
	}()
	return task
}

// inProgress reports whether a scan of postID is currently running in this
// process.
func (o *Orchestrator) inProgress(postID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[postID]
	return ok
}

func (o *Orchestrator) acquire(postID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.active[postID]; ok {
		return false
	}
	o.active[postID] = struct{}{}
	return true
}

func (o *Orchestrator) release(postID string) {
	o.mu.Lock()
	delete(o.active, postID)
	o.mu.Unlock()
}

func (o *Orchestrator) fail(span trace.Span, log *slog.Logger, msg string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	log.Error(msg, "err", err)
	return err
}

func (o *Orchestrator) notify(ctx context.Context, log *slog.Logger, res *Result) {
	if o.opts.Notifier == nil {
		return
	}
	if err := o.opts.Notifier.ScanCompleted(ctx, res); err != nil {
		log.Warn("scan completion not published", "err", err)
	}
}
