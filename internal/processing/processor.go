// Package processing runs scans in-process on a fixed pool of goroutines.
// It is the dispatcher used by the single-binary server, where no Redis is
// available.
package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dharsanguruparan/FitSpo/internal/scan"
)

// ErrQueueFull is returned when every worker is busy and the buffer is full.
var ErrQueueFull = errors.New("scan queue full")

// Scanner runs one scan to completion.
type Scanner interface {
	Run(ctx context.Context, req scan.Request) (*scan.Result, error)
}

// ImageURLs resolves an object key to a URL the scan service can fetch.
type ImageURLs interface {
	URL(ctx context.Context, key string) (string, error)
}

type job struct {
	ctx  context.Context
	req  scan.Request
	task *scan.Task
}

// Processor consumes scan jobs and tracks the ones still in flight.
type Processor struct {
	scanner Scanner
	images  ImageURLs
	log     *slog.Logger
	queue   chan job
	workers int

	mu    sync.Mutex
	base  context.Context
	tasks map[string]*scan.Task
	wg    sync.WaitGroup
}

// New builds a Processor with queue capacity tied to worker count.
func New(scanner Scanner, images ImageURLs, workers int, logger *slog.Logger) *Processor {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		scanner: scanner,
		images:  images,
		log:     logger.With("component", "processing"),
		queue:   make(chan job, workers*4),
		workers: workers,
		base:    context.Background(),
		tasks:   make(map[string]*scan.Task),
	}
}

// Start launches worker goroutines. Scans inherit ctx, so cancelling it stops
// every queued and running scan.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	p.base = ctx
	p.mu.Unlock()
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Wait blocks until all workers have exited.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// Submit queues req and returns its Task. The scan is detached from the
// caller's request lifetime; use Task.Cancel or Cancel to stop it.
func (p *Processor) Submit(req scan.Request) (*scan.Task, error) {
	p.mu.Lock()
	if _, ok := p.tasks[req.PostID]; ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w %s", scan.ErrScanInProgress, req.PostID)
	}
	ctx, cancel := context.WithCancel(p.base)
	task := scan.NewTask(cancel)
	p.tasks[req.PostID] = task
	p.mu.Unlock()

	select {
	case p.queue <- job{ctx: ctx, req: req, task: task}:
		return task, nil
	default:
		p.finish(req.PostID, task)
		cancel()
		p.log.Warn("processor queue full, rejecting scan", "post_id", req.PostID)
		task.Resolve(nil, ErrQueueFull)
		return nil, ErrQueueFull
	}
}

// Scan resolves the image URL for imageKey and submits the scan.
func (p *Processor) Scan(ctx context.Context, postID, imageKey string) (*scan.Task, error) {
	imageURL, err := p.images.URL(ctx, imageKey)
	if err != nil {
		return nil, fmt.Errorf("image url for %s: %w", postID, err)
	}
	return p.Submit(scan.Request{PostID: postID, ImageURL: imageURL})
}

// Dispatch is Scan without the Task.
func (p *Processor) Dispatch(ctx context.Context, postID, imageKey string) error {
	_, err := p.Scan(ctx, postID, imageKey)
	return err
}

// Cancel stops the in-flight scan of postID. It reports false when there is
// none.
func (p *Processor) Cancel(postID string) bool {
	p.mu.Lock()
	task, ok := p.tasks[postID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	task.Cancel()
	return true
}

// Active returns the Task for postID if a scan is queued or running.
func (p *Processor) Active(postID string) (*scan.Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	task, ok := p.tasks[postID]
	return task, ok
}

func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			p.drain(ctx)
			return
		}
		select {
		case <-ctx.Done():
			p.drain(ctx)
			return
		case j := <-p.queue:
			p.process(j)
		}
	}
}

// drain resolves queued jobs nobody will run.
func (p *Processor) drain(ctx context.Context) {
	for {
		select {
		case j := <-p.queue:
			p.finish(j.req.PostID, j.task)
			j.task.Resolve(nil, ctx.Err())
		default:
			return
		}
	}
}

func (p *Processor) process(j job) {
	defer j.task.Cancel()
	if err := j.ctx.Err(); err != nil {
		p.finish(j.req.PostID, j.task)
		j.task.Resolve(nil, err)
		return
	}
	res, err := p.scanner.Run(j.ctx, j.req)
	if err != nil {
		p.log.Error("scan failed", "post_id", j.req.PostID, "err", err)
	}
	p.finish(j.req.PostID, j.task)
	j.task.Resolve(res, err)
}

func (p *Processor) finish(postID string, task *scan.Task) {
	p.mu.Lock()
	if p.tasks[postID] == task {
		delete(p.tasks, postID)
	}
	p.mu.Unlock()
}
