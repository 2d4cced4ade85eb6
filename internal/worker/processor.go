package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/FitSpo/internal/queue"
	"github.com/dharsanguruparan/FitSpo/internal/scan"
)

// Scanner runs one scan to completion.
type Scanner interface {
	Run(ctx context.Context, req scan.Request) (*scan.Result, error)
}

// ImageURLs resolves an object key to a URL the scan service can fetch.
type ImageURLs interface {
	URL(ctx context.Context, key string) (string, error)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	scanner Scanner
	images  ImageURLs
	log     *slog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(scanner Scanner, images ImageURLs, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{scanner: scanner, images: images, log: logger.With("component", "worker")}
}

// Handler registers the scan job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ScanPostTask, p.HandleScan)
	return mux
}

// HandleScan runs the scan described by task. Scans cost money on the remote
// side, so every error is marked to skip asynq retries.
func (p *Processor) HandleScan(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseScanPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	log := p.log.With("post_id", payload.PostID)

	imageURL, err := p.images.URL(ctx, payload.ImageKey)
	if err != nil {
		log.Error("resolve image url failed", "key", payload.ImageKey, "err", err)
		return fmt.Errorf("image url for %s: %w: %w", payload.PostID, err, asynq.SkipRetry)
	}

	res, err := p.scanner.Run(ctx, scan.Request{PostID: payload.PostID, ImageURL: imageURL})
	switch {
	case errors.Is(err, scan.ErrScanInProgress):
		log.Info("scan already running, task dropped")
		return nil
	case err != nil:
		return fmt.Errorf("scan post %s: %w: %w", payload.PostID, err, asynq.SkipRetry)
	case res.Failed():
		log.Warn("scan finished without results", "job_id", res.Job.ID, "status", res.Job.Status)
		return nil
	}
	log.Info("scan processed", "job_id", res.Job.ID, "items", len(res.Items))
	return nil
}
