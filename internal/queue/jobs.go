package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/FitSpo/internal/scan"
)

const (
	// ScanPostTask is scheduled after each upload and on manual re-scans.
	ScanPostTask = "post:scan"
)

// ScanPayload is serialized into the task payload. The image URL is resolved
// by the worker so presigned URLs do not expire while the task waits.
type ScanPayload struct {
	PostID   string `json:"post_id"`
	ImageKey string `json:"image_key"`
}

// NewScanTask builds the task for payload.
func NewScanTask(payload ScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ScanPostTask, data), nil
}

// ParseScanPayload decodes a task payload.
func ParseScanPayload(task *asynq.Task) (ScanPayload, error) {
	var payload ScanPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if payload.PostID == "" || payload.ImageKey == "" {
		return payload, errors.New("decode payload: post_id and image_key are required")
	}
	return payload, nil
}

// Enqueuer is the part of *asynq.Client the dispatcher uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher hands scans to the worker fleet through Redis.
type Dispatcher struct {
	client  Enqueuer
	lockTTL time.Duration
	timeout time.Duration
}

// NewDispatcher constructs a Dispatcher. lockTTL bounds how long a post stays
// locked against duplicate enqueues; timeout bounds one task execution.
func NewDispatcher(client Enqueuer, lockTTL, timeout time.Duration) *Dispatcher {
	return &Dispatcher{client: client, lockTTL: lockTTL, timeout: timeout}
}

// Dispatch enqueues a scan. Scans are never retried automatically, and a post
// that already has a pending scan is rejected with scan.ErrScanInProgress.
func (d *Dispatcher) Dispatch(ctx context.Context, postID, imageKey string) error {
	task, err := NewScanTask(ScanPayload{PostID: postID, ImageKey: imageKey})
	if err != nil {
		return err
	}
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(0),
		asynq.Unique(d.lockTTL),
		asynq.Timeout(d.timeout),
	)
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return fmt.Errorf("%w %s", scan.ErrScanInProgress, postID)
	}
	if err != nil {
		return fmt.Errorf("enqueue scan task: %w", err)
	}
	return nil
}
