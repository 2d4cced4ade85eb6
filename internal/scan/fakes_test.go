package scan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dharsanguruparan/FitSpo/internal/model"
)

// fakeRemote returns the submit job and then one status per Status call,
// repeating the last entry when the sequence runs out.
type fakeRemote struct {
	mu          sync.Mutex
	submitJob   *model.ScanJob
	submitErr   error
	statuses    []*model.ScanJob
	statusErr   error
	submitCalls int
	statusCalls int
	block       chan struct{}
}

func (f *fakeRemote) Submit(ctx context.Context, postID, imageURL string) (*model.ScanJob, error) {
	f.mu.Lock()
	f.submitCalls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	job := *f.submitJob
	return &job, nil
}

func (f *fakeRemote) Status(_ context.Context, jobID string) (*model.ScanJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if len(f.statuses) == 0 {
		return nil, errors.New("no statuses scripted")
	}
	idx := f.statusCalls - 1
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	job := *f.statuses[idx]
	return &job, nil
}

func (f *fakeRemote) calls() (submit, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls, f.statusCalls
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

type fakeCache struct {
	mu    sync.Mutex
	err   error
	saves map[string][]model.OutfitItem
	calls int
}

func newFakeCache() *fakeCache {
	return &fakeCache{saves: make(map[string][]model.OutfitItem)}
}

func (c *fakeCache) SaveScanResults(_ context.Context, postID string, items []model.OutfitItem, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return c.err
	}
	c.saves[postID] = items
	return nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	results []*Result
	err     error
}

func (n *fakeNotifier) ScanCompleted(_ context.Context, res *Result) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results = append(n.results, res)
	return n.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func job(status model.JobStatus, objects ...model.RawDetection) *model.ScanJob {
	j := &model.ScanJob{ID: "job-1", Status: status}
	if objects != nil {
		j.Output = &model.JobOutput{JSONData: &model.DetectorData{Objects: objects}}
	}
	return j
}
