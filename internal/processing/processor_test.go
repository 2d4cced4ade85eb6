package processing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FitSpo/internal/model"
	"github.com/dharsanguruparan/FitSpo/internal/scan"
)

// blockingScanner waits for release (or cancellation) before answering.
type blockingScanner struct {
	started chan scan.Request
	release chan struct{}
}

func newBlockingScanner() *blockingScanner {
	return &blockingScanner{started: make(chan scan.Request, 8), release: make(chan struct{})}
}

func (b *blockingScanner) Run(ctx context.Context, req scan.Request) (*scan.Result, error) {
	b.started <- req
	select {
	case <-b.release:
		return &scan.Result{
			PostID: req.PostID,
			Job:    &model.ScanJob{ID: "j-" + req.PostID, Status: model.JobSucceeded},
			Items:  []model.OutfitItem{},
			Cached: true,
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type staticImages struct{}

func (staticImages) URL(_ context.Context, key string) (string, error) {
	return "https://img.test/" + key, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestScanResolvesTask(t *testing.T) {
	scanner := newBlockingScanner()
	p := New(scanner, staticImages{}, 2, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); p.Wait() }()
	p.Start(ctx)

	task, err := p.Scan(context.Background(), "p1", "posts/p1/a.jpg")
	require.NoError(t, err)

	req := <-scanner.started
	assert.Equal(t, "https://img.test/posts/p1/a.jpg", req.ImageURL)
	close(scanner.release)

	res, err := task.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "j-p1", res.Job.ID)

	_, active := p.Active("p1")
	assert.False(t, active)
}

func TestSubmitRejectsDuplicatePost(t *testing.T) {
	scanner := newBlockingScanner()
	p := New(scanner, staticImages{}, 1, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); p.Wait() }()
	p.Start(ctx)

	_, err := p.Submit(scan.Request{PostID: "p1", ImageURL: "https://img.test/a"})
	require.NoError(t, err)
	<-scanner.started

	_, err = p.Submit(scan.Request{PostID: "p1", ImageURL: "https://img.test/a"})
	assert.ErrorIs(t, err, scan.ErrScanInProgress)
	close(scanner.release)
}

func TestCancelStopsRunningScan(t *testing.T) {
	scanner := newBlockingScanner()
	p := New(scanner, staticImages{}, 1, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer func() { cancel(); p.Wait() }()
	p.Start(ctx)

	task, err := p.Submit(scan.Request{PostID: "p1", ImageURL: "https://img.test/a"})
	require.NoError(t, err)
	<-scanner.started

	assert.True(t, p.Cancel("p1"))
	_, err = task.Wait(waitCtx(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, p.Cancel("p1"))
}

func TestSubmitQueueFull(t *testing.T) {
	// Without Start nothing drains the buffer of four.
	p := New(newBlockingScanner(), staticImages{}, 1, quietLogger())
	for i := 0; i < 4; i++ {
		_, err := p.Submit(scan.Request{PostID: string(rune('a' + i)), ImageURL: "https://img.test/a"})
		require.NoError(t, err)
	}
	_, err := p.Submit(scan.Request{PostID: "overflow", ImageURL: "https://img.test/a"})
	assert.True(t, errors.Is(err, ErrQueueFull))
	_, active := p.Active("overflow")
	assert.False(t, active)
}

func TestShutdownResolvesQueuedTasks(t *testing.T) {
	p := New(newBlockingScanner(), staticImages{}, 1, quietLogger())
	task, err := p.Submit(scan.Request{PostID: "p1", ImageURL: "https://img.test/a"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Start(ctx)
	p.Wait()

	_, err = task.Wait(waitCtx(t))
	assert.Error(t, err)
}
