package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FitSpo/internal/model"
	"github.com/dharsanguruparan/FitSpo/internal/queue"
	"github.com/dharsanguruparan/FitSpo/internal/scan"
)

type fakeScanner struct {
	reqs []scan.Request
	res  *scan.Result
	err  error
}

func (f *fakeScanner) Run(_ context.Context, req scan.Request) (*scan.Result, error) {
	f.reqs = append(f.reqs, req)
	return f.res, f.err
}

type fakeImages struct{ err error }

func (f fakeImages) URL(_ context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://img.test/" + key, nil
}

func newTask(t *testing.T, postID, key string) *asynq.Task {
	t.Helper()
	task, err := queue.NewScanTask(queue.ScanPayload{PostID: postID, ImageKey: key})
	require.NoError(t, err)
	return task
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleScanRunsOrchestrator(t *testing.T) {
	scanner := &fakeScanner{res: &scan.Result{
		PostID: "p1",
		Job:    &model.ScanJob{ID: "j1", Status: model.JobSucceeded},
		Items:  []model.OutfitItem{{ID: "d0", Label: "shirt"}},
		Cached: true,
	}}
	p := NewProcessor(scanner, fakeImages{}, quietLogger())

	require.NoError(t, p.HandleScan(context.Background(), newTask(t, "p1", "posts/p1/a.jpg")))
	require.Len(t, scanner.reqs, 1)
	assert.Equal(t, scan.Request{PostID: "p1", ImageURL: "https://img.test/posts/p1/a.jpg"}, scanner.reqs[0])
}

func TestHandleScanFailedJobIsNotAnError(t *testing.T) {
	scanner := &fakeScanner{res: &scan.Result{
		PostID: "p1",
		Job:    &model.ScanJob{ID: "j1", Status: model.JobFailed},
		Items:  []model.OutfitItem{},
	}}
	p := NewProcessor(scanner, fakeImages{}, quietLogger())
	assert.NoError(t, p.HandleScan(context.Background(), newTask(t, "p1", "k")))
}

func TestHandleScanErrorsSkipRetry(t *testing.T) {
	scanner := &fakeScanner{err: scan.ErrTimeout}
	p := NewProcessor(scanner, fakeImages{}, quietLogger())

	err := p.HandleScan(context.Background(), newTask(t, "p1", "k"))
	require.Error(t, err)
	assert.ErrorIs(t, err, scan.ErrTimeout)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleScanImageURLFailure(t *testing.T) {
	scanner := &fakeScanner{}
	p := NewProcessor(scanner, fakeImages{err: errors.New("no bucket")}, quietLogger())

	err := p.HandleScan(context.Background(), newTask(t, "p1", "k"))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, scanner.reqs)
}

func TestHandleScanInProgressIsDropped(t *testing.T) {
	p := NewProcessor(&fakeScanner{err: scan.ErrScanInProgress}, fakeImages{}, quietLogger())
	assert.NoError(t, p.HandleScan(context.Background(), newTask(t, "p1", "k")))
}

func TestHandleScanBadPayload(t *testing.T) {
	p := NewProcessor(&fakeScanner{}, fakeImages{}, quietLogger())
	err := p.HandleScan(context.Background(), asynq.NewTask(queue.ScanPostTask, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
