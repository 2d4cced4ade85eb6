package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FitSpo/internal/model"
	"github.com/dharsanguruparan/FitSpo/internal/storage"
)

var validReq = Request{PostID: "p1", ImageURL: "https://cdn.example.com/p1.jpg"}

func newPostStore(t *testing.T, ids ...string) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	for _, id := range ids {
		require.NoError(t, store.Create(context.Background(), &model.Post{ID: id, ImageKey: id + ".jpg"}))
	}
	return store
}

func TestRunPersistsItems(t *testing.T) {
	remote := &fakeRemote{
		submitJob: job(model.JobStarting),
		statuses: []*model.ScanJob{
			job(model.JobProcessing),
			job(model.JobSucceeded,
				model.RawDetection{"name": []byte(`"denim jacket"`)},
				model.RawDetection{"category": []byte(`"boots"`), "score": []byte(`0.7`)},
			),
		},
	}
	store := newPostStore(t, "p1")
	notifier := &fakeNotifier{}
	o := New(remote, store, Options{Sleep: (&recordingSleeper{}).Sleep, Notifier: notifier}, discardLogger())

	res, err := o.Run(context.Background(), validReq)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.False(t, res.Failed())
	require.Len(t, res.Items, 2)
	assert.Equal(t, "denim jacket", res.Items[0].Label)
	assert.Equal(t, "boots", res.Items[1].Label)

	post, err := store.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, res.Items, post.ScanResults)
	require.NotNil(t, post.ScannedAt)

	submitCalls, statusCalls := remote.calls()
	assert.Equal(t, 1, submitCalls)
	assert.Equal(t, 2, statusCalls)
	require.Len(t, notifier.results, 1)
	assert.Same(t, res, notifier.results[0])
}

func TestRunEmptyDetectionsPersistsEmptyList(t *testing.T) {
	remote := &fakeRemote{
		submitJob: job(model.JobStarting),
		statuses:  []*model.ScanJob{job(model.JobSucceeded, []model.RawDetection{}...)},
	}
	store := newPostStore(t, "p1")
	o := New(remote, store, Options{Sleep: (&recordingSleeper{}).Sleep}, discardLogger())

	res, err := o.Run(context.Background(), validReq)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Empty(t, res.Items)

	post, err := store.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, post.Scanned())
	assert.NotNil(t, post.ScanResults)
	assert.Empty(t, post.ScanResults)
}

func TestRunRescanReplacesItems(t *testing.T) {
	store := newPostStore(t, "p1")
	now := time.Now()
	clock := func() time.Time { now = now.Add(time.Second); return now }

	first := &fakeRemote{
		submitJob: job(model.JobSucceeded,
			model.RawDetection{"label": []byte(`"scarf"`)},
			model.RawDetection{"label": []byte(`"gloves"`)},
		),
	}
	o := New(first, store, Options{Now: clock}, discardLogger())
	_, err := o.Run(context.Background(), validReq)
	require.NoError(t, err)

	second := &fakeRemote{submitJob: job(model.JobSucceeded, model.RawDetection{"label": []byte(`"coat"`)})}
	o = New(second, store, Options{Now: clock}, discardLogger())
	_, err = o.Run(context.Background(), validReq)
	require.NoError(t, err)

	post, err := store.Get(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, post.ScanResults, 1)
	assert.Equal(t, model.OutfitItem{ID: "d0", Label: "coat", ShopURL: ShopURL("coat")}, post.ScanResults[0])
}

func TestRunFailedJobIsNotCached(t *testing.T) {
	remote := &fakeRemote{submitJob: job(model.JobStarting), statuses: []*model.ScanJob{job(model.JobFailed)}}
	cache := newFakeCache()
	notifier := &fakeNotifier{}
	o := New(remote, cache, Options{Sleep: (&recordingSleeper{}).Sleep, Notifier: notifier}, discardLogger())

	res, err := o.Run(context.Background(), validReq)
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.False(t, res.Cached)
	assert.Empty(t, res.Items)
	assert.Zero(t, cache.calls)
	assert.Len(t, notifier.results, 1)
}

func TestRunSurfacesCacheWriteFailure(t *testing.T) {
	remote := &fakeRemote{submitJob: job(model.JobSucceeded, model.RawDetection{"name": []byte(`"cap"`)})}
	cache := newFakeCache()
	cache.err = errors.New("disk full")
	o := New(remote, cache, Options{}, discardLogger())

	res, err := o.Run(context.Background(), validReq)
	require.ErrorIs(t, err, ErrCacheWrite)
	assert.ErrorContains(t, err, "disk full")
	require.NotNil(t, res)
	assert.False(t, res.Cached)
	assert.Equal(t, "cap", res.Items[0].Label)
}

func TestRunCacheWriteFailureMissingPost(t *testing.T) {
	remote := &fakeRemote{submitJob: job(model.JobSucceeded)}
	o := New(remote, newPostStore(t), Options{}, discardLogger())

	_, err := o.Run(context.Background(), validReq)
	require.ErrorIs(t, err, ErrCacheWrite)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunSubmitErrorStopsWorkflow(t *testing.T) {
	remote := &fakeRemote{submitErr: errors.New("503 from functions")}
	cache := newFakeCache()
	o := New(remote, cache, Options{}, discardLogger())

	res, err := o.Run(context.Background(), validReq)
	require.ErrorIs(t, err, ErrRemote)
	assert.Nil(t, res)
	_, statusCalls := remote.calls()
	assert.Zero(t, statusCalls)
	assert.Zero(t, cache.calls)
}

func TestRunSubmitWithoutJobID(t *testing.T) {
	remote := &fakeRemote{submitJob: &model.ScanJob{Status: model.JobStarting}}
	o := New(remote, newFakeCache(), Options{}, discardLogger())

	_, err := o.Run(context.Background(), validReq)
	assert.ErrorIs(t, err, ErrRemote)
}

func TestRunTimeoutStopsWorkflow(t *testing.T) {
	remote := &fakeRemote{submitJob: job(model.JobStarting), statuses: []*model.ScanJob{job(model.JobProcessing)}}
	cache := newFakeCache()
	o := New(remote, cache, Options{Sleep: (&recordingSleeper{}).Sleep}, discardLogger())

	res, err := o.Run(context.Background(), validReq)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Nil(t, res)
	assert.Zero(t, cache.calls)
}

func TestRunValidatesRequest(t *testing.T) {
	remote := &fakeRemote{submitJob: job(model.JobSucceeded)}
	o := New(remote, newFakeCache(), Options{}, discardLogger())

	for _, req := range []Request{
		{ImageURL: "https://cdn.example.com/x.jpg"},
		{PostID: "p1"},
		{PostID: "p1", ImageURL: "not a url"},
	} {
		_, err := o.Run(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest, "%+v", req)
	}
	submitCalls, _ := remote.calls()
	assert.Zero(t, submitCalls)
}

func TestRunRejectsConcurrentScanOfSamePost(t *testing.T) {
	remote := &fakeRemote{submitJob: job(model.JobSucceeded), block: make(chan struct{})}
	o := New(remote, newPostStore(t, "p1", "p2"), Options{}, discardLogger())

	first := o.Start(context.Background(), validReq)
	require.Eventually(t, func() bool { return o.inProgress("p1") }, time.Second, time.Millisecond)

	_, err := o.Run(context.Background(), validReq)
	assert.ErrorIs(t, err, ErrScanInProgress)

	other := o.Start(context.Background(), Request{PostID: "p2", ImageURL: "https://cdn.example.com/p2.jpg"})
	close(remote.block)

	res, err := first.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Cached)
	_, err = other.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, o.inProgress("p1"))
}

func TestStartCancel(t *testing.T) {
	remote := &fakeRemote{submitJob: job(model.JobSucceeded), block: make(chan struct{})}
	cache := newFakeCache()
	o := New(remote, cache, Options{}, discardLogger())

	task := o.Start(context.Background(), validReq)
	task.Cancel()

	_, err := task.Wait(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrRemote)
	assert.Zero(t, cache.calls)
	<-task.Done()
}

func TestTaskWaitGivesUpWithoutCancelling(t *testing.T) {
	task := NewTask(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := task.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	task.Resolve(&Result{PostID: "p1"}, nil)
	task.Resolve(nil, errors.New("ignored"))
	res, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p1", res.PostID)
}

func TestNotifierErrorDoesNotFailRun(t *testing.T) {
	remote := &fakeRemote{submitJob: job(model.JobSucceeded)}
	notifier := &fakeNotifier{err: errors.New("nats down")}
	o := New(remote, newPostStore(t, "p1"), Options{Notifier: notifier}, discardLogger())

	res, err := o.Run(context.Background(), validReq)
	require.NoError(t, err)
	assert.True(t, res.Cached)
}
