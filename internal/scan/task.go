package scan

import (
	"context"
	"sync"
)

// Task is a handle on a scan running in the background. The caller decides
// whether to Wait on it or let it finish on its own.
type Task struct {
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc
	result *Result
	err    error
}

// NewTask returns a pending task. cancel may be nil.
func NewTask(cancel context.CancelFunc) *Task {
	return &Task{done: make(chan struct{}), cancel: cancel}
}

// Resolve completes the task. Only the first call has an effect.
func (t *Task) Resolve(res *Result, err error) {
	t.once.Do(func() {
		t.result = res
		t.err = err
		close(t.done)
	})
}

// Done is closed once the task resolved.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel asks the running scan to stop at its next suspension point.
func (t *Task) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

// Wait blocks until the task resolves or ctx ends. Giving up on the wait does
// not cancel the scan; use Cancel for that.
func (t *Task) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
