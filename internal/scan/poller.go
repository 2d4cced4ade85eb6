package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/dharsanguruparan/FitSpo/internal/model"
)

// Sleeper pauses between status fetches. It must return early with ctx.Err()
// when the context is cancelled.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the wall-clock Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poll re-fetches the job every Interval until it leaves the starting and
// processing states. At most MaxAttempts re-fetches are issued; the budget is
// checked before each one, so exhausting it never triggers an extra call.
func (o *Orchestrator) Poll(ctx context.Context, job *model.ScanJob) (*model.ScanJob, error) {
	attempts := 0
	for job.Status.Pending() {
		if attempts >= o.opts.MaxAttempts {
			o.log.Warn("scan poll budget exhausted", "job_id", job.ID, "status", job.Status, "attempts", attempts)
			return nil, fmt.Errorf("%w: job %s still %s after %d checks", ErrTimeout, job.ID, job.Status, attempts)
		}
		if err := o.opts.Sleep(ctx, o.opts.Interval); err != nil {
			return nil, err
		}
		next, err := o.remote.Status(ctx, job.ID)
		attempts++
		if err != nil {
			return nil, fmt.Errorf("%w: status of job %s: %w", ErrRemote, job.ID, err)
		}
		if next == nil {
			return nil, fmt.Errorf("%w: empty status for job %s", ErrRemote, job.ID)
		}
		if next.Status == "" {
			return nil, fmt.Errorf("%w: job %s has no status", ErrRemote, job.ID)
		}
		o.log.Debug("scan job polled", "job_id", job.ID, "status", next.Status, "attempt", attempts)
		job = next
	}
	return job, nil
}
