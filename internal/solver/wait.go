// File: internal/solver/wait.go
package solver

import (
	"context"
	"errors"
	"time"
)

// errWaitTimeout signals that a bounded wait elapsed before its condition
// held. Callers map it onto the attempt-level error taxonomy.
var errWaitTimeout = errors.New("wait deadline elapsed")

// waitFor polls cond at the given interval until it reports true, the
// timeout elapses, or ctx is cancelled. A timeout of zero or less selects
// the unbounded mode: no deadline is allocated at all, and only ctx
// cancellation can end the wait. Errors from cond are treated as "not yet"
// and polling continues, which tolerates transient DOM churn.
func waitFor(ctx context.Context, timeout, interval time.Duration, cond func(context.Context) (bool, error)) error {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ok, err := cond(ctx)
		if err == nil && ok {
			return nil
		}

		pause := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			pause.Stop()
			return ctx.Err()
		case <-deadline:
			pause.Stop()
			return errWaitTimeout
		case <-pause.C:
		}
	}
}

// sleep pauses for d, returning early with the context error when cancelled.
// A non-positive duration returns immediately (after a cancellation check).
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
