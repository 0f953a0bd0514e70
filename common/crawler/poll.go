package crawler

import (
	"context"
	"time"
)

// Condition is evaluated by Until. A returned error is treated as transient:
// it is remembered and the condition is polled again on the next tick.
type Condition func(ctx context.Context) (bool, error)

// Until evaluates cond immediately and then every interval until it reports
// true, the timeout elapses or ctx is done. On timeout it returns a
// *TimeoutError carrying the last transient error.
func Until(ctx context.Context, interval, timeout time.Duration, cond Condition) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last error
	for {
		ok, err := cond(ctx)
		if err == nil && ok {
			return nil
		}
		if err != nil {
			last = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return &TimeoutError{Timeout: timeout, Last: last}
		case <-ticker.C:
		}
	}
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
