package crawler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryPolicy is a fixed-delay bounded retry.
type RetryPolicy struct {
	Attempts  int
	Delay     time.Duration
	Retryable func(error) bool
}

// StaleElementPolicy retries reads that raced a re-render.
func StaleElementPolicy(attempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{
		Attempts:  attempts,
		Delay:     delay,
		Retryable: IsStaleElement,
	}
}

// Retry runs fn up to p.Attempts times, sleeping p.Delay between attempts
// while the error is retryable. The last error is returned unchanged.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return result, err
		}
		if attempt == attempts {
			break
		}

		log.Debug().Err(err).Int("attempt", attempt).Int("attempts", attempts).Msg("Retrying after transient error")
		if sleepErr := Sleep(ctx, p.Delay); sleepErr != nil {
			return result, sleepErr
		}
	}
	return result, err
}
