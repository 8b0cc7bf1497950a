package contest

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"seedcontest/internal/model"
)

const defaultRetryDelay = 250 * time.Millisecond

// WithRetry re-runs failed contests up to retries extra times. Out-of-range
// outcomes and context errors are returned at once. With retries == 0 the
// oracle is returned unchanged and any failure stays fatal.
func WithRetry(oracle Oracle, retries uint64, delay time.Duration) Oracle {
	if retries == 0 {
		return oracle
	}
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	return &retryOracle{next: oracle, retries: retries, delay: delay}
}

type retryOracle struct {
	next    Oracle
	retries uint64
	delay   time.Duration
}

func (o *retryOracle) Contest(ctx context.Context, a, b model.Seed, env Environment, numTrials int) (Outcome, error) {
	var outcome Outcome
	backoff := retry.WithMaxRetries(o.retries, retry.NewConstant(o.delay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		result, err := o.next.Contest(ctx, a, b, env, numTrials)
		if err != nil {
			if errors.Is(err, ErrOutcomeRange) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return retry.RetryableError(err)
		}
		outcome = result
		return nil
	})
	return outcome, err
}
