package provision

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/deploykit/winprov/lib/logger"
)

// maxAttempts bounds how often a creation step is re-run. GPT conversion is
// never retried; a half-applied clean is worse than a clear failure.
const maxAttempts = 3

// withRetry re-runs fn for retryable failure kinds with exponential backoff
// (1s base, doubling). Non-retryable kinds abort immediately.
func withRetry(ctx context.Context, step Step, fn func() *StepError) *StepError {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		serr := fn()
		if serr == nil {
			return nil
		}
		if !serr.Kind.Retryable() {
			return backoff.Permanent(serr)
		}
		logger.FromContext(ctx).Warn("step failed, retrying",
			"step", step, "attempt", attempt, "error", serr.Err)
		return serr
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, maxAttempts-1), ctx))
	if err == nil {
		return nil
	}
	if serr, ok := AsStepError(err); ok {
		return serr
	}
	return stepErr(step, FailureExecution, err)
}
