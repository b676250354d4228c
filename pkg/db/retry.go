package db

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/brightfields/schoolbank-backend/pkg/config"
	pkgerrors "github.com/brightfields/schoolbank-backend/pkg/errors"
)

// RetryPolicy bounds how often a contended transaction is re-attempted and
// how long any single attempt may run.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration
}

// RetryPolicyFromConfig maps ledger configuration onto a policy, applying
// sane floors so a zero-value config cannot disable the operation entirely.
func RetryPolicyFromConfig(cfg config.LedgerConfig) RetryPolicy {
	policy := RetryPolicy{
		Attempts: cfg.TxRetryAttempts,
		Backoff:  cfg.TxRetryBackoff,
		Timeout:  cfg.TxTimeout,
	}
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.Backoff <= 0 {
		policy.Backoff = 25 * time.Millisecond
	}
	if policy.Timeout <= 0 {
		policy.Timeout = 5 * time.Second
	}
	return policy
}

// RunWithRetry invokes fn, retrying contention failures with linear backoff
// until the policy's attempts are exhausted. Each attempt runs under the
// policy's timeout, so a blocked lock wait cannot stall the caller past the
// bound. The final contention error is surfaced as a typed STORE_CONTENTION
// error so callers can decide to retry the whole logical operation.
func RunWithRetry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}

	var err error
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		err = runAttempt(ctx, policy.Timeout, fn)
		if err == nil {
			return nil
		}
		timedOut := stdErrors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
		if !IsContention(err) && !timedOut {
			return err
		}
		if attempt == policy.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.Backoff * time.Duration(attempt)):
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeContention, err, "transaction retries exhausted")
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
