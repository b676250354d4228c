package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/brightfields/schoolbank-backend/pkg/config"
	pkgerrors "github.com/brightfields/schoolbank-backend/pkg/errors"
)

func TestRunWithRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := RunWithRetry(context.Background(), RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestRunWithRetryDoesNotRetryValidation(t *testing.T) {
	calls := 0
	wantErr := pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	err := RunWithRetry(context.Background(), RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected validation error to surface untouched, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("validation errors must not retry, got %d calls", calls)
	}
}

func TestRunWithRetryExhaustsToContention(t *testing.T) {
	calls := 0
	err := RunWithRetry(context.Background(), RetryPolicy{Attempts: 3, Backoff: time.Millisecond}, func(ctx context.Context) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeContention) {
		t.Fatalf("expected STORE_CONTENTION, got %v", err)
	}
}

func TestRunWithRetryBoundsAttemptDuration(t *testing.T) {
	calls := 0
	start := time.Now()
	policy := RetryPolicy{Attempts: 2, Backoff: time.Millisecond, Timeout: 20 * time.Millisecond}
	err := RunWithRetry(context.Background(), policy, func(ctx context.Context) error {
		calls++
		if _, ok := ctx.Deadline(); !ok {
			t.Fatal("attempt context must carry a deadline")
		}
		<-ctx.Done()
		return ctx.Err()
	})
	if calls != 2 {
		t.Fatalf("timed-out attempts should retry, got %d calls", calls)
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeContention) {
		t.Fatalf("expected STORE_CONTENTION after timeouts, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("attempts were not bounded, took %s", elapsed)
	}
}

func TestRetryPolicyFromConfigAppliesTimeout(t *testing.T) {
	policy := RetryPolicyFromConfig(config.LedgerConfig{})
	if policy.Timeout != 5*time.Second {
		t.Fatalf("zero-value config should floor the timeout at 5s, got %s", policy.Timeout)
	}

	policy = RetryPolicyFromConfig(config.LedgerConfig{
		TxRetryAttempts: 4,
		TxRetryBackoff:  time.Millisecond,
		TxTimeout:       2 * time.Second,
	})
	if policy.Timeout != 2*time.Second {
		t.Fatalf("configured timeout should pass through, got %s", policy.Timeout)
	}
}

func TestIsContention(t *testing.T) {
	if !IsContention(&pgconn.PgError{Code: "55P03"}) {
		t.Fatalf("lock timeout should be contention")
	}
	if IsContention(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("unique violation is not contention")
	}
	if !IsContention(pkgerrors.New(pkgerrors.CodeContention, "busy")) {
		t.Fatalf("typed contention should be recognized")
	}
	if IsContention(errors.New("plain")) {
		t.Fatalf("plain errors are not contention")
	}
}
