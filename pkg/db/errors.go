package db

import (
	stdErrors "errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	pkgerrors "github.com/brightfields/schoolbank-backend/pkg/errors"
)

// Postgres SQLSTATE codes that indicate a retryable concurrency failure.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation constraint. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value")
}

// IsContention reports whether the error is a store-level concurrency conflict
// that is safe to retry: serialization failure, deadlock, or lock timeout.
func IsContention(err error) bool {
	if err == nil {
		return false
	}
	if pkgerrors.IsCode(err, pkgerrors.CodeContention) {
		return true
	}

	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return isContentionCode(pgxErr.Code)
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return isContentionCode(string(pqErr.Code))
	}
	return false
}

func isContentionCode(code string) bool {
	switch code {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return true
	}
	return false
}
