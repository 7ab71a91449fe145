package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func serializationErr() error {
	return fmt.Errorf("platform/db: commit tx: %w", &pgconn.PgError{Code: codeSerializationFailure})
}

func TestRetryConflictsExhaustsIntoErrTxConflict(t *testing.T) {
	attempts := 0
	err := retryConflicts(context.Background(), func() error {
		attempts++
		return serializationErr()
	})
	require.ErrorIs(t, err, ErrTxConflict)
	require.Equal(t, maxTxRetries, attempts)
}

func TestRetryConflictsSucceedsAfterTransientConflict(t *testing.T) {
	attempts := 0
	err := retryConflicts(context.Background(), func() error {
		attempts++
		if attempts == 1 {
			return serializationErr()
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
}

func TestRetryConflictsPassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	attempts := 0
	err := retryConflicts(context.Background(), func() error {
		attempts++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, attempts)
}

func TestRetryConflictsStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := retryConflicts(ctx, func() error {
		attempts++
		cancel()
		return serializationErr()
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, attempts)
}

func TestIsSerializationFailure(t *testing.T) {
	require.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40P01"}))
	require.True(t, IsSerializationFailure(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40001"})))
	require.False(t, IsSerializationFailure(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsSerializationFailure(errors.New("plain")))
	require.False(t, IsSerializationFailure(nil))
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "40001"}))
	require.False(t, IsUniqueViolation(nil))
}
