package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"serialization", &pgconn.PgError{Code: "40001"}, shared.ErrConcurrencyConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, shared.ErrConcurrencyConflict},
		{"lock timeout", fmt.Errorf("stock: lock product: %w", &pgconn.PgError{Code: "55P03"}), shared.ErrConcurrencyConflict},
		{"unique", &pgconn.PgError{Code: "23505"}, shared.ErrDuplicate},
		{"no rows", pgx.ErrNoRows, shared.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			require.ErrorIs(t, got, tc.want)
			require.ErrorIs(t, got, tc.err)
		})
	}

	plain := errors.New("boom")
	require.Equal(t, plain, Classify(plain))
	require.NoError(t, Classify(nil))
	require.True(t, shared.IsRetryable(Classify(&pgconn.PgError{Code: "40001"})))
}

func TestTransient(t *testing.T) {
	require.True(t, Transient(&pgconn.PgError{Code: "40P01"}))
	require.True(t, Transient(fmt.Errorf("fulfill: %w", context.DeadlineExceeded)))
	require.True(t, Transient(fmt.Errorf("stock: %w", shared.ErrConcurrencyConflict)))
	require.False(t, Transient(nil))
	require.False(t, Transient(&pgconn.PgError{Code: "23505"}))
	require.False(t, Transient(fmt.Errorf("fulfill: %w", shared.ErrInsufficientStock)))
	require.False(t, Transient(errors.New("boom")))
}
