package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestWithTxCommits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectExec("UPDATE invoices").WithArgs(int64(7)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), mock, func(tx pgx.Tx) error {
		_, err := tx.Exec(context.Background(), "UPDATE invoices SET status = 'void' WHERE id = $1", int64(7))
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = WithTx(context.Background(), mock, func(pgx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRetryRerunsSerializationFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec("UPDATE invoice_sequences").WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec("UPDATE invoice_sequences").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	runs := 0
	err = WithTxRetry(context.Background(), mock, pgx.ReadCommitted, func(tx pgx.Tx) error {
		runs++
		_, err := tx.Exec(context.Background(), "UPDATE invoice_sequences SET last_value = last_value + 1")
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 2, runs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRetryStopsOnOtherErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectRollback()

	runs := 0
	err = WithTxRetry(context.Background(), mock, pgx.ReadCommitted, func(pgx.Tx) error {
		runs++
		return &pgconn.PgError{Code: "23505"}
	})
	require.True(t, IsUniqueViolation(err))
	require.Equal(t, 1, runs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRetryGivesUp(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	for i := 0; i < MaxTxAttempts; i++ {
		mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		mock.ExpectRollback()
	}

	err = WithTxRetry(context.Background(), mock, pgx.ReadCommitted, func(pgx.Tx) error {
		return &pgconn.PgError{Code: "40P01"}
	})
	require.True(t, IsRetryable(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
