package users

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizportal/portal/internal/shared"
)

func TestRepositoryGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM users u").WithArgs(int64(9)).WillReturnError(pgx.ErrNoRows)

	_, err = NewRepository(mock).Get(context.Background(), 9)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateMapsUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("a@example.com", "A", "", "hash").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err = NewRepository(mock).Create(context.Background(), User{Email: "a@example.com", Name: "A"}, "hash", nil)
	assert.ErrorIs(t, err, shared.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryReplaceRoles(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectExec("DELETE FROM user_roles").WithArgs(int64(5)).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO user_roles").WithArgs(int64(5), int64(1)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, NewRepository(mock).ReplaceRoles(context.Background(), 5, []int64{1}))
	require.NoError(t, mock.ExpectationsWereMet())
}
