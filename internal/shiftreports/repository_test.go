package shiftreports

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizportal/portal/internal/shared"
)

func TestRepositoryCreateAccountDuplicateName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO accounts").
		WithArgs("Acme", pgxmock.AnyArg(), true).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err = NewRepository(mock).CreateAccount(context.Background(), Account{Name: "Acme", IsActive: true})
	assert.ErrorIs(t, err, shared.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryDeleteReferencedMetric(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM metrics").
		WithArgs(int64(4)).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err = NewRepository(mock).DeleteMetric(context.Background(), 4)
	assert.ErrorIs(t, err, shared.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryListAccountsActiveOnly(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM accounts WHERE is_active ORDER BY name`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "client_company_id", "is_active", "created_at"}))

	items, err := NewRepository(mock).ListAccounts(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}
