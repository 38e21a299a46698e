package sales

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

func TestRepositoryListCompaniesBuildsFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT COUNT.+FROM companies c WHERE c.status = \$1`).
		WithArgs("customer").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`FROM companies c WHERE c.status = \$1 ORDER BY c.name ASC LIMIT \$2 OFFSET \$3`).
		WithArgs("customer", 20, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "domain", "industry", "employee_count", "hq_location", "website", "status",
			"owner_id", "ats_provider", "ats_slug", "notes", "created_at", "updated_at"}))

	items, total, err := NewRepository(mock).ListCompanies(context.Background(), shared.ListParams{Page: 1}, CompanyFilter{Status: CompanyCustomer})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Empty(t, items)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetOpportunityNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM opportunities o").WithArgs(int64(4)).WillReturnError(pgx.ErrNoRows)

	_, err = NewRepository(mock).GetOpportunity(context.Background(), 4)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositorySavePrimaryContactClearsOthers(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectExec("UPDATE contacts SET is_primary = FALSE").
		WithArgs(int64(3), int64(0)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("INSERT INTO contacts").
		WithArgs(int64(3), "Ada", "Lovelace", "ada@example.com", "", "", "", true).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectCommit()

	id, err := NewRepository(mock).SaveContact(context.Background(), Contact{
		CompanyID: 3, FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", IsPrimary: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpdateContactMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectExec("UPDATE contacts SET company_id").
		WithArgs(int64(8), int64(3), "", "Doe", "", "", "", "", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err = NewRepository(mock).SaveContact(context.Background(), Contact{ID: 8, CompanyID: 3, LastName: "Doe"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUpsertSignal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("ON CONFLICT \\(source, external_id\\) DO UPDATE").
		WithArgs(int64(2), "lever", "abc", "Support Lead", "Remote", "https://jobs.lever.co/acme/abc", 7, []string{"support"}, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(false))

	inserted, err := NewRepository(mock).UpsertSignal(context.Background(), JobSignal{
		CompanyID: 2, Source: SourceLever, ExternalID: "abc", Title: "Support Lead", Location: "Remote",
		URL: "https://jobs.lever.co/acme/abc", Score: 7, Tags: []string{"support"},
	})
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateCompanyConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	args := make([]any, 11)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	mock.ExpectQuery("INSERT INTO companies").WithArgs(args...).WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err = NewRepository(mock).CreateCompany(context.Background(), Company{Name: "Acme", Status: CompanyProspect})
	assert.ErrorIs(t, err, shared.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryDeleteCompanyInUse(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM companies").WithArgs(int64(1)).WillReturnError(&pgconn.PgError{Code: "23503"})

	err = NewRepository(mock).DeleteCompany(context.Background(), 1)
	assert.ErrorIs(t, err, shared.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryStageTotals(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM opportunities GROUP BY stage").
		WillReturnRows(pgxmock.NewRows([]string{"stage", "count", "sum", "weighted"}).
			AddRow(StageProposal, 2, 3000.0, 1500.0))

	totals, err := NewRepository(mock).StageTotals(context.Background())
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, StageProposal, totals[0].Stage)
	assert.Equal(t, 1500.0, totals[0].WeightedValue)
	require.NoError(t, mock.ExpectationsWereMet())
}
