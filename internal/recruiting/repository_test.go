package recruiting

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizportal/portal/internal/shared"
)

func TestRepositoryReplaceRolesRunsInTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rate := 21.5
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	mock.ExpectExec("DELETE FROM requisition_roles").WithArgs(int64(3)).WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO requisition_roles").
		WithArgs(int64(3), "Agent", 4, 0, "night", &rate, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO requisition_roles").
		WithArgs(int64(3), "Lead", 1, 0, "", (*float64)(nil), 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE requisitions SET updated_at").WithArgs(int64(3)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = NewRepository(mock).ReplaceRoles(context.Background(), 3, []Role{
		{RoleTitle: "Agent", Count: 4, Shift: "night", BillRate: &rate},
		{RoleTitle: "Lead", Count: 1},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositorySetRoleFilledMissingRole(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE requisition_roles SET filled").
		WithArgs(int64(1), int64(2), 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewRepository(mock).SetRoleFilled(context.Background(), 1, 2, 3)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositorySetStatusGuardsCurrentStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE requisitions SET status").
		WithArgs(int64(8), "pending_approval", "rejected", pgxmock.AnyArg(), pgxmock.AnyArg(), "no budget").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewRepository(mock).SetStatus(context.Background(), 8, StatusPendingApproval, StatusRejected, StatusChange{RejectedReason: "no budget"})
	assert.ErrorIs(t, err, shared.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}
