package rbac

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceEffectivePermissionsNormalizes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT DISTINCT p.name").
		WithArgs(int64(4)).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Sales.CRM.Read").AddRow("sales.crm.read").AddRow("rfp.rfps.read"))

	svc := NewService(NewRepository(mock))
	perms, err := svc.EffectivePermissions(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"rfp.rfps.read", "sales.crm.read"}, perms)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryUserRoles(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT r.name FROM user_roles").
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("admin"))

	roles, err := NewRepository(mock).UserRoles(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, roles)
}
