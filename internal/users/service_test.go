package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bizportal/portal/internal/shared"
)

type mockRepository struct {
	users     map[int64]*User
	passwords map[int64]string
	nextID    int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{users: map[int64]*User{}, passwords: map[int64]string{}, nextID: 1}
}

func (m *mockRepository) List(ctx context.Context, params shared.ListParams, filter ListFilter) ([]User, int, error) {
	var out []User
	for _, u := range m.users {
		if filter.Active != nil && u.IsActive != *filter.Active {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return *u, nil
}

func (m *mockRepository) Create(ctx context.Context, u User, hash string, roleIDs []int64) (int64, error) {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return 0, shared.ErrConflict
		}
	}
	u.ID = m.nextID
	u.IsActive = true
	for _, id := range roleIDs {
		u.Roles = append(u.Roles, RoleRef{ID: id})
	}
	m.nextID++
	m.users[u.ID] = &u
	m.passwords[u.ID] = hash
	return u.ID, nil
}

func (m *mockRepository) Update(ctx context.Context, u User) error {
	if _, ok := m.users[u.ID]; !ok {
		return shared.ErrNotFound
	}
	m.users[u.ID] = &u
	return nil
}

func (m *mockRepository) SetActive(ctx context.Context, id int64, active bool) error {
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (m *mockRepository) SetPassword(ctx context.Context, id int64, hash string) error {
	if _, ok := m.users[id]; !ok {
		return shared.ErrNotFound
	}
	m.passwords[id] = hash
	return nil
}

func (m *mockRepository) ReplaceRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	u := m.users[userID]
	u.Roles = nil
	for _, id := range roleIDs {
		u.Roles = append(u.Roles, RoleRef{ID: id})
	}
	return nil
}

type revoker struct{ revoked []int64 }

func (r *revoker) RevokeUser(ctx context.Context, id int64) error {
	r.revoked = append(r.revoked, id)
	return nil
}

func newTestService() (*Service, *mockRepository, *revoker) {
	repo := newMockRepository()
	rev := &revoker{}
	svc := NewService(repo, rev, nil)
	svc.hashCost = bcrypt.MinCost
	return svc, repo, rev
}

// adminID never collides with ids handed out by the mock repository.
const adminID int64 = 999

func asActor(id int64) context.Context {
	return shared.ContextWithPrincipal(context.Background(), &shared.Principal{UserID: id})
}

func TestCreateNormalizesEmailAndHashesPassword(t *testing.T) {
	svc, repo, _ := newTestService()

	u, err := svc.Create(asActor(99), CreateUserRequest{Email: "  Ana@Example.COM ", Name: " Ana ", Password: "s3cret-pass", RoleIDs: []int64{2}})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.Equal(t, "Ana", u.Name)
	assert.True(t, u.IsActive)
	assert.Len(t, u.Roles, 1)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.passwords[u.ID]), []byte("s3cret-pass")))

	_, err = svc.Create(asActor(99), CreateUserRequest{Email: "ana@example.com", Name: "Dup", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestDeactivateRevokesSessionsButNotSelf(t *testing.T) {
	svc, repo, rev := newTestService()
	u, err := svc.Create(asActor(adminID), CreateUserRequest{Email: "b@example.com", Name: "B", Password: "s3cret-pass"})
	require.NoError(t, err)

	err = svc.Deactivate(asActor(u.ID), u.ID)
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.True(t, repo.users[u.ID].IsActive)

	require.NoError(t, svc.Deactivate(asActor(adminID), u.ID))
	assert.False(t, repo.users[u.ID].IsActive)
	assert.Equal(t, []int64{u.ID}, rev.revoked)

	assert.ErrorIs(t, svc.Deactivate(asActor(adminID), 404), shared.ErrNotFound)
}

func TestUpdateCannotSelfDeactivate(t *testing.T) {
	svc, _, rev := newTestService()
	u, err := svc.Create(asActor(adminID), CreateUserRequest{Email: "c@example.com", Name: "C", Password: "s3cret-pass"})
	require.NoError(t, err)
	inactive := false

	_, err = svc.Update(asActor(u.ID), u.ID, UpdateUserRequest{Email: "c@example.com", Name: "C", IsActive: &inactive})
	assert.ErrorIs(t, err, shared.ErrConflict)

	updated, err := svc.Update(asActor(adminID), u.ID, UpdateUserRequest{Email: "C2@example.com", Name: "C2", Title: "Ops", IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "c2@example.com", updated.Email)
	assert.False(t, updated.IsActive)
	assert.Equal(t, []int64{u.ID}, rev.revoked)
}

func TestSetRolesDeduplicates(t *testing.T) {
	svc, _, _ := newTestService()
	u, err := svc.Create(asActor(1), CreateUserRequest{Email: "d@example.com", Name: "D", Password: "s3cret-pass"})
	require.NoError(t, err)

	updated, err := svc.SetRoles(asActor(1), u.ID, []int64{3, 3, 1})
	require.NoError(t, err)
	assert.Equal(t, []RoleRef{{ID: 3}, {ID: 1}}, updated.Roles)

	_, err = svc.SetRoles(asActor(1), 404, []int64{1})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestResetPassword(t *testing.T) {
	svc, repo, rev := newTestService()
	u, err := svc.Create(asActor(1), CreateUserRequest{Email: "e@example.com", Name: "E", Password: "s3cret-pass"})
	require.NoError(t, err)

	require.NoError(t, svc.ResetPassword(asActor(1), u.ID, "brand-new-pass"))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.passwords[u.ID]), []byte("brand-new-pass")))
	assert.Equal(t, []int64{u.ID}, rev.revoked)
}
