package recruiting

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizportal/portal/internal/shared"
	"github.com/bizportal/portal/jobs"
)

type mockRepository struct {
	items      map[int64]Requisition
	emails     map[int64]string
	approvers  []string
	nextID     int64
	nextRoleID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		items:      map[int64]Requisition{},
		emails:     map[int64]string{10: "manager@example.com", 11: "author@example.com"},
		approvers:  []string{"hr-lead@example.com"},
		nextID:     1,
		nextRoleID: 1,
	}
}

func (m *mockRepository) List(ctx context.Context, params shared.ListParams, f Filter) ([]Requisition, int, error) {
	out, _ := m.All(ctx, f)
	return out, len(out), nil
}

func (m *mockRepository) All(ctx context.Context, f Filter) ([]Requisition, error) {
	var out []Requisition
	for _, r := range m.items {
		if f.Status == "" || r.Status == f.Status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (Requisition, error) {
	r, ok := m.items[id]
	if !ok {
		return Requisition{}, shared.ErrNotFound
	}
	r.Roles = append([]Role(nil), r.Roles...)
	r.Reconcile()
	return r, nil
}

func (m *mockRepository) assignRoles(id int64, roles []Role) []Role {
	out := make([]Role, len(roles))
	for i, role := range roles {
		role.ID = m.nextRoleID
		role.RequisitionID = id
		m.nextRoleID++
		out[i] = role
	}
	return out
}

func (m *mockRepository) Create(ctx context.Context, in Requisition) (int64, error) {
	in.ID = m.nextID
	m.nextID++
	in.Roles = m.assignRoles(in.ID, in.Roles)
	m.items[in.ID] = in
	return in.ID, nil
}

func (m *mockRepository) Update(ctx context.Context, in Requisition) error {
	cur, ok := m.items[in.ID]
	if !ok {
		return shared.ErrNotFound
	}
	in.Status, in.Roles, in.CreatedBy = cur.Status, cur.Roles, cur.CreatedBy
	m.items[in.ID] = in
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id int64) error {
	delete(m.items, id)
	return nil
}

func (m *mockRepository) ReplaceRoles(ctx context.Context, id int64, roles []Role) error {
	cur := m.items[id]
	cur.Roles = m.assignRoles(id, roles)
	m.items[id] = cur
	return nil
}

func (m *mockRepository) SetStatus(ctx context.Context, id int64, from, to Status, change StatusChange) error {
	cur, ok := m.items[id]
	if !ok || cur.Status != from {
		return shared.ErrConflict
	}
	cur.Status = to
	if change.ApprovedBy != nil {
		cur.ApprovedBy = change.ApprovedBy
	}
	if change.ApprovedAt != nil {
		cur.ApprovedAt = change.ApprovedAt
	}
	cur.RejectedReason = change.RejectedReason
	m.items[id] = cur
	return nil
}

func (m *mockRepository) SetRoleFilled(ctx context.Context, requisitionID, roleID int64, filled int) error {
	cur := m.items[requisitionID]
	for i := range cur.Roles {
		if cur.Roles[i].ID == roleID {
			cur.Roles[i].Filled = filled
			m.items[requisitionID] = cur
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *mockRepository) UserEmail(ctx context.Context, userID int64) (string, error) {
	email, ok := m.emails[userID]
	if !ok {
		return "", shared.ErrNotFound
	}
	return email, nil
}

func (m *mockRepository) EmailsWithPermission(ctx context.Context, perm string) ([]string, error) {
	return m.approvers, nil
}

type mailbox struct {
	sent []jobs.MailPayload
}

func (m *mailbox) EnqueueMail(ctx context.Context, payload jobs.MailPayload) error {
	m.sent = append(m.sent, payload)
	return nil
}

type approvalLog struct {
	entries []shared.ApprovalLog
}

func (a *approvalLog) Record(ctx context.Context, log shared.ApprovalLog) error {
	log.ID = int64(len(a.entries) + 1)
	a.entries = append(a.entries, log)
	return nil
}

func (a *approvalLog) List(ctx context.Context, module string, ref int64) ([]shared.ApprovalLog, error) {
	var out []shared.ApprovalLog
	for _, e := range a.entries {
		if e.Module == module && e.RefID == ref {
			out = append(out, e)
		}
	}
	return out, nil
}

type fixture struct {
	svc       *Service
	repo      *mockRepository
	mail      *mailbox
	approvals *approvalLog
	ctx       context.Context
}

func newFixture() fixture {
	repo := newMockRepository()
	mail := &mailbox{}
	approvals := &approvalLog{}
	svc := NewService(repo, approvals, mail, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC) }
	ctx := shared.ContextWithPrincipal(context.Background(), &shared.Principal{UserID: 11})
	return fixture{svc: svc, repo: repo, mail: mail, approvals: approvals, ctx: ctx}
}

func (f fixture) create(t *testing.T, roles ...RoleRequest) Requisition {
	t.Helper()
	manager := int64(10)
	r, err := f.svc.Create(f.ctx, Request{Title: " Spanish agents ", Department: "Support", HiringManagerID: &manager, Roles: roles})
	require.NoError(t, err)
	return r
}

func TestCreateStartsAsDraftWithTotals(t *testing.T) {
	f := newFixture()
	r := f.create(t, RoleRequest{RoleTitle: "Agent", Count: 8}, RoleRequest{RoleTitle: "Team Lead", Count: 2, Filled: 1})

	assert.Equal(t, StatusDraft, r.Status)
	assert.Equal(t, "Spanish agents", r.Title)
	assert.Equal(t, 10, r.TotalHeadcount)
	assert.Equal(t, 1, r.FilledHeadcount)
	assert.Equal(t, 10.0, r.FillPercent)
	require.NotNil(t, r.CreatedBy)
	assert.Equal(t, int64(11), *r.CreatedBy)
}

func TestCreateRejectsOverfilledRole(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(f.ctx, Request{Title: "X", Roles: []RoleRequest{{RoleTitle: "Agent", Count: 1, Filled: 2}}})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestSubmitRequiresRoles(t *testing.T) {
	f := newFixture()
	r := f.create(t)

	_, err := f.svc.Submit(f.ctx, r.ID)
	assert.ErrorIs(t, err, shared.ErrValidation)

	r, err = f.svc.ReplaceRoles(f.ctx, r.ID, RolesRequest{Roles: []RoleRequest{{RoleTitle: "Agent", Count: 3}}})
	require.NoError(t, err)
	assert.Equal(t, 3, r.TotalHeadcount)

	r, err = f.svc.Submit(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingApproval, r.Status)

	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, "requisition_submitted", f.mail.sent[0].Template)
	assert.Equal(t, []string{"hr-lead@example.com"}, f.mail.sent[0].To)
	require.Len(t, f.approvals.entries, 1)
	assert.Equal(t, shared.ApprovalSubmit, f.approvals.entries[0].Action)
	assert.Equal(t, "recruiting", f.approvals.entries[0].Module)
}

func TestApprovalsListsHistoryOfOneRequisition(t *testing.T) {
	f := newFixture()
	r := f.create(t, RoleRequest{RoleTitle: "Agent", Count: 1})
	other := f.create(t, RoleRequest{RoleTitle: "Lead", Count: 1})

	logs, err := f.svc.Approvals(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)
	assert.NotNil(t, logs)

	_, err = f.svc.Submit(f.ctx, r.ID)
	require.NoError(t, err)
	_, err = f.svc.Submit(f.ctx, other.ID)
	require.NoError(t, err)
	_, err = f.svc.Reject(f.ctx, r.ID, "budget")
	require.NoError(t, err)

	logs, err = f.svc.Approvals(f.ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, shared.ApprovalSubmit, logs[0].Action)
	assert.Equal(t, shared.ApprovalReject, logs[1].Action)
	assert.Equal(t, "budget", logs[1].Note)
	assert.Equal(t, int64(11), logs[1].ActorID)

	_, err = f.svc.Approvals(f.ctx, 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEditingLockedOutsideDraftAndRejected(t *testing.T) {
	f := newFixture()
	r := f.create(t, RoleRequest{RoleTitle: "Agent", Count: 1})
	_, err := f.svc.Submit(f.ctx, r.ID)
	require.NoError(t, err)

	_, err = f.svc.Update(f.ctx, r.ID, Request{Title: "Renamed"})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.svc.ReplaceRoles(f.ctx, r.ID, RolesRequest{})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = f.svc.Reject(f.ctx, r.ID, "budget frozen")
	require.NoError(t, err)

	updated, err := f.svc.Update(f.ctx, r.ID, Request{Title: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
}

func TestRejectNeedsReasonAndNotifiesManager(t *testing.T) {
	f := newFixture()
	r := f.create(t, RoleRequest{RoleTitle: "Agent", Count: 1})
	_, err := f.svc.Submit(f.ctx, r.ID)
	require.NoError(t, err)

	_, err = f.svc.Reject(f.ctx, r.ID, "  ")
	assert.ErrorIs(t, err, shared.ErrValidation)

	r, err = f.svc.Reject(f.ctx, r.ID, "budget frozen")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, r.Status)
	assert.Equal(t, "budget frozen", r.RejectedReason)

	last := f.mail.sent[len(f.mail.sent)-1]
	assert.Equal(t, "requisition_rejected", last.Template)
	assert.Equal(t, []string{"manager@example.com", "author@example.com"}, last.To)
	assert.Contains(t, last.Body, "budget frozen")
}

func TestApproveThenFillRolesMovesToFilled(t *testing.T) {
	f := newFixture()
	r := f.create(t, RoleRequest{RoleTitle: "Agent", Count: 2}, RoleRequest{RoleTitle: "Lead", Count: 1})
	_, err := f.svc.Submit(f.ctx, r.ID)
	require.NoError(t, err)

	_, err = f.svc.SetRoleFilled(f.ctx, r.ID, r.Roles[0].ID, 1)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	r, err = f.svc.Approve(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, r.Status)
	require.NotNil(t, r.ApprovedBy)
	assert.Equal(t, int64(11), *r.ApprovedBy)
	require.NotNil(t, r.ApprovedAt)

	_, err = f.svc.SetRoleFilled(f.ctx, r.ID, r.Roles[0].ID, 3)
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.SetRoleFilled(f.ctx, r.ID, 999, 1)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	r, err = f.svc.SetRoleFilled(f.ctx, r.ID, r.Roles[0].ID, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, r.Status)
	assert.Equal(t, 66.7, r.FillPercent)

	r, err = f.svc.SetRoleFilled(f.ctx, r.ID, r.Roles[1].ID, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, r.Status)
	assert.Equal(t, 100.0, r.FillPercent)

	r, err = f.svc.SetRoleFilled(f.ctx, r.ID, r.Roles[1].ID, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, r.Status)
}

func TestCancelClosedRequisitionFails(t *testing.T) {
	f := newFixture()
	r := f.create(t, RoleRequest{RoleTitle: "Agent", Count: 1})

	r, err := f.svc.Cancel(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, r.Status)

	_, err = f.svc.Cancel(f.ctx, r.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.svc.Submit(f.ctx, r.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestApproveOnlyFromPending(t *testing.T) {
	f := newFixture()
	r := f.create(t, RoleRequest{RoleTitle: "Agent", Count: 1})
	_, err := f.svc.Approve(f.ctx, r.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestTableLayout(t *testing.T) {
	table := Table([]Requisition{{ID: 4, Title: "Agents", Status: StatusApproved, TotalHeadcount: 5, FilledHeadcount: 2, FillPercent: 40}})
	require.Len(t, table.Rows, 1)
	assert.Len(t, table.Rows[0], len(table.Headers))
	assert.Equal(t, "approved", table.Rows[0][3])
}
