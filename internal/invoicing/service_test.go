package invoicing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizportal/portal/internal/rbac"
	"github.com/bizportal/portal/internal/shared"
)

type mockRepository struct {
	items     map[int64]Invoice
	comments  []Comment
	nextID    int64
	seq       map[string]int
	createErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{items: map[int64]Invoice{}, nextID: 1, seq: map[string]int{}}
}

func (m *mockRepository) List(ctx context.Context, params shared.ListParams, f Filter) ([]Invoice, int, error) {
	out, _ := m.All(ctx, f)
	return out, len(out), nil
}

func (m *mockRepository) All(ctx context.Context, f Filter) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.items {
		if f.Status == "" || inv.Status == f.Status {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := m.items[id]
	if !ok {
		return Invoice{}, shared.ErrNotFound
	}
	inv.Roles = append([]Role{}, inv.Roles...)
	return inv, nil
}

func (m *mockRepository) Create(ctx context.Context, in Invoice, at time.Time) (int64, error) {
	if m.createErr != nil {
		return 0, m.createErr
	}
	period := at.Format("200601")
	m.seq[period]++
	in.ID = m.nextID
	in.Number = fmt.Sprintf("INV-%s-%04d", period, m.seq[period])
	m.nextID++
	m.items[in.ID] = in
	return in.ID, nil
}

func (m *mockRepository) Update(ctx context.Context, in Invoice) error {
	cur := m.items[in.ID]
	in.Number, in.Status, in.CreatedBy = cur.Number, cur.Status, cur.CreatedBy
	m.items[in.ID] = in
	return nil
}

func (m *mockRepository) ReplaceRoles(ctx context.Context, in Invoice) error {
	m.items[in.ID] = in
	return nil
}

func (m *mockRepository) SetStatus(ctx context.Context, id int64, from, to Status, approvedBy *int64) error {
	inv := m.items[id]
	if inv.Status != from {
		return shared.ErrConflict
	}
	inv.Status = to
	if approvedBy != nil {
		inv.ApprovedBy = approvedBy
	}
	m.items[id] = inv
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id int64) error {
	delete(m.items, id)
	return nil
}

func (m *mockRepository) Comments(ctx context.Context, id int64) ([]Comment, error) {
	var out []Comment
	for _, c := range m.comments {
		if c.InvoiceID == id {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRepository) AddComment(ctx context.Context, c Comment) (Comment, error) {
	c.ID = int64(len(m.comments) + 1)
	m.comments = append(m.comments, c)
	return c, nil
}

type idemEntry struct {
	ref int64
}

type fakeIdempotency struct {
	keys map[string]*idemEntry
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{keys: map[string]*idemEntry{}}
}

func (f *fakeIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if _, ok := f.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = &idemEntry{}
	return nil
}

func (f *fakeIdempotency) Lookup(ctx context.Context, key, module string) (int64, error) {
	e, ok := f.keys[key]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return e.ref, nil
}

func (f *fakeIdempotency) Complete(ctx context.Context, key, module string, refID int64) error {
	f.keys[key].ref = refID
	return nil
}

func (f *fakeIdempotency) Delete(ctx context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

type fakePDF struct{}

func (fakePDF) RenderTemplate(ctx context.Context, tmpl *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type recordedApprovals struct {
	actions []shared.ApprovalAction
	logs    []shared.ApprovalLog
}

func (r *recordedApprovals) Record(ctx context.Context, log shared.ApprovalLog) error {
	r.actions = append(r.actions, log.Action)
	r.logs = append(r.logs, log)
	return nil
}

func (r *recordedApprovals) List(ctx context.Context, module string, ref int64) ([]shared.ApprovalLog, error) {
	var out []shared.ApprovalLog
	for _, l := range r.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

var fixedNow = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, repo *mockRepository, opts Options) *Service {
	t.Helper()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.Provider = "Portal BPO Services"
	svc, err := NewService(repo, opts)
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func sampleRequest() Request {
	return Request{
		ClientName:  "Acme Corp",
		PeriodStart: shared.NewDate(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)),
		PeriodEnd:   shared.NewDate(time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)),
		TaxRate:     8.25,
		Roles: []RoleRequest{
			{RoleName: "Agent", Headcount: 1, Hours: 160, Rate: 25.5},
			{RoleName: "Team Lead", Headcount: 1, Hours: 80, Rate: 30.333},
		},
	}
}

func withPermissions(perms ...string) context.Context {
	return shared.ContextWithPrincipal(context.Background(), &shared.Principal{UserID: 7, Name: "Dana Reyes", Permissions: perms})
}

func TestRecalculateRoundsEveryAmount(t *testing.T) {
	inv, err := fromRequest(sampleRequest())
	require.NoError(t, err)
	inv.Roles = toRoles(sampleRequest().Roles)
	inv.Recalculate()

	assert.InDelta(t, 4080.00, inv.Roles[0].Amount, 0.001)
	assert.InDelta(t, 2426.40, inv.Roles[1].Amount, 0.001)
	assert.InDelta(t, 6506.40, inv.Subtotal, 0.001)
	assert.InDelta(t, 536.78, inv.TaxAmount, 0.001)
	assert.InDelta(t, 7043.18, inv.Total, 0.001)
	assert.Equal(t, DefaultCurrency, inv.Currency)
}

func TestCreateRejectsInvertedPeriod(t *testing.T) {
	svc := newTestService(t, newMockRepository(), Options{})
	req := sampleRequest()
	req.PeriodEnd = req.PeriodStart.AddDays(-1)

	_, _, err := svc.Create(context.Background(), "", req)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateReplaysIdempotentRequest(t *testing.T) {
	repo := newMockRepository()
	idem := newFakeIdempotency()
	svc := newTestService(t, repo, Options{Idempotency: idem})

	first, replayed, err := svc.Create(context.Background(), "key-1", sampleRequest())
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "INV-202610-0001", first.Number)
	assert.Equal(t, StatusDraft, first.Status)

	second, replayed, err := svc.Create(context.Background(), "key-1", sampleRequest())
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.items, 1)
}

func TestCreateInFlightKeyConflicts(t *testing.T) {
	idem := newFakeIdempotency()
	idem.keys["busy"] = &idemEntry{}
	svc := newTestService(t, newMockRepository(), Options{Idempotency: idem})

	_, _, err := svc.Create(context.Background(), "busy", sampleRequest())
	assert.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestCreateFailureReleasesKey(t *testing.T) {
	repo := newMockRepository()
	repo.createErr = errors.New("db down")
	idem := newFakeIdempotency()
	svc := newTestService(t, repo, Options{Idempotency: idem})

	_, _, err := svc.Create(context.Background(), "key-2", sampleRequest())
	require.Error(t, err)
	assert.NotContains(t, idem.keys, "key-2")
}

func TestTransitionWorkflow(t *testing.T) {
	repo := newMockRepository()
	approvals := &recordedApprovals{}
	svc := newTestService(t, repo, Options{Approvals: approvals})
	inv, _, err := svc.Create(context.Background(), "", sampleRequest())
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), inv.ID, StatusPaid)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	inv, err = svc.Transition(context.Background(), inv.ID, StatusSubmitted)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, inv.Status)

	_, err = svc.Transition(withPermissions(rbac.PermInvoicesWrite), inv.ID, StatusApproved)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	inv, err = svc.Transition(withPermissions(rbac.PermInvoicesApprove), inv.ID, StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, inv.Status)
	require.NotNil(t, inv.ApprovedBy)
	assert.Equal(t, int64(7), *inv.ApprovedBy)

	for _, to := range []Status{StatusSent, StatusPaid} {
		inv, err = svc.Transition(context.Background(), inv.ID, to)
		require.NoError(t, err)
	}
	assert.Equal(t, StatusPaid, inv.Status)
	assert.Equal(t, []shared.ApprovalAction{shared.ApprovalSubmit, shared.ApprovalApprove}, approvals.actions)

	_, err = svc.Transition(context.Background(), inv.ID, StatusVoid)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestApprovalsReturnsInvoiceHistory(t *testing.T) {
	repo := newMockRepository()
	approvals := &recordedApprovals{}
	svc := newTestService(t, repo, Options{Approvals: approvals})
	inv, _, err := svc.Create(context.Background(), "", sampleRequest())
	require.NoError(t, err)

	logs, err := svc.Approvals(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)

	_, err = svc.Transition(withPermissions(rbac.PermInvoicesWrite), inv.ID, StatusSubmitted)
	require.NoError(t, err)
	_, err = svc.Transition(withPermissions(rbac.PermInvoicesApprove), inv.ID, StatusApproved)
	require.NoError(t, err)

	logs, err = svc.Approvals(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "invoicing", logs[0].Module)
	assert.Equal(t, shared.ApprovalApprove, logs[1].Action)
	assert.Equal(t, int64(7), logs[1].ActorID)

	_, err = svc.Approvals(context.Background(), inv.ID+100)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSubmitRequiresRoles(t *testing.T) {
	svc := newTestService(t, newMockRepository(), Options{})
	req := sampleRequest()
	req.Roles = nil
	inv, _, err := svc.Create(context.Background(), "", req)
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), inv.ID, StatusSubmitted)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestEditingOnlyInDraft(t *testing.T) {
	svc := newTestService(t, newMockRepository(), Options{})
	inv, _, err := svc.Create(context.Background(), "", sampleRequest())
	require.NoError(t, err)

	updated, err := svc.ReplaceRoles(context.Background(), inv.ID, RolesRequest{Roles: []RoleRequest{{RoleName: "Agent", Hours: 10, Rate: 20}}})
	require.NoError(t, err)
	assert.InDelta(t, 200.0, updated.Subtotal, 0.001)
	assert.InDelta(t, 216.5, updated.Total, 0.001)

	req := sampleRequest()
	req.TaxRate = 0
	updated, err = svc.Update(context.Background(), inv.ID, req)
	require.NoError(t, err)
	assert.InDelta(t, 200.0, updated.Total, 0.001)

	_, err = svc.Transition(context.Background(), inv.ID, StatusSubmitted)
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), inv.ID, req)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = svc.ReplaceRoles(context.Background(), inv.ID, RolesRequest{})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	assert.ErrorIs(t, svc.Delete(context.Background(), inv.ID), shared.ErrInvalidTransition)
}

func TestCommentsCarryAuthor(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(t, repo, Options{})
	inv, _, err := svc.Create(context.Background(), "", sampleRequest())
	require.NoError(t, err)

	_, err = svc.AddComment(withPermissions(), inv.ID, CommentRequest{Body: "   "})
	assert.ErrorIs(t, err, shared.ErrValidation)

	c, err := svc.AddComment(withPermissions(), inv.ID, CommentRequest{Body: " Please split overtime "})
	require.NoError(t, err)
	assert.Equal(t, "Please split overtime", c.Body)
	assert.Equal(t, "Dana Reyes", c.AuthorName)
	require.NotNil(t, c.AuthorID)

	list, err := svc.Comments(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Comments(context.Background(), 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPDFRendersInvoiceTemplate(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(t, repo, Options{PDF: fakePDF{}})
	inv, _, err := svc.Create(context.Background(), "", sampleRequest())
	require.NoError(t, err)

	file, err := svc.PDF(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-202610-0001.pdf", file.Filename)
	assert.Equal(t, "application/pdf", file.ContentType)
	body := string(file.Body)
	assert.Contains(t, body, "Portal BPO Services")
	assert.Contains(t, body, "Acme Corp")
	assert.Contains(t, body, "7,043.18")
	assert.Contains(t, body, "2026-09-01 to 2026-09-30")
}

func TestPDFUnavailableWithoutRenderer(t *testing.T) {
	svc := newTestService(t, newMockRepository(), Options{})
	inv, _, err := svc.Create(context.Background(), "", sampleRequest())
	require.NoError(t, err)

	_, err = svc.PDF(context.Background(), inv.ID)
	assert.ErrorIs(t, err, shared.ErrUnavailable)
}

func TestTableLaysOutTotals(t *testing.T) {
	table := Table([]Invoice{{Number: "INV-202610-0001", ClientName: "Acme", Status: StatusSent, Currency: "USD", Total: 10}})
	require.Len(t, table.Rows, 1)
	assert.Len(t, table.Rows[0], len(table.Headers))
	assert.Equal(t, "sent", table.Rows[0][2])
}

func TestCreateNumbersByUTCMonth(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(t, repo, Options{})
	// 1 November 01:30 in UTC+3 is still 31 October in UTC.
	svc.now = func() time.Time {
		return time.Date(2026, 11, 1, 1, 30, 0, 0, time.FixedZone("UTC+3", 3*60*60))
	}

	inv, _, err := svc.Create(context.Background(), "", sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "INV-202610-0001", inv.Number)
}
