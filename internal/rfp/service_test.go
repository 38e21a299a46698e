package rfp

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizportal/portal/internal/drafting"
	"github.com/bizportal/portal/internal/shared"
)

type mockRepository struct {
	items  map[int64]RFP
	nextID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{items: map[int64]RFP{}, nextID: 1}
}

func (m *mockRepository) List(ctx context.Context, params shared.ListParams, f Filter) ([]RFP, int, error) {
	out, _ := m.All(ctx, f)
	return out, len(out), nil
}

func (m *mockRepository) All(ctx context.Context, f Filter) ([]RFP, error) {
	var out []RFP
	for _, item := range m.items {
		if f.Status != "" && item.Status != f.Status {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate.Time) })
	return out, nil
}

func (m *mockRepository) DueBetween(ctx context.Context, from, to shared.Date) ([]RFP, error) {
	var out []RFP
	for _, item := range m.items {
		if !item.Status.IsOpen() || item.DueDate.Before(from.Time) || item.DueDate.After(to.Time) {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate.Time) })
	return out, nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (RFP, error) {
	item, ok := m.items[id]
	if !ok {
		return RFP{}, shared.ErrNotFound
	}
	return item, nil
}

func (m *mockRepository) Create(ctx context.Context, in RFP) (int64, error) {
	in.ID = m.nextID
	m.nextID++
	m.items[in.ID] = in
	return in.ID, nil
}

func (m *mockRepository) Update(ctx context.Context, in RFP) error {
	current, ok := m.items[in.ID]
	if !ok {
		return shared.ErrNotFound
	}
	in.Status = current.Status
	in.SubmittedAt = current.SubmittedAt
	in.ResponseDraft = current.ResponseDraft
	m.items[in.ID] = in
	return nil
}

func (m *mockRepository) SetStatus(ctx context.Context, id int64, from, to Status, submittedAt *time.Time) error {
	item, ok := m.items[id]
	if !ok || item.Status != from {
		return shared.ErrConflict
	}
	item.Status = to
	if submittedAt != nil {
		item.SubmittedAt = submittedAt
	}
	m.items[id] = item
	return nil
}

func (m *mockRepository) SetResponse(ctx context.Context, id int64, text string) error {
	item, ok := m.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	item.ResponseDraft = text
	m.items[id] = item
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id int64) error {
	if _, ok := m.items[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

type fakeDrafter struct {
	last drafting.Request
}

func (f *fakeDrafter) Draft(ctx context.Context, req drafting.Request) (drafting.Draft, error) {
	f.last = req
	return drafting.Draft{Text: "draft for " + req.Subject, Source: "template"}, nil
}

var fixedNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func newTestService(repo *mockRepository, d Drafter) *Service {
	svc := NewService(repo, d, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func request(title string, due shared.Date) Request {
	return Request{Title: title, IssuerName: "City of Springfield", DueDate: due}
}

func TestCreateStartsIdentified(t *testing.T) {
	svc := newTestService(newMockRepository(), nil)
	value := 1234.567
	req := request("  Helpdesk outsourcing ", shared.NewDate(fixedNow).AddDays(20))
	req.EstimatedValue = &value

	item, err := svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, StatusIdentified, item.Status)
	assert.Equal(t, "Helpdesk outsourcing", item.Title)
	require.NotNil(t, item.EstimatedValue)
	assert.Equal(t, 1234.57, *item.EstimatedValue)
}

func TestTransitionFollowsLifecycle(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	item, err := svc.Create(ctx, request("Tier 1 support", shared.NewDate(fixedNow).AddDays(5)))
	require.NoError(t, err)

	_, err = svc.Transition(ctx, item.ID, StatusSubmitted)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	for _, to := range []Status{StatusReviewing, StatusDrafting} {
		item, err = svc.Transition(ctx, item.ID, to)
		require.NoError(t, err)
		assert.Nil(t, item.SubmittedAt)
	}

	item, err = svc.Transition(ctx, item.ID, StatusSubmitted)
	require.NoError(t, err)
	require.NotNil(t, item.SubmittedAt)
	assert.True(t, item.SubmittedAt.Equal(fixedNow))

	item, err = svc.Transition(ctx, item.ID, StatusWon)
	require.NoError(t, err)
	assert.Equal(t, StatusWon, item.Status)

	_, err = svc.Transition(ctx, item.ID, StatusLost)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestNoBidAllowedFromOpenStatuses(t *testing.T) {
	for _, from := range []Status{StatusIdentified, StatusReviewing, StatusDrafting} {
		assert.True(t, CanTransition(from, StatusNoBid), from)
	}
	assert.False(t, CanTransition(StatusSubmitted, StatusNoBid))
	assert.False(t, CanTransition(StatusNoBid, StatusIdentified))
}

func TestUpcomingReturnsOpenRFPsInWindow(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	today := shared.NewDate(fixedNow)

	soon, err := svc.Create(ctx, request("Soon", today.AddDays(3)))
	require.NoError(t, err)
	_, err = svc.Create(ctx, request("Later", today.AddDays(30)))
	require.NoError(t, err)
	dueToday, err := svc.Create(ctx, request("Today", today))
	require.NoError(t, err)
	closed, err := svc.Create(ctx, request("Declined", today.AddDays(2)))
	require.NoError(t, err)
	_, err = svc.Transition(ctx, closed.ID, StatusNoBid)
	require.NoError(t, err)

	items, err := svc.Upcoming(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, dueToday.ID, items[0].ID)
	assert.Equal(t, 0, items[0].DaysRemaining)
	assert.Equal(t, soon.ID, items[1].ID)
	assert.Equal(t, 3, items[1].DaysRemaining)

	items, err = svc.Upcoming(ctx, 60)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestDraftPassesFactsAndDoesNotPersist(t *testing.T) {
	repo := newMockRepository()
	d := &fakeDrafter{}
	svc := newTestService(repo, d)
	ctx := context.Background()
	req := request("Night shift coverage", shared.NewDate(fixedNow).AddDays(9))
	req.ReferenceNo = "RFP-77"
	req.Summary = "24/7 coverage in three languages"
	item, err := svc.Create(ctx, req)
	require.NoError(t, err)

	out, err := svc.Draft(ctx, item.ID, "keep it short")
	require.NoError(t, err)
	assert.Equal(t, "draft for Night shift coverage", out.Text)
	assert.Equal(t, drafting.KindRFPResponse, d.last.Kind)
	assert.Equal(t, "City of Springfield", d.last.Organisation)
	assert.Equal(t, "keep it short", d.last.Instructions)
	assert.Contains(t, d.last.Facts, "Reference RFP-77")
	assert.Contains(t, d.last.Facts, "Due 2026-03-19")

	stored, err := svc.Get(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ResponseDraft)

	stored, err = svc.SaveResponse(ctx, item.ID, out.Text)
	require.NoError(t, err)
	assert.Equal(t, out.Text, stored.ResponseDraft)
}

func TestDraftWithoutDrafter(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, nil)
	item, err := svc.Create(context.Background(), request("X", shared.NewDate(fixedNow)))
	require.NoError(t, err)

	_, err = svc.Draft(context.Background(), item.ID, "")
	assert.ErrorIs(t, err, shared.ErrUnavailable)
}

func TestUpdateMissing(t *testing.T) {
	svc := newTestService(newMockRepository(), nil)
	_, err := svc.Update(context.Background(), 42, request("X", shared.NewDate(fixedNow)))
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestTableLayout(t *testing.T) {
	value := 500.0
	table := Table([]RFP{{ID: 1, Title: "A", IssuerName: "B", Status: StatusDrafting, EstimatedValue: &value}})
	assert.Equal(t, "RFPs", table.Sheet)
	require.Len(t, table.Rows, 1)
	assert.Len(t, table.Rows[0], len(table.Headers))
	assert.Equal(t, "drafting", table.Rows[0][4])
}
