package sales

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizportal/portal/internal/shared"
)

type mockRepository struct {
	companies     map[int64]Company
	contacts      map[int64]Contact
	signals       map[int64]JobSignal
	opportunities map[int64]Opportunity
	nextID        int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		companies:     map[int64]Company{},
		contacts:      map[int64]Contact{},
		signals:       map[int64]JobSignal{},
		opportunities: map[int64]Opportunity{},
		nextID:        1,
	}
}

func (m *mockRepository) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *mockRepository) ListCompanies(ctx context.Context, params shared.ListParams, filter CompanyFilter) ([]Company, int, error) {
	var out []Company
	for _, c := range m.companies {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *mockRepository) GetCompany(ctx context.Context, id int64) (Company, error) {
	c, ok := m.companies[id]
	if !ok {
		return Company{}, shared.ErrNotFound
	}
	return c, nil
}

func (m *mockRepository) CreateCompany(ctx context.Context, c Company) (int64, error) {
	c.ID = m.id()
	m.companies[c.ID] = c
	return c.ID, nil
}

func (m *mockRepository) UpdateCompany(ctx context.Context, c Company) error {
	if _, ok := m.companies[c.ID]; !ok {
		return shared.ErrNotFound
	}
	m.companies[c.ID] = c
	return nil
}

func (m *mockRepository) DeleteCompany(ctx context.Context, id int64) error {
	if _, ok := m.companies[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.companies, id)
	return nil
}

func (m *mockRepository) CompaniesWithATS(ctx context.Context, companyID *int64) ([]Company, error) {
	var out []Company
	for _, c := range m.companies {
		if c.ATSProvider != "" && (companyID == nil || *companyID == c.ID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRepository) ListContacts(ctx context.Context, params shared.ListParams, companyID *int64) ([]Contact, int, error) {
	var out []Contact
	for _, c := range m.contacts {
		if companyID != nil && c.CompanyID != *companyID {
			continue
		}
		out = append(out, c)
	}
	return out, len(out), nil
}

func (m *mockRepository) GetContact(ctx context.Context, id int64) (Contact, error) {
	c, ok := m.contacts[id]
	if !ok {
		return Contact{}, shared.ErrNotFound
	}
	return c, nil
}

func (m *mockRepository) SaveContact(ctx context.Context, c Contact) (int64, error) {
	if c.ID == 0 {
		c.ID = m.id()
	}
	if c.IsPrimary {
		for id, other := range m.contacts {
			if other.CompanyID == c.CompanyID && id != c.ID {
				other.IsPrimary = false
				m.contacts[id] = other
			}
		}
	}
	m.contacts[c.ID] = c
	return c.ID, nil
}

func (m *mockRepository) DeleteContact(ctx context.Context, id int64) error {
	delete(m.contacts, id)
	return nil
}

func (m *mockRepository) ListSignals(ctx context.Context, params shared.ListParams, filter SignalFilter) ([]JobSignal, int, error) {
	var out []JobSignal
	for _, s := range m.signals {
		if filter.CompanyID != nil && s.CompanyID != *filter.CompanyID {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockRepository) GetSignal(ctx context.Context, id int64) (JobSignal, error) {
	s, ok := m.signals[id]
	if !ok {
		return JobSignal{}, shared.ErrNotFound
	}
	return s, nil
}

func (m *mockRepository) CreateSignal(ctx context.Context, s JobSignal) (int64, error) {
	s.ID = m.id()
	m.signals[s.ID] = s
	return s.ID, nil
}

func (m *mockRepository) UpsertSignal(ctx context.Context, s JobSignal) (bool, error) {
	for id, existing := range m.signals {
		if existing.Source == s.Source && existing.ExternalID == s.ExternalID {
			s.ID = id
			s.Status = existing.Status
			m.signals[id] = s
			return false, nil
		}
	}
	s.ID = m.id()
	s.Status = SignalNew
	m.signals[s.ID] = s
	return true, nil
}

func (m *mockRepository) UpdateSignalStatus(ctx context.Context, id int64, status SignalStatus) error {
	s, ok := m.signals[id]
	if !ok {
		return shared.ErrNotFound
	}
	s.Status = status
	m.signals[id] = s
	return nil
}

func (m *mockRepository) DeleteSignal(ctx context.Context, id int64) error {
	delete(m.signals, id)
	return nil
}

func (m *mockRepository) ListOpportunities(ctx context.Context, params shared.ListParams, filter OpportunityFilter) ([]Opportunity, int, error) {
	out, _ := m.AllOpportunities(ctx, filter)
	return out, len(out), nil
}

func (m *mockRepository) AllOpportunities(ctx context.Context, filter OpportunityFilter) ([]Opportunity, error) {
	var out []Opportunity
	for _, o := range m.opportunities {
		if filter.CompanyID != nil && o.CompanyID != *filter.CompanyID {
			continue
		}
		if filter.OpenOnly && o.Stage.IsClosed() {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *mockRepository) GetOpportunity(ctx context.Context, id int64) (Opportunity, error) {
	o, ok := m.opportunities[id]
	if !ok {
		return Opportunity{}, shared.ErrNotFound
	}
	return o, nil
}

func (m *mockRepository) CreateOpportunity(ctx context.Context, o Opportunity) (int64, error) {
	o.ID = m.id()
	m.opportunities[o.ID] = o
	return o.ID, nil
}

func (m *mockRepository) UpdateOpportunity(ctx context.Context, o Opportunity) error {
	if _, ok := m.opportunities[o.ID]; !ok {
		return shared.ErrNotFound
	}
	m.opportunities[o.ID] = o
	return nil
}

func (m *mockRepository) DeleteOpportunity(ctx context.Context, id int64) error {
	delete(m.opportunities, id)
	return nil
}

func (m *mockRepository) StageTotals(ctx context.Context) ([]StageTotal, error) {
	totals := map[Stage]*StageTotal{}
	for _, o := range m.opportunities {
		t, ok := totals[o.Stage]
		if !ok {
			t = &StageTotal{Stage: o.Stage}
			totals[o.Stage] = t
		}
		t.Count++
		t.TotalValue += o.Value
		t.WeightedValue += o.Value * float64(o.Probability) / 100
	}
	var out []StageTotal
	for _, t := range totals {
		out = append(out, *t)
	}
	return out, nil
}

type stubEnqueuer struct {
	calls []*int64
	err   error
}

func (s *stubEnqueuer) EnqueueSignalPoll(ctx context.Context, companyID *int64) (string, error) {
	s.calls = append(s.calls, companyID)
	return "task-1", s.err
}

func newTestService() (*Service, *mockRepository, *stubEnqueuer) {
	repo := newMockRepository()
	enq := &stubEnqueuer{}
	svc := NewService(repo, enq, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) }
	return svc, repo, enq
}

func seedCompany(t *testing.T, svc *Service) Company {
	t.Helper()
	c, err := svc.CreateCompany(context.Background(), CompanyRequest{Name: " Acme Corp ", Domain: "ACME.com", ATSProvider: ATSLever, ATSSlug: "acme"})
	require.NoError(t, err)
	return c
}

func TestCreateCompanyDefaults(t *testing.T) {
	svc, _, _ := newTestService()
	c := seedCompany(t, svc)
	assert.Equal(t, "Acme Corp", c.Name)
	assert.Equal(t, "acme.com", c.Domain)
	assert.Equal(t, CompanyProspect, c.Status)
}

func TestUpdateCompanyKeepsStatusWhenOmitted(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	c, err := svc.CreateCompany(ctx, CompanyRequest{Name: "Acme", Status: CompanyCustomer})
	require.NoError(t, err)

	updated, err := svc.UpdateCompany(ctx, c.ID, CompanyRequest{Name: "Acme Holdings"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Holdings", updated.Name)
	assert.Equal(t, CompanyCustomer, updated.Status)
}

func TestSaveContactPrimaryIsExclusive(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	company := seedCompany(t, svc)

	first, err := svc.SaveContact(ctx, 0, ContactRequest{CompanyID: company.ID, LastName: "One", IsPrimary: true})
	require.NoError(t, err)
	second, err := svc.SaveContact(ctx, 0, ContactRequest{CompanyID: company.ID, LastName: "Two", IsPrimary: true})
	require.NoError(t, err)

	assert.False(t, repo.contacts[first.ID].IsPrimary)
	assert.True(t, repo.contacts[second.ID].IsPrimary)
}

func TestGetCompanyIncludesRelated(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	company := seedCompany(t, svc)
	_, err := svc.SaveContact(ctx, 0, ContactRequest{CompanyID: company.ID, LastName: "Doe"})
	require.NoError(t, err)
	_, err = svc.CreateOpportunity(ctx, OpportunityRequest{CompanyID: company.ID, Name: "Open deal", Value: 1000})
	require.NoError(t, err)
	_, err = svc.CreateOpportunity(ctx, OpportunityRequest{CompanyID: company.ID, Name: "Won deal", Stage: StageClosedWon, Value: 500})
	require.NoError(t, err)

	detail, err := svc.GetCompany(ctx, company.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Contacts, 1)
	assert.NotNil(t, detail.Signals)
	require.Len(t, detail.Opportunities, 1)
	assert.Equal(t, "Open deal", detail.Opportunities[0].Name)
}

func TestCreateOpportunityProbability(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	company := seedCompany(t, svc)

	opp, err := svc.CreateOpportunity(ctx, OpportunityRequest{CompanyID: company.ID, Name: "Deal", Stage: StageProposal, Value: 100})
	require.NoError(t, err)
	assert.Equal(t, 50, opp.Probability)
	assert.Nil(t, opp.ClosedAt)

	custom := 60
	opp, err = svc.CreateOpportunity(ctx, OpportunityRequest{CompanyID: company.ID, Name: "Deal 2", Probability: &custom})
	require.NoError(t, err)
	assert.Equal(t, StageLead, opp.Stage)
	assert.Equal(t, 60, opp.Probability)
}

func TestCreateOpportunityClosedLostNeedsReason(t *testing.T) {
	svc, _, _ := newTestService()
	company := seedCompany(t, svc)
	_, err := svc.CreateOpportunity(context.Background(), OpportunityRequest{CompanyID: company.ID, Name: "Deal", Stage: StageClosedLost})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "lost_reason")
}

func TestMoveStageRules(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	company := seedCompany(t, svc)
	opp, err := svc.CreateOpportunity(ctx, OpportunityRequest{CompanyID: company.ID, Name: "Deal", Value: 2000})
	require.NoError(t, err)

	opp, err = svc.MoveStage(ctx, opp.ID, StageRequest{Stage: StageNegotiation})
	require.NoError(t, err)
	assert.Equal(t, 75, opp.Probability)

	_, err = svc.MoveStage(ctx, opp.ID, StageRequest{Stage: StageClosedLost})
	require.ErrorIs(t, err, shared.ErrValidation)

	opp, err = svc.MoveStage(ctx, opp.ID, StageRequest{Stage: StageClosedLost, LostReason: " budget "})
	require.NoError(t, err)
	assert.Equal(t, 0, opp.Probability)
	assert.Equal(t, "budget", opp.LostReason)
	require.NotNil(t, opp.ClosedAt)
	assert.Equal(t, time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), *opp.ClosedAt)

	_, err = svc.MoveStage(ctx, opp.ID, StageRequest{Stage: StageProposal})
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
}

func TestMoveStageWonPinsProbability(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	company := seedCompany(t, svc)
	opp, err := svc.CreateOpportunity(ctx, OpportunityRequest{CompanyID: company.ID, Name: "Deal", Value: 2000})
	require.NoError(t, err)

	opp, err = svc.MoveStage(ctx, opp.ID, StageRequest{Stage: StageClosedWon})
	require.NoError(t, err)
	assert.Equal(t, 100, opp.Probability)
	assert.NotNil(t, opp.ClosedAt)
	assert.Empty(t, opp.LostReason)
}

func TestUpdateOpportunityKeepsClosedState(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	company := seedCompany(t, svc)
	opp, err := svc.CreateOpportunity(ctx, OpportunityRequest{CompanyID: company.ID, Name: "Deal", Stage: StageClosedWon, Value: 10})
	require.NoError(t, err)

	prob := 40
	updated, err := svc.UpdateOpportunity(ctx, opp.ID, OpportunityRequest{CompanyID: company.ID, Name: "Renamed", Value: 20, Probability: &prob})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, StageClosedWon, updated.Stage)
	assert.Equal(t, 100, updated.Probability)

	_, err = svc.UpdateOpportunity(ctx, opp.ID, OpportunityRequest{CompanyID: company.ID, Name: "Renamed", Stage: StageLead})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestPipelineSummary(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	company := seedCompany(t, svc)
	for _, req := range []OpportunityRequest{
		{Name: "a", Stage: StageLead, Value: 1000},
		{Name: "b", Stage: StageProposal, Value: 2000},
		{Name: "c", Stage: StageClosedWon, Value: 500},
		{Name: "d", Stage: StageClosedWon, Value: 700},
		{Name: "e", Stage: StageClosedLost, Value: 300, LostReason: "price"},
	} {
		req.CompanyID = company.ID
		_, err := svc.CreateOpportunity(ctx, req)
		require.NoError(t, err)
	}

	summary, err := svc.PipelineSummary(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Stages, len(Stages))
	assert.Equal(t, StageLead, summary.Stages[0].Stage)
	assert.Equal(t, 2, summary.OpenCount)
	assert.Equal(t, 3000.0, summary.OpenValue)
	assert.Equal(t, 1100.0, summary.WeightedValue)
	assert.Equal(t, 2, summary.WonCount)
	assert.Equal(t, 1, summary.LostCount)
	assert.Equal(t, 66.7, summary.WinRate)
	assert.Equal(t, 0, summary.Stages[3].Count)
}

func TestSummarizeWithoutClosedDeals(t *testing.T) {
	summary := Summarize([]StageTotal{{Stage: StageLead, Count: 3, TotalValue: 30, WeightedValue: 3}})
	assert.Zero(t, summary.WinRate)
	assert.Equal(t, 3, summary.OpenCount)
}

func TestRefreshSignals(t *testing.T) {
	svc, _, enq := newTestService()
	ctx := context.Background()
	company := seedCompany(t, svc)
	plain, err := svc.CreateCompany(ctx, CompanyRequest{Name: "No ATS"})
	require.NoError(t, err)

	taskID, err := svc.RefreshSignals(ctx, &company.ID)
	require.NoError(t, err)
	assert.Equal(t, "task-1", taskID)

	_, err = svc.RefreshSignals(ctx, &plain.ID)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.RefreshSignals(ctx, nil)
	require.NoError(t, err)
	require.Len(t, enq.calls, 2)
	assert.Nil(t, enq.calls[1])
}

func TestCreateManualSignal(t *testing.T) {
	svc, _, _ := newTestService()
	company := seedCompany(t, svc)
	sig, err := svc.CreateSignal(context.Background(), SignalRequest{CompanyID: company.ID, Title: "Support Agent"})
	require.NoError(t, err)
	assert.Equal(t, SourceManual, sig.Source)
	assert.Equal(t, SignalNew, sig.Status)
	assert.Contains(t, sig.ExternalID, "manual-")
	assert.NotNil(t, sig.Tags)
}

func TestPipelineTable(t *testing.T) {
	d := shared.NewDate(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	table := PipelineTable([]Opportunity{{ID: 7, CompanyName: "Acme", Name: "Deal", Stage: StageProposal, Value: 1000, Probability: 50, ExpectedClose: &d}})
	require.Len(t, table.Rows, 1)
	assert.Equal(t, len(table.Headers), len(table.Rows[0]))
	assert.Equal(t, 500.0, table.Rows[0][6])
}
