package sales

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bizportal/portal/internal/shared"
)

// RepositoryPort defines persistence used by the CRM service.
type RepositoryPort interface {
	ListCompanies(ctx context.Context, params shared.ListParams, filter CompanyFilter) ([]Company, int, error)
	GetCompany(ctx context.Context, id int64) (Company, error)
	CreateCompany(ctx context.Context, c Company) (int64, error)
	UpdateCompany(ctx context.Context, c Company) error
	DeleteCompany(ctx context.Context, id int64) error
	CompaniesWithATS(ctx context.Context, companyID *int64) ([]Company, error)

	ListContacts(ctx context.Context, params shared.ListParams, companyID *int64) ([]Contact, int, error)
	GetContact(ctx context.Context, id int64) (Contact, error)
	SaveContact(ctx context.Context, c Contact) (int64, error)
	DeleteContact(ctx context.Context, id int64) error

	ListSignals(ctx context.Context, params shared.ListParams, filter SignalFilter) ([]JobSignal, int, error)
	GetSignal(ctx context.Context, id int64) (JobSignal, error)
	CreateSignal(ctx context.Context, s JobSignal) (int64, error)
	UpsertSignal(ctx context.Context, s JobSignal) (bool, error)
	UpdateSignalStatus(ctx context.Context, id int64, status SignalStatus) error
	DeleteSignal(ctx context.Context, id int64) error

	ListOpportunities(ctx context.Context, params shared.ListParams, filter OpportunityFilter) ([]Opportunity, int, error)
	AllOpportunities(ctx context.Context, filter OpportunityFilter) ([]Opportunity, error)
	GetOpportunity(ctx context.Context, id int64) (Opportunity, error)
	CreateOpportunity(ctx context.Context, o Opportunity) (int64, error)
	UpdateOpportunity(ctx context.Context, o Opportunity) error
	DeleteOpportunity(ctx context.Context, id int64) error
	StageTotals(ctx context.Context) ([]StageTotal, error)
}

// SignalEnqueuer schedules an ATS poll in the background worker.
type SignalEnqueuer interface {
	EnqueueSignalPoll(ctx context.Context, companyID *int64) (string, error)
}

// Service implements CRM and pipeline rules.
type Service struct {
	repo     RepositoryPort
	enqueuer SignalEnqueuer
	audit    shared.Auditor
	now      func() time.Time
}

// NewService constructs the sales service.
func NewService(repo RepositoryPort, enqueuer SignalEnqueuer, audit shared.Auditor) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	return &Service{repo: repo, enqueuer: enqueuer, audit: audit, now: time.Now}
}

const detailSignalLimit = 10

// ============================================================================
// COMPANIES
// ============================================================================

// ListCompanies returns a page of companies.
func (s *Service) ListCompanies(ctx context.Context, params shared.ListParams, filter CompanyFilter) (shared.Page[Company], error) {
	items, total, err := s.repo.ListCompanies(ctx, params, filter)
	if err != nil {
		return shared.Page[Company]{}, fmt.Errorf("list companies: %w", err)
	}
	return shared.NewPage(items, params, total), nil
}

// GetCompany returns a company with contacts, recent signals and open opportunities.
func (s *Service) GetCompany(ctx context.Context, id int64) (CompanyDetail, error) {
	company, err := s.repo.GetCompany(ctx, id)
	if err != nil {
		return CompanyDetail{}, err
	}
	detail := CompanyDetail{Company: company}
	contacts, _, err := s.repo.ListContacts(ctx, shared.ListParams{PerPage: shared.MaxPerPage}, &id)
	if err != nil {
		return CompanyDetail{}, fmt.Errorf("company contacts: %w", err)
	}
	signals, _, err := s.repo.ListSignals(ctx, shared.ListParams{PerPage: detailSignalLimit, Sort: "created_at", Desc: true}, SignalFilter{CompanyID: &id})
	if err != nil {
		return CompanyDetail{}, fmt.Errorf("company signals: %w", err)
	}
	opps, err := s.repo.AllOpportunities(ctx, OpportunityFilter{CompanyID: &id, OpenOnly: true})
	if err != nil {
		return CompanyDetail{}, fmt.Errorf("company opportunities: %w", err)
	}
	detail.Contacts = nonNil(contacts)
	detail.Signals = nonNil(signals)
	detail.Opportunities = nonNil(opps)
	return detail, nil
}

// CreateCompany registers a company.
func (s *Service) CreateCompany(ctx context.Context, req CompanyRequest) (Company, error) {
	c := companyFromRequest(req)
	id, err := s.repo.CreateCompany(ctx, c)
	if err != nil {
		return Company{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "create", "company", id, map[string]any{"name": c.Name})); err != nil {
		return Company{}, err
	}
	return s.repo.GetCompany(ctx, id)
}

// UpdateCompany replaces a company.
func (s *Service) UpdateCompany(ctx context.Context, id int64, req CompanyRequest) (Company, error) {
	existing, err := s.repo.GetCompany(ctx, id)
	if err != nil {
		return Company{}, err
	}
	c := companyFromRequest(req)
	c.ID = id
	if req.Status == "" {
		c.Status = existing.Status
	}
	if err := s.repo.UpdateCompany(ctx, c); err != nil {
		return Company{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "update", "company", id, nil)); err != nil {
		return Company{}, err
	}
	return s.repo.GetCompany(ctx, id)
}

// DeleteCompany removes a company.
func (s *Service) DeleteCompany(ctx context.Context, id int64) error {
	if err := s.repo.DeleteCompany(ctx, id); err != nil {
		return err
	}
	return s.audit.Record(ctx, shared.AuditEntry(ctx, "delete", "company", id, nil))
}

func companyFromRequest(req CompanyRequest) Company {
	status := req.Status
	if status == "" {
		status = CompanyProspect
	}
	return Company{
		Name:          strings.TrimSpace(req.Name),
		Domain:        strings.ToLower(strings.TrimSpace(req.Domain)),
		Industry:      strings.TrimSpace(req.Industry),
		EmployeeCount: req.EmployeeCount,
		HQLocation:    strings.TrimSpace(req.HQLocation),
		Website:       strings.TrimSpace(req.Website),
		Status:        status,
		OwnerID:       req.OwnerID,
		ATSProvider:   req.ATSProvider,
		ATSSlug:       strings.TrimSpace(req.ATSSlug),
		Notes:         req.Notes,
	}
}

// ============================================================================
// CONTACTS
// ============================================================================

// ListContacts returns a page of contacts.
func (s *Service) ListContacts(ctx context.Context, params shared.ListParams, companyID *int64) (shared.Page[Contact], error) {
	items, total, err := s.repo.ListContacts(ctx, params, companyID)
	if err != nil {
		return shared.Page[Contact]{}, fmt.Errorf("list contacts: %w", err)
	}
	return shared.NewPage(items, params, total), nil
}

// GetContact returns one contact.
func (s *Service) GetContact(ctx context.Context, id int64) (Contact, error) {
	return s.repo.GetContact(ctx, id)
}

// SaveContact creates (id 0) or replaces a contact.
func (s *Service) SaveContact(ctx context.Context, id int64, req ContactRequest) (Contact, error) {
	if id != 0 {
		if _, err := s.repo.GetContact(ctx, id); err != nil {
			return Contact{}, err
		}
	}
	c := Contact{
		ID:          id,
		CompanyID:   req.CompanyID,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:       strings.TrimSpace(req.Phone),
		Title:       strings.TrimSpace(req.Title),
		LinkedInURL: strings.TrimSpace(req.LinkedInURL),
		IsPrimary:   req.IsPrimary,
	}
	saved, err := s.repo.SaveContact(ctx, c)
	if err != nil {
		return Contact{}, err
	}
	action := "update"
	if id == 0 {
		action = "create"
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, action, "contact", saved, nil)); err != nil {
		return Contact{}, err
	}
	return s.repo.GetContact(ctx, saved)
}

// DeleteContact removes a contact.
func (s *Service) DeleteContact(ctx context.Context, id int64) error {
	if err := s.repo.DeleteContact(ctx, id); err != nil {
		return err
	}
	return s.audit.Record(ctx, shared.AuditEntry(ctx, "delete", "contact", id, nil))
}

// ============================================================================
// SIGNALS
// ============================================================================

// ListSignals returns a page of job signals.
func (s *Service) ListSignals(ctx context.Context, params shared.ListParams, filter SignalFilter) (shared.Page[JobSignal], error) {
	items, total, err := s.repo.ListSignals(ctx, params, filter)
	if err != nil {
		return shared.Page[JobSignal]{}, fmt.Errorf("list signals: %w", err)
	}
	return shared.NewPage(items, params, total), nil
}

// GetSignal returns one signal.
func (s *Service) GetSignal(ctx context.Context, id int64) (JobSignal, error) {
	return s.repo.GetSignal(ctx, id)
}

// CreateSignal records a manually entered signal.
func (s *Service) CreateSignal(ctx context.Context, req SignalRequest) (JobSignal, error) {
	sig := JobSignal{
		CompanyID:  req.CompanyID,
		Source:     SourceManual,
		ExternalID: "manual-" + uuid.NewString(),
		Title:      strings.TrimSpace(req.Title),
		Location:   strings.TrimSpace(req.Location),
		URL:        strings.TrimSpace(req.URL),
		Score:      req.Score,
		Tags:       nonNil(req.Tags),
		PostedAt:   req.PostedAt,
		Status:     SignalNew,
	}
	id, err := s.repo.CreateSignal(ctx, sig)
	if err != nil {
		return JobSignal{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "create", "job_signal", id, nil)); err != nil {
		return JobSignal{}, err
	}
	return s.repo.GetSignal(ctx, id)
}

// UpdateSignalStatus changes the triage status of a signal.
func (s *Service) UpdateSignalStatus(ctx context.Context, id int64, status SignalStatus) (JobSignal, error) {
	if err := s.repo.UpdateSignalStatus(ctx, id, status); err != nil {
		return JobSignal{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "status", "job_signal", id, map[string]any{"status": status})); err != nil {
		return JobSignal{}, err
	}
	return s.repo.GetSignal(ctx, id)
}

// DeleteSignal removes a signal.
func (s *Service) DeleteSignal(ctx context.Context, id int64) error {
	if err := s.repo.DeleteSignal(ctx, id); err != nil {
		return err
	}
	return s.audit.Record(ctx, shared.AuditEntry(ctx, "delete", "job_signal", id, nil))
}

// RefreshSignals enqueues an ATS poll and returns the task id.
func (s *Service) RefreshSignals(ctx context.Context, companyID *int64) (string, error) {
	if companyID != nil {
		company, err := s.repo.GetCompany(ctx, *companyID)
		if err != nil {
			return "", err
		}
		if company.ATSProvider == "" || company.ATSSlug == "" {
			return "", shared.NewValidationError("company_id", "company has no ATS board configured")
		}
	}
	if s.enqueuer == nil {
		return "", fmt.Errorf("%w: signal polling is not configured", shared.ErrUnavailable)
	}
	taskID, err := s.enqueuer.EnqueueSignalPoll(ctx, companyID)
	if err != nil {
		return "", fmt.Errorf("enqueue signal poll: %w", err)
	}
	return taskID, nil
}

// ============================================================================
// OPPORTUNITIES
// ============================================================================

// ListOpportunities returns a page of opportunities.
func (s *Service) ListOpportunities(ctx context.Context, params shared.ListParams, filter OpportunityFilter) (shared.Page[Opportunity], error) {
	items, total, err := s.repo.ListOpportunities(ctx, params, filter)
	if err != nil {
		return shared.Page[Opportunity]{}, fmt.Errorf("list opportunities: %w", err)
	}
	return shared.NewPage(items, params, total), nil
}

// GetOpportunity returns one opportunity.
func (s *Service) GetOpportunity(ctx context.Context, id int64) (Opportunity, error) {
	return s.repo.GetOpportunity(ctx, id)
}

// CreateOpportunity adds a deal to the pipeline.
func (s *Service) CreateOpportunity(ctx context.Context, req OpportunityRequest) (Opportunity, error) {
	o := opportunityFromRequest(req)
	if err := s.applyStage(&o, o.Stage, req.LostReason); err != nil {
		return Opportunity{}, err
	}
	if req.Probability != nil && !o.Stage.IsClosed() {
		o.Probability = *req.Probability
	}
	id, err := s.repo.CreateOpportunity(ctx, o)
	if err != nil {
		return Opportunity{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "create", "opportunity", id, map[string]any{"stage": o.Stage, "value": o.Value})); err != nil {
		return Opportunity{}, err
	}
	return s.repo.GetOpportunity(ctx, id)
}

// UpdateOpportunity edits a deal. Stage changes follow MoveStage rules.
func (s *Service) UpdateOpportunity(ctx context.Context, id int64, req OpportunityRequest) (Opportunity, error) {
	existing, err := s.repo.GetOpportunity(ctx, id)
	if err != nil {
		return Opportunity{}, err
	}
	o := opportunityFromRequest(req)
	o.ID = id
	o.Stage = existing.Stage
	o.Probability = existing.Probability
	o.LostReason = existing.LostReason
	o.ClosedAt = existing.ClosedAt
	if req.Stage != "" && req.Stage != existing.Stage {
		if err := s.applyStage(&o, req.Stage, req.LostReason); err != nil {
			return Opportunity{}, err
		}
	} else if o.Stage == StageClosedLost && strings.TrimSpace(req.LostReason) != "" {
		o.LostReason = strings.TrimSpace(req.LostReason)
	}
	if req.Probability != nil && !o.Stage.IsClosed() {
		o.Probability = *req.Probability
	}
	if err := s.repo.UpdateOpportunity(ctx, o); err != nil {
		return Opportunity{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "update", "opportunity", id, nil)); err != nil {
		return Opportunity{}, err
	}
	return s.repo.GetOpportunity(ctx, id)
}

// MoveStage moves an opportunity to another stage.
func (s *Service) MoveStage(ctx context.Context, id int64, req StageRequest) (Opportunity, error) {
	o, err := s.repo.GetOpportunity(ctx, id)
	if err != nil {
		return Opportunity{}, err
	}
	from := o.Stage
	if err := s.applyStage(&o, req.Stage, req.LostReason); err != nil {
		return Opportunity{}, err
	}
	if err := s.repo.UpdateOpportunity(ctx, o); err != nil {
		return Opportunity{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "stage", "opportunity", id, map[string]any{"from": from, "to": o.Stage})); err != nil {
		return Opportunity{}, err
	}
	return s.repo.GetOpportunity(ctx, id)
}

// DeleteOpportunity removes a deal.
func (s *Service) DeleteOpportunity(ctx context.Context, id int64) error {
	if err := s.repo.DeleteOpportunity(ctx, id); err != nil {
		return err
	}
	return s.audit.Record(ctx, shared.AuditEntry(ctx, "delete", "opportunity", id, nil))
}

// applyStage moves o to target. Closed stages are terminal; closing stamps
// closed_at and pins probability to 100 or 0.
func (s *Service) applyStage(o *Opportunity, target Stage, lostReason string) error {
	if target == "" {
		target = StageLead
	}
	if o.ID != 0 && o.Stage == target {
		return nil
	}
	if o.ID != 0 && o.Stage.IsClosed() {
		return fmt.Errorf("%w: opportunity is already %s", shared.ErrInvalidTransition, o.Stage)
	}
	reason := strings.TrimSpace(lostReason)
	if target == StageClosedLost && reason == "" {
		return shared.NewValidationError("lost_reason", "is required when closing as lost")
	}
	o.Stage = target
	o.Probability = target.DefaultProbability()
	o.LostReason = ""
	o.ClosedAt = nil
	if target.IsClosed() {
		closed := s.now().UTC()
		o.ClosedAt = &closed
	}
	if target == StageClosedLost {
		o.LostReason = reason
	}
	return nil
}

func opportunityFromRequest(req OpportunityRequest) Opportunity {
	return Opportunity{
		CompanyID:     req.CompanyID,
		ContactID:     req.ContactID,
		Name:          strings.TrimSpace(req.Name),
		Stage:         req.Stage,
		Value:         shared.RoundCents(req.Value),
		Seats:         req.Seats,
		ServiceLine:   strings.TrimSpace(req.ServiceLine),
		ExpectedClose: req.ExpectedClose,
		OwnerID:       req.OwnerID,
	}
}

// ============================================================================
// PIPELINE
// ============================================================================

// PipelineSummary aggregates the funnel. Every stage is present, in funnel order.
func (s *Service) PipelineSummary(ctx context.Context) (PipelineSummary, error) {
	totals, err := s.repo.StageTotals(ctx)
	if err != nil {
		return PipelineSummary{}, fmt.Errorf("stage totals: %w", err)
	}
	return Summarize(totals), nil
}

// Summarize folds per-stage totals into a PipelineSummary.
func Summarize(totals []StageTotal) PipelineSummary {
	byStage := make(map[Stage]StageTotal, len(totals))
	for _, t := range totals {
		byStage[t.Stage] = t
	}
	summary := PipelineSummary{Stages: make([]StageTotal, 0, len(Stages))}
	for _, stage := range Stages {
		t := byStage[stage]
		t.Stage = stage
		t.TotalValue = shared.RoundCents(t.TotalValue)
		t.WeightedValue = shared.RoundCents(t.WeightedValue)
		summary.Stages = append(summary.Stages, t)
		switch stage {
		case StageClosedWon:
			summary.WonCount = t.Count
		case StageClosedLost:
			summary.LostCount = t.Count
		default:
			summary.OpenCount += t.Count
			summary.OpenValue += t.TotalValue
			summary.WeightedValue += t.WeightedValue
		}
	}
	summary.OpenValue = shared.RoundCents(summary.OpenValue)
	summary.WeightedValue = shared.RoundCents(summary.WeightedValue)
	summary.WinRate = shared.Percent(float64(summary.WonCount), float64(summary.WonCount+summary.LostCount))
	return summary
}

// ExportOpportunities returns the opportunities included in a pipeline export.
func (s *Service) ExportOpportunities(ctx context.Context, filter OpportunityFilter) ([]Opportunity, error) {
	items, err := s.repo.AllOpportunities(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("export opportunities: %w", err)
	}
	return items, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
