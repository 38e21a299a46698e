package rfp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bizportal/portal/internal/drafting"
	"github.com/bizportal/portal/internal/shared"
)

// RepositoryPort defines persistence used by the RFP service.
type RepositoryPort interface {
	List(ctx context.Context, params shared.ListParams, f Filter) ([]RFP, int, error)
	All(ctx context.Context, f Filter) ([]RFP, error)
	DueBetween(ctx context.Context, from, to shared.Date) ([]RFP, error)
	Get(ctx context.Context, id int64) (RFP, error)
	Create(ctx context.Context, in RFP) (int64, error)
	Update(ctx context.Context, in RFP) error
	SetStatus(ctx context.Context, id int64, from, to Status, submittedAt *time.Time) error
	SetResponse(ctx context.Context, id int64, text string) error
	Delete(ctx context.Context, id int64) error
}

// Drafter produces response drafts.
type Drafter interface {
	Draft(ctx context.Context, req drafting.Request) (drafting.Draft, error)
}

// DefaultUpcomingDays is the window used when days is not given.
const DefaultUpcomingDays = 14

// Service implements RFP tracking.
type Service struct {
	repo    RepositoryPort
	drafter Drafter
	audit   shared.Auditor
	now     func() time.Time
}

// NewService builds the service.
func NewService(repo RepositoryPort, drafter Drafter, audit shared.Auditor) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	return &Service{repo: repo, drafter: drafter, audit: audit, now: time.Now}
}

// List returns a page of RFPs.
func (s *Service) List(ctx context.Context, params shared.ListParams, f Filter) (shared.Page[RFP], error) {
	items, total, err := s.repo.List(ctx, params, f)
	if err != nil {
		return shared.Page[RFP]{}, fmt.Errorf("list rfps: %w", err)
	}
	return shared.NewPage(items, params, total), nil
}

// Get returns one RFP.
func (s *Service) Get(ctx context.Context, id int64) (RFP, error) {
	return s.repo.Get(ctx, id)
}

// Create records a newly identified RFP.
func (s *Service) Create(ctx context.Context, req Request) (RFP, error) {
	in := fromRequest(req)
	in.Status = StatusIdentified
	id, err := s.repo.Create(ctx, in)
	if err != nil {
		return RFP{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "create", "rfp", id, map[string]any{"title": in.Title})); err != nil {
		return RFP{}, err
	}
	return s.repo.Get(ctx, id)
}

// Update replaces an RFP's descriptive fields. Status changes go through Transition.
func (s *Service) Update(ctx context.Context, id int64, req Request) (RFP, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return RFP{}, err
	}
	in := fromRequest(req)
	in.ID = id
	if err := s.repo.Update(ctx, in); err != nil {
		return RFP{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "update", "rfp", id, nil)); err != nil {
		return RFP{}, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes an RFP.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return s.audit.Record(ctx, shared.AuditEntry(ctx, "delete", "rfp", id, nil))
}

// Transition moves an RFP along the allowed lifecycle. Submitting stamps submitted_at.
func (s *Service) Transition(ctx context.Context, id int64, to Status) (RFP, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return RFP{}, err
	}
	if !CanTransition(current.Status, to) {
		return RFP{}, fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, current.Status, to)
	}
	var submittedAt *time.Time
	if to == StatusSubmitted {
		now := s.now().UTC()
		submittedAt = &now
	}
	if err := s.repo.SetStatus(ctx, id, current.Status, to, submittedAt); err != nil {
		return RFP{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "status", "rfp", id, map[string]any{"from": current.Status, "to": to})); err != nil {
		return RFP{}, err
	}
	return s.repo.Get(ctx, id)
}

// Upcoming returns open RFPs due within days, soonest first.
func (s *Service) Upcoming(ctx context.Context, days int) ([]Upcoming, error) {
	if days <= 0 {
		days = DefaultUpcomingDays
	}
	today := shared.NewDate(s.now())
	items, err := s.repo.DueBetween(ctx, today, today.AddDays(days))
	if err != nil {
		return nil, fmt.Errorf("upcoming rfps: %w", err)
	}
	out := make([]Upcoming, 0, len(items))
	for _, item := range items {
		out = append(out, Upcoming{RFP: item, DaysRemaining: today.DaysUntil(item.DueDate)})
	}
	return out, nil
}

// Draft generates a response draft without persisting it.
func (s *Service) Draft(ctx context.Context, id int64, instructions string) (drafting.Draft, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return drafting.Draft{}, err
	}
	if s.drafter == nil {
		return drafting.Draft{}, fmt.Errorf("%w: drafting is not configured", shared.ErrUnavailable)
	}
	facts := []string{"Due " + item.DueDate.String()}
	if item.ReferenceNo != "" {
		facts = append(facts, "Reference "+item.ReferenceNo)
	}
	if item.Summary != "" {
		facts = append(facts, item.Summary)
	}
	return s.drafter.Draft(ctx, drafting.Request{
		Kind:         drafting.KindRFPResponse,
		Subject:      item.Title,
		Organisation: item.IssuerName,
		Facts:        facts,
		Instructions: instructions,
	})
}

// SaveResponse persists the response text.
func (s *Service) SaveResponse(ctx context.Context, id int64, text string) (RFP, error) {
	if err := s.repo.SetResponse(ctx, id, text); err != nil {
		return RFP{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "save_response", "rfp", id, map[string]any{"length": len(text)})); err != nil {
		return RFP{}, err
	}
	return s.repo.Get(ctx, id)
}

// Export returns the RFPs to include in an export.
func (s *Service) Export(ctx context.Context, f Filter) ([]RFP, error) {
	items, err := s.repo.All(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("export rfps: %w", err)
	}
	return items, nil
}

func fromRequest(req Request) RFP {
	var value *float64
	if req.EstimatedValue != nil {
		v := shared.RoundCents(*req.EstimatedValue)
		value = &v
	}
	return RFP{
		Title:          strings.TrimSpace(req.Title),
		IssuerName:     strings.TrimSpace(req.IssuerName),
		CompanyID:      req.CompanyID,
		ReferenceNo:    strings.TrimSpace(req.ReferenceNo),
		DueDate:        req.DueDate,
		EstimatedValue: value,
		OwnerID:        req.OwnerID,
		Summary:        req.Summary,
	}
}
