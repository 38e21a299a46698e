// Package onboarding tracks new hires through a staged onboarding checklist.
package onboarding

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bizportal/portal/internal/shared"
	"github.com/bizportal/portal/jobs"
)

// RepositoryPort defines persistence used by the onboarding service.
type RepositoryPort interface {
	List(ctx context.Context, params shared.ListParams, f Filter) ([]NewHire, int, error)
	Get(ctx context.Context, id int64) (NewHire, error)
	Create(ctx context.Context, h NewHire, items []ChecklistItem) (int64, error)
	Update(ctx context.Context, h NewHire, previousStart shared.Date) error
	SetStatus(ctx context.Context, id int64, status Status) error
	Delete(ctx context.Context, id int64) error
	Items(ctx context.Context, newHireID int64) ([]ChecklistItem, error)
	GetItem(ctx context.Context, id int64) (ChecklistItem, error)
	SetItemCompleted(ctx context.Context, id int64, completed bool, by *int64, at *time.Time) error
	AddItem(ctx context.Context, it ChecklistItem) (int64, error)
	DeleteItem(ctx context.Context, id int64) error
	OverdueItems(ctx context.Context, asOf shared.Date) ([]OverdueItem, error)
}

// Service implements onboarding workflows.
type Service struct {
	repo  RepositoryPort
	audit shared.Auditor
	now   func() time.Time
}

// NewService builds the service.
func NewService(repo RepositoryPort, audit shared.Auditor) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// List returns a page of new hires.
func (s *Service) List(ctx context.Context, params shared.ListParams, f Filter) (shared.Page[NewHire], error) {
	items, total, err := s.repo.List(ctx, params, f)
	if err != nil {
		return shared.Page[NewHire]{}, fmt.Errorf("list new hires: %w", err)
	}
	return shared.NewPage(items, params, total), nil
}

// Get returns one new hire.
func (s *Service) Get(ctx context.Context, id int64) (NewHire, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a new hire and seeds the default checklist.
func (s *Service) Create(ctx context.Context, req Request) (NewHire, error) {
	h := fromRequest(req)
	h.Status = StatusPending
	items := make([]ChecklistItem, 0, len(DefaultChecklist))
	for i, tpl := range DefaultChecklist {
		items = append(items, ChecklistItem{
			Stage:    tpl.Stage,
			Title:    tpl.Title,
			Owner:    tpl.Owner,
			DueDate:  tpl.Stage.DueDate(h.StartDate),
			Position: i,
		})
	}
	id, err := s.repo.Create(ctx, h, items)
	if err != nil {
		return NewHire{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "create", "new_hire", id, map[string]any{"email": h.Email})); err != nil {
		return NewHire{}, err
	}
	return s.repo.Get(ctx, id)
}

// Update edits hire details. Moving the start date moves every due date with it.
func (s *Service) Update(ctx context.Context, id int64, req Request) (NewHire, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return NewHire{}, err
	}
	h := fromRequest(req)
	h.ID = id
	if err := s.repo.Update(ctx, h, current.StartDate); err != nil {
		return NewHire{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "update", "new_hire", id, nil)); err != nil {
		return NewHire{}, err
	}
	return s.repo.Get(ctx, id)
}

// SetStatus changes the status directly, used to withdraw or reinstate a hire.
func (s *Service) SetStatus(ctx context.Context, id int64, status Status) (NewHire, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return NewHire{}, err
	}
	if current.Status == status {
		return current, nil
	}
	switch status {
	case StatusWithdrawn:
		if current.Status == StatusCompleted {
			return NewHire{}, fmt.Errorf("%w: a completed onboarding cannot be withdrawn", shared.ErrInvalidTransition)
		}
	case StatusPending, StatusInProgress, StatusCompleted:
		if current.Status != StatusWithdrawn {
			return NewHire{}, fmt.Errorf("%w: status follows checklist progress", shared.ErrInvalidTransition)
		}
		status = NextStatus(StatusPending, current.ItemsDone, current.ItemsTotal)
	default:
		return NewHire{}, shared.NewValidationError("status", "unknown status")
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return NewHire{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "status", "new_hire", id, map[string]any{"from": current.Status, "to": status})); err != nil {
		return NewHire{}, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a new hire.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return s.audit.Record(ctx, shared.AuditEntry(ctx, "delete", "new_hire", id, nil))
}

// ============================================================================
// CHECKLIST
// ============================================================================

// Checklist returns the staged checklist of a new hire.
func (s *Service) Checklist(ctx context.Context, newHireID int64) (Checklist, error) {
	h, err := s.repo.Get(ctx, newHireID)
	if err != nil {
		return Checklist{}, err
	}
	items, err := s.repo.Items(ctx, newHireID)
	if err != nil {
		return Checklist{}, fmt.Errorf("load checklist: %w", err)
	}
	return BuildChecklist(h, items), nil
}

// ToggleItem completes or reopens an item and returns the recomputed checklist.
func (s *Service) ToggleItem(ctx context.Context, itemID int64, completed bool) (Checklist, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return Checklist{}, err
	}
	h, err := s.repo.Get(ctx, item.NewHireID)
	if err != nil {
		return Checklist{}, err
	}
	if h.Status == StatusWithdrawn {
		return Checklist{}, fmt.Errorf("%w: new hire was withdrawn", shared.ErrInvalidTransition)
	}
	if item.Completed != completed {
		var by *int64
		if actor := shared.ActorID(ctx); actor != 0 {
			by = &actor
		}
		now := s.now().UTC()
		if err := s.repo.SetItemCompleted(ctx, itemID, completed, by, &now); err != nil {
			return Checklist{}, err
		}
		if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "toggle_item", "new_hire", h.ID, map[string]any{"item_id": itemID, "completed": completed})); err != nil {
			return Checklist{}, err
		}
	}
	return s.reconcile(ctx, h)
}

// AddItem appends an item to a stage. Without a due date the stage default is used.
func (s *Service) AddItem(ctx context.Context, newHireID int64, req ItemRequest) (Checklist, error) {
	h, err := s.repo.Get(ctx, newHireID)
	if err != nil {
		return Checklist{}, err
	}
	if !req.Stage.Valid() {
		return Checklist{}, shared.NewValidationError("stage", "unknown stage")
	}
	item := ChecklistItem{
		NewHireID: newHireID,
		Stage:     req.Stage,
		Title:     strings.TrimSpace(req.Title),
		Owner:     strings.TrimSpace(req.Owner),
		DueDate:   req.Stage.DueDate(h.StartDate),
	}
	if req.DueDate != nil {
		item.DueDate = *req.DueDate
	}
	id, err := s.repo.AddItem(ctx, item)
	if err != nil {
		return Checklist{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "add_item", "new_hire", newHireID, map[string]any{"item_id": id})); err != nil {
		return Checklist{}, err
	}
	return s.reconcile(ctx, h)
}

// DeleteItem removes an item and returns the recomputed checklist.
func (s *Service) DeleteItem(ctx context.Context, itemID int64) (Checklist, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return Checklist{}, err
	}
	h, err := s.repo.Get(ctx, item.NewHireID)
	if err != nil {
		return Checklist{}, err
	}
	if err := s.repo.DeleteItem(ctx, itemID); err != nil {
		return Checklist{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "delete_item", "new_hire", h.ID, map[string]any{"item_id": itemID})); err != nil {
		return Checklist{}, err
	}
	return s.reconcile(ctx, h)
}

// reconcile reloads the checklist and moves the hire status to match progress.
func (s *Service) reconcile(ctx context.Context, h NewHire) (Checklist, error) {
	items, err := s.repo.Items(ctx, h.ID)
	if err != nil {
		return Checklist{}, fmt.Errorf("load checklist: %w", err)
	}
	next := NextStatus(h.Status, countDone(items), len(items))
	if next != h.Status {
		if err := s.repo.SetStatus(ctx, h.ID, next); err != nil {
			return Checklist{}, err
		}
		h.Status = next
	}
	return BuildChecklist(h, items), nil
}

// ============================================================================
// REMINDERS
// ============================================================================

// DueReminders builds one mail per recipient listing overdue items as of asOf.
// Items owned by the manager or the new hire go to them; every other item goes
// to the hire's manager.
func (s *Service) DueReminders(ctx context.Context, asOf time.Time) ([]jobs.MailPayload, error) {
	items, err := s.repo.OverdueItems(ctx, shared.NewDate(asOf))
	if err != nil {
		return nil, fmt.Errorf("load overdue items: %w", err)
	}
	byRecipient := map[string][]OverdueItem{}
	for _, it := range items {
		to := recipient(it)
		if to == "" {
			continue
		}
		byRecipient[to] = append(byRecipient[to], it)
	}
	recipients := make([]string, 0, len(byRecipient))
	for to := range byRecipient {
		recipients = append(recipients, to)
	}
	sort.Strings(recipients)

	out := make([]jobs.MailPayload, 0, len(recipients))
	for _, to := range recipients {
		pending := byRecipient[to]
		var b strings.Builder
		b.WriteString("The following onboarding tasks are overdue:\n\n")
		for _, it := range pending {
			fmt.Fprintf(&b, "- %s: %s (due %s)\n", it.HireName, it.Title, it.DueDate)
		}
		out = append(out, jobs.MailPayload{
			Template: "onboarding_reminder",
			To:       []string{to},
			Subject:  fmt.Sprintf("%d overdue onboarding task(s)", len(pending)),
			Body:     b.String(),
		})
	}
	return out, nil
}

func recipient(it OverdueItem) string {
	switch {
	case strings.Contains(it.Owner, "@"):
		return it.Owner
	case it.Owner == OwnerNewHire:
		return it.HireEmail
	default:
		return it.ManagerEmail
	}
}

func fromRequest(req Request) NewHire {
	return NewHire{
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
		Position:      strings.TrimSpace(req.Position),
		RequisitionID: req.RequisitionID,
		ManagerID:     req.ManagerID,
		StartDate:     req.StartDate,
	}
}
