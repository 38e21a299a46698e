// Package recruiting manages hiring requisitions and their approval workflow.
package recruiting

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bizportal/portal/internal/rbac"
	"github.com/bizportal/portal/internal/shared"
	"github.com/bizportal/portal/jobs"
)

// RepositoryPort defines persistence used by the recruiting service.
type RepositoryPort interface {
	List(ctx context.Context, params shared.ListParams, f Filter) ([]Requisition, int, error)
	All(ctx context.Context, f Filter) ([]Requisition, error)
	Get(ctx context.Context, id int64) (Requisition, error)
	Create(ctx context.Context, in Requisition) (int64, error)
	Update(ctx context.Context, in Requisition) error
	Delete(ctx context.Context, id int64) error
	ReplaceRoles(ctx context.Context, id int64, roles []Role) error
	SetStatus(ctx context.Context, id int64, from, to Status, change StatusChange) error
	SetRoleFilled(ctx context.Context, requisitionID, roleID int64, filled int) error
	UserEmail(ctx context.Context, userID int64) (string, error)
	EmailsWithPermission(ctx context.Context, perm string) ([]string, error)
}

// ApprovalLogger records and lists approval history.
type ApprovalLogger interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref int64) ([]shared.ApprovalLog, error)
}

// MailEnqueuer queues notification mail.
type MailEnqueuer interface {
	EnqueueMail(ctx context.Context, payload jobs.MailPayload) error
}

const approvalModule = "recruiting"

// Service implements requisition workflows.
type Service struct {
	repo      RepositoryPort
	approvals ApprovalLogger
	mail      MailEnqueuer
	audit     shared.Auditor
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds the service. approvals and mail may be nil.
func NewService(repo RepositoryPort, approvals ApprovalLogger, mail MailEnqueuer, audit shared.Auditor, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, approvals: approvals, mail: mail, audit: audit, logger: logger, now: time.Now}
}

// ============================================================================
// CRUD
// ============================================================================

// List returns a page of requisitions.
func (s *Service) List(ctx context.Context, params shared.ListParams, f Filter) (shared.Page[Requisition], error) {
	items, total, err := s.repo.List(ctx, params, f)
	if err != nil {
		return shared.Page[Requisition]{}, fmt.Errorf("list requisitions: %w", err)
	}
	return shared.NewPage(items, params, total), nil
}

// Get returns a requisition with roles and totals.
func (s *Service) Get(ctx context.Context, id int64) (Requisition, error) {
	return s.repo.Get(ctx, id)
}

// Approvals returns the approval history of a requisition, oldest first.
func (s *Service) Approvals(ctx context.Context, id int64) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return []shared.ApprovalLog{}, nil
	}
	logs, err := s.approvals.List(ctx, approvalModule, id)
	if err != nil {
		return nil, fmt.Errorf("list requisition approvals: %w", err)
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	return logs, nil
}

// Create opens a draft requisition.
func (s *Service) Create(ctx context.Context, req Request) (Requisition, error) {
	roles, err := toRoles(req.Roles)
	if err != nil {
		return Requisition{}, err
	}
	in := fromRequest(req)
	in.Status = StatusDraft
	in.Roles = roles
	if actor := shared.ActorID(ctx); actor != 0 {
		in.CreatedBy = &actor
	}
	id, err := s.repo.Create(ctx, in)
	if err != nil {
		return Requisition{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "create", "requisition", id, map[string]any{"title": in.Title})); err != nil {
		return Requisition{}, err
	}
	return s.repo.Get(ctx, id)
}

// Update edits a draft or rejected requisition. Roles in the request are ignored; use ReplaceRoles.
func (s *Service) Update(ctx context.Context, id int64, req Request) (Requisition, error) {
	current, err := s.editable(ctx, id)
	if err != nil {
		return Requisition{}, err
	}
	in := fromRequest(req)
	in.ID = current.ID
	if err := s.repo.Update(ctx, in); err != nil {
		return Requisition{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "update", "requisition", id, nil)); err != nil {
		return Requisition{}, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a draft or rejected requisition.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.editable(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return s.audit.Record(ctx, shared.AuditEntry(ctx, "delete", "requisition", id, nil))
}

// ReplaceRoles swaps the roles wholesale and returns the reconciled requisition.
func (s *Service) ReplaceRoles(ctx context.Context, id int64, req RolesRequest) (Requisition, error) {
	if _, err := s.editable(ctx, id); err != nil {
		return Requisition{}, err
	}
	roles, err := toRoles(req.Roles)
	if err != nil {
		return Requisition{}, err
	}
	if err := s.repo.ReplaceRoles(ctx, id, roles); err != nil {
		return Requisition{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "replace_roles", "requisition", id, map[string]any{"roles": len(roles)})); err != nil {
		return Requisition{}, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) editable(ctx context.Context, id int64) (Requisition, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Requisition{}, err
	}
	if !current.Status.Editable() {
		return Requisition{}, fmt.Errorf("%w: requisition is %s and can no longer be edited", shared.ErrInvalidTransition, current.Status)
	}
	return current, nil
}

// ============================================================================
// WORKFLOW
// ============================================================================

// Submit sends a draft or rejected requisition for approval.
func (s *Service) Submit(ctx context.Context, id int64) (Requisition, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Requisition{}, err
	}
	if !current.Status.Editable() {
		return Requisition{}, fmt.Errorf("%w: cannot submit a %s requisition", shared.ErrInvalidTransition, current.Status)
	}
	if len(current.Roles) == 0 {
		return Requisition{}, shared.NewValidationError("roles", "at least one role is required to submit")
	}
	if err := s.repo.SetStatus(ctx, id, current.Status, StatusPendingApproval, StatusChange{}); err != nil {
		return Requisition{}, err
	}
	out, err := s.afterTransition(ctx, id, shared.ApprovalSubmit, "")
	if err != nil {
		return Requisition{}, err
	}
	s.notify(ctx, "requisition_submitted", s.approvers(ctx),
		fmt.Sprintf("Requisition %q awaits approval", out.Title),
		fmt.Sprintf("Requisition #%d %q (%d seats, %s) was submitted for approval.", out.ID, out.Title, out.TotalHeadcount, orDash(out.Department)))
	return out, nil
}

// Approve approves a pending requisition. An already staffed requisition becomes filled.
func (s *Service) Approve(ctx context.Context, id int64) (Requisition, error) {
	current, err := s.pending(ctx, id)
	if err != nil {
		return Requisition{}, err
	}
	actor := shared.ActorID(ctx)
	now := s.now().UTC()
	change := StatusChange{ApprovedAt: &now}
	if actor != 0 {
		change.ApprovedBy = &actor
	}
	to := StatusApproved
	if current.FullyStaffed() {
		to = StatusFilled
	}
	if err := s.repo.SetStatus(ctx, id, StatusPendingApproval, to, change); err != nil {
		return Requisition{}, err
	}
	out, err := s.afterTransition(ctx, id, shared.ApprovalApprove, "")
	if err != nil {
		return Requisition{}, err
	}
	s.notify(ctx, "requisition_approved", s.manager(ctx, out),
		fmt.Sprintf("Requisition %q approved", out.Title),
		fmt.Sprintf("Requisition #%d %q was approved. Recruiting can start on %d seats.", out.ID, out.Title, out.TotalHeadcount))
	return out, nil
}

// Reject returns a pending requisition to its owner with a reason.
func (s *Service) Reject(ctx context.Context, id int64, reason string) (Requisition, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Requisition{}, shared.NewValidationError("reason", "is required")
	}
	if _, err := s.pending(ctx, id); err != nil {
		return Requisition{}, err
	}
	if err := s.repo.SetStatus(ctx, id, StatusPendingApproval, StatusRejected, StatusChange{RejectedReason: reason}); err != nil {
		return Requisition{}, err
	}
	out, err := s.afterTransition(ctx, id, shared.ApprovalReject, reason)
	if err != nil {
		return Requisition{}, err
	}
	s.notify(ctx, "requisition_rejected", s.manager(ctx, out),
		fmt.Sprintf("Requisition %q rejected", out.Title),
		fmt.Sprintf("Requisition #%d %q was rejected: %s", out.ID, out.Title, reason))
	return out, nil
}

// Cancel withdraws a requisition that is not yet filled.
func (s *Service) Cancel(ctx context.Context, id int64) (Requisition, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Requisition{}, err
	}
	if current.Status.Closed() {
		return Requisition{}, fmt.Errorf("%w: requisition is already %s", shared.ErrInvalidTransition, current.Status)
	}
	if err := s.repo.SetStatus(ctx, id, current.Status, StatusCancelled, StatusChange{RejectedReason: current.RejectedReason}); err != nil {
		return Requisition{}, err
	}
	return s.afterTransition(ctx, id, shared.ApprovalCancel, "")
}

// SetRoleFilled records hires against a role of an approved requisition and
// moves the requisition between approved and filled as headcount changes.
func (s *Service) SetRoleFilled(ctx context.Context, id, roleID int64, filled int) (Requisition, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Requisition{}, err
	}
	if current.Status != StatusApproved && current.Status != StatusFilled {
		return Requisition{}, fmt.Errorf("%w: seats can only be filled on approved requisitions", shared.ErrInvalidTransition)
	}
	var role *Role
	for i := range current.Roles {
		if current.Roles[i].ID == roleID {
			role = &current.Roles[i]
		}
	}
	if role == nil {
		return Requisition{}, shared.ErrNotFound
	}
	if filled < 0 || filled > role.Count {
		return Requisition{}, shared.NewValidationError("filled", fmt.Sprintf("must be between 0 and %d", role.Count))
	}
	if err := s.repo.SetRoleFilled(ctx, id, roleID, filled); err != nil {
		return Requisition{}, err
	}
	role.Filled = filled
	current.Reconcile()

	switch {
	case current.Status == StatusApproved && current.FullyStaffed():
		err = s.repo.SetStatus(ctx, id, StatusApproved, StatusFilled, StatusChange{})
	case current.Status == StatusFilled && !current.FullyStaffed():
		err = s.repo.SetStatus(ctx, id, StatusFilled, StatusApproved, StatusChange{})
	}
	if err != nil {
		return Requisition{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "fill_role", "requisition", id, map[string]any{"role_id": roleID, "filled": filled})); err != nil {
		return Requisition{}, err
	}
	return s.repo.Get(ctx, id)
}

// Export returns requisitions for an export.
func (s *Service) Export(ctx context.Context, f Filter) ([]Requisition, error) {
	items, err := s.repo.All(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("export requisitions: %w", err)
	}
	return items, nil
}

func (s *Service) pending(ctx context.Context, id int64) (Requisition, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Requisition{}, err
	}
	if current.Status != StatusPendingApproval {
		return Requisition{}, fmt.Errorf("%w: requisition is %s, not pending approval", shared.ErrInvalidTransition, current.Status)
	}
	return current, nil
}

func (s *Service) afterTransition(ctx context.Context, id int64, action shared.ApprovalAction, note string) (Requisition, error) {
	actor := shared.ActorID(ctx)
	if s.approvals != nil && actor != 0 {
		if err := s.approvals.Record(ctx, shared.ApprovalLog{Module: approvalModule, RefID: id, ActorID: actor, Action: action, Note: note}); err != nil {
			return Requisition{}, err
		}
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, strings.ToLower(string(action)), "requisition", id, nil)); err != nil {
		return Requisition{}, err
	}
	return s.repo.Get(ctx, id)
}

// ============================================================================
// NOTIFICATIONS
// ============================================================================

func (s *Service) approvers(ctx context.Context) []string {
	emails, err := s.repo.EmailsWithPermission(ctx, rbac.PermRecruitingApprove)
	if err != nil {
		s.logger.Warn("resolve requisition approvers", slog.Any("error", err))
	}
	return emails
}

func (s *Service) manager(ctx context.Context, r Requisition) []string {
	var out []string
	for _, id := range []*int64{r.HiringManagerID, r.CreatedBy} {
		if id == nil {
			continue
		}
		email, err := s.repo.UserEmail(ctx, *id)
		if err != nil {
			s.logger.Debug("resolve requisition recipient", slog.Int64("user_id", *id), slog.Any("error", err))
			continue
		}
		if !slices.Contains(out, email) {
			out = append(out, email)
		}
	}
	return out
}

// notify queues mail. Delivery problems never fail the workflow action.
func (s *Service) notify(ctx context.Context, template string, to []string, subject, body string) {
	if s.mail == nil || len(to) == 0 {
		return
	}
	if err := s.mail.EnqueueMail(ctx, jobs.MailPayload{Template: template, To: to, Subject: subject, Body: body}); err != nil {
		s.logger.Warn("enqueue requisition mail", slog.String("template", template), slog.Any("error", err))
	}
}

func fromRequest(req Request) Requisition {
	return Requisition{
		Title:           strings.TrimSpace(req.Title),
		Department:      strings.TrimSpace(req.Department),
		AccountID:       req.AccountID,
		HiringManagerID: req.HiringManagerID,
		Justification:   req.Justification,
		TargetStartDate: req.TargetStartDate,
	}
}

func orDash(s string) string {
	if s == "" {
		return "no department"
	}
	return s
}
