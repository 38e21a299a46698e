// Package invoicing bills clients for staffed roles and tracks invoices through approval and payment.
package invoicing

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/bizportal/portal/internal/rbac"
	"github.com/bizportal/portal/internal/shared"
)

// RepositoryPort defines persistence used by the invoicing service.
type RepositoryPort interface {
	List(ctx context.Context, params shared.ListParams, f Filter) ([]Invoice, int, error)
	All(ctx context.Context, f Filter) ([]Invoice, error)
	Get(ctx context.Context, id int64) (Invoice, error)
	Create(ctx context.Context, in Invoice, at time.Time) (int64, error)
	Update(ctx context.Context, in Invoice) error
	ReplaceRoles(ctx context.Context, in Invoice) error
	SetStatus(ctx context.Context, id int64, from, to Status, approvedBy *int64) error
	Delete(ctx context.Context, id int64) error
	Comments(ctx context.Context, id int64) ([]Comment, error)
	AddComment(ctx context.Context, c Comment) (Comment, error)
}

// IdempotencyPort guards create requests carrying an Idempotency-Key.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Lookup(ctx context.Context, key, module string) (int64, error)
	Complete(ctx context.Context, key, module string, refID int64) error
	Delete(ctx context.Context, key string) error
}

// ApprovalLogger records and lists approval history.
type ApprovalLogger interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref int64) ([]shared.ApprovalLog, error)
}

const module = "invoicing"

// Service implements invoice workflows.
type Service struct {
	repo      RepositoryPort
	idem      IdempotencyPort
	approvals ApprovalLogger
	pdf       PDFRenderer
	tmpl      *template.Template
	audit     shared.Auditor
	logger    *slog.Logger
	provider  string
	now       func() time.Time
}

// Options carries the optional collaborators of the service.
type Options struct {
	Idempotency IdempotencyPort
	Approvals   ApprovalLogger
	PDF         PDFRenderer
	Audit       shared.Auditor
	Logger      *slog.Logger
	Provider    string
}

// NewService builds the service and parses the invoice template.
func NewService(repo RepositoryPort, opts Options) (*Service, error) {
	tmpl, err := parseTemplate()
	if err != nil {
		return nil, err
	}
	if opts.Audit == nil {
		opts.Audit = shared.NopAuditor{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		idem:      opts.Idempotency,
		approvals: opts.Approvals,
		pdf:       opts.PDF,
		tmpl:      tmpl,
		audit:     opts.Audit,
		logger:    opts.Logger,
		provider:  opts.Provider,
		now:       time.Now,
	}, nil
}

// List returns a page of invoices.
func (s *Service) List(ctx context.Context, params shared.ListParams, f Filter) (shared.Page[Invoice], error) {
	items, total, err := s.repo.List(ctx, params, f)
	if err != nil {
		return shared.Page[Invoice]{}, fmt.Errorf("list invoices: %w", err)
	}
	return shared.NewPage(items, params, total), nil
}

// Get returns an invoice with its roles.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.Get(ctx, id)
}

// Approvals returns the approval history of an invoice, oldest first.
func (s *Service) Approvals(ctx context.Context, id int64) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return []shared.ApprovalLog{}, nil
	}
	logs, err := s.approvals.List(ctx, module, id)
	if err != nil {
		return nil, fmt.Errorf("list invoice approvals: %w", err)
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	return logs, nil
}

// Create opens a draft invoice. When key is set a repeated request returns the
// invoice created by the first one and replayed is true.
func (s *Service) Create(ctx context.Context, key string, req Request) (inv Invoice, replayed bool, err error) {
	in, err := fromRequest(req)
	if err != nil {
		return Invoice{}, false, err
	}
	in.Roles = toRoles(req.Roles)
	in.Status = StatusDraft
	if actor := shared.ActorID(ctx); actor != 0 {
		in.CreatedBy = &actor
	}
	in.Recalculate()

	if key != "" && s.idem != nil {
		err := s.idem.CheckAndInsert(ctx, key, module)
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			ref, err := s.idem.Lookup(ctx, key, module)
			if err != nil {
				return Invoice{}, false, err
			}
			if ref == 0 {
				return Invoice{}, false, fmt.Errorf("%w: request is still being processed", shared.ErrIdempotencyConflict)
			}
			inv, err := s.repo.Get(ctx, ref)
			return inv, err == nil, err
		}
		if err != nil {
			return Invoice{}, false, fmt.Errorf("idempotency check: %w", err)
		}
	}

	id, err := s.repo.Create(ctx, in, s.now().UTC())
	if err != nil {
		if key != "" && s.idem != nil {
			if derr := s.idem.Delete(ctx, key); derr != nil {
				s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
			}
		}
		return Invoice{}, false, err
	}
	if key != "" && s.idem != nil {
		if err := s.idem.Complete(ctx, key, module, id); err != nil {
			s.logger.Warn("complete idempotency key", slog.String("key", key), slog.Any("error", err))
		}
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "create", "invoice", id, map[string]any{"client_name": in.ClientName})); err != nil {
		return Invoice{}, false, err
	}
	inv, err = s.repo.Get(ctx, id)
	return inv, false, err
}

// Update edits the header of a draft invoice and recomputes its totals.
func (s *Service) Update(ctx context.Context, id int64, req Request) (Invoice, error) {
	current, err := s.draft(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	in, err := fromRequest(req)
	if err != nil {
		return Invoice{}, err
	}
	in.ID = id
	in.Roles = current.Roles
	in.Recalculate()
	if err := s.repo.Update(ctx, in); err != nil {
		return Invoice{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "update", "invoice", id, nil)); err != nil {
		return Invoice{}, err
	}
	return s.repo.Get(ctx, id)
}

// ReplaceRoles swaps every line of a draft invoice and returns it with new totals.
func (s *Service) ReplaceRoles(ctx context.Context, id int64, req RolesRequest) (Invoice, error) {
	current, err := s.draft(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	current.Roles = toRoles(req.Roles)
	current.Recalculate()
	if err := s.repo.ReplaceRoles(ctx, current); err != nil {
		return Invoice{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "replace_roles", "invoice", id, map[string]any{"roles": len(current.Roles)})); err != nil {
		return Invoice{}, err
	}
	return s.repo.Get(ctx, id)
}

// Delete removes a draft invoice.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.draft(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return s.audit.Record(ctx, shared.AuditEntry(ctx, "delete", "invoice", id, nil))
}

// Transition moves an invoice to status to. Approval needs the approve permission.
func (s *Service) Transition(ctx context.Context, id int64, to Status) (Invoice, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if !CanTransition(current.Status, to) {
		return Invoice{}, fmt.Errorf("%w: invoice cannot move from %s to %s", shared.ErrInvalidTransition, current.Status, to)
	}
	if to == StatusSubmitted && len(current.Roles) == 0 {
		return Invoice{}, shared.NewValidationError("roles", "at least one role is required before submitting")
	}
	var approvedBy *int64
	if to == StatusApproved {
		p := shared.PrincipalFromContext(ctx)
		if p == nil || !rbac.Allows(p.Permissions, rbac.PermInvoicesApprove) {
			return Invoice{}, fmt.Errorf("%w: approving invoices requires %s", shared.ErrForbidden, rbac.PermInvoicesApprove)
		}
		actor := p.UserID
		approvedBy = &actor
	}
	if err := s.repo.SetStatus(ctx, id, current.Status, to, approvedBy); err != nil {
		return Invoice{}, err
	}
	s.recordApproval(ctx, id, current.Status, to)
	meta := map[string]any{"from": string(current.Status), "to": string(to)}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "transition", "invoice", id, meta)); err != nil {
		return Invoice{}, err
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) recordApproval(ctx context.Context, id int64, from, to Status) {
	if s.approvals == nil {
		return
	}
	var action shared.ApprovalAction
	switch {
	case to == StatusSubmitted:
		action = shared.ApprovalSubmit
	case to == StatusApproved:
		action = shared.ApprovalApprove
	case to == StatusDraft && from == StatusSubmitted:
		action = shared.ApprovalReject
	case to == StatusVoid:
		action = shared.ApprovalCancel
	default:
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{Module: module, RefID: id, ActorID: shared.ActorID(ctx), Action: action})
	if err != nil {
		s.logger.Warn("record invoice approval", slog.Int64("invoice_id", id), slog.Any("error", err))
	}
}

// Comments lists the comments of an invoice.
func (s *Service) Comments(ctx context.Context, id int64) ([]Comment, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Comments(ctx, id)
}

// AddComment attaches a comment authored by the current actor.
func (s *Service) AddComment(ctx context.Context, id int64, req CommentRequest) (Comment, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return Comment{}, shared.NewValidationError("body", "is required")
	}
	c := Comment{InvoiceID: id, Body: body}
	if actor := shared.ActorID(ctx); actor != 0 {
		c.AuthorID = &actor
	}
	if p := shared.PrincipalFromContext(ctx); p != nil {
		c.AuthorName = p.Name
	}
	out, err := s.repo.AddComment(ctx, c)
	if err != nil {
		return Comment{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "comment", "invoice", id, nil)); err != nil {
		return Comment{}, err
	}
	return out, nil
}

// PDF renders an invoice through the PDF service.
func (s *Service) PDF(ctx context.Context, id int64) (File, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return File{}, err
	}
	if s.pdf == nil {
		return File{}, fmt.Errorf("%w: pdf rendering is not configured", shared.ErrUnavailable)
	}
	body, err := s.pdf.RenderTemplate(ctx, s.tmpl, newDocumentView(inv, s.provider))
	if err != nil {
		return File{}, fmt.Errorf("render invoice %s: %w", inv.Number, err)
	}
	return File{Filename: Filename(inv), ContentType: "application/pdf", Body: body}, nil
}

// Export returns every invoice matching f.
func (s *Service) Export(ctx context.Context, f Filter) ([]Invoice, error) {
	items, err := s.repo.All(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("export invoices: %w", err)
	}
	return items, nil
}

func (s *Service) draft(ctx context.Context, id int64) (Invoice, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if current.Status != StatusDraft {
		return Invoice{}, fmt.Errorf("%w: invoice %s is %s and can no longer be edited", shared.ErrInvalidTransition, current.Number, current.Status)
	}
	return current, nil
}

func fromRequest(req Request) (Invoice, error) {
	if req.PeriodEnd.Before(req.PeriodStart.Time) {
		return Invoice{}, shared.NewValidationError("period_end", "must not be before period_start")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	return Invoice{
		AccountID:   req.AccountID,
		ClientName:  strings.TrimSpace(req.ClientName),
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		DueDate:     req.DueDate,
		Currency:    currency,
		TaxRate:     req.TaxRate,
		Notes:       req.Notes,
	}, nil
}

func toRoles(in []RoleRequest) []Role {
	out := make([]Role, 0, len(in))
	for _, r := range in {
		out = append(out, Role{
			RoleName:  strings.TrimSpace(r.RoleName),
			Headcount: r.Headcount,
			Hours:     r.Hours,
			Rate:      shared.RoundCents(r.Rate),
		})
	}
	return out
}
