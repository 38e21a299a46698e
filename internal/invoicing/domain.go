package invoicing

import (
	"time"

	"github.com/bizportal/portal/internal/shared"
)

// Status is the lifecycle state of an invoice.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusSent      Status = "sent"
	StatusPaid      Status = "paid"
	StatusVoid      Status = "void"
)

var transitions = map[Status][]Status{
	StatusDraft:     {StatusSubmitted, StatusVoid},
	StatusSubmitted: {StatusApproved, StatusDraft, StatusVoid},
	StatusApproved:  {StatusSent, StatusVoid},
	StatusSent:      {StatusPaid, StatusVoid},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Outstanding reports whether the invoice is billed but unpaid.
func (s Status) Outstanding() bool {
	return s == StatusApproved || s == StatusSent
}

// DefaultCurrency is used when a request omits currency.
const DefaultCurrency = "USD"

// Invoice bills a client for staffed roles over a period.
type Invoice struct {
	ID          int64        `json:"id"`
	Number      string       `json:"number"`
	AccountID   *int64       `json:"account_id"`
	ClientName  string       `json:"client_name"`
	PeriodStart shared.Date  `json:"period_start"`
	PeriodEnd   shared.Date  `json:"period_end"`
	DueDate     *shared.Date `json:"due_date"`
	Currency    string       `json:"currency"`
	TaxRate     float64      `json:"tax_rate"`
	Status      Status       `json:"status"`
	Notes       string       `json:"notes"`
	Roles       []Role       `json:"roles"`
	Subtotal    float64      `json:"subtotal"`
	TaxAmount   float64      `json:"tax_amount"`
	Total       float64      `json:"total"`
	ApprovedBy  *int64       `json:"approved_by"`
	CreatedBy   *int64       `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Role is one billed line.
type Role struct {
	ID        int64   `json:"id"`
	InvoiceID int64   `json:"invoice_id"`
	RoleName  string  `json:"role_name"`
	Headcount int     `json:"headcount"`
	Hours     float64 `json:"hours"`
	Rate      float64 `json:"rate"`
	Amount    float64 `json:"amount"`
}

// Recalculate derives line amounts and totals. Every amount is rounded to cents.
func (inv *Invoice) Recalculate() {
	if inv.Roles == nil {
		inv.Roles = []Role{}
	}
	var subtotal float64
	for i := range inv.Roles {
		inv.Roles[i].Amount = shared.RoundCents(inv.Roles[i].Hours * inv.Roles[i].Rate)
		subtotal += inv.Roles[i].Amount
	}
	inv.Subtotal = shared.RoundCents(subtotal)
	inv.TaxAmount = shared.RoundCents(inv.Subtotal * inv.TaxRate / 100)
	inv.Total = shared.RoundCents(inv.Subtotal + inv.TaxAmount)
}

// Comment is a note left on an invoice.
type Comment struct {
	ID         int64     `json:"id"`
	InvoiceID  int64     `json:"invoice_id"`
	AuthorID   *int64    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// Request creates or updates an invoice.
type Request struct {
	AccountID   *int64        `json:"account_id"`
	ClientName  string        `json:"client_name" validate:"required,max=200"`
	PeriodStart shared.Date   `json:"period_start" validate:"required"`
	PeriodEnd   shared.Date   `json:"period_end" validate:"required"`
	DueDate     *shared.Date  `json:"due_date"`
	Currency    string        `json:"currency" validate:"omitempty,len=3,alpha"`
	TaxRate     float64       `json:"tax_rate" validate:"gte=0,lte=100"`
	Notes       string        `json:"notes" validate:"max=4000"`
	Roles       []RoleRequest `json:"roles" validate:"omitempty,max=100,dive"`
}

// RoleRequest describes a billed line.
type RoleRequest struct {
	RoleName  string  `json:"role_name" validate:"required,max=200"`
	Headcount int     `json:"headcount" validate:"gte=0"`
	Hours     float64 `json:"hours" validate:"gte=0"`
	Rate      float64 `json:"rate" validate:"gte=0"`
}

// RolesRequest replaces every line.
type RolesRequest struct {
	Roles []RoleRequest `json:"roles" validate:"max=100,dive"`
}

// TransitionRequest moves an invoice through its lifecycle.
type TransitionRequest struct {
	Status Status `json:"status" validate:"required,oneof=draft submitted approved sent paid void"`
}

// CommentRequest adds a comment.
type CommentRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

// Filter narrows invoice listings.
type Filter struct {
	Status     Status
	AccountID  *int64
	PeriodFrom *shared.Date
	PeriodTo   *shared.Date
}
