package recruiting

import (
	"strings"
	"time"

	"github.com/bizportal/portal/internal/shared"
)

// Status is the lifecycle state of a requisition.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusFilled          Status = "filled"
	StatusCancelled       Status = "cancelled"
)

// Editable reports whether fields and roles may change.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusRejected
}

// Closed reports whether the requisition accepts no further actions.
func (s Status) Closed() bool {
	return s == StatusFilled || s == StatusCancelled
}

// Requisition is a request to hire one or more roles.
type Requisition struct {
	ID              int64        `json:"id"`
	Title           string       `json:"title"`
	Department      string       `json:"department"`
	AccountID       *int64       `json:"account_id"`
	HiringManagerID *int64       `json:"hiring_manager_id"`
	Justification   string       `json:"justification"`
	Status          Status       `json:"status"`
	TargetStartDate *shared.Date `json:"target_start_date"`
	Roles           []Role       `json:"roles"`
	TotalHeadcount  int          `json:"total_headcount"`
	FilledHeadcount int          `json:"filled_headcount"`
	FillPercent     float64      `json:"fill_percent"`
	ApprovedBy      *int64       `json:"approved_by"`
	ApprovedAt      *time.Time   `json:"approved_at"`
	RejectedReason  string       `json:"rejected_reason"`
	CreatedBy       *int64       `json:"created_by"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Role is one position line on a requisition.
type Role struct {
	ID            int64    `json:"id"`
	RequisitionID int64    `json:"requisition_id"`
	RoleTitle     string   `json:"role_title"`
	Count         int      `json:"count"`
	Filled        int      `json:"filled"`
	Shift         string   `json:"shift"`
	BillRate      *float64 `json:"bill_rate"`
}

// Reconcile recomputes headcount totals from the roles.
func (r *Requisition) Reconcile() {
	if r.Roles == nil {
		r.Roles = []Role{}
	}
	total, filled := 0, 0
	for _, role := range r.Roles {
		total += role.Count
		filled += role.Filled
	}
	r.TotalHeadcount = total
	r.FilledHeadcount = filled
	r.FillPercent = shared.Percent(float64(filled), float64(total))
}

// FullyStaffed reports whether every requested seat is filled.
func (r Requisition) FullyStaffed() bool {
	return r.TotalHeadcount > 0 && r.FilledHeadcount >= r.TotalHeadcount
}

// Request creates or updates a requisition.
type Request struct {
	Title           string        `json:"title" validate:"required,max=200"`
	Department      string        `json:"department" validate:"max=120"`
	AccountID       *int64        `json:"account_id"`
	HiringManagerID *int64        `json:"hiring_manager_id"`
	Justification   string        `json:"justification" validate:"max=4000"`
	TargetStartDate *shared.Date  `json:"target_start_date"`
	Roles           []RoleRequest `json:"roles" validate:"omitempty,max=50,dive"`
}

// RoleRequest describes one role line.
type RoleRequest struct {
	RoleTitle string   `json:"role_title" validate:"required,max=200"`
	Count     int      `json:"count" validate:"min=1,max=1000"`
	Filled    int      `json:"filled" validate:"gte=0"`
	Shift     string   `json:"shift" validate:"max=40"`
	BillRate  *float64 `json:"bill_rate" validate:"omitempty,gte=0"`
}

// RolesRequest replaces the roles of a requisition.
type RolesRequest struct {
	Roles []RoleRequest `json:"roles" validate:"max=50,dive"`
}

// RejectRequest carries the rejection reason.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// FilledRequest sets how many seats of a role are filled.
type FilledRequest struct {
	Filled int `json:"filled" validate:"gte=0"`
}

// Filter narrows requisition listings.
type Filter struct {
	Status     Status
	Department string
	AccountID  *int64
}

func toRoles(in []RoleRequest) ([]Role, error) {
	out := make([]Role, 0, len(in))
	for _, r := range in {
		if r.Filled > r.Count {
			return nil, shared.NewValidationError("roles", "filled cannot exceed count for role "+strings.TrimSpace(r.RoleTitle))
		}
		var rate *float64
		if r.BillRate != nil {
			v := shared.RoundCents(*r.BillRate)
			rate = &v
		}
		out = append(out, Role{RoleTitle: strings.TrimSpace(r.RoleTitle), Count: r.Count, Filled: r.Filled, Shift: strings.TrimSpace(r.Shift), BillRate: rate})
	}
	return out, nil
}
