package rfp

import (
	"time"

	"github.com/bizportal/portal/internal/shared"
)

// Status is the lifecycle state of an RFP.
type Status string

const (
	StatusIdentified Status = "identified"
	StatusReviewing  Status = "reviewing"
	StatusDrafting   Status = "drafting"
	StatusSubmitted  Status = "submitted"
	StatusWon        Status = "won"
	StatusLost       Status = "lost"
	StatusNoBid      Status = "no_bid"
)

var transitions = map[Status][]Status{
	StatusIdentified: {StatusReviewing, StatusNoBid},
	StatusReviewing:  {StatusDrafting, StatusNoBid},
	StatusDrafting:   {StatusSubmitted, StatusNoBid},
	StatusSubmitted:  {StatusWon, StatusLost},
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

// IsOpen reports whether the RFP still needs work before its due date.
func (s Status) IsOpen() bool {
	return s == StatusIdentified || s == StatusReviewing || s == StatusDrafting
}

// RFP is a tracked request for proposal.
type RFP struct {
	ID             int64       `json:"id"`
	Title          string      `json:"title"`
	IssuerName     string      `json:"issuer_name"`
	CompanyID      *int64      `json:"company_id"`
	ReferenceNo    string      `json:"reference_no"`
	Status         Status      `json:"status"`
	DueDate        shared.Date `json:"due_date"`
	SubmittedAt    *time.Time  `json:"submitted_at"`
	EstimatedValue *float64    `json:"estimated_value"`
	OwnerID        *int64      `json:"owner_id"`
	Summary        string      `json:"summary"`
	ResponseDraft  string      `json:"response_draft"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Upcoming is an open RFP with the days left until it is due.
type Upcoming struct {
	RFP
	DaysRemaining int `json:"days_remaining"`
}

// Request creates or replaces an RFP.
type Request struct {
	Title          string      `json:"title" validate:"required,max=300"`
	IssuerName     string      `json:"issuer_name" validate:"required,max=200"`
	CompanyID      *int64      `json:"company_id"`
	ReferenceNo    string      `json:"reference_no" validate:"max=100"`
	DueDate        shared.Date `json:"due_date" validate:"required"`
	EstimatedValue *float64    `json:"estimated_value" validate:"omitempty,gte=0"`
	OwnerID        *int64      `json:"owner_id"`
	Summary        string      `json:"summary"`
}

// StatusRequest moves an RFP through its lifecycle.
type StatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=identified reviewing drafting submitted won lost no_bid"`
}

// DraftRequest asks for an AI response draft.
type DraftRequest struct {
	Instructions string `json:"instructions" validate:"max=2000"`
}

// ResponseRequest persists response text.
type ResponseRequest struct {
	Text string `json:"text"`
}

// Filter narrows RFP listings.
type Filter struct {
	Status    Status
	OwnerID   *int64
	DueBefore *shared.Date
}
