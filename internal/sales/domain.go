package sales

import (
	"time"

	"github.com/bizportal/portal/internal/shared"
)

// CompanyStatus tracks where an account sits in the sales lifecycle.
type CompanyStatus string

const (
	CompanyProspect     CompanyStatus = "prospect"
	CompanyActive       CompanyStatus = "active"
	CompanyCustomer     CompanyStatus = "customer"
	CompanyChurned      CompanyStatus = "churned"
	CompanyDisqualified CompanyStatus = "disqualified"
)

// ATS providers polled for job signals.
const (
	ATSGreenhouse = "greenhouse"
	ATSLever      = "lever"
)

// SignalSource identifies where a job signal came from.
type SignalSource string

const (
	SourceManual     SignalSource = "manual"
	SourceGreenhouse SignalSource = "greenhouse"
	SourceLever      SignalSource = "lever"
)

// SignalStatus is the triage state of a job signal.
type SignalStatus string

const (
	SignalNew       SignalStatus = "new"
	SignalReviewed  SignalStatus = "reviewed"
	SignalActioned  SignalStatus = "actioned"
	SignalDismissed SignalStatus = "dismissed"
)

// Stage is a pipeline opportunity stage.
type Stage string

const (
	StageLead        Stage = "lead"
	StageQualified   Stage = "qualified"
	StageProposal    Stage = "proposal"
	StageNegotiation Stage = "negotiation"
	StageClosedWon   Stage = "closed_won"
	StageClosedLost  Stage = "closed_lost"
)

// Stages lists pipeline stages in funnel order.
var Stages = []Stage{StageLead, StageQualified, StageProposal, StageNegotiation, StageClosedWon, StageClosedLost}

var defaultProbability = map[Stage]int{
	StageLead:        10,
	StageQualified:   25,
	StageProposal:    50,
	StageNegotiation: 75,
	StageClosedWon:   100,
	StageClosedLost:  0,
}

// IsClosed reports whether the stage is terminal.
func (s Stage) IsClosed() bool {
	return s == StageClosedWon || s == StageClosedLost
}

// DefaultProbability returns the win probability assumed for a stage.
func (s Stage) DefaultProbability() int {
	return defaultProbability[s]
}

// Company is a prospect or client organisation.
type Company struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name"`
	Domain        string        `json:"domain"`
	Industry      string        `json:"industry"`
	EmployeeCount *int          `json:"employee_count"`
	HQLocation    string        `json:"hq_location"`
	Website       string        `json:"website"`
	Status        CompanyStatus `json:"status"`
	OwnerID       *int64        `json:"owner_id"`
	ATSProvider   string        `json:"ats_provider"`
	ATSSlug       string        `json:"ats_slug"`
	Notes         string        `json:"notes"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// CompanyDetail is a company with its related records.
type CompanyDetail struct {
	Company
	Contacts      []Contact     `json:"contacts"`
	Signals       []JobSignal   `json:"signals"`
	Opportunities []Opportunity `json:"opportunities"`
}

// Contact is a person at a company.
type Contact struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Title       string    `json:"title"`
	LinkedInURL string    `json:"linkedin_url"`
	IsPrimary   bool      `json:"is_primary"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JobSignal is a hiring signal suggesting outsourcing demand.
type JobSignal struct {
	ID          int64        `json:"id"`
	CompanyID   int64        `json:"company_id"`
	CompanyName string       `json:"company_name,omitempty"`
	Source      SignalSource `json:"source"`
	ExternalID  string       `json:"external_id"`
	Title       string       `json:"title"`
	Location    string       `json:"location"`
	URL         string       `json:"url"`
	Score       int          `json:"score"`
	Tags        []string     `json:"tags"`
	PostedAt    *time.Time   `json:"posted_at"`
	Status      SignalStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Opportunity is a deal in the pipeline.
type Opportunity struct {
	ID            int64        `json:"id"`
	CompanyID     int64        `json:"company_id"`
	CompanyName   string       `json:"company_name,omitempty"`
	ContactID     *int64       `json:"contact_id"`
	Name          string       `json:"name"`
	Stage         Stage        `json:"stage"`
	Value         float64      `json:"value"`
	Probability   int          `json:"probability"`
	Seats         int          `json:"seats"`
	ServiceLine   string       `json:"service_line"`
	ExpectedClose *shared.Date `json:"expected_close"`
	OwnerID       *int64       `json:"owner_id"`
	LostReason    string       `json:"lost_reason"`
	ClosedAt      *time.Time   `json:"closed_at"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// WeightedValue is value × probability / 100.
func (o Opportunity) WeightedValue() float64 {
	return shared.RoundCents(o.Value * float64(o.Probability) / 100)
}

// StageTotal aggregates opportunities in one stage.
type StageTotal struct {
	Stage         Stage   `json:"stage"`
	Count         int     `json:"count"`
	TotalValue    float64 `json:"total_value"`
	WeightedValue float64 `json:"weighted_value"`
}

// PipelineSummary is the funnel overview.
type PipelineSummary struct {
	Stages        []StageTotal `json:"stages"`
	OpenCount     int          `json:"open_count"`
	OpenValue     float64      `json:"open_value"`
	WeightedValue float64      `json:"weighted_value"`
	WonCount      int          `json:"won_count"`
	LostCount     int          `json:"lost_count"`
	WinRate       float64      `json:"win_rate"`
}

// ============================================================================
// REQUESTS
// ============================================================================

// CompanyRequest creates or replaces a company.
type CompanyRequest struct {
	Name          string        `json:"name" validate:"required,max=200"`
	Domain        string        `json:"domain" validate:"omitempty,fqdn"`
	Industry      string        `json:"industry" validate:"max=120"`
	EmployeeCount *int          `json:"employee_count" validate:"omitempty,gte=0"`
	HQLocation    string        `json:"hq_location" validate:"max=200"`
	Website       string        `json:"website" validate:"omitempty,url"`
	Status        CompanyStatus `json:"status" validate:"omitempty,oneof=prospect active customer churned disqualified"`
	OwnerID       *int64        `json:"owner_id"`
	ATSProvider   string        `json:"ats_provider" validate:"omitempty,oneof=greenhouse lever"`
	ATSSlug       string        `json:"ats_slug" validate:"required_with=ATSProvider,max=120"`
	Notes         string        `json:"notes"`
}

// CompanyFilter narrows company listings.
type CompanyFilter struct {
	Status  CompanyStatus
	OwnerID *int64
}

// ContactRequest creates or replaces a contact.
type ContactRequest struct {
	CompanyID   int64  `json:"company_id" validate:"required,gt=0"`
	FirstName   string `json:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"required,max=100"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"max=50"`
	Title       string `json:"title" validate:"max=120"`
	LinkedInURL string `json:"linkedin_url" validate:"omitempty,url"`
	IsPrimary   bool   `json:"is_primary"`
}

// SignalRequest records a manual job signal.
type SignalRequest struct {
	CompanyID int64      `json:"company_id" validate:"required,gt=0"`
	Title     string     `json:"title" validate:"required,max=300"`
	Location  string     `json:"location" validate:"max=200"`
	URL       string     `json:"url" validate:"omitempty,url"`
	Score     int        `json:"score"`
	Tags      []string   `json:"tags"`
	PostedAt  *time.Time `json:"posted_at"`
}

// SignalStatusRequest changes the triage status of a signal.
type SignalStatusRequest struct {
	Status SignalStatus `json:"status" validate:"required,oneof=new reviewed actioned dismissed"`
}

// SignalFilter narrows signal listings.
type SignalFilter struct {
	CompanyID *int64
	Status    SignalStatus
	Source    SignalSource
	MinScore  *int
}

// RefreshSignalsRequest asks the worker to poll ATS boards.
type RefreshSignalsRequest struct {
	CompanyID *int64 `json:"company_id"`
}

// OpportunityRequest creates or replaces an opportunity.
type OpportunityRequest struct {
	CompanyID     int64        `json:"company_id" validate:"required,gt=0"`
	ContactID     *int64       `json:"contact_id"`
	Name          string       `json:"name" validate:"required,max=200"`
	Stage         Stage        `json:"stage" validate:"omitempty,oneof=lead qualified proposal negotiation closed_won closed_lost"`
	Value         float64      `json:"value" validate:"gte=0"`
	Probability   *int         `json:"probability" validate:"omitempty,gte=0,lte=100"`
	Seats         int          `json:"seats" validate:"gte=0"`
	ServiceLine   string       `json:"service_line" validate:"max=120"`
	ExpectedClose *shared.Date `json:"expected_close"`
	OwnerID       *int64       `json:"owner_id"`
	LostReason    string       `json:"lost_reason"`
}

// StageRequest moves an opportunity.
type StageRequest struct {
	Stage      Stage  `json:"stage" validate:"required,oneof=lead qualified proposal negotiation closed_won closed_lost"`
	LostReason string `json:"lost_reason"`
}

// OpportunityFilter narrows opportunity listings.
type OpportunityFilter struct {
	Stage     Stage
	CompanyID *int64
	OwnerID   *int64
	OpenOnly  bool
}
