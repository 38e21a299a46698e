package shiftreports

import (
	"time"

	"github.com/bizportal/portal/internal/shared"
)

// Account is a client program staffed by team leaders.
type Account struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	ClientCompanyID *int64    `json:"client_company_id"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// TeamLeader runs shifts on an account.
type TeamLeader struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AccountID *int64    `json:"account_id"`
	UserID    *int64    `json:"user_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Metric is a KPI tracked per shift on an account.
type Metric struct {
	ID             int64   `json:"id"`
	AccountID      int64   `json:"account_id"`
	Name           string  `json:"name"`
	Unit           string  `json:"unit"`
	Target         float64 `json:"target"`
	HigherIsBetter bool    `json:"higher_is_better"`
}

// PriorityStatus tracks an account priority.
type PriorityStatus string

const (
	PriorityOpen       PriorityStatus = "open"
	PriorityInProgress PriorityStatus = "in_progress"
	PriorityDone       PriorityStatus = "done"
)

// Priority is a follow-up item owned by a team leader.
type Priority struct {
	ID          int64          `json:"id"`
	AccountID   int64          `json:"account_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      PriorityStatus `json:"status"`
	DueDate     *shared.Date   `json:"due_date"`
	OwnerID     *int64         `json:"owner_id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Shift names a working block.
type Shift string

const (
	ShiftDay   Shift = "day"
	ShiftSwing Shift = "swing"
	ShiftNight Shift = "night"
)

// Report is the end-of-shift summary a team leader files.
type Report struct {
	ID                int64         `json:"id"`
	AccountID         int64         `json:"account_id"`
	AccountName       string        `json:"account_name"`
	TeamLeaderID      int64         `json:"team_leader_id"`
	TeamLeaderName    string        `json:"team_leader_name"`
	ShiftDate         shared.Date   `json:"shift_date"`
	Shift             Shift         `json:"shift"`
	Scheduled         int           `json:"scheduled"`
	Present           int           `json:"present"`
	Notes             string        `json:"notes"`
	Values            []MetricValue `json:"values"`
	AttendancePercent float64       `json:"attendance_percent"`
	CreatedBy         *int64        `json:"created_by"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// MetricValue is one KPI reading on a report.
type MetricValue struct {
	MetricID       int64   `json:"metric_id"`
	MetricName     string  `json:"metric_name"`
	Unit           string  `json:"unit"`
	Value          float64 `json:"value"`
	Target         float64 `json:"target"`
	HigherIsBetter bool    `json:"higher_is_better"`
	Attainment     float64 `json:"attainment"`
}

// Attainment is value against target as a percentage. When lower is better the
// ratio is inverted. Undefined ratios yield 0.
func Attainment(value, target float64, higherIsBetter bool) float64 {
	if higherIsBetter {
		return shared.Percent(value, target)
	}
	return shared.Percent(target, value)
}

// Derive fills attendance and per-value attainment.
func (r *Report) Derive() {
	r.AttendancePercent = shared.Percent(float64(r.Present), float64(r.Scheduled))
	if r.Values == nil {
		r.Values = []MetricValue{}
	}
	for i := range r.Values {
		v := &r.Values[i]
		v.Attainment = Attainment(v.Value, v.Target, v.HigherIsBetter)
	}
}

// Summary averages reports over a date range.
type Summary struct {
	AccountID         *int64          `json:"account_id"`
	From              *shared.Date    `json:"from"`
	To                *shared.Date    `json:"to"`
	Reports           int             `json:"reports"`
	AttendancePercent float64         `json:"attendance_percent"`
	Metrics           []MetricSummary `json:"metrics"`
}

// MetricSummary averages one metric across reports.
type MetricSummary struct {
	MetricID          int64   `json:"metric_id"`
	Name              string  `json:"name"`
	Unit              string  `json:"unit"`
	Target            float64 `json:"target"`
	Samples           int     `json:"samples"`
	AverageValue      float64 `json:"average_value"`
	AverageAttainment float64 `json:"average_attainment"`
}

// AccountRequest creates or updates an account.
type AccountRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	ClientCompanyID *int64 `json:"client_company_id"`
	IsActive        *bool  `json:"is_active"`
}

// TeamLeaderRequest creates or updates a team leader.
type TeamLeaderRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	Email     string `json:"email" validate:"omitempty,email,max=320"`
	AccountID *int64 `json:"account_id"`
	UserID    *int64 `json:"user_id"`
	IsActive  *bool  `json:"is_active"`
}

// MetricRequest creates or updates a metric.
type MetricRequest struct {
	AccountID      int64   `json:"account_id" validate:"required,gt=0"`
	Name           string  `json:"name" validate:"required,max=200"`
	Unit           string  `json:"unit" validate:"max=50"`
	Target         float64 `json:"target" validate:"gte=0"`
	HigherIsBetter *bool   `json:"higher_is_better"`
}

// PriorityRequest creates or updates a priority.
type PriorityRequest struct {
	AccountID   int64          `json:"account_id" validate:"required,gt=0"`
	Title       string         `json:"title" validate:"required,max=300"`
	Description string         `json:"description" validate:"max=4000"`
	Status      PriorityStatus `json:"status" validate:"omitempty,oneof=open in_progress done"`
	DueDate     *shared.Date   `json:"due_date"`
	OwnerID     *int64         `json:"owner_id"`
}

// ReportRequest files or corrects a shift report.
type ReportRequest struct {
	AccountID    int64          `json:"account_id" validate:"required,gt=0"`
	TeamLeaderID int64          `json:"team_leader_id" validate:"required,gt=0"`
	ShiftDate    shared.Date    `json:"shift_date" validate:"required"`
	Shift        Shift          `json:"shift" validate:"required,oneof=day swing night"`
	Scheduled    int            `json:"scheduled" validate:"gte=0"`
	Present      int            `json:"present" validate:"gte=0"`
	Notes        string         `json:"notes" validate:"max=4000"`
	Values       []ValueRequest `json:"values" validate:"max=100,dive"`
}

// ValueRequest is one KPI reading.
type ValueRequest struct {
	MetricID int64   `json:"metric_id" validate:"required,gt=0"`
	Value    float64 `json:"value"`
}

// ReportFilter narrows report listings and summaries.
type ReportFilter struct {
	AccountID    *int64
	TeamLeaderID *int64
	Shift        Shift
	From         *shared.Date
	To           *shared.Date
}

// PriorityFilter narrows priority listings.
type PriorityFilter struct {
	AccountID *int64
	OwnerID   *int64
	Status    PriorityStatus
}
