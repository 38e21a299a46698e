package onboarding

import (
	"time"

	"github.com/bizportal/portal/internal/shared"
)

// Status is the onboarding state of a new hire.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusWithdrawn  Status = "withdrawn"
)

// Active reports whether checklist work is still expected.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusInProgress
}

// Stage groups checklist items by when they are due.
type Stage string

const (
	StagePreStart   Stage = "pre_start"
	StageDayOne     Stage = "day_one"
	StageFirstWeek  Stage = "first_week"
	StageFirstMonth Stage = "first_month"
)

// Stages lists every stage in order.
var Stages = []Stage{StagePreStart, StageDayOne, StageFirstWeek, StageFirstMonth}

var stageOffsets = map[Stage]int{
	StagePreStart:   -3,
	StageDayOne:     0,
	StageFirstWeek:  7,
	StageFirstMonth: 30,
}

var stageLabels = map[Stage]string{
	StagePreStart:   "Before start",
	StageDayOne:     "Day one",
	StageFirstWeek:  "First week",
	StageFirstMonth: "First month",
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := stageOffsets[s]
	return ok
}

// DueDate returns when items of the stage are due for a start date.
func (s Stage) DueDate(start shared.Date) shared.Date {
	return start.AddDays(stageOffsets[s])
}

// Label is the display name of the stage.
func (s Stage) Label() string {
	return stageLabels[s]
}

// Item owners used by the default checklist.
const (
	OwnerHR      = "hr"
	OwnerIT      = "it"
	OwnerManager = "manager"
	OwnerNewHire = "new_hire"
)

// Template is a checklist item seeded for every new hire.
type Template struct {
	Stage Stage
	Title string
	Owner string
}

// DefaultChecklist is seeded when a new hire is created.
var DefaultChecklist = []Template{
	{StagePreStart, "Send offer letter and collect signed contract", OwnerHR},
	{StagePreStart, "Complete background check", OwnerHR},
	{StagePreStart, "Create accounts and order equipment", OwnerIT},
	{StagePreStart, "Assign team leader and buddy", OwnerManager},
	{StageDayOne, "Welcome session and site tour", OwnerManager},
	{StageDayOne, "Collect tax and banking forms", OwnerHR},
	{StageDayOne, "Verify logins to ticketing and telephony tools", OwnerIT},
	{StageFirstWeek, "Complete product and process training", OwnerNewHire},
	{StageFirstWeek, "Shadow senior agents for two shifts", OwnerNewHire},
	{StageFirstWeek, "Security and data protection course", OwnerNewHire},
	{StageFirstMonth, "First quality review with team leader", OwnerManager},
	{StageFirstMonth, "Thirty day check-in", OwnerHR},
}

// NewHire is a person joining the company.
type NewHire struct {
	ID            int64       `json:"id"`
	FirstName     string      `json:"first_name"`
	LastName      string      `json:"last_name"`
	Email         string      `json:"email"`
	Position      string      `json:"position"`
	RequisitionID *int64      `json:"requisition_id"`
	ManagerID     *int64      `json:"manager_id"`
	StartDate     shared.Date `json:"start_date"`
	Status        Status      `json:"status"`
	ItemsTotal    int         `json:"items_total"`
	ItemsDone     int         `json:"items_done"`
	Progress      float64     `json:"progress"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// FullName joins first and last name.
func (h NewHire) FullName() string {
	switch {
	case h.FirstName == "":
		return h.LastName
	case h.LastName == "":
		return h.FirstName
	}
	return h.FirstName + " " + h.LastName
}

// ChecklistItem is one onboarding task.
type ChecklistItem struct {
	ID          int64       `json:"id"`
	NewHireID   int64       `json:"new_hire_id"`
	Stage       Stage       `json:"stage"`
	Title       string      `json:"title"`
	Owner       string      `json:"owner"`
	DueDate     shared.Date `json:"due_date"`
	Completed   bool        `json:"completed"`
	CompletedAt *time.Time  `json:"completed_at"`
	CompletedBy *int64      `json:"completed_by"`
	Position    int         `json:"position"`
}

// StageChecklist is the items of one stage with its progress.
type StageChecklist struct {
	Stage    Stage           `json:"stage"`
	Label    string          `json:"label"`
	DueDate  shared.Date     `json:"due_date"`
	Progress float64         `json:"progress"`
	Items    []ChecklistItem `json:"items"`
}

// Checklist is the full onboarding view of a new hire.
type Checklist struct {
	NewHireID int64            `json:"new_hire_id"`
	Status    Status           `json:"status"`
	Progress  float64          `json:"progress"`
	Stages    []StageChecklist `json:"stages"`
}

// BuildChecklist groups items by stage in stage order and computes progress.
func BuildChecklist(h NewHire, items []ChecklistItem) Checklist {
	out := Checklist{NewHireID: h.ID, Status: h.Status, Stages: make([]StageChecklist, 0, len(Stages))}
	byStage := map[Stage][]ChecklistItem{}
	for _, item := range items {
		byStage[item.Stage] = append(byStage[item.Stage], item)
	}
	done, total := 0, 0
	for _, stage := range Stages {
		stageItems := byStage[stage]
		if stageItems == nil {
			stageItems = []ChecklistItem{}
		}
		stageDone := countDone(stageItems)
		done += stageDone
		total += len(stageItems)
		out.Stages = append(out.Stages, StageChecklist{
			Stage:    stage,
			Label:    stage.Label(),
			DueDate:  stage.DueDate(h.StartDate),
			Progress: shared.Percent(float64(stageDone), float64(len(stageItems))),
			Items:    stageItems,
		})
	}
	out.Progress = shared.Percent(float64(done), float64(total))
	return out
}

func countDone(items []ChecklistItem) int {
	n := 0
	for _, item := range items {
		if item.Completed {
			n++
		}
	}
	return n
}

// NextStatus derives the hire status after checklist progress changes.
// Withdrawn hires never change.
func NextStatus(current Status, done, total int) Status {
	if current == StatusWithdrawn {
		return current
	}
	switch {
	case total > 0 && done == total:
		return StatusCompleted
	case done > 0:
		return StatusInProgress
	case current == StatusCompleted:
		return StatusInProgress
	default:
		return current
	}
}

// Request creates or updates a new hire.
type Request struct {
	FirstName     string      `json:"first_name" validate:"max=100"`
	LastName      string      `json:"last_name" validate:"max=100"`
	Email         string      `json:"email" validate:"required,email,max=254"`
	Position      string      `json:"position" validate:"max=200"`
	RequisitionID *int64      `json:"requisition_id"`
	ManagerID     *int64      `json:"manager_id"`
	StartDate     shared.Date `json:"start_date" validate:"required"`
}

// StatusRequest changes the hire status directly.
type StatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=pending in_progress completed withdrawn"`
}

// ItemRequest adds a checklist item.
type ItemRequest struct {
	Stage   Stage        `json:"stage" validate:"required,oneof=pre_start day_one first_week first_month"`
	Title   string       `json:"title" validate:"required,max=300"`
	Owner   string       `json:"owner" validate:"max=120"`
	DueDate *shared.Date `json:"due_date"`
}

// ToggleRequest marks a checklist item complete or incomplete.
type ToggleRequest struct {
	Completed *bool `json:"completed" validate:"required"`
}

// Filter narrows new hire listings.
type Filter struct {
	Status    Status
	ManagerID *int64
	StartFrom *shared.Date
	StartTo   *shared.Date
}

// OverdueItem is an incomplete item past its due date, with who to remind.
type OverdueItem struct {
	ChecklistItem
	HireName     string
	HireEmail    string
	ManagerEmail string
}
