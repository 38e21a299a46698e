// Package shiftreports records end-of-shift attendance and KPI readings per client account.
package shiftreports

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bizportal/portal/internal/shared"
)

// RepositoryPort defines persistence used by the shift report service.
type RepositoryPort interface {
	ListAccounts(ctx context.Context, activeOnly bool) ([]Account, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	CreateAccount(ctx context.Context, a Account) (int64, error)
	UpdateAccount(ctx context.Context, a Account) error
	DeleteAccount(ctx context.Context, id int64) error

	ListTeamLeaders(ctx context.Context, accountID *int64) ([]TeamLeader, error)
	GetTeamLeader(ctx context.Context, id int64) (TeamLeader, error)
	CreateTeamLeader(ctx context.Context, t TeamLeader) (int64, error)
	UpdateTeamLeader(ctx context.Context, t TeamLeader) error
	DeleteTeamLeader(ctx context.Context, id int64) error

	ListMetrics(ctx context.Context, accountID *int64) ([]Metric, error)
	GetMetric(ctx context.Context, id int64) (Metric, error)
	CreateMetric(ctx context.Context, m Metric) (int64, error)
	UpdateMetric(ctx context.Context, m Metric) error
	DeleteMetric(ctx context.Context, id int64) error

	ListPriorities(ctx context.Context, params shared.ListParams, f PriorityFilter) ([]Priority, int, error)
	GetPriority(ctx context.Context, id int64) (Priority, error)
	CreatePriority(ctx context.Context, p Priority) (int64, error)
	UpdatePriority(ctx context.Context, p Priority) error
	DeletePriority(ctx context.Context, id int64) error

	ListReports(ctx context.Context, params shared.ListParams, f ReportFilter) ([]Report, int, error)
	AllReports(ctx context.Context, f ReportFilter) ([]Report, error)
	GetReport(ctx context.Context, id int64) (Report, error)
	CreateReport(ctx context.Context, rep Report) (int64, error)
	UpdateReport(ctx context.Context, rep Report) error
	DeleteReport(ctx context.Context, id int64) error
}

// Service implements shift reporting.
type Service struct {
	repo  RepositoryPort
	audit shared.Auditor
}

// NewService builds the service.
func NewService(repo RepositoryPort, audit shared.Auditor) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	return &Service{repo: repo, audit: audit}
}

func (s *Service) record(ctx context.Context, action, entity string, id int64) error {
	return s.audit.Record(ctx, shared.AuditEntry(ctx, action, entity, id, nil))
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// ============================================================================
// Accounts
// ============================================================================

// ListAccounts returns accounts, optionally only active ones.
func (s *Service) ListAccounts(ctx context.Context, activeOnly bool) ([]Account, error) {
	return s.repo.ListAccounts(ctx, activeOnly)
}

// CreateAccount adds an account. Names are unique.
func (s *Service) CreateAccount(ctx context.Context, req AccountRequest) (Account, error) {
	a := Account{Name: strings.TrimSpace(req.Name), ClientCompanyID: req.ClientCompanyID, IsActive: boolOr(req.IsActive, true)}
	id, err := s.repo.CreateAccount(ctx, a)
	if err != nil {
		return Account{}, err
	}
	if err := s.record(ctx, "create", "account", id); err != nil {
		return Account{}, err
	}
	return s.repo.GetAccount(ctx, id)
}

// UpdateAccount replaces an account.
func (s *Service) UpdateAccount(ctx context.Context, id int64, req AccountRequest) (Account, error) {
	current, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return Account{}, err
	}
	a := Account{ID: id, Name: strings.TrimSpace(req.Name), ClientCompanyID: req.ClientCompanyID, IsActive: boolOr(req.IsActive, current.IsActive)}
	if err := s.repo.UpdateAccount(ctx, a); err != nil {
		return Account{}, err
	}
	if err := s.record(ctx, "update", "account", id); err != nil {
		return Account{}, err
	}
	return s.repo.GetAccount(ctx, id)
}

// DeleteAccount removes an account.
func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	if err := s.repo.DeleteAccount(ctx, id); err != nil {
		return err
	}
	return s.record(ctx, "delete", "account", id)
}

// ============================================================================
// Team leaders
// ============================================================================

// ListTeamLeaders returns team leaders, optionally for one account.
func (s *Service) ListTeamLeaders(ctx context.Context, accountID *int64) ([]TeamLeader, error) {
	return s.repo.ListTeamLeaders(ctx, accountID)
}

// CreateTeamLeader adds a team leader.
func (s *Service) CreateTeamLeader(ctx context.Context, req TeamLeaderRequest) (TeamLeader, error) {
	t := TeamLeader{Name: strings.TrimSpace(req.Name), Email: strings.ToLower(strings.TrimSpace(req.Email)),
		AccountID: req.AccountID, UserID: req.UserID, IsActive: boolOr(req.IsActive, true)}
	id, err := s.repo.CreateTeamLeader(ctx, t)
	if err != nil {
		return TeamLeader{}, err
	}
	if err := s.record(ctx, "create", "team_leader", id); err != nil {
		return TeamLeader{}, err
	}
	return s.repo.GetTeamLeader(ctx, id)
}

// UpdateTeamLeader replaces a team leader.
func (s *Service) UpdateTeamLeader(ctx context.Context, id int64, req TeamLeaderRequest) (TeamLeader, error) {
	current, err := s.repo.GetTeamLeader(ctx, id)
	if err != nil {
		return TeamLeader{}, err
	}
	t := TeamLeader{ID: id, Name: strings.TrimSpace(req.Name), Email: strings.ToLower(strings.TrimSpace(req.Email)),
		AccountID: req.AccountID, UserID: req.UserID, IsActive: boolOr(req.IsActive, current.IsActive)}
	if err := s.repo.UpdateTeamLeader(ctx, t); err != nil {
		return TeamLeader{}, err
	}
	if err := s.record(ctx, "update", "team_leader", id); err != nil {
		return TeamLeader{}, err
	}
	return s.repo.GetTeamLeader(ctx, id)
}

// DeleteTeamLeader removes a team leader.
func (s *Service) DeleteTeamLeader(ctx context.Context, id int64) error {
	if err := s.repo.DeleteTeamLeader(ctx, id); err != nil {
		return err
	}
	return s.record(ctx, "delete", "team_leader", id)
}

// ============================================================================
// Metrics
// ============================================================================

// ListMetrics returns metrics, optionally for one account.
func (s *Service) ListMetrics(ctx context.Context, accountID *int64) ([]Metric, error) {
	return s.repo.ListMetrics(ctx, accountID)
}

func metricFrom(req MetricRequest) Metric {
	return Metric{AccountID: req.AccountID, Name: strings.TrimSpace(req.Name), Unit: strings.TrimSpace(req.Unit),
		Target: req.Target, HigherIsBetter: boolOr(req.HigherIsBetter, true)}
}

// CreateMetric adds a metric to an account.
func (s *Service) CreateMetric(ctx context.Context, req MetricRequest) (Metric, error) {
	id, err := s.repo.CreateMetric(ctx, metricFrom(req))
	if err != nil {
		return Metric{}, err
	}
	if err := s.record(ctx, "create", "metric", id); err != nil {
		return Metric{}, err
	}
	return s.repo.GetMetric(ctx, id)
}

// UpdateMetric replaces a metric.
func (s *Service) UpdateMetric(ctx context.Context, id int64, req MetricRequest) (Metric, error) {
	m := metricFrom(req)
	m.ID = id
	if err := s.repo.UpdateMetric(ctx, m); err != nil {
		return Metric{}, err
	}
	if err := s.record(ctx, "update", "metric", id); err != nil {
		return Metric{}, err
	}
	return s.repo.GetMetric(ctx, id)
}

// DeleteMetric removes a metric.
func (s *Service) DeleteMetric(ctx context.Context, id int64) error {
	if err := s.repo.DeleteMetric(ctx, id); err != nil {
		return err
	}
	return s.record(ctx, "delete", "metric", id)
}

// ============================================================================
// Priorities
// ============================================================================

// ListPriorities returns a page of priorities.
func (s *Service) ListPriorities(ctx context.Context, params shared.ListParams, f PriorityFilter) (shared.Page[Priority], error) {
	items, total, err := s.repo.ListPriorities(ctx, params, f)
	if err != nil {
		return shared.Page[Priority]{}, fmt.Errorf("list priorities: %w", err)
	}
	return shared.NewPage(items, params, total), nil
}

func priorityFrom(req PriorityRequest) Priority {
	status := req.Status
	if status == "" {
		status = PriorityOpen
	}
	return Priority{AccountID: req.AccountID, Title: strings.TrimSpace(req.Title), Description: req.Description,
		Status: status, DueDate: req.DueDate, OwnerID: req.OwnerID}
}

// CreatePriority adds a priority, open unless stated otherwise.
func (s *Service) CreatePriority(ctx context.Context, req PriorityRequest) (Priority, error) {
	id, err := s.repo.CreatePriority(ctx, priorityFrom(req))
	if err != nil {
		return Priority{}, err
	}
	if err := s.record(ctx, "create", "priority", id); err != nil {
		return Priority{}, err
	}
	return s.repo.GetPriority(ctx, id)
}

// UpdatePriority replaces a priority.
func (s *Service) UpdatePriority(ctx context.Context, id int64, req PriorityRequest) (Priority, error) {
	p := priorityFrom(req)
	p.ID = id
	if err := s.repo.UpdatePriority(ctx, p); err != nil {
		return Priority{}, err
	}
	if err := s.record(ctx, "update", "priority", id); err != nil {
		return Priority{}, err
	}
	return s.repo.GetPriority(ctx, id)
}

// DeletePriority removes a priority.
func (s *Service) DeletePriority(ctx context.Context, id int64) error {
	if err := s.repo.DeletePriority(ctx, id); err != nil {
		return err
	}
	return s.record(ctx, "delete", "priority", id)
}

// ============================================================================
// Reports
// ============================================================================

// ListReports returns a page of reports.
func (s *Service) ListReports(ctx context.Context, params shared.ListParams, f ReportFilter) (shared.Page[Report], error) {
	items, total, err := s.repo.ListReports(ctx, params, f)
	if err != nil {
		return shared.Page[Report]{}, fmt.Errorf("list shift reports: %w", err)
	}
	return shared.NewPage(items, params, total), nil
}

// GetReport returns one report with derived figures.
func (s *Service) GetReport(ctx context.Context, id int64) (Report, error) {
	return s.repo.GetReport(ctx, id)
}

// CreateReport files a shift report. One report exists per account, team leader, date and shift.
func (s *Service) CreateReport(ctx context.Context, req ReportRequest) (Report, error) {
	rep, err := s.reportFrom(ctx, req)
	if err != nil {
		return Report{}, err
	}
	if actor := shared.ActorID(ctx); actor != 0 {
		rep.CreatedBy = &actor
	}
	id, err := s.repo.CreateReport(ctx, rep)
	if err != nil {
		return Report{}, err
	}
	if err := s.record(ctx, "create", "shift_report", id); err != nil {
		return Report{}, err
	}
	return s.repo.GetReport(ctx, id)
}

// UpdateReport corrects a shift report and replaces its values.
func (s *Service) UpdateReport(ctx context.Context, id int64, req ReportRequest) (Report, error) {
	if _, err := s.repo.GetReport(ctx, id); err != nil {
		return Report{}, err
	}
	rep, err := s.reportFrom(ctx, req)
	if err != nil {
		return Report{}, err
	}
	rep.ID = id
	if err := s.repo.UpdateReport(ctx, rep); err != nil {
		return Report{}, err
	}
	if err := s.record(ctx, "update", "shift_report", id); err != nil {
		return Report{}, err
	}
	return s.repo.GetReport(ctx, id)
}

// DeleteReport removes a report.
func (s *Service) DeleteReport(ctx context.Context, id int64) error {
	if err := s.repo.DeleteReport(ctx, id); err != nil {
		return err
	}
	return s.record(ctx, "delete", "shift_report", id)
}

func (s *Service) reportFrom(ctx context.Context, req ReportRequest) (Report, error) {
	fields := map[string]string{}
	if req.Present > req.Scheduled {
		fields["present"] = "must not exceed scheduled"
	}
	leader, err := s.repo.GetTeamLeader(ctx, req.TeamLeaderID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		fields["team_leader_id"] = "does not exist"
	case err != nil:
		return Report{}, err
	case leader.AccountID != nil && *leader.AccountID != req.AccountID:
		fields["team_leader_id"] = "belongs to another account"
	}
	metrics, err := s.repo.ListMetrics(ctx, &req.AccountID)
	if err != nil {
		return Report{}, err
	}
	byID := make(map[int64]Metric, len(metrics))
	for _, m := range metrics {
		byID[m.ID] = m
	}
	values := make([]MetricValue, 0, len(req.Values))
	seen := map[int64]bool{}
	for i, v := range req.Values {
		key := fmt.Sprintf("values[%d].metric_id", i)
		m, ok := byID[v.MetricID]
		switch {
		case !ok:
			fields[key] = "is not a metric of this account"
		case seen[v.MetricID]:
			fields[key] = "is reported more than once"
		default:
			seen[v.MetricID] = true
			values = append(values, MetricValue{MetricID: m.ID, MetricName: m.Name, Unit: m.Unit, Value: v.Value,
				Target: m.Target, HigherIsBetter: m.HigherIsBetter})
		}
	}
	if len(fields) > 0 {
		return Report{}, &shared.ValidationError{Fields: fields}
	}
	rep := Report{
		AccountID:    req.AccountID,
		TeamLeaderID: req.TeamLeaderID,
		ShiftDate:    req.ShiftDate,
		Shift:        req.Shift,
		Scheduled:    req.Scheduled,
		Present:      req.Present,
		Notes:        strings.TrimSpace(req.Notes),
		Values:       values,
	}
	rep.Derive()
	return rep, nil
}

// ============================================================================
// Summary & export
// ============================================================================

// Summary averages attendance and each metric over the reports matching f.
func (s *Service) Summary(ctx context.Context, f ReportFilter) (Summary, error) {
	reports, err := s.repo.AllReports(ctx, f)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize shift reports: %w", err)
	}
	out := Summarize(reports)
	out.AccountID, out.From, out.To = f.AccountID, f.From, f.To
	return out, nil
}

// Summarize averages per-report attendance and per-metric values and attainment.
func Summarize(reports []Report) Summary {
	out := Summary{Reports: len(reports), Metrics: []MetricSummary{}}
	if len(reports) == 0 {
		return out
	}
	type acc struct {
		MetricSummary
		valueSum, attainmentSum float64
	}
	var attendance float64
	metrics := map[int64]*acc{}
	for _, r := range reports {
		attendance += r.AttendancePercent
		for _, v := range r.Values {
			a, ok := metrics[v.MetricID]
			if !ok {
				a = &acc{MetricSummary: MetricSummary{MetricID: v.MetricID, Name: v.MetricName, Unit: v.Unit, Target: v.Target}}
				metrics[v.MetricID] = a
			}
			a.Samples++
			a.valueSum += v.Value
			a.attainmentSum += v.Attainment
		}
	}
	out.AttendancePercent = round1(attendance / float64(len(reports)))
	for _, a := range metrics {
		m := a.MetricSummary
		m.AverageValue = shared.RoundCents(a.valueSum / float64(a.Samples))
		m.AverageAttainment = round1(a.attainmentSum / float64(a.Samples))
		out.Metrics = append(out.Metrics, m)
	}
	sort.Slice(out.Metrics, func(i, j int) bool {
		if out.Metrics[i].Name != out.Metrics[j].Name {
			return out.Metrics[i].Name < out.Metrics[j].Name
		}
		return out.Metrics[i].MetricID < out.Metrics[j].MetricID
	})
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Export returns every report matching f.
func (s *Service) Export(ctx context.Context, f ReportFilter) ([]Report, error) {
	reports, err := s.repo.AllReports(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("export shift reports: %w", err)
	}
	return reports, nil
}
