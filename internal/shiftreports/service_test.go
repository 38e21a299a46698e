package shiftreports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizportal/portal/internal/shared"
)

// mockRepository implements the report paths; reference data CRUD is exercised through pgxmock.
type mockRepository struct {
	RepositoryPort
	leaders map[int64]TeamLeader
	metrics []Metric
	reports map[int64]Report
	nextID  int64
}

func newMockRepository() *mockRepository {
	account := int64(1)
	return &mockRepository{
		leaders: map[int64]TeamLeader{
			10: {ID: 10, Name: "Ana", AccountID: &account},
			11: {ID: 11, Name: "Ben", AccountID: ptr(int64(2))},
		},
		metrics: []Metric{
			{ID: 100, AccountID: 1, Name: "CSAT", Unit: "%", Target: 90, HigherIsBetter: true},
			{ID: 101, AccountID: 1, Name: "AHT", Unit: "s", Target: 320},
			{ID: 200, AccountID: 2, Name: "FCR", Target: 80, HigherIsBetter: true},
		},
		reports: map[int64]Report{},
		nextID:  1,
	}
}

func ptr[T any](v T) *T { return &v }

func (m *mockRepository) GetTeamLeader(ctx context.Context, id int64) (TeamLeader, error) {
	t, ok := m.leaders[id]
	if !ok {
		return TeamLeader{}, shared.ErrNotFound
	}
	return t, nil
}

func (m *mockRepository) ListMetrics(ctx context.Context, accountID *int64) ([]Metric, error) {
	var out []Metric
	for _, metric := range m.metrics {
		if accountID == nil || metric.AccountID == *accountID {
			out = append(out, metric)
		}
	}
	return out, nil
}

func (m *mockRepository) CreateReport(ctx context.Context, rep Report) (int64, error) {
	for _, existing := range m.reports {
		if existing.TeamLeaderID == rep.TeamLeaderID && existing.Shift == rep.Shift && existing.ShiftDate.Equal(rep.ShiftDate.Time) {
			return 0, shared.ErrConflict
		}
	}
	rep.ID = m.nextID
	m.nextID++
	m.reports[rep.ID] = rep
	return rep.ID, nil
}

func (m *mockRepository) GetReport(ctx context.Context, id int64) (Report, error) {
	rep, ok := m.reports[id]
	if !ok {
		return Report{}, shared.ErrNotFound
	}
	rep.Derive()
	return rep, nil
}

func (m *mockRepository) AllReports(ctx context.Context, f ReportFilter) ([]Report, error) {
	var out []Report
	for _, rep := range m.reports {
		rep.Derive()
		out = append(out, rep)
	}
	return out, nil
}

func day(d int) shared.Date {
	return shared.NewDate(time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC))
}

func TestAttainment(t *testing.T) {
	assert.InDelta(t, 105.6, Attainment(95, 90, true), 0.001)
	assert.InDelta(t, 106.7, Attainment(300, 320, false), 0.001)
	assert.Zero(t, Attainment(5, 0, true))
	assert.Zero(t, Attainment(0, 320, false))
}

func TestCreateReportDerivesFigures(t *testing.T) {
	svc := NewService(newMockRepository(), nil)

	rep, err := svc.CreateReport(context.Background(), ReportRequest{
		AccountID: 1, TeamLeaderID: 10, ShiftDate: day(5), Shift: ShiftDay, Scheduled: 20, Present: 18,
		Values: []ValueRequest{{MetricID: 100, Value: 95}, {MetricID: 101, Value: 300}},
	})
	require.NoError(t, err)
	assert.InDelta(t, 90.0, rep.AttendancePercent, 0.001)
	require.Len(t, rep.Values, 2)
	assert.Equal(t, "CSAT", rep.Values[0].MetricName)
	assert.InDelta(t, 105.6, rep.Values[0].Attainment, 0.001)
	assert.InDelta(t, 106.7, rep.Values[1].Attainment, 0.001)

	_, err = svc.CreateReport(context.Background(), ReportRequest{
		AccountID: 1, TeamLeaderID: 10, ShiftDate: day(5), Shift: ShiftDay, Scheduled: 20, Present: 19,
	})
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateReportValidatesReferences(t *testing.T) {
	svc := NewService(newMockRepository(), nil)

	_, err := svc.CreateReport(context.Background(), ReportRequest{
		AccountID: 1, TeamLeaderID: 11, ShiftDate: day(6), Shift: ShiftNight, Scheduled: 5, Present: 6,
		Values: []ValueRequest{{MetricID: 200, Value: 1}, {MetricID: 100, Value: 90}, {MetricID: 100, Value: 91}},
	})
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "present")
	assert.Equal(t, "belongs to another account", verr.Fields["team_leader_id"])
	assert.Equal(t, "is not a metric of this account", verr.Fields["values[0].metric_id"])
	assert.Equal(t, "is reported more than once", verr.Fields["values[2].metric_id"])

	_, err = svc.CreateReport(context.Background(), ReportRequest{AccountID: 1, TeamLeaderID: 99, ShiftDate: day(6), Shift: ShiftDay})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "does not exist", verr.Fields["team_leader_id"])
}

func TestSummaryAveragesAttendanceAndMetrics(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)
	for i, present := range []int{18, 19} {
		_, err := svc.CreateReport(context.Background(), ReportRequest{
			AccountID: 1, TeamLeaderID: 10, ShiftDate: day(10 + i), Shift: ShiftSwing, Scheduled: 20, Present: present,
			Values: []ValueRequest{{MetricID: 100, Value: []float64{95, 85}[i]}},
		})
		require.NoError(t, err)
	}

	account := int64(1)
	sum, err := svc.Summary(context.Background(), ReportFilter{AccountID: &account})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Reports)
	assert.Equal(t, &account, sum.AccountID)
	assert.InDelta(t, 92.5, sum.AttendancePercent, 0.001)
	require.Len(t, sum.Metrics, 1)
	assert.Equal(t, 2, sum.Metrics[0].Samples)
	assert.InDelta(t, 90.0, sum.Metrics[0].AverageValue, 0.001)
	assert.InDelta(t, 100.0, sum.Metrics[0].AverageAttainment, 0.001)
}

func TestSummarizeEmpty(t *testing.T) {
	sum := Summarize(nil)
	assert.Zero(t, sum.Reports)
	assert.NotNil(t, sum.Metrics)
}

func TestTableFoldsReadings(t *testing.T) {
	rep := Report{ShiftDate: day(1), Shift: ShiftDay, AccountName: "Acme", Scheduled: 10, Present: 9,
		Values: []MetricValue{{MetricName: "AHT", Unit: "s", Value: 300, Target: 320}}}
	rep.Derive()
	table := Table([]Report{rep})
	require.Len(t, table.Rows, 1)
	assert.Len(t, table.Rows[0], len(table.Headers))
	assert.Equal(t, "AHT: 300 s (106.7%)", table.Rows[0][7])
}
