package shiftreports

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/bizportal/portal/internal/platform/db"
	"github.com/bizportal/portal/internal/shared"
)

const duplicateReport = "a report already exists for this team leader, date and shift"

const selectReport = `SELECT r.id, r.account_id, a.name, r.team_leader_id, t.name, r.shift_date, r.shift, r.scheduled, r.present,
	r.notes, r.created_by, r.created_at, r.updated_at
FROM shift_reports r
JOIN accounts a ON a.id = r.account_id
JOIN team_leaders t ON t.id = r.team_leader_id`

var reportSorts = map[string]string{
	"shift_date": "r.shift_date",
	"shift":      "r.shift",
	"account":    "a.name",
	"created_at": "r.created_at",
}

func scanReport(row pgx.Row) (Report, error) {
	var rep Report
	var shift string
	err := row.Scan(&rep.ID, &rep.AccountID, &rep.AccountName, &rep.TeamLeaderID, &rep.TeamLeaderName, &rep.ShiftDate, &shift,
		&rep.Scheduled, &rep.Present, &rep.Notes, &rep.CreatedBy, &rep.CreatedAt, &rep.UpdatedAt)
	rep.Shift = Shift(shift)
	return rep, err
}

func reportWhere(f ReportFilter) *db.Where {
	var w db.Where
	if f.AccountID != nil {
		w.Add("r.account_id = ?", *f.AccountID)
	}
	if f.TeamLeaderID != nil {
		w.Add("r.team_leader_id = ?", *f.TeamLeaderID)
	}
	w.AddIf(f.Shift != "", "r.shift = ?", string(f.Shift))
	if f.From != nil {
		w.Add("r.shift_date >= ?", *f.From)
	}
	if f.To != nil {
		w.Add("r.shift_date <= ?", *f.To)
	}
	return &w
}

func collectReports(rows pgx.Rows) ([]Report, error) {
	defer rows.Close()
	out := []Report{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// ListReports returns a page of reports with their values.
func (r *Repository) ListReports(ctx context.Context, params shared.ListParams, f ReportFilter) ([]Report, int, error) {
	w := reportWhere(f)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM shift_reports r`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if params.Sort == "" {
		params.Desc = true
	}
	page, args := w.Page(params.Limit(), params.Offset())
	rows, err := r.pool.Query(ctx, selectReport+w.SQL()+` ORDER BY `+params.OrderBy(reportSorts, "r.shift_date")+`, r.id`+page, args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collectReports(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, r.attachValues(ctx, out)
}

// AllReports returns every report matching f with values, oldest first.
func (r *Repository) AllReports(ctx context.Context, f ReportFilter) ([]Report, error) {
	w := reportWhere(f)
	rows, err := r.pool.Query(ctx, selectReport+w.SQL()+` ORDER BY r.shift_date, r.id`, w.Args()...)
	if err != nil {
		return nil, err
	}
	out, err := collectReports(rows)
	if err != nil {
		return nil, err
	}
	return out, r.attachValues(ctx, out)
}

func (r *Repository) attachValues(ctx context.Context, reports []Report) error {
	if len(reports) == 0 {
		return nil
	}
	ids := make([]int64, len(reports))
	index := make(map[int64]int, len(reports))
	for i := range reports {
		ids[i] = reports[i].ID
		index[reports[i].ID] = i
		reports[i].Values = []MetricValue{}
	}
	rows, err := r.pool.Query(ctx, `SELECT v.report_id, v.metric_id, m.name, m.unit, v.value, m.target, m.higher_is_better
FROM shift_report_values v JOIN metrics m ON m.id = v.metric_id
WHERE v.report_id = ANY($1) ORDER BY v.report_id, m.name`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var reportID int64
		var v MetricValue
		if err := rows.Scan(&reportID, &v.MetricID, &v.MetricName, &v.Unit, &v.Value, &v.Target, &v.HigherIsBetter); err != nil {
			return err
		}
		i := index[reportID]
		reports[i].Values = append(reports[i].Values, v)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i := range reports {
		reports[i].Derive()
	}
	return nil
}

// GetReport returns one report with values.
func (r *Repository) GetReport(ctx context.Context, id int64) (Report, error) {
	rep, err := scanReport(r.pool.QueryRow(ctx, selectReport+` WHERE r.id = $1`, id))
	if err != nil {
		return Report{}, notFound(err)
	}
	out := []Report{rep}
	if err := r.attachValues(ctx, out); err != nil {
		return Report{}, err
	}
	return out[0], nil
}

// CreateReport inserts a report and its values.
func (r *Repository) CreateReport(ctx context.Context, rep Report) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO shift_reports (account_id, team_leader_id, shift_date, shift, scheduled, present, notes, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			rep.AccountID, rep.TeamLeaderID, rep.ShiftDate, string(rep.Shift), rep.Scheduled, rep.Present, rep.Notes, rep.CreatedBy).Scan(&id)
		if err != nil {
			return mapWriteErr(err, duplicateReport)
		}
		return insertValues(ctx, tx, id, rep.Values)
	})
	return id, err
}

// UpdateReport replaces a report and its values.
func (r *Repository) UpdateReport(ctx context.Context, rep Report) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE shift_reports SET account_id = $2, team_leader_id = $3, shift_date = $4, shift = $5,
	scheduled = $6, present = $7, notes = $8, updated_at = NOW() WHERE id = $1`,
			rep.ID, rep.AccountID, rep.TeamLeaderID, rep.ShiftDate, string(rep.Shift), rep.Scheduled, rep.Present, rep.Notes)
		if err != nil {
			return mapWriteErr(err, duplicateReport)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM shift_report_values WHERE report_id = $1`, rep.ID); err != nil {
			return err
		}
		return insertValues(ctx, tx, rep.ID, rep.Values)
	})
}

func insertValues(ctx context.Context, tx pgx.Tx, id int64, values []MetricValue) error {
	for _, v := range values {
		if _, err := tx.Exec(ctx, `INSERT INTO shift_report_values (report_id, metric_id, value) VALUES ($1, $2, $3)`,
			id, v.MetricID, v.Value); err != nil {
			return mapWriteErr(err, "metric reported twice")
		}
	}
	return nil
}

// DeleteReport removes a report and its values.
func (r *Repository) DeleteReport(ctx context.Context, id int64) error {
	return r.deleteOne(ctx, "report", `DELETE FROM shift_reports WHERE id = $1`, id)
}
