package shiftreports

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bizportal/portal/internal/platform/db"
	"github.com/bizportal/portal/internal/shared"
)

// Repository persists accounts, team leaders, metrics, priorities and shift reports.
type Repository struct {
	pool db.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

func mapWriteErr(err error, conflict string) error {
	switch {
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: %s", shared.ErrConflict, conflict)
	case db.IsForeignKeyViolation(err):
		return shared.NewValidationError("reference", "points to a missing or still referenced record")
	}
	return err
}

func (r *Repository) execOne(ctx context.Context, conflict, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return mapWriteErr(err, conflict)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *Repository) deleteOne(ctx context.Context, entity, sql string, id int64) error {
	tag, err := r.pool.Exec(ctx, sql, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s is still referenced", shared.ErrConflict, entity)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

// ============================================================================
// Accounts
// ============================================================================

const selectAccount = `SELECT id, name, client_company_id, is_active, created_at FROM accounts`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Name, &a.ClientCompanyID, &a.IsActive, &a.CreatedAt)
	return a, err
}

// ListAccounts returns accounts ordered by name.
func (r *Repository) ListAccounts(ctx context.Context, activeOnly bool) ([]Account, error) {
	var w db.Where
	w.AddIf(activeOnly, "is_active")
	rows, err := r.pool.Query(ctx, selectAccount+w.SQL()+` ORDER BY name`, w.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAccount returns one account.
func (r *Repository) GetAccount(ctx context.Context, id int64) (Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, selectAccount+` WHERE id = $1`, id))
	return a, notFound(err)
}

// CreateAccount inserts an account.
func (r *Repository) CreateAccount(ctx context.Context, a Account) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO accounts (name, client_company_id, is_active) VALUES ($1, $2, $3) RETURNING id`,
		a.Name, a.ClientCompanyID, a.IsActive).Scan(&id)
	return id, mapWriteErr(err, "account name already exists")
}

// UpdateAccount replaces an account.
func (r *Repository) UpdateAccount(ctx context.Context, a Account) error {
	return r.execOne(ctx, "account name already exists",
		`UPDATE accounts SET name = $2, client_company_id = $3, is_active = $4 WHERE id = $1`,
		a.ID, a.Name, a.ClientCompanyID, a.IsActive)
}

// DeleteAccount removes an account without reports.
func (r *Repository) DeleteAccount(ctx context.Context, id int64) error {
	return r.deleteOne(ctx, "account", `DELETE FROM accounts WHERE id = $1`, id)
}

// ============================================================================
// Team leaders
// ============================================================================

const selectTeamLeader = `SELECT id, name, email, account_id, user_id, is_active, created_at FROM team_leaders`

func scanTeamLeader(row pgx.Row) (TeamLeader, error) {
	var t TeamLeader
	err := row.Scan(&t.ID, &t.Name, &t.Email, &t.AccountID, &t.UserID, &t.IsActive, &t.CreatedAt)
	return t, err
}

// ListTeamLeaders returns team leaders, optionally for one account.
func (r *Repository) ListTeamLeaders(ctx context.Context, accountID *int64) ([]TeamLeader, error) {
	var w db.Where
	if accountID != nil {
		w.Add("account_id = ?", *accountID)
	}
	rows, err := r.pool.Query(ctx, selectTeamLeader+w.SQL()+` ORDER BY name`, w.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []TeamLeader{}
	for rows.Next() {
		t, err := scanTeamLeader(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTeamLeader returns one team leader.
func (r *Repository) GetTeamLeader(ctx context.Context, id int64) (TeamLeader, error) {
	t, err := scanTeamLeader(r.pool.QueryRow(ctx, selectTeamLeader+` WHERE id = $1`, id))
	return t, notFound(err)
}

// CreateTeamLeader inserts a team leader.
func (r *Repository) CreateTeamLeader(ctx context.Context, t TeamLeader) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO team_leaders (name, email, account_id, user_id, is_active)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, t.Name, t.Email, t.AccountID, t.UserID, t.IsActive).Scan(&id)
	return id, mapWriteErr(err, "team leader already exists")
}

// UpdateTeamLeader replaces a team leader.
func (r *Repository) UpdateTeamLeader(ctx context.Context, t TeamLeader) error {
	return r.execOne(ctx, "team leader already exists",
		`UPDATE team_leaders SET name = $2, email = $3, account_id = $4, user_id = $5, is_active = $6 WHERE id = $1`,
		t.ID, t.Name, t.Email, t.AccountID, t.UserID, t.IsActive)
}

// DeleteTeamLeader removes a team leader without reports.
func (r *Repository) DeleteTeamLeader(ctx context.Context, id int64) error {
	return r.deleteOne(ctx, "team leader", `DELETE FROM team_leaders WHERE id = $1`, id)
}

// ============================================================================
// Metrics
// ============================================================================

const selectMetric = `SELECT id, account_id, name, unit, target, higher_is_better FROM metrics`

func scanMetric(row pgx.Row) (Metric, error) {
	var m Metric
	err := row.Scan(&m.ID, &m.AccountID, &m.Name, &m.Unit, &m.Target, &m.HigherIsBetter)
	return m, err
}

// ListMetrics returns metrics, optionally for one account.
func (r *Repository) ListMetrics(ctx context.Context, accountID *int64) ([]Metric, error) {
	var w db.Where
	if accountID != nil {
		w.Add("account_id = ?", *accountID)
	}
	rows, err := r.pool.Query(ctx, selectMetric+w.SQL()+` ORDER BY account_id, name`, w.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Metric{}
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMetric returns one metric.
func (r *Repository) GetMetric(ctx context.Context, id int64) (Metric, error) {
	m, err := scanMetric(r.pool.QueryRow(ctx, selectMetric+` WHERE id = $1`, id))
	return m, notFound(err)
}

// CreateMetric inserts a metric.
func (r *Repository) CreateMetric(ctx context.Context, m Metric) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO metrics (account_id, name, unit, target, higher_is_better)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, m.AccountID, m.Name, m.Unit, m.Target, m.HigherIsBetter).Scan(&id)
	return id, mapWriteErr(err, "metric name already exists on this account")
}

// UpdateMetric replaces a metric.
func (r *Repository) UpdateMetric(ctx context.Context, m Metric) error {
	return r.execOne(ctx, "metric name already exists on this account",
		`UPDATE metrics SET account_id = $2, name = $3, unit = $4, target = $5, higher_is_better = $6 WHERE id = $1`,
		m.ID, m.AccountID, m.Name, m.Unit, m.Target, m.HigherIsBetter)
}

// DeleteMetric removes a metric that no report references.
func (r *Repository) DeleteMetric(ctx context.Context, id int64) error {
	return r.deleteOne(ctx, "metric", `DELETE FROM metrics WHERE id = $1`, id)
}

// ============================================================================
// Priorities
// ============================================================================

const selectPriority = `SELECT id, account_id, title, description, status, due_date, owner_id, created_at, updated_at FROM priorities`

var prioritySorts = map[string]string{
	"title":      "title",
	"status":     "status",
	"due_date":   "due_date",
	"created_at": "created_at",
}

func scanPriority(row pgx.Row) (Priority, error) {
	var p Priority
	var status string
	err := row.Scan(&p.ID, &p.AccountID, &p.Title, &p.Description, &status, &p.DueDate, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	p.Status = PriorityStatus(status)
	return p, err
}

// ListPriorities returns a page of priorities.
func (r *Repository) ListPriorities(ctx context.Context, params shared.ListParams, f PriorityFilter) ([]Priority, int, error) {
	var w db.Where
	if f.AccountID != nil {
		w.Add("account_id = ?", *f.AccountID)
	}
	if f.OwnerID != nil {
		w.Add("owner_id = ?", *f.OwnerID)
	}
	w.AddIf(f.Status != "", "status = ?", string(f.Status))
	w.AddIf(params.Search != "", "title ILIKE ?", "%"+params.Search+"%")
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM priorities`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, args := w.Page(params.Limit(), params.Offset())
	rows, err := r.pool.Query(ctx, selectPriority+w.SQL()+` ORDER BY `+params.OrderBy(prioritySorts, "due_date")+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Priority{}
	for rows.Next() {
		p, err := scanPriority(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// GetPriority returns one priority.
func (r *Repository) GetPriority(ctx context.Context, id int64) (Priority, error) {
	p, err := scanPriority(r.pool.QueryRow(ctx, selectPriority+` WHERE id = $1`, id))
	return p, notFound(err)
}

// CreatePriority inserts a priority.
func (r *Repository) CreatePriority(ctx context.Context, p Priority) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO priorities (account_id, title, description, status, due_date, owner_id)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`, p.AccountID, p.Title, p.Description, string(p.Status), p.DueDate, p.OwnerID).Scan(&id)
	return id, mapWriteErr(err, "priority already exists")
}

// UpdatePriority replaces a priority.
func (r *Repository) UpdatePriority(ctx context.Context, p Priority) error {
	return r.execOne(ctx, "priority already exists",
		`UPDATE priorities SET account_id = $2, title = $3, description = $4, status = $5, due_date = $6, owner_id = $7,
	updated_at = NOW() WHERE id = $1`,
		p.ID, p.AccountID, p.Title, p.Description, string(p.Status), p.DueDate, p.OwnerID)
}

// DeletePriority removes a priority.
func (r *Repository) DeletePriority(ctx context.Context, id int64) error {
	return r.deleteOne(ctx, "priority", `DELETE FROM priorities WHERE id = $1`, id)
}
