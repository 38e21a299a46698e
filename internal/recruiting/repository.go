package recruiting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bizportal/portal/internal/platform/db"
	"github.com/bizportal/portal/internal/shared"
)

// Repository persists requisitions and their roles.
type Repository struct {
	pool db.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectRequisition = `SELECT r.id, r.title, r.department, r.account_id, r.hiring_manager_id, r.justification, r.status,
	r.target_start_date, r.approved_by, r.approved_at, r.rejected_reason, r.created_by, r.created_at, r.updated_at,
	COALESCE(t.total, 0), COALESCE(t.filled, 0)
FROM requisitions r
LEFT JOIN LATERAL (
	SELECT SUM(count)::int AS total, SUM(filled)::int AS filled FROM requisition_roles WHERE requisition_id = r.id
) t ON TRUE`

var sorts = map[string]string{
	"title":             "r.title",
	"status":            "r.status",
	"department":        "r.department",
	"target_start_date": "r.target_start_date",
	"created_at":        "r.created_at",
}

func scanRequisition(row pgx.Row) (Requisition, error) {
	var r Requisition
	err := row.Scan(&r.ID, &r.Title, &r.Department, &r.AccountID, &r.HiringManagerID, &r.Justification, &r.Status,
		&r.TargetStartDate, &r.ApprovedBy, &r.ApprovedAt, &r.RejectedReason, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt,
		&r.TotalHeadcount, &r.FilledHeadcount)
	if err != nil {
		return Requisition{}, err
	}
	r.FillPercent = shared.Percent(float64(r.FilledHeadcount), float64(r.TotalHeadcount))
	return r, nil
}

func where(params shared.ListParams, f Filter) *db.Where {
	var w db.Where
	w.AddIf(f.Status != "", "r.status = ?", string(f.Status))
	w.AddIf(f.Department != "", "r.department = ?", f.Department)
	if f.AccountID != nil {
		w.Add("r.account_id = ?", *f.AccountID)
	}
	like := "%" + params.Search + "%"
	w.AddIf(params.Search != "", "(r.title ILIKE ? OR r.department ILIKE ?)", like, like)
	return &w
}

func collect(rows pgx.Rows) ([]Requisition, error) {
	defer rows.Close()
	var out []Requisition
	for rows.Next() {
		r, err := scanRequisition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// List returns a page of requisitions without their roles.
func (r *Repository) List(ctx context.Context, params shared.ListParams, f Filter) ([]Requisition, int, error) {
	w := where(params, f)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM requisitions r`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if params.Sort == "" {
		params.Desc = true
	}
	page, args := w.Page(params.Limit(), params.Offset())
	rows, err := r.pool.Query(ctx, selectRequisition+w.SQL()+` ORDER BY `+params.OrderBy(sorts, "r.created_at")+page, args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows)
	return out, total, err
}

// All returns every requisition matching f for export.
func (r *Repository) All(ctx context.Context, f Filter) ([]Requisition, error) {
	w := where(shared.ListParams{}, f)
	rows, err := r.pool.Query(ctx, selectRequisition+w.SQL()+` ORDER BY r.created_at, r.id`, w.Args()...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Get returns a requisition with its roles.
func (r *Repository) Get(ctx context.Context, id int64) (Requisition, error) {
	out, err := scanRequisition(r.pool.QueryRow(ctx, selectRequisition+` WHERE r.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Requisition{}, shared.ErrNotFound
	}
	if err != nil {
		return Requisition{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, requisition_id, role_title, count, filled, shift, bill_rate
FROM requisition_roles WHERE requisition_id = $1 ORDER BY position, id`, id)
	if err != nil {
		return Requisition{}, err
	}
	defer rows.Close()
	out.Roles = []Role{}
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.RequisitionID, &role.RoleTitle, &role.Count, &role.Filled, &role.Shift, &role.BillRate); err != nil {
			return Requisition{}, err
		}
		out.Roles = append(out.Roles, role)
	}
	if err := rows.Err(); err != nil {
		return Requisition{}, err
	}
	out.Reconcile()
	return out, nil
}

// Create inserts a requisition and its roles.
func (r *Repository) Create(ctx context.Context, in Requisition) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO requisitions (title, department, account_id, hiring_manager_id, justification, status, target_start_date, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			in.Title, in.Department, in.AccountID, in.HiringManagerID, in.Justification, string(in.Status), in.TargetStartDate, in.CreatedBy).Scan(&id)
		if err != nil {
			return mapWriteErr(err)
		}
		return insertRoles(ctx, tx, id, in.Roles)
	})
	return id, err
}

// Update replaces the descriptive fields.
func (r *Repository) Update(ctx context.Context, in Requisition) error {
	tag, err := r.pool.Exec(ctx, `UPDATE requisitions SET title = $2, department = $3, account_id = $4, hiring_manager_id = $5,
	justification = $6, target_start_date = $7, updated_at = NOW() WHERE id = $1`,
		in.ID, in.Title, in.Department, in.AccountID, in.HiringManagerID, in.Justification, in.TargetStartDate)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a requisition and its roles.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM requisitions WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: requisition is referenced by new hires", shared.ErrConflict)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ReplaceRoles swaps every role of a requisition.
func (r *Repository) ReplaceRoles(ctx context.Context, id int64, roles []Role) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM requisition_roles WHERE requisition_id = $1`, id); err != nil {
			return err
		}
		if err := insertRoles(ctx, tx, id, roles); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `UPDATE requisitions SET updated_at = NOW() WHERE id = $1`, id)
		return err
	})
}

func insertRoles(ctx context.Context, tx pgx.Tx, id int64, roles []Role) error {
	for i, role := range roles {
		if _, err := tx.Exec(ctx, `INSERT INTO requisition_roles (requisition_id, role_title, count, filled, shift, bill_rate, position)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, id, role.RoleTitle, role.Count, role.Filled, role.Shift, role.BillRate, i); err != nil {
			return err
		}
	}
	return nil
}

// StatusChange carries the fields stamped alongside a status change.
type StatusChange struct {
	ApprovedBy     *int64
	ApprovedAt     *time.Time
	RejectedReason string
}

// SetStatus moves a requisition from one status to another.
func (r *Repository) SetStatus(ctx context.Context, id int64, from, to Status, change StatusChange) error {
	tag, err := r.pool.Exec(ctx, `UPDATE requisitions SET status = $3,
	approved_by = COALESCE($4, approved_by), approved_at = COALESCE($5, approved_at),
	rejected_reason = $6, updated_at = NOW()
WHERE id = $1 AND status = $2`, id, string(from), string(to), change.ApprovedBy, change.ApprovedAt, change.RejectedReason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: requisition status changed concurrently", shared.ErrConflict)
	}
	return nil
}

// SetRoleFilled updates the filled count of one role.
func (r *Repository) SetRoleFilled(ctx context.Context, requisitionID, roleID int64, filled int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE requisition_roles SET filled = $3 WHERE id = $2 AND requisition_id = $1`,
		requisitionID, roleID, filled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UserEmail returns the email of an active user.
func (r *Repository) UserEmail(ctx context.Context, userID int64) (string, error) {
	var email string
	err := r.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1 AND is_active`, userID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return email, err
}

// EmailsWithPermission returns active users granted perm directly or through a wildcard.
func (r *Repository) EmailsWithPermission(ctx context.Context, perm string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT u.email
FROM users u
JOIN user_roles ur ON ur.user_id = u.id
JOIN role_permissions rp ON rp.role_id = ur.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE u.is_active AND (p.name = $1 OR p.name = '*' OR $1 LIKE replace(p.name, '*', '%'))
ORDER BY u.email`, perm)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, rows.Err()
}

func mapWriteErr(err error) error {
	if db.IsForeignKeyViolation(err) {
		return shared.NewValidationError("account_id", "references a missing account or user")
	}
	return err
}
