package onboarding

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bizportal/portal/internal/platform/db"
	"github.com/bizportal/portal/internal/shared"
)

// Repository persists new hires and checklist items.
type Repository struct {
	pool db.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectHire = `SELECT h.id, h.first_name, h.last_name, h.email, h.position, h.requisition_id, h.manager_id, h.start_date,
	h.status, h.created_at, h.updated_at, COALESCE(c.total, 0), COALESCE(c.done, 0)
FROM new_hires h
LEFT JOIN LATERAL (
	SELECT COUNT(*)::int AS total, COUNT(*) FILTER (WHERE completed)::int AS done FROM checklist_items WHERE new_hire_id = h.id
) c ON TRUE`

const itemColumns = `id, new_hire_id, stage, title, owner, due_date, completed, completed_at, completed_by, position`

var sorts = map[string]string{
	"start_date": "h.start_date",
	"last_name":  "h.last_name",
	"status":     "h.status",
	"created_at": "h.created_at",
}

func scanHire(row pgx.Row) (NewHire, error) {
	var h NewHire
	err := row.Scan(&h.ID, &h.FirstName, &h.LastName, &h.Email, &h.Position, &h.RequisitionID, &h.ManagerID, &h.StartDate,
		&h.Status, &h.CreatedAt, &h.UpdatedAt, &h.ItemsTotal, &h.ItemsDone)
	if err != nil {
		return NewHire{}, err
	}
	h.Progress = shared.Percent(float64(h.ItemsDone), float64(h.ItemsTotal))
	return h, nil
}

func scanItem(row pgx.Row) (ChecklistItem, error) {
	var it ChecklistItem
	err := row.Scan(&it.ID, &it.NewHireID, &it.Stage, &it.Title, &it.Owner, &it.DueDate, &it.Completed, &it.CompletedAt,
		&it.CompletedBy, &it.Position)
	return it, err
}

// List returns a page of new hires with checklist progress.
func (r *Repository) List(ctx context.Context, params shared.ListParams, f Filter) ([]NewHire, int, error) {
	var w db.Where
	w.AddIf(f.Status != "", "h.status = ?", string(f.Status))
	if f.ManagerID != nil {
		w.Add("h.manager_id = ?", *f.ManagerID)
	}
	if f.StartFrom != nil {
		w.Add("h.start_date >= ?", *f.StartFrom)
	}
	if f.StartTo != nil {
		w.Add("h.start_date <= ?", *f.StartTo)
	}
	like := "%" + params.Search + "%"
	w.AddIf(params.Search != "", "(h.first_name ILIKE ? OR h.last_name ILIKE ? OR h.email ILIKE ?)", like, like, like)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM new_hires h`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, args := w.Page(params.Limit(), params.Offset())
	rows, err := r.pool.Query(ctx, selectHire+w.SQL()+` ORDER BY `+params.OrderBy(sorts, "h.start_date")+`, h.id`+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []NewHire
	for rows.Next() {
		h, err := scanHire(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, h)
	}
	return out, total, rows.Err()
}

// Get returns one new hire.
func (r *Repository) Get(ctx context.Context, id int64) (NewHire, error) {
	h, err := scanHire(r.pool.QueryRow(ctx, selectHire+` WHERE h.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return NewHire{}, shared.ErrNotFound
	}
	return h, err
}

// Create inserts a new hire together with the seeded checklist.
func (r *Repository) Create(ctx context.Context, h NewHire, items []ChecklistItem) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO new_hires (first_name, last_name, email, position, requisition_id, manager_id, start_date, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			h.FirstName, h.LastName, h.Email, h.Position, h.RequisitionID, h.ManagerID, h.StartDate, string(h.Status)).Scan(&id)
		if err != nil {
			return mapWriteErr(err)
		}
		for _, it := range items {
			if _, err := tx.Exec(ctx, `INSERT INTO checklist_items (new_hire_id, stage, title, owner, due_date, position)
VALUES ($1, $2, $3, $4, $5, $6)`, id, string(it.Stage), it.Title, it.Owner, it.DueDate, it.Position); err != nil {
				return err
			}
		}
		return nil
	})
	return id, err
}

// Update replaces hire fields. When the start date moves, due dates shift by the same number of days.
func (r *Repository) Update(ctx context.Context, h NewHire, previousStart shared.Date) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE new_hires SET first_name = $2, last_name = $3, email = $4, position = $5, requisition_id = $6,
	manager_id = $7, start_date = $8, updated_at = NOW() WHERE id = $1`,
			h.ID, h.FirstName, h.LastName, h.Email, h.Position, h.RequisitionID, h.ManagerID, h.StartDate)
		if err != nil {
			return mapWriteErr(err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if shift := previousStart.DaysUntil(h.StartDate); shift != 0 {
			if _, err := tx.Exec(ctx, `UPDATE checklist_items SET due_date = due_date + $2::int WHERE new_hire_id = $1`, h.ID, shift); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetStatus changes the hire status.
func (r *Repository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE new_hires SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a new hire and the checklist.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM new_hires WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Items returns the checklist of a new hire in stage order.
func (r *Repository) Items(ctx context.Context, newHireID int64) ([]ChecklistItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM checklist_items WHERE new_hire_id = $1 ORDER BY due_date, position, id`, newHireID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChecklistItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// GetItem returns one checklist item.
func (r *Repository) GetItem(ctx context.Context, id int64) (ChecklistItem, error) {
	it, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM checklist_items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ChecklistItem{}, shared.ErrNotFound
	}
	return it, err
}

// SetItemCompleted marks an item complete or clears its completion.
func (r *Repository) SetItemCompleted(ctx context.Context, id int64, completed bool, by *int64, at *time.Time) error {
	if !completed {
		by, at = nil, nil
	}
	tag, err := r.pool.Exec(ctx, `UPDATE checklist_items SET completed = $2, completed_by = $3, completed_at = $4 WHERE id = $1`,
		id, completed, by, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AddItem appends an item at the end of its stage.
func (r *Repository) AddItem(ctx context.Context, it ChecklistItem) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO checklist_items (new_hire_id, stage, title, owner, due_date, position)
SELECT $1, $2, $3, $4, $5, COALESCE(MAX(position) + 1, 0) FROM checklist_items WHERE new_hire_id = $1
RETURNING id`, it.NewHireID, string(it.Stage), it.Title, it.Owner, it.DueDate).Scan(&id)
	if db.IsForeignKeyViolation(err) {
		return 0, shared.ErrNotFound
	}
	return id, err
}

// DeleteItem removes a checklist item.
func (r *Repository) DeleteItem(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM checklist_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// OverdueItems returns incomplete items due before asOf for hires still onboarding.
func (r *Repository) OverdueItems(ctx context.Context, asOf shared.Date) ([]OverdueItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.id, i.new_hire_id, i.stage, i.title, i.owner, i.due_date, i.completed, i.completed_at,
	i.completed_by, i.position, TRIM(h.first_name || ' ' || h.last_name), h.email, COALESCE(m.email, '')
FROM checklist_items i
JOIN new_hires h ON h.id = i.new_hire_id
LEFT JOIN users m ON m.id = h.manager_id AND m.is_active
WHERE NOT i.completed AND i.due_date < $1 AND h.status IN ('pending', 'in_progress')
ORDER BY h.id, i.due_date, i.position`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OverdueItem
	for rows.Next() {
		var o OverdueItem
		if err := rows.Scan(&o.ID, &o.NewHireID, &o.Stage, &o.Title, &o.Owner, &o.DueDate, &o.Completed, &o.CompletedAt,
			&o.CompletedBy, &o.Position, &o.HireName, &o.HireEmail, &o.ManagerEmail); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func mapWriteErr(err error) error {
	switch {
	case db.IsUniqueViolation(err):
		return shared.NewValidationError("email", "a new hire with this email already exists")
	case db.IsForeignKeyViolation(err):
		return shared.NewValidationError("requisition_id", "references a missing requisition or manager")
	}
	return err
}
