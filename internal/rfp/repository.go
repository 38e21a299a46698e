package rfp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bizportal/portal/internal/platform/db"
	"github.com/bizportal/portal/internal/shared"
)

// Repository persists RFPs in PostgreSQL.
type Repository struct {
	q db.Querier
}

// NewRepository constructs a repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

const columns = `id, title, issuer_name, company_id, reference_no, status, due_date, submitted_at, estimated_value,
	owner_id, summary, response_draft, created_at, updated_at`

var sorts = map[string]string{
	"title":      "title",
	"due_date":   "due_date",
	"status":     "status",
	"created_at": "created_at",
}

func scan(row pgx.Row) (RFP, error) {
	var r RFP
	err := row.Scan(&r.ID, &r.Title, &r.IssuerName, &r.CompanyID, &r.ReferenceNo, &r.Status, &r.DueDate, &r.SubmittedAt,
		&r.EstimatedValue, &r.OwnerID, &r.Summary, &r.ResponseDraft, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func collect(rows pgx.Rows) ([]RFP, error) {
	defer rows.Close()
	var out []RFP
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func where(params shared.ListParams, f Filter) *db.Where {
	var w db.Where
	w.AddIf(f.Status != "", "status = ?", string(f.Status))
	if f.OwnerID != nil {
		w.Add("owner_id = ?", *f.OwnerID)
	}
	if f.DueBefore != nil {
		w.Add("due_date <= ?", *f.DueBefore)
	}
	like := "%" + params.Search + "%"
	w.AddIf(params.Search != "", "(title ILIKE ? OR issuer_name ILIKE ? OR reference_no ILIKE ?)", like, like, like)
	return &w
}

// List returns a page of RFPs.
func (r *Repository) List(ctx context.Context, params shared.ListParams, f Filter) ([]RFP, int, error) {
	w := where(params, f)
	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM rfps`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, args := w.Page(params.Limit(), params.Offset())
	rows, err := r.q.Query(ctx, `SELECT `+columns+` FROM rfps`+w.SQL()+` ORDER BY `+params.OrderBy(sorts, "due_date")+page, args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows)
	return out, total, err
}

// All returns every RFP matching f, ordered by due date.
func (r *Repository) All(ctx context.Context, f Filter) ([]RFP, error) {
	w := where(shared.ListParams{}, f)
	rows, err := r.q.Query(ctx, `SELECT `+columns+` FROM rfps`+w.SQL()+` ORDER BY due_date, id`, w.Args()...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// DueBetween returns open RFPs due in [from, to] ordered by due date.
func (r *Repository) DueBetween(ctx context.Context, from, to shared.Date) ([]RFP, error) {
	rows, err := r.q.Query(ctx, `SELECT `+columns+` FROM rfps
WHERE status IN ('identified', 'reviewing', 'drafting') AND due_date BETWEEN $1 AND $2
ORDER BY due_date, id`, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Get fetches one RFP.
func (r *Repository) Get(ctx context.Context, id int64) (RFP, error) {
	out, err := scan(r.q.QueryRow(ctx, `SELECT `+columns+` FROM rfps WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return RFP{}, shared.ErrNotFound
	}
	return out, err
}

// Create inserts an RFP.
func (r *Repository) Create(ctx context.Context, in RFP) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `INSERT INTO rfps (title, issuer_name, company_id, reference_no, status, due_date, estimated_value, owner_id, summary)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		in.Title, in.IssuerName, in.CompanyID, in.ReferenceNo, string(in.Status), in.DueDate, in.EstimatedValue, in.OwnerID, in.Summary).Scan(&id)
	return id, mapWriteErr(err)
}

// Update replaces the editable fields.
func (r *Repository) Update(ctx context.Context, in RFP) error {
	tag, err := r.q.Exec(ctx, `UPDATE rfps SET title = $2, issuer_name = $3, company_id = $4, reference_no = $5, due_date = $6,
	estimated_value = $7, owner_id = $8, summary = $9, updated_at = NOW() WHERE id = $1`,
		in.ID, in.Title, in.IssuerName, in.CompanyID, in.ReferenceNo, in.DueDate, in.EstimatedValue, in.OwnerID, in.Summary)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetStatus changes status guarded by the expected current status.
func (r *Repository) SetStatus(ctx context.Context, id int64, from, to Status, submittedAt *time.Time) error {
	tag, err := r.q.Exec(ctx, `UPDATE rfps SET status = $3, submitted_at = COALESCE($4, submitted_at), updated_at = NOW()
WHERE id = $1 AND status = $2`, id, string(from), string(to), submittedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: rfp status changed concurrently", shared.ErrConflict)
	}
	return nil
}

// SetResponse stores the response draft.
func (r *Repository) SetResponse(ctx context.Context, id int64, text string) error {
	tag, err := r.q.Exec(ctx, `UPDATE rfps SET response_draft = $2, updated_at = NOW() WHERE id = $1`, id, text)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes an RFP.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM rfps WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func mapWriteErr(err error) error {
	if db.IsForeignKeyViolation(err) {
		return shared.NewValidationError("company_id", "references a missing record")
	}
	return err
}
