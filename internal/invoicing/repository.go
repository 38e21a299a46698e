package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bizportal/portal/internal/platform/db"
	"github.com/bizportal/portal/internal/shared"
)

// Repository persists invoices, their roles and comments.
type Repository struct {
	pool db.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectInvoice = `SELECT id, number, account_id, client_name, period_start, period_end, due_date, currency, tax_rate,
	status, notes, subtotal, tax_amount, total, approved_by, created_by, created_at, updated_at
FROM invoices`

var sorts = map[string]string{
	"number":       "number",
	"client_name":  "client_name",
	"status":       "status",
	"period_start": "period_start",
	"due_date":     "due_date",
	"total":        "total",
	"created_at":   "created_at",
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.Number, &inv.AccountID, &inv.ClientName, &inv.PeriodStart, &inv.PeriodEnd, &inv.DueDate,
		&inv.Currency, &inv.TaxRate, &status, &inv.Notes, &inv.Subtotal, &inv.TaxAmount, &inv.Total,
		&inv.ApprovedBy, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	inv.Status = Status(status)
	return inv, err
}

func where(params shared.ListParams, f Filter) *db.Where {
	var w db.Where
	w.AddIf(f.Status != "", "status = ?", string(f.Status))
	if f.AccountID != nil {
		w.Add("account_id = ?", *f.AccountID)
	}
	if f.PeriodFrom != nil {
		w.Add("period_end >= ?", *f.PeriodFrom)
	}
	if f.PeriodTo != nil {
		w.Add("period_start <= ?", *f.PeriodTo)
	}
	like := "%" + params.Search + "%"
	w.AddIf(params.Search != "", "(number ILIKE ? OR client_name ILIKE ?)", like, like)
	return &w
}

func collect(rows pgx.Rows) ([]Invoice, error) {
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// List returns a page of invoices without roles.
func (r *Repository) List(ctx context.Context, params shared.ListParams, f Filter) ([]Invoice, int, error) {
	w := where(params, f)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if params.Sort == "" {
		params.Desc = true
	}
	page, args := w.Page(params.Limit(), params.Offset())
	rows, err := r.pool.Query(ctx, selectInvoice+w.SQL()+` ORDER BY `+params.OrderBy(sorts, "created_at")+page, args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows)
	return out, total, err
}

// All returns every invoice matching f for export.
func (r *Repository) All(ctx context.Context, f Filter) ([]Invoice, error) {
	w := where(shared.ListParams{}, f)
	rows, err := r.pool.Query(ctx, selectInvoice+w.SQL()+` ORDER BY number`, w.Args()...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// Get returns an invoice with its roles.
func (r *Repository) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, selectInvoice+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.ErrNotFound
	}
	if err != nil {
		return Invoice{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, role_name, headcount, hours, rate, amount
FROM invoice_roles WHERE invoice_id = $1 ORDER BY position, id`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	inv.Roles = []Role{}
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.InvoiceID, &role.RoleName, &role.Headcount, &role.Hours, &role.Rate, &role.Amount); err != nil {
			return Invoice{}, err
		}
		inv.Roles = append(inv.Roles, role)
	}
	return inv, rows.Err()
}

// NextNumber reserves the next INV-YYYYMM-NNNN number for the month of at.
func NextNumber(ctx context.Context, q db.Querier, at time.Time) (string, error) {
	period := at.Format("200601")
	var seq int
	err := q.QueryRow(ctx, `INSERT INTO invoice_sequences (period, last_value) VALUES ($1, 1)
ON CONFLICT (period) DO UPDATE SET last_value = invoice_sequences.last_value + 1
RETURNING last_value`, period).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("reserve invoice number: %w", err)
	}
	return fmt.Sprintf("INV-%s-%04d", period, seq), nil
}

// Create numbers and inserts an invoice with its roles. Concurrent creates in
// one month queue on the sequence row, so it runs at ReadCommitted and is
// rerun on serialization failures.
func (r *Repository) Create(ctx context.Context, in Invoice, at time.Time) (int64, error) {
	var id int64
	err := db.WithTxRetry(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		number, err := NextNumber(ctx, tx, at)
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `INSERT INTO invoices (number, account_id, client_name, period_start, period_end, due_date, currency,
	tax_rate, status, notes, subtotal, tax_amount, total, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
			number, in.AccountID, in.ClientName, in.PeriodStart, in.PeriodEnd, in.DueDate, in.Currency,
			in.TaxRate, string(in.Status), in.Notes, in.Subtotal, in.TaxAmount, in.Total, in.CreatedBy).Scan(&id)
		if err != nil {
			return mapWriteErr(err)
		}
		return insertRoles(ctx, tx, id, in.Roles)
	})
	return id, err
}

// Update replaces the header fields and stored totals.
func (r *Repository) Update(ctx context.Context, in Invoice) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET account_id = $2, client_name = $3, period_start = $4, period_end = $5,
	due_date = $6, currency = $7, tax_rate = $8, notes = $9, subtotal = $10, tax_amount = $11, total = $12, updated_at = NOW()
WHERE id = $1 AND status = 'draft'`,
		in.ID, in.AccountID, in.ClientName, in.PeriodStart, in.PeriodEnd, in.DueDate, in.Currency, in.TaxRate, in.Notes,
		in.Subtotal, in.TaxAmount, in.Total)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice is no longer a draft", shared.ErrConflict)
	}
	return nil
}

// ReplaceRoles swaps every line of a draft invoice and stores the new totals.
func (r *Repository) ReplaceRoles(ctx context.Context, in Invoice) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE invoices SET subtotal = $2, tax_amount = $3, total = $4, updated_at = NOW()
WHERE id = $1 AND status = 'draft'`, in.ID, in.Subtotal, in.TaxAmount, in.Total)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: invoice is no longer a draft", shared.ErrConflict)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM invoice_roles WHERE invoice_id = $1`, in.ID); err != nil {
			return err
		}
		return insertRoles(ctx, tx, in.ID, in.Roles)
	})
}

func insertRoles(ctx context.Context, tx pgx.Tx, id int64, roles []Role) error {
	for i, role := range roles {
		if _, err := tx.Exec(ctx, `INSERT INTO invoice_roles (invoice_id, role_name, headcount, hours, rate, amount, position)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, id, role.RoleName, role.Headcount, role.Hours, role.Rate, role.Amount, i); err != nil {
			return err
		}
	}
	return nil
}

// SetStatus moves an invoice from one status to another. approvedBy is stamped when set.
func (r *Repository) SetStatus(ctx context.Context, id int64, from, to Status, approvedBy *int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET status = $3, approved_by = COALESCE($4, approved_by), updated_at = NOW()
WHERE id = $1 AND status = $2`, id, string(from), string(to), approvedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice status changed concurrently", shared.ErrConflict)
	}
	return nil
}

// Delete removes a draft invoice.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1 AND status = 'draft'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: only draft invoices can be deleted", shared.ErrConflict)
	}
	return nil
}

// Comments lists the comments of an invoice, oldest first.
func (r *Repository) Comments(ctx context.Context, id int64) ([]Comment, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.id, c.invoice_id, c.author_id, COALESCE(u.name, ''), c.body, c.created_at
FROM invoice_comments c LEFT JOIN users u ON u.id = c.author_id
WHERE c.invoice_id = $1 ORDER BY c.created_at, c.id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.InvoiceID, &c.AuthorID, &c.AuthorName, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddComment stores a comment.
func (r *Repository) AddComment(ctx context.Context, c Comment) (Comment, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO invoice_comments (invoice_id, author_id, body) VALUES ($1, $2, $3)
RETURNING id, created_at`, c.InvoiceID, c.AuthorID, c.Body).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Comment{}, shared.ErrNotFound
		}
		return Comment{}, err
	}
	return c, nil
}

func mapWriteErr(err error) error {
	if db.IsForeignKeyViolation(err) {
		return shared.NewValidationError("account_id", "references a missing account")
	}
	return err
}
