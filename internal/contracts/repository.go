package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bizportal/portal/internal/platform/db"
	"github.com/bizportal/portal/internal/shared"
)

// Repository persists generated contract records.
type Repository struct {
	q db.Querier
}

// NewRepository constructs a repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

const columns = `id, doc_type, client_name, params, filename, created_by, created_at`

var sorts = map[string]string{
	"client_name": "client_name",
	"created_at":  "created_at",
	"type":        "doc_type",
}

func scan(row pgx.Row) (Contract, error) {
	var (
		c   Contract
		raw []byte
	)
	if err := row.Scan(&c.ID, &c.Type, &c.ClientName, &raw, &c.Filename, &c.CreatedBy, &c.CreatedAt); err != nil {
		return Contract{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.Params); err != nil {
			return Contract{}, fmt.Errorf("decode contract %d params: %w", c.ID, err)
		}
	}
	return c, nil
}

// List returns a page of contracts, newest first by default.
func (r *Repository) List(ctx context.Context, params shared.ListParams, f Filter) ([]Contract, int, error) {
	var w db.Where
	w.AddIf(f.Type != "", "doc_type = ?", string(f.Type))
	w.AddIf(params.Search != "", "client_name ILIKE ?", "%"+params.Search+"%")

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM contracts`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if params.Sort == "" {
		params.Desc = true
	}
	page, args := w.Page(params.Limit(), params.Offset())
	rows, err := r.q.Query(ctx, `SELECT `+columns+` FROM contracts`+w.SQL()+` ORDER BY `+params.OrderBy(sorts, "created_at")+`, id DESC`+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Contract
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Get fetches one contract.
func (r *Repository) Get(ctx context.Context, id int64) (Contract, error) {
	c, err := scan(r.q.QueryRow(ctx, `SELECT `+columns+` FROM contracts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Contract{}, shared.ErrNotFound
	}
	return c, err
}

// Create records a generated document.
func (r *Repository) Create(ctx context.Context, c Contract) (int64, error) {
	params, err := json.Marshal(c.Params)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.q.QueryRow(ctx, `INSERT INTO contracts (doc_type, client_name, params, filename, created_by)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, string(c.Type), c.ClientName, string(params), c.Filename, c.CreatedBy).Scan(&id)
	return id, err
}
