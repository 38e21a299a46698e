// Package audit serves the audit_logs timeline written by every mutating service.
package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bizportal/portal/internal/platform/db"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Repository reads audit_logs.
type Repository struct {
	q db.Querier
}

// NewRepository constructs a Repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

const selectTimeline = `SELECT l.id, l.occurred_at, l.actor_id, COALESCE(u.email, ''), l.action, l.entity, l.entity_id, COALESCE(l.meta, 'null'::jsonb)
FROM audit_logs l LEFT JOIN users u ON u.id = l.actor_id`

func timelineWhere(f TimelineFilters) *db.Where {
	var w db.Where
	w.AddIf(!f.From.IsZero(), "l.occurred_at >= ?", f.From)
	w.AddIf(!f.To.IsZero(), "l.occurred_at < ?", f.To)
	w.AddIf(f.Actor != "", "u.email ILIKE ?", "%"+f.Actor+"%")
	w.AddIf(f.Entity != "", "l.entity = ?", f.Entity)
	w.AddIf(f.EntityID != "", "l.entity_id = ?", f.EntityID)
	w.AddIf(f.Action != "", "l.action = ?", f.Action)
	return &w
}

// Window returns up to limit rows newest first, skipping offset.
func (r *Repository) Window(ctx context.Context, f TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	w := timelineWhere(f)
	page, args := w.Page(limit, offset)
	rows, err := r.q.Query(ctx, selectTimeline+w.SQL()+` ORDER BY l.occurred_at DESC, l.id DESC`+page, args...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// All returns every row matching f, newest first.
func (r *Repository) All(ctx context.Context, f TimelineFilters) ([]TimelineRow, error) {
	w := timelineWhere(f)
	rows, err := r.q.Query(ctx, selectTimeline+w.SQL()+` ORDER BY l.occurred_at DESC, l.id DESC`, w.Args()...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]TimelineRow, error) {
	defer rows.Close()
	out := []TimelineRow{}
	for rows.Next() {
		var row TimelineRow
		var meta []byte
		if err := rows.Scan(&row.ID, &row.At, &row.ActorID, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		row.Meta = meta
		out = append(out, row)
	}
	return out, rows.Err()
}

// RepositoryPort is the persistence the timeline service needs.
type RepositoryPort interface {
	Window(ctx context.Context, f TimelineFilters, limit, offset int) ([]TimelineRow, error)
	All(ctx context.Context, f TimelineFilters) ([]TimelineRow, error)
}

// Service pages through the audit timeline.
type Service struct {
	repo RepositoryPort
}

// NewService builds the timeline service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page. It fetches one extra row to learn whether a next page exists.
func (s *Service) Timeline(ctx context.Context, f TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := f.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.Window(ctx, normalize(f), pageSize+1, (page-1)*pageSize)
	if err != nil {
		return Result{}, fmt.Errorf("audit timeline: %w", err)
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns the whole filtered timeline.
func (s *Service) Export(ctx context.Context, f TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	rows, err := s.repo.All(ctx, normalize(f))
	if err != nil {
		return nil, fmt.Errorf("export audit timeline: %w", err)
	}
	return rows, nil
}

func normalize(f TimelineFilters) TimelineFilters {
	f.Actor = strings.TrimSpace(f.Actor)
	f.Entity = strings.TrimSpace(f.Entity)
	f.EntityID = strings.TrimSpace(f.EntityID)
	f.Action = strings.TrimSpace(f.Action)
	return f
}
