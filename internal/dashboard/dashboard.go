// Package dashboard aggregates the headline figures of every business module.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/bizportal/portal/internal/platform/cache"
	"github.com/bizportal/portal/internal/platform/db"
	"github.com/bizportal/portal/internal/platform/httpx"
	"github.com/bizportal/portal/internal/rbac"
	"github.com/bizportal/portal/internal/rfp"
	"github.com/bizportal/portal/internal/sales"
	"github.com/bizportal/portal/internal/shared"
)

// CacheTTL bounds how stale a served snapshot may be.
const CacheTTL = 60 * time.Second

// UpcomingDays is the RFP due-date window shown on the dashboard.
const UpcomingDays = 14

// Snapshot is the dashboard payload.
type Snapshot struct {
	Pipeline            sales.PipelineSummary `json:"pipeline"`
	UpcomingRFPs        []rfp.Upcoming        `json:"upcoming_rfps"`
	OpenRequisitions    RequisitionStats      `json:"open_requisitions"`
	Onboarding          OnboardingStats       `json:"onboarding"`
	OutstandingInvoices InvoiceStats          `json:"outstanding_invoices"`
	GeneratedAt         time.Time             `json:"generated_at"`
}

// RequisitionStats counts requisitions still being staffed.
type RequisitionStats struct {
	Count           int `json:"count"`
	OpenHeadcount   int `json:"open_headcount"`
	PendingApproval int `json:"pending_approval"`
}

// OnboardingStats counts hires whose onboarding is active.
type OnboardingStats struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Total      int `json:"total"`
}

// InvoiceStats totals approved and sent invoices that are not yet paid.
type InvoiceStats struct {
	Count      int                `json:"count"`
	Total      float64            `json:"total"`
	ByCurrency map[string]float64 `json:"by_currency"`
}

// PipelineSource provides the sales funnel.
type PipelineSource interface {
	PipelineSummary(ctx context.Context) (sales.PipelineSummary, error)
}

// RFPSource provides RFPs due soon.
type RFPSource interface {
	Upcoming(ctx context.Context, days int) ([]rfp.Upcoming, error)
}

// CountsSource provides the aggregate counts read straight from the database.
type CountsSource interface {
	OpenRequisitions(ctx context.Context) (RequisitionStats, error)
	Onboarding(ctx context.Context) (OnboardingStats, error)
	OutstandingInvoices(ctx context.Context) (InvoiceStats, error)
}

// Service assembles snapshots.
type Service struct {
	pipeline PipelineSource
	rfps     RFPSource
	counts   CountsSource
	cache    *cache.JSON
	now      func() time.Time
}

// NewService builds the service. A nil cache serves every request live.
func NewService(pipeline PipelineSource, rfps RFPSource, counts CountsSource, c *cache.JSON) *Service {
	return &Service{pipeline: pipeline, rfps: rfps, counts: counts, cache: c, now: time.Now}
}

// Snapshot returns the cached snapshot, loading it on a miss.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	var out Snapshot
	err := s.cache.Fetch(ctx, "snapshot", &out, func(ctx context.Context) (any, error) {
		return s.load(ctx)
	})
	return out, err
}

func (s *Service) load(ctx context.Context) (Snapshot, error) {
	out := Snapshot{GeneratedAt: s.now().UTC()}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		summary, err := s.pipeline.PipelineSummary(ctx)
		if err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
		out.Pipeline = summary
		return nil
	})
	g.Go(func() error {
		items, err := s.rfps.Upcoming(ctx, UpcomingDays)
		if err != nil {
			return fmt.Errorf("upcoming rfps: %w", err)
		}
		if items == nil {
			items = []rfp.Upcoming{}
		}
		out.UpcomingRFPs = items
		return nil
	})
	g.Go(func() error {
		stats, err := s.counts.OpenRequisitions(ctx)
		if err != nil {
			return fmt.Errorf("open requisitions: %w", err)
		}
		out.OpenRequisitions = stats
		return nil
	})
	g.Go(func() error {
		stats, err := s.counts.Onboarding(ctx)
		if err != nil {
			return fmt.Errorf("onboarding: %w", err)
		}
		out.Onboarding = stats
		return nil
	})
	g.Go(func() error {
		stats, err := s.counts.OutstandingInvoices(ctx)
		if err != nil {
			return fmt.Errorf("outstanding invoices: %w", err)
		}
		out.OutstandingInvoices = stats
		return nil
	})

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return out, nil
}

// Repository reads dashboard counts from PostgreSQL.
type Repository struct {
	q db.Querier
}

// NewRepository constructs a Repository.
func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// OpenRequisitions counts approved requisitions with unfilled headcount and those awaiting approval.
func (r *Repository) OpenRequisitions(ctx context.Context) (RequisitionStats, error) {
	var out RequisitionStats
	err := r.q.QueryRow(ctx, `SELECT
	COUNT(*) FILTER (WHERE r.status = 'approved'),
	COALESCE(SUM(t.open) FILTER (WHERE r.status = 'approved'), 0)::int,
	COUNT(*) FILTER (WHERE r.status = 'pending_approval')
FROM requisitions r
LEFT JOIN LATERAL (
	SELECT SUM(count - filled) AS open FROM requisition_roles WHERE requisition_id = r.id
) t ON TRUE`).Scan(&out.Count, &out.OpenHeadcount, &out.PendingApproval)
	return out, err
}

// Onboarding counts hires that are pending or in progress.
func (r *Repository) Onboarding(ctx context.Context) (OnboardingStats, error) {
	var out OnboardingStats
	err := r.q.QueryRow(ctx, `SELECT
	COUNT(*) FILTER (WHERE status = 'pending'),
	COUNT(*) FILTER (WHERE status = 'in_progress')
FROM new_hires`).Scan(&out.Pending, &out.InProgress)
	out.Total = out.Pending + out.InProgress
	return out, err
}

// OutstandingInvoices totals approved and sent invoices per currency.
func (r *Repository) OutstandingInvoices(ctx context.Context) (InvoiceStats, error) {
	rows, err := r.q.Query(ctx, `SELECT currency, COUNT(*), COALESCE(SUM(total), 0)
FROM invoices WHERE status IN ('approved', 'sent') GROUP BY currency ORDER BY currency`)
	if err != nil {
		return InvoiceStats{}, err
	}
	defer rows.Close()
	out := InvoiceStats{ByCurrency: map[string]float64{}}
	for rows.Next() {
		var currency string
		var count int
		var total float64
		if err := rows.Scan(&currency, &count, &total); err != nil {
			return InvoiceStats{}, err
		}
		out.Count += count
		out.Total = shared.RoundCents(out.Total + total)
		out.ByCurrency[currency] = total
	}
	return out, rows.Err()
}

// Handler exposes GET /api/dashboard.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds the dashboard handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers the dashboard route. Any signed-in user may read it.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny()).Get("/", h.snapshot)
}

func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("load dashboard", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
