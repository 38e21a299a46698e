package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/bizportal/portal/internal/export"
	"github.com/bizportal/portal/internal/platform/httpx"
	"github.com/bizportal/portal/internal/rbac"
	"github.com/bizportal/portal/internal/shared"
)

const (
	exportRateLimit  = 10
	exportRateWindow = time.Minute
	defaultRange     = 7 * 24 * time.Hour
	maxRange         = 90 * 24 * time.Hour
)

// TimelineService is the contract the handler needs.
type TimelineService interface {
	Timeline(ctx context.Context, f TimelineFilters) (Result, error)
	Export(ctx context.Context, f TimelineFilters) ([]TimelineRow, error)
}

// Handler exposes /api/audit.
type Handler struct {
	logger   *slog.Logger
	service  TimelineService
	rbac     rbac.Middleware
	recorder export.Recorder
	now      func() time.Time
}

// NewHandler builds the audit handler.
func NewHandler(logger *slog.Logger, service TimelineService, rbac rbac.Middleware, recorder export.Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, recorder: recorder, now: time.Now}
}

// MountRoutes registers the timeline and its rate limited export.
func (h *Handler) MountRoutes(r chi.Router) {
	limiter := httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "audit export rate limit exceeded")
		}),
	)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.PermAuditRead))
		r.Get("/", h.timeline)
		r.With(limiter).Get("/export", h.export)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		return "user:" + strconv.FormatInt(p.UserID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), f)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), f)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	export.Serve(w, r, "audit_timeline", Table(rows), h.recorder)
}

// parseFilters reads from/to as inclusive dates. The default window is the last
// seven days and windows longer than ninety days are rejected.
func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	to := shared.NewDate(h.now().UTC())
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := shared.ParseDate(v)
		if err != nil {
			return TimelineFilters{}, shared.NewValidationError("to", "must be YYYY-MM-DD")
		}
		to = parsed
	}
	from := shared.NewDate(to.Add(-defaultRange))
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := shared.ParseDate(v)
		if err != nil {
			return TimelineFilters{}, shared.NewValidationError("from", "must be YYYY-MM-DD")
		}
		from = parsed
	}
	if from.After(to.Time) {
		return TimelineFilters{}, shared.NewValidationError("from", "must not be after to")
	}
	if to.Sub(from.Time) > maxRange {
		return TimelineFilters{}, shared.NewValidationError("from", "range must not exceed 90 days")
	}
	page, err := httpx.QueryInt(r, "page")
	if err != nil {
		return TimelineFilters{}, err
	}
	pageSize, err := httpx.QueryInt(r, "page_size")
	if err != nil {
		return TimelineFilters{}, err
	}
	f := TimelineFilters{
		From:     from.Time,
		To:       to.AddDays(1).Time,
		Actor:    q.Get("actor"),
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
	}
	if page != nil {
		f.Page = *page
	}
	if pageSize != nil {
		f.PageSize = *pageSize
	}
	return f, nil
}

// Table lays out timeline rows for export.
func Table(rows []TimelineRow) export.Table {
	t := export.Table{
		Sheet:   "Audit",
		Headers: []string{"At", "Actor", "Action", "Entity", "Entity ID", "Meta"},
	}
	for _, row := range rows {
		at := row.At
		t.Rows = append(t.Rows, []any{&at, row.Actor, row.Action, row.Entity, row.EntityID, string(row.Meta)})
	}
	return t
}
