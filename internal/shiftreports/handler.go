package shiftreports

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bizportal/portal/internal/export"
	"github.com/bizportal/portal/internal/platform/httpx"
	"github.com/bizportal/portal/internal/rbac"
	"github.com/bizportal/portal/internal/shared"
)

// Handler exposes /api/shift-reports.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	recorder export.Recorder
}

// NewHandler builds the shift report handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, recorder export.Recorder) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, recorder: recorder}
}

// MountRoutes registers shift report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	read := h.rbac.RequireAny(rbac.PermShiftReportsRead, rbac.PermShiftReportsWrite)
	write := h.rbac.RequireAny(rbac.PermShiftReportsWrite)

	r.With(read).Get("/summary", h.summary)
	r.With(read).Get("/export", h.export)

	r.Route("/accounts", func(r chi.Router) {
		r.With(read).Get("/", h.listAccounts)
		r.With(write).Post("/", h.createAccount)
		r.With(write).Put("/{id}", h.updateAccount)
		r.With(write).Delete("/{id}", remove(h.service.DeleteAccount))
	})
	r.Route("/team-leaders", func(r chi.Router) {
		r.With(read).Get("/", h.listTeamLeaders)
		r.With(write).Post("/", h.createTeamLeader)
		r.With(write).Put("/{id}", h.updateTeamLeader)
		r.With(write).Delete("/{id}", remove(h.service.DeleteTeamLeader))
	})
	r.Route("/metrics", func(r chi.Router) {
		r.With(read).Get("/", h.listMetrics)
		r.With(write).Post("/", h.createMetric)
		r.With(write).Put("/{id}", h.updateMetric)
		r.With(write).Delete("/{id}", remove(h.service.DeleteMetric))
	})
	r.Route("/priorities", func(r chi.Router) {
		r.With(read).Get("/", h.listPriorities)
		r.With(write).Post("/", h.createPriority)
		r.With(write).Put("/{id}", h.updatePriority)
		r.With(write).Delete("/{id}", remove(h.service.DeletePriority))
	})
	r.Route("/reports", func(r chi.Router) {
		r.With(read).Get("/", h.listReports)
		r.With(write).Post("/", h.createReport)
		r.With(read).Get("/{id}", h.getReport)
		r.With(write).Put("/{id}", h.updateReport)
		r.With(write).Delete("/{id}", remove(h.service.DeleteReport))
	})
}

func remove(fn func(ctx context.Context, id int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := fn(r.Context(), id); err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.NoContent(w)
	}
}

func decodeAnd[Req, Out any](w http.ResponseWriter, r *http.Request, status int, fn func(ctx context.Context, req Req) (Out, error)) {
	var req Req
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := fn(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, out)
}

func update[Req, Out any](w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64, req Req) (Out, error)) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	decodeAnd(w, r, http.StatusOK, func(ctx context.Context, req Req) (Out, error) {
		return fn(ctx, id, req)
	})
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	active, err := httpx.QueryBool(r, "active")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.ListAccounts(r.Context(), active != nil && *active)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	decodeAnd(w, r, http.StatusCreated, h.service.CreateAccount)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	update(w, r, h.service.UpdateAccount)
}

func (h *Handler) listTeamLeaders(w http.ResponseWriter, r *http.Request) {
	account, err := httpx.QueryInt64(r, "account_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.ListTeamLeaders(r.Context(), account)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) createTeamLeader(w http.ResponseWriter, r *http.Request) {
	decodeAnd(w, r, http.StatusCreated, h.service.CreateTeamLeader)
}

func (h *Handler) updateTeamLeader(w http.ResponseWriter, r *http.Request) {
	update(w, r, h.service.UpdateTeamLeader)
}

func (h *Handler) listMetrics(w http.ResponseWriter, r *http.Request) {
	account, err := httpx.QueryInt64(r, "account_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.ListMetrics(r.Context(), account)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) createMetric(w http.ResponseWriter, r *http.Request) {
	decodeAnd(w, r, http.StatusCreated, h.service.CreateMetric)
}

func (h *Handler) updateMetric(w http.ResponseWriter, r *http.Request) {
	update(w, r, h.service.UpdateMetric)
}

func (h *Handler) listPriorities(w http.ResponseWriter, r *http.Request) {
	account, err := httpx.QueryInt64(r, "account_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	owner, err := httpx.QueryInt64(r, "owner_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	f := PriorityFilter{AccountID: account, OwnerID: owner, Status: PriorityStatus(r.URL.Query().Get("status"))}
	page, err := h.service.ListPriorities(r.Context(), shared.ParseListParams(r.URL.Query()), f)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) createPriority(w http.ResponseWriter, r *http.Request) {
	decodeAnd(w, r, http.StatusCreated, h.service.CreatePriority)
}

func (h *Handler) updatePriority(w http.ResponseWriter, r *http.Request) {
	update(w, r, h.service.UpdatePriority)
}

func reportFilterFrom(r *http.Request) (ReportFilter, error) {
	var f ReportFilter
	var err error
	if f.AccountID, err = httpx.QueryInt64(r, "account_id"); err != nil {
		return f, err
	}
	if f.TeamLeaderID, err = httpx.QueryInt64(r, "team_leader_id"); err != nil {
		return f, err
	}
	if f.From, err = httpx.QueryDate(r, "from"); err != nil {
		return f, err
	}
	if f.To, err = httpx.QueryDate(r, "to"); err != nil {
		return f, err
	}
	if f.From != nil && f.To != nil && f.To.Before(f.From.Time) {
		return f, shared.NewValidationError("to", "must not be before from")
	}
	f.Shift = Shift(r.URL.Query().Get("shift"))
	return f, nil
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	f, err := reportFilterFrom(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListReports(r.Context(), shared.ParseListParams(r.URL.Query()), f)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.GetReport(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) createReport(w http.ResponseWriter, r *http.Request) {
	decodeAnd(w, r, http.StatusCreated, h.service.CreateReport)
}

func (h *Handler) updateReport(w http.ResponseWriter, r *http.Request) {
	update(w, r, h.service.UpdateReport)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	f, err := reportFilterFrom(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Summary(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	f, err := reportFilterFrom(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.Export(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	export.Serve(w, r, "shift_reports", Table(items), h.recorder)
}

// Table lays out shift reports for export. Metric readings are folded into one column.
func Table(items []Report) export.Table {
	t := export.Table{
		Sheet:   "Shift Reports",
		Headers: []string{"Date", "Shift", "Account", "Team Leader", "Scheduled", "Present", "Attendance %", "Metrics", "Notes"},
	}
	for _, rep := range items {
		readings := make([]string, 0, len(rep.Values))
		for _, v := range rep.Values {
			readings = append(readings, fmt.Sprintf("%s: %g%s (%.1f%%)", v.MetricName, v.Value, unitSuffix(v.Unit), v.Attainment))
		}
		date := rep.ShiftDate
		t.Rows = append(t.Rows, []any{&date, string(rep.Shift), rep.AccountName, rep.TeamLeaderName, rep.Scheduled, rep.Present,
			rep.AttendancePercent, strings.Join(readings, "; "), rep.Notes})
	}
	return t
}

func unitSuffix(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}
