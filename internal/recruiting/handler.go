package recruiting

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bizportal/portal/internal/export"
	"github.com/bizportal/portal/internal/platform/httpx"
	"github.com/bizportal/portal/internal/rbac"
	"github.com/bizportal/portal/internal/shared"
)

// Handler exposes /api/hr/requisitions.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	recorder export.Recorder
}

// NewHandler builds the requisition handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, recorder export.Recorder) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, recorder: recorder}
}

// MountRoutes registers requisition routes.
func (h *Handler) MountRoutes(r chi.Router) {
	read := h.rbac.RequireAny(rbac.PermRecruitingRead, rbac.PermRecruitingWrite, rbac.PermRecruitingApprove)
	write := h.rbac.RequireAny(rbac.PermRecruitingWrite)
	approve := h.rbac.RequireAny(rbac.PermRecruitingApprove)

	r.With(read).Get("/", h.list)
	r.With(write).Post("/", h.create)
	r.With(read).Get("/export", h.export)
	r.Route("/{id}", func(r chi.Router) {
		r.With(read).Get("/", h.get)
		r.With(read).Get("/approvals", h.approvals)
		r.With(write).Put("/", h.update)
		r.With(write).Delete("/", h.delete)
		r.With(write).Put("/roles", h.replaceRoles)
		r.With(write).Patch("/roles/{roleId}/filled", h.setFilled)
		r.With(write).Post("/submit", h.submit)
		r.With(write).Post("/cancel", h.cancel)
		r.With(approve).Post("/approve", h.approve)
		r.With(approve).Post("/reject", h.reject)
	})
}

func filterFrom(r *http.Request) (Filter, error) {
	account, err := httpx.QueryInt64(r, "account_id")
	if err != nil {
		return Filter{}, err
	}
	q := r.URL.Query()
	return Filter{Status: Status(q.Get("status")), Department: q.Get("department"), AccountID: account}, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f, err := filterFrom(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.List(r.Context(), shared.ParseListParams(r.URL.Query()), f)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) approvals(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.Approvals(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req Request
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) replaceRoles(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req RolesRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.ReplaceRoles(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) setFilled(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	roleID, err := httpx.IDParam(r, "roleId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req FilledRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.SetRoleFilled(r.Context(), id, roleID, req.Filled)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.service.Submit, "submitted")
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.service.Approve, "approved")
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, h.service.Cancel, "cancelled")
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req RejectRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Reject(r.Context(), id, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("requisition rejected", slog.Int64("requisition_id", id), slog.Int64("actor", shared.ActorID(r.Context())))
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) action(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) (Requisition, error), verb string) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := fn(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("requisition "+verb, slog.Int64("requisition_id", id), slog.Int64("actor", shared.ActorID(r.Context())))
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	f, err := filterFrom(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.Export(r.Context(), f)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	export.Serve(w, r, "requisitions", Table(items), h.recorder)
}

// Table lays out requisitions for export.
func Table(items []Requisition) export.Table {
	t := export.Table{
		Sheet: "Requisitions",
		Headers: []string{"ID", "Title", "Department", "Status", "Target Start", "Total Headcount", "Filled Headcount",
			"Fill %", "Approved At", "Rejected Reason"},
	}
	for _, r := range items {
		t.Rows = append(t.Rows, []any{r.ID, r.Title, r.Department, string(r.Status), r.TargetStartDate, r.TotalHeadcount,
			r.FilledHeadcount, r.FillPercent, r.ApprovedAt, r.RejectedReason})
	}
	return t
}
