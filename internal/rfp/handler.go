package rfp

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bizportal/portal/internal/export"
	"github.com/bizportal/portal/internal/platform/httpx"
	"github.com/bizportal/portal/internal/rbac"
	"github.com/bizportal/portal/internal/shared"
)

// Handler exposes /api/rfps.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	recorder export.Recorder
}

// NewHandler builds the RFP handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, recorder export.Recorder) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, recorder: recorder}
}

// MountRoutes registers RFP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	read := h.rbac.RequireAny(rbac.PermRFPRead, rbac.PermRFPWrite)
	write := h.rbac.RequireAny(rbac.PermRFPWrite)

	r.With(read).Get("/", h.list)
	r.With(write).Post("/", h.create)
	r.With(read).Get("/upcoming", h.upcoming)
	r.With(read).Get("/export", h.export)
	r.Route("/{id}", func(r chi.Router) {
		r.With(read).Get("/", h.get)
		r.With(write).Put("/", h.update)
		r.With(write).Delete("/", h.delete)
		r.With(write).Post("/status", h.transition)
		r.With(write).Post("/draft", h.draft)
		r.With(write).Put("/response", h.saveResponse)
	})
}

func filterFrom(r *http.Request) (Filter, error) {
	owner, err := httpx.QueryInt64(r, "owner_id")
	if err != nil {
		return Filter{}, err
	}
	dueBefore, err := httpx.QueryDate(r, "due_before")
	if err != nil {
		return Filter{}, err
	}
	return Filter{Status: Status(r.URL.Query().Get("status")), OwnerID: owner, DueBefore: dueBefore}, nil
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
	h.logger.Info("rfp created", slog.Int64("rfp_id", item.ID), slog.Int64("actor", shared.ActorID(r.Context())))
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

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req StatusRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Transition(r.Context(), id, req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) upcoming(w http.ResponseWriter, r *http.Request) {
	days, err := httpx.QueryInt(r, "days")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	n := DefaultUpcomingDays
	if days != nil {
		if *days < 1 || *days > 365 {
			httpx.RespondError(w, shared.NewValidationError("days", "must be between 1 and 365"))
			return
		}
		n = *days
	}
	items, err := h.service.Upcoming(r.Context(), n)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) draft(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req DraftRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeAndValidate(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	d, err := h.service.Draft(r.Context(), id, req.Instructions)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) saveResponse(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ResponseRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.SaveResponse(r.Context(), id, req.Text)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
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
	export.Serve(w, r, "rfps", Table(items), h.recorder)
}

// Table lays out RFPs for export.
func Table(items []RFP) export.Table {
	t := export.Table{
		Sheet:   "RFPs",
		Headers: []string{"ID", "Title", "Issuer", "Reference", "Status", "Due Date", "Submitted At", "Estimated Value"},
	}
	for _, item := range items {
		t.Rows = append(t.Rows, []any{item.ID, item.Title, item.IssuerName, item.ReferenceNo, string(item.Status),
			item.DueDate, item.SubmittedAt, item.EstimatedValue})
	}
	return t
}
