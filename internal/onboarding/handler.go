package onboarding

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bizportal/portal/internal/platform/httpx"
	"github.com/bizportal/portal/internal/rbac"
	"github.com/bizportal/portal/internal/shared"
)

// Handler exposes /api/hr/new-hires and /api/hr/checklist-items.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds the onboarding handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountNewHires registers new hire routes.
func (h *Handler) MountNewHires(r chi.Router) {
	read := h.rbac.RequireAny(rbac.PermOnboardingRead, rbac.PermOnboardingWrite)
	write := h.rbac.RequireAny(rbac.PermOnboardingWrite)

	r.With(read).Get("/", h.list)
	r.With(write).Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.With(read).Get("/", h.get)
		r.With(write).Put("/", h.update)
		r.With(write).Delete("/", h.delete)
		r.With(write).Post("/status", h.setStatus)
		r.With(read).Get("/checklist", h.checklist)
		r.With(write).Post("/checklist", h.addItem)
	})
}

// MountChecklistItems registers checklist item routes.
func (h *Handler) MountChecklistItems(r chi.Router) {
	write := h.rbac.RequireAny(rbac.PermOnboardingWrite)
	r.With(write).Patch("/{id}", h.toggleItem)
	r.With(write).Delete("/{id}", h.deleteItem)
}

func filterFrom(r *http.Request) (Filter, error) {
	manager, err := httpx.QueryInt64(r, "manager_id")
	if err != nil {
		return Filter{}, err
	}
	from, err := httpx.QueryDate(r, "start_from")
	if err != nil {
		return Filter{}, err
	}
	to, err := httpx.QueryDate(r, "start_to")
	if err != nil {
		return Filter{}, err
	}
	return Filter{Status: Status(r.URL.Query().Get("status")), ManagerID: manager, StartFrom: from, StartTo: to}, nil
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
	hire, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, hire)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	hire, err := h.service.Create(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("new hire created", slog.Int64("new_hire_id", hire.ID), slog.String("start_date", hire.StartDate.String()))
	httpx.JSON(w, http.StatusCreated, hire)
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
	hire, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, hire)
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

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
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
	hire, err := h.service.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, hire)
}

func (h *Handler) checklist(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.Checklist(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ItemRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.AddItem(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, list)
}

func (h *Handler) toggleItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req ToggleRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ToggleItem(r.Context(), id, *req.Completed)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.DeleteItem(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}
