package contracts

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bizportal/portal/internal/export"
	"github.com/bizportal/portal/internal/platform/httpx"
	"github.com/bizportal/portal/internal/rbac"
	"github.com/bizportal/portal/internal/shared"
)

// Handler exposes /api/contracts.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	recorder export.Recorder
}

// NewHandler builds the contracts handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, recorder export.Recorder) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, recorder: recorder}
}

// MountRoutes registers contract routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAny(rbac.PermContractsGenerate))
	r.Get("/", h.list)
	r.Post("/generate", h.generate)
	r.Post("/draft-scope", h.draftScope)
	r.Get("/{id}/download", h.download)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.List(r.Context(), shared.ParseListParams(r.URL.Query()),
		Filter{Type: DocType(strings.ToUpper(r.URL.Query().Get("type")))})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	file, record, err := h.service.Generate(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("contract generated",
		slog.Int64("contract_id", record.ID),
		slog.String("type", string(record.Type)),
		slog.String("filename", file.Filename))
	h.served(record.Type, req.OutputFormat())
	w.Header().Set("X-Contract-ID", strconv.FormatInt(record.ID, 10))
	httpx.File(w, file.Filename, file.ContentType, file.Body)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	format := Format(strings.ToLower(r.URL.Query().Get("format")))
	file, err := h.service.Download(r.Context(), id, format)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.File(w, file.Filename, file.ContentType, file.Body)
}

func (h *Handler) draftScope(w http.ResponseWriter, r *http.Request) {
	var req DraftScopeRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.DraftScope(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) served(t DocType, f Format) {
	if h.recorder != nil {
		h.recorder.DocumentGenerated("contract_"+strings.ToLower(string(t)), string(f))
	}
}
