package invoicing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bizportal/portal/internal/export"
	"github.com/bizportal/portal/internal/platform/httpx"
	"github.com/bizportal/portal/internal/rbac"
	"github.com/bizportal/portal/internal/shared"
)

// IdempotencyHeader carries the client-chosen key that deduplicates creates.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes /api/invoices.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	recorder export.Recorder
}

// NewHandler builds the invoice handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, recorder export.Recorder) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, recorder: recorder}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	read := h.rbac.RequireAny(rbac.PermInvoicesRead, rbac.PermInvoicesWrite, rbac.PermInvoicesApprove)
	write := h.rbac.RequireAny(rbac.PermInvoicesWrite)
	transition := h.rbac.RequireAny(rbac.PermInvoicesWrite, rbac.PermInvoicesApprove)

	r.With(read).Get("/", h.list)
	r.With(write).Post("/", h.create)
	r.With(read).Get("/export", h.export)
	r.Route("/{id}", func(r chi.Router) {
		r.With(read).Get("/", h.get)
		r.With(write).Put("/", h.update)
		r.With(write).Delete("/", h.delete)
		r.With(write).Put("/roles", h.replaceRoles)
		r.With(transition).Post("/transition", h.transition)
		r.With(read).Get("/comments", h.comments)
		r.With(read).Get("/approvals", h.approvals)
		r.With(read).Post("/comments", h.addComment)
		r.With(read).Get("/pdf", h.pdf)
	})
}

func filterFrom(r *http.Request) (Filter, error) {
	account, err := httpx.QueryInt64(r, "account_id")
	if err != nil {
		return Filter{}, err
	}
	from, err := httpx.QueryDate(r, "from")
	if err != nil {
		return Filter{}, err
	}
	to, err := httpx.QueryDate(r, "to")
	if err != nil {
		return Filter{}, err
	}
	return Filter{Status: Status(r.URL.Query().Get("status")), AccountID: account, PeriodFrom: from, PeriodTo: to}, nil
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
	item, replayed, err := h.service.Create(r.Context(), r.Header.Get(IdempotencyHeader), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if replayed {
		w.Header().Set("Idempotent-Replayed", "true")
		httpx.JSON(w, http.StatusOK, item)
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

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req TransitionRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.Transition(r.Context(), id, req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("invoice transitioned", slog.Int64("invoice_id", id), slog.String("status", string(item.Status)))
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) comments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.Comments(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CommentRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	item, err := h.service.AddComment(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	file, err := h.service.PDF(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.recorder != nil {
		h.recorder.DocumentGenerated("invoice", "pdf")
	}
	httpx.File(w, file.Filename, file.ContentType, file.Body)
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
	export.Serve(w, r, "invoices", Table(items), h.recorder)
}

// Table lays out invoices for export.
func Table(items []Invoice) export.Table {
	t := export.Table{
		Sheet:   "Invoices",
		Headers: []string{"Number", "Client", "Status", "Period Start", "Period End", "Due Date", "Currency", "Subtotal", "Tax", "Total"},
	}
	for _, inv := range items {
		start, end := inv.PeriodStart, inv.PeriodEnd
		t.Rows = append(t.Rows, []any{inv.Number, inv.ClientName, string(inv.Status), &start, &end, inv.DueDate,
			inv.Currency, inv.Subtotal, inv.TaxAmount, inv.Total})
	}
	return t
}
