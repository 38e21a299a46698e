package sales

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bizportal/portal/internal/export"
	"github.com/bizportal/portal/internal/platform/httpx"
	"github.com/bizportal/portal/internal/rbac"
	"github.com/bizportal/portal/internal/shared"
)

// Handler exposes CRM and pipeline endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	recorder export.Recorder
}

// NewHandler builds the sales handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, recorder export.Recorder) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, recorder: recorder}
}

// MountRoutes registers /api/sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	read := h.rbac.RequireAny(rbac.PermSalesRead, rbac.PermSalesWrite)
	write := h.rbac.RequireAny(rbac.PermSalesWrite)

	r.Route("/companies", func(r chi.Router) {
		r.With(read).Get("/", h.listCompanies)
		r.With(write).Post("/", h.createCompany)
		r.With(read).Get("/{id}", h.getCompany)
		r.With(write).Put("/{id}", h.updateCompany)
		r.With(write).Delete("/{id}", h.deleteCompany)
	})
	r.Route("/contacts", func(r chi.Router) {
		r.With(read).Get("/", h.listContacts)
		r.With(write).Post("/", h.createContact)
		r.With(read).Get("/{id}", h.getContact)
		r.With(write).Put("/{id}", h.updateContact)
		r.With(write).Delete("/{id}", h.deleteContact)
	})
	r.Route("/signals", func(r chi.Router) {
		r.With(read).Get("/", h.listSignals)
		r.With(write).Post("/", h.createSignal)
		r.With(write).Post("/refresh", h.refreshSignals)
		r.With(read).Get("/{id}", h.getSignal)
		r.With(write).Patch("/{id}/status", h.updateSignalStatus)
		r.With(write).Delete("/{id}", h.deleteSignal)
	})
	r.Route("/opportunities", func(r chi.Router) {
		r.With(read).Get("/", h.listOpportunities)
		r.With(write).Post("/", h.createOpportunity)
		r.With(read).Get("/{id}", h.getOpportunity)
		r.With(write).Put("/{id}", h.updateOpportunity)
		r.With(write).Patch("/{id}/stage", h.moveStage)
		r.With(write).Delete("/{id}", h.deleteOpportunity)
	})
	r.With(read).Get("/pipeline/summary", h.pipelineSummary)
	r.With(read).Get("/pipeline/export", h.exportPipeline)
}

// ============================================================================
// COMPANIES
// ============================================================================

func (h *Handler) listCompanies(w http.ResponseWriter, r *http.Request) {
	params := shared.ParseListParams(r.URL.Query())
	owner, err := httpx.QueryInt64(r, "owner_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := CompanyFilter{Status: CompanyStatus(r.URL.Query().Get("status")), OwnerID: owner}
	page, err := h.service.ListCompanies(r.Context(), params, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) getCompany(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.GetCompany(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) createCompany(w http.ResponseWriter, r *http.Request) {
	var req CompanyRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	company, err := h.service.CreateCompany(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("company created", slog.Int64("company_id", company.ID), slog.Int64("actor", shared.ActorID(r.Context())))
	httpx.JSON(w, http.StatusCreated, company)
}

func (h *Handler) updateCompany(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req CompanyRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	company, err := h.service.UpdateCompany(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, company)
}

func (h *Handler) deleteCompany(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteCompany(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

// ============================================================================
// CONTACTS
// ============================================================================

func (h *Handler) listContacts(w http.ResponseWriter, r *http.Request) {
	params := shared.ParseListParams(r.URL.Query())
	company, err := httpx.QueryInt64(r, "company_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListContacts(r.Context(), params, company)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) getContact(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	contact, err := h.service.GetContact(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, contact)
}

func (h *Handler) createContact(w http.ResponseWriter, r *http.Request) {
	h.saveContact(w, r, 0, http.StatusCreated)
}

func (h *Handler) updateContact(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.saveContact(w, r, id, http.StatusOK)
}

func (h *Handler) saveContact(w http.ResponseWriter, r *http.Request, id int64, status int) {
	var req ContactRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	contact, err := h.service.SaveContact(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, status, contact)
}

func (h *Handler) deleteContact(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteContact(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

// ============================================================================
// SIGNALS
// ============================================================================

func (h *Handler) listSignals(w http.ResponseWriter, r *http.Request) {
	params := shared.ParseListParams(r.URL.Query())
	company, err := httpx.QueryInt64(r, "company_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	minScore, err := httpx.QueryInt(r, "min_score")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	filter := SignalFilter{
		CompanyID: company,
		Status:    SignalStatus(q.Get("status")),
		Source:    SignalSource(q.Get("source")),
		MinScore:  minScore,
	}
	page, err := h.service.ListSignals(r.Context(), params, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) getSignal(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	signal, err := h.service.GetSignal(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, signal)
}

func (h *Handler) createSignal(w http.ResponseWriter, r *http.Request) {
	var req SignalRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	signal, err := h.service.CreateSignal(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, signal)
}

func (h *Handler) updateSignalStatus(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req SignalStatusRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	signal, err := h.service.UpdateSignalStatus(r.Context(), id, req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, signal)
}

func (h *Handler) deleteSignal(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteSignal(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) refreshSignals(w http.ResponseWriter, r *http.Request) {
	var req RefreshSignalsRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeAndValidate(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	taskID, err := h.service.RefreshSignals(r.Context(), req.CompanyID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("signal poll enqueued", slog.String("task_id", taskID), slog.Int64("actor", shared.ActorID(r.Context())))
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "status": "queued"})
}

// ============================================================================
// OPPORTUNITIES
// ============================================================================

func (h *Handler) opportunityFilter(r *http.Request) (OpportunityFilter, error) {
	company, err := httpx.QueryInt64(r, "company_id")
	if err != nil {
		return OpportunityFilter{}, err
	}
	owner, err := httpx.QueryInt64(r, "owner_id")
	if err != nil {
		return OpportunityFilter{}, err
	}
	open, err := httpx.QueryBool(r, "open")
	if err != nil {
		return OpportunityFilter{}, err
	}
	return OpportunityFilter{
		Stage:     Stage(r.URL.Query().Get("stage")),
		CompanyID: company,
		OwnerID:   owner,
		OpenOnly:  open != nil && *open,
	}, nil
}

func (h *Handler) listOpportunities(w http.ResponseWriter, r *http.Request) {
	filter, err := h.opportunityFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListOpportunities(r.Context(), shared.ParseListParams(r.URL.Query()), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) getOpportunity(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	opp, err := h.service.GetOpportunity(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, opp)
}

func (h *Handler) createOpportunity(w http.ResponseWriter, r *http.Request) {
	var req OpportunityRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	opp, err := h.service.CreateOpportunity(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, opp)
}

func (h *Handler) updateOpportunity(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req OpportunityRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	opp, err := h.service.UpdateOpportunity(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, opp)
}

func (h *Handler) moveStage(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req StageRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	opp, err := h.service.MoveStage(r.Context(), id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("opportunity stage changed", slog.Int64("opportunity_id", id), slog.String("stage", string(opp.Stage)))
	httpx.JSON(w, http.StatusOK, opp)
}

func (h *Handler) deleteOpportunity(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteOpportunity(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

// ============================================================================
// PIPELINE
// ============================================================================

func (h *Handler) pipelineSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.PipelineSummary(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) exportPipeline(w http.ResponseWriter, r *http.Request) {
	filter, err := h.opportunityFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	opps, err := h.service.ExportOpportunities(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	export.Serve(w, r, "pipeline", PipelineTable(opps), h.recorder)
}

// PipelineTable lays out opportunities for export.
func PipelineTable(opps []Opportunity) export.Table {
	t := export.Table{
		Sheet: "Pipeline",
		Headers: []string{"ID", "Company", "Opportunity", "Stage", "Value", "Probability", "Weighted Value",
			"Seats", "Service Line", "Expected Close", "Lost Reason"},
	}
	for _, o := range opps {
		t.Rows = append(t.Rows, []any{o.ID, o.CompanyName, o.Name, string(o.Stage), o.Value, o.Probability, o.WeightedValue(),
			o.Seats, o.ServiceLine, o.ExpectedClose, o.LostReason})
	}
	return t
}
