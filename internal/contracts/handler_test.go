package contracts

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizportal/portal/internal/rbac"
	"github.com/bizportal/portal/internal/shared"
)

type countingRecorder struct {
	kinds []string
}

func (c *countingRecorder) DocumentGenerated(kind, format string) {
	c.kinds = append(c.kinds, kind+":"+format)
}

func TestHandlerGenerateReturnsAttachment(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	rec := &countingRecorder{}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, rbac.Middleware{}, rec)
	router := chi.NewRouter()
	router.Route("/api/contracts", h.MountRoutes)

	body := `{"type":"MSA","client_name":"Acme Corp","effective_date":"2026-04-01"}`
	req := httptest.NewRequest(http.MethodPost, "/api/contracts/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), &shared.Principal{UserID: 1, Permissions: []string{rbac.PermContractsGenerate}}))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.Equal(t, `attachment; filename=MSA_Acme_Corp.docx`, res.Header().Get("Content-Disposition"))
	assert.Equal(t, "1", res.Header().Get("X-Contract-ID"))
	assert.Equal(t, []string{"contract_msa:docx"}, rec.kinds)
}

func TestHandlerGenerateRejectsSOWWithoutRates(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, rbac.Middleware{}, nil)
	router := chi.NewRouter()
	router.Route("/api/contracts", h.MountRoutes)

	body := `{"type":"SOW","client_name":"Acme","effective_date":"2026-04-01","scope":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/api/contracts/generate", strings.NewReader(body))
	req = req.WithContext(shared.ContextWithPrincipal(req.Context(), &shared.Principal{UserID: 1, Permissions: []string{"*"}}))
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Contains(t, res.Body.String(), "rates")
}
