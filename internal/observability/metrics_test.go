package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/bizportal/portal/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobCollectors(t *testing.T) {
	metrics := NewMetrics()
	jm := jobmetrics.NewMetrics(metrics.Registerer())
	require.NoError(t, jm.Track("signals:poll").End(nil))

	assert.Contains(t, scrape(t, metrics), `portal_jobs_total{job="signals:poll",status="success"} 1`)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.True(t, strings.Contains(body, `portal_http_requests_total{code="418",route="/test"} 1`), body)
	assert.Contains(t, body, `portal_http_request_duration_seconds_bucket{route="/test"`)
}

func TestDocumentAndAuthCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.DocumentGenerated("contract_msa", "docx")
	metrics.AuthEvent("refresh_reuse")

	body := scrape(t, metrics)
	assert.Contains(t, body, `portal_documents_generated_total{format="docx",kind="contract_msa"} 1`)
	assert.Contains(t, body, `portal_auth_events_total{event="refresh_reuse"} 1`)

	var nilMetrics *Metrics
	nilMetrics.DocumentGenerated("x", "y")
	nilMetrics.AuthEvent("x")
}
