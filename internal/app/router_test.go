package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizportal/portal/internal/rbac"
	"github.com/bizportal/portal/internal/shared"
	"github.com/bizportal/portal/jobs"
)

type staticResolver struct {
	principal *shared.Principal
}

func (s staticResolver) Principal(_ context.Context, access string) (*shared.Principal, error) {
	if s.principal == nil || access != "good" {
		return nil, shared.ErrUnauthorized
	}
	return s.principal, nil
}

func newTestRouter(t *testing.T, params RouterParams) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	params.Logger = logger
	params.Config = &Config{AppEnv: "test"}
	params.RBAC = rbac.Middleware{Logger: logger}
	return NewRouter(params)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, RouterParams{Principal: staticResolver{}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestReadyzReportsFailingDependency(t *testing.T) {
	router := newTestRouter(t, RouterParams{
		Principal: staticResolver{},
		Ready: map[string]Check{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "unavailable"}, body.Checks)
}

func TestReadyzAllHealthy(t *testing.T) {
	router := newTestRouter(t, RouterParams{
		Principal: staticResolver{},
		Ready: map[string]Check{
			"postgres": func(context.Context) error { return nil },
		},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAPIRequiresBearerToken(t *testing.T) {
	router := newTestRouter(t, RouterParams{
		Principal:  staticResolver{principal: &shared.Principal{UserID: 1}},
		JobHandler: jobs.NewHandler(nil, nil),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/jobs/health", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestJobsHealthRequiresPermission(t *testing.T) {
	cases := []struct {
		name  string
		perms []string
		want  int
	}{
		{name: "denied", perms: []string{rbac.PermSalesRead}, want: http.StatusForbidden},
		{name: "allowed", perms: []string{rbac.PermJobsRead}, want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(t, RouterParams{
				Principal:  staticResolver{principal: &shared.Principal{UserID: 7, Permissions: tc.perms}},
				JobHandler: jobs.NewHandler(nil, nil),
			})

			req := httptest.NewRequest(http.MethodGet, "/api/jobs/health", nil)
			req.Header.Set("Authorization", "Bearer good")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, tc.want, rr.Code)
		})
	}
}

func TestLoadConfigRequiresTokenSecret(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "short")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("TOKEN_SECRET", "0123456789abcdef0123")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins())
}
