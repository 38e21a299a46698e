package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizportal/portal/internal/auth"
	"github.com/bizportal/portal/internal/invoicing"
	"github.com/bizportal/portal/internal/platform/httpx"
	"github.com/bizportal/portal/internal/sales"
	"github.com/bizportal/portal/internal/shared"
)

type fakeAPI struct {
	refreshes atomic.Int32
	refreshOK bool
	mu        sync.Mutex
	keys      []string
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, auth.TokenPair{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			TokenType:    "Bearer",
			User:         &auth.Profile{ID: 3, Email: "ops@example.com"},
		})
	})
	mux.HandleFunc("POST /api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshes.Add(1)
		if !f.refreshOK {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "refresh token expired")
			return
		}
		httpx.JSON(w, http.StatusOK, auth.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"})
	})
	mux.HandleFunc("GET /api/sales/pipeline/summary", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		httpx.JSON(w, http.StatusOK, sales.PipelineSummary{OpenCount: 4})
	})
	mux.HandleFunc("GET /api/sales/companies/{id}", func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "company not found")
	})
	mux.HandleFunc("GET /api/rfps/export", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		httpx.File(w, "rfps-20261019."+r.URL.Query().Get("format"), "", []byte("id,title\r\n"))
	})
	mux.HandleFunc("POST /api/invoices", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.keys = append(f.keys, r.Header.Get(IdempotencyHeader))
		f.mu.Unlock()
		if !f.authorized(w, r) {
			return
		}
		httpx.JSON(w, http.StatusCreated, invoicing.Invoice{ID: 11})
	})
	mux.HandleFunc("GET /api/invoices/{id}/approvals", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		httpx.JSON(w, http.StatusOK, []shared.ApprovalLog{{ID: 1, Module: "invoicing", RefID: 11, ActorID: 7, Action: shared.ApprovalSubmit}})
	})
	mux.HandleFunc("GET /api/invoices/{id}/pdf", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		httpx.File(w, "Factura_Société_11.pdf", "application/pdf", []byte("%PDF-1.7"))
	})
	return mux
}

func (f *fakeAPI) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer access-2" {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "token expired")
		return false
	}
	return true
}

func newTestClient(t *testing.T, api *fakeAPI, tokens Tokens) (*Client, *MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)
	store := &MemoryStore{}
	require.NoError(t, store.Save(tokens))
	return New(srv.URL, WithHTTPClient(srv.Client()), WithTokenStore(store)), store
}

func TestLoginStoresTokens(t *testing.T) {
	c, store := newTestClient(t, &fakeAPI{}, Tokens{})

	profile, err := c.Login(context.Background(), "ops@example.com", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, int64(3), profile.ID)

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{Access: "access-1", Refresh: "refresh-1"}, got)
}

func TestConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	api := &fakeAPI{refreshOK: true}
	c, store := newTestClient(t, api, Tokens{Access: "access-1", Refresh: "refresh-1"})

	const callers = 12
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			summary, err := c.PipelineSummary(context.Background())
			if err == nil && summary.OpenCount != 4 {
				err = assert.AnError
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), api.refreshes.Load())
	got, _ := store.Load()
	assert.Equal(t, "access-2", got.Access)
}

func TestRefreshFailureExpiresSession(t *testing.T) {
	api := &fakeAPI{refreshOK: false}
	c, store := newTestClient(t, api, Tokens{Access: "access-1", Refresh: "refresh-1"})

	_, err := c.PipelineSummary(context.Background())
	require.ErrorIs(t, err, ErrSessionExpired)

	got, _ := store.Load()
	assert.Equal(t, Tokens{}, got)
}

func TestAPIErrorMatchesSentinels(t *testing.T) {
	c, _ := newTestClient(t, &fakeAPI{}, Tokens{Access: "access-2"})

	_, err := c.GetCompany(context.Background(), 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "company not found", apiErr.Detail)
}

func TestExportUsesContentDispositionFilename(t *testing.T) {
	c, _ := newTestClient(t, &fakeAPI{refreshOK: true}, Tokens{Access: "access-1", Refresh: "refresh-1"})

	file, err := c.Export(context.Background(), "rfps", "csv", nil)
	require.NoError(t, err)
	assert.Equal(t, "rfps-20261019.csv", file.Filename)
	assert.Equal(t, "id,title\r\n", string(file.Body))

	_, err = c.Export(context.Background(), "ledger", "csv", nil)
	assert.Error(t, err)
}

func TestCreateInvoiceReplaysWithSameIdempotencyKey(t *testing.T) {
	api := &fakeAPI{refreshOK: true}
	c, _ := newTestClient(t, api, Tokens{Access: "access-1", Refresh: "refresh-1"})

	inv, err := c.CreateInvoice(context.Background(), invoicing.Request{})
	require.NoError(t, err)
	assert.Equal(t, int64(11), inv.ID)

	require.Len(t, api.keys, 2)
	assert.NotEmpty(t, api.keys[0])
	assert.Equal(t, api.keys[0], api.keys[1])
}

func TestInvoiceApprovalsAndPDF(t *testing.T) {
	c, _ := newTestClient(t, &fakeAPI{refreshOK: true}, Tokens{Access: "access-2", Refresh: "refresh-2"})

	logs, err := c.InvoiceApprovals(context.Background(), 11)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, shared.ApprovalSubmit, logs[0].Action)

	file, err := c.InvoicePDF(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, "Factura_Société_11.pdf", file.Filename)
	assert.Equal(t, "application/pdf", file.ContentType)
}

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "portal", "tokens.json"))

	empty, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{}, empty)

	require.NoError(t, store.Save(Tokens{Access: "a", Refresh: "r"}))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{Access: "a", Refresh: "r"}, got)

	require.NoError(t, store.Clear())
	got, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{}, got)
}
