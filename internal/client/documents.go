package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bizportal/portal/internal/contracts"
	"github.com/bizportal/portal/internal/drafting"
	"github.com/bizportal/portal/internal/rfp"
	"github.com/bizportal/portal/internal/shared"
)

func (c *Client) ListRFPs(ctx context.Context, opts ListOptions) (shared.Page[rfp.RFP], error) {
	var out shared.Page[rfp.RFP]
	err := c.do(ctx, http.MethodGet, "/api/rfps", opts.values(), nil, &out)
	return out, err
}

func (c *Client) GetRFP(ctx context.Context, id int64) (rfp.RFP, error) {
	var out rfp.RFP
	err := c.do(ctx, http.MethodGet, idPath("/api/rfps", id), nil, nil, &out)
	return out, err
}

func (c *Client) CreateRFP(ctx context.Context, req rfp.Request) (rfp.RFP, error) {
	var out rfp.RFP
	err := c.do(ctx, http.MethodPost, "/api/rfps", nil, req, &out)
	return out, err
}

func (c *Client) SetRFPStatus(ctx context.Context, id int64, status rfp.Status) (rfp.RFP, error) {
	var out rfp.RFP
	err := c.do(ctx, http.MethodPost, idPath("/api/rfps", id, "status"), nil, rfp.StatusRequest{Status: status}, &out)
	return out, err
}

// UpcomingRFPs lists open RFPs due within days. Zero uses the server default.
func (c *Client) UpcomingRFPs(ctx context.Context, days int) ([]rfp.Upcoming, error) {
	var q url.Values
	if days > 0 {
		q = url.Values{"days": {strconv.Itoa(days)}}
	}
	var out struct {
		Data []rfp.Upcoming `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, "/api/rfps/upcoming", q, nil, &out)
	return out.Data, err
}

// DraftRFPResponse asks the server for an AI response draft.
func (c *Client) DraftRFPResponse(ctx context.Context, id int64, instructions string) (drafting.Draft, error) {
	var out drafting.Draft
	err := c.do(ctx, http.MethodPost, idPath("/api/rfps", id, "draft"), nil, rfp.DraftRequest{Instructions: instructions}, &out)
	return out, err
}

func (c *Client) SaveRFPResponse(ctx context.Context, id int64, text string) (rfp.RFP, error) {
	var out rfp.RFP
	err := c.do(ctx, http.MethodPut, idPath("/api/rfps", id, "response"), nil, rfp.ResponseRequest{Text: text}, &out)
	return out, err
}

func (c *Client) ListContracts(ctx context.Context, opts ListOptions) (shared.Page[contracts.Contract], error) {
	var out shared.Page[contracts.Contract]
	err := c.do(ctx, http.MethodGet, "/api/contracts", opts.values(), nil, &out)
	return out, err
}

// GenerateContract renders an MSA or SOW and returns the document.
func (c *Client) GenerateContract(ctx context.Context, req contracts.GenerateRequest) (Download, error) {
	return c.downloadWith(ctx, http.MethodPost, "/api/contracts/generate", nil, req)
}

// DownloadContract re-renders a stored contract. An empty format keeps
// the format it was generated in.
func (c *Client) DownloadContract(ctx context.Context, id int64, format contracts.Format) (Download, error) {
	var q url.Values
	if format != "" {
		q = url.Values{"format": {string(format)}}
	}
	return c.download(ctx, idPath("/api/contracts", id, "download"), q)
}

func (c *Client) DraftScope(ctx context.Context, req contracts.DraftScopeRequest) (drafting.Draft, error) {
	var out drafting.Draft
	err := c.do(ctx, http.MethodPost, "/api/contracts/draft-scope", nil, req, &out)
	return out, err
}

var exportPaths = map[string]string{
	"pipeline":      "/api/sales/pipeline/export",
	"rfps":          "/api/rfps/export",
	"requisitions":  "/api/hr/requisitions/export",
	"invoices":      "/api/invoices/export",
	"shift-reports": "/api/shift-reports/export",
	"audit":         "/api/audit/export",
}

// ExportModules lists the names Export accepts.
func ExportModules() []string {
	return []string{"pipeline", "rfps", "requisitions", "invoices", "shift-reports", "audit"}
}

// Export downloads a module listing as csv or xlsx. filters are passed as
// query parameters.
func (c *Client) Export(ctx context.Context, module, format string, filters map[string]string) (Download, error) {
	path, ok := exportPaths[module]
	if !ok {
		return Download{}, fmt.Errorf("client: unknown export module %q", module)
	}
	q := url.Values{}
	if format != "" {
		q.Set("format", format)
	}
	for k, v := range filters {
		q.Set(k, v)
	}
	return c.download(ctx, path, q)
}
