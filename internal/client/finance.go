package client

import (
	"context"
	"net/http"

	"github.com/bizportal/portal/internal/invoicing"
	"github.com/bizportal/portal/internal/shared"
	"github.com/bizportal/portal/internal/shiftreports"
)

func (c *Client) ListInvoices(ctx context.Context, opts ListOptions) (shared.Page[invoicing.Invoice], error) {
	var out shared.Page[invoicing.Invoice]
	err := c.do(ctx, http.MethodGet, "/api/invoices", opts.values(), nil, &out)
	return out, err
}

// CreateInvoice sends an Idempotency-Key with the create. A key set with
// WithIdempotencyKey is reused, otherwise a fresh one is generated so the
// single refresh-and-replay cannot create a duplicate.
func (c *Client) CreateInvoice(ctx context.Context, req invoicing.Request) (invoicing.Invoice, error) {
	var out invoicing.Invoice
	err := c.do(ensureIdempotencyKey(ctx), http.MethodPost, "/api/invoices", nil, req, &out)
	return out, err
}

func (c *Client) TransitionInvoice(ctx context.Context, id int64, status invoicing.Status) (invoicing.Invoice, error) {
	var out invoicing.Invoice
	err := c.do(ctx, http.MethodPost, idPath("/api/invoices", id, "transition"), nil,
		invoicing.TransitionRequest{Status: status}, &out)
	return out, err
}

func (c *Client) InvoiceApprovals(ctx context.Context, id int64) ([]shared.ApprovalLog, error) {
	var out []shared.ApprovalLog
	err := c.do(ctx, http.MethodGet, idPath("/api/invoices", id, "approvals"), nil, nil, &out)
	return out, err
}

func (c *Client) InvoicePDF(ctx context.Context, id int64) (Download, error) {
	return c.download(ctx, idPath("/api/invoices", id, "pdf"), nil)
}

func (c *Client) ShiftSummary(ctx context.Context, filters map[string]string) (shiftreports.Summary, error) {
	var out shiftreports.Summary
	err := c.do(ctx, http.MethodGet, "/api/shift-reports/summary", ListOptions{Extra: filters}.values(), nil, &out)
	return out, err
}

func (c *Client) ListShiftReports(ctx context.Context, opts ListOptions) (shared.Page[shiftreports.Report], error) {
	var out shared.Page[shiftreports.Report]
	err := c.do(ctx, http.MethodGet, "/api/shift-reports/reports", opts.values(), nil, &out)
	return out, err
}

func (c *Client) CreateShiftReport(ctx context.Context, req shiftreports.ReportRequest) (shiftreports.Report, error) {
	var out shiftreports.Report
	err := c.do(ctx, http.MethodPost, "/api/shift-reports/reports", nil, req, &out)
	return out, err
}
