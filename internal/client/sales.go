package client

import (
	"context"
	"net/http"

	"github.com/bizportal/portal/internal/sales"
	"github.com/bizportal/portal/internal/shared"
)

func (c *Client) ListCompanies(ctx context.Context, opts ListOptions) (shared.Page[sales.Company], error) {
	var out shared.Page[sales.Company]
	err := c.do(ctx, http.MethodGet, "/api/sales/companies", opts.values(), nil, &out)
	return out, err
}

// GetCompany returns the company with its contacts, signals and deals.
func (c *Client) GetCompany(ctx context.Context, id int64) (sales.CompanyDetail, error) {
	var out sales.CompanyDetail
	err := c.do(ctx, http.MethodGet, idPath("/api/sales/companies", id), nil, nil, &out)
	return out, err
}

func (c *Client) CreateCompany(ctx context.Context, req sales.CompanyRequest) (sales.Company, error) {
	var out sales.Company
	err := c.do(ctx, http.MethodPost, "/api/sales/companies", nil, req, &out)
	return out, err
}

func (c *Client) UpdateCompany(ctx context.Context, id int64, req sales.CompanyRequest) (sales.Company, error) {
	var out sales.Company
	err := c.do(ctx, http.MethodPut, idPath("/api/sales/companies", id), nil, req, &out)
	return out, err
}

func (c *Client) DeleteCompany(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, idPath("/api/sales/companies", id), nil, nil, nil)
}

func (c *Client) ListContacts(ctx context.Context, opts ListOptions) (shared.Page[sales.Contact], error) {
	var out shared.Page[sales.Contact]
	err := c.do(ctx, http.MethodGet, "/api/sales/contacts", opts.values(), nil, &out)
	return out, err
}

func (c *Client) CreateContact(ctx context.Context, req sales.ContactRequest) (sales.Contact, error) {
	var out sales.Contact
	err := c.do(ctx, http.MethodPost, "/api/sales/contacts", nil, req, &out)
	return out, err
}

func (c *Client) ListSignals(ctx context.Context, opts ListOptions) (shared.Page[sales.JobSignal], error) {
	var out shared.Page[sales.JobSignal]
	err := c.do(ctx, http.MethodGet, "/api/sales/signals", opts.values(), nil, &out)
	return out, err
}

func (c *Client) SetSignalStatus(ctx context.Context, id int64, status sales.SignalStatus) (sales.JobSignal, error) {
	var out sales.JobSignal
	err := c.do(ctx, http.MethodPatch, idPath("/api/sales/signals", id, "status"), nil,
		sales.SignalStatusRequest{Status: status}, &out)
	return out, err
}

// RefreshSignals queues an ATS poll. A nil companyID polls every company
// with a configured board. It returns the queued task id.
func (c *Client) RefreshSignals(ctx context.Context, companyID *int64) (string, error) {
	var out struct {
		TaskID string `json:"task_id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/sales/signals/refresh", nil,
		sales.RefreshSignalsRequest{CompanyID: companyID}, &out)
	return out.TaskID, err
}

func (c *Client) ListOpportunities(ctx context.Context, opts ListOptions) (shared.Page[sales.Opportunity], error) {
	var out shared.Page[sales.Opportunity]
	err := c.do(ctx, http.MethodGet, "/api/sales/opportunities", opts.values(), nil, &out)
	return out, err
}

func (c *Client) CreateOpportunity(ctx context.Context, req sales.OpportunityRequest) (sales.Opportunity, error) {
	var out sales.Opportunity
	err := c.do(ctx, http.MethodPost, "/api/sales/opportunities", nil, req, &out)
	return out, err
}

func (c *Client) MoveOpportunity(ctx context.Context, id int64, req sales.StageRequest) (sales.Opportunity, error) {
	var out sales.Opportunity
	err := c.do(ctx, http.MethodPatch, idPath("/api/sales/opportunities", id, "stage"), nil, req, &out)
	return out, err
}

func (c *Client) PipelineSummary(ctx context.Context) (sales.PipelineSummary, error) {
	var out sales.PipelineSummary
	err := c.do(ctx, http.MethodGet, "/api/sales/pipeline/summary", nil, nil, &out)
	return out, err
}
