package client

import (
	"context"
	"net/http"

	"github.com/bizportal/portal/internal/onboarding"
	"github.com/bizportal/portal/internal/recruiting"
	"github.com/bizportal/portal/internal/shared"
	"github.com/bizportal/portal/internal/users"
)

func (c *Client) ListRequisitions(ctx context.Context, opts ListOptions) (shared.Page[recruiting.Requisition], error) {
	var out shared.Page[recruiting.Requisition]
	err := c.do(ctx, http.MethodGet, "/api/hr/requisitions", opts.values(), nil, &out)
	return out, err
}

func (c *Client) GetRequisition(ctx context.Context, id int64) (recruiting.Requisition, error) {
	var out recruiting.Requisition
	err := c.do(ctx, http.MethodGet, idPath("/api/hr/requisitions", id), nil, nil, &out)
	return out, err
}

func (c *Client) CreateRequisition(ctx context.Context, req recruiting.Request) (recruiting.Requisition, error) {
	var out recruiting.Requisition
	err := c.do(ctx, http.MethodPost, "/api/hr/requisitions", nil, req, &out)
	return out, err
}

// RequisitionAction posts one of submit, cancel or approve.
func (c *Client) RequisitionAction(ctx context.Context, id int64, action string) (recruiting.Requisition, error) {
	var out recruiting.Requisition
	err := c.do(ctx, http.MethodPost, idPath("/api/hr/requisitions", id, action), nil, nil, &out)
	return out, err
}

func (c *Client) RejectRequisition(ctx context.Context, id int64, reason string) (recruiting.Requisition, error) {
	var out recruiting.Requisition
	err := c.do(ctx, http.MethodPost, idPath("/api/hr/requisitions", id, "reject"), nil,
		recruiting.RejectRequest{Reason: reason}, &out)
	return out, err
}

func (c *Client) RequisitionApprovals(ctx context.Context, id int64) ([]shared.ApprovalLog, error) {
	var out []shared.ApprovalLog
	err := c.do(ctx, http.MethodGet, idPath("/api/hr/requisitions", id, "approvals"), nil, nil, &out)
	return out, err
}

func (c *Client) ListNewHires(ctx context.Context, opts ListOptions) (shared.Page[onboarding.NewHire], error) {
	var out shared.Page[onboarding.NewHire]
	err := c.do(ctx, http.MethodGet, "/api/hr/new-hires", opts.values(), nil, &out)
	return out, err
}

func (c *Client) CreateNewHire(ctx context.Context, req onboarding.Request) (onboarding.NewHire, error) {
	var out onboarding.NewHire
	err := c.do(ctx, http.MethodPost, "/api/hr/new-hires", nil, req, &out)
	return out, err
}

func (c *Client) Checklist(ctx context.Context, hireID int64) (onboarding.Checklist, error) {
	var out onboarding.Checklist
	err := c.do(ctx, http.MethodGet, idPath("/api/hr/new-hires", hireID, "checklist"), nil, nil, &out)
	return out, err
}

// ToggleChecklistItem marks an item done or open and returns the updated
// checklist.
func (c *Client) ToggleChecklistItem(ctx context.Context, itemID int64, completed bool) (onboarding.Checklist, error) {
	var out onboarding.Checklist
	err := c.do(ctx, http.MethodPatch, idPath("/api/hr/checklist-items", itemID), nil,
		map[string]bool{"completed": completed}, &out)
	return out, err
}

func (c *Client) ListUsers(ctx context.Context, opts ListOptions) (shared.Page[users.User], error) {
	var out shared.Page[users.User]
	err := c.do(ctx, http.MethodGet, "/api/users", opts.values(), nil, &out)
	return out, err
}

func (c *Client) CreateUser(ctx context.Context, req users.CreateUserRequest) (users.User, error) {
	var out users.User
	err := c.do(ctx, http.MethodPost, "/api/users", nil, req, &out)
	return out, err
}

func (c *Client) SetUserRoles(ctx context.Context, id int64, roleIDs []int64) (users.User, error) {
	var out users.User
	err := c.do(ctx, http.MethodPut, idPath("/api/users", id, "roles"), nil, users.SetRolesRequest{RoleIDs: roleIDs}, &out)
	return out, err
}
