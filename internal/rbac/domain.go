package rbac

import "time"

// Wildcard grants every permission.
const Wildcard = "*"

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
}

// Permission represents an atomic capability named module.resource.action.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Permission names checked by route groups.
const (
	PermUsersManage       = "users.users.manage"
	PermSalesRead         = "sales.crm.read"
	PermSalesWrite        = "sales.crm.write"
	PermRFPRead           = "rfp.rfps.read"
	PermRFPWrite          = "rfp.rfps.write"
	PermContractsGenerate = "contracts.documents.generate"
	PermRecruitingRead    = "hr.requisitions.read"
	PermRecruitingWrite   = "hr.requisitions.write"
	PermRecruitingApprove = "hr.requisitions.approve"
	PermOnboardingRead    = "hr.onboarding.read"
	PermOnboardingWrite   = "hr.onboarding.write"
	PermInvoicesRead      = "invoicing.invoices.read"
	PermInvoicesWrite     = "invoicing.invoices.write"
	PermInvoicesApprove   = "invoicing.invoices.approve"
	PermShiftReportsRead  = "shiftreports.reports.read"
	PermShiftReportsWrite = "shiftreports.reports.write"
	PermAuditRead         = "audit.logs.read"
	PermJobsRead          = "jobs.queues.read"
)
