package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bizportal/portal/internal/platform/db"
	"github.com/bizportal/portal/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the CRM.
type Repository struct {
	pool db.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

func writeError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: %s already exists", shared.ErrConflict, what)
	case db.IsForeignKeyViolation(err):
		return shared.NewValidationError("company_id", "references a missing record")
	default:
		return err
	}
}

func affected(tag interface{ RowsAffected() int64 }, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ============================================================================
// COMPANIES
// ============================================================================

const companyColumns = `c.id, c.name, c.domain, c.industry, c.employee_count, c.hq_location, c.website, c.status,
	c.owner_id, c.ats_provider, c.ats_slug, c.notes, c.created_at, c.updated_at`

var companySorts = map[string]string{
	"name":       "c.name",
	"status":     "c.status",
	"created_at": "c.created_at",
	"updated_at": "c.updated_at",
}

func scanCompany(row pgx.Row) (Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.Name, &c.Domain, &c.Industry, &c.EmployeeCount, &c.HQLocation, &c.Website, &c.Status,
		&c.OwnerID, &c.ATSProvider, &c.ATSSlug, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// ListCompanies returns a filtered page of companies.
func (r *Repository) ListCompanies(ctx context.Context, params shared.ListParams, filter CompanyFilter) ([]Company, int, error) {
	var where db.Where
	where.AddIf(params.Search != "", "(c.name ILIKE ? OR c.domain ILIKE ?)", "%"+params.Search+"%", "%"+params.Search+"%")
	where.AddIf(filter.Status != "", "c.status = ?", string(filter.Status))
	if filter.OwnerID != nil {
		where.Add("c.owner_id = ?", *filter.OwnerID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM companies c`+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, args := where.Page(params.Limit(), params.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+companyColumns+` FROM companies c`+where.SQL()+
		` ORDER BY `+params.OrderBy(companySorts, "c.name")+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// GetCompany fetches a company.
func (r *Repository) GetCompany(ctx context.Context, id int64) (Company, error) {
	c, err := scanCompany(r.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies c WHERE c.id = $1`, id))
	return c, notFound(err)
}

// CreateCompany inserts a company.
func (r *Repository) CreateCompany(ctx context.Context, c Company) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO companies (name, domain, industry, employee_count, hq_location, website, status, owner_id, ats_provider, ats_slug, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		c.Name, c.Domain, c.Industry, c.EmployeeCount, c.HQLocation, c.Website, string(c.Status), c.OwnerID, c.ATSProvider, c.ATSSlug, c.Notes).Scan(&id)
	return id, writeError(err, "company")
}

// UpdateCompany replaces a company's fields.
func (r *Repository) UpdateCompany(ctx context.Context, c Company) error {
	tag, err := r.pool.Exec(ctx, `UPDATE companies SET name = $2, domain = $3, industry = $4, employee_count = $5, hq_location = $6,
	website = $7, status = $8, owner_id = $9, ats_provider = $10, ats_slug = $11, notes = $12, updated_at = NOW() WHERE id = $1`,
		c.ID, c.Name, c.Domain, c.Industry, c.EmployeeCount, c.HQLocation, c.Website, string(c.Status), c.OwnerID, c.ATSProvider, c.ATSSlug, c.Notes)
	return affected(tag, writeError(err, "company"))
}

// DeleteCompany removes a company and, by cascade, its contacts and signals.
func (r *Repository) DeleteCompany(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: company has opportunities or contracts", shared.ErrConflict)
	}
	return affected(tag, err)
}

// CompaniesWithATS returns companies configured for signal polling.
func (r *Repository) CompaniesWithATS(ctx context.Context, companyID *int64) ([]Company, error) {
	var where db.Where
	where.Add("c.ats_provider <> ''").Add("c.ats_slug <> ''").Add("c.status <> ?", string(CompanyDisqualified))
	if companyID != nil {
		where.Add("c.id = ?", *companyID)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+companyColumns+` FROM companies c`+where.SQL()+` ORDER BY c.id`, where.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ============================================================================
// CONTACTS
// ============================================================================

const contactColumns = `id, company_id, first_name, last_name, email, phone, title, linkedin_url, is_primary, created_at, updated_at`

func scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.CompanyID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Title, &c.LinkedInURL, &c.IsPrimary, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

var contactSorts = map[string]string{
	"last_name":  "last_name",
	"first_name": "first_name",
	"created_at": "created_at",
}

// ListContacts returns a page of contacts, optionally for one company.
func (r *Repository) ListContacts(ctx context.Context, params shared.ListParams, companyID *int64) ([]Contact, int, error) {
	var where db.Where
	if companyID != nil {
		where.Add("company_id = ?", *companyID)
	}
	like := "%" + params.Search + "%"
	where.AddIf(params.Search != "", "(first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ?)", like, like, like)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contacts`+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, args := where.Page(params.Limit(), params.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+contactColumns+` FROM contacts`+where.SQL()+
		` ORDER BY is_primary DESC, `+params.OrderBy(contactSorts, "last_name")+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// GetContact fetches a contact.
func (r *Repository) GetContact(ctx context.Context, id int64) (Contact, error) {
	c, err := scanContact(r.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id))
	return c, notFound(err)
}

// SaveContact inserts (ID 0) or updates a contact. Marking it primary clears
// the flag on the company's other contacts in the same transaction.
func (r *Repository) SaveContact(ctx context.Context, c Contact) (int64, error) {
	id := c.ID
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if c.IsPrimary {
			if _, err := tx.Exec(ctx, `UPDATE contacts SET is_primary = FALSE WHERE company_id = $1 AND id <> $2 AND is_primary`, c.CompanyID, c.ID); err != nil {
				return err
			}
		}
		if c.ID == 0 {
			err := tx.QueryRow(ctx, `INSERT INTO contacts (company_id, first_name, last_name, email, phone, title, linkedin_url, is_primary)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
				c.CompanyID, c.FirstName, c.LastName, c.Email, c.Phone, c.Title, c.LinkedInURL, c.IsPrimary).Scan(&id)
			return writeError(err, "contact")
		}
		tag, err := tx.Exec(ctx, `UPDATE contacts SET company_id = $2, first_name = $3, last_name = $4, email = $5, phone = $6, title = $7,
	linkedin_url = $8, is_primary = $9, updated_at = NOW() WHERE id = $1`,
			c.ID, c.CompanyID, c.FirstName, c.LastName, c.Email, c.Phone, c.Title, c.LinkedInURL, c.IsPrimary)
		return affected(tag, writeError(err, "contact"))
	})
	return id, err
}

// DeleteContact removes a contact.
func (r *Repository) DeleteContact(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, id)
	return affected(tag, err)
}

// ============================================================================
// SIGNALS
// ============================================================================

const signalColumns = `s.id, s.company_id, c.name, s.source, s.external_id, s.title, s.location, s.url, s.score, s.tags,
	s.posted_at, s.status, s.created_at`

const signalFrom = ` FROM job_signals s JOIN companies c ON c.id = s.company_id`

var signalSorts = map[string]string{
	"score":      "s.score",
	"posted_at":  "s.posted_at",
	"created_at": "s.created_at",
	"title":      "s.title",
}

func scanSignal(row pgx.Row) (JobSignal, error) {
	var s JobSignal
	err := row.Scan(&s.ID, &s.CompanyID, &s.CompanyName, &s.Source, &s.ExternalID, &s.Title, &s.Location, &s.URL, &s.Score, &s.Tags,
		&s.PostedAt, &s.Status, &s.CreatedAt)
	return s, err
}

func signalWhere(params shared.ListParams, filter SignalFilter) *db.Where {
	var where db.Where
	if filter.CompanyID != nil {
		where.Add("s.company_id = ?", *filter.CompanyID)
	}
	where.AddIf(filter.Status != "", "s.status = ?", string(filter.Status))
	where.AddIf(filter.Source != "", "s.source = ?", string(filter.Source))
	if filter.MinScore != nil {
		where.Add("s.score >= ?", *filter.MinScore)
	}
	where.AddIf(params.Search != "", "s.title ILIKE ?", "%"+params.Search+"%")
	return &where
}

// ListSignals returns a page of job signals.
func (r *Repository) ListSignals(ctx context.Context, params shared.ListParams, filter SignalFilter) ([]JobSignal, int, error) {
	where := signalWhere(params, filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+signalFrom+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if params.Sort == "" {
		params.Desc = true
	}
	page, args := where.Page(params.Limit(), params.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+signalColumns+signalFrom+where.SQL()+
		` ORDER BY `+params.OrderBy(signalSorts, "s.created_at")+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []JobSignal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// GetSignal fetches a signal.
func (r *Repository) GetSignal(ctx context.Context, id int64) (JobSignal, error) {
	s, err := scanSignal(r.pool.QueryRow(ctx, `SELECT `+signalColumns+signalFrom+` WHERE s.id = $1`, id))
	return s, notFound(err)
}

// CreateSignal inserts a signal.
func (r *Repository) CreateSignal(ctx context.Context, s JobSignal) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO job_signals (company_id, source, external_id, title, location, url, score, tags, posted_at, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		s.CompanyID, string(s.Source), s.ExternalID, s.Title, s.Location, s.URL, s.Score, s.Tags, s.PostedAt, string(s.Status)).Scan(&id)
	return id, writeError(err, "signal")
}

// UpsertSignal inserts or refreshes a polled signal keyed by (source,
// external_id). The triage status of an existing row is preserved. It reports
// whether a new row was created.
func (r *Repository) UpsertSignal(ctx context.Context, s JobSignal) (bool, error) {
	var inserted bool
	err := r.pool.QueryRow(ctx, `INSERT INTO job_signals (company_id, source, external_id, title, location, url, score, tags, posted_at, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'new')
ON CONFLICT (source, external_id) DO UPDATE SET title = EXCLUDED.title, location = EXCLUDED.location, url = EXCLUDED.url,
	score = EXCLUDED.score, tags = EXCLUDED.tags, posted_at = EXCLUDED.posted_at
RETURNING (xmax = 0)`,
		s.CompanyID, string(s.Source), s.ExternalID, s.Title, s.Location, s.URL, s.Score, s.Tags, s.PostedAt).Scan(&inserted)
	return inserted, err
}

// UpdateSignalStatus changes the triage status.
func (r *Repository) UpdateSignalStatus(ctx context.Context, id int64, status SignalStatus) error {
	tag, err := r.pool.Exec(ctx, `UPDATE job_signals SET status = $2 WHERE id = $1`, id, string(status))
	return affected(tag, err)
}

// DeleteSignal removes a signal.
func (r *Repository) DeleteSignal(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM job_signals WHERE id = $1`, id)
	return affected(tag, err)
}

// ============================================================================
// OPPORTUNITIES
// ============================================================================

const opportunityColumns = `o.id, o.company_id, c.name, o.contact_id, o.name, o.stage, o.value, o.probability, o.seats, o.service_line,
	o.expected_close, o.owner_id, o.lost_reason, o.closed_at, o.created_at, o.updated_at`

const opportunityFrom = ` FROM opportunities o JOIN companies c ON c.id = o.company_id`

var opportunitySorts = map[string]string{
	"name":           "o.name",
	"value":          "o.value",
	"stage":          "o.stage",
	"expected_close": "o.expected_close",
	"created_at":     "o.created_at",
}

func scanOpportunity(row pgx.Row) (Opportunity, error) {
	var o Opportunity
	err := row.Scan(&o.ID, &o.CompanyID, &o.CompanyName, &o.ContactID, &o.Name, &o.Stage, &o.Value, &o.Probability, &o.Seats, &o.ServiceLine,
		&o.ExpectedClose, &o.OwnerID, &o.LostReason, &o.ClosedAt, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func opportunityWhere(params shared.ListParams, filter OpportunityFilter) *db.Where {
	var where db.Where
	where.AddIf(filter.Stage != "", "o.stage = ?", string(filter.Stage))
	if filter.CompanyID != nil {
		where.Add("o.company_id = ?", *filter.CompanyID)
	}
	if filter.OwnerID != nil {
		where.Add("o.owner_id = ?", *filter.OwnerID)
	}
	where.AddIf(filter.OpenOnly, "o.stage NOT IN ('closed_won', 'closed_lost')")
	where.AddIf(params.Search != "", "(o.name ILIKE ? OR c.name ILIKE ?)", "%"+params.Search+"%", "%"+params.Search+"%")
	return &where
}

// ListOpportunities returns a page of opportunities.
func (r *Repository) ListOpportunities(ctx context.Context, params shared.ListParams, filter OpportunityFilter) ([]Opportunity, int, error) {
	where := opportunityWhere(params, filter)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+opportunityFrom+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page, args := where.Page(params.Limit(), params.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+opportunityColumns+opportunityFrom+where.SQL()+
		` ORDER BY `+params.OrderBy(opportunitySorts, "o.created_at")+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out, err := collectOpportunities(rows)
	return out, total, err
}

// AllOpportunities returns every opportunity matching the filter, for exports.
func (r *Repository) AllOpportunities(ctx context.Context, filter OpportunityFilter) ([]Opportunity, error) {
	where := opportunityWhere(shared.ListParams{}, filter)
	rows, err := r.pool.Query(ctx, `SELECT `+opportunityColumns+opportunityFrom+where.SQL()+` ORDER BY o.stage, o.expected_close NULLS LAST, o.id`, where.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOpportunities(rows)
}

func collectOpportunities(rows pgx.Rows) ([]Opportunity, error) {
	var out []Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetOpportunity fetches an opportunity.
func (r *Repository) GetOpportunity(ctx context.Context, id int64) (Opportunity, error) {
	o, err := scanOpportunity(r.pool.QueryRow(ctx, `SELECT `+opportunityColumns+opportunityFrom+` WHERE o.id = $1`, id))
	return o, notFound(err)
}

// CreateOpportunity inserts an opportunity.
func (r *Repository) CreateOpportunity(ctx context.Context, o Opportunity) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO opportunities (company_id, contact_id, name, stage, value, probability, seats, service_line,
	expected_close, owner_id, lost_reason, closed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		o.CompanyID, o.ContactID, o.Name, string(o.Stage), o.Value, o.Probability, o.Seats, o.ServiceLine,
		o.ExpectedClose, o.OwnerID, o.LostReason, o.ClosedAt).Scan(&id)
	return id, writeError(err, "opportunity")
}

// UpdateOpportunity replaces an opportunity.
func (r *Repository) UpdateOpportunity(ctx context.Context, o Opportunity) error {
	tag, err := r.pool.Exec(ctx, `UPDATE opportunities SET company_id = $2, contact_id = $3, name = $4, stage = $5, value = $6, probability = $7,
	seats = $8, service_line = $9, expected_close = $10, owner_id = $11, lost_reason = $12, closed_at = $13, updated_at = NOW() WHERE id = $1`,
		o.ID, o.CompanyID, o.ContactID, o.Name, string(o.Stage), o.Value, o.Probability,
		o.Seats, o.ServiceLine, o.ExpectedClose, o.OwnerID, o.LostReason, o.ClosedAt)
	return affected(tag, writeError(err, "opportunity"))
}

// DeleteOpportunity removes an opportunity.
func (r *Repository) DeleteOpportunity(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM opportunities WHERE id = $1`, id)
	return affected(tag, err)
}

// StageTotals aggregates count, value and weighted value per stage.
func (r *Repository) StageTotals(ctx context.Context) ([]StageTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT stage, COUNT(*), COALESCE(SUM(value), 0)::float8, COALESCE(SUM(value * probability / 100.0), 0)::float8
FROM opportunities GROUP BY stage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StageTotal
	for rows.Next() {
		var t StageTotal
		if err := rows.Scan(&t.Stage, &t.Count, &t.TotalValue, &t.WeightedValue); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
