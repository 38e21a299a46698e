package contracts

import (
	"strings"
	"time"

	"github.com/bizportal/portal/internal/shared"
)

// DocType is the kind of contract document.
type DocType string

const (
	TypeMSA DocType = "MSA"
	TypeSOW DocType = "SOW"
)

// Format is the output file format.
type Format string

const (
	FormatDOCX Format = "docx"
	FormatPDF  Format = "pdf"
)

// Rate is one priced role in a statement of work.
type Rate struct {
	Role string  `json:"role" validate:"required,max=120"`
	Rate float64 `json:"rate" validate:"gte=0"`
	Unit string  `json:"unit" validate:"max=20"`
}

// GenerateRequest carries the parameters of a generated document. It is stored
// verbatim so downloads can regenerate the same document.
type GenerateRequest struct {
	Type            DocType     `json:"type" validate:"required,oneof=MSA SOW"`
	ClientName      string      `json:"client_name" validate:"required,max=200"`
	ClientAddress   string      `json:"client_address" validate:"max=500"`
	ClientSignatory string      `json:"client_signatory" validate:"max=200"`
	EffectiveDate   shared.Date `json:"effective_date" validate:"required"`
	TermMonths      int         `json:"term_months" validate:"gte=0,lte=120"`
	GoverningLaw    string      `json:"governing_law" validate:"max=200"`
	Services        []string    `json:"services" validate:"max=50,dive,max=300"`
	Scope           string      `json:"scope"`
	Rates           []Rate      `json:"rates" validate:"max=100,dive"`
	Format          Format      `json:"format" validate:"omitempty,oneof=docx pdf"`
}

// Check applies the rules that depend on the document type.
func (r GenerateRequest) Check() error {
	fields := map[string]string{}
	if strings.TrimSpace(r.ClientName) == "" {
		fields["client_name"] = "is required"
	}
	if r.EffectiveDate.IsZero() {
		fields["effective_date"] = "is required"
	}
	switch r.Type {
	case TypeMSA:
	case TypeSOW:
		if strings.TrimSpace(r.Scope) == "" {
			fields["scope"] = "is required for a statement of work"
		}
		if len(r.Rates) == 0 {
			fields["rates"] = "at least one rate is required for a statement of work"
		}
	default:
		fields["type"] = "must be one of MSA SOW"
	}
	switch r.Format {
	case "", FormatDOCX, FormatPDF:
	default:
		fields["format"] = "must be one of docx pdf"
	}
	if len(fields) > 0 {
		return &shared.ValidationError{Fields: fields}
	}
	return nil
}

// OutputFormat returns the requested format, docx by default.
func (r GenerateRequest) OutputFormat() Format {
	if r.Format == "" {
		return FormatDOCX
	}
	return r.Format
}

// Contract is a recorded document generation.
type Contract struct {
	ID         int64           `json:"id"`
	Type       DocType         `json:"type"`
	ClientName string          `json:"client_name"`
	Params     GenerateRequest `json:"params"`
	Filename   string          `json:"filename"`
	CreatedBy  *int64          `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

// File is a rendered document.
type File struct {
	Filename    string
	ContentType string
	Body        []byte
}

// DraftScopeRequest asks for an AI scope section.
type DraftScopeRequest struct {
	ClientName   string   `json:"client_name" validate:"required,max=200"`
	Services     []string `json:"services" validate:"max=50,dive,max=300"`
	Instructions string   `json:"instructions" validate:"max=2000"`
}

// Filter narrows contract listings.
type Filter struct {
	Type DocType
}
