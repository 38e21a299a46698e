package invoicing

import (
	"context"
	"fmt"
	"html/template"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/bizportal/portal/web"
)

// PDFRenderer converts an HTML template into a PDF.
type PDFRenderer interface {
	RenderTemplate(ctx context.Context, tmpl *template.Template, data any) ([]byte, error)
}

// File is a rendered invoice document.
type File struct {
	Filename    string
	ContentType string
	Body        []byte
}

type documentView struct {
	Number      string
	Provider    string
	Status      string
	PeriodStart string
	PeriodEnd   string
	DueDate     string
	ClientName  string
	Lines       []lineView
	Subtotal    string
	TaxRate     string
	Tax         string
	Currency    string
	Total       string
}

type lineView struct {
	Role      string
	Headcount int
	Hours     string
	Rate      string
	Amount    string
}

var printer = message.NewPrinter(language.AmericanEnglish)

func money(v float64) string {
	return printer.Sprintf("%.2f", v)
}

func parseTemplate() (*template.Template, error) {
	tmpl, err := template.ParseFS(web.Templates, "templates/documents/invoice.html")
	if err != nil {
		return nil, fmt.Errorf("parse invoice html: %w", err)
	}
	return tmpl, nil
}

func newDocumentView(inv Invoice, provider string) documentView {
	view := documentView{
		Number:      inv.Number,
		Provider:    provider,
		Status:      string(inv.Status),
		PeriodStart: inv.PeriodStart.String(),
		PeriodEnd:   inv.PeriodEnd.String(),
		ClientName:  inv.ClientName,
		Subtotal:    money(inv.Subtotal),
		TaxRate:     strconv.FormatFloat(inv.TaxRate, 'f', -1, 64),
		Tax:         money(inv.TaxAmount),
		Currency:    inv.Currency,
		Total:       money(inv.Total),
	}
	if inv.DueDate != nil {
		view.DueDate = inv.DueDate.String()
	}
	for _, r := range inv.Roles {
		view.Lines = append(view.Lines, lineView{
			Role:      r.RoleName,
			Headcount: r.Headcount,
			Hours:     strconv.FormatFloat(r.Hours, 'f', -1, 64),
			Rate:      money(r.Rate),
			Amount:    money(r.Amount),
		})
	}
	return view
}

// Filename returns the download name of an invoice PDF.
func Filename(inv Invoice) string {
	if inv.Number == "" {
		return "invoice-" + strconv.FormatInt(inv.ID, 10) + ".pdf"
	}
	return inv.Number + ".pdf"
}
