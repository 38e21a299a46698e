package contracts

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/bizportal/portal/internal/shared"
)

const (
	defaultTermMonths   = 12
	defaultGoverningLaw = "the State of Delaware"
)

// Document is the format independent content of a contract.
type Document struct {
	Type            DocType
	Title           string
	Provider        string
	ClientName      string
	ClientSignatory string
	EffectiveDate   string
	Sections        []Section
	Rates           []RateLine
}

// Section is a numbered heading with body paragraphs.
type Section struct {
	Heading    string
	Paragraphs []string
}

// RateLine is a formatted rate row.
type RateLine struct {
	Role string
	Rate string
	Unit string
}

// Filename builds {TYPE}_{client}.{ext} with whitespace collapsed to "_" and
// path-unsafe characters removed.
func Filename(t DocType, client string, f Format) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.TrimSpace(client) {
		switch {
		case unicode.IsSpace(r):
			if !underscore && b.Len() > 0 {
				b.WriteByte('_')
				underscore = true
			}
			continue
		case unicode.IsControl(r), strings.ContainsRune(`/\:*?"<>|`, r):
			continue
		}
		b.WriteRune(r)
		underscore = false
	}
	name := strings.Trim(b.String(), "_.")
	if name == "" {
		name = "client"
	}
	return fmt.Sprintf("%s_%s.%s", strings.ToUpper(string(t)), name, f)
}

// FormatMoney renders an amount as US dollars with grouping.
func FormatMoney(v float64) string {
	return message.NewPrinter(language.AmericanEnglish).Sprintf("$%.2f", shared.RoundCents(v))
}

// Build lays out the document for req. provider is the contracting company.
func Build(req GenerateRequest, provider string) Document {
	title := cases.Title(language.English, cases.NoLower)
	client := title.String(strings.TrimSpace(req.ClientName))
	doc := Document{
		Type:            req.Type,
		Provider:        provider,
		ClientName:      client,
		ClientSignatory: title.String(strings.TrimSpace(req.ClientSignatory)),
		EffectiveDate:   req.EffectiveDate.Format("January 2, 2006"),
	}
	term := req.TermMonths
	if term <= 0 {
		term = defaultTermMonths
	}
	law := strings.TrimSpace(req.GoverningLaw)
	if law == "" {
		law = defaultGoverningLaw
	}
	party := client
	if addr := strings.TrimSpace(req.ClientAddress); addr != "" {
		party = fmt.Sprintf("%s, with its principal place of business at %s", client, addr)
	}
	services := cleanList(req.Services)

	switch req.Type {
	case TypeSOW:
		doc.Title = "Statement of Work"
		doc.Sections = append(doc.Sections,
			Section{Heading: "1. Parties", Paragraphs: []string{fmt.Sprintf(
				"This Statement of Work is entered into as of %s by and between %s (\"Provider\") and %s (\"Client\") under the Master Services Agreement between the parties.",
				doc.EffectiveDate, provider, party)}},
			Section{Heading: "2. Scope", Paragraphs: paragraphs(req.Scope)},
		)
		if len(services) > 0 {
			doc.Sections = append(doc.Sections, Section{Heading: "3. Services", Paragraphs: numbered(services)})
		}
		doc.Sections = append(doc.Sections, Section{
			Heading: fmt.Sprintf("%d. Term", len(doc.Sections)+1),
			Paragraphs: []string{fmt.Sprintf(
				"This Statement of Work begins on the effective date and continues for %d months. Fees are invoiced monthly in arrears at the rates below.", term)},
		})
		for _, r := range req.Rates {
			unit := strings.TrimSpace(r.Unit)
			if unit == "" {
				unit = "hour"
			}
			doc.Rates = append(doc.Rates, RateLine{Role: strings.TrimSpace(r.Role), Rate: FormatMoney(r.Rate), Unit: "per " + unit})
		}
	default:
		doc.Title = "Master Services Agreement"
		servicesText := "Provider will perform the services described in one or more Statements of Work executed under this Agreement."
		if len(services) > 0 {
			servicesText += " The initial services include " + joinList(services) + "."
		}
		doc.Sections = []Section{
			{Heading: "1. Parties", Paragraphs: []string{fmt.Sprintf(
				"This Master Services Agreement (the \"Agreement\") is entered into as of %s by and between %s (\"Provider\") and %s (\"Client\").",
				doc.EffectiveDate, provider, party)}},
			{Heading: "2. Services", Paragraphs: []string{servicesText}},
			{Heading: "3. Term and Termination", Paragraphs: []string{
				fmt.Sprintf("This Agreement begins on the effective date and continues for %d months, renewing for successive periods of the same length unless either party gives sixty (60) days written notice.", term),
				"Either party may terminate this Agreement for material breach not cured within thirty (30) days of written notice.",
			}},
			{Heading: "4. Fees and Payment", Paragraphs: []string{
				"Client will pay the fees set out in each Statement of Work. Invoices are payable within thirty (30) days of receipt.",
			}},
			{Heading: "5. Confidentiality", Paragraphs: []string{
				"Each party will protect the other party's confidential information with at least the care it uses for its own and will use it only to perform this Agreement.",
			}},
			{Heading: "6. Governing Law", Paragraphs: []string{fmt.Sprintf("This Agreement is governed by the laws of %s.", law)}},
		}
	}
	return doc
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func numbered(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = fmt.Sprintf("%d. %s", i+1, s)
	}
	return out
}

func joinList(items []string) string {
	switch len(items) {
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
