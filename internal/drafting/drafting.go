// Package drafting produces first-draft prose for RFP responses and SOW
// scopes, using Gemini when configured and a deterministic template otherwise.
package drafting

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"google.golang.org/genai"
)

// Kind selects the drafting template and system instruction.
type Kind string

const (
	KindRFPResponse Kind = "rfp_response"
	KindSOWScope    Kind = "sow_scope"
)

// Request describes what to draft.
type Request struct {
	Kind         Kind
	Subject      string
	Organisation string
	Facts        []string
	Instructions string
}

// Draft is generated text and where it came from.
type Draft struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Generator produces text from a system instruction and a prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Service drafts text, falling back to templates when generation is
// unavailable or fails.
type Service struct {
	gen    Generator
	logger *slog.Logger
}

// NewService builds a drafting service. gen may be nil.
func NewService(gen Generator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gen: gen, logger: logger}
}

// New wires a Service backed by Gemini when apiKey is set, templates otherwise.
func New(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Service, error) {
	g, err := NewGenAI(ctx, apiKey, model)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return NewService(nil, logger), nil
	}
	return NewService(g, logger), nil
}

// Draft returns AI text when possible, otherwise the template rendering.
func (s *Service) Draft(ctx context.Context, req Request) (Draft, error) {
	if s.gen != nil {
		text, err := s.gen.Generate(ctx, systemInstruction(req.Kind), Prompt(req))
		if err == nil && strings.TrimSpace(text) != "" {
			return Draft{Text: strings.TrimSpace(text), Source: "ai"}, nil
		}
		if ctx.Err() != nil {
			return Draft{}, ctx.Err()
		}
		s.logger.Warn("ai draft failed, using template", slog.String("kind", string(req.Kind)), slog.Any("error", err))
	}
	text, err := Fallback(req)
	if err != nil {
		return Draft{}, err
	}
	return Draft{Text: text, Source: "template"}, nil
}

func systemInstruction(kind Kind) string {
	switch kind {
	case KindSOWScope:
		return "You write concise statement-of-work scope sections for a business process outsourcing provider. " +
			"Use plain professional English, numbered deliverables and no marketing language."
	default:
		return "You draft responses to requests for proposal on behalf of a business process outsourcing provider. " +
			"Be specific, structured with short headings, and never invent certifications or figures."
	}
}

// Prompt renders the user prompt sent to the model.
func Prompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", req.Subject)
	if req.Organisation != "" {
		fmt.Fprintf(&b, "Client: %s\n", req.Organisation)
	}
	if len(req.Facts) > 0 {
		b.WriteString("Known facts:\n")
		for _, f := range req.Facts {
			if f = strings.TrimSpace(f); f != "" {
				fmt.Fprintf(&b, "- %s\n", f)
			}
		}
	}
	if req.Instructions != "" {
		fmt.Fprintf(&b, "Instructions: %s\n", strings.TrimSpace(req.Instructions))
	}
	return b.String()
}

var fallbackTemplates = template.Must(template.New("fallback").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`
{{define "rfp_response"}}Response to: {{.Subject}}{{if .Organisation}}
Prepared for: {{.Organisation}}{{end}}

1. Understanding of requirements
We have reviewed the request and understand the scope described by {{if .Organisation}}{{.Organisation}}{{else}}the issuer{{end}}.{{range .Facts}}
- {{.}}{{end}}

2. Proposed approach
Our delivery team will staff, train and manage the programme with dedicated team leaders, daily shift reporting and weekly performance reviews against agreed metrics.

3. Transition plan
Discovery, knowledge transfer, pilot and steady state, each with exit criteria agreed with the client.

4. Commercials
Pricing is provided per role and billed monthly against actual hours.{{if .Instructions}}

Notes: {{.Instructions}}{{end}}
{{end}}
{{define "sow_scope"}}Scope of Services for {{if .Organisation}}{{.Organisation}}{{else}}the Client{{end}}

The Provider will deliver the following services:{{range $i, $f := .Facts}}
{{inc $i}}. {{$f}}{{end}}

The Provider will supply trained personnel, supervision and reporting for each service. Service levels, staffing and reporting cadence are defined in the attached rate schedule.{{if .Instructions}}

Additional requirements: {{.Instructions}}{{end}}
{{end}}`))

// Fallback renders the deterministic template for req.
func Fallback(req Request) (string, error) {
	name := string(req.Kind)
	if fallbackTemplates.Lookup(name) == nil {
		name = string(KindRFPResponse)
	}
	var buf bytes.Buffer
	if err := fallbackTemplates.ExecuteTemplate(&buf, name, req); err != nil {
		return "", fmt.Errorf("render %s draft: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// ============================================================================
// GEMINI
// ============================================================================

// GenAI generates text with the Gemini API.
type GenAI struct {
	client *genai.Client
	model  string
}

// NewGenAI builds a Gemini generator. It returns nil when apiKey is empty.
func NewGenAI(ctx context.Context, apiKey, model string) (*GenAI, error) {
	if apiKey == "" {
		return nil, nil
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAI{client: client, model: model}, nil
}

// Generate calls GenerateContent with a system instruction.
func (g *GenAI) Generate(ctx context.Context, system, prompt string) (string, error) {
	temperature := float32(0.4)
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("genai generate: %w", err)
	}
	return result.Text(), nil
}
