// Package contracts generates MSA and SOW documents and keeps a record of each generation.
package contracts

import (
	"context"
	"fmt"
	"strings"

	"github.com/bizportal/portal/internal/drafting"
	"github.com/bizportal/portal/internal/platform/httpx"
	"github.com/bizportal/portal/internal/shared"
)

// RepositoryPort defines persistence used by the contracts service.
type RepositoryPort interface {
	List(ctx context.Context, params shared.ListParams, f Filter) ([]Contract, int, error)
	Get(ctx context.Context, id int64) (Contract, error)
	Create(ctx context.Context, c Contract) (int64, error)
}

// DocumentRenderer renders a laid out document.
type DocumentRenderer interface {
	Render(ctx context.Context, doc Document, f Format) ([]byte, error)
}

// Drafter produces scope drafts.
type Drafter interface {
	Draft(ctx context.Context, req drafting.Request) (drafting.Draft, error)
}

// Service generates contracts.
type Service struct {
	repo     RepositoryPort
	renderer DocumentRenderer
	drafter  Drafter
	audit    shared.Auditor
	provider string
}

// NewService builds the service. provider is the contracting company name.
func NewService(repo RepositoryPort, renderer DocumentRenderer, drafter Drafter, audit shared.Auditor, provider string) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	return &Service{repo: repo, renderer: renderer, drafter: drafter, audit: audit, provider: provider}
}

// Generate renders a document and records the generation.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (File, Contract, error) {
	req.ClientName = strings.TrimSpace(req.ClientName)
	if err := req.Check(); err != nil {
		return File{}, Contract{}, err
	}
	file, err := s.render(ctx, req, req.OutputFormat())
	if err != nil {
		return File{}, Contract{}, err
	}
	record := Contract{
		Type:       req.Type,
		ClientName: req.ClientName,
		Params:     req,
		Filename:   file.Filename,
	}
	if actor := shared.ActorID(ctx); actor != 0 {
		record.CreatedBy = &actor
	}
	id, err := s.repo.Create(ctx, record)
	if err != nil {
		return File{}, Contract{}, fmt.Errorf("record contract: %w", err)
	}
	record.ID = id
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "generate", "contract", id, map[string]any{
		"type": req.Type, "client": req.ClientName, "format": req.OutputFormat(),
	})); err != nil {
		return File{}, Contract{}, err
	}
	return file, record, nil
}

// List returns a page of generated contracts.
func (s *Service) List(ctx context.Context, params shared.ListParams, f Filter) (shared.Page[Contract], error) {
	items, total, err := s.repo.List(ctx, params, f)
	if err != nil {
		return shared.Page[Contract]{}, fmt.Errorf("list contracts: %w", err)
	}
	return shared.NewPage(items, params, total), nil
}

// Download regenerates a recorded contract. An empty format reuses the original one.
func (s *Service) Download(ctx context.Context, id int64, f Format) (File, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return File{}, err
	}
	if f == "" {
		f = c.Params.OutputFormat()
	}
	if f != FormatDOCX && f != FormatPDF {
		return File{}, shared.NewValidationError("format", "must be one of docx pdf")
	}
	return s.render(ctx, c.Params, f)
}

// DraftScope drafts a statement of work scope section.
func (s *Service) DraftScope(ctx context.Context, req DraftScopeRequest) (drafting.Draft, error) {
	if s.drafter == nil {
		return drafting.Draft{}, fmt.Errorf("%w: drafting is not configured", shared.ErrUnavailable)
	}
	return s.drafter.Draft(ctx, drafting.Request{
		Kind:         drafting.KindSOWScope,
		Subject:      "Statement of work scope",
		Organisation: strings.TrimSpace(req.ClientName),
		Facts:        req.Services,
		Instructions: req.Instructions,
	})
}

func (s *Service) render(ctx context.Context, req GenerateRequest, f Format) (File, error) {
	body, err := s.renderer.Render(ctx, Build(req, s.provider), f)
	if err != nil {
		return File{}, fmt.Errorf("render %s: %w", req.Type, err)
	}
	name := Filename(req.Type, req.ClientName, f)
	return File{Filename: name, ContentType: httpx.ContentTypeFor(name), Body: body}, nil
}
