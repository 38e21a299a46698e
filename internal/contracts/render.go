package contracts

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"strings"
	"text/template"
	"time"

	"github.com/bizportal/portal/internal/shared"
	"github.com/bizportal/portal/web"
)

// PDFClient exposes the subset of the report client used by the renderer.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Renderer turns a Document into DOCX or PDF bytes.
type Renderer struct {
	html   *htmltemplate.Template
	parts  *template.Template
	static map[string][]byte
	client PDFClient
	now    func() time.Time
}

// docx package layout: zip path -> template or static file under templates/docx.
var docxParts = []struct {
	path     string
	source   string
	template bool
}{
	{"[Content_Types].xml", "content_types.xml", false},
	{"_rels/.rels", "rels.xml", false},
	{"docProps/core.xml", "core.xml", true},
	{"word/_rels/document.xml.rels", "document_rels.xml", false},
	{"word/styles.xml", "styles.xml", false},
	{"word/document.xml", "document.xml", true},
}

// NewRenderer parses the embedded templates. client may be nil, in which case
// PDF rendering fails.
func NewRenderer(client PDFClient) (*Renderer, error) {
	html, err := htmltemplate.ParseFS(web.Templates, "templates/documents/contract.html")
	if err != nil {
		return nil, fmt.Errorf("parse contract html: %w", err)
	}
	parts := template.New("docx").Funcs(template.FuncMap{"x": xmlEscape})
	static := map[string][]byte{}
	for _, p := range docxParts {
		raw, err := fs.ReadFile(web.Templates, "templates/docx/"+p.source)
		if err != nil {
			return nil, fmt.Errorf("read docx part %s: %w", p.source, err)
		}
		if !p.template {
			static[p.source] = raw
			continue
		}
		if _, err := parts.New(p.source).Parse(string(raw)); err != nil {
			return nil, fmt.Errorf("parse docx part %s: %w", p.source, err)
		}
	}
	return &Renderer{html: html, parts: parts, static: static, client: client, now: time.Now}, nil
}

// Render produces the document in format f.
func (r *Renderer) Render(ctx context.Context, doc Document, f Format) ([]byte, error) {
	switch f {
	case FormatPDF:
		return r.PDF(ctx, doc)
	case FormatDOCX, "":
		return r.DOCX(doc)
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
}

// DOCX assembles a WordprocessingML package.
func (r *Renderer) DOCX(doc Document) ([]byte, error) {
	data := struct {
		Document
		Created string
	}{Document: doc, Created: r.now().UTC().Format(time.RFC3339)}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range docxParts {
		w, err := zw.Create(p.path)
		if err != nil {
			return nil, err
		}
		if !p.template {
			if _, err := w.Write(r.static[p.source]); err != nil {
				return nil, err
			}
			continue
		}
		if err := r.parts.ExecuteTemplate(w, p.source, data); err != nil {
			return nil, fmt.Errorf("render %s: %w", p.path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PDF renders the HTML template through the PDF client.
func (r *Renderer) PDF(ctx context.Context, doc Document) ([]byte, error) {
	if r.client == nil {
		return nil, fmt.Errorf("%w: pdf client not configured", shared.ErrUnavailable)
	}
	var buf bytes.Buffer
	if err := r.html.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("render contract html: %w", err)
	}
	return r.client.RenderHTML(ctx, buf.String())
}

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
