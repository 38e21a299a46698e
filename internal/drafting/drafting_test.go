package drafting

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	text   string
	err    error
	system string
	prompt string
}

func (f *fakeGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	f.system, f.prompt = system, prompt
	return f.text, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDraftUsesGenerator(t *testing.T) {
	gen := &fakeGenerator{text: "  Drafted text \n"}
	svc := NewService(gen, quietLogger())

	d, err := svc.Draft(context.Background(), Request{Kind: KindSOWScope, Subject: "SOW", Organisation: "Acme", Facts: []string{"Tier 1 support"}, Instructions: "keep it short"})
	require.NoError(t, err)
	assert.Equal(t, Draft{Text: "Drafted text", Source: "ai"}, d)
	assert.Contains(t, gen.system, "statement-of-work")
	assert.Contains(t, gen.prompt, "- Tier 1 support")
	assert.Contains(t, gen.prompt, "Instructions: keep it short")
}

func TestDraftFallsBackOnError(t *testing.T) {
	svc := NewService(&fakeGenerator{err: errors.New("quota")}, quietLogger())
	d, err := svc.Draft(context.Background(), Request{Kind: KindRFPResponse, Subject: "Contact centre RFP", Organisation: "City of Springfield"})
	require.NoError(t, err)
	assert.Equal(t, "template", d.Source)
	assert.Contains(t, d.Text, "Response to: Contact centre RFP")
	assert.Contains(t, d.Text, "Prepared for: City of Springfield")
}

func TestFallbackSOWNumbersServices(t *testing.T) {
	text, err := Fallback(Request{Kind: KindSOWScope, Organisation: "Acme", Facts: []string{"Inbound voice", "Email support"}})
	require.NoError(t, err)
	assert.Contains(t, text, "Scope of Services for Acme")
	assert.Contains(t, text, "1. Inbound voice")
	assert.Contains(t, text, "2. Email support")
}

func TestNewWithoutKeyUsesTemplates(t *testing.T) {
	svc, err := New(context.Background(), "", "", quietLogger())
	require.NoError(t, err)
	d, err := svc.Draft(context.Background(), Request{Kind: "unknown", Subject: "X"})
	require.NoError(t, err)
	assert.Equal(t, "template", d.Source)
	assert.Contains(t, d.Text, "Response to: X")
}
