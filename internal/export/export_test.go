package export

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/bizportal/portal/internal/shared"
)

func sampleTable() Table {
	closed := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	return Table{
		Sheet:   "Pipeline",
		Headers: []string{"Name", "Value", "Seats", "Closed", "Tags"},
		Rows: [][]any{
			{"Acme, Inc. renewal", 1250.5, 12, &closed, []string{"cx", "voice"}},
			{"Globex", 0.0, int64(0), (*time.Time)(nil), nil},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	f, err = ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestFilename(t *testing.T) {
	now := time.Date(2026, 1, 9, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "pipeline_20260109.xlsx", Filename("pipeline", FormatXLSX, now))
}

func TestRenderCSV(t *testing.T) {
	body, err := Render(sampleTable(), FormatCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\r\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Name,Value,Seats,Closed,Tags", lines[0])
	assert.Equal(t, `"Acme, Inc. renewal",1250.50,12,2026-03-04,cx; voice`, lines[1])
	assert.Equal(t, "Globex,0.00,0,,", lines[2])
}

func TestRenderXLSX(t *testing.T) {
	body, err := Render(sampleTable(), FormatXLSX)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Pipeline")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Name", rows[0][0])
	assert.Equal(t, "Acme, Inc. renewal", rows[1][0])
	assert.Equal(t, "2026-03-04", rows[1][3])
}

func TestServeSetsAttachment(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/export?format=csv", nil)
	Serve(rec, req, "rfps", sampleTable(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename=rfps_`)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")

	rec = httptest.NewRecorder()
	Serve(rec, httptest.NewRequest(http.MethodGet, "/export?format=doc", nil), "rfps", sampleTable(), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
