// Package export renders tabular module data as CSV or XLSX attachments.
package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/bizportal/portal/internal/platform/httpx"
	"github.com/bizportal/portal/internal/shared"
)

// Format is an export file format.
type Format string

const (
	// FormatCSV renders comma separated values.
	FormatCSV Format = "csv"
	// FormatXLSX renders an Excel workbook.
	FormatXLSX Format = "xlsx"
)

const csvBufferSize = 32 * 1024

// Table is a sheet of rows with a header.
type Table struct {
	Sheet   string
	Headers []string
	Rows    [][]any
}

// Recorder counts rendered exports.
type Recorder interface {
	DocumentGenerated(kind, format string)
}

// ParseFormat accepts csv (default) or xlsx.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", shared.NewValidationError("format", "must be one of csv xlsx")
	}
}

// Filename builds base_YYYYMMDD.ext.
func Filename(base string, f Format, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", base, now.Format("20060102"), f)
}

// Render encodes the table in the requested format.
func Render(t Table, f Format) ([]byte, error) {
	switch f {
	case FormatXLSX:
		return renderXLSX(t)
	case FormatCSV:
		var buf bytes.Buffer
		if err := WriteCSV(&buf, t); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("export: unsupported format %q", f)
	}
}

// Serve renders the table and writes it as an attachment named base_YYYYMMDD.ext.
func Serve(w http.ResponseWriter, r *http.Request, base string, t Table, rec Recorder) {
	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	body, err := Render(t, format)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if rec != nil {
		rec.DocumentGenerated("export_"+base, string(format))
	}
	httpx.File(w, Filename(base, format, time.Now()), "", body)
}

// WriteCSV streams the table as CRLF separated CSV.
func WriteCSV(w io.Writer, t Table) error {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	if err := writer.Write(t.Headers); err != nil {
		return err
	}
	record := make([]string, len(t.Headers))
	for _, row := range t.Rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, Cell(v))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return buf.Flush()
}

func renderXLSX(t Table) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Export"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	header := make([]any, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if len(t.Headers) > 0 {
		last, err := excelize.CoordinatesToCellName(len(t.Headers), 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return nil, err
		}
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = xlsxValue(v)
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// xlsxValue keeps numbers numeric and flattens everything else to text.
func xlsxValue(v any) any {
	switch val := v.(type) {
	case int, int32, int64, float64, bool:
		return val
	case *int64:
		if val == nil {
			return ""
		}
		return *val
	case *float64:
		if val == nil {
			return ""
		}
		return *val
	default:
		return Cell(v)
	}
}

// Cell formats a value for text output.
func Cell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', 2, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format("2006-01-02")
	case *time.Time:
		if val == nil {
			return ""
		}
		return Cell(*val)
	case shared.Date:
		return val.String()
	case *shared.Date:
		if val == nil {
			return ""
		}
		return val.String()
	case *int64:
		if val == nil {
			return ""
		}
		return strconv.FormatInt(*val, 10)
	case *float64:
		if val == nil {
			return ""
		}
		return Cell(*val)
	case []string:
		return strings.Join(val, "; ")
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
