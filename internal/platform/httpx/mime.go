package httpx

import (
	"log"
	"mime"
	"path/filepath"
)

// Content types served by the document and export endpoints.
const (
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeCSV  = "text/csv; charset=utf-8"
	MimePDF  = "application/pdf"
)

func init() {
	ensureMimeType(".docx", MimeDOCX)
	ensureMimeType(".xlsx", MimeXLSX)
	ensureMimeType(".csv", MimeCSV)
	ensureMimeType(".pdf", MimePDF)
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("httpx: failed to register MIME type for %s: %v", ext, err)
	}
}

// ContentTypeFor resolves the content type from a filename extension.
func ContentTypeFor(filename string) string {
	if typ := mime.TypeByExtension(filepath.Ext(filename)); typ != "" {
		return typ
	}
	return "application/octet-stream"
}
