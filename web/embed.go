// Package web holds the templates used to render generated documents.
package web

import "embed"

// Templates embeds the document templates. HTML files are rendered to PDF
// through Gotenberg; XML files are WordprocessingML parts.
//
//go:embed templates/documents/*.html templates/docx/*.xml
var Templates embed.FS
