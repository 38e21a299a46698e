package signals

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CleanText collapses whitespace and non-breaking spaces.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// HTMLToText renders a posting description as plain text. Entity-escaped
// markup, as Greenhouse returns it, is unescaped first.
func HTMLToText(raw string) string {
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "&lt;") {
		raw = html.UnescapeString(raw)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return CleanText(raw)
	}
	doc.Find("script, style").Remove()
	doc.Find("p, br, li, div, tr, h1, h2, h3, h4, h5, h6").AfterHtml("\n")
	var lines []string
	for _, line := range strings.Split(doc.Find("body").Text(), "\n") {
		if t := CleanText(line); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}
