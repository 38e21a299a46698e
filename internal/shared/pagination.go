package shared

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPerPage is used when per_page is absent.
	DefaultPerPage = 20
	// MaxPerPage caps per_page.
	MaxPerPage = 200
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// ListParams are the common list query parameters.
type ListParams struct {
	Page    int
	PerPage int
	Search  string
	Sort    string
	Desc    bool
}

// Offset returns the SQL offset for the page.
func (p ListParams) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the clamped page size.
func (p ListParams) Limit() int {
	switch {
	case p.PerPage <= 0:
		return DefaultPerPage
	case p.PerPage > MaxPerPage:
		return MaxPerPage
	default:
		return p.PerPage
	}
}

// Direction returns ASC or DESC.
func (p ListParams) Direction() string {
	if p.Desc {
		return "DESC"
	}
	return "ASC"
}

// OrderBy resolves the requested sort key against an allow-list of columns.
func (p ListParams) OrderBy(allowed map[string]string, fallback string) string {
	col, ok := allowed[p.Sort]
	if !ok {
		col = fallback
	}
	return col + " " + p.Direction()
}

// ParseListParams reads page, per_page, search, sort and dir.
func ParseListParams(q url.Values) ListParams {
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return ListParams{
		Page:    page,
		PerPage: perPage,
		Search:  strings.TrimSpace(q.Get("search")),
		Sort:    strings.TrimSpace(q.Get("sort")),
		Desc:    strings.EqualFold(q.Get("dir"), "desc"),
	}
}

// Page is a page of results with metadata.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// NewPage wraps items and total into a Page.
func NewPage[T any](items []T, params ListParams, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Data: items, Pagination: NewPagination(params.Page, params.Limit(), total)}
}
