package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bizportal/portal/internal/shared"
)

// QueryInt64 parses an optional integer query parameter.
func QueryInt64(r *http.Request, name string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, shared.NewValidationError(name, "must be an integer")
	}
	return &v, nil
}

// QueryInt parses an optional int query parameter.
func QueryInt(r *http.Request, name string) (*int, error) {
	v, err := QueryInt64(r, name)
	if err != nil || v == nil {
		return nil, err
	}
	n := int(*v)
	return &n, nil
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, name string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, shared.NewValidationError(name, "must be a boolean")
	}
	return &v, nil
}

// QueryDate parses an optional YYYY-MM-DD query parameter.
func QueryDate(r *http.Request, name string) (*shared.Date, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	d, err := shared.ParseDate(raw)
	if err != nil {
		return nil, shared.NewValidationError(name, "must be a date (YYYY-MM-DD)")
	}
	return &d, nil
}
