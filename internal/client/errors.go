package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bizportal/portal/internal/platform/httpx"
	"github.com/bizportal/portal/internal/shared"
)

// APIError is a non-2xx response decoded from the problem document.
type APIError struct {
	Status int
	Title  string
	Detail string
	Fields map[string]string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Title)
}

// Is lets callers match API errors against the shared sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case shared.ErrNotFound:
		return e.Status == http.StatusNotFound
	case shared.ErrConflict:
		return e.Status == http.StatusConflict
	case shared.ErrValidation:
		return e.Status == http.StatusUnprocessableEntity || e.Status == http.StatusBadRequest
	case shared.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case shared.ErrForbidden:
		return e.Status == http.StatusForbidden
	case shared.ErrUnavailable:
		return e.Status == http.StatusServiceUnavailable
	}
	return false
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(body) == 0 {
		return apiErr
	}
	var problem httpx.ProblemDetail
	if json.Unmarshal(body, &problem) != nil {
		return apiErr
	}
	if problem.Title != "" {
		apiErr.Title = problem.Title
	}
	apiErr.Detail = problem.Detail
	apiErr.Fields = problem.Errors
	return apiErr
}
