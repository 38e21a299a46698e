package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizportal/portal/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("wrap: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrConflict, http.StatusConflict},
		{shared.ErrInvalidTransition, http.StatusConflict},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrTokenReused, http.StatusUnauthorized},
		{shared.NewValidationError("name", "is required"), http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}

func TestRespondErrorIncludesFieldErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, shared.NewValidationError("email", "must be a valid email"))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "must be a valid email", body.Errors["email"])
}

type sample struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

func TestDecodeAndValidate(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"","email":"nope"}`))
	var s sample
	err := DecodeAndValidate(req, &s)
	require.Error(t, err)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "is required", verr.Fields["name"])
	assert.Equal(t, "must be a valid email", verr.Fields["email"])
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bogus":1}`))
	var s sample
	assert.ErrorIs(t, DecodeJSON(req, &s), shared.ErrValidation)
}

func TestFileSetsDisposition(t *testing.T) {
	rec := httptest.NewRecorder()
	File(rec, "MSA_Acme.docx", "application/octet-stream", []byte("abc"))
	assert.Equal(t, `attachment; filename=MSA_Acme.docx`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "abc", rec.Body.String())
}

func TestFileEncodesNonASCIIFilename(t *testing.T) {
	rec := httptest.NewRecorder()
	File(rec, "MSA_Société Générale.docx", "", []byte("abc"))

	header := rec.Header().Get("Content-Disposition")
	for _, r := range header {
		require.Less(t, r, rune(0x80), header)
	}
	assert.Contains(t, header, "filename*=utf-8''")
	disposition, params, err := mime.ParseMediaType(header)
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, "MSA_Société Générale.docx", params["filename"])
}

func TestFileDerivesContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	File(rec, "pipeline_20260101.xlsx", "", []byte("x"))
	assert.Equal(t, MimeXLSX, rec.Header().Get("Content-Type"))
}
