package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bizportal/portal/internal/platform/httpx"
	"github.com/bizportal/portal/internal/shared"
)

// PrincipalResolver resolves bearer tokens.
type PrincipalResolver interface {
	Principal(ctx context.Context, access string) (*shared.Principal, error)
}

// RequireUser rejects requests without a valid bearer access token and
// stores the principal in the request context.
func RequireUser(resolver PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				unauthorized(w, shared.ErrUnauthorized)
				return
			}
			principal, err := resolver.Principal(r.Context(), token)
			if err != nil {
				unauthorized(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func unauthorized(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrUnauthorized) {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	httpx.RespondError(w, err)
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
