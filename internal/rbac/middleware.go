package rbac

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/bizportal/portal/internal/platform/httpx"
	"github.com/bizportal/portal/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers. It reads the
// principal placed in context by auth.RequireUser.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			if len(normalized) == 0 || hasAnyPermission(principal.Permissions, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, principal, normalized)
		})
	}
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			if hasAllPermissions(principal.Permissions, normalized) {
				next.ServeHTTP(w, r)
				return
			}
			m.deny(w, principal, normalized)
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, principal *shared.Principal, required []string) {
	if m.Logger != nil {
		m.Logger.Warn("rbac denied", slog.Int64("user_id", principal.UserID), slog.String("required", strings.Join(required, ",")))
	}
	httpx.RespondError(w, shared.ErrForbidden)
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	sort.Strings(normalized)
	return normalized
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, r := range required {
		if Allows(granted, r) {
			return true
		}
	}
	return false
}

func hasAllPermissions(granted []string, required []string) bool {
	for _, r := range required {
		if !Allows(granted, r) {
			return false
		}
	}
	return true
}
