package rbac

import (
	"context"
	"fmt"
	"strings"
)

// Service orchestrates RBAC lookups.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	return roles, nil
}

// ListPermissions returns the permission catalogue.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", err)
	}
	return perms, nil
}

// EffectivePermissions returns deduplicated, lower-cased permission names for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	perms, err := s.repo.UserPermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: effective permissions: %w", err)
	}
	return normalizePermissions(perms), nil
}

// RoleNames returns the role names assigned to a user.
func (s *Service) RoleNames(ctx context.Context, userID int64) ([]string, error) {
	roles, err := s.repo.UserRoles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: user roles: %w", err)
	}
	return roles, nil
}

// Allows reports whether granted satisfies required. "*" grants everything and
// "sales.*" grants every permission under the sales module.
func Allows(granted []string, required string) bool {
	required = strings.ToLower(strings.TrimSpace(required))
	for _, g := range granted {
		g = strings.ToLower(strings.TrimSpace(g))
		switch {
		case g == Wildcard, g == required:
			return true
		case strings.HasSuffix(g, ".*") && strings.HasPrefix(required, strings.TrimSuffix(g, "*")):
			return true
		}
	}
	return false
}
