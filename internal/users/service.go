package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/bizportal/portal/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	List(ctx context.Context, params shared.ListParams, filter ListFilter) ([]User, int, error)
	Get(ctx context.Context, id int64) (User, error)
	Create(ctx context.Context, u User, passwordHash string, roleIDs []int64) (int64, error)
	Update(ctx context.Context, u User) error
	SetActive(ctx context.Context, id int64, active bool) error
	SetPassword(ctx context.Context, id int64, hash string) error
	ReplaceRoles(ctx context.Context, userID int64, roleIDs []int64) error
}

// SessionRevoker drops every session of a user.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID int64) error
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	sessions SessionRevoker
	audit    shared.Auditor
	hashCost int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, sessions SessionRevoker, audit shared.Auditor) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	return &Service{repo: repo, sessions: sessions, audit: audit, hashCost: bcrypt.DefaultCost}
}

// List returns a page of users.
func (s *Service) List(ctx context.Context, params shared.ListParams, filter ListFilter) (shared.Page[User], error) {
	items, total, err := s.repo.List(ctx, params, filter)
	if err != nil {
		return shared.Page[User]{}, fmt.Errorf("list users: %w", err)
	}
	return shared.NewPage(items, params, total), nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// Create registers a new active user.
func (s *Service) Create(ctx context.Context, req CreateUserRequest) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u := User{
		Email: normalizeEmail(req.Email),
		Name:  strings.TrimSpace(req.Name),
		Title: strings.TrimSpace(req.Title),
	}
	id, err := s.repo.Create(ctx, u, string(hash), req.RoleIDs)
	if err != nil {
		return User{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "create", "user", id, map[string]any{"email": u.Email})); err != nil {
		return User{}, err
	}
	return s.repo.Get(ctx, id)
}

// Update edits a user. Deactivation through update follows Deactivate's rules.
func (s *Service) Update(ctx context.Context, id int64, req UpdateUserRequest) (User, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	existing.Email = normalizeEmail(req.Email)
	existing.Name = strings.TrimSpace(req.Name)
	existing.Title = strings.TrimSpace(req.Title)
	deactivating := false
	if req.IsActive != nil {
		if !*req.IsActive && existing.IsActive {
			if id == shared.ActorID(ctx) {
				return User{}, fmt.Errorf("%w: you cannot deactivate your own account", shared.ErrConflict)
			}
			deactivating = true
		}
		existing.IsActive = *req.IsActive
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		return User{}, err
	}
	if deactivating {
		if err := s.revoke(ctx, id); err != nil {
			return User{}, err
		}
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "update", "user", id, nil)); err != nil {
		return User{}, err
	}
	return s.repo.Get(ctx, id)
}

// Deactivate disables a user and revokes their sessions.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id == shared.ActorID(ctx) {
		return fmt.Errorf("%w: you cannot deactivate your own account", shared.ErrConflict)
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	if err := s.revoke(ctx, id); err != nil {
		return err
	}
	return s.audit.Record(ctx, shared.AuditEntry(ctx, "deactivate", "user", id, nil))
}

// SetRoles replaces role assignments.
func (s *Service) SetRoles(ctx context.Context, id int64, roleIDs []int64) (User, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return User{}, err
	}
	if err := s.repo.ReplaceRoles(ctx, id, dedupe(roleIDs)); err != nil {
		return User{}, err
	}
	if err := s.audit.Record(ctx, shared.AuditEntry(ctx, "set_roles", "user", id, map[string]any{"role_ids": roleIDs})); err != nil {
		return User{}, err
	}
	return s.repo.Get(ctx, id)
}

// ResetPassword sets a password chosen by an administrator and logs the user out everywhere.
func (s *Service) ResetPassword(ctx context.Context, id int64, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.SetPassword(ctx, id, string(hash)); err != nil {
		return err
	}
	if err := s.revoke(ctx, id); err != nil {
		return err
	}
	return s.audit.Record(ctx, shared.AuditEntry(ctx, "reset_password", "user", id, nil))
}

func (s *Service) revoke(ctx context.Context, id int64) error {
	if s.sessions == nil {
		return nil
	}
	if err := s.sessions.RevokeUser(ctx, id); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
