package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/bizportal/portal/internal/shared"
)

// PermissionSource resolves roles and permissions of a user.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
	RoleNames(ctx context.Context, userID int64) ([]string, error)
}

// EventRecorder counts authentication outcomes.
type EventRecorder interface {
	AuthEvent(event string)
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenStore
	perms  PermissionSource
	events EventRecorder
	audit  shared.Auditor
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenStore, perms PermissionSource, events EventRecorder, audit shared.Auditor, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, perms: perms, events: events, audit: audit, logger: logger}
}

func (s *Service) event(name string) {
	if s.events != nil {
		s.events.AuthEvent(name)
	}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Error("auth lookup user", slog.Any("error", err))
		}
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and opens a new token family.
func (s *Service) Login(ctx context.Context, email, password string, meta ClientMeta) (*TokenPair, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		s.event("login_failed")
		return nil, err
	}
	issued, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.RecordLogin(ctx, user.ID, issued.FamilyID, meta); err != nil {
		s.logger.Warn("record login", slog.Any("error", err))
	}
	profile, err := s.profile(ctx, user)
	if err != nil {
		return nil, err
	}
	s.event("login")
	return s.pair(issued, profile), nil
}

// Refresh rotates a refresh token.
func (s *Service) Refresh(ctx context.Context, refresh string) (*TokenPair, error) {
	issued, err := s.tokens.Rotate(ctx, refresh)
	if err != nil {
		if errors.Is(err, shared.ErrTokenReused) {
			s.event("refresh_reuse")
			s.logger.Warn("refresh token reuse detected, family revoked", slog.String("family", issued.FamilyID))
		} else {
			s.event("refresh_failed")
		}
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, issued.UserID)
	if err != nil || !user.IsActive {
		_ = s.tokens.RevokeFamily(ctx, issued.FamilyID)
		return nil, shared.ErrUnauthorized
	}
	s.event("refresh")
	return s.pair(issued, nil), nil
}

// Logout revokes the token family of the presented refresh token, falling back
// to the family of the current access token.
func (s *Service) Logout(ctx context.Context, principal *shared.Principal, refresh string) error {
	familyID := ""
	if refresh != "" {
		if fid, err := s.tokens.FamilyOf(ctx, refresh); err == nil {
			familyID = fid
		}
	}
	if familyID == "" && principal != nil {
		if claims, err := s.tokens.Lookup(ctx, principal.TokenID); err == nil {
			familyID = claims.FamilyID
		}
	}
	return s.tokens.RevokeFamily(ctx, familyID)
}

// Principal resolves a bearer access token into a request principal.
func (s *Service) Principal(ctx context.Context, access string) (*shared.Principal, error) {
	claims, err := s.tokens.Lookup(ctx, access)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrUnauthorized
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrUnauthorized
	}
	perms, err := s.perms.EffectivePermissions(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &shared.Principal{
		UserID:      user.ID,
		Email:       user.Email,
		Name:        user.Name,
		TokenID:     access,
		Permissions: perms,
	}, nil
}

// Me returns the profile of a user.
func (s *Service) Me(ctx context.Context, userID int64) (*Profile, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, user)
}

// ChangePassword verifies the current password, stores the new one and
// revokes every other session of the user.
func (s *Service) ChangePassword(ctx context.Context, principal *shared.Principal, current, next string) error {
	user, err := s.repo.FindByID(ctx, principal.UserID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return shared.NewValidationError("current_password", "is incorrect")
	}
	if current == next {
		return shared.NewValidationError("new_password", "must differ from the current password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}
	keep := ""
	if claims, err := s.tokens.Lookup(ctx, principal.TokenID); err == nil {
		keep = claims.FamilyID
	}
	if err := s.tokens.RevokeUser(ctx, user.ID, keep); err != nil {
		return err
	}
	return s.audit.Record(ctx, shared.AuditEntry(ctx, "password_changed", "user", user.ID, nil))
}

// RevokeUser drops every session of a user. Used when a user is deactivated.
func (s *Service) RevokeUser(ctx context.Context, userID int64) error {
	return s.tokens.RevokeUser(ctx, userID, "")
}

func (s *Service) profile(ctx context.Context, user *User) (*Profile, error) {
	perms, err := s.perms.EffectivePermissions(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	roles, err := s.perms.RoleNames(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Title:       user.Title,
		Roles:       roles,
		Permissions: perms,
		LastLoginAt: user.LastLoginAt,
	}, nil
}

func (s *Service) pair(issued IssuedTokens, profile *Profile) *TokenPair {
	return &TokenPair{
		AccessToken:  issued.Access,
		RefreshToken: issued.Refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
		User:         profile,
	}
}
