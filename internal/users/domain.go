package users

import "time"

// RoleRef is a role assigned to a user.
type RoleRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// User represents a user account for management.
type User struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Title       string     `json:"title"`
	IsActive    bool       `json:"is_active"`
	Roles       []RoleRef  `json:"roles"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ListFilter narrows user listings.
type ListFilter struct {
	Active *bool
}

// CreateUserRequest is the payload of POST /api/users.
type CreateUserRequest struct {
	Email    string  `json:"email" validate:"required,email,max=254"`
	Name     string  `json:"name" validate:"required,max=120"`
	Title    string  `json:"title" validate:"max=120"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
	RoleIDs  []int64 `json:"role_ids"`
}

// UpdateUserRequest is the payload of PUT /api/users/{id}.
type UpdateUserRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,max=120"`
	Title    string `json:"title" validate:"max=120"`
	IsActive *bool  `json:"is_active"`
}

// SetRolesRequest replaces a user's roles.
type SetRolesRequest struct {
	RoleIDs []int64 `json:"role_ids" validate:"required,dive,gt=0"`
}

// ResetPasswordRequest sets a new password for a user.
type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}
