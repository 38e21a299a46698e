package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bizportal/portal/internal/platform/db"
	"github.com/bizportal/portal/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool db.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `u.id, u.email, u.name, u.title, u.is_active, u.last_login_at, u.created_at, u.updated_at,
	COALESCE(array_agg(r.id ORDER BY r.name) FILTER (WHERE r.id IS NOT NULL), '{}'),
	COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.id IS NOT NULL), '{}')`

const userFrom = ` FROM users u LEFT JOIN user_roles ur ON ur.user_id = u.id LEFT JOIN roles r ON r.id = ur.role_id`

var userSorts = map[string]string{
	"name":       "u.name",
	"email":      "u.email",
	"created_at": "u.created_at",
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u       User
		roleIDs []int64
		names   []string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Title, &u.IsActive, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt, &roleIDs, &names); err != nil {
		return User{}, err
	}
	u.Roles = make([]RoleRef, 0, len(roleIDs))
	for i := range roleIDs {
		u.Roles = append(u.Roles, RoleRef{ID: roleIDs[i], Name: names[i]})
	}
	return u, nil
}

// List returns a page of users.
func (r *Repository) List(ctx context.Context, params shared.ListParams, filter ListFilter) ([]User, int, error) {
	var where db.Where
	where.AddIf(params.Search != "", "(u.name ILIKE ? OR u.email ILIKE ?)", "%"+params.Search+"%", "%"+params.Search+"%")
	if filter.Active != nil {
		where.Add("u.is_active = ?", *filter.Active)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users u`+where.SQL(), where.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, args := where.Page(params.Limit(), params.Offset())
	query := `SELECT ` + userColumns + userFrom + where.SQL() + ` GROUP BY u.id ORDER BY ` + params.OrderBy(userSorts, "u.name") + page
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// Get fetches a user by id.
func (r *Repository) Get(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+userFrom+` WHERE u.id = $1 GROUP BY u.id`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	return u, err
}

// Create inserts a user and its roles in one transaction.
func (r *Repository) Create(ctx context.Context, u User, passwordHash string, roleIDs []int64) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO users (email, name, title, password_hash, is_active) VALUES ($1, $2, $3, $4, TRUE) RETURNING id`,
			u.Email, u.Name, u.Title, passwordHash).Scan(&id)
		if err != nil {
			return mapWriteError(err)
		}
		return replaceRoles(ctx, tx, id, roleIDs)
	})
	return id, err
}

// Update changes profile fields.
func (r *Repository) Update(ctx context.Context, u User) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET email = $2, name = $3, title = $4, is_active = $5, updated_at = NOW() WHERE id = $1`,
		u.ID, u.Email, u.Name, u.Title, u.IsActive)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetActive flips the active flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetPassword stores a new hash.
func (r *Repository) SetPassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ReplaceRoles swaps the role assignments of a user.
func (r *Repository) ReplaceRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return replaceRoles(ctx, tx, userID, roleIDs)
	})
}

func replaceRoles(ctx context.Context, tx pgx.Tx, userID int64, roleIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if _, err := tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID); err != nil {
			if db.IsForeignKeyViolation(err) {
				return shared.NewValidationError("role_ids", fmt.Sprintf("role %d does not exist", roleID))
			}
			return err
		}
	}
	return nil
}

func mapWriteError(err error) error {
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: email already registered", shared.ErrConflict)
	}
	return err
}
