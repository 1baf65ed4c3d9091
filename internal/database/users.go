package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"estateadmin/internal/models"
)

const userColumns = `u.id, u.email, u.full_name, COALESCE(u.phone, ''), u.is_active,
               u.created_at, u.updated_at, COALESCE(u.last_login_at, u.created_at)`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Email, &u.FullName, &u.Phone, &u.IsActive,
		&u.CreatedAt, &u.UpdatedAt, &u.LastLoginAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a user with the given roles. Used by the seeder, user
// registration and tests.
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (email, full_name, phone, is_active, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		user.Email, user.FullName, user.Phone, user.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now

	for _, role := range user.Roles {
		if _, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_roles (user_id, role) VALUES (?, ?)`, id, role); err != nil {
			return fmt.Errorf("failed to assign role %s: %w", role, err)
		}
	}
	return nil
}

func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.id = ?`
	user, err := scanUser(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Roles, err = db.RolesOf(ctx, id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.email = ?`
	user, err := scanUser(db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	user.Roles, err = db.RolesOf(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// RolesOf returns the role names held by a user.
func (db *DB) RolesOf(ctx context.Context, userID int64) ([]models.Role, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT role FROM user_roles WHERE user_id = ? ORDER BY role`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UsersInRole returns all users holding the given role.
func (db *DB) UsersInRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u
              JOIN user_roles ur ON ur.user_id = u.id
              WHERE ur.role = ? ORDER BY u.id`
	rows, err := db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("failed to get users in role %s: %w", role, err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetUserRole replaces the user's roles with a single role.
func (db *DB) SetUserRole(ctx context.Context, userID int64, role models.Role) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE id = ?`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear roles: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role) VALUES (?, ?)`, userID, role); err != nil {
		return fmt.Errorf("failed to set role: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET updated_at = ? WHERE id = ?`, time.Now(), userID); err != nil {
		return fmt.Errorf("failed to stamp user: %w", err)
	}

	return tx.Commit()
}

// AddUserRole grants an additional role without touching existing ones.
func (db *DB) AddUserRole(ctx context.Context, userID int64, role models.Role) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_roles (user_id, role) VALUES (?, ?)`, userID, role)
	if err != nil {
		return fmt.Errorf("failed to add role: %w", err)
	}
	return nil
}

// UserFilter narrows user listings.
type UserFilter struct {
	Search   string
	Role     models.Role
	IsActive *bool
}

// ListUsers returns users matching the filter, roles populated, newest first.
func (db *DB) ListUsers(ctx context.Context, filter UserFilter) ([]*models.User, error) {
	var (
		conds []string
		args  []any
	)

	if filter.Search != "" {
		needle := "%" + strings.ToLower(filter.Search) + "%"
		conds = append(conds, `(LOWER(u.full_name) LIKE ? OR LOWER(u.email) LIKE ?)`)
		args = append(args, needle, needle)
	}
	if filter.Role != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM user_roles ur WHERE ur.user_id = u.id AND ur.role = ?)`)
		args = append(args, filter.Role)
	}
	if filter.IsActive != nil {
		conds = append(conds, "u.is_active = ?")
		args = append(args, *filter.IsActive)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	query := `SELECT ` + userColumns + ` FROM users u` + where + ` ORDER BY u.created_at DESC, u.id DESC`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, u := range users {
		u.Roles, err = db.RolesOf(ctx, u.ID)
		if err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
