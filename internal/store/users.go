package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/garrison/internal/model"
	"github.com/erazemk/garrison/internal/rbac"
)

const userColumns = `u.id, u.username, u.password_hash, u.first_name, u.last_name, u.rank, u.role,
	u.base, u.department, u.created_at, u.updated_at, u.deleted_at`

func scanUser(s scanner, u *model.User) error {
	return s.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Rank, &u.Role,
		&u.Base, &u.Department, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
}

func validateUser(u *model.User) error {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" {
		return model.Invalid("username", "is required")
	}
	if !model.ValidRole(u.Role) {
		return model.Invalid("role", fmt.Sprintf("must be one of %q, %q, %q",
			model.RoleAdmin, model.RoleBaseCommander, model.RoleLogisticsOfficer))
	}
	if u.Role != model.RoleAdmin && strings.TrimSpace(u.Base) == "" {
		return model.Invalid("base", "is required for "+u.Role)
	}
	return nil
}

// CreateUser creates a new user. The password hash must already be set.
func CreateUser(ctx context.Context, db *sql.DB, u *model.User) (*model.User, error) {
	if err := validateUser(u); err != nil {
		return nil, err
	}

	existing, err := GetUserByUsername(ctx, db, u.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, model.Invalid("username", "already exists")
	}

	ts := now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, first_name, last_name, rank, role, base, department, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.PasswordHash, u.FirstName, u.LastName, u.Rank, u.Role, u.Base, u.Department, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID, including soft-deleted users.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u := &model.User{}
	err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = ?`, id), u)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the active user with the given username.
func GetUserByUsername(ctx context.Context, db *sql.DB, username string) (*model.User, error) {
	u := &model.User{}
	err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.username = ? AND u.deleted_at IS NULL`, username), u)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// UserFilter narrows ListUsers.
type UserFilter struct {
	Search     string
	Department string
	Rank       string
	Role       string
	Limit      int
}

// ListUsers returns the active users visible to v.
func ListUsers(ctx context.Context, db *sql.DB, v rbac.Visibility, f UserFilter) ([]model.User, error) {
	where, args := v.Where("u.base")
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.deleted_at IS NULL AND ` + where

	if f.Search != "" {
		pat := likePattern(f.Search)
		query += ` AND (u.username LIKE ? ESCAPE '\' OR u.first_name LIKE ? ESCAPE '\' OR u.last_name LIKE ? ESCAPE '\')`
		args = append(args, pat, pat, pat)
	}
	if f.Department != "" {
		query += ` AND u.department = ?`
		args = append(args, f.Department)
	}
	if f.Rank != "" {
		query += ` AND u.rank = ?`
		args = append(args, f.Rank)
	}
	if f.Role != "" {
		query += ` AND u.role = ?`
		args = append(args, f.Role)
	}
	query += ` ORDER BY u.last_name, u.first_name, u.id`
	query, args = limitClause(query, args, f.Limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUser updates a user's profile, role and base.
func UpdateUser(ctx context.Context, db *sql.DB, u *model.User) (*model.User, error) {
	if err := validateUser(u); err != nil {
		return nil, err
	}

	result, err := db.ExecContext(ctx,
		`UPDATE users SET first_name = ?, last_name = ?, rank = ?, role = ?, base = ?, department = ?, updated_at = ?
		 WHERE id = ? AND deleted_at IS NULL`,
		u.FirstName, u.LastName, u.Rank, u.Role, u.Base, u.Department, now(), u.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, &model.NotFoundError{Entity: "user", ID: u.ID}
	}
	return GetUser(ctx, db, u.ID)
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sql.DB, id int64, passwordHash string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, now(), id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return &model.NotFoundError{Entity: "user", ID: id}
	}
	return nil
}

// DeleteUser soft-deletes a user. The last active admin cannot be deleted.
func DeleteUser(ctx context.Context, db *sql.DB, id int64) error {
	u, err := GetUser(ctx, db, id)
	if err != nil {
		return err
	}
	if u == nil || u.DeletedAt != nil {
		return &model.NotFoundError{Entity: "user", ID: id}
	}
	if u.Role == model.RoleAdmin {
		admins, err := CountActiveAdmins(ctx, db)
		if err != nil {
			return err
		}
		if admins <= 1 {
			return &model.LockedError{Entity: "user", Reason: "cannot delete the last admin"}
		}
	}

	ts := now()
	_, err = db.ExecContext(ctx,
		`UPDATE users SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		ts, ts, id,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

// CountActiveAdmins returns the number of admins that are not deleted.
func CountActiveAdmins(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = ? AND deleted_at IS NULL`, model.RoleAdmin,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting admins: %w", err)
	}
	return n, nil
}

// CountUsers returns the number of active users.
func CountUsers(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE deleted_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}
