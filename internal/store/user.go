package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

const userColumns = `id, username, display_name, password_hash, role, year, section, active, created_at`

func scanUser(r rowScanner) (*model.User, error) {
	var u model.User
	err := r.Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Role, &u.Year, &u.Section, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user and returns its ID.
func (s *Store) CreateUser(ctx context.Context, u model.User) (string, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = model.UserRoleStudent
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO users (id, username, display_name, password_hash, role, year, section, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Username, u.DisplayName, u.PasswordHash, u.Role, u.Year, u.Section, u.Active, s.now(),
	)
	if err != nil {
		slog.Error("failed to create user", "username", u.Username, "error", err)
		return "", err
	}
	slog.Info("created user", "id", u.ID, "username", u.Username, "role", u.Role)
	return u.ID, nil
}

// GetUserByUsername returns a user by username, or nil if there is none.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE username = ?`), username))
}

// GetUserByID returns a user by ID, or nil if there is none.
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, s.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id))
}

// ListUsers returns all users.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ToggleUserActive flips the active flag on a user. Deactivating a user
// also signs them out everywhere.
func (s *Store) ToggleUserActive(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.q(`UPDATE users SET active = NOT active WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	if err := s.revokeInactiveSessions(ctx, tx, id); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return tx.Commit()
}

// UserCount returns the total number of users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
