package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arrowlimo/alms/internal/model"
)

// ErrUserExists is returned when creating a user whose username is taken.
var ErrUserExists = errors.New("storage: user already exists")

// CreateUser inserts a user with an already-hashed password.
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string, role model.Role) (model.User, error) {
	var u model.User
	err := db.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, role) VALUES ($1, $2, $3)
		 RETURNING user_id, username, password_hash, role, created_at, password_changed_at, last_login_at`,
		username, passwordHash, string(role),
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.PasswordChangedAt, &u.LastLoginAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.User{}, fmt.Errorf("storage: %s: %w", username, ErrUserExists)
		}
		return model.User{}, fmt.Errorf("storage: create user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the user or ErrNotFound.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var u model.User
	err := db.pool.QueryRow(ctx,
		`SELECT user_id, username, password_hash, role, created_at, password_changed_at, last_login_at
		 FROM users WHERE username = $1`, username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.PasswordChangedAt, &u.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, fmt.Errorf("storage: user %s: %w", username, ErrNotFound)
		}
		return model.User{}, fmt.Errorf("storage: get user: %w", err)
	}
	return u, nil
}

// SetPasswordHash replaces a user's password hash.
func (db *DB) SetPasswordHash(ctx context.Context, username, passwordHash string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2, password_changed_at = now() WHERE username = $1`,
		username, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("storage: set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: user %s: %w", username, ErrNotFound)
	}
	return nil
}

// TouchLastLogin stamps last_login_at with the current time.
func (db *DB) TouchLastLogin(ctx context.Context, userID int64) error {
	if _, err := db.pool.Exec(ctx, `UPDATE users SET last_login_at = now() WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("storage: touch last login: %w", err)
	}
	return nil
}
