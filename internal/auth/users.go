package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arrowlimo/alms/internal/model"
	"github.com/arrowlimo/alms/internal/storage"
)

// ErrInvalidCredentials is returned for an unknown user or a wrong password.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// UserStore is the user persistence auth needs.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string, role model.Role) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	SetPasswordHash(ctx context.Context, username, passwordHash string) error
	TouchLastLogin(ctx context.Context, userID int64) error
}

// Users signs users in and manages their passwords.
type Users struct {
	store  UserStore
	jwt    *JWTManager
	logger *slog.Logger
}

// NewUsers creates a Users service. jwt may be nil when tokens are not issued (CLI).
func NewUsers(store UserStore, jwt *JWTManager, logger *slog.Logger) *Users {
	return &Users{store: store, jwt: jwt, logger: logger}
}

// Token is an issued bearer token.
type Token struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	Username  string     `json:"username"`
	Role      model.Role `json:"role"`
}

// Authenticate verifies a username and password and issues a token.
// Unknown users and wrong passwords both return ErrInvalidCredentials.
func (u *Users) Authenticate(ctx context.Context, username, password string) (Token, error) {
	user, err := u.store.GetUserByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		DummyVerify()
		return Token{}, ErrInvalidCredentials
	}
	if err != nil {
		return Token{}, fmt.Errorf("auth: load user: %w", err)
	}
	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		u.logger.Warn("auth: stored hash unreadable", "username", username, "error", err)
		return Token{}, ErrInvalidCredentials
	}
	if !ok {
		return Token{}, ErrInvalidCredentials
	}
	if u.jwt == nil {
		return Token{}, fmt.Errorf("auth: token issuance not configured")
	}
	signed, exp, err := u.jwt.IssueToken(user)
	if err != nil {
		return Token{}, err
	}
	if err := u.store.TouchLastLogin(ctx, user.ID); err != nil {
		u.logger.Warn("auth: record last login failed", "username", username, "error", err)
	}
	return Token{Token: signed, ExpiresAt: exp, Username: user.Username, Role: user.Role}, nil
}

// AddUser creates a user. An empty password generates one, which is returned
// so it can be shown once.
func (u *Users) AddUser(ctx context.Context, username string, role model.Role, password string) (model.User, string, error) {
	if err := model.ValidateUsername(username); err != nil {
		return model.User{}, "", fmt.Errorf("auth: %w", err)
	}
	if model.RoleRank(role) == 0 {
		return model.User{}, "", fmt.Errorf("auth: unknown role %q", role)
	}
	password, generated, err := passwordOrGenerate(password)
	if err != nil {
		return model.User{}, "", err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return model.User{}, "", err
	}
	user, err := u.store.CreateUser(ctx, username, hash, role)
	if err != nil {
		return model.User{}, "", fmt.Errorf("auth: create user: %w", err)
	}
	u.logger.Info("auth: user created", "username", username, "role", role)
	return user, generated, nil
}

// ResetPassword sets a new password. An empty password generates one, which
// is returned so it can be shown once.
func (u *Users) ResetPassword(ctx context.Context, username, password string) (string, error) {
	password, generated, err := passwordOrGenerate(password)
	if err != nil {
		return "", err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}
	if err := u.store.SetPasswordHash(ctx, username, hash); err != nil {
		return "", fmt.Errorf("auth: reset password: %w", err)
	}
	u.logger.Info("auth: password reset", "username", username, "generated", generated != "")
	return generated, nil
}

func passwordOrGenerate(password string) (use, generated string, err error) {
	if password != "" {
		return password, "", nil
	}
	generated, err = GeneratePassword()
	if err != nil {
		return "", "", err
	}
	return generated, generated, nil
}
