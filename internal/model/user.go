package model

import (
	"fmt"
	"time"
)

// Role represents the RBAC role assigned to a user.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleBookkeeper Role = "bookkeeper"
	RoleViewer     Role = "viewer"
)

// User is a person allowed to sign in to the API or run privileged CLI commands.
type User struct {
	ID                int64      `json:"id"`
	Username          string     `json:"username"`
	PasswordHash      string     `json:"-"`
	Role              Role       `json:"role"`
	CreatedAt         time.Time  `json:"created_at"`
	PasswordChangedAt time.Time  `json:"password_changed_at"`
	LastLoginAt       *time.Time `json:"last_login_at,omitempty"`
}

// RoleRank returns the numeric rank of a role (higher = more privileges).
// Only relative ordering matters: RoleAtLeast uses >= comparison.
func RoleRank(r Role) int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleBookkeeper:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// RoleAtLeast returns true if role r has at least the privileges of minRole.
func RoleAtLeast(r, minRole Role) bool {
	return RoleRank(r) >= RoleRank(minRole)
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if RoleRank(r) == 0 {
		return "", fmt.Errorf("unknown role %q (want admin, bookkeeper or viewer)", s)
	}
	return r, nil
}

// ValidateUsername checks that a username is 1-64 ASCII characters:
// alphanumeric, dots, hyphens, underscores and @ signs.
func ValidateUsername(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("username is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("username must be at most 64 characters")
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') &&
			c != '.' && c != '-' && c != '_' && c != '@' {
			return fmt.Errorf("username contains invalid character at position %d: %q", i, c)
		}
	}
	return nil
}
