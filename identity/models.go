package identity

import (
	"time"

	"dealflow/authz"
)

// User is the domain representation of a marketplace account. It mirrors
// the users table and carries no JSON annotations so it can be reused by
// different presentation layers. UnreadCount is owned by the message
// package, which recomputes it transactionally on every message change.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Phone        *string
	Role         authz.Role
	UnreadCount  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains account registration data supplied by callers.
type RegisterRequest struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	FullName string     `json:"full_name"`
	Role     authz.Role `json:"role"`
}

// LoginRequest contains login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
