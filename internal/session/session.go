// Package session holds the current authenticated identity and publishes
// changes to subscribed observers. Every other subsystem consults it first.
package session

import (
	"errors"
	"strings"
	"time"
)

// Role classifies what an identity is allowed to do platform-wide.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ParseRole normalizes a wire-format role, defaulting unknown values to student.
func ParseRole(raw string) Role {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleTeacher:
		return RoleTeacher
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleStudent
	}
}

// Identity is the authenticated user record. The zero value means anonymous.
type Identity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// IsZero reports whether the identity is anonymous.
func (i Identity) IsZero() bool { return i.ID == "" }

var (
	ErrBadCredentials   = errors.New("session: invalid email or password")
	ErrNotAuthenticated = errors.New("session: not authenticated")
	ErrInvalidInput     = errors.New("session: invalid input")
)
