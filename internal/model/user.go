// Package model defines the data structures used throughout the application.
package model

import (
	"fmt"
	"time"
)

// Role gates write permissions. The zero value is not a valid role.
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole converts s into a Role. Only the three known roles are accepted.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of guest, user or admin.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanPost reports whether the role may create questions and answers.
func (r Role) CanPost() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	case RoleGuest:
		return false
	default:
		return false
	}
}

// IsAdmin reports whether the role may moderate content and manage roles.
func (r Role) IsAdmin() bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleGuest, RoleUser:
		return false
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

// User represents a registered account.
//
// PasswordHash is never serialised. Accounts created through GitHub sign-in
// have an empty PasswordHash and a non-nil GitHubID, so password login always
// fails for them.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	GitHubID     *int64    `json:"githubId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
