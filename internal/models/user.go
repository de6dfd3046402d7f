package models

import (
	"fmt"
	"strings"
	"time"

	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStudent UserRole = "STUDENT"
)

// roleAliases accepts the Spanish labels older clients still send.
var roleAliases = map[string]UserRole{
	"ADMIN":      RoleAdmin,
	"TEACHER":    RoleTeacher,
	"DOCENTE":    RoleTeacher,
	"STUDENT":    RoleStudent,
	"ESTUDIANTE": RoleStudent,
}

// ParseUserRole converts free text into a UserRole.
func ParseUserRole(raw string) (UserRole, error) {
	if role, ok := roleAliases[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return role, nil
	}
	return "", appErrors.Clone(appErrors.ErrInvalidEnum, fmt.Sprintf("unknown role %q", raw))
}

// Valid reports whether r is one of the declared roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// User is an account able to log in. Students and teachers may be bound to one.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
