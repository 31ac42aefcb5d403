package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents an identity registered with the system. PasswordHash and
// APIKey are secrets: they never appear in logs or external responses except
// for the explicit api-key echo on rotation.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	APIKey       string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
	IsActive     bool
}

// UserStats aggregates store-wide identity counts.
type UserStats struct {
	TotalUsers       int64
	ActiveUsers      int64
	ActiveLast30Days int64
	NewLast7Days     int64
}

// NormalizeEmail produces the canonical form used as the uniqueness key:
// surrounding whitespace removed, lower-cased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
