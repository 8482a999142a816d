package auth

import "time"

// User represents an authenticatable user account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	LegacyRole   string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
