package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is a local account. Credentials only; routing data lives on Profile.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`

	// SessionsRevokedAt is the last sign-out. Tokens issued before it are dead.
	SessionsRevokedAt *time.Time `json:"-" db:"sessions_revoked_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance
func NewUser(email, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NormalizeEmail lowercases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SessionValid reports whether a token issued at issuedAt outlives the
// user's last sign-out.
func (u *User) SessionValid(issuedAt time.Time) bool {
	return u.SessionsRevokedAt == nil || !issuedAt.Before(*u.SessionsRevokedAt)
}

// RevokedBefore returns the sign-out cutoff, or the zero time if the user
// never signed out.
func (u *User) RevokedBefore() time.Time {
	if u.SessionsRevokedAt == nil {
		return time.Time{}
	}
	return *u.SessionsRevokedAt
}

// RevocationCutoff rounds now up to a whole second. Token iat claims carry
// whole seconds, so every token minted up to now falls before the cutoff.
func RevocationCutoff(now time.Time) time.Time {
	cutoff := now.Truncate(time.Second)
	if cutoff.Before(now) {
		cutoff = cutoff.Add(time.Second)
	}
	return cutoff.UTC()
}
