package models

import (
	"time"

	"github.com/google/uuid"
)

// EmailVerification is a single-use email verification token. Only the
// SHA-256 of the token is stored.
type EmailVerification struct {
	TokenHash  string     `json:"-" db:"token_hash"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty" db:"consumed_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the EmailVerification model
func (EmailVerification) TableName() string {
	return "email_verifications"
}

// NewEmailVerification creates a token record valid for ttl.
func NewEmailVerification(userID uuid.UUID, tokenHash string, ttl time.Duration) *EmailVerification {
	now := time.Now().UTC()
	return &EmailVerification{
		TokenHash: tokenHash,
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// IsExpired reports whether the token is past its expiry at now.
func (v *EmailVerification) IsExpired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

// IsConsumed reports whether the token was already used.
func (v *EmailVerification) IsConsumed() bool {
	return v.ConsumedAt != nil
}
