package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/navigation"
)

// UserRole represents the role a profile was registered with
type UserRole string

const (
	RoleOwner  UserRole = "owner"
	RoleTenant UserRole = "tenant"
)

// Profile holds the per-user data the navigation resolver routes on.
type Profile struct {
	UserID        uuid.UUID  `json:"user_id" db:"user_id"`
	Role          UserRole   `json:"role" db:"role"`
	EmailVerified bool       `json:"email_verified" db:"email_verified"`
	DisplayName   string     `json:"display_name" db:"display_name"`
	Phone         string     `json:"phone,omitempty" db:"phone"`
	PropertyID    *uuid.UUID `json:"property_id,omitempty" db:"property_id"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Profile model
func (Profile) TableName() string {
	return "profiles"
}

// NewProfile creates an unverified profile for a freshly registered user.
func NewProfile(userID uuid.UUID, role UserRole, displayName string, propertyID *uuid.UUID) *Profile {
	now := time.Now().UTC()
	p := &Profile{
		UserID:      userID,
		Role:        role,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if propertyID != nil {
		id := *propertyID
		p.PropertyID = &id
	}
	return p
}

// IsOwner returns true if the profile belongs to a property owner
func (p *Profile) IsOwner() bool {
	return p.Role == RoleOwner
}

// ToNavigation projects the profile onto the fields the resolver reads.
// The result is a fresh value safe to publish in a session snapshot.
func (p *Profile) ToNavigation() *navigation.Profile {
	out := &navigation.Profile{
		UserID:        p.UserID,
		Role:          string(p.Role),
		EmailVerified: p.EmailVerified,
		DisplayName:   p.DisplayName,
	}
	if p.PropertyID != nil {
		id := *p.PropertyID
		out.PropertyID = &id
	}
	return out
}
