package navigation

import (
	"strings"

	"github.com/google/uuid"
)

// Role is the routing role of a profile. Values other than owner and tenant
// parse to RoleUnknown and must be handled by the resolver's policy.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleTenant  Role = "tenant"
	RoleUnknown Role = "unknown"
)

// ParseRole maps a stored role string onto the tagged Role variant. Only the
// exact lowercase values match; " Owner " is unknown to the resolver.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleOwner:
		return RoleOwner
	case RoleTenant:
		return RoleTenant
	default:
		return RoleUnknown
	}
}

// NormalizeRole parses role input from users and identity providers, where
// case and surrounding space are noise. Roles are stored in this form.
func NormalizeRole(s string) Role {
	return ParseRole(strings.ToLower(strings.TrimSpace(s)))
}

// Profile is the routing-relevant projection of a user profile.
type Profile struct {
	UserID        uuid.UUID  `json:"user_id" yaml:"user_id"`
	Role          string     `json:"role" yaml:"role"`
	EmailVerified bool       `json:"email_verified" yaml:"email_verified"`
	DisplayName   string     `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	PropertyID    *uuid.UUID `json:"property_id,omitempty" yaml:"property_id,omitempty"`
}

// Session is an immutable snapshot of authentication and profile state.
// The zero value is an unauthenticated session.
//
// Profile is shared between snapshots and must not be mutated once a Session
// holding it has been published.
type Session struct {
	Authenticated  bool     `json:"authenticated" yaml:"authenticated"`
	Profile        *Profile `json:"profile,omitempty" yaml:"profile,omitempty"`
	ProfileLoading bool     `json:"profile_loading" yaml:"profile_loading"`
	ProfileError   string   `json:"profile_error,omitempty" yaml:"profile_error,omitempty"`
}

// Unauthenticated returns the session every client starts with.
func Unauthenticated() Session {
	return Session{}
}

// SigningIn returns the snapshot published right after a successful sign-in,
// before the profile fetch resolves.
func SigningIn() Session {
	return Session{Authenticated: true, ProfileLoading: true}
}

// WithProfile returns an authenticated snapshot with a loaded profile.
// A nil profile yields the "profile absent" state.
func WithProfile(p *Profile) Session {
	return Session{Authenticated: true, Profile: p}
}

// WithProfileError returns an authenticated snapshot whose profile fetch failed.
func WithProfileError(msg string) Session {
	if msg == "" {
		msg = "profile fetch failed"
	}
	return Session{Authenticated: true, ProfileError: msg}
}

// HasProfile reports whether a profile is present.
func (s Session) HasProfile() bool {
	return s.Profile != nil
}

// Equal reports whether two snapshots would route identically and carry the
// same profile fields.
func (s Session) Equal(o Session) bool {
	if s.Authenticated != o.Authenticated ||
		s.ProfileLoading != o.ProfileLoading ||
		s.ProfileError != o.ProfileError {
		return false
	}
	if s.Profile == nil || o.Profile == nil {
		return s.Profile == o.Profile
	}
	a, b := s.Profile, o.Profile
	if a.UserID != b.UserID || a.Role != b.Role || a.EmailVerified != b.EmailVerified || a.DisplayName != b.DisplayName {
		return false
	}
	if a.PropertyID == nil || b.PropertyID == nil {
		return a.PropertyID == b.PropertyID
	}
	return *a.PropertyID == *b.PropertyID
}
