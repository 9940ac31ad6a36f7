package cognito

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/roompe/roompe-api/navigation"
)

var (
	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")

	// ErrInvalidClaim is returned when a claim has an unexpected value
	ErrInvalidClaim = errors.New("invalid claim")
)

// Claims represents the claims of a Cognito ID or access token
type Claims struct {
	jwt.RegisteredClaims
	Email           string `json:"email"`
	EmailVerified   bool   `json:"email_verified"`
	TokenUse        string `json:"token_use"`
	AuthTime        int64  `json:"auth_time"`
	CognitoUsername string `json:"cognito:username"`

	// Role is the RoomPe role chosen at sign-up (custom:role user pool attribute)
	Role string `json:"custom:role"`
}

// ParsedClaims represents parsed and validated claims
type ParsedClaims struct {
	Sub           uuid.UUID
	Email         string
	EmailVerified bool
	Role          navigation.Role
	Username      string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// ValidateCustomClaims checks the RoomPe-specific attributes. A missing role
// is allowed; the profile store is the source of truth for roles.
func ValidateCustomClaims(claims *Claims) error {
	if claims.Role == "" {
		return nil
	}
	if navigation.NormalizeRole(claims.Role) == navigation.RoleUnknown {
		return fmt.Errorf("%w: custom:role %q", ErrInvalidClaim, claims.Role)
	}
	return nil
}

// parseClaims converts Claims to ParsedClaims with proper type conversions
func parseClaims(claims *Claims) (*ParsedClaims, error) {
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	sub, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: sub is not a UUID: %v", ErrInvalidClaim, err)
	}

	if err := ValidateCustomClaims(claims); err != nil {
		return nil, err
	}

	parsed := &ParsedClaims{
		Sub:           sub,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Role:          navigation.NormalizeRole(claims.Role),
		Username:      claims.CognitoUsername,
	}
	if claims.IssuedAt != nil {
		parsed.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}

	return parsed, nil
}
