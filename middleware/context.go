package middleware

import (
	"context"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Context key type to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for validated token claims
	ClaimsKey contextKey = "claims"
)

// Token providers
const (
	ProviderLocal   = "local"
	ProviderCognito = "cognito"
)

// Claims represents the identity carried by a validated token
type Claims struct {
	Sub           uuid.UUID
	Email         string
	EmailVerified bool
	Provider      string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// GetRequestIDFromContext retrieves the request ID assigned by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// GetClaimsFromContext retrieves token claims from context
func GetClaimsFromContext(ctx context.Context) *Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*Claims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds token claims to the context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetUserIDFromContext returns the authenticated user's ID, if any
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	claims := GetClaimsFromContext(ctx)
	if claims == nil || claims.Sub == uuid.Nil {
		return uuid.Nil, false
	}
	return claims.Sub, true
}
