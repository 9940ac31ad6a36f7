package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/roompe/roompe-api/utils"
	"go.uber.org/zap"
)

// ErrNoValidator is returned by a ChainValidator with no members
var ErrNoValidator = errors.New("authentication not configured")

// ErrSessionEnded is returned by a SessionChecker when the token's session
// was signed out or its account no longer exists
var ErrSessionEnded = errors.New("session ended")

// SessionChecker decides whether the session behind validated claims is
// still live. Errors other than ErrSessionEnded mean it could not tell.
type SessionChecker interface {
	CheckSession(ctx context.Context, claims *Claims) error
}

// TokenValidator defines the interface for validating bearer tokens
type TokenValidator interface {
	// ValidateToken validates a token and returns claims
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// TokenValidatorFunc adapts a function to TokenValidator
type TokenValidatorFunc func(ctx context.Context, token string) (*Claims, error)

// ValidateToken calls f(ctx, token)
func (f TokenValidatorFunc) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	return f(ctx, token)
}

// ChainValidator accepts a token if any member accepts it. Members are tried
// in order; the last error is returned when all reject.
type ChainValidator []TokenValidator

// ValidateToken implements TokenValidator
func (c ChainValidator) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	err := ErrNoValidator
	for _, v := range c {
		claims, verr := v.ValidateToken(ctx, token)
		if verr == nil {
			return claims, nil
		}
		err = verr
	}
	return nil, err
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	validator TokenValidator
	sessions  SessionChecker
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator TokenValidator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		logger:    logger,
	}
}

// WithSessionChecker makes every authenticated request pass checker after
// the token validates.
func (m *AuthMiddleware) WithSessionChecker(checker SessionChecker) *AuthMiddleware {
	m.sessions = checker
	return m
}

// authenticate validates the token and checks its session.
func (m *AuthMiddleware) authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := m.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if m.sessions != nil {
		if err := m.sessions.CheckSession(ctx, claims); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

var errInvalidToken = errors.New("invalid token")

// rejected reports whether err is the caller's fault rather than ours.
func rejected(err error) bool {
	return errors.Is(err, errInvalidToken) || errors.Is(err, ErrSessionEnded)
}

// AuthTokenCookieName carries a locally issued token; SessionCookieName is set
// by the hosted UI callback. The Authorization header takes precedence.
const (
	AuthTokenCookieName = "auth_token"
	SessionCookieName   = "session"
)

// RequireAuth is a middleware that requires a valid token
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := extractToken(r)
		if token == "" {
			m.logger.Warn("missing token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, "Missing or invalid authorization")
			return
		}

		claims, err := m.authenticate(ctx, token)
		if err != nil {
			if !rejected(err) {
				m.logger.Error("session check failed",
					zap.String("request_id", requestID),
					zap.Error(err))
				_ = utils.WriteServiceUnavailable(w, "Unable to verify session", nil)
				return
			}
			m.logger.Warn("token rejected",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, "Invalid or expired token")
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("sub", claims.Sub.String()),
			zap.String("provider", claims.Provider))

		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}

// OptionalAuth attaches claims when a valid token is present and otherwise
// lets the request through anonymously. A signed-out token is anonymous too.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		claims, err := m.authenticate(ctx, token)
		if err != nil {
			if !rejected(err) {
				m.logger.Error("session check failed",
					zap.String("request_id", GetRequestIDFromContext(ctx)),
					zap.Error(err))
				_ = utils.WriteServiceUnavailable(w, "Unable to verify session", nil)
				return
			}
			m.logger.Debug("ignoring rejected token on optional route",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}

// extractToken extracts the token from the Authorization header ("Bearer TOKEN")
// or, failing that, from the auth_token or session cookie.
func extractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	for _, name := range []string{AuthTokenCookieName, SessionCookieName} {
		if cookie, err := r.Cookie(name); err == nil && cookie.Value != "" {
			return cookie.Value
		}
	}
	return ""
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
