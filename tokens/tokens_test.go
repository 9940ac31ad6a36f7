package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(now time.Time) *Manager {
	m := NewManager(Config{Secret: "test-secret", Issuer: "roompe-api", TTL: time.Hour})
	m.now = func() time.Time { return now }
	return m
}

func TestManager_IssueAndValidate(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	m := newTestManager(now)
	userID := uuid.New()

	token, expiresAt, err := m.Issue(userID, "asha@example.com", true, time.Time{})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, now.Add(time.Hour), expiresAt)

	claims, err := m.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.Sub)
	assert.Equal(t, "asha@example.com", claims.Email)
	assert.True(t, claims.EmailVerified)
	assert.Equal(t, "roompe-api", claims.Issuer)
	assert.True(t, claims.IssuedAt.Equal(now))
	assert.True(t, claims.ExpiresAt.Equal(expiresAt))
}

func TestManager_IssuedAtNotBeforeRevocation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 400*int(time.Millisecond), time.UTC)
	m := newTestManager(now)
	cutoff := now.Truncate(time.Second).Add(time.Second)

	token, expiresAt, err := m.Issue(uuid.New(), "asha@example.com", true, cutoff)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiresAt, "expiry still counts from now")

	claims, err := m.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, claims.IssuedAt.Equal(cutoff))

	token, _, err = m.Issue(uuid.New(), "asha@example.com", true, now.Add(-time.Hour))
	require.NoError(t, err)
	claims, err = m.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, claims.IssuedAt.Equal(now.Truncate(time.Second)), "an old cutoff does not move iat")
}

func TestManager_DefaultTTL(t *testing.T) {
	m := NewManager(Config{Secret: "s"})
	assert.Equal(t, 24*time.Hour, m.ttl)
}

func TestManager_Expired(t *testing.T) {
	now := time.Now()
	m := newTestManager(now)

	token, _, err := m.Issue(uuid.New(), "a@example.com", false, time.Time{})
	require.NoError(t, err)

	m.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = m.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestManager_RejectsForeignTokens(t *testing.T) {
	now := time.Now()
	m := newTestManager(now)

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name: "garbage",
			token: func(*testing.T) string {
				return "not.a.token"
			},
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				other := NewManager(Config{Secret: "other-secret", Issuer: "roompe-api"})
				tok, _, err := other.Issue(uuid.New(), "a@example.com", true, time.Time{})
				require.NoError(t, err)
				return tok
			},
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				other := NewManager(Config{Secret: "test-secret", Issuer: "someone-else"})
				tok, _, err := other.Issue(uuid.New(), "a@example.com", true, time.Time{})
				require.NoError(t, err)
				return tok
			},
		},
		{
			name: "none algorithm",
			token: func(t *testing.T) string {
				claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
					Subject:   uuid.NewString(),
					Issuer:    "roompe-api",
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				}}
				tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
				require.NoError(t, err)
				return tok
			},
		},
		{
			name: "subject is not a uuid",
			token: func(t *testing.T) string {
				claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
					Subject:   "user-42",
					Issuer:    "roompe-api",
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				}}
				tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
				require.NoError(t, err)
				return tok
			},
		},
		{
			name: "missing expiry",
			token: func(t *testing.T) string {
				claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
					Subject: uuid.NewString(),
					Issuer:  "roompe-api",
				}}
				tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
				require.NoError(t, err)
				return tok
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ValidateToken(context.Background(), tt.token(t))
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
