package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// User tests
func TestNewUser(t *testing.T) {
	user := NewUser("  Alice@Example.COM ", "hash")

	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "hash", user.PasswordHash)
	assert.False(t, user.CreatedAt.IsZero())
	assert.Equal(t, user.CreatedAt, user.UpdatedAt)
}

func TestUser_SessionValid(t *testing.T) {
	user := NewUser("carol@example.com", "hash")
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, user.SessionValid(issued), "never signed out")
	assert.True(t, user.RevokedBefore().IsZero())

	cutoff := RevocationCutoff(issued.Add(300 * time.Millisecond))
	assert.Equal(t, issued.Add(time.Second), cutoff)
	user.SessionsRevokedAt = &cutoff

	assert.False(t, user.SessionValid(issued), "token from the signed-out second")
	assert.False(t, user.SessionValid(time.Time{}), "token without iat")
	assert.True(t, user.SessionValid(cutoff), "token minted at the cutoff")
	assert.Equal(t, cutoff, user.RevokedBefore())
}

func TestRevocationCutoff_WholeSecond(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC)
	assert.Equal(t, at, RevocationCutoff(at))
}

func TestUser_TableName(t *testing.T) {
	assert.Equal(t, "users", User{}.TableName())
}

func TestUser_JSONOmitsPasswordHash(t *testing.T) {
	user := NewUser("bob@example.com", "secret-hash")

	data, err := json.Marshal(user)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "secret-hash")
	assert.NotContains(t, string(data), "password")
}

// Profile tests
func TestNewProfile(t *testing.T) {
	userID := uuid.New()
	propertyID := uuid.New()

	profile := NewProfile(userID, RoleTenant, "Ravi", &propertyID)

	assert.Equal(t, userID, profile.UserID)
	assert.Equal(t, RoleTenant, profile.Role)
	assert.False(t, profile.EmailVerified)
	assert.False(t, profile.IsOwner())
	assert.Equal(t, &propertyID, profile.PropertyID)
	assert.Equal(t, "profiles", profile.TableName())
}

func TestProfile_ToNavigation(t *testing.T) {
	propertyID := uuid.New()
	profile := NewProfile(uuid.New(), RoleTenant, "Ravi", &propertyID)
	profile.EmailVerified = true

	nav := profile.ToNavigation()

	assert.Equal(t, profile.UserID, nav.UserID)
	assert.Equal(t, "tenant", nav.Role)
	assert.True(t, nav.EmailVerified)
	assert.Equal(t, "Ravi", nav.DisplayName)
	require.NotNil(t, nav.PropertyID)
	assert.Equal(t, propertyID, *nav.PropertyID)

	// The projection must not alias the stored profile.
	*profile.PropertyID = uuid.New()
	assert.Equal(t, propertyID, *nav.PropertyID)
}

func TestProfile_ToNavigationOwner(t *testing.T) {
	profile := NewProfile(uuid.New(), RoleOwner, "Meera", nil)

	nav := profile.ToNavigation()

	assert.True(t, profile.IsOwner())
	assert.Nil(t, nav.PropertyID)
	assert.Equal(t, "owner", nav.Role)
}

// EmailVerification tests
func TestEmailVerification(t *testing.T) {
	userID := uuid.New()
	v := NewEmailVerification(userID, "abc", time.Hour)

	assert.Equal(t, userID, v.UserID)
	assert.Equal(t, "email_verifications", v.TableName())
	assert.False(t, v.IsExpired(time.Now()))
	assert.True(t, v.IsExpired(time.Now().Add(2*time.Hour)))
	assert.True(t, v.IsExpired(v.ExpiresAt))
	assert.False(t, v.IsConsumed())

	now := time.Now()
	v.ConsumedAt = &now
	assert.True(t, v.IsConsumed())
}

// AuditLog tests
func TestNewAuditLog(t *testing.T) {
	userID := uuid.New()
	entry := NewAuditLog(&userID, AuditActionSignIn)

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, &userID, entry.UserID)
	assert.Equal(t, AuditActionSignIn, entry.Action)
	assert.False(t, entry.Timestamp.IsZero())
	assert.Equal(t, "audit_logs", entry.TableName())
}

func TestAuditLog_SetDetails(t *testing.T) {
	entry := NewAuditLog(nil, AuditActionSignInFailed)

	entry.SetDetails(nil)
	assert.Nil(t, entry.Details)

	entry.SetDetails(map[string]interface{}{"email": "x@example.com", "attempt": 3})

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Details, &decoded))
	assert.Equal(t, "x@example.com", decoded["email"])
	assert.Equal(t, float64(3), decoded["attempt"])
}
