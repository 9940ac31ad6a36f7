package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionRegistered         AuditAction = "registered"
	AuditActionSignIn             AuditAction = "sign_in"
	AuditActionSignInFailed       AuditAction = "sign_in_failed"
	AuditActionSignOut            AuditAction = "sign_out"
	AuditActionEmailVerified      AuditAction = "email_verified"
	AuditActionVerificationSent   AuditAction = "verification_sent"
	AuditActionProfileUpdated     AuditAction = "profile_updated"
	AuditActionProfileFetchFailed AuditAction = "profile_fetch_failed"
)

// AuditLog represents an audit trail entry for account and session events
type AuditLog struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	UserID    *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Action    AuditAction     `json:"action" db:"action"`
	Details   json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress string          `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string          `json:"user_agent,omitempty" db:"user_agent"`
	RequestID string          `json:"request_id,omitempty" db:"request_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates an entry stamped with the current time
func NewAuditLog(userID *uuid.UUID, action AuditAction) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// SetDetails marshals details into the JSONB column. A marshal failure
// leaves Details empty.
func (a *AuditLog) SetDetails(details map[string]interface{}) {
	if len(details) == 0 {
		return
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return
	}
	a.Details = raw
}
