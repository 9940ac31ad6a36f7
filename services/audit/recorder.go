package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/models"
)

// Recorder is what services depend on to audit an action.
type Recorder interface {
	Record(ctx context.Context, action models.AuditAction, userID *uuid.UUID, details map[string]interface{})
}

// Nop discards every entry.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, models.AuditAction, *uuid.UUID, map[string]interface{}) {}

var (
	_ Recorder = (*AuditService)(nil)
	_ Recorder = Nop{}
)
