package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/middleware"
	"github.com/roompe/roompe-api/models"
	"github.com/roompe/roompe-api/services"
	"github.com/roompe/roompe-api/utils"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// AuditLogReader lists a user's audit trail.
type AuditLogReader interface {
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
}

// AuditPage is one page of audit entries.
type AuditPage struct {
	Entries []*models.AuditLog `json:"entries"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

// AuditHandler exposes the signed-in user's account activity.
type AuditHandler struct {
	logs   AuditLogReader
	logger *zap.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(logs AuditLogReader, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{logs: logs, logger: logger}
}

// HandleListMine handles GET /api/v1/audit/me?limit=&offset=
func (h *AuditHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	limit, offset, err := pagination(r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	entries, err := h.logs.GetByUserID(r.Context(), userID, limit, offset)
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to list audit logs", err), h.logger)
		return
	}
	if entries == nil {
		entries = []*models.AuditLog{}
	}

	if err := utils.WriteOK(w, AuditPage{Entries: entries, Limit: limit, Offset: offset}); err != nil {
		h.logger.Error("failed to write audit response", zap.Error(err))
	}
}

func pagination(r *http.Request) (limit, offset int, err error) {
	limit, offset = defaultPageSize, 0
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxPageSize {
			return 0, 0, services.NewDomainError(services.ErrorTypeValidation, "invalid pagination", nil).
				WithDetail("limit", "limit must be between 1 and 100")
		}
	}
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, services.NewDomainError(services.ErrorTypeValidation, "invalid pagination", nil).
				WithDetail("offset", "offset must be zero or positive")
		}
	}
	return limit, offset, nil
}
