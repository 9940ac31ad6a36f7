package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/middleware"
	"github.com/roompe/roompe-api/models"
	"github.com/roompe/roompe-api/services/profile"
	"github.com/roompe/roompe-api/utils"
	"go.uber.org/zap"
)

// ProfileService reads and updates profiles.
type ProfileService interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	Update(ctx context.Context, userID uuid.UUID, in profile.UpdateInput) (*models.Profile, error)
}

// SessionRefresher re-runs the profile fetch of a tracked session.
type SessionRefresher interface {
	Refresh(ctx context.Context, userID uuid.UUID) bool
}

// UpdateProfileRequest carries the editable profile fields. Omitted fields
// are left unchanged.
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty" validate:"omitempty,min=1,max=100"`
	Phone       *string `json:"phone,omitempty" validate:"omitempty,e164"`
}

// ProfileHandler handles the signed-in user's profile.
type ProfileHandler struct {
	profiles ProfileService
	sessions SessionRefresher
	logger   *zap.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(profiles ProfileService, sessions SessionRefresher, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		profiles: profiles,
		sessions: sessions,
		logger:   logger,
	}
}

// HandleGetMe handles GET /api/v1/profile/me
func (h *ProfileHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	p, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, p); err != nil {
		h.logger.Error("failed to write profile response", zap.Error(err))
	}
}

// HandleUpdateMe handles PUT /api/v1/profile/me. The tracked session is
// refreshed so navigation picks up the new fields.
func (h *ProfileHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	var req UpdateProfileRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if req.DisplayName != nil {
		trimmed := strings.TrimSpace(*req.DisplayName)
		req.DisplayName = &trimmed
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	p, err := h.profiles.Update(r.Context(), userID, profile.UpdateInput{
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	h.sessions.Refresh(r.Context(), userID)

	if err := utils.WriteOK(w, p); err != nil {
		h.logger.Error("failed to write profile response", zap.Error(err))
	}
}
