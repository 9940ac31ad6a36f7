package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/middleware"
	"github.com/roompe/roompe-api/services/account"
	"github.com/roompe/roompe-api/utils"
	"go.uber.org/zap"
)

// AccountService is the account API the handlers call.
type AccountService interface {
	Register(ctx context.Context, in account.RegisterInput) (*account.RegisterResult, error)
	Login(ctx context.Context, in account.LoginInput) (*account.LoginResult, error)
	VerifyEmail(ctx context.Context, token string) (uuid.UUID, error)
	ResendVerification(ctx context.Context, userID uuid.UUID) error
	Logout(ctx context.Context, userID uuid.UUID) error
	ChangePassword(ctx context.Context, userID uuid.UUID, in account.ChangePasswordInput) error
	DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error
}

// VerifyEmailRequest carries a verification token.
type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

// VerifyEmailResponse reports a completed verification.
type VerifyEmailResponse struct {
	UserID        uuid.UUID `json:"user_id"`
	EmailVerified bool      `json:"email_verified"`
}

// DeleteAccountRequest confirms account deletion.
type DeleteAccountRequest struct {
	Password string `json:"password" validate:"required,max=72"`
}

// AccountHandler handles local account endpoints.
type AccountHandler struct {
	accounts     AccountService
	secureCookie bool
	logger       *zap.Logger
}

// NewAccountHandler creates an AccountHandler. secureCookie marks the auth
// cookie Secure and should be set whenever the API is served over TLS.
func NewAccountHandler(accounts AccountService, secureCookie bool, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accounts:     accounts,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// HandleRegister handles POST /api/v1/auth/register
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in account.RegisterInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	res, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteCreated(w, res); err != nil {
		h.logger.Error("failed to write register response", zap.Error(err))
	}
}

// HandleLogin handles POST /api/v1/auth/login. The token is returned in the
// body for mobile clients and set as an HttpOnly cookie for browsers.
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in account.LoginInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	res, err := h.accounts.Login(r.Context(), in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthTokenCookieName,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	if err := utils.WriteOK(w, res); err != nil {
		h.logger.Error("failed to write login response", zap.Error(err))
	}
}

// HandleVerifyEmail handles POST /api/v1/auth/verify-email
func (h *AccountHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	userID, err := h.accounts.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, VerifyEmailResponse{UserID: userID, EmailVerified: true}); err != nil {
		h.logger.Error("failed to write verify response", zap.Error(err))
	}
}

// HandleResendVerification handles POST /api/v1/auth/verify-email/resend
func (h *AccountHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	if err := h.accounts.ResendVerification(r.Context(), userID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteAccepted(w, map[string]string{"status": "sent"})
}

// HandleLogout handles POST /api/v1/auth/logout
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	if err := h.accounts.Logout(r.Context(), userID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	h.clearAuthCookie(w)
	utils.WriteNoContent(w)
}

// HandleChangePassword handles POST /api/v1/auth/password
func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	var in account.ChangePasswordInput
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), userID, in); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	utils.WriteNoContent(w)
}

// HandleDeleteAccount handles DELETE /api/v1/account
func (h *AccountHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	var req DeleteAccountRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.accounts.DeleteAccount(r.Context(), userID, req.Password); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.clearAuthCookie(w)
	utils.WriteNoContent(w)
}

func (h *AccountHandler) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthTokenCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
