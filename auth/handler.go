package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/cognito"
	"github.com/roompe/roompe-api/config"
	"github.com/roompe/roompe-api/middleware"
	"github.com/roompe/roompe-api/models"
	"github.com/roompe/roompe-api/navigation"
	"github.com/roompe/roompe-api/services"
	"github.com/roompe/roompe-api/services/account"
	"github.com/roompe/roompe-api/services/audit"
	"github.com/roompe/roompe-api/utils"
	"go.uber.org/zap"
)

const (
	// StateCookieName is the cookie name for OAuth state (CSRF)
	StateCookieName   = "oauth_state"
	stateCookieMaxAge = 600
)

// TokenExchanger exchanges OAuth2 authorization codes for ID tokens.
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (idToken string, err error)
}

// TokenValidator validates Cognito ID tokens and returns parsed claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*cognito.ParsedClaims, error)
}

// Accounts creates local rows for first-time federated users and revokes
// their sessions on logout.
type Accounts interface {
	ProvisionExternal(ctx context.Context, id account.ExternalIdentity) error
	Logout(ctx context.Context, userID uuid.UUID) error
}

// SessionTracker starts tracked sessions.
type SessionTracker interface {
	SignIn(ctx context.Context, userID uuid.UUID) navigation.Session
}

// Handler handles the Cognito hosted UI flow (login, callback, logout).
type Handler struct {
	cfg         config.CognitoConfig
	exchanger   TokenExchanger
	validator   TokenValidator
	accounts    Accounts
	tracker     SessionTracker
	audit       audit.Recorder
	logger      *zap.Logger
	now         func() time.Time
}

// NewHandler creates a new auth handler.
func NewHandler(cfg config.CognitoConfig, exchanger TokenExchanger, validator TokenValidator, accounts Accounts, tracker SessionTracker, recorder audit.Recorder, logger *zap.Logger) *Handler {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Handler{
		cfg:         cfg,
		exchanger:   exchanger,
		validator:   validator,
		accounts:    accounts,
		tracker:     tracker,
		audit:       recorder,
		logger:      logger,
		now:         time.Now,
	}
}

// HandleLogin redirects to the Cognito hosted UI for OAuth2 authorization
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Domain == "" || h.cfg.ClientID == "" {
		h.logger.Error("cognito not configured")
		_ = utils.WriteServiceUnavailable(w, "Authentication not configured", nil)
		return
	}

	state, err := generateSecureState()
	if err != nil {
		h.logger.Error("failed to generate state", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to initiate login")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   h.secure(),
		SameSite: http.SameSiteLaxMode,
	})

	authURL := buildAuthURL(h.cfg.Domain, h.cfg.ClientID, h.cfg.RedirectURI, state)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback exchanges the authorization code, validates the ID token,
// provisions first-time users, signs the user in and sets the session cookie.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	if code == "" {
		_ = utils.WriteBadRequest(w, "Missing authorization code", nil)
		return
	}
	if state == "" {
		_ = utils.WriteBadRequest(w, "Missing state parameter", nil)
		return
	}

	stateCookie, err := r.Cookie(StateCookieName)
	if err != nil || stateCookie.Value != state {
		_ = utils.WriteBadRequest(w, "Invalid or expired state", nil)
		return
	}
	h.clearCookie(w, StateCookieName)

	if h.exchanger == nil || h.validator == nil {
		h.logger.Error("cognito not configured")
		_ = utils.WriteServiceUnavailable(w, "Authentication not configured", nil)
		return
	}

	ctx := r.Context()
	idToken, err := h.exchanger.ExchangeCode(ctx, code, h.cfg.RedirectURI)
	if err != nil {
		h.logger.Warn("token exchange failed", zap.Error(err))
		h.audit.Record(ctx, models.AuditActionSignInFailed, nil, map[string]interface{}{
			"provider": "cognito",
			"reason":   "exchange_failed",
		})
		_ = utils.WriteUnauthorized(w, "Authentication failed")
		return
	}

	claims, err := h.validator.ValidateToken(ctx, idToken)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		h.audit.Record(ctx, models.AuditActionSignInFailed, nil, map[string]interface{}{
			"provider": "cognito",
			"reason":   "invalid_token",
		})
		_ = utils.WriteUnauthorized(w, "Invalid token")
		return
	}

	err = h.accounts.ProvisionExternal(ctx, account.ExternalIdentity{
		Sub:           claims.Sub,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Role:          claims.Role,
	})
	if err != nil {
		h.logger.Error("failed to provision user",
			zap.String("user_id", claims.Sub.String()),
			zap.Error(err))
		if services.IsConflictError(err) {
			_ = utils.WriteConflict(w, "An account with this email already exists", nil)
			return
		}
		_ = utils.WriteInternalServerError(w, "Failed to complete sign-in")
		return
	}

	h.tracker.SignIn(ctx, claims.Sub)
	h.audit.Record(ctx, models.AuditActionSignIn, &claims.Sub, map[string]interface{}{
		"provider": "cognito",
	})

	maxAge := int(claims.ExpiresAt.Sub(h.now()).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    idToken,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure(),
		SameSite: http.SameSiteLaxMode,
	})

	redirectURL := h.cfg.FrontEndURL
	if redirectURL == "" {
		redirectURL = "/"
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// HandleLogout revokes the user's sessions when the cookie still validates,
// clears it and redirects to the Cognito logout endpoint. A failed
// revocation is logged; the browser is logged out of Cognito regardless.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(middleware.SessionCookieName); err == nil && c.Value != "" && h.validator != nil {
		if claims, err := h.validator.ValidateToken(r.Context(), c.Value); err == nil {
			if err := h.accounts.Logout(r.Context(), claims.Sub); err != nil {
				h.logger.Error("failed to revoke hosted UI session",
					zap.String("user_id", claims.Sub.String()),
					zap.Error(err))
			}
		}
	}
	h.clearCookie(w, middleware.SessionCookieName)

	logoutURL := buildLogoutURL(h.cfg.Domain, h.cfg.ClientID, h.logoutTarget())
	http.Redirect(w, r, logoutURL, http.StatusFound)
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) secure() bool {
	return strings.HasPrefix(h.cfg.RedirectURI, "https")
}

// logoutTarget is where Cognito sends the browser after logout. It must be
// registered as a sign-out URL on the app client.
func (h *Handler) logoutTarget() string {
	if h.cfg.FrontEndURL != "" {
		return h.cfg.FrontEndURL
	}
	parsed, err := url.Parse(h.cfg.RedirectURI)
	if err != nil || parsed.Host == "" {
		return h.cfg.RedirectURI
	}
	return parsed.Scheme + "://" + parsed.Host
}

func buildAuthURL(domain, clientID, redirectURI, state string) string {
	base := strings.TrimSuffix(domain, "/") + "/oauth2/authorize"
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {clientID},
		"redirect_uri":  {redirectURI},
		"state":         {state},
		"scope":         {"openid email profile"},
	}
	return base + "?" + params.Encode()
}

func buildLogoutURL(domain, clientID, logoutURI string) string {
	base := strings.TrimSuffix(domain, "/") + "/logout"
	params := url.Values{
		"client_id":  {clientID},
		"logout_uri": {logoutURI},
	}
	return base + "?" + params.Encode()
}

func generateSecureState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
