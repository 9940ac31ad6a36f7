package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/cognito"
	"github.com/roompe/roompe-api/config"
	"github.com/roompe/roompe-api/middleware"
	"github.com/roompe/roompe-api/models"
	"github.com/roompe/roompe-api/navigation"
	"github.com/roompe/roompe-api/services"
	"github.com/roompe/roompe-api/services/account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockExchanger struct {
	mock.Mock
}

func (m *MockExchanger) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	args := m.Called(ctx, code, redirectURI)
	return args.String(0), args.Error(1)
}

type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) ValidateToken(ctx context.Context, token string) (*cognito.ParsedClaims, error) {
	args := m.Called(ctx, token)
	if c := args.Get(0); c != nil {
		return c.(*cognito.ParsedClaims), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockAccounts struct {
	mock.Mock
}

func (m *MockAccounts) ProvisionExternal(ctx context.Context, id account.ExternalIdentity) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockAccounts) Logout(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) SignIn(ctx context.Context, userID uuid.UUID) navigation.Session {
	return m.Called(ctx, userID).Get(0).(navigation.Session)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, action models.AuditAction, userID *uuid.UUID, details map[string]interface{}) {
	m.Called(ctx, action, userID, details)
}

func testCognitoConfig() config.CognitoConfig {
	return config.CognitoConfig{
		Region:      "ap-south-1",
		UserPoolID:  "ap-south-1_pool",
		ClientID:    "client-123",
		Domain:      "https://roompe.auth.ap-south-1.amazoncognito.com/",
		RedirectURI: "https://api.roompe.in/auth/callback",
		FrontEndURL: "https://app.roompe.in",
	}
}

type handlerMocks struct {
	exchanger   *MockExchanger
	validator   *MockValidator
	accounts    *MockAccounts
	tracker     *MockTracker
	recorder    *MockRecorder
}

func newTestHandler(cfg config.CognitoConfig) (*Handler, *handlerMocks) {
	m := &handlerMocks{
		exchanger:   new(MockExchanger),
		validator:   new(MockValidator),
		accounts:    new(MockAccounts),
		tracker:     new(MockTracker),
		recorder:    new(MockRecorder),
	}
	h := NewHandler(cfg, m.exchanger, m.validator, m.accounts, m.tracker, m.recorder, zap.NewNop())
	return h, m
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHandleLogin(t *testing.T) {
	h, _ := newTestHandler(testCognitoConfig())

	w := httptest.NewRecorder()
	h.HandleLogin(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "roompe.auth.ap-south-1.amazoncognito.com", loc.Host)
	assert.Equal(t, "/oauth2/authorize", loc.Path)
	assert.Equal(t, "client-123", loc.Query().Get("client_id"))
	assert.Equal(t, "code", loc.Query().Get("response_type"))

	state := findCookie(w.Result().Cookies(), StateCookieName)
	require.NotNil(t, state)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
	assert.True(t, state.Secure)
	assert.True(t, state.HttpOnly)
}

func TestHandleLogin_NotConfigured(t *testing.T) {
	h, _ := newTestHandler(config.CognitoConfig{})

	w := httptest.NewRecorder()
	h.HandleLogin(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func callbackRequest(code, state, cookieState string) *http.Request {
	q := url.Values{}
	if code != "" {
		q.Set("code", code)
	}
	if state != "" {
		q.Set("state", state)
	}
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?"+q.Encode(), nil)
	if cookieState != "" {
		req.AddCookie(&http.Cookie{Name: StateCookieName, Value: cookieState})
	}
	return req
}

func TestHandleCallback_Success(t *testing.T) {
	h, m := newTestHandler(testCognitoConfig())
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	claims := &cognito.ParsedClaims{
		Sub:           uuid.New(),
		Email:         "asha@example.com",
		EmailVerified: true,
		Role:          navigation.RoleOwner,
		ExpiresAt:     now.Add(time.Hour),
	}

	m.exchanger.On("ExchangeCode", mock.Anything, "the-code", "https://api.roompe.in/auth/callback").Return("id-token", nil)
	m.validator.On("ValidateToken", mock.Anything, "id-token").Return(claims, nil)
	m.accounts.On("ProvisionExternal", mock.Anything, account.ExternalIdentity{
		Sub:           claims.Sub,
		Email:         "asha@example.com",
		EmailVerified: true,
		Role:          navigation.RoleOwner,
	}).Return(nil)
	m.tracker.On("SignIn", mock.Anything, claims.Sub).Return(navigation.Session{Authenticated: true, ProfileLoading: true})
	m.recorder.On("Record", mock.Anything, models.AuditActionSignIn, &claims.Sub, mock.Anything).Return()

	w := httptest.NewRecorder()
	h.HandleCallback(w, callbackRequest("the-code", "st", "st"))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://app.roompe.in", w.Header().Get("Location"))

	session := findCookie(w.Result().Cookies(), middleware.SessionCookieName)
	require.NotNil(t, session)
	assert.Equal(t, "id-token", session.Value)
	assert.Equal(t, 3600, session.MaxAge)

	state := findCookie(w.Result().Cookies(), StateCookieName)
	require.NotNil(t, state)
	assert.Equal(t, -1, state.MaxAge)

	m.exchanger.AssertExpectations(t)
	m.validator.AssertExpectations(t)
	m.accounts.AssertExpectations(t)
	m.tracker.AssertExpectations(t)
	m.recorder.AssertExpectations(t)
}

func TestHandleCallback_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		req    *http.Request
		setup  func(m *handlerMocks)
		status int
	}{
		{
			name:   "missing code",
			req:    callbackRequest("", "st", "st"),
			status: http.StatusBadRequest,
		},
		{
			name:   "missing state",
			req:    callbackRequest("c", "", "st"),
			status: http.StatusBadRequest,
		},
		{
			name:   "state mismatch",
			req:    callbackRequest("c", "st", "other"),
			status: http.StatusBadRequest,
		},
		{
			name:   "no state cookie",
			req:    callbackRequest("c", "st", ""),
			status: http.StatusBadRequest,
		},
		{
			name: "exchange fails",
			req:  callbackRequest("c", "st", "st"),
			setup: func(m *handlerMocks) {
				m.exchanger.On("ExchangeCode", mock.Anything, "c", mock.Anything).Return("", errors.New("invalid_grant"))
				m.recorder.On("Record", mock.Anything, models.AuditActionSignInFailed, (*uuid.UUID)(nil), mock.Anything).Return()
			},
			status: http.StatusUnauthorized,
		},
		{
			name: "invalid token",
			req:  callbackRequest("c", "st", "st"),
			setup: func(m *handlerMocks) {
				m.exchanger.On("ExchangeCode", mock.Anything, "c", mock.Anything).Return("bad", nil)
				m.validator.On("ValidateToken", mock.Anything, "bad").Return(nil, cognito.ErrInvalidToken)
				m.recorder.On("Record", mock.Anything, models.AuditActionSignInFailed, (*uuid.UUID)(nil), mock.Anything).Return()
			},
			status: http.StatusUnauthorized,
		},
		{
			name: "email taken by local account",
			req:  callbackRequest("c", "st", "st"),
			setup: func(m *handlerMocks) {
				m.exchanger.On("ExchangeCode", mock.Anything, "c", mock.Anything).Return("tok", nil)
				m.validator.On("ValidateToken", mock.Anything, "tok").Return(&cognito.ParsedClaims{Sub: uuid.New()}, nil)
				m.accounts.On("ProvisionExternal", mock.Anything, mock.Anything).Return(services.ErrDuplicateEmail)
			},
			status: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, m := newTestHandler(testCognitoConfig())
			if tt.setup != nil {
				tt.setup(m)
			}

			w := httptest.NewRecorder()
			h.HandleCallback(w, tt.req)

			assert.Equal(t, tt.status, w.Code)
			assert.Nil(t, findCookie(w.Result().Cookies(), middleware.SessionCookieName))
			m.tracker.AssertNotCalled(t, "SignIn", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleLogout(t *testing.T) {
	t.Run("valid session is revoked", func(t *testing.T) {
		h, m := newTestHandler(testCognitoConfig())
		sub := uuid.New()
		m.validator.On("ValidateToken", mock.Anything, "id-token").Return(&cognito.ParsedClaims{Sub: sub}, nil)
		m.accounts.On("Logout", mock.Anything, sub).Return(nil)

		req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "id-token"})
		w := httptest.NewRecorder()
		h.HandleLogout(w, req)

		assert.Equal(t, http.StatusFound, w.Code)
		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/logout", loc.Path)
		assert.Equal(t, "https://app.roompe.in", loc.Query().Get("logout_uri"))

		cleared := findCookie(w.Result().Cookies(), middleware.SessionCookieName)
		require.NotNil(t, cleared)
		assert.Equal(t, -1, cleared.MaxAge)
		m.accounts.AssertExpectations(t)
	})

	t.Run("revocation failure still logs the browser out", func(t *testing.T) {
		h, m := newTestHandler(testCognitoConfig())
		sub := uuid.New()
		m.validator.On("ValidateToken", mock.Anything, "id-token").Return(&cognito.ParsedClaims{Sub: sub}, nil)
		m.accounts.On("Logout", mock.Anything, sub).Return(services.ErrDatabaseError)

		req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "id-token"})
		w := httptest.NewRecorder()
		h.HandleLogout(w, req)

		assert.Equal(t, http.StatusFound, w.Code)
		require.NotNil(t, findCookie(w.Result().Cookies(), middleware.SessionCookieName))
	})

	t.Run("expired session still clears cookie", func(t *testing.T) {
		h, m := newTestHandler(testCognitoConfig())
		m.validator.On("ValidateToken", mock.Anything, "old").Return(nil, cognito.ErrInvalidToken)

		req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "old"})
		w := httptest.NewRecorder()
		h.HandleLogout(w, req)

		assert.Equal(t, http.StatusFound, w.Code)
		m.accounts.AssertNotCalled(t, "Logout", mock.Anything, mock.Anything)
	})
}

func TestLogoutTarget(t *testing.T) {
	cfg := testCognitoConfig()
	cfg.FrontEndURL = ""
	h, _ := newTestHandler(cfg)
	assert.Equal(t, "https://api.roompe.in", h.logoutTarget())
}
