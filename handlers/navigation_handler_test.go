package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/middleware"
	"github.com/roompe/roompe-api/navigation"
	"github.com/roompe/roompe-api/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// MockSessionSource is a mock implementation of SessionSource
type MockSessionSource struct {
	mock.Mock
}

func (m *MockSessionSource) Ensure(ctx context.Context, userID uuid.UUID) navigation.Session {
	return m.Called(ctx, userID).Get(0).(navigation.Session)
}

func (m *MockSessionSource) Retry(ctx context.Context, userID uuid.UUID) (navigation.Session, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(navigation.Session), args.Error(1)
}

func (m *MockSessionSource) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan navigation.Session, error) {
	args := m.Called(ctx, userID)
	if ch := args.Get(0); ch != nil {
		return ch.(chan navigation.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func withUser(r *http.Request, userID uuid.UUID) *http.Request {
	claims := &middleware.Claims{Sub: userID, Email: "u@example.com", Provider: middleware.ProviderLocal}
	return r.WithContext(middleware.WithClaims(r.Context(), claims))
}

func verifiedProfile(userID uuid.UUID, role string) *navigation.Profile {
	return &navigation.Profile{UserID: userID, Role: role, EmailVerified: true, DisplayName: "Meera"}
}

func decodeNavigation(t *testing.T, body string) NavigationResponse {
	t.Helper()
	var envelope struct {
		Data NavigationResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &envelope))
	return envelope.Data
}

func TestNavigationHandler_Current(t *testing.T) {
	userID := uuid.New()
	propertyID := uuid.New()

	tenant := verifiedProfile(userID, "tenant")
	tenant.PropertyID = &propertyID

	tests := []struct {
		name       string
		authed     bool
		session    navigation.Session
		wantTree   navigation.Tree
		wantParams map[string]string
	}{
		{name: "anonymous", wantTree: navigation.TreeUnauthenticated},
		{name: "signing in", authed: true, session: navigation.SigningIn(), wantTree: navigation.TreePlaceholder},
		{name: "profile absent", authed: true, session: navigation.WithProfile(nil), wantTree: navigation.TreeLoading},
		{name: "fetch failed", authed: true, session: navigation.WithProfileError("timeout"), wantTree: navigation.TreeProfileError},
		{name: "owner", authed: true, session: navigation.WithProfile(verifiedProfile(userID, "owner")), wantTree: navigation.TreeOwner},
		{
			name:       "tenant",
			authed:     true,
			session:    navigation.WithProfile(tenant),
			wantTree:   navigation.TreeTenant,
			wantParams: map[string]string{navigation.ParamPropertyID: propertyID.String()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := new(MockSessionSource)
			h := NewNavigationHandler(sessions, navigation.NewResolver(navigation.UnknownRoleReject), zap.NewNop())

			req := httptest.NewRequest(http.MethodGet, "/api/v1/navigation", nil)
			if tt.authed {
				sessions.On("Ensure", mock.Anything, userID).Return(tt.session)
				req = withUser(req, userID)
			}
			rec := httptest.NewRecorder()
			h.HandleCurrent(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			resp := decodeNavigation(t, rec.Body.String())
			assert.Equal(t, tt.wantTree, resp.Decision.Tree)
			assert.Equal(t, tt.wantParams, resp.Decision.Params)
			assert.Equal(t, navigation.RootFor(tt.wantTree), resp.Decision.Root)
			sessions.AssertExpectations(t)
		})
	}
}

func TestNavigationHandler_FallbackLogsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	userID := uuid.New()
	sessions := new(MockSessionSource)
	sessions.On("Ensure", mock.Anything, userID).Return(navigation.WithProfile(verifiedProfile(userID, "manager")))

	h := NewNavigationHandler(sessions, navigation.NewResolver(navigation.UnknownRoleFallbackTenant), zap.New(core))

	rec := httptest.NewRecorder()
	h.HandleCurrent(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/navigation", nil), userID))

	resp := decodeNavigation(t, rec.Body.String())
	assert.Equal(t, navigation.TreeTenant, resp.Decision.Tree)
	assert.True(t, resp.Decision.RoleFallback)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "unrecognized role routed to tenant tree", entry.Message)
	assert.Equal(t, "manager", entry.ContextMap()["role"])
}

func TestNavigationHandler_Retry(t *testing.T) {
	userID := uuid.New()

	t.Run("signed in", func(t *testing.T) {
		sessions := new(MockSessionSource)
		sessions.On("Retry", mock.Anything, userID).Return(navigation.SigningIn(), nil)
		h := NewNavigationHandler(sessions, navigation.NewResolver(""), zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleRetry(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/v1/navigation/retry", nil), userID))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, navigation.TreePlaceholder, decodeNavigation(t, rec.Body.String()).Decision.Tree)
	})

	t.Run("not tracked", func(t *testing.T) {
		sessions := new(MockSessionSource)
		sessions.On("Retry", mock.Anything, userID).Return(navigation.Unauthenticated(), services.ErrUnauthorized)
		h := NewNavigationHandler(sessions, navigation.NewResolver(""), zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleRetry(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/v1/navigation/retry", nil), userID))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		h := NewNavigationHandler(new(MockSessionSource), navigation.NewResolver(""), zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleRetry(rec, httptest.NewRequest(http.MethodPost, "/api/v1/navigation/retry", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestNavigationHandler_Trees(t *testing.T) {
	h := NewNavigationHandler(nil, navigation.NewResolver(navigation.UnknownRoleFallbackTenant), zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleTrees(rec, httptest.NewRequest(http.MethodGet, "/api/v1/navigation/trees", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data CatalogResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))

	assert.Equal(t, navigation.UnknownRoleFallbackTenant, envelope.Data.UnknownRolePolicy)
	require.Len(t, envelope.Data.Trees, len(navigation.Trees()))
	for i, tree := range navigation.Trees() {
		assert.Equal(t, tree, envelope.Data.Trees[i].Tree)
	}
}

type sseEvent struct {
	id    string
	event string
	data  string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if ev.data != "" {
				return ev
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestNavigationHandler_Stream(t *testing.T) {
	userID := uuid.New()
	snapshots := make(chan navigation.Session, 4)
	snapshots <- navigation.SigningIn()

	sessions := new(MockSessionSource)
	sessions.On("Ensure", mock.Anything, userID).Return(navigation.SigningIn())
	sessions.On("Subscribe", mock.Anything, userID).Return(snapshots, nil)

	h := NewNavigationHandler(sessions, navigation.NewResolver(""), zap.NewNop())
	h.heartbeat = 10 * time.Millisecond

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.HandleStream(w, withUser(r, userID))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)

	first := readEvent(t, reader)
	assert.Equal(t, "1", first.id)
	assert.Equal(t, "navigation", first.event)
	var firstResp NavigationResponse
	require.NoError(t, json.Unmarshal([]byte(first.data), &firstResp))
	assert.Equal(t, navigation.TreePlaceholder, firstResp.Decision.Tree)

	// An identical snapshot is not re-sent; the next distinct one is.
	snapshots <- navigation.SigningIn()
	snapshots <- navigation.WithProfile(verifiedProfile(userID, "owner"))

	second := readEvent(t, reader)
	assert.Equal(t, "2", second.id)
	var secondResp NavigationResponse
	require.NoError(t, json.Unmarshal([]byte(second.data), &secondResp))
	assert.Equal(t, navigation.TreeOwner, secondResp.Decision.Tree)

	close(snapshots)
	_, err = reader.ReadString('\n')
	for err == nil {
		_, err = reader.ReadString('\n')
	}
}

func TestNavigationHandler_StreamRequiresAuth(t *testing.T) {
	h := NewNavigationHandler(new(MockSessionSource), navigation.NewResolver(""), zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleStream(rec, httptest.NewRequest(http.MethodGet, "/api/v1/navigation/stream", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNavigationHandler_StreamSubscribeFails(t *testing.T) {
	userID := uuid.New()
	sessions := new(MockSessionSource)
	sessions.On("Ensure", mock.Anything, userID).Return(navigation.SigningIn())
	sessions.On("Subscribe", mock.Anything, userID).Return(nil, services.ErrBrokerUnavailable)
	h := NewNavigationHandler(sessions, navigation.NewResolver(""), zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleStream(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/navigation/stream", nil), userID))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
