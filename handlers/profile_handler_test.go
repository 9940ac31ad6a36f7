package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/models"
	"github.com/roompe/roompe-api/services"
	"github.com/roompe/roompe-api/services/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockProfileService is a mock implementation of ProfileService
type MockProfileService struct {
	mock.Mock
}

func (m *MockProfileService) Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if p := args.Get(0); p != nil {
		return p.(*models.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProfileService) Update(ctx context.Context, userID uuid.UUID, in profile.UpdateInput) (*models.Profile, error) {
	args := m.Called(ctx, userID, in)
	if p := args.Get(0); p != nil {
		return p.(*models.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRefresher is a mock implementation of SessionRefresher
type MockRefresher struct {
	mock.Mock
}

func (m *MockRefresher) Refresh(ctx context.Context, userID uuid.UUID) bool {
	return m.Called(ctx, userID).Bool(0)
}

func TestProfileHandler_GetMe(t *testing.T) {
	userID := uuid.New()

	t.Run("found", func(t *testing.T) {
		svc := new(MockProfileService)
		svc.On("Get", mock.Anything, userID).Return(models.NewProfile(userID, models.RoleOwner, "Meera", nil), nil)
		h := NewProfileHandler(svc, new(MockRefresher), zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleGetMe(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/profile/me", nil), userID))

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Data models.Profile `json:"data"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, userID, body.Data.UserID)
		assert.Equal(t, models.RoleOwner, body.Data.Role)
	})

	t.Run("no profile", func(t *testing.T) {
		svc := new(MockProfileService)
		svc.On("Get", mock.Anything, userID).Return(nil, services.ErrProfileNotFound)
		h := NewProfileHandler(svc, new(MockRefresher), zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleGetMe(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/profile/me", nil), userID))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		h := NewProfileHandler(new(MockProfileService), new(MockRefresher), zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleGetMe(rec, httptest.NewRequest(http.MethodGet, "/api/v1/profile/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestProfileHandler_UpdateMe(t *testing.T) {
	userID := uuid.New()

	t.Run("updates and refreshes session", func(t *testing.T) {
		svc := new(MockProfileService)
		refresher := new(MockRefresher)
		name := "Meera K"
		updated := models.NewProfile(userID, models.RoleOwner, name, nil)

		svc.On("Update", mock.Anything, userID, mock.MatchedBy(func(in profile.UpdateInput) bool {
			return in.DisplayName != nil && *in.DisplayName == name && in.Phone == nil
		})).Return(updated, nil)
		refresher.On("Refresh", mock.Anything, userID).Return(true)

		h := NewProfileHandler(svc, refresher, zap.NewNop())
		rec := httptest.NewRecorder()
		h.HandleUpdateMe(rec, withUser(jsonRequest(http.MethodPut, "/api/v1/profile/me", `{"display_name":"  Meera K "}`), userID))

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
		refresher.AssertExpectations(t)
	})

	t.Run("rejects bad phone", func(t *testing.T) {
		svc := new(MockProfileService)
		h := NewProfileHandler(svc, new(MockRefresher), zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleUpdateMe(rec, withUser(jsonRequest(http.MethodPut, "/api/v1/profile/me", `{"phone":"12345"}`), userID))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects blank name", func(t *testing.T) {
		h := NewProfileHandler(new(MockProfileService), new(MockRefresher), zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleUpdateMe(rec, withUser(jsonRequest(http.MethodPut, "/api/v1/profile/me", `{"display_name":"   "}`), userID))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("service failure skips refresh", func(t *testing.T) {
		svc := new(MockProfileService)
		refresher := new(MockRefresher)
		svc.On("Update", mock.Anything, userID, mock.Anything).Return(nil, services.ErrProfileNotFound)

		h := NewProfileHandler(svc, refresher, zap.NewNop())
		rec := httptest.NewRecorder()
		h.HandleUpdateMe(rec, withUser(jsonRequest(http.MethodPut, "/api/v1/profile/me", `{"phone":"+919812345678"}`), userID))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		refresher.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
	})
}
