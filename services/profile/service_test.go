package profile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/models"
	"github.com/roompe/roompe-api/repositories"
	"github.com/roompe/roompe-api/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockProfileRepository is a mock implementation of ProfileRepository
type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) Create(ctx context.Context, p *models.Profile) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockProfileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if p := args.Get(0); p != nil {
		return p.(*models.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProfileRepository) Update(ctx context.Context, p *models.Profile) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockProfileRepository) MarkEmailVerified(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return m.Called(ctx, userID, at).Error(0)
}

// MockRecorder is a mock implementation of audit.Recorder
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Record(ctx context.Context, action models.AuditAction, userID *uuid.UUID, details map[string]interface{}) {
	m.Called(ctx, action, userID, details)
}

func TestService_GetUsesCache(t *testing.T) {
	repo := new(MockProfileRepository)
	svc := NewService(repo, NewCache(10, time.Minute), nil, zap.NewNop())
	p := models.NewProfile(uuid.New(), models.RoleOwner, "Meera", nil)

	repo.On("GetByUserID", mock.Anything, p.UserID).Return(p, nil).Once()

	first, err := svc.Get(context.Background(), p.UserID)
	require.NoError(t, err)
	second, err := svc.Get(context.Background(), p.UserID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	repo.AssertNumberOfCalls(t, "GetByUserID", 1)
}

func TestService_GetErrors(t *testing.T) {
	repo := new(MockProfileRepository)
	svc := NewService(repo, nil, nil, zap.NewNop())
	missing, broken := uuid.New(), uuid.New()

	repo.On("GetByUserID", mock.Anything, missing).Return(nil, fmt.Errorf("profile: %w", repositories.ErrNotFound))
	repo.On("GetByUserID", mock.Anything, broken).Return(nil, errors.New("connection reset"))

	_, err := svc.Get(context.Background(), missing)
	assert.ErrorIs(t, err, services.ErrProfileNotFound)

	_, err = svc.Get(context.Background(), broken)
	assert.True(t, services.IsInternalError(err))
}

func TestService_UpdateInvalidatesAndAudits(t *testing.T) {
	repo := new(MockProfileRepository)
	recorder := new(MockRecorder)
	cache := NewCache(10, time.Minute)
	svc := NewService(repo, cache, recorder, zap.NewNop())

	p := models.NewProfile(uuid.New(), models.RoleTenant, "Old", nil)
	cache.Set(p)

	stored := *p
	repo.On("GetByUserID", mock.Anything, p.UserID).Return(&stored, nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(u *models.Profile) bool {
		return u.DisplayName == "New" && u.Phone == "+91 98765 43210"
	})).Return(nil)
	recorder.On("Record", mock.Anything, models.AuditActionProfileUpdated, mock.Anything, mock.Anything).Return()

	name, phone := "New", "+91 98765 43210"
	updated, err := svc.Update(context.Background(), p.UserID, UpdateInput{DisplayName: &name, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.DisplayName)
	assert.Nil(t, cache.Get(p.UserID), "update must invalidate the cached copy")

	repo.AssertExpectations(t)
	recorder.AssertExpectations(t)
}

func TestService_UpdateWithoutChangesSkipsWrite(t *testing.T) {
	repo := new(MockProfileRepository)
	svc := NewService(repo, nil, nil, zap.NewNop())
	p := models.NewProfile(uuid.New(), models.RoleOwner, "Same", nil)

	repo.On("GetByUserID", mock.Anything, p.UserID).Return(p, nil)

	same := "Same"
	_, err := svc.Update(context.Background(), p.UserID, UpdateInput{DisplayName: &same})
	require.NoError(t, err)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestService_MarkEmailVerified(t *testing.T) {
	repo := new(MockProfileRepository)
	cache := NewCache(10, time.Minute)
	svc := NewService(repo, cache, nil, zap.NewNop())
	p := models.NewProfile(uuid.New(), models.RoleOwner, "Meera", nil)
	cache.Set(p)

	repo.On("MarkEmailVerified", mock.Anything, p.UserID, mock.Anything).Return(nil).Once()
	require.NoError(t, svc.MarkEmailVerified(context.Background(), p.UserID))
	assert.Nil(t, cache.Get(p.UserID))

	repo.On("MarkEmailVerified", mock.Anything, p.UserID, mock.Anything).Return(repositories.ErrNotFound).Once()
	assert.ErrorIs(t, svc.MarkEmailVerified(context.Background(), p.UserID), services.ErrProfileNotFound)
}
