package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockAuditRepository is a mock implementation of AuditRepository
type MockAuditRepository struct {
	mock.Mock
	mu           sync.Mutex
	insertedLogs []*models.AuditLog
}

func (m *MockAuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	args := m.Called(ctx, log)
	m.insertedLogs = append(m.insertedLogs, log)
	return args.Error(0)
}

func (m *MockAuditRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, userID, limit, offset)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error) {
	args := m.Called(ctx, action, limit, offset)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) GetByRequestID(ctx context.Context, requestID string) ([]*models.AuditLog, error) {
	args := m.Called(ctx, requestID)
	if logs := args.Get(0); logs != nil {
		return logs.([]*models.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) inserted() []*models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.AuditLog, len(m.insertedLogs))
	copy(out, m.insertedLogs)
	return out
}

func TestAuditService_StartStop(t *testing.T) {
	repo := new(MockAuditRepository)
	svc := NewAuditService(repo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, svc.Start())
	assert.Error(t, svc.Start(), "second start must fail")
	assert.True(t, svc.GetStats().Started)

	require.NoError(t, svc.Stop(time.Second))
	assert.False(t, svc.GetStats().Started)
	assert.Error(t, svc.Stop(time.Second))
}

func TestAuditService_LogEventBeforeStart(t *testing.T) {
	svc := NewAuditService(new(MockAuditRepository), zap.NewNop(), DefaultConfig())

	err := svc.LogEvent(models.NewAuditLog(nil, models.AuditActionSignIn))
	assert.Error(t, err)
}

func TestAuditService_RecordPersistsWithRequestInfo(t *testing.T) {
	repo := new(MockAuditRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	svc := NewAuditService(repo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, svc.Start())

	userID := uuid.New()
	ctx := WithRequestInfo(context.Background(), RequestInfo{
		RequestID: "req-7",
		IPAddress: "10.1.1.1",
		UserAgent: "roompe-mobile/1.0",
	})
	svc.Record(ctx, models.AuditActionSignIn, &userID, map[string]interface{}{"method": "password"})

	require.NoError(t, svc.Stop(time.Second))

	logs := repo.inserted()
	require.Len(t, logs, 1)
	assert.Equal(t, models.AuditActionSignIn, logs[0].Action)
	assert.Equal(t, &userID, logs[0].UserID)
	assert.Equal(t, "req-7", logs[0].RequestID)
	assert.Equal(t, "10.1.1.1", logs[0].IPAddress)
	assert.JSONEq(t, `{"method":"password"}`, string(logs[0].Details))
}

func TestAuditService_InsertFailureDoesNotStopWorkers(t *testing.T) {
	repo := new(MockAuditRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	repo.On("Insert", mock.Anything, mock.Anything).Return(nil)
	svc := NewAuditService(repo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, svc.Start())

	svc.Record(context.Background(), models.AuditActionSignInFailed, nil, nil)
	svc.Record(context.Background(), models.AuditActionSignOut, nil, nil)

	require.NoError(t, svc.Stop(time.Second))
	assert.Len(t, repo.inserted(), 2)
}

func TestAuditService_BufferFullDropsEvent(t *testing.T) {
	svc := NewAuditService(new(MockAuditRepository), zap.NewNop(), Config{BufferSize: 1, WorkerCount: 1})
	// Mark as started without workers so nothing drains the buffer.
	svc.started = true

	require.NoError(t, svc.LogEvent(models.NewAuditLog(nil, models.AuditActionSignIn)))
	assert.Error(t, svc.LogEvent(models.NewAuditLog(nil, models.AuditActionSignIn)))
	assert.Equal(t, 1, svc.GetStats().PendingEvents)
}

func TestRequestInfoFromContext(t *testing.T) {
	_, ok := RequestInfoFromContext(context.Background())
	assert.False(t, ok)

	info, ok := RequestInfoFromContext(WithRequestInfo(context.Background(), RequestInfo{RequestID: "x"}))
	assert.True(t, ok)
	assert.Equal(t, "x", info.RequestID)
}
