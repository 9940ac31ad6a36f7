package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/models"
)

// Sentinel errors returned by repository implementations. Services translate
// them into domain errors.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes fn within a transaction. The context passed to fn
	// carries the transaction, so repositories called with it join it.
	// Commits if fn succeeds, rolls back on error.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// UserRepository handles account credential operations
type UserRepository interface {
	// Create creates a new user. Returns ErrDuplicate if the email is taken.
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by normalized email
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// UpdatePassword replaces the stored password hash
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	// RevokeSessions invalidates every token issued before at
	RevokeSessions(ctx context.Context, id uuid.UUID, at time.Time) error

	// Delete deletes a user and, by cascade, its profile and tokens
	Delete(ctx context.Context, id uuid.UUID) error
}

// ProfileRepository handles the profile rows the navigation resolver reads
type ProfileRepository interface {
	// Create creates a profile for an existing user
	Create(ctx context.Context, profile *models.Profile) error

	// GetByUserID retrieves the profile for a user
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)

	// Update updates the editable profile fields
	Update(ctx context.Context, profile *models.Profile) error

	// MarkEmailVerified sets email_verified for the user
	MarkEmailVerified(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// VerificationRepository handles email verification tokens
type VerificationRepository interface {
	// Create stores a new token record
	Create(ctx context.Context, v *models.EmailVerification) error

	// GetByTokenHash retrieves a token record by the hash of its token
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.EmailVerification, error)

	// Consume marks the token used. Returns ErrNotFound if it was already
	// consumed or does not exist.
	Consume(ctx context.Context, tokenHash string, at time.Time) error

	// DeleteForUser removes all outstanding tokens of a user
	DeleteForUser(ctx context.Context, userID uuid.UUID) error
}

// AuditRepository handles audit log data operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByUserID retrieves audit logs for a user with pagination
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)

	// GetByAction retrieves audit logs by action type
	GetByAction(ctx context.Context, action models.AuditAction, limit, offset int) ([]*models.AuditLog, error)

	// GetByRequestID retrieves audit logs by request ID
	GetByRequestID(ctx context.Context, requestID string) ([]*models.AuditLog, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users         UserRepository
	Profiles      ProfileRepository
	Verifications VerificationRepository
	AuditLogs     AuditRepository
}
