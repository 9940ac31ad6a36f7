package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/models"
	"github.com/roompe/roompe-api/repositories"
	"go.uber.org/zap"
)

// VerificationRepository implements the repositories.VerificationRepository interface
type VerificationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewVerificationRepository creates a new verification token repository
func NewVerificationRepository(db *DB, logger *zap.Logger) repositories.VerificationRepository {
	return &VerificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a token record
func (r *VerificationRepository) Create(ctx context.Context, v *models.EmailVerification) error {
	query := `
		INSERT INTO email_verifications (token_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, v.TokenHash, v.UserID, v.ExpiresAt, v.CreatedAt); err != nil {
		return fmt.Errorf("failed to create email verification: %w", err)
	}
	return nil
}

// GetByTokenHash retrieves a token record
func (r *VerificationRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.EmailVerification, error) {
	query := `
		SELECT token_hash, user_id, expires_at, consumed_at, created_at
		FROM email_verifications
		WHERE token_hash = $1
	`

	executor := GetExecutor(ctx, r.db)
	v := &models.EmailVerification{}
	var consumedAt sql.NullTime

	err := executor.QueryRowContext(ctx, query, tokenHash).Scan(
		&v.TokenHash,
		&v.UserID,
		&v.ExpiresAt,
		&consumedAt,
		&v.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("email verification: %w", repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get email verification: %w", err)
	}

	if consumedAt.Valid {
		t := consumedAt.Time
		v.ConsumedAt = &t
	}
	return v, nil
}

// Consume marks an unconsumed token as used
func (r *VerificationRepository) Consume(ctx context.Context, tokenHash string, at time.Time) error {
	query := `
		UPDATE email_verifications
		SET consumed_at = $2
		WHERE token_hash = $1 AND consumed_at IS NULL
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, tokenHash, at)
	if err != nil {
		return fmt.Errorf("failed to consume email verification: %w", err)
	}
	return expectOneRow(result, "email verification", "token")
}

// DeleteForUser removes every outstanding token of a user
func (r *VerificationRepository) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	query := `DELETE FROM email_verifications WHERE user_id = $1 AND consumed_at IS NULL`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete email verifications: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		r.logger.Debug("email verifications revoked",
			zap.String("user_id", userID.String()),
			zap.Int64("count", n))
	}
	return nil
}
