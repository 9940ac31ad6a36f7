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

// ProfileRepository implements the repositories.ProfileRepository interface
type ProfileRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *DB, logger *zap.Logger) repositories.ProfileRepository {
	return &ProfileRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a profile
func (r *ProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (user_id, role, email_verified, display_name, phone, property_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		profile.UserID,
		profile.Role,
		profile.EmailVerified,
		profile.DisplayName,
		profile.Phone,
		profile.PropertyID,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("profile %s: %w", profile.UserID, repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}

	r.logger.Debug("profile created",
		zap.String("user_id", profile.UserID.String()),
		zap.String("role", string(profile.Role)))
	return nil
}

// GetByUserID retrieves the profile for a user
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	query := `
		SELECT user_id, role, email_verified, display_name, phone, property_id, created_at, updated_at
		FROM profiles
		WHERE user_id = $1
	`

	executor := GetExecutor(ctx, r.db)
	profile := &models.Profile{}
	var propertyID uuid.NullUUID

	err := executor.QueryRowContext(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.Role,
		&profile.EmailVerified,
		&profile.DisplayName,
		&profile.Phone,
		&propertyID,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", userID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if propertyID.Valid {
		id := propertyID.UUID
		profile.PropertyID = &id
	}
	return profile, nil
}

// Update updates display name and phone
func (r *ProfileRepository) Update(ctx context.Context, profile *models.Profile) error {
	query := `
		UPDATE profiles
		SET display_name = $2,
		    phone = $3,
		    updated_at = $4
		WHERE user_id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		profile.UserID,
		profile.DisplayName,
		profile.Phone,
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	if err := expectOneRow(result, "profile", profile.UserID); err != nil {
		return err
	}

	r.logger.Debug("profile updated", zap.String("user_id", profile.UserID.String()))
	return nil
}

// MarkEmailVerified flags the user's email as verified
func (r *ProfileRepository) MarkEmailVerified(ctx context.Context, userID uuid.UUID, at time.Time) error {
	query := `
		UPDATE profiles
		SET email_verified = true,
		    updated_at = $2
		WHERE user_id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, userID, at)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}

	return expectOneRow(result, "profile", userID)
}
