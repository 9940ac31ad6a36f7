// Package profile serves the user profiles the navigation resolver routes on.
package profile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/models"
	"github.com/roompe/roompe-api/repositories"
	"github.com/roompe/roompe-api/services"
	"github.com/roompe/roompe-api/services/audit"
	"go.uber.org/zap"
)

// UpdateInput carries the editable profile fields. Nil fields are left as is.
type UpdateInput struct {
	DisplayName *string
	Phone       *string
}

// Service reads profiles through the cache and keeps it coherent on writes.
type Service struct {
	profiles repositories.ProfileRepository
	cache    *Cache
	audit    audit.Recorder
	logger   *zap.Logger
}

// NewService creates a profile service. A nil cache disables caching.
func NewService(profiles repositories.ProfileRepository, cache *Cache, recorder audit.Recorder, logger *zap.Logger) *Service {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{
		profiles: profiles,
		cache:    cache,
		audit:    recorder,
		logger:   logger,
	}
}

// Get returns the profile of userID, or services.ErrProfileNotFound.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	if s.cache != nil {
		if p := s.cache.Get(userID); p != nil {
			return p, nil
		}
	}

	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrProfileNotFound
		}
		return nil, services.WrapInternal("failed to load profile", err)
	}

	if s.cache != nil {
		s.cache.Set(p)
	}
	return p, nil
}

// Update changes display name and phone.
func (s *Service) Update(ctx context.Context, userID uuid.UUID, in UpdateInput) (*models.Profile, error) {
	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrProfileNotFound
		}
		return nil, services.WrapInternal("failed to load profile", err)
	}

	changes := make(map[string]interface{})
	if in.DisplayName != nil && *in.DisplayName != p.DisplayName {
		p.DisplayName = *in.DisplayName
		changes["display_name"] = p.DisplayName
	}
	if in.Phone != nil && *in.Phone != p.Phone {
		p.Phone = *in.Phone
		changes["phone"] = true
	}
	if len(changes) == 0 {
		return p, nil
	}

	p.UpdatedAt = time.Now().UTC()
	if err := s.profiles.Update(ctx, p); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrProfileNotFound
		}
		return nil, services.WrapInternal("failed to update profile", err)
	}
	s.Invalidate(userID)

	s.audit.Record(ctx, models.AuditActionProfileUpdated, &userID, changes)
	s.logger.Info("profile updated", zap.String("user_id", userID.String()))
	return p, nil
}

// MarkEmailVerified flags the profile as verified and drops the cached copy.
func (s *Service) MarkEmailVerified(ctx context.Context, userID uuid.UUID) error {
	err := s.profiles.MarkEmailVerified(ctx, userID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrProfileNotFound
		}
		return services.WrapInternal("failed to mark email verified", err)
	}
	s.Invalidate(userID)
	return nil
}

// Invalidate drops any cached copy of the user's profile.
func (s *Service) Invalidate(userID uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(userID)
	}
}
