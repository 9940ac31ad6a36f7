// Package account owns local credentials: registration, password login,
// email verification and sign-out. Successful sign-ins and verification
// changes are pushed into the session tracker so navigation follows.
package account

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/models"
	"github.com/roompe/roompe-api/navigation"
	"github.com/roompe/roompe-api/repositories"
	"github.com/roompe/roompe-api/services"
	"github.com/roompe/roompe-api/services/audit"
	"github.com/roompe/roompe-api/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DefaultVerificationTTL is how long an email verification token stays valid.
const DefaultVerificationTTL = 24 * time.Hour

// TokenIssuer signs session tokens for authenticated users. Issued tokens
// carry an iat no earlier than notBefore.
type TokenIssuer interface {
	Issue(userID uuid.UUID, email string, emailVerified bool, notBefore time.Time) (string, time.Time, error)
}

// SessionTracker is the part of the session tracker accounts drive.
type SessionTracker interface {
	SignIn(ctx context.Context, userID uuid.UUID) navigation.Session
	Refresh(ctx context.Context, userID uuid.UUID) bool
	SignOut(ctx context.Context, userID uuid.UUID)
}

// ProfileStore reads profiles and drops cached copies after writes made here.
type ProfileStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	Invalidate(userID uuid.UUID)
}

// Deps groups the collaborators of Service.
type Deps struct {
	Users         repositories.UserRepository
	Profiles      repositories.ProfileRepository
	Verifications repositories.VerificationRepository
	TxManager     repositories.TransactionManager
	ProfileStore  ProfileStore
	Tokens        TokenIssuer
	Tracker       SessionTracker
	Mailer        Mailer
	Audit         audit.Recorder
}

// Config holds account policy settings.
type Config struct {
	VerificationTTL time.Duration
	BcryptCost      int
}

// RegisterInput is a sign-up request.
type RegisterInput struct {
	Email       string     `json:"email" validate:"required,email,max=254"`
	Password    string     `json:"password" validate:"required,password,max=72"`
	Role        string     `json:"role" validate:"required,role"`
	DisplayName string     `json:"display_name" validate:"required,max=100"`
	Phone       *string    `json:"phone,omitempty" validate:"omitempty,e164"`
	PropertyID  *uuid.UUID `json:"property_id,omitempty"`
}

// LoginInput is a password sign-in request.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

// ChangePasswordInput replaces the password of a signed-in user.
type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required,max=72"`
	NewPassword     string `json:"new_password" validate:"required,password,max=72"`
}

// RegisterResult is returned by Register.
type RegisterResult struct {
	User    *models.User    `json:"user"`
	Profile *models.Profile `json:"profile"`
}

// LoginResult is returned by Login.
type LoginResult struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	User      *models.User       `json:"user"`
	Session   navigation.Session `json:"session"`
}

// ExternalIdentity is a user authenticated by an external identity provider.
type ExternalIdentity struct {
	Sub           uuid.UUID
	Email         string
	EmailVerified bool
	Role          navigation.Role
}

// Service implements account operations.
type Service struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	// dummyHash is compared against when the email is unknown so both
	// failure paths cost one bcrypt comparison.
	dummyHash []byte

	now      func() time.Time
	newToken func() (string, error)
}

// NewService creates an account service.
func NewService(deps Deps, cfg Config, logger *zap.Logger) (*Service, error) {
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = DefaultVerificationTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cfg.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	if deps.Mailer == nil {
		deps.Mailer = NewLogMailer(logger)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("roompe-dummy-password"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare password hasher: %w", err)
	}

	return &Service{
		deps:      deps,
		cfg:       cfg,
		logger:    logger,
		dummyHash: dummy,
		now:       func() time.Time { return time.Now().UTC() },
		newToken:  generateVerificationToken,
	}, nil
}

// Register creates a user, its profile and a verification token in one
// transaction, then mails the token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.Email = models.NormalizeEmail(in.Email)
	if err := utils.ValidateStruct(&in); err != nil {
		return nil, validationError(err)
	}

	role := navigation.NormalizeRole(in.Role)
	if in.PropertyID != nil && role != navigation.RoleTenant {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "property_id is only valid for tenants", nil).
			WithDetail("property_id", "must be empty for owners")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, services.WrapInternal("failed to hash password", err)
	}

	user := models.NewUser(in.Email, string(hash))
	profile := models.NewProfile(user.ID, models.UserRole(role), strings.TrimSpace(in.DisplayName), in.PropertyID)
	if in.Phone != nil {
		profile.Phone = *in.Phone
	}

	token, err := s.newToken()
	if err != nil {
		return nil, services.WrapInternal("failed to generate verification token", err)
	}
	verification := models.NewEmailVerification(user.ID, hashToken(token), s.cfg.VerificationTTL)

	err = services.WithTransaction(ctx, s.deps.TxManager, func(txCtx context.Context) error {
		if err := s.deps.Users.Create(txCtx, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return services.ErrDuplicateEmail
			}
			return err
		}
		if err := s.deps.Profiles.Create(txCtx, profile); err != nil {
			return err
		}
		return s.deps.Verifications.Create(txCtx, verification)
	})
	if err != nil {
		return nil, domainOrInternal("failed to register account", err)
	}

	s.sendVerification(ctx, user, token)
	s.deps.Audit.Record(ctx, models.AuditActionRegistered, &user.ID, map[string]interface{}{
		"role": string(role),
	})
	s.logger.Info("account registered",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(role)))

	return &RegisterResult{User: user, Profile: profile}, nil
}

// Login checks the password, issues a token and signs the user in to the
// session tracker. Unknown emails and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Email = models.NormalizeEmail(in.Email)
	if err := utils.ValidateStruct(&in); err != nil {
		return nil, validationError(err)
	}

	email := in.Email
	user, err := s.deps.Users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, services.WrapInternal("failed to load user", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(in.Password))
		s.deps.Audit.Record(ctx, models.AuditActionSignInFailed, nil, map[string]interface{}{
			"email":  email,
			"reason": "unknown_email",
		})
		return nil, services.ErrInvalidCredentials
	}

	if !s.passwordMatches(user, in.Password) {
		s.deps.Audit.Record(ctx, models.AuditActionSignInFailed, &user.ID, map[string]interface{}{
			"reason": "wrong_password",
		})
		return nil, services.ErrInvalidCredentials
	}

	emailVerified := false
	if p, err := s.deps.ProfileStore.Get(ctx, user.ID); err == nil {
		emailVerified = p.EmailVerified
	} else if !services.IsNotFoundError(err) {
		s.logger.Warn("profile lookup failed during login",
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
	}

	token, expiresAt, err := s.deps.Tokens.Issue(user.ID, user.Email, emailVerified, user.RevokedBefore())
	if err != nil {
		return nil, services.WrapInternal("failed to issue token", err)
	}

	session := s.deps.Tracker.SignIn(ctx, user.ID)
	s.deps.Audit.Record(ctx, models.AuditActionSignIn, &user.ID, map[string]interface{}{
		"provider": "password",
	})
	s.logger.Info("user signed in", zap.String("user_id", user.ID.String()))

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
		Session:   session,
	}, nil
}

// VerifyEmail consumes a verification token and marks the owner's profile
// verified. It returns the verified user's ID.
func (s *Service) VerifyEmail(ctx context.Context, token string) (uuid.UUID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return uuid.Nil, services.NewDomainError(services.ErrorTypeValidation, "verification token is required", nil)
	}
	tokenHash := hashToken(token)
	now := s.now()

	userID, err := services.WithTransactionResult(ctx, s.deps.TxManager, func(txCtx context.Context) (uuid.UUID, error) {
		v, err := s.deps.Verifications.GetByTokenHash(txCtx, tokenHash)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return uuid.Nil, services.ErrVerificationNotFound
			}
			return uuid.Nil, err
		}
		if v.IsConsumed() {
			return uuid.Nil, services.ErrVerificationUsed
		}
		if v.IsExpired(now) {
			return uuid.Nil, services.ErrVerificationExpired
		}
		if err := s.deps.Verifications.Consume(txCtx, tokenHash, now); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return uuid.Nil, services.ErrVerificationUsed
			}
			return uuid.Nil, err
		}
		if err := s.deps.Profiles.MarkEmailVerified(txCtx, v.UserID, now); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return uuid.Nil, services.ErrProfileNotFound
			}
			return uuid.Nil, err
		}
		return v.UserID, nil
	})
	if err != nil {
		return uuid.Nil, domainOrInternal("failed to verify email", err)
	}

	s.deps.ProfileStore.Invalidate(userID)
	s.deps.Tracker.Refresh(ctx, userID)
	s.deps.Audit.Record(ctx, models.AuditActionEmailVerified, &userID, nil)
	s.logger.Info("email verified", zap.String("user_id", userID.String()))

	return userID, nil
}

// ResendVerification replaces any outstanding tokens of the user with a new one.
func (s *Service) ResendVerification(ctx context.Context, userID uuid.UUID) error {
	user, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrUserNotFound
		}
		return services.WrapInternal("failed to load user", err)
	}

	p, err := s.deps.ProfileStore.Get(ctx, userID)
	if err != nil {
		return err
	}
	if p.EmailVerified {
		return services.ErrAlreadyVerified
	}

	token, err := s.newToken()
	if err != nil {
		return services.WrapInternal("failed to generate verification token", err)
	}
	verification := models.NewEmailVerification(userID, hashToken(token), s.cfg.VerificationTTL)

	err = services.WithTransaction(ctx, s.deps.TxManager, func(txCtx context.Context) error {
		if err := s.deps.Verifications.DeleteForUser(txCtx, userID); err != nil {
			return err
		}
		return s.deps.Verifications.Create(txCtx, verification)
	})
	if err != nil {
		return domainOrInternal("failed to reissue verification token", err)
	}

	s.sendVerification(ctx, user, token)
	return nil
}

// Logout revokes every token the user holds and ends the tracked session.
// A user without a local row, such as an unprovisioned Cognito user, is
// still signed out of the tracker.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	err := s.deps.Users.RevokeSessions(ctx, userID, models.RevocationCutoff(s.now()))
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return services.WrapInternal("failed to revoke sessions", err)
	}

	s.deps.Tracker.SignOut(ctx, userID)
	s.deps.Audit.Record(ctx, models.AuditActionSignOut, &userID, nil)
	s.logger.Info("user signed out", zap.String("user_id", userID.String()))
	return nil
}

// CheckSession reports whether a token issued at issuedAt still speaks for
// the user. Deleted users and tokens older than the last sign-out get
// services.ErrSessionRevoked.
func (s *Service) CheckSession(ctx context.Context, userID uuid.UUID, issuedAt time.Time) error {
	user, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrSessionRevoked
		}
		return services.WrapInternal("failed to load user", err)
	}
	if !user.SessionValid(issuedAt) {
		return services.ErrSessionRevoked
	}
	return nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, in ChangePasswordInput) error {
	if err := utils.ValidateStruct(&in); err != nil {
		return validationError(err)
	}

	user, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrUserNotFound
		}
		return services.WrapInternal("failed to load user", err)
	}
	if !s.passwordMatches(user, in.CurrentPassword) {
		return services.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.cfg.BcryptCost)
	if err != nil {
		return services.WrapInternal("failed to hash password", err)
	}
	if err := s.deps.Users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrUserNotFound
		}
		return services.WrapInternal("failed to update password", err)
	}

	s.logger.Info("password changed", zap.String("user_id", userID.String()))
	return nil
}

// DeleteAccount removes the user after checking the password and signs them out.
func (s *Service) DeleteAccount(ctx context.Context, userID uuid.UUID, password string) error {
	user, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrUserNotFound
		}
		return services.WrapInternal("failed to load user", err)
	}
	if !s.passwordMatches(user, password) {
		return services.ErrInvalidCredentials
	}

	if err := s.deps.Users.Delete(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrUserNotFound
		}
		return services.WrapInternal("failed to delete user", err)
	}

	s.deps.ProfileStore.Invalidate(userID)
	s.deps.Tracker.SignOut(ctx, userID)
	s.logger.Info("account deleted", zap.String("user_id", userID.String()))
	return nil
}

// ProvisionExternal creates the local user and profile rows for a user
// authenticated by Cognito the first time they sign in. Existing users are
// left untouched. No profile is created when the identity carries no
// supported role; the user then routes to the loading stack until one exists.
func (s *Service) ProvisionExternal(ctx context.Context, id ExternalIdentity) error {
	_, err := s.deps.Users.GetByID(ctx, id.Sub)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return services.WrapInternal("failed to load user", err)
	}

	now := s.now()
	user := &models.User{
		ID:        id.Sub,
		Email:     models.NormalizeEmail(id.Email),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = services.WithTransaction(ctx, s.deps.TxManager, func(txCtx context.Context) error {
		if err := s.deps.Users.Create(txCtx, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return services.ErrDuplicateEmail
			}
			return err
		}
		if id.Role != navigation.RoleOwner && id.Role != navigation.RoleTenant {
			return nil
		}
		profile := models.NewProfile(id.Sub, models.UserRole(id.Role), displayNameFromEmail(user.Email), nil)
		profile.EmailVerified = id.EmailVerified
		return s.deps.Profiles.Create(txCtx, profile)
	})
	if err != nil {
		return domainOrInternal("failed to provision external user", err)
	}

	s.deps.Audit.Record(ctx, models.AuditActionRegistered, &id.Sub, map[string]interface{}{
		"provider": "cognito",
		"role":     string(id.Role),
	})
	s.logger.Info("external user provisioned",
		zap.String("user_id", id.Sub.String()),
		zap.String("role", string(id.Role)))
	return nil
}

// passwordMatches reports whether password matches the user's hash. Accounts
// without a local password never match.
func (s *Service) passwordMatches(user *models.User, password string) bool {
	if user.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

func (s *Service) sendVerification(ctx context.Context, user *models.User, token string) {
	if err := s.deps.Mailer.SendVerification(ctx, user.Email, token); err != nil {
		s.logger.Error("failed to send verification email",
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
		return
	}
	s.deps.Audit.Record(ctx, models.AuditActionVerificationSent, &user.ID, nil)
}

// generateVerificationToken returns 32 random bytes, base64url encoded.
func generateVerificationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// hashToken is the form tokens are stored in.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func displayNameFromEmail(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

func validationError(err error) error {
	de := services.NewDomainError(services.ErrorTypeValidation, "validation failed", nil)
	for field, msg := range utils.GetValidationFields(err) {
		de.WithDetail(field, msg)
	}
	return de
}

func domainOrInternal(message string, err error) error {
	var de *services.DomainError
	if errors.As(err, &de) {
		return err
	}
	return services.WrapInternal(message, err)
}
