package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/auth"
	"github.com/roompe/roompe-api/cognito"
	"github.com/roompe/roompe-api/config"
	"github.com/roompe/roompe-api/middleware"
	"github.com/roompe/roompe-api/navigation"
	"github.com/roompe/roompe-api/notify"
	"github.com/roompe/roompe-api/repositories"
	"github.com/roompe/roompe-api/repositories/postgres"
	"github.com/roompe/roompe-api/services"
	"github.com/roompe/roompe-api/services/account"
	"github.com/roompe/roompe-api/services/audit"
	"github.com/roompe/roompe-api/services/profile"
	"github.com/roompe/roompe-api/services/ratelimit"
	"github.com/roompe/roompe-api/services/session"
	"github.com/roompe/roompe-api/tokens"
	"go.uber.org/zap"
)

// profileCacheSweep is how often expired profile cache entries are dropped.
const profileCacheSweep = time.Minute

// auditStopTimeout bounds the audit drain on shutdown.
const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users         repositories.UserRepository
	Profiles      repositories.ProfileRepository
	Verifications repositories.VerificationRepository
	AuditLogs     repositories.AuditRepository
	TxManager     repositories.TransactionManager

	// Services
	Audit          *audit.AuditService
	ProfileCache   *profile.Cache
	ProfileService *profile.Service
	Broker         notify.Broker
	Tracker        *session.Tracker
	Resolver       *navigation.Resolver
	Tokens         *tokens.Manager
	Accounts       *account.Service
	RateLimiter    ratelimit.Limiter // nil when disabled

	// Auth
	authHandler    *auth.Handler
	AuthMiddleware *middleware.AuthMiddleware

	stopCleanup chan struct{}
}

// AuthHandler returns the auth handler for route wiring (implements handlers.AuthDeps)
func (d *Dependencies) AuthHandler() *auth.Handler {
	return d.authHandler
}

// NewDependencies opens the database and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := NewDependenciesWithFactory(ctx, cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesWithFactory wires the application around an already opened
// database. The returned Dependencies owns the factory.
func NewDependenciesWithFactory(ctx context.Context, cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
		stopCleanup: make(chan struct{}),
	}

	if cfg.Database.AutoMigrate {
		if err := deps.DB.InitSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	deps.initRepositories()

	if err := deps.initServices(ctx, cfg); err != nil {
		deps.shutdownServices()
		return nil, err
	}

	deps.initAuth(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.Profiles = repos.Profiles
	d.Verifications = repos.Verifications
	d.AuditLogs = repos.AuditLogs
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

// initServices builds the audit pipeline, profile store, change broker,
// session tracker and account service, in that order.
func (d *Dependencies) initServices(ctx context.Context, cfg *config.Config) error {
	d.Audit = audit.NewAuditService(d.AuditLogs, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	})
	if err := d.Audit.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	d.ProfileCache = profile.NewCache(cfg.Navigation.ProfileCacheSize, cfg.Navigation.ProfileCacheTTL)
	go d.ProfileCache.StartCleanupWorker(profileCacheSweep, d.stopCleanup)
	d.ProfileService = profile.NewService(d.Profiles, d.ProfileCache, d.Audit, d.Logger)

	broker, err := newBroker(ctx, cfg.Redis, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize session broker: %w", err)
	}
	d.Broker = broker

	d.RateLimiter = newRateLimiter(cfg.RateLimit, d.Broker)

	d.Tracker = session.NewTracker(d.ProfileService, d.Broker, d.Audit, d.Logger, session.Config{
		FetchTimeout: cfg.Navigation.ProfileFetchTimeout,
	})
	d.Resolver = navigation.NewResolver(cfg.Navigation.UnknownRolePolicy)

	d.Tokens = tokens.NewManager(tokens.Config{
		Secret: cfg.Auth.TokenSecret,
		Issuer: cfg.Auth.TokenIssuer,
		TTL:    cfg.Auth.TokenTTL,
	})

	accounts, err := account.NewService(account.Deps{
		Users:         d.Users,
		Profiles:      d.Profiles,
		Verifications: d.Verifications,
		TxManager:     d.TxManager,
		ProfileStore:  d.ProfileService,
		Tokens:        d.Tokens,
		Tracker:       d.Tracker,
		Audit:         d.Audit,
	}, account.Config{
		VerificationTTL: cfg.Auth.VerificationTTL,
		BcryptCost:      cfg.Auth.BcryptCost,
	}, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize account service: %w", err)
	}
	d.Accounts = accounts

	d.Logger.Info("services initialized",
		zap.String("unknown_role_policy", string(d.Resolver.Policy())),
		zap.Bool("redis_broker", cfg.Redis.Enabled()),
		zap.Bool("rate_limit", d.RateLimiter != nil))
	return nil
}

// newRateLimiter shares the broker's Redis connection when there is one.
func newRateLimiter(cfg config.RateLimitConfig, broker notify.Broker) ratelimit.Limiter {
	if !cfg.Enabled {
		return nil
	}
	if rb, ok := broker.(*notify.RedisBroker); ok {
		return ratelimit.NewRedisLimiter(rb.Client())
	}
	return ratelimit.NewMemoryLimiter(cfg.MaxKeys)
}

// newBroker selects Redis when an address is configured so snapshots reach
// every API instance; otherwise changes stay in process.
func newBroker(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (notify.Broker, error) {
	if !cfg.Enabled() {
		logger.Info("redis not configured, using in-process session broker")
		return notify.NewMemoryBroker(cfg.BufferSize, logger), nil
	}
	return notify.NewRedisBroker(ctx, notify.RedisOptions{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		BufferSize: cfg.BufferSize,
	}, logger)
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	validators := middleware.ChainValidator{&localTokenValidatorAdapter{manager: d.Tokens}}
	sessions := &sessionCheckerAdapter{accounts: d.Accounts}

	if !cfg.Cognito.Enabled() {
		d.Logger.Warn("cognito not configured, hosted UI endpoints disabled")
		d.AuthMiddleware = middleware.NewAuthMiddleware(validators, d.Logger).WithSessionChecker(sessions)
		return
	}

	idTokens := cognito.NewCognitoValidator(cognito.Config{
		Region:      cfg.Cognito.Region,
		UserPoolID:  cfg.Cognito.UserPoolID,
		ClientID:    cfg.Cognito.ClientID,
		CacheTTL:    time.Hour,
		HTTPTimeout: 10 * time.Second,
	})
	// Adapter converts cognito.ParsedClaims to middleware.Claims for AuthMiddleware
	validators = append(validators, &cognitoTokenValidatorAdapter{validator: idTokens})
	d.AuthMiddleware = middleware.NewAuthMiddleware(validators, d.Logger).WithSessionChecker(sessions)

	exchanger := cognito.NewTokenExchanger(cognito.ExchangerConfig{
		Domain:       cfg.Cognito.Domain,
		ClientID:     cfg.Cognito.ClientID,
		ClientSecret: cfg.Cognito.ClientSecret,
	})
	d.authHandler = auth.NewHandler(cfg.Cognito, exchanger, idTokens, d.Accounts, d.Tracker, d.Audit, d.Logger)
	d.Logger.Info("auth handler initialized")
}

// localValidator is the part of tokens.Manager the adapter needs.
type localValidator interface {
	ValidateToken(ctx context.Context, token string) (*tokens.ParsedClaims, error)
}

// localTokenValidatorAdapter adapts tokens.Manager to middleware.TokenValidator
type localTokenValidatorAdapter struct {
	manager localValidator
}

func (a *localTokenValidatorAdapter) ValidateToken(ctx context.Context, token string) (*middleware.Claims, error) {
	parsed, err := a.manager.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &middleware.Claims{
		Sub:           parsed.Sub,
		Email:         parsed.Email,
		EmailVerified: parsed.EmailVerified,
		Provider:      middleware.ProviderLocal,
		IssuedAt:      parsed.IssuedAt,
		ExpiresAt:     parsed.ExpiresAt,
	}, nil
}

// cognitoValidator is the part of cognito.CognitoValidator the adapter needs.
type cognitoValidator interface {
	ValidateToken(ctx context.Context, token string) (*cognito.ParsedClaims, error)
}

// cognitoTokenValidatorAdapter adapts cognito.CognitoValidator to middleware.TokenValidator
type cognitoTokenValidatorAdapter struct {
	validator cognitoValidator
}

func (a *cognitoTokenValidatorAdapter) ValidateToken(ctx context.Context, token string) (*middleware.Claims, error) {
	parsed, err := a.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &middleware.Claims{
		Sub:           parsed.Sub,
		Email:         parsed.Email,
		EmailVerified: parsed.EmailVerified,
		Provider:      middleware.ProviderCognito,
		IssuedAt:      parsed.IssuedAt,
		ExpiresAt:     parsed.ExpiresAt,
	}, nil
}

// sessionStore is the part of account.Service the session check needs.
type sessionStore interface {
	CheckSession(ctx context.Context, userID uuid.UUID, issuedAt time.Time) error
}

// sessionCheckerAdapter turns revoked sessions into middleware.ErrSessionEnded
// so the middleware can tell them from a store outage.
type sessionCheckerAdapter struct {
	accounts sessionStore
}

func (a *sessionCheckerAdapter) CheckSession(ctx context.Context, claims *middleware.Claims) error {
	err := a.accounts.CheckSession(ctx, claims.Sub, claims.IssuedAt)
	if errors.Is(err, services.ErrSessionRevoked) {
		return fmt.Errorf("%w: %v", middleware.ErrSessionEnded, err)
	}
	return err
}

// StopStreams stops the session tracker and closes the broker, which ends
// every open navigation stream. Close calls it too; servers call it first so
// that Shutdown is not held up by long-lived connections.
func (d *Dependencies) StopStreams() {
	if d.Tracker != nil {
		d.Tracker.Close()
	}
	if d.Broker != nil {
		if err := d.Broker.Close(); err != nil {
			d.Logger.Warn("failed to close session broker", zap.Error(err))
		}
	}
}

// shutdownServices stops background work in reverse start order. Fields
// left nil by a failed start are skipped.
func (d *Dependencies) shutdownServices() []error {
	var errs []error

	// The tracker flushes its last publications through the broker.
	d.StopStreams()
	if d.stopCleanup != nil {
		close(d.stopCleanup)
		d.stopCleanup = nil
	}
	if d.Audit != nil {
		if err := d.Audit.Stop(auditStopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}
	return errs
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	errs := d.shutdownServices()

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}

	return nil
}
