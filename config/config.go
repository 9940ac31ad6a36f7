package config

import (
	"context"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/roompe/roompe-api/navigation"
)

// developmentTokenSecret signs local tokens when TOKEN_SECRET is unset outside production.
const developmentTokenSecret = "roompe-development-secret-do-not-use-in-prod"

// minTokenSecretLength is enforced in production.
const minTokenSecretLength = 32

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Cognito       CognitoConfig
	Navigation    NavigationConfig
	Audit         AuditConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	// TrustedProxies may set the client address through X-Forwarded-For
	// or X-Real-IP. Empty means every peer is the client itself.
	TrustedProxies []netip.Prefix
	TLS            struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	AutoMigrate      bool
}

// RedisConfig configures the session change broker. Empty Addr selects the
// in-process broker.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	BufferSize int
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// AuthConfig holds settings for locally issued tokens and email verification
type AuthConfig struct {
	TokenSecret     string
	TokenTTL        time.Duration
	TokenIssuer     string
	VerificationTTL time.Duration
	BcryptCost      int
}

// CognitoConfig holds AWS Cognito authentication configuration
type CognitoConfig struct {
	Region       string
	UserPoolID   string
	ClientID     string
	ClientSecret string
	Domain       string // Cognito domain (e.g., https://roompe.auth.ap-south-1.amazoncognito.com)
	RedirectURI  string // OAuth2 callback URL
	FrontEndURL  string // Post-login redirect target (loaded from FRONT_END_URL)
}

// Enabled reports whether the hosted UI flow can be offered.
func (c CognitoConfig) Enabled() bool {
	return c.Domain != "" && c.ClientID != "" && c.UserPoolID != ""
}

// NavigationConfig holds resolver and session tracker settings
type NavigationConfig struct {
	// UnknownRolePolicy comes from UNKNOWN_ROLE_POLICY and defaults to
	// reject. Only fallback_tenant sends an empty or unknown role to the
	// tenant stack.
	UnknownRolePolicy   navigation.UnknownRolePolicy
	ProfileFetchTimeout time.Duration
	ProfileCacheSize    int
	ProfileCacheTTL     time.Duration
}

// AuditConfig sizes the asynchronous audit pipeline
type AuditConfig struct {
	BufferSize  int
	WorkerCount int
}

// RateLimitConfig throttles the unauthenticated account endpoints per
// client address. Counters live in Redis when it is configured.
type RateLimitConfig struct {
	Enabled  bool
	Requests int
	Window   time.Duration
	MaxKeys  int
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	// Unset means reject: a profile with an unrecognized role lands on the
	// unsupported-role screen instead of being routed as a tenant.
	policy, err := navigation.ParseUnknownRolePolicy(getEnv("UNKNOWN_ROLE_POLICY", ""))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	proxies, err := parseTrustedProxies(getEnvAsList("TRUSTED_PROXIES", nil))
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://*"}),
			TrustedProxies:  proxies,
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", ""),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getEnvAsInt("REDIS_DB", 0),
			BufferSize: getEnvAsInt("REDIS_SUBSCRIBER_BUFFER", 8),
		},
		Auth: AuthConfig{
			TokenSecret:     getEnv("TOKEN_SECRET", ""),
			TokenTTL:        getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
			TokenIssuer:     getEnv("TOKEN_ISSUER", "roompe-api"),
			VerificationTTL: getEnvAsDuration("VERIFICATION_TTL", 24*time.Hour),
			BcryptCost:      getEnvAsInt("BCRYPT_COST", 10),
		},
		Cognito: CognitoConfig{
			Region:       getEnv("COGNITO_REGION", "ap-south-1"),
			UserPoolID:   getEnv("COGNITO_USER_POOL_ID", ""),
			ClientID:     getEnv("COGNITO_CLIENT_ID", ""),
			ClientSecret: getEnv("COGNITO_CLIENT_SECRET", ""),
			Domain:       getEnv("COGNITO_DOMAIN", ""),
			RedirectURI:  getEnv("COGNITO_REDIRECT_URI", "http://localhost:8080/auth/callback"),
			FrontEndURL:  getEnv("FRONT_END_URL", "http://localhost:8081"),
		},
		Navigation: NavigationConfig{
			UnknownRolePolicy:   policy,
			ProfileFetchTimeout: getEnvAsDuration("PROFILE_FETCH_TIMEOUT", 10*time.Second),
			ProfileCacheSize:    getEnvAsInt("PROFILE_CACHE_SIZE", 10000),
			ProfileCacheTTL:     getEnvAsDuration("PROFILE_CACHE_TTL", 5*time.Minute),
		},
		Audit: AuditConfig{
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1024),
			WorkerCount: getEnvAsInt("AUDIT_WORKERS", 2),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getEnvAsBool("RATE_LIMIT_ENABLED", true),
			Requests: getEnvAsInt("RATE_LIMIT_REQUESTS", 10),
			Window:   getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
			MaxKeys:  getEnvAsInt("RATE_LIMIT_MAX_KEYS", 100000),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Auth.TokenSecret == "" && !cfg.IsProduction() {
		cfg.Auth.TokenSecret = developmentTokenSecret
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Database validation (DATABASE_URL or DB_* vars)
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("token secret is required: set TOKEN_SECRET")
	}
	if c.IsProduction() {
		if len(c.Auth.TokenSecret) < minTokenSecretLength {
			return fmt.Errorf("token secret must be at least %d bytes in production", minTokenSecretLength)
		}
		if c.Auth.TokenSecret == developmentTokenSecret {
			return fmt.Errorf("development token secret cannot be used in production")
		}
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if c.Auth.VerificationTTL <= 0 {
		return fmt.Errorf("verification TTL must be positive")
	}

	// Cognito is optional, but a partial setup is a mistake
	if (c.Cognito.Domain != "" || c.Cognito.ClientID != "") && !c.Cognito.Enabled() {
		return fmt.Errorf("cognito requires COGNITO_DOMAIN, COGNITO_CLIENT_ID and COGNITO_USER_POOL_ID together")
	}

	if c.Navigation.ProfileFetchTimeout <= 0 {
		return fmt.Errorf("profile fetch timeout must be positive")
	}
	if c.Navigation.ProfileCacheSize <= 0 {
		return fmt.Errorf("profile cache size must be positive")
	}

	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate limit requests and window must be positive when enabled")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	switch c.Observability.LogFormat {
	case "", "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", c.Observability.LogFormat)
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:      getEnvAsBool("DB_AUTO_MIGRATE", false),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "roompe"),
		Password:        getEnv("DB_PASSWORD", "roompe"),
		Database:        getEnv("DB_NAME", "roompe"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		AutoMigrate:     getEnvAsBool("DB_AUTO_MIGRATE", false),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// parseTrustedProxies accepts CIDR prefixes and bare addresses.
func parseTrustedProxies(items []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range items {
		if p, err := netip.ParsePrefix(item); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q", item)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// getEnvAsList splits a comma-separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
