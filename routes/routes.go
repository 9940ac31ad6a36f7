package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/roompe/roompe-api/app"
	"github.com/roompe/roompe-api/handlers"
	"github.com/roompe/roompe-api/middleware"
	"github.com/roompe/roompe-api/utils"
)

// requestTimeout bounds every request except the navigation stream.
const requestTimeout = 60 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.RealIP(deps.Config.Server.TrustedProxies))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	health := newHealthHandler(deps)
	accounts := handlers.NewAccountHandler(deps.Accounts, deps.Config.IsProduction(), deps.Logger)
	navigation := handlers.NewNavigationHandler(deps.Tracker, deps.Resolver, deps.Logger)
	profiles := handlers.NewProfileHandler(deps.ProfileService, deps.Tracker, deps.Logger)
	auditLogs := handlers.NewAuditHandler(deps.AuditLogs, deps.Logger)
	requireAuth := deps.AuthMiddleware.RequireAuth
	throttle := throttler(deps)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// OAuth2 auth endpoints (Cognito)
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", handlers.AuthLoginHandler(deps))
		r.Get("/callback", handlers.AuthCallbackHandler(deps))
		r.Get("/logout", handlers.AuthLogoutHandler(deps))
	})
	// Cognito Hosted UI default callback path (also used by /auth/callback)
	r.Get("/oauth2/idpresponse", handlers.AuthCallbackHandler(deps))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Long-lived; outside the request timeout.
		r.With(requireAuth).Get("/navigation/stream", navigation.HandleStream)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(requestTimeout))

			// Local accounts
			r.Route("/auth", func(r chi.Router) {
				r.With(throttle("register")).Post("/register", accounts.HandleRegister)
				r.With(throttle("login")).Post("/login", accounts.HandleLogin)
				r.With(throttle("verify_email")).Post("/verify-email", accounts.HandleVerifyEmail)

				r.Group(func(r chi.Router) {
					r.Use(requireAuth)
					r.With(throttle("resend_verification")).Post("/verify-email/resend", accounts.HandleResendVerification)
					r.Post("/logout", accounts.HandleLogout)
					r.Put("/password", accounts.HandleChangePassword)
				})
			})
			r.With(requireAuth).Delete("/account", accounts.HandleDeleteAccount)

			// Navigation
			r.With(deps.AuthMiddleware.OptionalAuth).Get("/navigation", navigation.HandleCurrent)
			r.Get("/navigation/trees", navigation.HandleTrees)
			r.With(requireAuth).Post("/navigation/retry", navigation.HandleRetry)

			// Own profile and activity
			r.Route("/profile", func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", profiles.HandleGetMe)
				r.Put("/me", profiles.HandleUpdateMe)
			})
			r.With(requireAuth).Get("/audit/me", auditLogs.HandleListMine)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

// throttler returns per-scope rate limit middleware, or a pass-through when
// rate limiting is disabled.
func throttler(deps *app.Dependencies) func(scope string) func(http.Handler) http.Handler {
	if deps.RateLimiter == nil {
		return func(string) func(http.Handler) http.Handler {
			return func(next http.Handler) http.Handler { return next }
		}
	}
	cfg := deps.Config.RateLimit
	return func(scope string) func(http.Handler) http.Handler {
		return middleware.RateLimit(deps.RateLimiter, scope, cfg.Requests, cfg.Window, deps.Logger)
	}
}

// newHealthHandler checks the database and, when the broker can be pinged,
// the broker too.
func newHealthHandler(deps *app.Dependencies) *handlers.HealthHandler {
	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	h := handlers.NewHealthHandler(db, deps.Logger)
	if p, ok := deps.Broker.(handlers.Pinger); ok {
		h.WithCheck("session_broker", p)
	}
	return h
}
