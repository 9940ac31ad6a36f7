package handlers

import (
	"net/http"

	"github.com/roompe/roompe-api/auth"
	"github.com/roompe/roompe-api/utils"
)

// AuthDeps exposes the Cognito hosted UI handler, or nil when federated
// sign-in is switched off.
type AuthDeps interface {
	AuthHandler() *auth.Handler
}

// hostedUI resolves the Cognito handler per request so routes can be mounted
// before the handler is configured. Without one every hosted UI route is 503.
func hostedUI(deps AuthDeps, endpoint func(*auth.Handler) http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := deps.AuthHandler()
		if h == nil {
			_ = utils.WriteServiceUnavailable(w, "Federated sign-in not configured", nil)
			return
		}
		endpoint(h)(w, r)
	}
}

func AuthLoginHandler(deps AuthDeps) http.HandlerFunc {
	return hostedUI(deps, func(h *auth.Handler) http.HandlerFunc { return h.HandleLogin })
}

func AuthCallbackHandler(deps AuthDeps) http.HandlerFunc {
	return hostedUI(deps, func(h *auth.Handler) http.HandlerFunc { return h.HandleCallback })
}

func AuthLogoutHandler(deps AuthDeps) http.HandlerFunc {
	return hostedUI(deps, func(h *auth.Handler) http.HandlerFunc { return h.HandleLogout })
}
