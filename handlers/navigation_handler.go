package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/roompe/roompe-api/internal/observability"
	"github.com/roompe/roompe-api/middleware"
	"github.com/roompe/roompe-api/navigation"
	"github.com/roompe/roompe-api/utils"
	"go.uber.org/zap"
)

// DefaultHeartbeat is how often an idle navigation stream sends a comment
// line to keep proxies from closing it.
const DefaultHeartbeat = 25 * time.Second

// SessionSource is the part of the session tracker the navigation endpoints read.
type SessionSource interface {
	Ensure(ctx context.Context, userID uuid.UUID) navigation.Session
	Retry(ctx context.Context, userID uuid.UUID) (navigation.Session, error)
	Subscribe(ctx context.Context, userID uuid.UUID) (<-chan navigation.Session, error)
}

// NavigationResponse pairs a session snapshot with the tree it resolves to.
type NavigationResponse struct {
	Session  navigation.Session  `json:"session"`
	Decision navigation.Decision `json:"decision"`
}

// TreeEntry is one tree of the route catalog.
type TreeEntry struct {
	Tree navigation.Tree `json:"tree"`
	Root navigation.Root `json:"root"`
}

// CatalogResponse lists every tree in decision order.
type CatalogResponse struct {
	UnknownRolePolicy navigation.UnknownRolePolicy `json:"unknown_role_policy"`
	Trees             []TreeEntry                  `json:"trees"`
}

// NavigationHandler serves resolver decisions over HTTP.
type NavigationHandler struct {
	sessions  SessionSource
	resolver  *navigation.Resolver
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewNavigationHandler creates a NavigationHandler.
func NewNavigationHandler(sessions SessionSource, resolver *navigation.Resolver, logger *zap.Logger) *NavigationHandler {
	return &NavigationHandler{
		sessions:  sessions,
		resolver:  resolver,
		heartbeat: DefaultHeartbeat,
		logger:    logger,
	}
}

// HandleCurrent handles GET /api/v1/navigation. Anonymous callers get the
// unauthenticated decision.
func (h *NavigationHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	session := navigation.Unauthenticated()
	if userID, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		session = h.sessions.Ensure(r.Context(), userID)
	}

	if err := utils.WriteOK(w, h.resolve(r.Context(), session)); err != nil {
		h.logger.Error("failed to write navigation response", zap.Error(err))
	}
}

// HandleRetry handles POST /api/v1/navigation/retry
func (h *NavigationHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	session, err := h.sessions.Retry(r.Context(), userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteAccepted(w, h.resolve(r.Context(), session)); err != nil {
		h.logger.Error("failed to write retry response", zap.Error(err))
	}
}

// HandleTrees handles GET /api/v1/navigation/trees
func (h *NavigationHandler) HandleTrees(w http.ResponseWriter, r *http.Request) {
	trees := navigation.Trees()
	resp := CatalogResponse{
		UnknownRolePolicy: h.resolver.Policy(),
		Trees:             make([]TreeEntry, 0, len(trees)),
	}
	for _, t := range trees {
		resp.Trees = append(resp.Trees, TreeEntry{Tree: t, Root: navigation.RootFor(t)})
	}

	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write catalog response", zap.Error(err))
	}
}

// HandleStream handles GET /api/v1/navigation/stream. It writes one
// server-sent event per snapshot change, starting with the current one, until
// the client disconnects or the session source shuts down.
func (h *NavigationHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	ctx := r.Context()
	logger := observability.FromContext(ctx, h.logger).With(zap.String("user_id", userID.String()))
	h.sessions.Ensure(ctx, userID)
	snapshots, err := h.sessions.Subscribe(ctx, userID)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	rc := http.NewResponseController(w)
	// The server's write timeout would otherwise cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.Error("navigation stream requires a flushable writer", zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	var (
		last    navigation.Session
		sent    bool
		eventID int
	)
	for {
		select {
		case <-ctx.Done():
			return

		case s, ok := <-snapshots:
			if !ok {
				return
			}
			if sent && s.Equal(last) {
				continue
			}
			eventID++
			if err := writeEvent(w, eventID, "navigation", h.resolve(ctx, s)); err != nil {
				logger.Debug("navigation stream closed", zap.Error(err))
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
			last, sent = s, true

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (h *NavigationHandler) resolve(ctx context.Context, s navigation.Session) NavigationResponse {
	d := h.resolver.Resolve(s)
	if d.RoleFallback {
		fields := []zap.Field{zap.String("request_id", middleware.GetRequestIDFromContext(ctx))}
		if s.Profile != nil {
			fields = append(fields,
				zap.String("user_id", s.Profile.UserID.String()),
				zap.String("role", s.Profile.Role))
		}
		h.logger.Warn("unrecognized role routed to tenant tree", fields...)
	}
	return NavigationResponse{Session: s, Decision: d}
}

func writeEvent(w http.ResponseWriter, id int, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, payload)
	return err
}
