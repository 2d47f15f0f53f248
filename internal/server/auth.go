package server

import (
	"context"
	"net/http"

	apperrors "github.com/runnerr0/browsedash/internal/errors"
	"github.com/runnerr0/browsedash/internal/identity"
)

type contextKey string

const contextKeyUserID contextKey = "user_id"

// requireSyncKey derives the identity from the bearer sync key. Handlers
// only ever see the derived user ID.
func (s *Server) requireSyncKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := identity.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeAppError(w, apperrors.Unauthorized("Missing Bearer token"), s.logger)
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyUserID, identity.UserID(key))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimit throttles requests per identity. Must run after requireSyncKey.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			userID := getUserID(r.Context())
			if !s.limiter.Allow(userID) {
				s.logger.Warn("rate limit exceeded", "user", identity.Prefix(userID), "path", r.URL.Path)
				s.metrics.rateLimited.Inc()
				w.Header().Set("Retry-After", "1")
				writeAppError(w, apperrors.RateLimited("Too many requests"), s.logger)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func getUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(contextKeyUserID).(string); ok {
		return userID
	}
	return ""
}
