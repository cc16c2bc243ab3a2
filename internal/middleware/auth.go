package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/homeonmap/backend/internal/apperr"
	"github.com/homeonmap/backend/internal/auth"
	"github.com/homeonmap/backend/internal/logging"
	"github.com/homeonmap/backend/internal/models"
)

type contextKey string

const identityKey contextKey = "identity"

// SessionReader resolves a session token to its identity.
type SessionReader interface {
	Get(ctx context.Context, sessionID string) (*models.Identity, error)
}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity injected by RequireAuth or
// OptionalAuth, or nil.
func IdentityFrom(ctx context.Context) *models.Identity {
	id, _ := ctx.Value(identityKey).(*models.Identity)
	return id
}

// lookup returns nil without error when the request carries no token or an
// unknown one. A session store failure is returned as an error.
func lookup(sessions SessionReader, r *http.Request) (*models.Identity, error) {
	token := auth.SessionToken(r)
	if token == "" {
		return nil, nil
	}
	id, err := sessions.Get(r.Context(), token)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("session lookup")
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	return id, nil
}

// RequireAuth is middleware that validates the session and injects the
// identity into the request context.
func RequireAuth(sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := lookup(sessions, r)
			if err != nil {
				WriteError(w, err)
				return
			}
			if id == nil {
				WriteError(w, apperr.ErrAuthRequired)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuth injects the identity when a valid session is present and
// passes anonymous requests through.
func OptionalAuth(sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := lookup(sessions, r)
			if err != nil {
				WriteError(w, err)
				return
			}
			if id != nil {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
