package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/homeonmap/backend/internal/apperr"
	"github.com/homeonmap/backend/internal/logging"
	"github.com/homeonmap/backend/internal/models"
)

var loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "homeonmap_logins_total",
	Help: "OAuth callbacks by result.",
}, []string{"result"})

// IdentityProvider is the external OAuth/OIDC provider.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*models.Identity, error)
}

// UserStore records identities that have logged in.
type UserStore interface {
	UpsertUser(ctx context.Context, id models.Identity) error
}

// Sessions is the server session backend.
type Sessions interface {
	Create(ctx context.Context, id models.Identity) (string, error)
	Get(ctx context.Context, sessionID string) (*models.Identity, error)
	Delete(ctx context.Context, sessionID string) error
}

// Intents persists the navigation target across the provider redirect.
type Intents interface {
	Save(ctx context.Context, state string, in models.PendingIntent) error
	Consume(ctx context.Context, state string) (*models.PendingIntent, error)
}

// Handler holds auth-related HTTP handlers.
type Handler struct {
	provider     IdentityProvider
	users        UserStore
	sessions     Sessions
	intents      Intents
	secureCookie bool
}

func NewHandler(provider IdentityProvider, users UserStore, sessions Sessions, intents Intents, secureCookie bool) *Handler {
	return &Handler{provider: provider, users: users, sessions: sessions, intents: intents, secureCookie: secureCookie}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apperr.Body{Error: msg, Code: code})
}

// SafeReturnPath keeps only same-origin relative paths; anything else
// collapses to "/".
func SafeReturnPath(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return u.RequestURI()
}

// Login starts the redirect flow. The return_to target and mode survive
// the round trip in the intent store, keyed by the OAuth state.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := models.ModeBrowser
	if q.Get("mode") == models.ModeCLI {
		mode = models.ModeCLI
	}

	state := uuid.New().String()
	intent := models.PendingIntent{
		ReturnTo:  SafeReturnPath(q.Get("return_to")),
		Mode:      mode,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.intents.Save(r.Context(), state, intent); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("save login intent")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "could not start login")
		return
	}

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusFound)
}

// loginResult is returned to CLI logins instead of a redirect.
type loginResult struct {
	SessionToken string          `json:"session_token"`
	Identity     models.Identity `json:"identity"`
	ReturnTo     string          `json:"return_to"`
}

// Callback completes the provider redirect and creates a session.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		loginsTotal.WithLabelValues("denied").Inc()
		writeError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "login cancelled: "+e)
		return
	}
	state := q.Get("state")
	if state == "" {
		writeError(w, http.StatusBadRequest, "INVALID_STATE", "missing state")
		return
	}

	intent, err := h.intents.Consume(ctx, state)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("consume login intent")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	if intent == nil {
		loginsTotal.WithLabelValues("invalid_state").Inc()
		writeError(w, http.StatusBadRequest, "INVALID_STATE", "login expired, start again")
		return
	}

	id, err := h.provider.Exchange(ctx, q.Get("code"))
	if err != nil {
		loginsTotal.WithLabelValues("exchange_failed").Inc()
		logging.Ctx(ctx).Warn().Err(err).Msg("oauth code exchange failed")
		writeError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "login failed")
		return
	}

	if err := h.users.UpsertUser(ctx, *id); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("user_id", id.ID).Msg("upsert user")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}

	sid, err := h.sessions.Create(ctx, *id)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("create session")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "session creation failed")
		return
	}
	loginsTotal.WithLabelValues("ok").Inc()
	logging.Ctx(ctx).Info().Str("user_id", id.ID).Str("mode", intent.Mode).Msg("login complete")

	if intent.Mode == models.ModeCLI {
		writeJSON(w, http.StatusOK, loginResult{SessionToken: sid, Identity: *id, ReturnTo: intent.ReturnTo})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionTTL / time.Second),
	})
	http.Redirect(w, r, SafeReturnPath(intent.ReturnTo), http.StatusFound)
}

// Logout destroys the current session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := SessionToken(r); token != "" {
		if err := h.sessions.Delete(r.Context(), token); err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("delete session")
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me returns the currently authenticated identity.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	token := SessionToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "not authenticated")
		return
	}
	id, err := h.sessions.Get(r.Context(), token)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("read session")
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	if id == nil {
		writeError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "session expired")
		return
	}
	writeJSON(w, http.StatusOK, id)
}
