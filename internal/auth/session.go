package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/homeonmap/backend/internal/models"
)

const (
	SessionTTL    = 24 * time.Hour
	SessionCookie = "session_id"

	// IntentTTL bounds how long a login redirect may take.
	IntentTTL = 10 * time.Minute
)

// SessionStore wraps Redis for session management.
type SessionStore struct {
	rdb *redis.Client
}

func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb}
}

// Create stores a new session mapping sessionID -> identity.
func (s *SessionStore) Create(ctx context.Context, id models.Identity) (string, error) {
	raw, err := json.Marshal(id)
	if err != nil {
		return "", err
	}
	sid := uuid.New().String()
	if err := s.rdb.Set(ctx, "session:"+sid, raw, SessionTTL).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return sid, nil
}

// Get returns the identity for a session, or nil if not found / expired.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.Identity, error) {
	raw, err := s.rdb.Get(ctx, "session:"+sessionID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var id models.Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &id, nil
}

// Delete removes a session.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, "session:"+sessionID).Err()
}

// IntentStore keeps the pending post-login navigation keyed by OAuth state.
type IntentStore struct {
	rdb *redis.Client
}

func NewIntentStore(rdb *redis.Client) *IntentStore {
	return &IntentStore{rdb: rdb}
}

func (s *IntentStore) Save(ctx context.Context, state string, in models.PendingIntent) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, "oauth_state:"+state, raw, IntentTTL).Err()
}

// Consume returns and deletes the intent for state in one round trip.
// A missing or expired state yields nil.
func (s *IntentStore) Consume(ctx context.Context, state string) (*models.PendingIntent, error) {
	raw, err := s.rdb.GetDel(ctx, "oauth_state:"+state).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var in models.PendingIntent
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}
	return &in, nil
}

// SessionToken extracts the session id from a bearer header or the
// session cookie.
func SessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}
