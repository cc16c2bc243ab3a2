package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/homeonmap/backend/internal/models"
)

type stubSessions map[string]models.Identity

func (s stubSessions) Get(_ context.Context, sid string) (*models.Identity, error) {
	if sid == "broken" {
		return nil, errors.New("redis down")
	}
	id, ok := s[sid]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func echoIdentity(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())
	if id == nil {
		w.Write([]byte("anonymous"))
		return
	}
	w.Write([]byte(id.ID))
}

func TestRequireAuth(t *testing.T) {
	sessions := stubSessions{"good": {ID: "u1", Email: "u1@example.com"}}
	h := RequireAuth(sessions)(http.HandlerFunc(echoIdentity))

	tests := []struct {
		name   string
		header string
		want   int
		body   string
	}{
		{"bearer", "Bearer good", http.StatusOK, "u1"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"unknown", "Bearer nope", http.StatusUnauthorized, ""},
		{"store error", "Bearer broken", http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			switch {
			case tt.body != "":
				assert.Equal(t, tt.body, rec.Body.String())
			case tt.want == http.StatusInternalServerError:
				assert.Contains(t, rec.Body.String(), "INTERNAL")
				assert.NotContains(t, rec.Body.String(), "redis down")
			default:
				assert.Contains(t, rec.Body.String(), "AUTH_REQUIRED")
			}
		})
	}
}

func TestRequireAuthCookie(t *testing.T) {
	sessions := stubSessions{"c1": {ID: "u2"}}
	h := RequireAuth(sessions)(http.HandlerFunc(echoIdentity))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "c1"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u2", rec.Body.String())
}

func TestOptionalAuth(t *testing.T) {
	sessions := stubSessions{"good": {ID: "u1"}}
	h := OptionalAuth(sessions)(http.HandlerFunc(echoIdentity))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "anonymous", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "u1", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
