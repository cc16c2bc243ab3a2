package listing

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homeonmap/backend/internal/apperr"
	"github.com/homeonmap/backend/internal/authz"
	"github.com/homeonmap/backend/internal/blob"
	"github.com/homeonmap/backend/internal/middleware"
	"github.com/homeonmap/backend/internal/models"
	"github.com/homeonmap/backend/internal/store"
)

type tokenSessions map[string]models.Identity

func (s tokenSessions) Get(_ context.Context, sid string) (*models.Identity, error) {
	id, ok := s[sid]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

type staticEvents []models.ListingEvent

func (e staticEvents) Recent(_ context.Context, _ string, _ int64) ([]models.ListingEvent, error) {
	return e, nil
}

type testAPI struct {
	server  *httptest.Server
	repo    *Repository
	objects *store.MemoryObjectStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	az, err := authz.NewEnforcer([]string{"admin@example.com"})
	require.NoError(t, err)
	objects := store.NewMemoryObjectStore("http://cdn.test/bucket")
	repo := NewRepository(store.NewMemoryListingStore(), az, WithBlobRemover(objects))
	h := NewHandler(repo, blob.NewUploader(objects), staticEvents{{ListingID: "l1", Type: models.EventCreated}}, az)

	sessions := tokenSessions{"alice": alice, "bob": bob, "admin": admin}
	r := chi.NewRouter()
	r.Get("/api/listings", h.List)
	r.Get("/api/listings/{id}", h.Get)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(sessions))
		r.Get("/api/listings/mine", h.Mine)
		r.Post("/api/listings", h.Create)
		r.Delete("/api/listings/{id}", h.Delete)
		r.Post("/api/uploads", h.Upload)
		r.Get("/api/admin/events", h.Events)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testAPI{server: srv, repo: repo, objects: objects}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body []byte, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHandlerCreateAndList(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(validFields())

	resp := api.do(t, http.MethodPost, "/api/listings", "alice", body, "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Listing
	decodeBody(t, resp, &created)
	assert.Equal(t, alice.ID, created.OwnerID)

	resp = api.do(t, http.MethodGet, "/api/listings", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all []models.Listing
	decodeBody(t, resp, &all)
	require.Len(t, all, 1)
	assert.Equal(t, created.ID, all[0].ID)

	resp = api.do(t, http.MethodGet, "/api/listings/"+created.ID, "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandlerCreateIgnoresPayloadOwner(t *testing.T) {
	api := newTestAPI(t)
	body := []byte(`{"title":"Plot","price":100,"phone":"9876543210","lat":30.7,"lng":76.7,"owner_id":"u-bob"}`)

	resp := api.do(t, http.MethodPost, "/api/listings", "alice", body, "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Listing
	decodeBody(t, resp, &created)
	assert.Equal(t, alice.ID, created.OwnerID)
}

func TestHandlerCreateErrors(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, http.MethodPost, "/api/listings", "", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = api.do(t, http.MethodPost, "/api/listings", "alice", []byte(`{nope`), "application/json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	bad := validFields()
	bad.Phone = "123"
	body, _ := json.Marshal(bad)
	resp = api.do(t, http.MethodPost, "/api/listings", "alice", body, "application/json")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var eb apperr.Body
	decodeBody(t, resp, &eb)
	assert.Equal(t, "VALIDATION_ERROR", eb.Code)
	assert.Equal(t, "phone", eb.Field)
}

func TestHandlerQuota(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(validFields())
	for i := 0; i < DefaultQuota; i++ {
		resp := api.do(t, http.MethodPost, "/api/listings", "alice", body, "application/json")
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := api.do(t, http.MethodPost, "/api/listings", "alice", body, "application/json")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var eb apperr.Body
	decodeBody(t, resp, &eb)
	assert.Equal(t, "QUOTA_EXCEEDED", eb.Code)

	resp = api.do(t, http.MethodGet, "/api/listings/mine", "alice", nil, "")
	var mine []models.Listing
	decodeBody(t, resp, &mine)
	assert.Len(t, mine, DefaultQuota)
}

func TestHandlerDeletePermissions(t *testing.T) {
	api := newTestAPI(t)
	saved, err := api.repo.Create(context.Background(), validFields(), alice)
	require.NoError(t, err)

	resp := api.do(t, http.MethodDelete, "/api/listings/"+saved.ID, "bob", nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = api.do(t, http.MethodDelete, "/api/listings/"+saved.ID, "admin", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(t, http.MethodDelete, "/api/listings/"+saved.ID, "alice", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandlerListLimit(t *testing.T) {
	api := newTestAPI(t)
	for i := 0; i < 3; i++ {
		_, err := api.repo.Create(context.Background(), validFields(), alice)
		require.NoError(t, err)
	}

	resp := api.do(t, http.MethodGet, "/api/listings?limit=2", "", nil, "")
	var out []models.Listing
	decodeBody(t, resp, &out)
	assert.Len(t, out, 2)

	resp = api.do(t, http.MethodGet, "/api/listings?limit=x", "", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func multipartImage(t *testing.T, filename, contentType string, data []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestHandlerUpload(t *testing.T) {
	api := newTestAPI(t)
	body, ct := multipartImage(t, "my flat.png", "image/png", []byte("\x89PNG"))

	resp := api.do(t, http.MethodPost, "/api/uploads", "alice", body, ct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out map[string]string
	decodeBody(t, resp, &out)
	assert.True(t, strings.HasPrefix(out["url"], "http://cdn.test/bucket/listings/"))
	assert.True(t, strings.HasSuffix(out["url"], "-myflat.png"))
	assert.Equal(t, 1, api.objects.Len())
}

func TestHandlerUploadRejectsNonImage(t *testing.T) {
	api := newTestAPI(t)
	body, ct := multipartImage(t, "notes.txt", "text/plain", []byte("hello"))

	resp := api.do(t, http.MethodPost, "/api/uploads", "alice", body, ct)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var eb apperr.Body
	decodeBody(t, resp, &eb)
	assert.Equal(t, "UPLOAD_ERROR", eb.Code)
	assert.Zero(t, api.objects.Len())
}

func TestHandlerEventsRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, http.MethodGet, "/api/admin/events", "alice", nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = api.do(t, http.MethodGet, "/api/admin/events", "admin", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events []models.ListingEvent
	decodeBody(t, resp, &events)
	assert.Len(t, events, 1)
}
