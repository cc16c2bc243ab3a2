package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homeonmap/backend/internal/apperr"
	"github.com/homeonmap/backend/internal/auth"
	"github.com/homeonmap/backend/internal/authz"
	"github.com/homeonmap/backend/internal/blob"
	"github.com/homeonmap/backend/internal/listing"
	"github.com/homeonmap/backend/internal/models"
	"github.com/homeonmap/backend/internal/server"
	"github.com/homeonmap/backend/internal/session"
	"github.com/homeonmap/backend/internal/store"
)

type memSessions struct {
	mu   sync.Mutex
	byID map[string]models.Identity
}

func (m *memSessions) Create(_ context.Context, id models.Identity) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sid := "tok-" + id.ID
	m.byID[sid] = id
	return sid, nil
}

func (m *memSessions) Get(_ context.Context, sid string) (*models.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byID[sid]
	if !ok {
		return nil, nil
	}
	return &id, nil
}

func (m *memSessions) Delete(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, sid)
	return nil
}

func newApp(t *testing.T) (*App, *listing.Repository) {
	t.Helper()
	az, err := authz.NewEnforcer(nil)
	require.NoError(t, err)
	objects := store.NewMemoryObjectStore("http://cdn.test/bucket")
	repo := listing.NewRepository(store.NewMemoryListingStore(), az, listing.WithBlobRemover(objects))

	sessions := &memSessions{byID: map[string]models.Identity{
		"tok-alice": {ID: "u-alice", Email: "alice@example.com"},
		"tok-bob":   {ID: "u-bob", Email: "bob@example.com"},
	}}
	router := server.NewRouter(server.Handlers{
		Auth:     auth.NewHandler(nil, nil, sessions, nil, false),
		Listings: listing.NewHandler(repo, blob.NewUploader(objects), nil, az),
	}, server.Options{Sessions: sessions})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &App{
		APIURL:   srv.URL,
		StateDir: t.TempDir(),
		Retry:    session.RetryPolicy{Attempts: 1},
	}, repo
}

func run(t *testing.T, app *App, args ...string) (string, error) {
	t.Helper()
	root := RootCmd(app)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func signIn(t *testing.T, app *App, token string) {
	t.Helper()
	_, err := run(t, app, "login", "--token", token)
	require.NoError(t, err)
}

func TestCommandMetadata(t *testing.T) {
	app := &App{}
	cases := []struct {
		use   string
		flags []string
	}{
		{"login", []string{"token", "return-to"}},
		{"logout", nil},
		{"whoami", nil},
		{"listings", []string{"mine", "role", "limit", "near"}},
		{"presets", nil},
		{"add", []string{"title", "price", "phone", "role", "locality", "description", "lat", "lng", "preset", "image", "image-optional"}},
		{"delete [id]", nil},
		{"enhance [text]", nil},
		{"events", []string{"limit"}},
	}

	root := RootCmd(app)
	assert.Equal(t, "homeonmap", root.Use)
	for _, tc := range cases {
		name := strings.Fields(tc.use)[0]
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, tc.use, cmd.Use)
		assert.NotEmpty(t, cmd.Short)
		for _, f := range tc.flags {
			assert.NotNil(t, cmd.Flags().Lookup(f), "%s --%s", name, f)
		}
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("HOMEONMAP_API", "")
	t.Setenv("HOMEONMAP_STATE_DIR", "/tmp/hom")
	app := FromEnv()
	assert.Equal(t, DefaultAPI, app.APIURL)
	assert.Equal(t, "/tmp/hom", app.StateDir)
	assert.Equal(t, session.DefaultRetryPolicy, app.Retry)
}

func TestLoginRoundTrip(t *testing.T) {
	app, _ := newApp(t)

	out, err := run(t, app, "login", "--return-to", "/add")
	require.NoError(t, err)
	assert.Contains(t, out, "/api/auth/login?mode=cli")

	out, err = run(t, app, "login", "--token", "tok-alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as alice@example.com")
	assert.Contains(t, out, "Continue with: /add")

	out, err = run(t, app, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "alice@example.com (u-alice)")

	// intent is consumed once
	out, err = run(t, app, "login", "--token", "tok-alice")
	require.NoError(t, err)
	assert.NotContains(t, out, "Continue with")

	_, err = run(t, app, "logout")
	require.NoError(t, err)
	out, err = run(t, app, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")
}

func TestLoginRejectedToken(t *testing.T) {
	app, _ := newApp(t)

	_, err := run(t, app, "login", "--token", "tok-nobody")
	assert.ErrorContains(t, err, "token rejected")
	_, statErr := os.Stat(filepath.Join(app.StateDir, "token"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoginSurvivesCorruptIntentFile(t *testing.T) {
	app, _ := newApp(t)
	intent := filepath.Join(app.StateDir, "intent.json")
	require.NoError(t, os.WriteFile(intent, []byte("{not json"), 0o600))

	for i := 0; i < 2; i++ {
		out, err := run(t, app, "login", "--token", "tok-alice")
		require.NoError(t, err)
		assert.Contains(t, out, "Signed in as alice@example.com")
	}
	_, err := os.Stat(intent)
	assert.True(t, os.IsNotExist(err))
}

func TestAddAndList(t *testing.T) {
	app, repo := newApp(t)

	_, err := run(t, app, "add", "--title", "Flat", "--price", "25,00,000", "--phone", "9876543210", "--preset", "Mohali")
	assert.ErrorIs(t, err, apperr.ErrAuthRequired)

	signIn(t, app, "tok-alice")
	out, err := run(t, app, "add", "--title", "Flat", "--price", "25,00,000", "--phone", "9876543210",
		"--preset", "mohali", "--role", "dealer")
	require.NoError(t, err)
	assert.Contains(t, out, "Created listing")

	all, err := repo.List(context.Background(), models.ListingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(2500000), all[0].Price)
	assert.Equal(t, 30.7046, all[0].Lat)
	assert.Equal(t, "u-alice", all[0].OwnerID)

	out, err = run(t, app, "listings")
	require.NoError(t, err)
	assert.Contains(t, out, "Flat")
	assert.Contains(t, out, "dealer")

	out, err = run(t, app, "listings", "--mine", "--near", "Panchkula")
	require.NoError(t, err)
	assert.Contains(t, out, "Centered on 30.6942,76.8606 zoom 12")
	assert.Contains(t, out, all[0].ID)
}

func TestAddValidatesBeforeNetwork(t *testing.T) {
	app, repo := newApp(t)
	signIn(t, app, "tok-alice")

	_, err := run(t, app, "add", "--title", "Flat", "--price", "100", "--phone", "12345", "--lat", "30.7", "--lng", "76.7")
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "phone", ve.Field)

	_, err = run(t, app, "add", "--title", "Flat", "--price", "100", "--phone", "9876543210")
	require.Error(t, err)

	all, err := repo.List(context.Background(), models.ListingFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAddWithImage(t *testing.T) {
	app, _ := newApp(t)
	signIn(t, app, "tok-alice")

	path := filepath.Join(t.TempDir(), "my flat.png")
	require.NoError(t, os.WriteFile(path, append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...), 0o600))

	out, err := run(t, app, "add", "--title", "Flat", "--price", "100", "--phone", "9876543210",
		"--lat", "30.7", "--lng", "76.7", "--image", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Image: http://cdn.test/bucket/")
}

func TestDeleteOwnership(t *testing.T) {
	app, repo := newApp(t)
	signIn(t, app, "tok-alice")
	_, err := run(t, app, "add", "--title", "Flat", "--price", "100", "--phone", "9876543210", "--lat", "30.7", "--lng", "76.7")
	require.NoError(t, err)
	all, err := repo.List(context.Background(), models.ListingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	id := all[0].ID

	signIn(t, app, "tok-bob")
	_, err = run(t, app, "delete", id)
	assert.ErrorIs(t, err, apperr.ErrPermission)

	signIn(t, app, "tok-alice")
	out, err := run(t, app, "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted "+id)

	all, err = repo.List(context.Background(), models.ListingFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPresets(t *testing.T) {
	out, err := run(t, &App{}, "presets")
	require.NoError(t, err)
	assert.Contains(t, out, "Chandigarh")
	assert.Contains(t, out, "New Chandigarh")
}
