package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homeonmap/backend/internal/models"
)

func TestIntentStores(t *testing.T) {
	stores := map[string]IntentStore{
		"memory": NewMemoryIntentStore(),
		"file":   NewFileIntentStore(filepath.Join(t.TempDir(), "state", "intent.json")),
	}
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for name, st := range stores {
		t.Run(name, func(t *testing.T) {
			in, err := st.Load()
			require.NoError(t, err)
			assert.Nil(t, in)

			require.NoError(t, st.Save(models.PendingIntent{ReturnTo: "/add", Mode: models.ModeCLI, CreatedAt: created}))
			in, err = st.Load()
			require.NoError(t, err)
			require.NotNil(t, in)
			assert.Equal(t, "/add", in.ReturnTo)
			assert.Equal(t, models.ModeCLI, in.Mode)
			assert.True(t, created.Equal(in.CreatedAt))

			require.NoError(t, st.Clear())
			require.NoError(t, st.Clear())
			in, err = st.Load()
			require.NoError(t, err)
			assert.Nil(t, in)
		})
	}
}

func TestFileIntentStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intent.json")
	require.NoError(t, NewFileIntentStore(path).Save(models.PendingIntent{ReturnTo: "/mine"}))

	in, err := NewFileIntentStore(path).Load()
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.Equal(t, "/mine", in.ReturnTo)
}

func TestFileIntentStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intent.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileIntentStore(path).Load()
	assert.ErrorIs(t, err, ErrCorruptIntent)
}

func TestConsumeIntentDiscardsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intent.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	s := New(&scriptedProvider{}, NewFileIntentStore(path), WithSleeper(&fakeSleeper{}))

	for i := 0; i < 2; i++ {
		in, err := s.ConsumeIntent()
		require.NoError(t, err)
		assert.Nil(t, in)
	}
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = s.Login(context.Background(), "/add")
	require.NoError(t, err)
	in, err := s.ConsumeIntent()
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.Equal(t, "/add", in.ReturnTo)
}
