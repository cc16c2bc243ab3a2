package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homeonmap/backend/internal/apperr"
	"github.com/homeonmap/backend/internal/models"
)

func TestMemoryListingStoreOrdering(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s := NewMemoryListingStore().WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		_, err := s.Insert(ctx, &models.Listing{Title: title, OwnerID: "alice"})
		require.NoError(t, err)
	}
	_, err := s.Insert(ctx, &models.Listing{Title: "bob's", OwnerID: "bob", Role: models.RoleDealer})
	require.NoError(t, err)

	all, err := s.List(ctx, models.ListingFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "bob's", all[0].Title)
	assert.Equal(t, "first", all[3].Title)

	mine, err := s.List(ctx, models.ListingFilter{OwnerID: "alice", Limit: 2})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "third", mine[0].Title)

	dealers, err := s.List(ctx, models.ListingFilter{Role: models.RoleDealer})
	require.NoError(t, err)
	assert.Len(t, dealers, 1)

	n, err := s.CountByOwner(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMemoryListingStoreSameInstantUsesInsertOrder(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryListingStore().WithClock(func() time.Time { return fixed })
	ctx := context.Background()
	for _, title := range []string{"a", "b", "c"} {
		_, err := s.Insert(ctx, &models.Listing{Title: title})
		require.NoError(t, err)
	}
	all, err := s.List(ctx, models.ListingFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].Title, all[1].Title, all[2].Title})
}

func TestMemoryListingStoreReturnsCopies(t *testing.T) {
	s := NewMemoryListingStore()
	ctx := context.Background()
	url := "http://cdn/listings/1-a.png"

	saved, err := s.Insert(ctx, &models.Listing{Title: "x", ImageURL: &url})
	require.NoError(t, err)
	*saved.ImageURL = "mutated"

	got, err := s.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, url, *got.ImageURL)
}

func TestMemoryListingStoreDelete(t *testing.T) {
	s := NewMemoryListingStore()
	ctx := context.Background()
	saved, err := s.Insert(ctx, &models.Listing{Title: "x"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, saved.ID))
	assert.ErrorIs(t, s.Delete(ctx, saved.ID), apperr.ErrNotFound)
	_, err = s.Get(ctx, saved.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestMemoryObjectStore(t *testing.T) {
	s := NewMemoryObjectStore("http://cdn.local/")
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "listings/1-a.png", strings.NewReader("png"), 3, "image/png"))
	url := s.PublicURL("listings/1-a.png")
	assert.Equal(t, "http://cdn.local/listings/1-a.png", url)

	name, ok := s.ObjectName(url)
	require.True(t, ok)
	assert.Equal(t, "listings/1-a.png", name)
	_, ok = s.ObjectName("https://elsewhere/x.png")
	assert.False(t, ok)

	b, ok := s.Object(name)
	require.True(t, ok)
	assert.Equal(t, "png", string(b))

	require.NoError(t, s.Remove(ctx, name))
	assert.Equal(t, 0, s.Len())
}
