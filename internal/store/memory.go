package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/homeonmap/backend/internal/apperr"
	"github.com/homeonmap/backend/internal/models"
)

// MemoryListingStore is an in-memory listing store for development and
// tests. Reads return copies.
type MemoryListingStore struct {
	mu       sync.RWMutex
	listings map[string]*memListing
	seq      int64
	now      func() time.Time
}

type memListing struct {
	models.Listing
	seq int64
}

func NewMemoryListingStore() *MemoryListingStore {
	return &MemoryListingStore{listings: make(map[string]*memListing), now: time.Now}
}

// WithClock overrides the creation timestamp source.
func (s *MemoryListingStore) WithClock(now func() time.Time) *MemoryListingStore {
	s.now = now
	return s
}

func cloneListing(l *models.Listing) models.Listing {
	c := *l
	if l.ImageURL != nil {
		u := *l.ImageURL
		c.ImageURL = &u
	}
	return c
}

func (s *MemoryListingStore) Insert(_ context.Context, l *models.Listing) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	stored := &memListing{Listing: cloneListing(l), seq: s.seq}
	stored.ID = uuid.New().String()
	stored.CreatedAt = s.now().UTC()
	s.listings[stored.ID] = stored

	out := cloneListing(&stored.Listing)
	return &out, nil
}

func (s *MemoryListingStore) List(_ context.Context, f models.ListingFilter) ([]models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*memListing, 0, len(s.listings))
	for _, l := range s.listings {
		if f.OwnerID != "" && l.OwnerID != f.OwnerID {
			continue
		}
		if f.Role != "" && l.Role != f.Role {
			continue
		}
		matched = append(matched, l)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	out := make([]models.Listing, len(matched))
	for i, l := range matched {
		out[i] = cloneListing(&l.Listing)
	}
	return out, nil
}

func (s *MemoryListingStore) Get(_ context.Context, id string) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	out := cloneListing(&l.Listing)
	return &out, nil
}

func (s *MemoryListingStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.listings, id)
	return nil
}

func (s *MemoryListingStore) CountByOwner(_ context.Context, ownerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, l := range s.listings {
		if l.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

// MemoryObjectStore keeps blobs in a map and serves them under baseURL.
type MemoryObjectStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string][]byte
	// FailWith makes every Put fail with this error when set.
	FailWith error
}

func NewMemoryObjectStore(baseURL string) *MemoryObjectStore {
	return &MemoryObjectStore{baseURL: strings.TrimRight(baseURL, "/"), objects: make(map[string][]byte)}
}

func (s *MemoryObjectStore) Put(_ context.Context, name string, r io.Reader, _ int64, _ string) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[name] = buf.Bytes()
	s.mu.Unlock()
	return nil
}

func (s *MemoryObjectStore) PublicURL(name string) string {
	return fmt.Sprintf("%s/%s", s.baseURL, name)
}

// ObjectName maps a public URL back to its object name.
func (s *MemoryObjectStore) ObjectName(url string) (string, bool) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

func (s *MemoryObjectStore) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.objects, name)
	s.mu.Unlock()
	return nil
}

// Object returns the stored bytes for name.
func (s *MemoryObjectStore) Object(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[name]
	return b, ok
}

// Len returns the number of stored objects.
func (s *MemoryObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
