package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/homeonmap/backend/internal/models"
)

// ErrCorruptIntent is returned by Load when the stored intent cannot be
// decoded.
var ErrCorruptIntent = errors.New("corrupt login intent")

// IntentStore persists one pending intent across a login redirect.
type IntentStore interface {
	Save(in models.PendingIntent) error
	// Load returns nil when nothing is pending.
	Load() (*models.PendingIntent, error)
	Clear() error
}

// MemoryIntentStore keeps the intent in process.
type MemoryIntentStore struct {
	mu     sync.Mutex
	intent *models.PendingIntent
}

func NewMemoryIntentStore() *MemoryIntentStore { return &MemoryIntentStore{} }

func (m *MemoryIntentStore) Save(in models.PendingIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intent = &in
	return nil
}

func (m *MemoryIntentStore) Load() (*models.PendingIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.intent == nil {
		return nil, nil
	}
	c := *m.intent
	return &c, nil
}

func (m *MemoryIntentStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intent = nil
	return nil
}

// FileIntentStore keeps the intent as a JSON file so it survives the
// process exiting between login and callback.
type FileIntentStore struct {
	path string
}

func NewFileIntentStore(path string) *FileIntentStore { return &FileIntentStore{path: path} }

func (f *FileIntentStore) Save(in models.PendingIntent) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write intent: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileIntentStore) Load() (*models.PendingIntent, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read intent: %w", err)
	}
	var in models.PendingIntent
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptIntent, err)
	}
	return &in, nil
}

func (f *FileIntentStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove intent: %w", err)
	}
	return nil
}
