// Package blob stores listing images under collision-resistant names and
// resolves them to public URLs.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/homeonmap/backend/internal/apperr"
	"github.com/homeonmap/backend/internal/logging"
)

// Namespace is the flat prefix every listing image is stored under.
const Namespace = "listings/"

// DefaultMaxSize is the largest accepted image.
const DefaultMaxSize = 5 << 20

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ObjectStore is the blob backend (MinIO in production).
type ObjectStore interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	PublicURL(name string) string
}

// File is a user supplied image.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Uploader writes images to an ObjectStore.
type Uploader struct {
	store   ObjectStore
	maxSize int64
	now     func() time.Time

	mu   sync.Mutex
	last int64
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithMaxSize overrides DefaultMaxSize.
func WithMaxSize(n int64) Option { return func(u *Uploader) { u.maxSize = n } }

// WithClock overrides the timestamp source used for names.
func WithClock(now func() time.Time) Option { return func(u *Uploader) { u.now = now } }

func NewUploader(store ObjectStore, opts ...Option) *Uploader {
	u := &Uploader{store: store, maxSize: DefaultMaxSize, now: time.Now}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Upload stores f and returns its public URL. Every failure is an
// *apperr.UploadError.
func (u *Uploader) Upload(ctx context.Context, f File) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(f.ContentType, ";", 2)[0]))
	if !allowedTypes[ct] {
		return "", &apperr.UploadError{Reason: fmt.Sprintf("unsupported content type %q", f.ContentType)}
	}
	if len(f.Data) == 0 {
		return "", &apperr.UploadError{Reason: "empty file"}
	}
	if int64(len(f.Data)) > u.maxSize {
		return "", &apperr.UploadError{Reason: fmt.Sprintf("file exceeds %d bytes", u.maxSize)}
	}

	name := u.objectName(f.Name)
	if err := u.store.Put(ctx, name, bytes.NewReader(f.Data), int64(len(f.Data)), ct); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("object", name).Msg("blob write failed")
		return "", &apperr.UploadError{Reason: "store rejected the write", Err: err}
	}

	logging.Ctx(ctx).Debug().Str("object", name).Int("bytes", len(f.Data)).Msg("blob stored")
	return u.store.PublicURL(name), nil
}

// objectName returns Namespace + "<millis>-<sanitized name>" with the
// millisecond stamp strictly increasing within the process.
func (u *Uploader) objectName(original string) string {
	u.mu.Lock()
	stamp := u.now().UnixMilli()
	if stamp <= u.last {
		stamp = u.last + 1
	}
	u.last = stamp
	u.mu.Unlock()

	return fmt.Sprintf("%s%d-%s", Namespace, stamp, Sanitize(original))
}

// Sanitize drops whitespace and every character outside [A-Za-z0-9._-].
// An empty result becomes "image".
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsSpace(r):
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "image"
	}
	return out
}
