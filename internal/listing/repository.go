// Package listing owns listing records: validation, ownership, the
// free-tier quota, and deletion rights.
package listing

import (
	"context"
	"fmt"

	"github.com/homeonmap/backend/internal/apperr"
	"github.com/homeonmap/backend/internal/authz"
	"github.com/homeonmap/backend/internal/logging"
	"github.com/homeonmap/backend/internal/models"
	"github.com/homeonmap/backend/internal/validation"
)

// DefaultQuota is the free-tier ceiling of listings per identity.
const DefaultQuota = 5

// RecordStore defines the interface for listing persistence.
type RecordStore interface {
	Insert(ctx context.Context, l *models.Listing) (*models.Listing, error)
	List(ctx context.Context, f models.ListingFilter) ([]models.Listing, error)
	Get(ctx context.Context, id string) (*models.Listing, error)
	Delete(ctx context.Context, id string) error
	CountByOwner(ctx context.Context, ownerID string) (int, error)
}

// Authorizer grants rights beyond ownership.
type Authorizer interface {
	Allowed(id models.Identity, obj, act string) (bool, error)
}

// EventLog records the audit trail.
type EventLog interface {
	Record(ctx context.Context, ev models.ListingEvent) error
}

// BlobRemover deletes images that live in our object store.
type BlobRemover interface {
	ObjectName(url string) (string, bool)
	Remove(ctx context.Context, name string) error
}

// Repository implements create/read/delete on top of a RecordStore.
type Repository struct {
	records RecordStore
	authz   Authorizer
	events  EventLog
	blobs   BlobRemover
	quota   int
}

// Option configures a Repository.
type Option func(*Repository)

// WithQuota overrides DefaultQuota.
func WithQuota(n int) Option {
	return func(r *Repository) { r.quota = n }
}

func WithEventLog(e EventLog) Option {
	return func(r *Repository) { r.events = e }
}

func WithBlobRemover(b BlobRemover) Option {
	return func(r *Repository) { r.blobs = b }
}

func NewRepository(records RecordStore, az Authorizer, opts ...Option) *Repository {
	r := &Repository{records: records, authz: az, quota: DefaultQuota}
	for _, o := range opts {
		o(r)
	}
	return r
}

// List returns listings matching f, newest first. A nil result is
// returned as an empty slice.
func (r *Repository) List(ctx context.Context, f models.ListingFilter) ([]models.Listing, error) {
	out, err := r.records.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Listing{}
	}
	return out, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.Listing, error) {
	return r.records.Get(ctx, id)
}

// Create validates fields and inserts a listing owned by owner. The quota
// check and the insert are not atomic; two concurrent creates may overshoot
// the quota by one.
func (r *Repository) Create(ctx context.Context, fields models.ListingFields, owner models.Identity) (*models.Listing, error) {
	if owner.ID == "" {
		return nil, apperr.ErrAuthRequired
	}
	if err := validation.Listing(&fields); err != nil {
		return nil, err
	}

	n, err := r.records.CountByOwner(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("quota check: %w", err)
	}
	if n >= r.quota {
		quotaRejections.Inc()
		logging.Ctx(ctx).Info().Str("owner_id", owner.ID).Int("count", n).Msg("listing quota reached")
		return nil, apperr.ErrQuotaExceeded
	}

	role := fields.Role
	if role == "" {
		role = models.RoleOwner
	}
	saved, err := r.records.Insert(ctx, &models.Listing{
		Title:       fields.Title,
		Description: fields.Description,
		Price:       fields.Price,
		Locality:    fields.Locality,
		Phone:       fields.Phone,
		Role:        role,
		Lat:         fields.Lat,
		Lng:         fields.Lng,
		ImageURL:    fields.ImageURL,
		OwnerID:     owner.ID,
		OwnerEmail:  owner.Email,
	})
	if err != nil {
		return nil, err
	}

	listingsCreated.Inc()
	r.record(ctx, saved, models.EventCreated, owner)
	logging.Ctx(ctx).Info().Str("listing_id", saved.ID).Str("owner_id", owner.ID).Msg("listing created")
	return saved, nil
}

// Delete removes listing id when requester owns it or holds the
// delete_any right.
func (r *Repository) Delete(ctx context.Context, id string, requester models.Identity) error {
	if requester.ID == "" {
		return apperr.ErrAuthRequired
	}
	l, err := r.records.Get(ctx, id)
	if err != nil {
		return err
	}

	by := "owner"
	if l.OwnerID != requester.ID {
		ok, err := r.authz.Allowed(requester, authz.ObjListing, authz.ActDeleteAny)
		if err != nil {
			return fmt.Errorf("authorize delete: %w", err)
		}
		if !ok {
			logging.Ctx(ctx).Warn().Str("listing_id", id).Str("requester_id", requester.ID).Msg("delete refused")
			return apperr.ErrPermission
		}
		by = "admin"
	}

	if err := r.records.Delete(ctx, id); err != nil {
		return err
	}
	listingsDeleted.WithLabelValues(by).Inc()
	r.record(ctx, l, models.EventDeleted, requester)
	r.removeImage(ctx, l)
	return nil
}

func (r *Repository) record(ctx context.Context, l *models.Listing, typ string, actor models.Identity) {
	if r.events == nil {
		return
	}
	err := r.events.Record(ctx, models.ListingEvent{
		ListingID:  l.ID,
		Type:       typ,
		ActorID:    actor.ID,
		ActorEmail: actor.Email,
		Title:      l.Title,
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("listing_id", l.ID).Msg("event log write failed")
	}
}

func (r *Repository) removeImage(ctx context.Context, l *models.Listing) {
	if r.blobs == nil || l.ImageURL == nil {
		return
	}
	name, ok := r.blobs.ObjectName(*l.ImageURL)
	if !ok {
		return
	}
	if err := r.blobs.Remove(ctx, name); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("object", name).Msg("image cleanup failed")
	}
}
