// Package mapview is the client-side model behind the map screen: the
// rendered listings, the selected marker, and the draft pin used when
// creating a listing.
package mapview

import (
	"context"
	"math"
	"sync"

	"github.com/homeonmap/backend/internal/apperr"
	"github.com/homeonmap/backend/internal/logging"
	"github.com/homeonmap/backend/internal/models"
)

// Mode selects what a map click does.
type Mode int

const (
	ModeBrowse Mode = iota
	ModeCreate
)

func (m Mode) String() string {
	if m == ModeCreate {
		return "create"
	}
	return "browse"
}

// Marker icons.
const (
	IconOwner  = "owner"
	IconDealer = "dealer"
)

// Marker is one pin on the map surface.
type Marker struct {
	ID   string  `json:"id"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Icon string  `json:"icon"`
}

// IconFor returns the badge for a listing role. Dealers and brokers share
// one icon.
func IconFor(role string) string {
	switch role {
	case models.RoleDealer, models.RoleBroker:
		return IconDealer
	}
	return IconOwner
}

// Source is where listings come from and go to.
type Source interface {
	List(ctx context.Context, f models.ListingFilter) ([]models.Listing, error)
	Delete(ctx context.Context, id string, requester models.Identity) error
}

// Snapshot is the read model handed to the renderer.
type Snapshot struct {
	Listings []models.Listing `json:"listings"`
	Selected *models.Listing  `json:"selected"`
	DraftPin *models.Pin      `json:"draft_pin"`
	Center   models.Pin       `json:"center"`
	Zoom     int              `json:"zoom"`
	Mode     string           `json:"mode"`
}

// ViewModel is safe for concurrent use.
type ViewModel struct {
	source Source
	filter models.ListingFilter

	mu       sync.Mutex
	listings []models.Listing
	selected string
	draft    *models.Pin
	mode     Mode
	center   models.Pin
	zoom     int
	gen      uint64
	closed   bool
}

// New returns an empty view model; call Refresh to load it.
func New(source Source, filter models.ListingFilter) *ViewModel {
	return &ViewModel{source: source, filter: filter, center: DefaultCenter, zoom: DefaultZoom}
}

// SetMode switches between browsing and creating. Leaving create mode
// drops the draft pin.
func (v *ViewModel) SetMode(m Mode) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mode = m
	if m != ModeCreate {
		v.draft = nil
	}
}

// OnMapClick places the draft pin in create mode. Non-finite coordinates
// and clicks in browse mode are ignored.
func (v *ViewModel) OnMapClick(p models.Pin) {
	if !finite(p.Lat) || !finite(p.Lng) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mode != ModeCreate {
		return
	}
	v.draft = &models.Pin{Lat: p.Lat, Lng: p.Lng}
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// DraftPin returns a copy of the draft pin, or nil.
func (v *ViewModel) DraftPin() *models.Pin {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.draft == nil {
		return nil
	}
	p := *v.draft
	return &p
}

// ClearDraft drops the draft pin.
func (v *ViewModel) ClearDraft() {
	v.mu.Lock()
	v.draft = nil
	v.mu.Unlock()
}

// OnMarkerClick selects listing id. Selecting the current selection again
// is a no-op.
func (v *ViewModel) OnMarkerClick(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.indexOf(id) < 0 {
		return apperr.ErrNotFound
	}
	v.selected = id
	return nil
}

// OnDeselect clears the selection.
func (v *ViewModel) OnDeselect() {
	v.mu.Lock()
	v.selected = ""
	v.mu.Unlock()
}

// PanTo recenters on a gazetteer preset. Selection and draft pin are kept.
func (v *ViewModel) PanTo(name string) error {
	p, err := LookupPreset(name)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.center = p.Center
	v.mu.Unlock()
	return nil
}

// Markers returns one marker per rendered listing.
func (v *ViewModel) Markers() []Marker {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Marker, len(v.listings))
	for i, l := range v.listings {
		out[i] = Marker{ID: l.ID, Lat: l.Lat, Lng: l.Lng, Icon: IconFor(l.Role)}
	}
	return out
}

// Refresh reloads the listings. A response that arrives after Close or
// after a newer Refresh started is dropped.
func (v *ViewModel) Refresh(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.gen++
	gen := v.gen
	v.mu.Unlock()

	out, err := v.source.List(ctx, v.filter)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || gen != v.gen {
		logging.Debug().Uint64("generation", gen).Msg("dropping stale listing response")
		return nil
	}
	v.listings = out
	if v.selected != "" && v.indexOf(v.selected) < 0 {
		v.selected = ""
	}
	return nil
}

// DeleteListing removes id from the view before the source confirms. On
// any error the previous set is restored and then reloaded from the
// source, and the error is returned.
func (v *ViewModel) DeleteListing(ctx context.Context, id string, requester models.Identity) error {
	v.mu.Lock()
	idx := v.indexOf(id)
	if idx < 0 {
		v.mu.Unlock()
		return apperr.ErrNotFound
	}
	prevListings := v.listings
	prevSelected := v.selected

	next := make([]models.Listing, 0, len(v.listings)-1)
	next = append(next, v.listings[:idx]...)
	next = append(next, v.listings[idx+1:]...)
	v.listings = next
	if v.selected == id {
		v.selected = ""
	}
	v.gen++
	v.mu.Unlock()

	if err := v.source.Delete(ctx, id, requester); err != nil {
		v.mu.Lock()
		if !v.closed {
			v.listings = prevListings
			v.selected = prevSelected
		}
		v.mu.Unlock()
		if rerr := v.Refresh(ctx); rerr != nil {
			logging.Warn().Err(rerr).Msg("reload after failed delete")
		}
		return err
	}

	if err := v.Refresh(ctx); err != nil {
		logging.Warn().Err(err).Msg("reload after delete")
	}
	return nil
}

// Close unmounts the view. Later responses are ignored.
func (v *ViewModel) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (v *ViewModel) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := Snapshot{
		Listings: make([]models.Listing, len(v.listings)),
		Center:   v.center,
		Zoom:     v.zoom,
		Mode:     v.mode.String(),
	}
	copy(s.Listings, v.listings)
	if i := v.indexOf(v.selected); v.selected != "" && i >= 0 {
		l := v.listings[i]
		s.Selected = &l
	}
	if v.draft != nil {
		p := *v.draft
		s.DraftPin = &p
	}
	return s
}

func (v *ViewModel) indexOf(id string) int {
	for i := range v.listings {
		if v.listings[i].ID == id {
			return i
		}
	}
	return -1
}
