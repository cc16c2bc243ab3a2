// Package form drives the create-listing form: local validation, the image
// upload, and the insert, in that order.
package form

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/homeonmap/backend/internal/apperr"
	"github.com/homeonmap/backend/internal/blob"
	"github.com/homeonmap/backend/internal/logging"
	"github.com/homeonmap/backend/internal/models"
	"github.com/homeonmap/backend/internal/validation"
)

// State of the form.
type State int

const (
	Editing State = iota
	Validating
	Uploading
	Inserting
	Success
	Failed
)

var stateNames = [...]string{"editing", "validating", "uploading", "inserting", "success", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Form is what the user typed. Price is kept as text until Submit.
type Form struct {
	Title       string
	Description string
	Price       string
	Locality    string
	Phone       string
	Role        string
	Image       *blob.File
}

// Identities reports who is signed in.
type Identities interface {
	Current() *models.Identity
}

// Uploader stores the attached image and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, f blob.File) (string, error)
}

// Creator inserts the listing.
type Creator interface {
	Create(ctx context.Context, fields models.ListingFields, owner models.Identity) (*models.Listing, error)
}

// Navigator moves the UI after a successful submit.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// ImagePolicy decides what an upload failure means.
type ImagePolicy int

const (
	// ImageRequired aborts the submit when the upload fails.
	ImageRequired ImagePolicy = iota
	// ImageOptional logs the failure and creates the listing without an
	// image.
	ImageOptional
)

// Controller is safe for concurrent use; at most one Submit runs at a time.
type Controller struct {
	identities Identities
	uploader   Uploader
	creator    Creator
	nav        Navigator
	policy     ImagePolicy
	after      []func(ctx context.Context, l *models.Listing)

	inflight atomic.Bool

	mu     sync.Mutex
	state  State
	err    error
	closed bool
}

// Option configures a Controller.
type Option func(*Controller)

func WithNavigator(n Navigator) Option { return func(c *Controller) { c.nav = n } }

func WithImagePolicy(p ImagePolicy) Option { return func(c *Controller) { c.policy = p } }

// WithAfterCreate registers a hook run after a successful insert, before
// navigation. Typical hooks refresh the map and clear its draft pin.
func WithAfterCreate(fn func(ctx context.Context, l *models.Listing)) Option {
	return func(c *Controller) { c.after = append(c.after, fn) }
}

func New(identities Identities, uploader Uploader, creator Creator, opts ...Option) *Controller {
	c := &Controller{identities: identities, uploader: uploader, creator: creator}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current state and, when Failed, the reason.
func (c *Controller) State() (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.err
}

// IsSubmitting reports whether a Submit is outstanding.
func (c *Controller) IsSubmitting() bool { return c.inflight.Load() }

// Edit returns a finished form to Editing.
func (c *Controller) Edit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Success || c.state == Failed {
		c.state = Editing
		c.err = nil
	}
}

// Close detaches the controller. A Submit finishing afterwards still
// returns its result but runs no hooks and does not navigate.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Controller) set(s State) {
	c.mu.Lock()
	if !c.closed {
		c.state = s
		c.err = nil
	}
	c.mu.Unlock()
}

func (c *Controller) fail(err error) error {
	c.mu.Lock()
	if !c.closed {
		c.state = Failed
		c.err = err
	}
	c.mu.Unlock()
	return err
}

// Submit validates f, uploads its image if any, and creates the listing at
// pin. A Submit issued while another is outstanding fails with
// apperr.ErrSubmitInProgress.
func (c *Controller) Submit(ctx context.Context, f Form, pin *models.Pin) (*models.Listing, error) {
	if !c.inflight.CompareAndSwap(false, true) {
		return nil, apperr.ErrSubmitInProgress
	}
	defer c.inflight.Store(false)

	c.set(Validating)

	owner := c.identities.Current()
	if owner == nil {
		return nil, c.fail(apperr.ErrAuthRequired)
	}
	if pin == nil {
		return nil, c.fail(apperr.ErrLocationRequired)
	}
	fields, err := buildFields(f, *pin)
	if err != nil {
		return nil, c.fail(err)
	}

	if f.Image != nil {
		c.set(Uploading)
		url, err := c.uploader.Upload(ctx, *f.Image)
		switch {
		case err == nil:
			fields.ImageURL = &url
		case c.policy == ImageOptional:
			logging.Ctx(ctx).Warn().Err(err).Msg("image upload failed, creating listing without image")
		default:
			return nil, c.fail(asUploadError(err))
		}
	}

	c.set(Inserting)
	saved, err := c.creator.Create(ctx, fields, *owner)
	if err != nil {
		return nil, c.fail(err)
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return saved, nil
	}

	for _, fn := range c.after {
		fn(ctx, saved)
	}
	c.set(Success)
	if c.nav != nil {
		c.nav.Navigate("/")
	}
	return saved, nil
}

// buildFields parses and checks the form locally so obviously bad input
// never reaches the network.
func buildFields(f Form, pin models.Pin) (models.ListingFields, error) {
	price, err := parsePrice(f.Price)
	if err != nil {
		return models.ListingFields{}, err
	}
	fields := models.ListingFields{
		Title:       f.Title,
		Description: strings.TrimSpace(f.Description),
		Price:       price,
		Locality:    f.Locality,
		Phone:       f.Phone,
		Role:        f.Role,
		Lat:         pin.Lat,
		Lng:         pin.Lng,
	}
	if err := validation.Listing(&fields); err != nil {
		return fields, err
	}
	return fields, nil
}

func parsePrice(raw string) (int64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return 0, apperr.Invalid("price", "is required")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, apperr.Invalid("price", "must be a whole number of rupees")
	}
	if n <= 0 {
		return 0, apperr.Invalid("price", "must be greater than 0")
	}
	return n, nil
}

func asUploadError(err error) error {
	var ue *apperr.UploadError
	if errors.As(err, &ue) {
		return err
	}
	return &apperr.UploadError{Reason: fmt.Sprintf("image upload: %v", err), Err: err}
}
