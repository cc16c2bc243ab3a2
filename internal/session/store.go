// Package session tracks the client's view of the signed-in identity.
//
// The store starts Unknown, moves to Restoring on the first Restore and
// settles on Authenticated or Anonymous once the provider answers or the
// retry budget runs out.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/homeonmap/backend/internal/logging"
	"github.com/homeonmap/backend/internal/models"
)

// State is the session lifecycle.
type State int

const (
	Unknown State = iota
	Restoring
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Restoring:
		return "restoring"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// IdentityProvider is the remote authority for the session.
type IdentityProvider interface {
	// GetSession returns the current identity, or nil when there is none
	// yet.
	GetSession(ctx context.Context) (*models.Identity, error)
	// SignInWithRedirect returns the URL the user must visit to sign in.
	SignInWithRedirect(ctx context.Context, returnTo string) (string, error)
	SignOut(ctx context.Context) error
}

// ChangeNotifier is implemented by providers that push identity changes.
type ChangeNotifier interface {
	OnChange(func(*models.Identity)) (unsubscribe func())
}

// RetryPolicy bounds Restore. Attempts counts every call to the provider,
// the first one included.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy covers the window in which a freshly redirected
// session is not yet visible to the provider.
var DefaultRetryPolicy = RetryPolicy{Attempts: 5, Delay: 400 * time.Millisecond}

// Sleeper waits between restore attempts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DefaultIntentTTL discards login intents older than this.
const DefaultIntentTTL = 10 * time.Minute

// Store owns the client identity. Only Store mutates it; everyone else
// reads Current or subscribes.
type Store struct {
	provider  IdentityProvider
	intents   IntentStore
	retry     RetryPolicy
	sleeper   Sleeper
	now       func() time.Time
	intentTTL time.Duration
	mode      string

	mu       sync.Mutex
	state    State
	identity *models.Identity
	subs     map[int]func(*models.Identity)
	nextSub  int
	unwatch  func()
}

// Option configures a Store.
type Option func(*Store)

func WithRetryPolicy(p RetryPolicy) Option { return func(s *Store) { s.retry = p } }

func WithSleeper(sl Sleeper) Option { return func(s *Store) { s.sleeper = sl } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithIntentTTL(d time.Duration) Option { return func(s *Store) { s.intentTTL = d } }

// WithLoginMode sets the mode recorded on login intents. Default browser.
func WithLoginMode(mode string) Option { return func(s *Store) { s.mode = mode } }

// New returns a Store in the Unknown state. When provider also implements
// ChangeNotifier its pushes are applied through the store.
func New(provider IdentityProvider, intents IntentStore, opts ...Option) *Store {
	s := &Store{
		provider:  provider,
		intents:   intents,
		retry:     DefaultRetryPolicy,
		sleeper:   timerSleeper{},
		now:       time.Now,
		intentTTL: DefaultIntentTTL,
		mode:      models.ModeBrowser,
		subs:      make(map[int]func(*models.Identity)),
	}
	for _, o := range opts {
		o(s)
	}
	if s.retry.Attempts < 1 {
		s.retry.Attempts = 1
	}
	if n, ok := provider.(ChangeNotifier); ok {
		s.unwatch = n.OnChange(s.apply)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns a copy of the signed-in identity, or nil.
func (s *Store) Current() *models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyIdentity(s.identity)
}

func copyIdentity(id *models.Identity) *models.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

// Subscribe registers cb for every identity change. The returned function
// stops delivery.
func (s *Store) Subscribe(cb func(*models.Identity)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = cb
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Restore asks the provider for the session, retrying per the policy.
// A nil answer or a provider error counts as a failed attempt. The store
// ends Authenticated or Anonymous.
//
// Only a store that is still Unknown reports Restoring. A later Restore
// re-checks the provider while State keeps the settled value until the
// answer is applied.
func (s *Store) Restore(ctx context.Context) (*models.Identity, error) {
	s.mu.Lock()
	if s.state == Unknown {
		s.state = Restoring
	}
	s.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= s.retry.Attempts; attempt++ {
		id, err := s.provider.GetSession(ctx)
		if err == nil && id != nil {
			s.apply(id)
			return copyIdentity(id), nil
		}
		if err != nil {
			lastErr = err
			logging.Debug().Err(err).Int("attempt", attempt).Msg("session restore attempt failed")
		}
		if attempt == s.retry.Attempts {
			break
		}
		if err := s.sleeper.Sleep(ctx, s.retry.Delay); err != nil {
			lastErr = err
			break
		}
	}

	s.apply(nil)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if lastErr != nil {
		logging.Info().Err(lastErr).Int("attempts", s.retry.Attempts).Msg("session restore gave up")
	}
	return nil, nil
}

// Login records where to go after sign-in and returns the provider URL.
func (s *Store) Login(ctx context.Context, returnTo string) (string, error) {
	intent := models.PendingIntent{ReturnTo: returnTo, Mode: s.mode, CreatedAt: s.now().UTC()}
	if err := s.intents.Save(intent); err != nil {
		return "", fmt.Errorf("save intent: %w", err)
	}
	url, err := s.provider.SignInWithRedirect(ctx, returnTo)
	if err != nil {
		if cerr := s.intents.Clear(); cerr != nil {
			logging.Warn().Err(cerr).Msg("clear intent after failed sign-in")
		}
		return "", fmt.Errorf("sign in: %w", err)
	}
	return url, nil
}

// ConsumeIntent returns and clears the pending intent. Stale and
// undecodable intents are cleared and not returned.
func (s *Store) ConsumeIntent() (*models.PendingIntent, error) {
	in, err := s.intents.Load()
	if errors.Is(err, ErrCorruptIntent) {
		logging.Warn().Err(err).Msg("discarding unreadable login intent")
		if cerr := s.intents.Clear(); cerr != nil {
			return nil, fmt.Errorf("clear intent: %w", cerr)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, nil
	}
	if err := s.intents.Clear(); err != nil {
		return nil, fmt.Errorf("clear intent: %w", err)
	}
	if in.Expired(s.now(), s.intentTTL) {
		logging.Debug().Time("created_at", in.CreatedAt).Msg("discarding stale login intent")
		return nil, nil
	}
	return in, nil
}

// Logout revokes the session. The local state becomes Anonymous even when
// the provider call fails.
func (s *Store) Logout(ctx context.Context) error {
	err := s.provider.SignOut(ctx)
	s.apply(nil)
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Close stops listening to provider pushes.
func (s *Store) Close() {
	s.mu.Lock()
	unwatch := s.unwatch
	s.unwatch = nil
	s.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
}

// apply moves to Authenticated or Anonymous and notifies subscribers when
// anything changed.
func (s *Store) apply(id *models.Identity) {
	s.mu.Lock()
	next := Anonymous
	if id != nil {
		next = Authenticated
	}
	changed := s.state != next || !sameIdentity(s.identity, id)
	s.state = next
	s.identity = copyIdentity(id)

	var cbs []func(*models.Identity)
	if changed {
		cbs = make([]func(*models.Identity), 0, len(s.subs))
		for _, cb := range s.subs {
			cbs = append(cbs, cb)
		}
	}
	s.mu.Unlock()

	for _, cb := range cbs {
		cb(copyIdentity(id))
	}
}

func sameIdentity(a, b *models.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
