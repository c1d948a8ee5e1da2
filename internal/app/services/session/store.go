// Package session keeps, per device, the signed-in identity together with its
// profile and bookmark set, and republishes them whenever the auth provider
// reports a sign-in or sign-out.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/sociodev/sociodev/internal/app/system/auth"
	"github.com/sociodev/sociodev/internal/domain/models"
	"go.uber.org/zap"
)

// State is the position of a Store in its auth state machine.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateError:
		return "error"
	}
	return "unknown"
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Snapshot is one consistent view of a Store. Identity, Profile and
// Bookmarks always belong to the same sign-in.
type Snapshot struct {
	State     State            `json:"state"`
	Identity  *models.Identity `json:"identity"`
	Profile   *models.User     `json:"profile"`
	Bookmarks []string         `json:"bookmarks"`
	Loading   bool             `json:"loading"`
	Err       error            `json:"-"`
	Error     string           `json:"error,omitempty"`
	Version   uint64           `json:"version"`
}

// Watcher streams auth changes for a device, current state first.
type Watcher interface {
	Watch(ctx context.Context, deviceID string) (<-chan auth.Change, error)
}

// ProfileSource returns a profile or nil when none exists.
type ProfileSource interface {
	GetProfile(ctx context.Context, uid string) (*models.User, error)
}

// BookmarkSource returns a user's bookmark set.
type BookmarkSource interface {
	GetBookmarks(ctx context.Context, uid string) ([]string, error)
}

var errStarted = errors.New("session store already started")

// Store is the session state of one device.
type Store struct {
	watcher  Watcher
	profiles ProfileSource
	ledger   BookmarkSource
	log      *zap.Logger

	mu          sync.Mutex
	snap        Snapshot
	gen         uint64 // bumped on every auth change; stale fetches compare against it
	profileErr  error
	bookmarkErr error
	subs        map[chan Snapshot]struct{}
	started     bool
	stopped     bool

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

func New(watcher Watcher, profiles ProfileSource, ledger BookmarkSource, logger *zap.Logger) *Store {
	return &Store{
		watcher:  watcher,
		profiles: profiles,
		ledger:   ledger,
		log:      logger,
		snap:     Snapshot{State: StateUnauthenticated, Bookmarks: []string{}, Loading: true},
		subs:     make(map[chan Snapshot]struct{}),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start subscribes to auth changes for deviceID. The Store runs until ctx is
// done; Done is closed afterwards.
func (s *Store) Start(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errStarted
	}
	s.started = true
	s.mu.Unlock()

	changes, err := s.watcher.Watch(ctx, deviceID)
	if err != nil {
		s.stop()
		return err
	}
	go func() {
		defer s.stop()
		for c := range changes {
			s.apply(ctx, c)
		}
	}()
	return nil
}

// Ready is closed once the first auth notification has been applied.
func (s *Store) Ready() <-chan struct{} { return s.ready }

// Done is closed when the Store stops following auth changes.
func (s *Store) Done() <-chan struct{} { return s.done }

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe returns a feed of snapshots, starting with the current one. A
// slow reader only ever sees the latest snapshot. The channel is closed by
// Unsubscribe or when the Store stops.
func (s *Store) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	ch <- s.snap
	if s.stopped {
		close(ch)
		return ch
	}
	s.subs[ch] = struct{}{}
	return ch
}

// Subscribers returns the number of open Subscribe feeds.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Unsubscribe stops and closes ch.
func (s *Store) Unsubscribe(ch chan Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

// RefreshProfile re-reads the profile of the signed-in user and republishes.
// It is a no-op when signed out.
func (s *Store) RefreshProfile(ctx context.Context) error {
	return s.refresh(ctx, func(ctx context.Context, uid string) func(*Store) {
		p, err := s.profiles.GetProfile(ctx, uid)
		return func(s *Store) {
			s.snap.Profile, s.profileErr = p, err
			if err != nil {
				s.snap.Profile = nil
			}
		}
	})
}

// RefreshBookmarks re-reads the bookmark set of the signed-in user and
// republishes.
func (s *Store) RefreshBookmarks(ctx context.Context) error {
	return s.refresh(ctx, func(ctx context.Context, uid string) func(*Store) {
		ids, err := s.ledger.GetBookmarks(ctx, uid)
		return func(s *Store) {
			s.snap.Bookmarks, s.bookmarkErr = orEmpty(ids, err), err
		}
	})
}

// refresh runs fetch outside the lock and applies its result only if no auth
// change happened in between.
func (s *Store) refresh(ctx context.Context, fetch func(context.Context, string) func(*Store)) error {
	s.mu.Lock()
	if s.snap.Identity == nil {
		s.mu.Unlock()
		return nil
	}
	gen, uid := s.gen, s.snap.Identity.ID
	s.mu.Unlock()

	set := fetch(ctx, uid)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	set(s)
	s.settle()
	s.publish()
	return s.snap.Err
}

func (s *Store) apply(ctx context.Context, c auth.Change) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.profileErr, s.bookmarkErr = nil, nil

	if !c.SignedIn() {
		s.snap = Snapshot{State: StateUnauthenticated, Bookmarks: []string{}, Version: s.snap.Version}
		s.publish()
		s.markReady()
		s.mu.Unlock()
		return
	}

	id := *c.Identity
	s.snap = Snapshot{
		State:     StateAuthenticating,
		Identity:  &id,
		Bookmarks: []string{},
		Loading:   s.snap.Loading,
		Version:   s.snap.Version,
	}
	s.publish()
	s.mu.Unlock()

	profile, perr := s.profiles.GetProfile(ctx, id.ID)
	ids, berr := s.ledger.GetBookmarks(ctx, id.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.snap.Profile, s.profileErr = profile, perr
	if perr != nil {
		s.snap.Profile = nil
	}
	s.snap.Bookmarks, s.bookmarkErr = orEmpty(ids, berr), berr
	s.snap.Loading = false
	s.settle()
	s.publish()
	s.markReady()
}

// settle derives State and Err from the fetch outcomes. Callers hold mu.
func (s *Store) settle() {
	s.snap.Err = errors.Join(s.profileErr, s.bookmarkErr)
	s.snap.Error = ""
	if s.snap.Err != nil {
		s.snap.State = StateError
		s.snap.Error = s.snap.Err.Error()
		s.log.Warn("session data fetch failed",
			zap.String("uid", s.snap.Identity.ID),
			zap.Error(s.snap.Err))
		return
	}
	s.snap.State = StateAuthenticated
}

// publish bumps the version and hands the snapshot to every subscriber,
// replacing one it has not read yet. Callers hold mu.
func (s *Store) publish() {
	s.snap.Version++
	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.snap
	}
}

func (s *Store) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Store) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
	close(s.done)
}

func orEmpty(ids []string, err error) []string {
	if err != nil || ids == nil {
		return []string{}
	}
	return ids
}
