package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sociodev/sociodev/internal/app/services/accounts"
	"github.com/sociodev/sociodev/internal/app/services/bookmarks"
	"github.com/sociodev/sociodev/internal/app/services/session"
	"github.com/sociodev/sociodev/internal/app/system/auth"
	"github.com/sociodev/sociodev/internal/app/system/txn"
	"github.com/sociodev/sociodev/internal/domain/models"
	"github.com/sociodev/sociodev/internal/testutil/authtest"
	"github.com/sociodev/sociodev/internal/testutil/memstore"
	"go.uber.org/zap"
)

type env struct {
	mem       *memstore.Store
	provider  *auth.Provider
	accounts  *accounts.Service
	bookmarks *bookmarks.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mem := memstore.New()
	p := authtest.NewProvider(t, mem)
	return &env{
		mem:       mem,
		provider:  p,
		accounts:  accounts.New(p, mem.Users, txn.Direct{}, zap.NewNop()),
		bookmarks: bookmarks.New(mem.Users, mem.Articles, txn.Direct{}, zap.NewNop()),
	}
}

func (e *env) start(t *testing.T, deviceID string) *session.Store {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	st := session.New(e.provider, e.accounts, e.bookmarks, zap.NewNop())
	if err := st.Start(ctx, deviceID); err != nil {
		cancel()
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		<-st.Done()
	})
	select {
	case <-st.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("store never became ready")
	}
	return st
}

// waitFor reads snapshots until ok accepts one.
func waitFor(t *testing.T, st *session.Store, ok func(session.Snapshot) bool) session.Snapshot {
	t.Helper()
	ch := st.Subscribe()
	defer st.Unsubscribe(ch)
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap, open := <-ch:
			if !open {
				t.Fatal("snapshot feed closed")
			}
			if ok(snap) {
				return snap
			}
		case <-timeout:
			t.Fatalf("timed out; last snapshot %+v", st.Snapshot())
		}
	}
}

func inState(s session.State) func(session.Snapshot) bool {
	return func(snap session.Snapshot) bool { return snap.State == s }
}

func TestStore_LoadingBeforeFirstNotification(t *testing.T) {
	e := newEnv(t)
	st := session.New(e.provider, e.accounts, e.bookmarks, zap.NewNop())

	snap := st.Snapshot()
	if !snap.Loading || snap.State != session.StateUnauthenticated {
		t.Errorf("initial snapshot: %+v", snap)
	}
}

func TestStore_SignedOutDevice(t *testing.T) {
	e := newEnv(t)
	st := e.start(t, "phone")

	snap := st.Snapshot()
	if snap.Loading {
		t.Error("expected loading to be false after first notification")
	}
	if snap.State != session.StateUnauthenticated || snap.Identity != nil || snap.Profile != nil {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.Bookmarks == nil || len(snap.Bookmarks) != 0 {
		t.Errorf("bookmarks: got %v, want empty", snap.Bookmarks)
	}
}

func TestStore_FollowsSignInAndOut(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	profile, _, err := e.accounts.Register(ctx, "alice@x.com", "password123", "alice", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	e.mem.Articles.Put(models.Article{ID: "art", Title: "t", Content: "c", CreatedAt: time.Now()})
	if err := e.bookmarks.Add(ctx, profile.ID, "art"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	st := e.start(t, "phone")

	_, token, err := e.accounts.SignIn(ctx, "alice@x.com", "password123", "phone")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	snap := waitFor(t, st, inState(session.StateAuthenticated))
	if snap.Identity == nil || snap.Identity.ID != profile.ID {
		t.Fatalf("identity: got %+v", snap.Identity)
	}
	if snap.Profile == nil || snap.Profile.ID != profile.ID {
		t.Errorf("profile: got %+v", snap.Profile)
	}
	if len(snap.Bookmarks) != 1 || snap.Bookmarks[0] != "art" {
		t.Errorf("bookmarks: got %v", snap.Bookmarks)
	}
	if snap.Loading {
		t.Error("loading must not turn true again")
	}

	if _, err := e.accounts.SignOut(ctx, token); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	snap = waitFor(t, st, inState(session.StateUnauthenticated))
	if snap.Identity != nil || snap.Profile != nil || len(snap.Bookmarks) != 0 {
		t.Errorf("expected an empty snapshot, got %+v", snap)
	}
}

func TestStore_OtherDeviceIsIgnored(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, _, err := e.accounts.Register(ctx, "alice@x.com", "password123", "alice", ""); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	st := e.start(t, "phone")
	before := st.Snapshot().Version

	if _, _, err := e.accounts.SignIn(ctx, "alice@x.com", "password123", "tablet"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	snap := st.Snapshot()
	if snap.State != session.StateUnauthenticated || snap.Version != before {
		t.Errorf("phone store reacted to tablet sign-in: %+v", snap)
	}
}

func TestStore_FetchFailureIsRecorded(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	profile, _, err := e.accounts.Register(ctx, "alice@x.com", "password123", "alice", "")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	st := e.start(t, "phone")

	boom := errors.New("profile read failed")
	e.mem.FailOn("users.GetByID", boom)
	if _, _, err := e.accounts.SignIn(ctx, "alice@x.com", "password123", "phone"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}

	snap := waitFor(t, st, inState(session.StateError))
	if !errors.Is(snap.Err, boom) || snap.Error == "" {
		t.Errorf("expected the fetch error to be recorded, got %v", snap.Err)
	}
	if snap.Profile != nil {
		t.Errorf("expected no profile, got %+v", snap.Profile)
	}
	if snap.Identity == nil || snap.Identity.ID != profile.ID {
		t.Errorf("identity should survive a fetch failure: %+v", snap.Identity)
	}

	e.mem.FailOn("users.GetByID", nil)
	if err := st.RefreshProfile(ctx); err != nil {
		t.Fatalf("RefreshProfile failed: %v", err)
	}
	snap = st.Snapshot()
	if snap.State != session.StateAuthenticated || snap.Profile == nil || snap.Err != nil {
		t.Errorf("expected recovery, got %+v", snap)
	}
}

func TestStore_RefreshBookmarks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	profile, _, err := e.accounts.Register(ctx, "alice@x.com", "password123", "alice", "phone")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	st := e.start(t, "phone")
	waitFor(t, st, inState(session.StateAuthenticated))

	e.mem.Articles.Put(models.Article{ID: "art", Title: "t", Content: "c", CreatedAt: time.Now()})
	if err := e.bookmarks.Add(ctx, profile.ID, "art"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if got := st.Snapshot().Bookmarks; len(got) != 0 {
		t.Fatalf("bookmarks changed without a refresh: %v", got)
	}

	if err := st.RefreshBookmarks(ctx); err != nil {
		t.Fatalf("RefreshBookmarks failed: %v", err)
	}
	if got := st.Snapshot().Bookmarks; len(got) != 1 || got[0] != "art" {
		t.Errorf("bookmarks: got %v", got)
	}
}

func TestStore_RefreshWhileSignedOutIsNoop(t *testing.T) {
	e := newEnv(t)
	st := e.start(t, "phone")
	before := st.Snapshot().Version

	if err := st.RefreshProfile(context.Background()); err != nil {
		t.Fatalf("RefreshProfile failed: %v", err)
	}
	if v := st.Snapshot().Version; v != before {
		t.Errorf("version moved from %d to %d", before, v)
	}
}

func TestStore_StartTwice(t *testing.T) {
	e := newEnv(t)
	st := e.start(t, "phone")
	if err := st.Start(context.Background(), "phone"); err == nil {
		t.Error("expected an error on second Start")
	}
}

/* -------------------------------------------------------------------------- */
/* stale refresh                                                              */
/* -------------------------------------------------------------------------- */

type chanWatcher struct{ ch chan auth.Change }

func (w chanWatcher) Watch(context.Context, string) (<-chan auth.Change, error) { return w.ch, nil }

// gatedProfiles blocks GetProfile while gate is set.
type gatedProfiles struct {
	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
}

func (g *gatedProfiles) GetProfile(_ context.Context, uid string) (*models.User, error) {
	g.mu.Lock()
	gate, entered := g.gate, g.entered
	g.mu.Unlock()
	if gate != nil {
		close(entered)
		<-gate
	}
	return &models.User{ID: uid}, nil
}

type noBookmarks struct{}

func (noBookmarks) GetBookmarks(context.Context, string) ([]string, error) { return []string{}, nil }

func TestStore_RefreshDoesNotOutliveSignOut(t *testing.T) {
	w := chanWatcher{ch: make(chan auth.Change, 1)}
	profiles := &gatedProfiles{}
	st := session.New(w, profiles, noBookmarks{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := st.Start(ctx, "phone"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		close(w.ch)
		<-st.Done()
	}()

	w.ch <- auth.Change{DeviceID: "phone", Identity: &models.Identity{ID: "u1"}}
	waitFor(t, st, inState(session.StateAuthenticated))

	gate, entered := make(chan struct{}), make(chan struct{})
	profiles.mu.Lock()
	profiles.gate, profiles.entered = gate, entered
	profiles.mu.Unlock()

	refreshed := make(chan error, 1)
	go func() { refreshed <- st.RefreshProfile(ctx) }()
	<-entered

	w.ch <- auth.Change{DeviceID: "phone"}
	waitFor(t, st, inState(session.StateUnauthenticated))

	close(gate)
	if err := <-refreshed; err != nil {
		t.Fatalf("RefreshProfile failed: %v", err)
	}
	snap := st.Snapshot()
	if snap.State != session.StateUnauthenticated || snap.Profile != nil {
		t.Errorf("stale refresh resurrected the profile: %+v", snap)
	}
}
