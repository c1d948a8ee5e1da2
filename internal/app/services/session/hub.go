package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrHubClosed is returned by ForDevice after Close.
var ErrHubClosed = errors.New("session hub closed")

// DefaultIdleTTL applies when NewHub is given no idle TTL.
const DefaultIdleTTL = 10 * time.Minute

type device struct {
	st     *Store
	cancel context.CancelFunc
	used   time.Time
}

// Hub owns the live Stores, one per device, and fans refresh requests out to
// every Store signed in as a given user. A Store with no subscribers that
// nobody has asked for within the idle TTL is stopped and dropped.
type Hub struct {
	watcher  Watcher
	profiles ProfileSource
	ledger   BookmarkSource
	idle     time.Duration
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	devices map[string]*device
	closed  bool
}

func NewHub(watcher Watcher, profiles ProfileSource, ledger BookmarkSource, idle time.Duration, logger *zap.Logger) *Hub {
	if idle <= 0 {
		idle = DefaultIdleTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		watcher:  watcher,
		profiles: profiles,
		ledger:   ledger,
		idle:     idle,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
		devices:  make(map[string]*device),
	}
	go h.sweepLoop()
	return h
}

// ForDevice returns the Store for deviceID, starting one if none is running.
func (h *Hub) ForDevice(deviceID string) (*Store, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	now := time.Now()
	if d, ok := h.devices[deviceID]; ok {
		select {
		case <-d.st.Done():
			d.cancel()
		default:
			d.used = now
			return d.st, nil
		}
	}

	ctx, cancel := context.WithCancel(h.ctx)
	st := New(h.watcher, h.profiles, h.ledger, h.log.With(zap.String("device_id", deviceID)))
	if err := st.Start(ctx, deviceID); err != nil {
		cancel()
		return nil, err
	}
	h.devices[deviceID] = &device{st: st, cancel: cancel, used: now}
	return st, nil
}

// Sweep stops the Stores that have no subscribers and were last handed out
// an idle TTL or more before now. It returns how many it dropped.
func (h *Hub) Sweep(now time.Time) int {
	h.mu.Lock()
	var stale []*device
	for id, d := range h.devices {
		select {
		case <-d.st.Done():
			delete(h.devices, id)
			stale = append(stale, d)
			continue
		default:
		}
		if d.st.Subscribers() == 0 && now.Sub(d.used) >= h.idle {
			delete(h.devices, id)
			stale = append(stale, d)
		}
	}
	h.mu.Unlock()

	for _, d := range stale {
		d.cancel()
	}
	return len(stale)
}

func (h *Hub) sweepLoop() {
	t := time.NewTicker(max(h.idle/2, time.Second))
	defer t.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case now := <-t.C:
			if n := h.Sweep(now); n > 0 {
				h.log.Debug("evicted idle session stores", zap.Int("count", n))
			}
		}
	}
}

// RefreshProfile refreshes the profile on every Store signed in as uid.
func (h *Hub) RefreshProfile(ctx context.Context, uid string) {
	for _, st := range h.signedInAs(uid) {
		if err := st.RefreshProfile(ctx); err != nil {
			h.log.Warn("profile refresh failed", zap.String("uid", uid), zap.Error(err))
		}
	}
}

// RefreshBookmarks refreshes the bookmark set on every Store signed in as uid.
func (h *Hub) RefreshBookmarks(ctx context.Context, uid string) {
	for _, st := range h.signedInAs(uid) {
		if err := st.RefreshBookmarks(ctx); err != nil {
			h.log.Warn("bookmark refresh failed", zap.String("uid", uid), zap.Error(err))
		}
	}
}

func (h *Hub) signedInAs(uid string) []*Store {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*Store
	for _, d := range h.devices {
		if snap := d.st.Snapshot(); snap.Identity != nil && snap.Identity.ID == uid {
			out = append(out, d.st)
		}
	}
	return out
}

// Len returns the number of live Stores.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.devices)
}

// Close stops every Store and waits for them to finish or ctx to end.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	stores := make([]*Store, 0, len(h.devices))
	for _, d := range h.devices {
		stores = append(stores, d.st)
	}
	h.devices = map[string]*device{}
	h.mu.Unlock()

	h.cancel()
	for _, st := range stores {
		select {
		case <-st.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
