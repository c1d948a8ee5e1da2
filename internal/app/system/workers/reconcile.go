package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	userstore "github.com/sociodev/sociodev/internal/app/store/users"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/app/system/timeouts"
	"github.com/sociodev/sociodev/internal/app/system/txn"
	"github.com/sociodev/sociodev/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Profiles is what the reconcile pass reads and repairs on the users side.
type Profiles interface {
	BookmarkCounts(ctx context.Context) (map[string]int64, error)
	FollowGraph(ctx context.Context) ([]models.User, error)
	GetByID(ctx context.Context, uid string) (*models.User, error)
	AddToSet(ctx context.Context, uid, field, value string) (bool, error)
	Pull(ctx context.Context, uid, field, value string) (bool, error)
}

// Counters exposes the stored saved counts.
type Counters interface {
	SavedCounts(ctx context.Context) (map[string]int64, error)
	SetSavedCount(ctx context.Context, id string, n int64) error
}

// SessionExpirer closes sessions past their expiry.
type SessionExpirer interface {
	ExpireSessions(ctx context.Context, now time.Time) (int, error)
}

// Report counts the repairs made by one pass.
type Report struct {
	CountsFixed     int
	EdgesFixed      int
	SessionsExpired int
}

// Reconcile is a background worker that repairs what non-transactional
// writes may leave behind: saved counts that disagree with the bookmark
// sets, follow edges recorded on one side only, and sessions past expiry.
// Every pass is idempotent.
//
// A one-sided edge is also what a follow or unfollow looks like between its
// two writes, so an edge is only repaired once neither profile has been
// written for a unit of work's deadline (timeouts.Long).
type Reconcile struct {
	profiles Profiles
	counters Counters
	sessions SessionExpirer
	tx       txn.Runner
	log      *zap.Logger
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewReconcile(profiles Profiles, counters Counters, sessions SessionExpirer, tx txn.Runner, logger *zap.Logger, interval time.Duration) *Reconcile {
	return &Reconcile{
		profiles: profiles,
		counters: counters,
		sessions: sessions,
		tx:       tx,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background loop.
func (w *Reconcile) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("reconcile worker started", zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *Reconcile) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("reconcile worker stopped")
}

func (w *Reconcile) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), timeouts.Batch())
			rep, err := w.RunOnce(ctx)
			cancel()
			if err != nil {
				w.log.Error("reconcile pass failed", zap.Error(err))
				continue
			}
			if rep != (Report{}) {
				w.log.Info("reconcile pass repaired data",
					zap.Int("counts_fixed", rep.CountsFixed),
					zap.Int("edges_fixed", rep.EdgesFixed),
					zap.Int("sessions_expired", rep.SessionsExpired))
			}
		}
	}
}

// RunOnce performs one pass. The three repairs run concurrently.
func (w *Reconcile) RunOnce(ctx context.Context) (Report, error) {
	var rep Report
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rep.CountsFixed, err = w.fixCounts(ctx)
		return err
	})
	g.Go(func() (err error) {
		rep.EdgesFixed, err = w.fixEdges(ctx)
		return err
	})
	g.Go(func() (err error) {
		rep.SessionsExpired, err = w.sessions.ExpireSessions(ctx, time.Now().UTC())
		return err
	})
	err := g.Wait()
	return rep, err
}

func (w *Reconcile) fixCounts(ctx context.Context) (int, error) {
	var stored, actual map[string]int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stored, err = w.counters.SavedCounts(gctx)
		return err
	})
	g.Go(func() (err error) {
		actual, err = w.profiles.BookmarkCounts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}

	fixed := 0
	for id, have := range stored {
		if want := actual[id]; want != have {
			if err := w.counters.SetSavedCount(ctx, id, want); err != nil {
				return fixed, err
			}
			w.log.Debug("saved count repaired", zap.String("article_id", id), zap.Int64("was", have), zap.Int64("now", want))
			fixed++
		}
	}
	return fixed, nil
}

// edge is one recorded side of a follow: other in uid's field, expected to
// be mirrored as uid in other's mirror field.
type edge struct {
	uid, field, other, mirror string
}

func (w *Reconcile) fixEdges(ctx context.Context) (int, error) {
	graph, err := w.profiles.FollowGraph(ctx)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]*models.User, len(graph))
	for i := range graph {
		byID[graph[i].ID] = &graph[i]
	}
	mirrored := func(uid, field, other string) bool {
		v, ok := byID[other]
		return ok && other != uid && holds(v, field, uid)
	}

	var suspects []edge
	for _, u := range graph {
		for _, v := range u.Following {
			if !mirrored(u.ID, userstore.FieldFollowers, v) {
				suspects = append(suspects, edge{u.ID, userstore.FieldFollowing, v, userstore.FieldFollowers})
			}
		}
		for _, v := range u.Followers {
			if !mirrored(u.ID, userstore.FieldFollowing, v) {
				suspects = append(suspects, edge{u.ID, userstore.FieldFollowers, v, userstore.FieldFollowing})
			}
		}
	}

	fixed := 0
	cutoff := time.Now().UTC().Add(-timeouts.Long())
	for _, e := range suspects {
		var changed bool
		err := w.tx.Run(ctx, func(ctx context.Context) (err error) {
			changed, err = w.repairEdge(ctx, e, cutoff)
			return err
		})
		if err != nil {
			return fixed, err
		}
		if changed {
			w.log.Debug("follow edge repaired", zap.String("uid", e.uid), zap.String("field", e.field), zap.String("other", e.other))
			fixed++
		}
	}
	return fixed, nil
}

// repairEdge re-reads both ends of a suspect edge and repairs it only if it
// is still one-sided and neither profile was written after cutoff.
func (w *Reconcile) repairEdge(ctx context.Context, e edge, cutoff time.Time) (bool, error) {
	if e.uid == e.other {
		return w.profiles.Pull(ctx, e.uid, e.field, e.other)
	}

	u, err := w.profiles.GetByID(ctx, e.uid)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !holds(u, e.field, e.other) || u.UpdatedAt.After(cutoff) {
		return false, nil
	}

	v, err := w.profiles.GetByID(ctx, e.other)
	if errors.Is(err, apperr.ErrNotFound) {
		// The other account is gone; drop the dangling id.
		return w.profiles.Pull(ctx, e.uid, e.field, e.other)
	}
	if err != nil {
		return false, err
	}
	if holds(v, e.mirror, e.uid) || v.UpdatedAt.After(cutoff) {
		return false, nil
	}
	return w.profiles.AddToSet(ctx, e.other, e.mirror, e.uid)
}

func holds(u *models.User, field, uid string) bool {
	if field == userstore.FieldFollowers {
		return u.HasFollower(uid)
	}
	return u.IsFollowing(uid)
}
