package bookmarks_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sociodev/sociodev/internal/app/services/bookmarks"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/app/system/txn"
	"github.com/sociodev/sociodev/internal/domain/models"
	"github.com/sociodev/sociodev/internal/testutil/memstore"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*bookmarks.Service, *memstore.Store) {
	t.Helper()
	mem := memstore.New()
	mem.Users.Put(models.User{ID: "u1"})
	mem.Users.Put(models.User{ID: "u2"})
	mem.Articles.Put(models.Article{ID: "art", Title: "t", Content: "c", CreatedAt: time.Now()})
	return bookmarks.New(mem.Users, mem.Articles, txn.Direct{}, zap.NewNop()), mem
}

func savedCount(t *testing.T, mem *memstore.Store, id string) int64 {
	t.Helper()
	a, err := mem.Articles.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	return a.SavedCount
}

func TestAdd_IsIdempotent(t *testing.T) {
	svc, mem := setup(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.Add(ctx, "u1", "art"); err != nil {
			t.Fatalf("Add #%d failed: %v", i+1, err)
		}
	}
	if got := savedCount(t, mem, "art"); got != 1 {
		t.Errorf("savedCount: got %d, want 1", got)
	}
	ids, _ := svc.GetBookmarks(ctx, "u1")
	if len(ids) != 1 || ids[0] != "art" {
		t.Errorf("bookmarks: got %v", ids)
	}
}

func TestRemove_FloorsAtZero(t *testing.T) {
	svc, mem := setup(t)
	ctx := context.Background()

	if err := svc.Add(ctx, "u1", "art"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := svc.Remove(ctx, "u1", "art"); err != nil {
			t.Fatalf("Remove #%d failed: %v", i+1, err)
		}
	}
	if got := savedCount(t, mem, "art"); got != 0 {
		t.Errorf("savedCount: got %d, want 0", got)
	}

	// A stale counter of zero with a set entry still cannot go negative.
	mem.Users.Put(models.User{ID: "u2", Bookmarks: []string{"art"}})
	if err := svc.Remove(ctx, "u2", "art"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if got := savedCount(t, mem, "art"); got != 0 {
		t.Errorf("savedCount: got %d, want 0", got)
	}
}

func TestAdd_ConcurrentUsersCountBoth(t *testing.T) {
	svc, mem := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, uid := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			errs <- svc.Add(ctx, uid, "art")
		}(uid)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	if got := savedCount(t, mem, "art"); got != 2 {
		t.Errorf("savedCount: got %d, want 2", got)
	}
}

func TestAdd_UnknownArticle(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	if err := svc.Add(ctx, "u1", "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ids, _ := svc.GetBookmarks(ctx, "u1")
	if len(ids) != 0 {
		t.Errorf("expected the bookmark to be undone, got %v", ids)
	}
}

func TestAdd_UnknownProfile(t *testing.T) {
	svc, mem := setup(t)
	if err := svc.Add(context.Background(), "ghost", "art"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if got := savedCount(t, mem, "art"); got != 0 {
		t.Errorf("savedCount: got %d, want 0", got)
	}
}

func TestGetBookmarks_MissingProfileIsEmpty(t *testing.T) {
	svc, _ := setup(t)
	ids, err := svc.GetBookmarks(context.Background(), "ghost")
	if err != nil || ids == nil || len(ids) != 0 {
		t.Errorf("got %v, %v; want empty, nil", ids, err)
	}
}

func TestToggle(t *testing.T) {
	svc, mem := setup(t)
	ctx := context.Background()

	saved, err := svc.Toggle(ctx, "u1", "art")
	if err != nil || !saved {
		t.Fatalf("first Toggle: saved=%v err=%v", saved, err)
	}
	saved, err = svc.Toggle(ctx, "u1", "art")
	if err != nil || saved {
		t.Fatalf("second Toggle: saved=%v err=%v", saved, err)
	}
	if got := savedCount(t, mem, "art"); got != 0 {
		t.Errorf("savedCount: got %d, want 0", got)
	}
}

func TestAddRemove_TrimArticleID(t *testing.T) {
	svc, mem := setup(t)
	ctx := context.Background()

	if err := svc.Add(ctx, "u1", " art "); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := svc.Remove(ctx, "u1", " art"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if ids, _ := svc.GetBookmarks(ctx, "u1"); len(ids) != 0 {
		t.Errorf("bookmarks: got %v, want empty", ids)
	}
	if got := savedCount(t, mem, "art"); got != 0 {
		t.Errorf("savedCount: got %d, want 0", got)
	}

	saved, err := svc.Toggle(ctx, "u1", "art ")
	if err != nil || !saved {
		t.Fatalf("Toggle: saved=%v err=%v", saved, err)
	}
	if ids, _ := svc.GetBookmarks(ctx, "u1"); len(ids) != 1 || ids[0] != "art" {
		t.Errorf("bookmarks: got %v", ids)
	}

	for _, id := range []string{"", "  "} {
		if err := svc.Remove(ctx, "u1", id); !errors.Is(err, apperr.ErrInvalid) {
			t.Errorf("Remove(%q): got %v, want ErrInvalid", id, err)
		}
	}
}
