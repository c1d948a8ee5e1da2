package articlestore_test

import (
	"errors"
	"testing"
	"time"

	articlestore "github.com/sociodev/sociodev/internal/app/store/articles"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/domain/models"
	"github.com/sociodev/sociodev/internal/testutil"
)

func TestStore_CreateAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := articlestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	in := models.Article{
		ID:        "art-1",
		Title:     "Hi",
		Content:   "World",
		Tags:      []string{"a", "b"},
		CreatedAt: now,
		Author:    models.Author{UID: "u1", Username: "alice", Email: "alice@x.com"},
	}
	if err := store.Create(ctx, in); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.GetByID(ctx, "art-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Title != "Hi" || got.Content != "World" {
		t.Errorf("got %q/%q", got.Title, got.Content)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "a" || got.Tags[1] != "b" {
		t.Errorf("Tags: got %v, want [a b]", got.Tags)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt: got %v, want %v", got.CreatedAt, now)
	}
	if got.Author != in.Author {
		t.Errorf("Author: got %+v, want %+v", got.Author, in.Author)
	}

	if err := store.Create(ctx, in); !errors.Is(err, articlestore.ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID on second create, got %v", err)
	}
}

func TestStore_GetByID_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := articlestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListRecent_NewestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := articlestore.New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := fx.CreateUser(ctx, "u", "u@x.com")
	base := time.Now().UTC()
	old := fx.CreateArticle(ctx, u, "old", 0, base.Add(-2*time.Hour))
	mid := fx.CreateArticle(ctx, u, "mid", 0, base.Add(-time.Hour))
	recent := fx.CreateArticle(ctx, u, "new", 0, base)

	got, err := store.ListRecent(ctx)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	want := []string{recent.ID, mid.ID, old.ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d articles, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestStore_ListTrending_OrderAndLimit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := articlestore.New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := fx.CreateUser(ctx, "u", "u@x.com")
	now := time.Now().UTC()
	fx.CreateArticle(ctx, u, "zero", 0, now)
	five := fx.CreateArticle(ctx, u, "five", 5, now.Add(-time.Hour))
	two := fx.CreateArticle(ctx, u, "two", 2, now.Add(-2*time.Hour))

	got, err := store.ListTrending(ctx, 2)
	if err != nil {
		t.Fatalf("ListTrending failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(got))
	}
	if got[0].ID != five.ID || got[1].ID != two.ID {
		t.Errorf("order: got [%s %s], want [five two]", got[0].Title, got[1].Title)
	}
}

func TestStore_SearchAndByAuthor(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := articlestore.New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	alice := fx.CreateUser(ctx, "alice", "alice@x.com")
	bob := fx.CreateUser(ctx, "bob", "bob@x.com")
	now := time.Now().UTC()
	fx.CreateArticle(ctx, alice, "Go Generics (intro)", 0, now)
	fx.CreateArticle(ctx, bob, "Rust lifetimes", 0, now)

	hits, err := store.Search(ctx, "generics (")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].Author.UID != alice.ID {
		t.Errorf("Search: got %d hits", len(hits))
	}

	mine, err := store.ListByAuthor(ctx, bob.ID)
	if err != nil {
		t.Fatalf("ListByAuthor failed: %v", err)
	}
	if len(mine) != 1 || mine[0].Title != "Rust lifetimes" {
		t.Errorf("ListByAuthor: got %v", mine)
	}
}

func TestStore_SavedCounter_NeverNegative(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := articlestore.New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := fx.CreateUser(ctx, "u", "u@x.com")
	a := fx.CreateArticle(ctx, u, "a", 0, time.Now())

	if err := store.IncSaved(ctx, a.ID); err != nil {
		t.Fatalf("IncSaved failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.DecSaved(ctx, a.ID); err != nil {
			t.Fatalf("DecSaved failed: %v", err)
		}
	}

	got, err := store.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.SavedCount != 0 {
		t.Errorf("SavedCount: got %d, want 0", got.SavedCount)
	}

	if err := store.IncSaved(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("IncSaved on missing article: expected ErrNotFound, got %v", err)
	}
}

func TestStore_UpdateLeavesSavedCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := articlestore.New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := fx.CreateUser(ctx, "u", "u@x.com")
	a := fx.CreateArticle(ctx, u, "a", 4, time.Now())

	err := store.Update(ctx, a.ID, articlestore.Update{Title: "t2", Content: "c2", Tags: []string{"x"}})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, err := store.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Title != "t2" || got.SavedCount != 4 || got.UpdatedAt == nil {
		t.Errorf("got title=%q saved=%d updated=%v", got.Title, got.SavedCount, got.UpdatedAt)
	}

	deleted, err := store.Delete(ctx, a.ID)
	if err != nil || !deleted {
		t.Fatalf("Delete: deleted=%v err=%v", deleted, err)
	}
	if err := store.Update(ctx, a.ID, articlestore.Update{Title: "x", Content: "y"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Update after delete: expected ErrNotFound, got %v", err)
	}
}
