package articles_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/sociodev/sociodev/internal/app/features/articles"
	articlesvc "github.com/sociodev/sociodev/internal/app/services/articles"
	"github.com/sociodev/sociodev/internal/domain/models"
	"github.com/sociodev/sociodev/internal/testutil/apitest"
)

type article struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags"`
	SavedCount int64    `json:"savedCount"`
	Author     struct {
		UID string `json:"uid"`
	} `json:"author"`
}

func newRouter(t *testing.T) (http.Handler, *apitest.Env) {
	t.Helper()
	e := apitest.New(t)
	h := articles.NewHandler(e.Articles, e.Audit, e.Log)
	return e.Auth.LoadPrincipal(articles.Routes(h)), e
}

func TestCreateAndGet(t *testing.T) {
	router, e := newRouter(t)
	alice := e.Register(t, "alice", "phone")

	rec := apitest.Do(t, router, apitest.Request{
		Method: http.MethodPost,
		Path:   "/",
		Body:   map[string]any{"title": "Hello", "content": "World"},
	})
	apitest.ExpectStatus(t, rec, http.StatusUnauthorized)

	rec = apitest.Do(t, router, apitest.Request{
		Method: http.MethodPost,
		Path:   "/",
		Token:  alice.Token,
		Body:   map[string]any{"id": "art-1", "title": " <b>Hello</b> ", "content": "World", "tags": []string{" go ", "", "mongo"}},
	})
	apitest.ExpectStatus(t, rec, http.StatusCreated)
	var created article
	apitest.Decode(t, rec, &created)
	if created.ID != "art-1" || created.Title != "Hello" || created.Author.UID != alice.ID || created.SavedCount != 0 {
		t.Errorf("unexpected article: %+v", created)
	}
	if len(created.Tags) != 2 || created.Tags[0] != "go" {
		t.Errorf("tags: got %v", created.Tags)
	}

	rec = apitest.Do(t, router, apitest.Request{Method: http.MethodGet, Path: "/art-1"})
	apitest.ExpectStatus(t, rec, http.StatusOK)

	rec = apitest.Do(t, router, apitest.Request{Method: http.MethodGet, Path: "/missing"})
	apitest.ExpectStatus(t, rec, http.StatusNotFound)

	rec = apitest.Do(t, router, apitest.Request{
		Method: http.MethodPost,
		Path:   "/",
		Token:  alice.Token,
		Body:   map[string]any{"title": "   ", "content": "World"},
	})
	apitest.ExpectStatus(t, rec, http.StatusBadRequest)
}

func TestListSearchAndTrending(t *testing.T) {
	router, e := newRouter(t)
	now := time.Now().UTC()
	e.Mem.Articles.Put(models.Article{ID: "a", Title: "Go generics", Content: "x", SavedCount: 1, CreatedAt: now.Add(-2 * time.Hour)})
	e.Mem.Articles.Put(models.Article{ID: "b", Title: "Database tips", Content: "indexes", SavedCount: 5, CreatedAt: now.Add(-time.Hour)})
	e.Mem.Articles.Put(models.Article{ID: "c", Title: "Chi routing", Content: "go handlers", SavedCount: 3, CreatedAt: now})

	var list []article
	rec := apitest.Do(t, router, apitest.Request{Method: http.MethodGet, Path: "/"})
	apitest.ExpectStatus(t, rec, http.StatusOK)
	apitest.Decode(t, rec, &list)
	if ids(list) != "cba" {
		t.Errorf("recent: got %s", ids(list))
	}

	rec = apitest.Do(t, router, apitest.Request{Method: http.MethodGet, Path: "/?q=GO"})
	apitest.Decode(t, rec, &list)
	if ids(list) != "ca" {
		t.Errorf("search: got %s", ids(list))
	}

	rec = apitest.Do(t, router, apitest.Request{Method: http.MethodGet, Path: "/trending?limit=2"})
	apitest.ExpectStatus(t, rec, http.StatusOK)
	apitest.Decode(t, rec, &list)
	if ids(list) != "bc" {
		t.Errorf("trending: got %s", ids(list))
	}

	rec = apitest.Do(t, router, apitest.Request{Method: http.MethodGet, Path: "/trending?limit=abc"})
	apitest.ExpectStatus(t, rec, http.StatusBadRequest)
}

func TestUpdateAndDelete_AuthorOnly(t *testing.T) {
	router, e := newRouter(t)
	alice := e.Register(t, "alice", "phone")
	bob := e.Register(t, "bob", "tablet")

	id, err := e.Articles.Create(context.Background(), alice.Author(), articlesvc.Draft{Title: "Mine", Content: "body"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	edit := map[string]any{"title": "Edited", "content": "new body"}
	rec := apitest.Do(t, router, apitest.Request{Method: http.MethodPut, Path: "/" + id, Token: bob.Token, Body: edit})
	apitest.ExpectStatus(t, rec, http.StatusForbidden)
	rec = apitest.Do(t, router, apitest.Request{Method: http.MethodDelete, Path: "/" + id, Token: bob.Token})
	apitest.ExpectStatus(t, rec, http.StatusForbidden)

	rec = apitest.Do(t, router, apitest.Request{Method: http.MethodPut, Path: "/" + id, Token: alice.Token, Body: edit})
	apitest.ExpectStatus(t, rec, http.StatusOK)
	var got article
	apitest.Decode(t, rec, &got)
	if got.Title != "Edited" || got.Content != "new body" {
		t.Errorf("unexpected article: %+v", got)
	}

	rec = apitest.Do(t, router, apitest.Request{Method: http.MethodDelete, Path: "/" + id, Token: alice.Token})
	apitest.ExpectStatus(t, rec, http.StatusNoContent)
	rec = apitest.Do(t, router, apitest.Request{Method: http.MethodDelete, Path: "/" + id, Token: alice.Token})
	apitest.ExpectStatus(t, rec, http.StatusNotFound)
}

func ids(list []article) string {
	s := ""
	for _, a := range list {
		s += a.ID
	}
	return s
}
