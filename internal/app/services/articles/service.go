// Package articles is the article repository: create, read, list, edit and
// delete published posts.
package articles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	articlestore "github.com/sociodev/sociodev/internal/app/store/articles"
	userstore "github.com/sociodev/sociodev/internal/app/store/users"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/app/system/htmlsanitize"
	"github.com/sociodev/sociodev/internal/app/system/normalize"
	"github.com/sociodev/sociodev/internal/app/system/txn"
	"github.com/sociodev/sociodev/internal/domain/models"
	"go.uber.org/zap"
)

// Store persists articles.
type Store interface {
	Create(ctx context.Context, a models.Article) error
	GetByID(ctx context.Context, id string) (*models.Article, error)
	ListRecent(ctx context.Context) ([]models.Article, error)
	ListTrending(ctx context.Context, limit int64) ([]models.Article, error)
	ListByAuthor(ctx context.Context, uid string) ([]models.Article, error)
	Search(ctx context.Context, q string) ([]models.Article, error)
	Update(ctx context.Context, id string, upd articlestore.Update) error
	Delete(ctx context.Context, id string) (bool, error)
}

// Bookmarks removes a deleted article from every bookmark set.
type Bookmarks interface {
	PullEverywhere(ctx context.Context, field, value string) (int64, error)
}

// Draft is the author-supplied content of an article. ID is optional on
// create; a UUID is generated when empty.
type Draft struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Tags        []string `json:"tags"`
	ImageBase64 string   `json:"imageBase64,omitempty"`
}

type Service struct {
	store         Store
	bookmarks     Bookmarks
	tx            txn.Runner
	trendingLimit int64
	log           *zap.Logger
}

// New builds a Service. trendingLimit <= 0 uses the store default.
func New(store Store, bookmarks Bookmarks, tx txn.Runner, trendingLimit int, logger *zap.Logger) *Service {
	limit := int64(trendingLimit)
	if limit <= 0 {
		limit = articlestore.DefaultTrendingLimit
	}
	return &Service{store: store, bookmarks: bookmarks, tx: tx, trendingLimit: limit, log: logger}
}

func clean(d Draft) (Draft, error) {
	d.Title = htmlsanitize.PlainText(d.Title)
	d.Content = htmlsanitize.PlainText(d.Content)
	d.Tags = normalize.Tags(d.Tags)
	d.ImageBase64 = strings.TrimSpace(d.ImageBase64)
	if d.Title == "" {
		return d, fmt.Errorf("title is required: %w", apperr.ErrInvalid)
	}
	if d.Content == "" {
		return d, fmt.Errorf("content is required: %w", apperr.ErrInvalid)
	}
	return d, nil
}

// Create publishes d under author with a server timestamp and savedCount 0.
func (s *Service) Create(ctx context.Context, author models.Author, d Draft) (string, error) {
	d, err := clean(d)
	if err != nil {
		return "", err
	}
	if author.UID == "" {
		return "", fmt.Errorf("author is required: %w", apperr.ErrInvalid)
	}
	id := strings.TrimSpace(d.ID)
	if id == "" {
		id = uuid.NewString()
	}

	a := models.Article{
		ID:          id,
		Title:       d.Title,
		Content:     d.Content,
		Tags:        d.Tags,
		CreatedAt:   time.Now().UTC(),
		SavedCount:  0,
		Author:      author,
		ImageBase64: d.ImageBase64,
	}
	if err := s.store.Create(ctx, a); err != nil {
		if errors.Is(err, articlestore.ErrDuplicateID) {
			return "", fmt.Errorf("article id %s already used: %w", id, apperr.ErrInvalid)
		}
		return "", err
	}
	return id, nil
}

// GetByID returns the article, or nil when it does not exist.
func (s *Service) GetByID(ctx context.Context, id string) (*models.Article, error) {
	a, err := s.store.GetByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return a, err
}

// GetByIDs looks each id up on its own, in order. Missing ids are skipped.
func (s *Service) GetByIDs(ctx context.Context, ids []string) ([]models.Article, error) {
	out := make([]models.Article, 0, len(ids))
	for _, id := range ids {
		a, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if a != nil {
			out = append(out, *a)
		}
	}
	return out, nil
}

// ListRecent returns all articles, newest first.
func (s *Service) ListRecent(ctx context.Context) ([]models.Article, error) {
	return s.store.ListRecent(ctx)
}

// ListTrending returns the limit most-saved articles; limit <= 0 uses the
// configured default.
func (s *Service) ListTrending(ctx context.Context, limit int) ([]models.Article, error) {
	n := int64(limit)
	if n <= 0 {
		n = s.trendingLimit
	}
	return s.store.ListTrending(ctx, n)
}

// ListByAuthor returns uid's articles, newest first.
func (s *Service) ListByAuthor(ctx context.Context, uid string) ([]models.Article, error) {
	return s.store.ListByAuthor(ctx, uid)
}

// Search matches q against title and content, case-insensitively. A blank
// query lists everything.
func (s *Service) Search(ctx context.Context, q string) ([]models.Article, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return s.store.ListRecent(ctx)
	}
	return s.store.Search(ctx, q)
}

func (s *Service) owned(ctx context.Context, callerUID, id string) error {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if callerUID == "" || a.Author.UID != callerUID {
		return fmt.Errorf("article %s belongs to another author: %w", id, apperr.ErrForbidden)
	}
	return nil
}

// Update replaces the editable fields. Only the author may edit; savedCount
// is left untouched.
func (s *Service) Update(ctx context.Context, callerUID, id string, d Draft) error {
	d, err := clean(d)
	if err != nil {
		return err
	}
	if err := s.owned(ctx, callerUID, id); err != nil {
		return err
	}
	return s.store.Update(ctx, id, articlestore.Update{
		Title:       d.Title,
		Content:     d.Content,
		Tags:        d.Tags,
		ImageBase64: d.ImageBase64,
	})
}

// Delete removes an article and drops it from every bookmark set. Only the
// author may delete.
func (s *Service) Delete(ctx context.Context, callerUID, id string) error {
	if err := s.owned(ctx, callerUID, id); err != nil {
		return err
	}
	return s.tx.Run(ctx, func(ctx context.Context) error {
		if _, err := s.store.Delete(ctx, id); err != nil {
			return err
		}
		n, err := s.bookmarks.PullEverywhere(ctx, userstore.FieldBookmarks, id)
		if err != nil {
			return fmt.Errorf("drop bookmarks of %s: %w", id, err)
		}
		s.log.Debug("article deleted", zap.String("article_id", id), zap.Int64("bookmarks_dropped", n))
		return nil
	})
}
