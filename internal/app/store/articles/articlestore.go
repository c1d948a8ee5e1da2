// internal/app/store/articles/articlestore.go
package articlestore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultTrendingLimit is the number of articles ListTrending returns when
// the caller passes a non-positive limit.
const DefaultTrendingLimit = 10

// ErrDuplicateID is returned when an article with the same id already exists.
var ErrDuplicateID = errors.New("an article with this id already exists")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("articles")}
}

// Create inserts a as given. The caller sets id, timestamp and author.
func (s *Store) Create(ctx context.Context, a models.Article) error {
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if _, err := s.c.InsertOne(ctx, a); err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateID
		}
		return apperr.Backend(err)
	}
	return nil
}

// GetByID loads an article. Returns apperr.ErrNotFound if absent.
func (s *Store) GetByID(ctx context.Context, id string) (*models.Article, error) {
	var a models.Article
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("article %s: %w", id, apperr.ErrNotFound)
		}
		return nil, apperr.Backend(err)
	}
	return &a, nil
}

// ListRecent returns every article, newest first.
func (s *Store) ListRecent(ctx context.Context) ([]models.Article, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	return s.find(ctx, bson.M{}, opts)
}

// ListTrending returns the limit most-saved articles. Ties are broken by
// recency.
func (s *Store) ListTrending(ctx context.Context, limit int64) ([]models.Article, error) {
	if limit <= 0 {
		limit = DefaultTrendingLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "saved_count", Value: -1}, {Key: "created_at", Value: -1}}).
		SetLimit(limit)
	return s.find(ctx, bson.M{}, opts)
}

// ListByAuthor returns the articles published by uid, newest first.
func (s *Store) ListByAuthor(ctx context.Context, uid string) ([]models.Article, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return s.find(ctx, bson.M{"author.uid": uid}, opts)
}

// Search returns articles whose title or content contains q
// (case-insensitive), newest first.
func (s *Store) Search(ctx context.Context, q string) ([]models.Article, error) {
	rx := containsCI(q)
	filter := bson.M{"$or": []bson.M{
		{"title": rx},
		{"content": rx},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return s.find(ctx, filter, opts)
}

func containsCI(q string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(q), "$options": "i"}
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Article, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Backend(err)
	}
	defer cur.Close(ctx)

	out := []models.Article{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperr.Backend(err)
	}
	return out, nil
}

// Update holds the author-editable fields. saved_count is deliberately absent.
type Update struct {
	Title       string
	Content     string
	Tags        []string
	ImageBase64 string // empty removes the image
}

// Update writes the editable fields of an article.
func (s *Store) Update(ctx context.Context, id string, upd Update) error {
	tags := upd.Tags
	if tags == nil {
		tags = []string{}
	}
	set := bson.M{
		"title":      upd.Title,
		"content":    upd.Content,
		"tags":       tags,
		"updated_at": time.Now().UTC(),
	}
	update := bson.M{"$set": set}
	if upd.ImageBase64 != "" {
		set["image_base64"] = upd.ImageBase64
	} else {
		update["$unset"] = bson.M{"image_base64": ""}
	}

	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return apperr.Backend(err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("article %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// Delete removes an article and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, apperr.Backend(err)
	}
	return res.DeletedCount == 1, nil
}

// IncSaved atomically adds one to saved_count.
func (s *Store) IncSaved(ctx context.Context, id string) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"saved_count": 1}})
	if err != nil {
		return apperr.Backend(err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("article %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// DecSaved atomically subtracts one from saved_count, never going below zero.
// A missing article or a zero count is not an error.
func (s *Store) DecSaved(ctx context.Context, id string) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "saved_count": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"saved_count": -1}},
	)
	return apperr.Backend(err)
}

// SavedCounts returns the stored saved_count of every article.
func (s *Store) SavedCounts(ctx context.Context) (map[string]int64, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1, "saved_count": 1})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, apperr.Backend(err)
	}
	defer cur.Close(ctx)

	counts := make(map[string]int64)
	for cur.Next(ctx) {
		var row struct {
			ID         string `bson:"_id"`
			SavedCount int64  `bson:"saved_count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		counts[row.ID] = row.SavedCount
	}
	return counts, apperr.Backend(cur.Err())
}

// SetSavedCount overwrites saved_count. Only the reconcile worker calls it.
func (s *Store) SetSavedCount(ctx context.Context, id string, n int64) error {
	if n < 0 {
		n = 0
	}
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"saved_count": n}})
	return apperr.Backend(err)
}
