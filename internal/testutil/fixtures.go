package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/waffle/pantry/text"
	"github.com/google/uuid"
	"github.com/sociodev/sociodev/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts a profile with empty sets and returns it.
func (f *Fixtures) CreateUser(ctx context.Context, username, email string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{
		ID:         uuid.NewString(),
		Email:      email,
		Username:   username,
		UsernameCI: text.Fold(username),
		Followers:  []string{},
		Following:  []string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}
	return u
}

// CreateArticle inserts an article by author with the given save count.
// createdAt lets tests control ordering.
func (f *Fixtures) CreateArticle(ctx context.Context, author models.User, title string, savedCount int64, createdAt time.Time) models.Article {
	f.t.Helper()

	a := models.Article{
		ID:         uuid.NewString(),
		Title:      title,
		Content:    "content of " + title,
		Tags:       []string{"test"},
		CreatedAt:  createdAt.UTC(),
		SavedCount: savedCount,
		Author:     models.Author{UID: author.ID, Username: author.Username, Email: author.Email},
	}
	if _, err := f.db.Collection("articles").InsertOne(ctx, a); err != nil {
		f.t.Fatalf("failed to create test article: %v", err)
	}
	return a
}
