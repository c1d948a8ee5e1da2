// internal/app/store/identities/identitystore.go
package identitystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/app/system/normalize"
	"github.com/sociodev/sociodev/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrEmailInUse is returned by Create when another identity has the email.
var ErrEmailInUse = errors.New("email already in use")

// Store persists credentials in the identities collection.
type Store struct {
	c *mongo.Collection
}

// New returns a Store over db.identities.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("identities")}
}

// Create inserts id. Email is normalized; CreatedAt defaults to now.
func (s *Store) Create(ctx context.Context, id models.Identity) (models.Identity, error) {
	id.Email = normalize.Email(id.Email)
	id.Username = normalize.Name(id.Username)
	if id.CreatedAt.IsZero() {
		id.CreatedAt = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, id); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Identity{}, ErrEmailInUse
		}
		return models.Identity{}, apperr.Backend(err)
	}
	return id, nil
}

// GetByID returns the identity for uid.
func (s *Store) GetByID(ctx context.Context, uid string) (models.Identity, error) {
	return s.findOne(ctx, bson.M{"_id": uid})
}

// GetByEmail looks an identity up by normalized email.
func (s *Store) GetByEmail(ctx context.Context, email string) (models.Identity, error) {
	return s.findOne(ctx, bson.M{"email": normalize.Email(email)})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.Identity, error) {
	var id models.Identity
	err := s.c.FindOne(ctx, filter).Decode(&id)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Identity{}, fmt.Errorf("identity: %w", apperr.ErrNotFound)
	}
	if err != nil {
		return models.Identity{}, apperr.Backend(err)
	}
	return id, nil
}

// Delete removes the identity for uid. Deleting a missing identity is not an error.
func (s *Store) Delete(ctx context.Context, uid string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": uid})
	return apperr.Backend(err)
}
