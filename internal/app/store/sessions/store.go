// internal/app/store/sessions/store.go
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// End reasons
const (
	EndSignOut  = "signout"  // user signed out
	EndReplaced = "replaced" // a newer sign-in by the same user on the same device
	EndExpired  = "expired"  // ttl elapsed
)

// Session is one sign-in on one device.
type Session struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	UID      string             `bson:"uid"`
	DeviceID string             `bson:"device_id"`

	CreatedAt   time.Time  `bson:"created_at"`
	LastSeenAt  time.Time  `bson:"last_seen_at"`
	ExpiresAt   time.Time  `bson:"expires_at"`
	SignedOutAt *time.Time `bson:"signed_out_at,omitempty"`
	EndReason   string     `bson:"end_reason,omitempty"`
}

// Open reports whether the session is neither signed out nor expired at now.
func (s Session) Open(now time.Time) bool {
	return s.SignedOutAt == nil && now.Before(s.ExpiresAt)
}

// Store manages device sessions.
type Store struct {
	c *mongo.Collection
}

// New creates a new sessions Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("sessions")}
}

// Create starts a session for uid on deviceID, closing uid's earlier session
// on that device first. A device still held by another user's open session
// is left alone and the new session gets a freshly minted device id.
func (s *Store) Create(ctx context.Context, uid, deviceID string, ttl time.Duration) (Session, error) {
	now := time.Now().UTC()

	held, err := s.c.CountDocuments(ctx, bson.M{
		"device_id":     deviceID,
		"uid":           bson.M{"$ne": uid},
		"signed_out_at": nil,
		"expires_at":    bson.M{"$gt": now},
	})
	if err != nil {
		return Session{}, apperr.Backend(err)
	}
	if held > 0 {
		deviceID = uuid.NewString()
	}

	_, err = s.c.UpdateMany(ctx,
		bson.M{"device_id": deviceID, "uid": uid, "signed_out_at": nil},
		bson.M{"$set": bson.M{"signed_out_at": now, "end_reason": EndReplaced}},
	)
	if err != nil {
		return Session{}, apperr.Backend(err)
	}

	sess := Session{
		ID:         primitive.NewObjectID(),
		UID:        uid,
		DeviceID:   deviceID,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	if _, err := s.c.InsertOne(ctx, sess); err != nil {
		return Session{}, apperr.Backend(err)
	}
	return sess, nil
}

// GetByID returns the session with id, open or not.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (Session, error) {
	var sess Session
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&sess)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Session{}, fmt.Errorf("session %s: %w", id.Hex(), apperr.ErrNotFound)
	}
	if err != nil {
		return Session{}, apperr.Backend(err)
	}
	return sess, nil
}

// ActiveByDevice returns the open, unexpired session on deviceID.
// ok is false when the device is signed out.
func (s *Store) ActiveByDevice(ctx context.Context, deviceID string) (sess Session, ok bool, err error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	err = s.c.FindOne(ctx, bson.M{
		"device_id":     deviceID,
		"signed_out_at": nil,
		"expires_at":    bson.M{"$gt": time.Now().UTC()},
	}, opts).Decode(&sess)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, apperr.Backend(err)
	}
	return sess, true, nil
}

// Touch records activity on an open session.
func (s *Store) Touch(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "signed_out_at": nil},
		bson.M{"$set": bson.M{"last_seen_at": time.Now().UTC()}},
	)
	return apperr.Backend(err)
}

// Close ends an open session. closed is false when the session was already
// closed or does not exist.
func (s *Store) Close(ctx context.Context, id primitive.ObjectID, reason string) (closed bool, err error) {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "signed_out_at": nil},
		bson.M{"$set": bson.M{"signed_out_at": time.Now().UTC(), "end_reason": reason}},
	)
	if err != nil {
		return false, apperr.Backend(err)
	}
	return res.ModifiedCount == 1, nil
}

// Expired returns sessions that are still open but past expires_at.
func (s *Store) Expired(ctx context.Context, now time.Time) ([]Session, error) {
	cur, err := s.c.Find(ctx, bson.M{
		"signed_out_at": nil,
		"expires_at":    bson.M{"$lte": now},
	})
	if err != nil {
		return nil, apperr.Backend(err)
	}
	defer cur.Close(ctx)

	var out []Session
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperr.Backend(err)
	}
	return out, nil
}

// ByUser returns uid's session history, newest first.
func (s *Store) ByUser(ctx context.Context, uid string, limit int64) ([]Session, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cur, err := s.c.Find(ctx, bson.M{"uid": uid}, opts)
	if err != nil {
		return nil, apperr.Backend(err)
	}
	defer cur.Close(ctx)

	var out []Session
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperr.Backend(err)
	}
	return out, nil
}
