// internal/app/store/users/userstore.go
package userstore

// Terminology: User Identifiers
//   - uid / user_id: the provider-assigned string that keys both the identity
//     and the profile (_id in the users collection)

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/app/system/normalize"
	"github.com/sociodev/sociodev/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Field names of the adjacency and bookmark sets.
const (
	FieldFollowers = "followers"
	FieldFollowing = "following"
	FieldBookmarks = "bookmarks"
)

// ErrDuplicateProfile is returned when a profile already exists for the uid.
var ErrDuplicateProfile = errors.New("a profile already exists for this uid")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// Create inserts a new profile with empty follower/following sets.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.Email = normalize.Email(u.Email)
	u.Username = normalize.Name(u.Username)
	u.UsernameCI = text.Fold(u.Username)
	if u.Followers == nil {
		u.Followers = []string{}
	}
	if u.Following == nil {
		u.Following = []string{}
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateProfile
		}
		return models.User{}, apperr.Backend(err)
	}
	return u, nil
}

// GetByID loads a profile by uid. Returns apperr.ErrNotFound if absent.
func (s *Store) GetByID(ctx context.Context, uid string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": uid}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("profile %s: %w", uid, apperr.ErrNotFound)
		}
		return nil, apperr.Backend(err)
	}
	return &u, nil
}

// GetByIDs loads the profiles for uids in one query. Unknown uids are
// skipped; the result follows the order of uids.
func (s *Store) GetByIDs(ctx context.Context, uids []string) ([]models.User, error) {
	if len(uids) == 0 {
		return []models.User{}, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": uids}})
	if err != nil {
		return nil, apperr.Backend(err)
	}
	defer cur.Close(ctx)

	byID := make(map[string]models.User, len(uids))
	for cur.Next(ctx) {
		var u models.User
		if err := cur.Decode(&u); err != nil {
			return nil, err
		}
		byID[u.ID] = u
	}
	if err := cur.Err(); err != nil {
		return nil, apperr.Backend(err)
	}

	out := make([]models.User, 0, len(byID))
	for _, id := range uids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// ProfileUpdate holds the editable profile fields. Empty strings clear the
// corresponding field.
type ProfileUpdate struct {
	PortfolioURL       string
	GithubURL          string
	LinkedinURL        string
	ProfileImageBase64 string
}

// UpdateProfile writes the editable profile fields.
func (s *Store) UpdateProfile(ctx context.Context, uid string, upd ProfileUpdate) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	unset := bson.M{}
	put := func(field, v string) {
		if v == "" {
			unset[field] = ""
			return
		}
		set[field] = v
	}
	put("portfolio_url", upd.PortfolioURL)
	put("github_url", upd.GithubURL)
	put("linkedin_url", upd.LinkedinURL)
	put("profile_image_base64", upd.ProfileImageBase64)

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": uid}, update)
	if err != nil {
		return apperr.Backend(err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("profile %s: %w", uid, apperr.ErrNotFound)
	}
	return nil
}

// AddToSet adds value to the set field of uid's profile. It reports whether
// the set changed; apperr.ErrNotFound is returned when the profile is absent.
func (s *Store) AddToSet(ctx context.Context, uid, field, value string) (bool, error) {
	return s.modifySet(ctx, uid, "$addToSet", field, value)
}

// Pull removes value from the set field of uid's profile. It reports whether
// the set changed.
func (s *Store) Pull(ctx context.Context, uid, field, value string) (bool, error) {
	return s.modifySet(ctx, uid, "$pull", field, value)
}

func (s *Store) modifySet(ctx context.Context, uid, op, field, value string) (bool, error) {
	switch field {
	case FieldFollowers, FieldFollowing, FieldBookmarks:
	default:
		return false, fmt.Errorf("unknown set field %q: %w", field, apperr.ErrInvalid)
	}

	// The membership condition lives in the filter so that "did the set
	// change" is decided atomically with the write.
	filter := bson.M{"_id": uid, field: bson.M{"$ne": value}}
	if op == "$pull" {
		filter = bson.M{"_id": uid, field: value}
	}
	res, err := s.c.UpdateOne(ctx, filter, bson.M{
		op:     bson.M{field: value},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return false, apperr.Backend(err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	n, err := s.c.CountDocuments(ctx, bson.M{"_id": uid})
	if err != nil {
		return false, apperr.Backend(err)
	}
	if n == 0 {
		return false, fmt.Errorf("profile %s: %w", uid, apperr.ErrNotFound)
	}
	return false, nil
}

// Bookmarks returns the bookmark set of uid. Returns apperr.ErrNotFound if the
// profile is absent.
func (s *Store) Bookmarks(ctx context.Context, uid string) ([]string, error) {
	var doc struct {
		Bookmarks []string `bson:"bookmarks"`
	}
	opts := options.FindOne().SetProjection(bson.M{"bookmarks": 1})
	if err := s.c.FindOne(ctx, bson.M{"_id": uid}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("profile %s: %w", uid, apperr.ErrNotFound)
		}
		return nil, apperr.Backend(err)
	}
	if doc.Bookmarks == nil {
		return []string{}, nil
	}
	return doc.Bookmarks, nil
}

// PullEverywhere removes value from the set field of every profile and
// returns the number of profiles changed.
func (s *Store) PullEverywhere(ctx context.Context, field, value string) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{field: value},
		bson.M{
			"$pull": bson.M{field: value},
			"$set":  bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return 0, apperr.Backend(err)
	}
	return res.ModifiedCount, nil
}

// BookmarkCounts returns, for every bookmarked article id, the number of
// profiles whose bookmark set contains it.
func (s *Store) BookmarkCounts(ctx context.Context) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$unwind", Value: "$bookmarks"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$bookmarks"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cur, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperr.Backend(err)
	}
	defer cur.Close(ctx)

	counts := make(map[string]int64)
	for cur.Next(ctx) {
		var row struct {
			ID    string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		counts[row.ID] = row.Count
	}
	return counts, apperr.Backend(cur.Err())
}

// FollowGraph returns uid, followers and following for every profile that
// has at least one edge.
func (s *Store) FollowGraph(ctx context.Context) ([]models.User, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1, "followers": 1, "following": 1})
	filter := bson.M{"$or": []bson.M{
		{"followers.0": bson.M{"$exists": true}},
		{"following.0": bson.M{"$exists": true}},
	}}
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Backend(err)
	}
	defer cur.Close(ctx)

	var out []models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, apperr.Backend(err)
	}
	return out, nil
}
