// Package social maintains the follow graph. Every edge is stored twice, as
// b in following(a) and a in followers(b); both writes share one unit of work.
package social

import (
	"context"
	"errors"

	userstore "github.com/sociodev/sociodev/internal/app/store/users"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/app/system/txn"
	"github.com/sociodev/sociodev/internal/domain/models"
	"go.uber.org/zap"
)

// Profiles is the subset of the users store the graph needs.
type Profiles interface {
	GetByID(ctx context.Context, uid string) (*models.User, error)
	GetByIDs(ctx context.Context, uids []string) ([]models.User, error)
	AddToSet(ctx context.Context, uid, field, value string) (bool, error)
	Pull(ctx context.Context, uid, field, value string) (bool, error)
}

type Service struct {
	profiles Profiles
	tx       txn.Runner
	log      *zap.Logger
}

func New(profiles Profiles, tx txn.Runner, logger *zap.Logger) *Service {
	return &Service{profiles: profiles, tx: tx, log: logger}
}

// GetByID returns the profile for uid, or nil when there is none.
func (s *Service) GetByID(ctx context.Context, uid string) (*models.User, error) {
	u, err := s.profiles.GetByID(ctx, uid)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// Follow records that a follows b. Following yourself is a no-op, as is
// following someone twice. An unknown b yields apperr.ErrNotFound.
func (s *Service) Follow(ctx context.Context, a, b string) error {
	if a == b {
		return nil
	}
	return s.tx.Run(ctx, func(ctx context.Context) error {
		changed, err := s.profiles.AddToSet(ctx, b, userstore.FieldFollowers, a)
		if err != nil {
			return err
		}
		if _, err := s.profiles.AddToSet(ctx, a, userstore.FieldFollowing, b); err != nil {
			if changed && !txn.InTransaction(ctx) {
				s.compensate(ctx, "follow", a, b, func(ctx context.Context) error {
					_, err := s.profiles.Pull(ctx, b, userstore.FieldFollowers, a)
					return err
				})
			}
			return err
		}
		return nil
	})
}

// Unfollow removes the edge a -> b. Removing a missing edge is a no-op.
func (s *Service) Unfollow(ctx context.Context, a, b string) error {
	if a == b {
		return nil
	}
	return s.tx.Run(ctx, func(ctx context.Context) error {
		changed, err := s.profiles.Pull(ctx, b, userstore.FieldFollowers, a)
		if err != nil {
			return err
		}
		if _, err := s.profiles.Pull(ctx, a, userstore.FieldFollowing, b); err != nil {
			if changed && !txn.InTransaction(ctx) {
				s.compensate(ctx, "unfollow", a, b, func(ctx context.Context) error {
					_, err := s.profiles.AddToSet(ctx, b, userstore.FieldFollowers, a)
					return err
				})
			}
			return err
		}
		return nil
	})
}

// Followers resolves the followers of uid to profiles. Ids that no longer
// resolve are dropped. An unknown uid yields an empty list.
func (s *Service) Followers(ctx context.Context, uid string) ([]models.User, error) {
	return s.resolve(ctx, uid, func(u *models.User) []string { return u.Followers })
}

// Following resolves the accounts uid follows to profiles.
func (s *Service) Following(ctx context.Context, uid string) ([]models.User, error) {
	return s.resolve(ctx, uid, func(u *models.User) []string { return u.Following })
}

func (s *Service) resolve(ctx context.Context, uid string, pick func(*models.User) []string) ([]models.User, error) {
	u, err := s.GetByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return []models.User{}, nil
	}
	return s.profiles.GetByIDs(ctx, pick(u))
}

func (s *Service) compensate(ctx context.Context, op, a, b string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		s.log.Error("follow edge left one-sided; reconcile will repair",
			zap.String("op", op),
			zap.String("from", a),
			zap.String("to", b),
			zap.Error(err))
	}
}
