// Package bookmarks is the save ledger: a user's bookmark set plus the
// per-article saved counter it feeds.
package bookmarks

import (
	"context"
	"errors"
	"strings"

	userstore "github.com/sociodev/sociodev/internal/app/store/users"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/app/system/txn"
	"github.com/sociodev/sociodev/internal/domain/models"
	"go.uber.org/zap"
)

// Sets maintains profile bookmark sets.
type Sets interface {
	GetByID(ctx context.Context, uid string) (*models.User, error)
	Bookmarks(ctx context.Context, uid string) ([]string, error)
	AddToSet(ctx context.Context, uid, field, value string) (bool, error)
	Pull(ctx context.Context, uid, field, value string) (bool, error)
}

// Counters maintains article saved counts.
type Counters interface {
	IncSaved(ctx context.Context, id string) error
	DecSaved(ctx context.Context, id string) error
}

type Service struct {
	sets     Sets
	counters Counters
	tx       txn.Runner
	log      *zap.Logger
}

func New(sets Sets, counters Counters, tx txn.Runner, logger *zap.Logger) *Service {
	return &Service{sets: sets, counters: counters, tx: tx, log: logger}
}

// GetBookmarks returns uid's saved article ids; empty when uid has no profile.
func (s *Service) GetBookmarks(ctx context.Context, uid string) ([]string, error) {
	ids, err := s.sets.Bookmarks(ctx, uid)
	if errors.Is(err, apperr.ErrNotFound) {
		return []string{}, nil
	}
	return ids, err
}

// Add saves articleID for uid. The counter moves only when the set changed,
// so repeated adds are no-ops.
func (s *Service) Add(ctx context.Context, uid, articleID string) error {
	articleID, err := articleKey(articleID)
	if err != nil {
		return err
	}
	return s.tx.Run(ctx, func(ctx context.Context) error {
		changed, err := s.sets.AddToSet(ctx, uid, userstore.FieldBookmarks, articleID)
		if err != nil || !changed {
			return err
		}
		if err := s.counters.IncSaved(ctx, articleID); err != nil {
			if !txn.InTransaction(ctx) {
				s.undo(ctx, func(ctx context.Context) error {
					_, err := s.sets.Pull(ctx, uid, userstore.FieldBookmarks, articleID)
					return err
				}, uid, articleID)
			}
			return err
		}
		return nil
	})
}

// Remove unsaves articleID for uid. The counter never drops below zero.
func (s *Service) Remove(ctx context.Context, uid, articleID string) error {
	articleID, err := articleKey(articleID)
	if err != nil {
		return err
	}
	return s.tx.Run(ctx, func(ctx context.Context) error {
		changed, err := s.sets.Pull(ctx, uid, userstore.FieldBookmarks, articleID)
		if err != nil || !changed {
			return err
		}
		return s.counters.DecSaved(ctx, articleID)
	})
}

// Toggle adds articleID when absent and removes it otherwise. It returns
// whether the article is saved afterwards.
func (s *Service) Toggle(ctx context.Context, uid, articleID string) (bool, error) {
	articleID, err := articleKey(articleID)
	if err != nil {
		return false, err
	}
	u, err := s.sets.GetByID(ctx, uid)
	if err != nil {
		return false, err
	}
	if u.HasBookmark(articleID) {
		return false, s.Remove(ctx, uid, articleID)
	}
	return true, s.Add(ctx, uid, articleID)
}

func articleKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", apperr.ErrInvalid
	}
	return id, nil
}

func (s *Service) undo(ctx context.Context, fn func(context.Context) error, uid, articleID string) {
	if err := fn(ctx); err != nil {
		s.log.Error("bookmark left without counter; reconcile will repair",
			zap.String("uid", uid),
			zap.String("article_id", articleID),
			zap.Error(err))
	}
}
