// Package accounts registers, signs in and signs out identities and owns the
// profile record created alongside each identity.
package accounts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	userstore "github.com/sociodev/sociodev/internal/app/store/users"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/app/system/normalize"
	"github.com/sociodev/sociodev/internal/app/system/txn"
	"github.com/sociodev/sociodev/internal/domain/models"
	"go.uber.org/zap"
)

// Provider is the subset of the auth provider used here.
type Provider interface {
	CreateIdentity(ctx context.Context, email, password, username string) (models.Identity, error)
	DeleteIdentity(ctx context.Context, uid string) error
	SignIn(ctx context.Context, email, password, deviceID string) (models.Identity, string, error)
	StartSession(ctx context.Context, id models.Identity, deviceID string) (string, error)
	SignOut(ctx context.Context, token string) (string, error)
}

// Profiles stores profile records.
type Profiles interface {
	Create(ctx context.Context, u models.User) (models.User, error)
	GetByID(ctx context.Context, uid string) (*models.User, error)
	UpdateProfile(ctx context.Context, uid string, upd userstore.ProfileUpdate) error
}

// ProfileUpdate carries the editable profile fields. Empty strings clear.
type ProfileUpdate struct {
	PortfolioURL       string `json:"portfolioUrl"`
	GithubURL          string `json:"githubUrl"`
	LinkedinURL        string `json:"linkedinUrl"`
	ProfileImageBase64 string `json:"profileImageBase64"`
}

// MaxImageBytes bounds a decoded profile image.
const MaxImageBytes = 1 << 20

type Service struct {
	provider Provider
	profiles Profiles
	tx       txn.Runner
	log      *zap.Logger
}

func New(provider Provider, profiles Profiles, tx txn.Runner, logger *zap.Logger) *Service {
	return &Service{provider: provider, profiles: profiles, tx: tx, log: logger}
}

// Register creates an identity and its profile (empty follower/following
// sets) as one unit. When deviceID is set the new identity is also signed
// in on that device and its token returned.
//
// Without transaction support the identity is deleted again if the profile
// write fails.
func (s *Service) Register(ctx context.Context, email, password, username, deviceID string) (models.User, string, error) {
	var (
		id      models.Identity
		profile models.User
	)
	err := s.tx.Run(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.provider.CreateIdentity(ctx, email, password, username)
		if err != nil {
			return err
		}
		profile, err = s.profiles.Create(ctx, models.User{
			ID:       id.ID,
			Email:    id.Email,
			Username: id.Username,
		})
		if err != nil {
			if !txn.InTransaction(ctx) {
				s.compensate(ctx, id.ID, err)
			}
			return fmt.Errorf("create profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.User{}, "", err
	}

	s.log.Info("account registered", zap.String("uid", profile.ID))
	if deviceID == "" {
		return profile, "", nil
	}
	tok, err := s.provider.StartSession(ctx, id, deviceID)
	if err != nil {
		return profile, "", fmt.Errorf("sign in after register: %w", err)
	}
	return profile, tok, nil
}

func (s *Service) compensate(ctx context.Context, uid string, cause error) {
	if err := s.provider.DeleteIdentity(ctx, uid); err != nil {
		s.log.Error("identity left without profile",
			zap.String("uid", uid),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	s.log.Warn("rolled back identity after profile write failed",
		zap.String("uid", uid), zap.Error(cause))
}

// SignIn verifies credentials and opens a session on deviceID.
func (s *Service) SignIn(ctx context.Context, email, password, deviceID string) (models.Identity, string, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return models.Identity{}, "", fmt.Errorf("%w: email and password are required", apperr.ErrAuth)
	}
	return s.provider.SignIn(ctx, email, password, deviceID)
}

// SignOut ends the session behind token. It is idempotent and returns the
// uid that was signed out, if any.
func (s *Service) SignOut(ctx context.Context, token string) (string, error) {
	return s.provider.SignOut(ctx, token)
}

// GetProfile returns the profile for uid, or nil if there is none.
func (s *Service) GetProfile(ctx context.Context, uid string) (*models.User, error) {
	u, err := s.profiles.GetByID(ctx, uid)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// UpdateProfile validates and writes the editable profile fields.
func (s *Service) UpdateProfile(ctx context.Context, uid string, upd ProfileUpdate) error {
	out := userstore.ProfileUpdate{}
	links := []struct {
		name string
		in   string
		dst  *string
	}{
		{"portfolioUrl", upd.PortfolioURL, &out.PortfolioURL},
		{"githubUrl", upd.GithubURL, &out.GithubURL},
		{"linkedinUrl", upd.LinkedinURL, &out.LinkedinURL},
	}
	for _, l := range links {
		if strings.TrimSpace(l.in) == "" {
			continue
		}
		v, ok := normalize.Link(l.in)
		if !ok {
			return fmt.Errorf("%s is not a valid http(s) link: %w", l.name, apperr.ErrInvalid)
		}
		*l.dst = v
	}

	img := strings.TrimSpace(upd.ProfileImageBase64)
	if img != "" {
		raw, err := base64.StdEncoding.DecodeString(img)
		if err != nil {
			return fmt.Errorf("profileImageBase64 is not base64: %w", apperr.ErrInvalid)
		}
		if len(raw) > MaxImageBytes {
			return fmt.Errorf("profile image exceeds %d bytes: %w", MaxImageBytes, apperr.ErrInvalid)
		}
		out.ProfileImageBase64 = img
	}

	return s.profiles.UpdateProfile(ctx, uid, out)
}
