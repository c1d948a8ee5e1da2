// Package auth is the email+password auth provider: it owns credentials,
// issues session tokens per device and pushes sign-in/sign-out changes to
// watchers of that device.
package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/waffle/toolkit/validate"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	identitystore "github.com/sociodev/sociodev/internal/app/store/identities"
	"github.com/sociodev/sociodev/internal/app/store/sessions"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/app/system/normalize"
	"github.com/sociodev/sociodev/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 6

const (
	tokenName = "sociodev-token"

	// DefaultSessionTTL applies when Config.SessionTTL is zero.
	DefaultSessionTTL = 30 * 24 * time.Hour

	touchEvery = time.Minute
)

// IdentityStore persists credentials.
type IdentityStore interface {
	Create(ctx context.Context, id models.Identity) (models.Identity, error)
	GetByID(ctx context.Context, uid string) (models.Identity, error)
	GetByEmail(ctx context.Context, email string) (models.Identity, error)
	Delete(ctx context.Context, uid string) error
}

// SessionStore persists device sessions.
type SessionStore interface {
	Create(ctx context.Context, uid, deviceID string, ttl time.Duration) (sessions.Session, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (sessions.Session, error)
	ActiveByDevice(ctx context.Context, deviceID string) (sessions.Session, bool, error)
	Touch(ctx context.Context, id primitive.ObjectID) error
	Close(ctx context.Context, id primitive.ObjectID, reason string) (bool, error)
	Expired(ctx context.Context, now time.Time) ([]sessions.Session, error)
}

// Config configures a Provider.
type Config struct {
	// Secret signs and encrypts tokens. 32+ bytes recommended.
	Secret     string
	SessionTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// Principal is the caller behind a verified token.
type Principal struct {
	Identity models.Identity
	Session  sessions.Session
}

// Provider implements registration, sign-in, sign-out and token checks.
type Provider struct {
	identities IdentityStore
	sessions   SessionStore
	notifier   *Notifier
	codec      *securecookie.SecureCookie
	ttl        time.Duration
	cost       int
	log        *zap.Logger
}

// NewProvider builds a Provider. The notifier is owned by the caller.
func NewProvider(identities IdentityStore, sess SessionStore, notifier *Notifier, cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: secret is empty")
	}
	if len(cfg.Secret) < 32 {
		logger.Warn("auth secret is short; 32+ chars recommended", zap.Int("length", len(cfg.Secret)))
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	hashKey := sha256.Sum256([]byte("hash:" + cfg.Secret))
	blockKey := sha256.Sum256([]byte("block:" + cfg.Secret))
	codec := securecookie.New(hashKey[:], blockKey[:]).MaxAge(int(ttl / time.Second))

	return &Provider{
		identities: identities,
		sessions:   sess,
		notifier:   notifier,
		codec:      codec,
		ttl:        ttl,
		cost:       cost,
		log:        logger,
	}, nil
}

// SessionTTL returns the lifetime of new sessions.
func (p *Provider) SessionTTL() time.Duration { return p.ttl }

// CreateIdentity validates the credentials and stores a new identity.
func (p *Provider) CreateIdentity(ctx context.Context, email, password, username string) (models.Identity, error) {
	email = normalize.Email(email)
	username = normalize.Name(username)
	if email == "" || password == "" || username == "" {
		return models.Identity{}, ErrMissingField
	}
	if !validate.SimpleEmailValid(email) {
		return models.Identity{}, ErrBadEmail
	}
	if len(password) < MinPasswordLen {
		return models.Identity{}, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return models.Identity{}, fmt.Errorf("hash password: %w", err)
	}

	id, err := p.identities.Create(ctx, models.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, identitystore.ErrEmailInUse) {
			return models.Identity{}, ErrEmailInUse
		}
		return models.Identity{}, err
	}
	return id, nil
}

// DeleteIdentity removes an identity. Used to undo a half-finished registration.
func (p *Provider) DeleteIdentity(ctx context.Context, uid string) error {
	return p.identities.Delete(ctx, uid)
}

// SignIn checks credentials, opens a session on deviceID and notifies the
// device's watchers. A session of the same user already open there is
// replaced; a device held by someone else is never taken over.
func (p *Provider) SignIn(ctx context.Context, email, password, deviceID string) (models.Identity, string, error) {
	id, err := p.identities.GetByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.Identity{}, "", ErrUnknownEmail
	}
	if err != nil {
		return models.Identity{}, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(id.PasswordHash), []byte(password)) != nil {
		return id, "", ErrWrongPassword
	}

	tok, err := p.StartSession(ctx, id, deviceID)
	if err != nil {
		return models.Identity{}, "", err
	}
	return id, tok, nil
}

// StartSession opens a session for an already-verified identity. The device
// the session is bound to, which differs from deviceID when another user
// holds that device, is carried by the token.
func (p *Provider) StartSession(ctx context.Context, id models.Identity, deviceID string) (string, error) {
	sess, err := p.sessions.Create(ctx, id.ID, deviceID, p.ttl)
	if err != nil {
		return "", err
	}
	tok, err := p.codec.Encode(tokenName, sess.ID.Hex())
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}

	signedIn := id
	p.notifier.Publish(Change{DeviceID: sess.DeviceID, Identity: &signedIn})
	p.log.Debug("session started", zap.String("uid", id.ID), zap.String("device_id", sess.DeviceID))
	return tok, nil
}

func (p *Provider) decode(token string) (primitive.ObjectID, error) {
	var hex string
	if err := p.codec.Decode(tokenName, token, &hex); err != nil {
		return primitive.NilObjectID, ErrBadToken
	}
	oid, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, ErrBadToken
	}
	return oid, nil
}

// SignOut ends the session behind token. Unknown, malformed or already
// closed tokens are not an error. The returned uid is empty in that case.
func (p *Provider) SignOut(ctx context.Context, token string) (string, error) {
	oid, err := p.decode(token)
	if err != nil {
		return "", nil
	}
	sess, err := p.sessions.GetByID(ctx, oid)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	closed, err := p.sessions.Close(ctx, oid, sessions.EndSignOut)
	if err != nil {
		return "", err
	}
	if closed {
		p.notifier.Publish(Change{DeviceID: sess.DeviceID})
	}
	return sess.UID, nil
}

// Verify resolves token to its open session and identity.
func (p *Provider) Verify(ctx context.Context, token string) (Principal, error) {
	oid, err := p.decode(token)
	if err != nil {
		return Principal{}, err
	}
	sess, err := p.sessions.GetByID(ctx, oid)
	if errors.Is(err, apperr.ErrNotFound) {
		return Principal{}, ErrBadToken
	}
	if err != nil {
		return Principal{}, err
	}
	now := time.Now().UTC()
	if !sess.Open(now) {
		return Principal{}, ErrSessionEnded
	}

	id, err := p.identities.GetByID(ctx, sess.UID)
	if errors.Is(err, apperr.ErrNotFound) {
		return Principal{}, ErrSessionEnded
	}
	if err != nil {
		return Principal{}, err
	}

	if now.Sub(sess.LastSeenAt) > touchEvery {
		if err := p.sessions.Touch(ctx, sess.ID); err != nil {
			p.log.Warn("session touch failed", zap.String("session_id", sess.ID.Hex()), zap.Error(err))
		}
	}
	return Principal{Identity: id, Session: sess}, nil
}

// Current returns the identity signed in on deviceID, or nil.
func (p *Provider) Current(ctx context.Context, deviceID string) (*models.Identity, error) {
	sess, ok, err := p.sessions.ActiveByDevice(ctx, deviceID)
	if err != nil || !ok {
		return nil, err
	}
	id, err := p.identities.GetByID(ctx, sess.UID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// Watch streams session changes for deviceID. The current state is sent
// first. The channel closes when ctx is done or the notifier stops.
func (p *Provider) Watch(ctx context.Context, deviceID string) (<-chan Change, error) {
	sub := p.notifier.Subscribe(deviceID)

	cur, err := p.Current(ctx, deviceID)
	if err != nil {
		p.notifier.Unsubscribe(deviceID, sub)
		return nil, err
	}

	out := make(chan Change, 1)
	out <- Change{DeviceID: deviceID, Identity: cur}

	go func() {
		defer close(out)
		defer p.notifier.Unsubscribe(deviceID, sub)
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-sub:
				if !ok {
					return
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// ExpireSessions closes sessions past their expiry and notifies their
// devices. It returns how many sessions it closed.
func (p *Provider) ExpireSessions(ctx context.Context, now time.Time) (int, error) {
	expired, err := p.sessions.Expired(ctx, now)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range expired {
		closed, err := p.sessions.Close(ctx, s.ID, sessions.EndExpired)
		if err != nil {
			return n, err
		}
		if closed {
			n++
			p.notifier.Publish(Change{DeviceID: s.DeviceID})
		}
	}
	return n, nil
}
