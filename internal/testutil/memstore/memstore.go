// Package memstore is an in-memory stand-in for the Mongo stores, used by
// service and handler tests. It mirrors the stores' error contract
// (apperr.ErrNotFound, ErrEmailInUse, set-change reporting) and lets a test
// inject failures per operation.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	articlestore "github.com/sociodev/sociodev/internal/app/store/articles"
	identitystore "github.com/sociodev/sociodev/internal/app/store/identities"
	"github.com/sociodev/sociodev/internal/app/store/sessions"
	userstore "github.com/sociodev/sociodev/internal/app/store/users"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/app/system/normalize"
	"github.com/sociodev/sociodev/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type state struct {
	mu         sync.Mutex
	users      map[string]models.User
	articles   map[string]models.Article
	identities map[string]models.Identity
	sessions   map[primitive.ObjectID]sessions.Session
	fail       map[string]error
	calls      map[string]int
}

// failure returns the injected error for op and counts the call.
// Callers hold mu.
func (s *state) failure(op string) error {
	s.calls[op]++
	return s.fail[op]
}

// Store groups the four in-memory collections over shared state.
type Store struct {
	st *state

	Users      *Users
	Articles   *Articles
	Identities *Identities
	Sessions   *Sessions
}

// New returns an empty Store.
func New() *Store {
	st := &state{
		users:      map[string]models.User{},
		articles:   map[string]models.Article{},
		identities: map[string]models.Identity{},
		sessions:   map[primitive.ObjectID]sessions.Session{},
		fail:       map[string]error{},
		calls:      map[string]int{},
	}
	return &Store{
		st:         st,
		Users:      &Users{st},
		Articles:   &Articles{st},
		Identities: &Identities{st},
		Sessions:   &Sessions{st},
	}
}

// FailOn makes op (for example "users.Create") return err until cleared
// with a nil err.
func (m *Store) FailOn(op string, err error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	if err == nil {
		delete(m.st.fail, op)
		return
	}
	m.st.fail[op] = err
}

// Calls returns how many times op was invoked.
func (m *Store) Calls(op string) int {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	return m.st.calls[op]
}

func clone(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneUser(u models.User) models.User {
	u.Followers = clone(u.Followers)
	u.Following = clone(u.Following)
	u.Bookmarks = clone(u.Bookmarks)
	return u
}

func cloneArticle(a models.Article) models.Article {
	a.Tags = clone(a.Tags)
	return a
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, apperr.ErrNotFound)
}

/* -------------------------------------------------------------------------- */
/* users                                                                      */
/* -------------------------------------------------------------------------- */

// Users mirrors userstore.Store.
type Users struct{ st *state }

// Put stores u as-is, for test setup.
func (u *Users) Put(user models.User) {
	u.st.mu.Lock()
	defer u.st.mu.Unlock()
	u.st.users[user.ID] = cloneUser(user)
}

func (u *Users) Create(_ context.Context, user models.User) (models.User, error) {
	u.st.mu.Lock()
	defer u.st.mu.Unlock()
	if err := u.st.failure("users.Create"); err != nil {
		return models.User{}, err
	}
	if _, ok := u.st.users[user.ID]; ok {
		return models.User{}, userstore.ErrDuplicateProfile
	}
	user.Email = normalize.Email(user.Email)
	user.Username = normalize.Name(user.Username)
	user.UsernameCI = strings.ToLower(user.Username)
	if user.Followers == nil {
		user.Followers = []string{}
	}
	if user.Following == nil {
		user.Following = []string{}
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	u.st.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (u *Users) GetByID(_ context.Context, uid string) (*models.User, error) {
	u.st.mu.Lock()
	defer u.st.mu.Unlock()
	if err := u.st.failure("users.GetByID"); err != nil {
		return nil, err
	}
	user, ok := u.st.users[uid]
	if !ok {
		return nil, notFound("profile", uid)
	}
	c := cloneUser(user)
	return &c, nil
}

func (u *Users) GetByIDs(_ context.Context, uids []string) ([]models.User, error) {
	u.st.mu.Lock()
	defer u.st.mu.Unlock()
	if err := u.st.failure("users.GetByIDs"); err != nil {
		return nil, err
	}
	out := []models.User{}
	for _, id := range uids {
		if user, ok := u.st.users[id]; ok {
			out = append(out, cloneUser(user))
		}
	}
	return out, nil
}

func (u *Users) UpdateProfile(_ context.Context, uid string, upd userstore.ProfileUpdate) error {
	u.st.mu.Lock()
	defer u.st.mu.Unlock()
	if err := u.st.failure("users.UpdateProfile"); err != nil {
		return err
	}
	user, ok := u.st.users[uid]
	if !ok {
		return notFound("profile", uid)
	}
	user.PortfolioURL = upd.PortfolioURL
	user.GithubURL = upd.GithubURL
	user.LinkedinURL = upd.LinkedinURL
	user.ProfileImageBase64 = upd.ProfileImageBase64
	user.UpdatedAt = time.Now().UTC()
	u.st.users[uid] = user
	return nil
}

func setField(user *models.User, field string) (*[]string, error) {
	switch field {
	case userstore.FieldFollowers:
		return &user.Followers, nil
	case userstore.FieldFollowing:
		return &user.Following, nil
	case userstore.FieldBookmarks:
		return &user.Bookmarks, nil
	}
	return nil, fmt.Errorf("unknown set field %q: %w", field, apperr.ErrInvalid)
}

func (u *Users) AddToSet(_ context.Context, uid, field, value string) (bool, error) {
	return u.modify("users.AddToSet", uid, field, value, true)
}

func (u *Users) Pull(_ context.Context, uid, field, value string) (bool, error) {
	return u.modify("users.Pull", uid, field, value, false)
}

func (u *Users) modify(op, uid, field, value string, add bool) (bool, error) {
	u.st.mu.Lock()
	defer u.st.mu.Unlock()
	if err := u.st.failure(op); err != nil {
		return false, err
	}
	user, ok := u.st.users[uid]
	if !ok {
		return false, notFound("profile", uid)
	}
	set, err := setField(&user, field)
	if err != nil {
		return false, err
	}
	idx := -1
	for i, v := range *set {
		if v == value {
			idx = i
			break
		}
	}
	switch {
	case add && idx < 0:
		*set = append(clone(*set), value)
	case !add && idx >= 0:
		next := clone(*set)
		*set = append(next[:idx], next[idx+1:]...)
	default:
		return false, nil
	}
	user.UpdatedAt = time.Now().UTC()
	u.st.users[uid] = user
	return true, nil
}

func (u *Users) Bookmarks(_ context.Context, uid string) ([]string, error) {
	u.st.mu.Lock()
	defer u.st.mu.Unlock()
	if err := u.st.failure("users.Bookmarks"); err != nil {
		return nil, err
	}
	user, ok := u.st.users[uid]
	if !ok {
		return nil, notFound("profile", uid)
	}
	if user.Bookmarks == nil {
		return []string{}, nil
	}
	return clone(user.Bookmarks), nil
}

func (u *Users) PullEverywhere(_ context.Context, field, value string) (int64, error) {
	u.st.mu.Lock()
	defer u.st.mu.Unlock()
	if err := u.st.failure("users.PullEverywhere"); err != nil {
		return 0, err
	}
	var n int64
	for id, user := range u.st.users {
		set, err := setField(&user, field)
		if err != nil {
			return 0, err
		}
		kept := []string{}
		for _, v := range *set {
			if v != value {
				kept = append(kept, v)
			}
		}
		if len(kept) != len(*set) {
			*set = kept
			user.UpdatedAt = time.Now().UTC()
			u.st.users[id] = user
			n++
		}
	}
	return n, nil
}

func (u *Users) BookmarkCounts(_ context.Context) (map[string]int64, error) {
	u.st.mu.Lock()
	defer u.st.mu.Unlock()
	if err := u.st.failure("users.BookmarkCounts"); err != nil {
		return nil, err
	}
	counts := map[string]int64{}
	for _, user := range u.st.users {
		for _, id := range user.Bookmarks {
			counts[id]++
		}
	}
	return counts, nil
}

func (u *Users) FollowGraph(_ context.Context) ([]models.User, error) {
	u.st.mu.Lock()
	defer u.st.mu.Unlock()
	if err := u.st.failure("users.FollowGraph"); err != nil {
		return nil, err
	}
	var out []models.User
	for _, user := range u.st.users {
		if len(user.Followers) > 0 || len(user.Following) > 0 {
			out = append(out, models.User{ID: user.ID, Followers: clone(user.Followers), Following: clone(user.Following)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

/* -------------------------------------------------------------------------- */
/* articles                                                                   */
/* -------------------------------------------------------------------------- */

// Articles mirrors articlestore.Store.
type Articles struct{ st *state }

// Put stores a as-is, for test setup.
func (a *Articles) Put(art models.Article) {
	a.st.mu.Lock()
	defer a.st.mu.Unlock()
	a.st.articles[art.ID] = cloneArticle(art)
}

func (a *Articles) Create(_ context.Context, art models.Article) error {
	a.st.mu.Lock()
	defer a.st.mu.Unlock()
	if err := a.st.failure("articles.Create"); err != nil {
		return err
	}
	if _, ok := a.st.articles[art.ID]; ok {
		return articlestore.ErrDuplicateID
	}
	if art.Tags == nil {
		art.Tags = []string{}
	}
	a.st.articles[art.ID] = cloneArticle(art)
	return nil
}

func (a *Articles) GetByID(_ context.Context, id string) (*models.Article, error) {
	a.st.mu.Lock()
	defer a.st.mu.Unlock()
	if err := a.st.failure("articles.GetByID"); err != nil {
		return nil, err
	}
	art, ok := a.st.articles[id]
	if !ok {
		return nil, notFound("article", id)
	}
	c := cloneArticle(art)
	return &c, nil
}

func (a *Articles) list(op string, keep func(models.Article) bool, less func(x, y models.Article) bool) ([]models.Article, error) {
	a.st.mu.Lock()
	defer a.st.mu.Unlock()
	if err := a.st.failure(op); err != nil {
		return nil, err
	}
	out := []models.Article{}
	for _, art := range a.st.articles {
		if keep == nil || keep(art) {
			out = append(out, cloneArticle(art))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

func newestFirst(x, y models.Article) bool {
	if !x.CreatedAt.Equal(y.CreatedAt) {
		return x.CreatedAt.After(y.CreatedAt)
	}
	return x.ID < y.ID
}

func (a *Articles) ListRecent(_ context.Context) ([]models.Article, error) {
	return a.list("articles.ListRecent", nil, newestFirst)
}

func (a *Articles) ListTrending(_ context.Context, limit int64) ([]models.Article, error) {
	if limit <= 0 {
		limit = articlestore.DefaultTrendingLimit
	}
	out, err := a.list("articles.ListTrending", nil, func(x, y models.Article) bool {
		if x.SavedCount != y.SavedCount {
			return x.SavedCount > y.SavedCount
		}
		return newestFirst(x, y)
	})
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (a *Articles) ListByAuthor(_ context.Context, uid string) ([]models.Article, error) {
	return a.list("articles.ListByAuthor", func(art models.Article) bool {
		return art.Author.UID == uid
	}, newestFirst)
}

func (a *Articles) Search(_ context.Context, q string) ([]models.Article, error) {
	q = strings.ToLower(q)
	return a.list("articles.Search", func(art models.Article) bool {
		return strings.Contains(strings.ToLower(art.Title), q) ||
			strings.Contains(strings.ToLower(art.Content), q)
	}, newestFirst)
}

func (a *Articles) Update(_ context.Context, id string, upd articlestore.Update) error {
	a.st.mu.Lock()
	defer a.st.mu.Unlock()
	if err := a.st.failure("articles.Update"); err != nil {
		return err
	}
	art, ok := a.st.articles[id]
	if !ok {
		return notFound("article", id)
	}
	art.Title = upd.Title
	art.Content = upd.Content
	art.Tags = clone(upd.Tags)
	if art.Tags == nil {
		art.Tags = []string{}
	}
	art.ImageBase64 = upd.ImageBase64
	now := time.Now().UTC()
	art.UpdatedAt = &now
	a.st.articles[id] = art
	return nil
}

func (a *Articles) Delete(_ context.Context, id string) (bool, error) {
	a.st.mu.Lock()
	defer a.st.mu.Unlock()
	if err := a.st.failure("articles.Delete"); err != nil {
		return false, err
	}
	if _, ok := a.st.articles[id]; !ok {
		return false, nil
	}
	delete(a.st.articles, id)
	return true, nil
}

func (a *Articles) IncSaved(_ context.Context, id string) error {
	a.st.mu.Lock()
	defer a.st.mu.Unlock()
	if err := a.st.failure("articles.IncSaved"); err != nil {
		return err
	}
	art, ok := a.st.articles[id]
	if !ok {
		return notFound("article", id)
	}
	art.SavedCount++
	a.st.articles[id] = art
	return nil
}

func (a *Articles) DecSaved(_ context.Context, id string) error {
	a.st.mu.Lock()
	defer a.st.mu.Unlock()
	if err := a.st.failure("articles.DecSaved"); err != nil {
		return err
	}
	art, ok := a.st.articles[id]
	if ok && art.SavedCount > 0 {
		art.SavedCount--
		a.st.articles[id] = art
	}
	return nil
}

func (a *Articles) SavedCounts(_ context.Context) (map[string]int64, error) {
	a.st.mu.Lock()
	defer a.st.mu.Unlock()
	if err := a.st.failure("articles.SavedCounts"); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(a.st.articles))
	for id, art := range a.st.articles {
		out[id] = art.SavedCount
	}
	return out, nil
}

func (a *Articles) SetSavedCount(_ context.Context, id string, n int64) error {
	a.st.mu.Lock()
	defer a.st.mu.Unlock()
	if err := a.st.failure("articles.SetSavedCount"); err != nil {
		return err
	}
	if n < 0 {
		n = 0
	}
	if art, ok := a.st.articles[id]; ok {
		art.SavedCount = n
		a.st.articles[id] = art
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* identities                                                                 */
/* -------------------------------------------------------------------------- */

// Identities mirrors identitystore.Store.
type Identities struct{ st *state }

func (s *Identities) Create(_ context.Context, id models.Identity) (models.Identity, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.st.failure("identities.Create"); err != nil {
		return models.Identity{}, err
	}
	id.Email = normalize.Email(id.Email)
	for _, existing := range s.st.identities {
		if existing.Email == id.Email {
			return models.Identity{}, identitystore.ErrEmailInUse
		}
	}
	if id.CreatedAt.IsZero() {
		id.CreatedAt = time.Now().UTC()
	}
	s.st.identities[id.ID] = id
	return id, nil
}

func (s *Identities) GetByID(_ context.Context, uid string) (models.Identity, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.st.failure("identities.GetByID"); err != nil {
		return models.Identity{}, err
	}
	id, ok := s.st.identities[uid]
	if !ok {
		return models.Identity{}, notFound("identity", uid)
	}
	return id, nil
}

func (s *Identities) GetByEmail(_ context.Context, email string) (models.Identity, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.st.failure("identities.GetByEmail"); err != nil {
		return models.Identity{}, err
	}
	email = normalize.Email(email)
	for _, id := range s.st.identities {
		if id.Email == email {
			return id, nil
		}
	}
	return models.Identity{}, notFound("identity", email)
}

func (s *Identities) Delete(_ context.Context, uid string) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.st.failure("identities.Delete"); err != nil {
		return err
	}
	delete(s.st.identities, uid)
	return nil
}

// Count returns the number of stored identities.
func (s *Identities) Count() int {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return len(s.st.identities)
}

/* -------------------------------------------------------------------------- */
/* sessions                                                                   */
/* -------------------------------------------------------------------------- */

// Sessions mirrors sessions.Store.
type Sessions struct{ st *state }

func (s *Sessions) Create(_ context.Context, uid, deviceID string, ttl time.Duration) (sessions.Session, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.st.failure("sessions.Create"); err != nil {
		return sessions.Session{}, err
	}
	now := time.Now().UTC()
	for _, sess := range s.st.sessions {
		if sess.DeviceID == deviceID && sess.UID != uid && sess.Open(now) {
			deviceID = uuid.NewString()
			break
		}
	}
	for id, sess := range s.st.sessions {
		if sess.DeviceID == deviceID && sess.UID == uid && sess.SignedOutAt == nil {
			t := now
			sess.SignedOutAt = &t
			sess.EndReason = sessions.EndReplaced
			s.st.sessions[id] = sess
		}
	}
	sess := sessions.Session{
		ID:         primitive.NewObjectID(),
		UID:        uid,
		DeviceID:   deviceID,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	s.st.sessions[sess.ID] = sess
	return sess, nil
}

func (s *Sessions) GetByID(_ context.Context, id primitive.ObjectID) (sessions.Session, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.st.failure("sessions.GetByID"); err != nil {
		return sessions.Session{}, err
	}
	sess, ok := s.st.sessions[id]
	if !ok {
		return sessions.Session{}, notFound("session", id.Hex())
	}
	return sess, nil
}

func (s *Sessions) ActiveByDevice(_ context.Context, deviceID string) (sessions.Session, bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.st.failure("sessions.ActiveByDevice"); err != nil {
		return sessions.Session{}, false, err
	}
	now := time.Now().UTC()
	var best sessions.Session
	found := false
	for _, sess := range s.st.sessions {
		if sess.DeviceID == deviceID && sess.Open(now) && (!found || sess.CreatedAt.After(best.CreatedAt)) {
			best, found = sess, true
		}
	}
	return best, found, nil
}

func (s *Sessions) Touch(_ context.Context, id primitive.ObjectID) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.st.failure("sessions.Touch"); err != nil {
		return err
	}
	if sess, ok := s.st.sessions[id]; ok && sess.SignedOutAt == nil {
		sess.LastSeenAt = time.Now().UTC()
		s.st.sessions[id] = sess
	}
	return nil
}

func (s *Sessions) Close(_ context.Context, id primitive.ObjectID, reason string) (bool, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.st.failure("sessions.Close"); err != nil {
		return false, err
	}
	sess, ok := s.st.sessions[id]
	if !ok || sess.SignedOutAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	sess.SignedOutAt = &now
	sess.EndReason = reason
	s.st.sessions[id] = sess
	return true, nil
}

func (s *Sessions) Expired(_ context.Context, now time.Time) ([]sessions.Session, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err := s.st.failure("sessions.Expired"); err != nil {
		return nil, err
	}
	var out []sessions.Session
	for _, sess := range s.st.sessions {
		if sess.SignedOutAt == nil && !now.Before(sess.ExpiresAt) {
			out = append(out, sess)
		}
	}
	return out, nil
}

// Expire moves a session's expiry into the past, for tests.
func (s *Sessions) Expire(id primitive.ObjectID) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if sess, ok := s.st.sessions[id]; ok {
		sess.ExpiresAt = time.Now().UTC().Add(-time.Second)
		s.st.sessions[id] = sess
	}
}
