// Package apitest wires the services over an in-memory store for handler
// tests and offers small request helpers.
package apitest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sociodev/sociodev/internal/app/services/accounts"
	"github.com/sociodev/sociodev/internal/app/services/articles"
	"github.com/sociodev/sociodev/internal/app/services/bookmarks"
	"github.com/sociodev/sociodev/internal/app/services/session"
	"github.com/sociodev/sociodev/internal/app/services/social"
	"github.com/sociodev/sociodev/internal/app/system/auditlog"
	"github.com/sociodev/sociodev/internal/app/system/auth"
	"github.com/sociodev/sociodev/internal/app/system/txn"
	"github.com/sociodev/sociodev/internal/domain/models"
	"github.com/sociodev/sociodev/internal/testutil/authtest"
	"github.com/sociodev/sociodev/internal/testutil/memstore"
	"go.uber.org/zap"
)

// Env is a fully wired service graph over memstore.
type Env struct {
	Mem       *memstore.Store
	Provider  *auth.Provider
	Auth      *auth.Middleware
	Audit     *auditlog.Logger
	Accounts  *accounts.Service
	Articles  *articles.Service
	Bookmarks *bookmarks.Service
	Social    *social.Service
	Hub       *session.Hub
	Log       *zap.Logger
}

func New(t *testing.T) *Env {
	t.Helper()
	log := zap.NewNop()
	mem := memstore.New()
	p := authtest.NewProvider(t, mem)

	e := &Env{
		Mem:       mem,
		Provider:  p,
		Auth:      auth.NewMiddleware(p, authtest.Secret, "sociodev", false, log),
		Audit:     auditlog.New(nil, log, auditlog.Config{Auth: auditlog.Log, Access: auditlog.Log}),
		Accounts:  accounts.New(p, mem.Users, txn.Direct{}, log),
		Articles:  articles.New(mem.Articles, mem.Users, txn.Direct{}, 0, log),
		Bookmarks: bookmarks.New(mem.Users, mem.Articles, txn.Direct{}, log),
		Social:    social.New(mem.Users, txn.Direct{}, log),
		Log:       log,
	}
	e.Hub = session.NewHub(p, e.Accounts, e.Bookmarks, 0, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Hub.Close(ctx)
	})
	return e
}

// User is a registered, signed-in test account.
type User struct {
	models.User
	Token    string
	DeviceID string
}

// Author is the snapshot stored on articles u publishes.
func (u User) Author() models.Author {
	return models.Author{UID: u.ID, Username: u.Username, Email: u.Email}
}

// Register creates an account signed in on deviceID. DeviceID on the result
// is the device the session was actually bound to.
func (e *Env) Register(t *testing.T, username, deviceID string) User {
	t.Helper()
	u, tok, err := e.Accounts.Register(context.Background(), username+"@example.com", "password123", username, deviceID)
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", username, err)
	}
	if tok != "" {
		p, err := e.Provider.Verify(context.Background(), tok)
		if err != nil {
			t.Fatalf("Verify(%s) failed: %v", username, err)
		}
		deviceID = p.Session.DeviceID
	}
	return User{User: u, Token: tok, DeviceID: deviceID}
}

// Request describes one call against a handler.
type Request struct {
	Method   string
	Path     string
	Body     any
	Token    string
	DeviceID string
}

// Do runs req through h and returns the recorder.
func Do(t *testing.T, h http.Handler, req Request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	r := httptest.NewRequest(req.Method, req.Path, body)
	if req.Body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.Token != "" {
		r.Header.Set("Authorization", "Bearer "+req.Token)
	}
	if req.DeviceID != "" {
		r.Header.Set(auth.DeviceHeader, req.DeviceID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

// Decode unmarshals the recorder body into v.
func Decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

// ExpectStatus fails the test when rec has a different status code.
func ExpectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status: got %d, want %d; body %s", rec.Code, want, rec.Body.String())
	}
}
