package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/gorilla/sessions"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"go.uber.org/zap"
)

// DeviceHeader identifies the client device on every request.
const DeviceHeader = "X-Device-ID"

const (
	cookieTokenKey  = "token"
	cookieDeviceKey = "device_id"
)

type ctxKey string

const principalKey ctxKey = "principal"

// Verifier resolves a token to its caller.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// Middleware authenticates requests by bearer token or session cookie.
type Middleware struct {
	verifier   Verifier
	cookies    *sessions.CookieStore
	cookieName string
	log        *zap.Logger
}

// NewMiddleware builds a Middleware. The cookie store keeps the token and
// device id for browser clients that cannot set headers.
func NewMiddleware(v Verifier, cookieSecret, cookieName string, secure bool, logger *zap.Logger) *Middleware {
	store := sessions.NewCookieStore([]byte(cookieSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Middleware{verifier: v, cookies: store, cookieName: cookieName, log: logger}
}

// WithPrincipal returns ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// CurrentPrincipal returns the authenticated caller, if any.
func CurrentPrincipal(r *http.Request) (Principal, bool) {
	p, ok := r.Context().Value(principalKey).(Principal)
	return p, ok
}

// Token returns the bearer token, falling back to the session cookie.
func (m *Middleware) Token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	sess, err := m.cookies.Get(r, m.cookieName)
	if err != nil {
		return ""
	}
	tok, _ := sess.Values[cookieTokenKey].(string)
	return tok
}

// DeviceID returns the X-Device-ID header, falling back to the device id
// remembered in the session cookie.
func (m *Middleware) DeviceID(r *http.Request) string {
	if d := strings.TrimSpace(r.Header.Get(DeviceHeader)); d != "" {
		return d
	}
	sess, err := m.cookies.Get(r, m.cookieName)
	if err != nil {
		return ""
	}
	d, _ := sess.Values[cookieDeviceKey].(string)
	return d
}

// SessionDevice returns the device id the session behind token is bound to.
func (m *Middleware) SessionDevice(ctx context.Context, token string) (string, error) {
	p, err := m.verifier.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	return p.Session.DeviceID, nil
}

// SaveToken writes token and deviceID into the session cookie.
func (m *Middleware) SaveToken(w http.ResponseWriter, r *http.Request, token, deviceID string) error {
	sess, _ := m.cookies.Get(r, m.cookieName)
	sess.Values[cookieTokenKey] = token
	sess.Values[cookieDeviceKey] = deviceID
	return sess.Save(r, w)
}

// ClearToken drops the token from the session cookie, keeping the device id.
func (m *Middleware) ClearToken(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.cookies.Get(r, m.cookieName)
	delete(sess.Values, cookieTokenKey)
	return sess.Save(r, w)
}

// LoadPrincipal puts the verified caller into the request context. Requests
// with a missing or dead token continue anonymously.
func (m *Middleware) LoadPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := m.Token(r)
		if tok == "" {
			next.ServeHTTP(w, r)
			return
		}
		p, err := m.verifier.Verify(r.Context(), tok)
		switch {
		case err == nil:
			r = r.WithContext(WithPrincipal(r.Context(), p))
		case errors.Is(err, apperr.ErrAuth):
		default:
			m.log.Warn("token verification failed", zap.Error(err))
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"error": apperr.ErrUnavailable.Error()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn rejects anonymous requests with 401.
func RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentPrincipal(r); !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
