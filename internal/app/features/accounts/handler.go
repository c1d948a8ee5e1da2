// internal/app/features/accounts/handler.go
package accounts

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	uierrors "github.com/sociodev/sociodev/internal/app/features/errors"
	accountsvc "github.com/sociodev/sociodev/internal/app/services/accounts"
	"github.com/sociodev/sociodev/internal/app/system/auditlog"
	"github.com/sociodev/sociodev/internal/app/system/auth"
	"github.com/sociodev/sociodev/internal/app/system/ratelimit"
	"github.com/sociodev/sociodev/internal/app/system/timeouts"
	"github.com/sociodev/sociodev/internal/domain/models"
	"go.uber.org/zap"
)

// Handler serves registration, sign-in and sign-out.
type Handler struct {
	Accounts *accountsvc.Service
	Auth     *auth.Middleware
	Audit    *auditlog.Logger
	Limiter  *ratelimit.SignInLimiter // nil disables throttling
	Log      *zap.Logger
}

func NewHandler(accounts *accountsvc.Service, mw *auth.Middleware, audit *auditlog.Logger, limiter *ratelimit.SignInLimiter, logger *zap.Logger) *Handler {
	return &Handler{Accounts: accounts, Auth: mw, Audit: audit, Limiter: limiter, Log: logger}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

func (*registerRequest) Bind(*http.Request) error { return nil }

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (*signInRequest) Bind(*http.Request) error { return nil }

type registerResponse struct {
	Profile  models.User `json:"profile"`
	Token    string      `json:"token"`
	DeviceID string      `json:"deviceId"`
}

type signInResponse struct {
	Identity models.Identity `json:"identity"`
	Token    string          `json:"token"`
	DeviceID string          `json:"deviceId"`
}

// deviceID returns the caller's device id, minting one for clients that
// have none yet.
func (h *Handler) deviceID(r *http.Request) string {
	if d := h.Auth.DeviceID(r); d != "" {
		return d
	}
	return uuid.NewString()
}

// boundDevice returns the device the new session was opened on. It differs
// from requested when that device was held by another account.
func (h *Handler) boundDevice(ctx context.Context, token, requested string) string {
	d, err := h.Auth.SessionDevice(ctx, token)
	if err != nil || d == "" {
		return requested
	}
	return d
}

// ServeRegister handles POST /api/auth/register. The new account is signed
// in on the calling device.
func (h *Handler) ServeRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := render.Bind(r, &req); err != nil {
		_ = render.Render(w, r, uierrors.InvalidRequest(err))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "register")
	defer cancel()

	device := h.deviceID(r)
	profile, token, err := h.Accounts.Register(ctx, req.Email, req.Password, req.Username, device)
	if err != nil {
		h.Audit.RegisterFailed(ctx, r, strings.TrimSpace(req.Email), err.Error())
		uierrors.Write(w, r, h.Log, err)
		return
	}
	h.Audit.Registered(ctx, r, profile.ID, profile.Email)
	device = h.boundDevice(ctx, token, device)

	if err := h.Auth.SaveToken(w, r, token, device); err != nil {
		h.Log.Warn("failed to save session cookie", zap.Error(err))
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, registerResponse{Profile: profile, Token: token, DeviceID: device})
}

// ServeSignIn handles POST /api/auth/signin.
func (h *Handler) ServeSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := render.Bind(r, &req); err != nil {
		_ = render.Render(w, r, uierrors.InvalidRequest(err))
		return
	}

	email := strings.TrimSpace(req.Email)
	if h.Limiter != nil {
		if ok, msg := h.Limiter.Allow(auditlog.ClientIP(r), email); !ok {
			h.Log.Info("sign-in throttled", zap.String("ip", auditlog.ClientIP(r)))
			_ = render.Render(w, r, &uierrors.Response{Status: http.StatusTooManyRequests, Message: msg})
			return
		}
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "signin")
	defer cancel()

	device := h.deviceID(r)
	id, token, err := h.Accounts.SignIn(ctx, email, req.Password, device)
	switch {
	case err == nil:
	case stderrors.Is(err, auth.ErrUnknownEmail):
		h.Audit.SignInFailedUnknownEmail(ctx, r, email)
		uierrors.Write(w, r, h.Log, err)
		return
	case stderrors.Is(err, auth.ErrWrongPassword):
		h.Audit.SignInFailedWrongPassword(ctx, r, "", email)
		uierrors.Write(w, r, h.Log, err)
		return
	default:
		uierrors.Write(w, r, h.Log, err)
		return
	}
	h.Audit.SignInSuccess(ctx, r, id.ID, id.Email)
	if h.Limiter != nil {
		h.Limiter.Succeeded(email)
	}
	device = h.boundDevice(ctx, token, device)

	if err := h.Auth.SaveToken(w, r, token, device); err != nil {
		h.Log.Warn("failed to save session cookie", zap.Error(err))
	}
	render.JSON(w, r, signInResponse{Identity: id, Token: token, DeviceID: device})
}

// ServeSignOut handles POST /api/auth/signout. Signing out twice, or with no
// token at all, still answers 204.
func (h *Handler) ServeSignOut(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "signout")
	defer cancel()

	if token := h.Auth.Token(r); token != "" {
		uid, err := h.Accounts.SignOut(ctx, token)
		if err != nil {
			uierrors.Write(w, r, h.Log, err)
			return
		}
		if uid != "" {
			h.Audit.SignOut(ctx, r, uid)
		}
	}
	if err := h.Auth.ClearToken(w, r); err != nil {
		h.Log.Warn("failed to clear session cookie", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}
