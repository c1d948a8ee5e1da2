// internal/app/features/users/handler.go
package users

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	uierrors "github.com/sociodev/sociodev/internal/app/features/errors"
	accountsvc "github.com/sociodev/sociodev/internal/app/services/accounts"
	articlesvc "github.com/sociodev/sociodev/internal/app/services/articles"
	sessionsvc "github.com/sociodev/sociodev/internal/app/services/session"
	socialsvc "github.com/sociodev/sociodev/internal/app/services/social"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/app/system/auditlog"
	"github.com/sociodev/sociodev/internal/app/system/auth"
	"github.com/sociodev/sociodev/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Handler serves profiles and the follow graph.
type Handler struct {
	Accounts *accountsvc.Service
	Social   *socialsvc.Service
	Articles *articlesvc.Service
	Hub      *sessionsvc.Hub
	Audit    *auditlog.Logger
	Log      *zap.Logger
}

func NewHandler(accounts *accountsvc.Service, social *socialsvc.Service, articles *articlesvc.Service, hub *sessionsvc.Hub, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{Accounts: accounts, Social: social, Articles: articles, Hub: hub, Audit: audit, Log: logger}
}

const activityLimit = 50

type activityItem struct {
	Time     time.Time `json:"time"`
	Event    string    `json:"event"`
	Success  bool      `json:"success"`
	IP       string    `json:"ip"`
	DeviceID string    `json:"deviceId,omitempty"`
}

type profileRequest struct {
	accountsvc.ProfileUpdate
}

func (*profileRequest) Bind(*http.Request) error { return nil }

// ServeProfile handles GET /api/users/{uid}.
func (h *Handler) ServeProfile(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get profile")
	defer cancel()

	u, err := h.Social.GetByID(ctx, uid)
	if err == nil && u == nil {
		err = fmt.Errorf("profile %s: %w", uid, apperr.ErrNotFound)
	}
	if err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	render.JSON(w, r, u)
}

// ServeMe handles GET /api/users/me.
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get own profile")
	defer cancel()

	u, err := h.Accounts.GetProfile(ctx, p.Identity.ID)
	if err == nil && u == nil {
		err = fmt.Errorf("profile %s: %w", p.Identity.ID, apperr.ErrNotFound)
	}
	if err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	render.JSON(w, r, u)
}

// ServeActivity handles GET /api/users/me/activity: the caller's recent
// register, sign-in and sign-out events.
func (h *Handler) ServeActivity(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "own activity")
	defer cancel()

	events, err := h.Audit.Recent(ctx, p.Identity.ID, activityLimit)
	if err != nil {
		uierrors.Write(w, r, h.Log, apperr.Backend(err))
		return
	}
	out := make([]activityItem, 0, len(events))
	for _, ev := range events {
		out = append(out, activityItem{
			Time:     ev.Timestamp,
			Event:    ev.EventType,
			Success:  ev.Success,
			IP:       ev.IP,
			DeviceID: ev.DeviceID,
		})
	}
	render.JSON(w, r, out)
}

// ServeUpdateMe handles PUT /api/users/me.
func (h *Handler) ServeUpdateMe(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	var req profileRequest
	if err := render.Bind(r, &req); err != nil {
		_ = render.Render(w, r, uierrors.InvalidRequest(err))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "update profile")
	defer cancel()

	uid := p.Identity.ID
	if err := h.Accounts.UpdateProfile(ctx, uid, req.ProfileUpdate); err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	h.Hub.RefreshProfile(ctx, uid)

	u, err := h.Accounts.GetProfile(ctx, uid)
	if err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	render.JSON(w, r, u)
}

// ServeFollowers handles GET /api/users/{uid}/followers.
func (h *Handler) ServeFollowers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list followers")
	defer cancel()

	list, err := h.Social.Followers(ctx, chi.URLParam(r, "uid"))
	if err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	render.JSON(w, r, list)
}

// ServeFollowing handles GET /api/users/{uid}/following.
func (h *Handler) ServeFollowing(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list following")
	defer cancel()

	list, err := h.Social.Following(ctx, chi.URLParam(r, "uid"))
	if err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	render.JSON(w, r, list)
}

// ServeArticles handles GET /api/users/{uid}/articles.
func (h *Handler) ServeArticles(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list author articles")
	defer cancel()

	list, err := h.Articles.ListByAuthor(ctx, chi.URLParam(r, "uid"))
	if err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	render.JSON(w, r, list)
}

// ServeFollow handles POST /api/users/{uid}/follow.
func (h *Handler) ServeFollow(w http.ResponseWriter, r *http.Request) {
	h.editEdge(w, r, "follow", h.Social.Follow)
}

// ServeUnfollow handles DELETE /api/users/{uid}/follow.
func (h *Handler) ServeUnfollow(w http.ResponseWriter, r *http.Request) {
	h.editEdge(w, r, "unfollow", h.Social.Unfollow)
}

func (h *Handler) editEdge(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, a, b string) error) {
	p, _ := auth.CurrentPrincipal(r)
	target := chi.URLParam(r, "uid")

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, op)
	defer cancel()

	if err := fn(ctx, p.Identity.ID, target); err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	h.Hub.RefreshProfile(ctx, p.Identity.ID)
	h.Hub.RefreshProfile(ctx, target)
	w.WriteHeader(http.StatusNoContent)
}
