// internal/app/features/bookmarks/handler.go
package bookmarks

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	uierrors "github.com/sociodev/sociodev/internal/app/features/errors"
	articlesvc "github.com/sociodev/sociodev/internal/app/services/articles"
	bookmarksvc "github.com/sociodev/sociodev/internal/app/services/bookmarks"
	sessionsvc "github.com/sociodev/sociodev/internal/app/services/session"
	"github.com/sociodev/sociodev/internal/app/system/auth"
	"github.com/sociodev/sociodev/internal/app/system/timeouts"
	"github.com/sociodev/sociodev/internal/domain/models"
	"go.uber.org/zap"
)

// Handler serves the caller's saved articles.
type Handler struct {
	Bookmarks *bookmarksvc.Service
	Articles  *articlesvc.Service
	Hub       *sessionsvc.Hub
	Log       *zap.Logger
}

func NewHandler(bookmarks *bookmarksvc.Service, articles *articlesvc.Service, hub *sessionsvc.Hub, logger *zap.Logger) *Handler {
	return &Handler{Bookmarks: bookmarks, Articles: articles, Hub: hub, Log: logger}
}

type listResponse struct {
	IDs      []string         `json:"ids"`
	Articles []models.Article `json:"articles"`
}

// ServeList handles GET /api/bookmarks. Ids whose article has since been
// deleted are listed in ids but have no entry in articles.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list bookmarks")
	defer cancel()

	ids, err := h.Bookmarks.GetBookmarks(ctx, p.Identity.ID)
	if err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	list, err := h.Articles.GetByIDs(ctx, ids)
	if err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	render.JSON(w, r, listResponse{IDs: ids, Articles: list})
}

// ServeAdd handles POST /api/bookmarks/{id}.
func (h *Handler) ServeAdd(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, "add bookmark", h.Bookmarks.Add)
}

// ServeRemove handles DELETE /api/bookmarks/{id}.
func (h *Handler) ServeRemove(w http.ResponseWriter, r *http.Request) {
	h.edit(w, r, "remove bookmark", h.Bookmarks.Remove)
}

// ServeToggle handles POST /api/bookmarks/{id}/toggle and reports whether
// the article is saved afterwards.
func (h *Handler) ServeToggle(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "toggle bookmark")
	defer cancel()

	saved, err := h.Bookmarks.Toggle(ctx, p.Identity.ID, chi.URLParam(r, "id"))
	if err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	h.Hub.RefreshBookmarks(ctx, p.Identity.ID)
	render.JSON(w, r, map[string]bool{"saved": saved})
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, uid, articleID string) error) {
	p, _ := auth.CurrentPrincipal(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, op)
	defer cancel()

	if err := fn(ctx, p.Identity.ID, chi.URLParam(r, "id")); err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	h.Hub.RefreshBookmarks(ctx, p.Identity.ID)
	w.WriteHeader(http.StatusNoContent)
}
