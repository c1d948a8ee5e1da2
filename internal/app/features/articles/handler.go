// internal/app/features/articles/handler.go
package articles

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	uierrors "github.com/sociodev/sociodev/internal/app/features/errors"
	articlesvc "github.com/sociodev/sociodev/internal/app/services/articles"
	"github.com/sociodev/sociodev/internal/app/store/audit"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/app/system/auditlog"
	"github.com/sociodev/sociodev/internal/app/system/auth"
	"github.com/sociodev/sociodev/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Handler serves the article repository.
type Handler struct {
	Articles *articlesvc.Service
	Audit    *auditlog.Logger
	Log      *zap.Logger
}

func NewHandler(articles *articlesvc.Service, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{Articles: articles, Audit: audit, Log: logger}
}

type draftRequest struct {
	articlesvc.Draft
}

func (*draftRequest) Bind(*http.Request) error { return nil }

// ServeList handles GET /api/articles, newest first. With ?q= it searches
// titles and content.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list articles")
	defer cancel()

	list, err := h.Articles.Search(ctx, r.URL.Query().Get("q"))
	if err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	render.JSON(w, r, list)
}

// ServeTrending handles GET /api/articles/trending?limit=N.
func (h *Handler) ServeTrending(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			uierrors.Write(w, r, h.Log, fmt.Errorf("limit must be a non-negative integer: %w", apperr.ErrInvalid))
			return
		}
		limit = n
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list trending")
	defer cancel()

	list, err := h.Articles.ListTrending(ctx, limit)
	if err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	render.JSON(w, r, list)
}

// ServeGet handles GET /api/articles/{id}.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get article")
	defer cancel()

	h.respondArticle(ctx, w, r, chi.URLParam(r, "id"), http.StatusOK)
}

// ServeCreate handles POST /api/articles. The caller becomes the author.
func (h *Handler) ServeCreate(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	var req draftRequest
	if err := render.Bind(r, &req); err != nil {
		_ = render.Render(w, r, uierrors.InvalidRequest(err))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "create article")
	defer cancel()

	id, err := h.Articles.Create(ctx, p.Identity.Author(), req.Draft)
	if err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	h.respondArticle(ctx, w, r, id, http.StatusCreated)
}

// ServeUpdate handles PUT /api/articles/{id}. Only the author may edit.
func (h *Handler) ServeUpdate(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	id := chi.URLParam(r, "id")
	var req draftRequest
	if err := render.Bind(r, &req); err != nil {
		_ = render.Render(w, r, uierrors.InvalidRequest(err))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "update article")
	defer cancel()

	if err := h.Articles.Update(ctx, p.Identity.ID, id, req.Draft); err != nil {
		if stderrors.Is(err, apperr.ErrForbidden) {
			h.Audit.ArticleDenied(ctx, r, p.Identity.ID, id, audit.EventArticleEditDenied)
		}
		uierrors.Write(w, r, h.Log, err)
		return
	}
	h.respondArticle(ctx, w, r, id, http.StatusOK)
}

// ServeDelete handles DELETE /api/articles/{id}. Only the author may delete.
func (h *Handler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	id := chi.URLParam(r, "id")

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "delete article")
	defer cancel()

	if err := h.Articles.Delete(ctx, p.Identity.ID, id); err != nil {
		if stderrors.Is(err, apperr.ErrForbidden) {
			h.Audit.ArticleDenied(ctx, r, p.Identity.ID, id, audit.EventArticleDeleteDenied)
		}
		uierrors.Write(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
