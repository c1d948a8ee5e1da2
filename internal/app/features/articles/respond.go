package articles

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	uierrors "github.com/sociodev/sociodev/internal/app/features/errors"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
)

// respondArticle loads id and writes it with status, or 404 when missing.
func (h *Handler) respondArticle(ctx context.Context, w http.ResponseWriter, r *http.Request, id string, status int) {
	a, err := h.Articles.GetByID(ctx, id)
	if err == nil && a == nil {
		err = fmt.Errorf("article %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	render.Status(r, status)
	render.JSON(w, r, a)
}
