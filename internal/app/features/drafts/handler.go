// internal/app/features/drafts/handler.go
package drafts

import (
	stderrors "errors"
	"net/http"

	"github.com/go-chi/render"
	uierrors "github.com/sociodev/sociodev/internal/app/features/errors"
	"github.com/sociodev/sociodev/internal/app/system/draft"
	"github.com/sociodev/sociodev/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Handler proposes article drafts. Nothing is stored; the client decides
// whether to publish the result through /api/articles.
type Handler struct {
	Drafts *draft.Client
	Log    *zap.Logger
}

func NewHandler(drafts *draft.Client, logger *zap.Logger) *Handler {
	return &Handler{Drafts: drafts, Log: logger}
}

type draftRequest struct {
	Topic string `json:"topic"`
}

func (*draftRequest) Bind(*http.Request) error { return nil }

// ServeGenerate handles POST /api/drafts with body {"topic": "..."}.
func (h *Handler) ServeGenerate(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := render.Bind(r, &req); err != nil {
		_ = render.Render(w, r, uierrors.InvalidRequest(err))
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Batch(), h.Log, "generate draft")
	defer cancel()

	d, err := h.Drafts.Generate(ctx, req.Topic)
	switch {
	case stderrors.Is(err, draft.ErrNotConfigured):
		_ = render.Render(w, r, &uierrors.Response{Err: err, Status: http.StatusNotImplemented, Message: err.Error()})
		return
	case stderrors.Is(err, draft.ErrMalformed):
		h.Log.Warn("draft answer unusable", zap.Error(err))
		_ = render.Render(w, r, &uierrors.Response{Err: err, Status: http.StatusBadGateway, Message: draft.ErrMalformed.Error()})
		return
	case err != nil:
		uierrors.Write(w, r, h.Log, err)
		return
	}
	render.JSON(w, r, d)
}
