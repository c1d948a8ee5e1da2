// internal/app/features/drafts/routes.go
package drafts

import (
	"github.com/go-chi/chi/v5"
	"github.com/sociodev/sociodev/internal/app/system/auth"
)

// Routes returns the router mounted at /api/drafts.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)
	r.Post("/", h.ServeGenerate)
	return r
}
