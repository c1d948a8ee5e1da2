// internal/app/features/bookmarks/routes.go
package bookmarks

import (
	"github.com/go-chi/chi/v5"
	"github.com/sociodev/sociodev/internal/app/system/auth"
)

// Routes returns the router mounted at /api/bookmarks. Every route needs a
// signed-in caller.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)
	r.Get("/", h.ServeList)
	r.Post("/{id}", h.ServeAdd)
	r.Delete("/{id}", h.ServeRemove)
	r.Post("/{id}/toggle", h.ServeToggle)
	return r
}
