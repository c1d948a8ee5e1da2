// internal/app/features/articles/routes.go
package articles

import (
	"github.com/go-chi/chi/v5"
	"github.com/sociodev/sociodev/internal/app/system/auth"
)

// Routes returns the router mounted at /api/articles.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ServeList)
	r.Get("/trending", h.ServeTrending)
	r.Get("/{id}", h.ServeGet)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSignedIn)
		r.Post("/", h.ServeCreate)
		r.Put("/{id}", h.ServeUpdate)
		r.Delete("/{id}", h.ServeDelete)
	})
	return r
}
