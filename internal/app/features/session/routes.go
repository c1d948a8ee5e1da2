// internal/app/features/session/routes.go
package session

import (
	"github.com/go-chi/chi/v5"
	"github.com/sociodev/sociodev/internal/app/system/auth"
)

// Routes returns the router mounted at /api/session. Both routes need a
// signed-in caller and serve the device the caller's token is bound to.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)
	r.Get("/", h.ServeSnapshot)
	r.Get("/events", h.ServeEvents)
	return r
}
