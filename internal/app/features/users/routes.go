// internal/app/features/users/routes.go
package users

import (
	"github.com/go-chi/chi/v5"
	"github.com/sociodev/sociodev/internal/app/system/auth"
)

// Routes returns the router mounted at /api/users.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSignedIn)
		r.Get("/me", h.ServeMe)
		r.Put("/me", h.ServeUpdateMe)
		r.Get("/me/activity", h.ServeActivity)
		r.Post("/{uid}/follow", h.ServeFollow)
		r.Delete("/{uid}/follow", h.ServeUnfollow)
	})

	r.Get("/{uid}", h.ServeProfile)
	r.Get("/{uid}/followers", h.ServeFollowers)
	r.Get("/{uid}/following", h.ServeFollowing)
	r.Get("/{uid}/articles", h.ServeArticles)
	return r
}
