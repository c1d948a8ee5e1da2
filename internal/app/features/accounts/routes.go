// internal/app/features/accounts/routes.go
package accounts

import "github.com/go-chi/chi/v5"

// Routes returns the router mounted at /api/auth.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.ServeRegister)
	r.Post("/signin", h.ServeSignIn)
	r.Post("/signout", h.ServeSignOut)
	return r
}
