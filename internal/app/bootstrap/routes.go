// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	accountsfeature "github.com/sociodev/sociodev/internal/app/features/accounts"
	articlesfeature "github.com/sociodev/sociodev/internal/app/features/articles"
	bookmarksfeature "github.com/sociodev/sociodev/internal/app/features/bookmarks"
	draftsfeature "github.com/sociodev/sociodev/internal/app/features/drafts"
	uierrors "github.com/sociodev/sociodev/internal/app/features/errors"
	healthfeature "github.com/sociodev/sociodev/internal/app/features/health"
	sessionfeature "github.com/sociodev/sociodev/internal/app/features/session"
	usersfeature "github.com/sociodev/sociodev/internal/app/features/users"
	"github.com/sociodev/sociodev/internal/app/system/auth"
	"github.com/sociodev/sociodev/internal/app/system/limits"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler for SocioDev.
//
// WAFFLE calls this after configuration, DB connections, schema setup and
// Startup have completed. Every /api route sees the caller loaded by
// auth.LoadPrincipal; routes that need a signed-in caller add
// auth.RequireSignedIn themselves.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	s := deps.Services
	if s == nil || s.Provider == nil {
		return nil, errors.New("services not initialized; Startup must run first")
	}

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	mw := auth.NewMiddleware(s.Provider, appCfg.SessionKey, appCfg.SessionName, secure, logger)

	r := chi.NewRouter()
	r.NotFound(uierrors.NotFound)
	r.MethodNotAllowed(uierrors.MethodNotAllowed)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, s.Hub, s.Notifier, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(middleware.RequestSize(limits.MaxAPIBody))
		r.Use(mw.LoadPrincipal)
		r.NotFound(uierrors.NotFound)
		r.MethodNotAllowed(uierrors.MethodNotAllowed)

		accountsHandler := accountsfeature.NewHandler(s.Accounts, mw, s.Audit, s.SignInLimiter, logger)
		r.With(middleware.RequestSize(limits.MaxAuthBody)).Mount("/auth", accountsfeature.Routes(accountsHandler))

		sessionHandler := sessionfeature.NewHandler(s.Hub, logger)
		r.Mount("/session", sessionfeature.Routes(sessionHandler))

		usersHandler := usersfeature.NewHandler(s.Accounts, s.Social, s.Articles, s.Hub, s.Audit, logger)
		r.Mount("/users", usersfeature.Routes(usersHandler))

		articlesHandler := articlesfeature.NewHandler(s.Articles, s.Audit, logger)
		r.Mount("/articles", articlesfeature.Routes(articlesHandler))

		bookmarksHandler := bookmarksfeature.NewHandler(s.Bookmarks, s.Articles, s.Hub, logger)
		r.Mount("/bookmarks", bookmarksfeature.Routes(bookmarksHandler))

		draftsHandler := draftsfeature.NewHandler(s.Drafts, logger)
		r.Mount("/drafts", draftsfeature.Routes(draftsHandler))
	})

	logger.Info("routes mounted", zap.Bool("drafts_enabled", s.Drafts.Enabled()))
	return r, nil
}
