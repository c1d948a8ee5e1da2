// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/waffle/config"
	accountsvc "github.com/sociodev/sociodev/internal/app/services/accounts"
	articlesvc "github.com/sociodev/sociodev/internal/app/services/articles"
	bookmarksvc "github.com/sociodev/sociodev/internal/app/services/bookmarks"
	sessionsvc "github.com/sociodev/sociodev/internal/app/services/session"
	socialsvc "github.com/sociodev/sociodev/internal/app/services/social"
	articlestore "github.com/sociodev/sociodev/internal/app/store/articles"
	"github.com/sociodev/sociodev/internal/app/store/audit"
	identitystore "github.com/sociodev/sociodev/internal/app/store/identities"
	"github.com/sociodev/sociodev/internal/app/store/sessions"
	userstore "github.com/sociodev/sociodev/internal/app/store/users"
	"github.com/sociodev/sociodev/internal/app/system/auditlog"
	"github.com/sociodev/sociodev/internal/app/system/auth"
	"github.com/sociodev/sociodev/internal/app/system/draft"
	"github.com/sociodev/sociodev/internal/app/system/ratelimit"
	"github.com/sociodev/sociodev/internal/app/system/timeouts"
	"github.com/sociodev/sociodev/internal/app/system/txn"
	"github.com/sociodev/sociodev/internal/app/system/workers"
	"go.uber.org/zap"
)

// Services is the wired service graph shared by BuildHandler and Shutdown.
type Services struct {
	Notifier  *auth.Notifier
	Provider  *auth.Provider
	Audit     *auditlog.Logger
	Accounts  *accountsvc.Service
	Articles  *articlesvc.Service
	Bookmarks *bookmarksvc.Service
	Social    *socialsvc.Service
	Hub       *sessionsvc.Hub
	Drafts    *draft.Client
	Reconcile *workers.Reconcile

	SignInLimiter *ratelimit.SignInLimiter
}

// Startup builds the stores and services and starts the background worker.
// It runs after DB connections and schema setup, before BuildHandler.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("timeouts overridden from environment", zap.Int("count", n), zap.Any("timeouts", timeouts.Current()))
	}

	db := deps.MongoDatabase
	users := userstore.New(db)
	articles := articlestore.New(db)
	tx := txn.New(deps.MongoClient, logger)

	s := deps.Services
	s.Notifier = auth.NewNotifier()
	provider, err := auth.NewProvider(identitystore.New(db), sessions.New(db), s.Notifier, auth.Config{
		Secret:     appCfg.SessionKey,
		SessionTTL: appCfg.SessionTTL,
		BcryptCost: appCfg.BcryptCost,
	}, logger)
	if err != nil {
		s.Notifier.Close()
		return fmt.Errorf("auth provider: %w", err)
	}
	s.Provider = provider

	s.Audit = auditlog.New(audit.New(db), logger, auditlog.Config{
		Auth:   appCfg.AuditLogAuth,
		Access: appCfg.AuditLogAccess,
	})
	s.Accounts = accountsvc.New(provider, users, tx, logger)
	s.Articles = articlesvc.New(articles, users, tx, appCfg.TrendingLimit, logger)
	s.Bookmarks = bookmarksvc.New(users, articles, tx, logger)
	s.Social = socialsvc.New(users, tx, logger)
	s.Hub = sessionsvc.NewHub(provider, s.Accounts, s.Bookmarks, appCfg.SessionIdle, logger)

	s.Drafts = draft.New(draft.Config{
		BaseURL: appCfg.DraftAPIURL,
		APIKey:  appCfg.DraftAPIKey,
		Model:   appCfg.DraftModel,
		Timeout: appCfg.DraftTimeout,
	}, logger)
	if !s.Drafts.Enabled() {
		logger.Info("draft generator disabled; set draft_api_key to enable it")
	}

	s.SignInLimiter = ratelimit.NewSignInLimiter(ratelimit.Config{})

	if appCfg.ReconcileInterval > 0 {
		s.Reconcile = workers.NewReconcile(users, articles, provider, tx, logger, appCfg.ReconcileInterval)
		s.Reconcile.Start()
	}
	return nil
}
