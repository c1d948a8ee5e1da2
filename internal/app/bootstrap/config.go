// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	sessionsvc "github.com/sociodev/sociodev/internal/app/services/session"
	"github.com/sociodev/sociodev/internal/app/system/auditlog"
	"github.com/sociodev/sociodev/internal/app/system/auth"
	"github.com/sociodev/sociodev/internal/app/system/draft"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for SocioDev.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: SOCIODEV_MONGO_URI, SOCIODEV_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "sociodev", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Token and cookie signing key (must be strong in production)"},
	{Name: "session_name", Default: "sociodev-session", Desc: "Session cookie name"},
	{Name: "session_ttl", Default: "720h", Desc: "Lifetime of a device session (e.g., 720h, 24h)"},
	{Name: "session_idle_ttl", Default: "10m", Desc: "How long live session state of an unwatched device is kept in memory"},
	{Name: "bcrypt_cost", Default: 0, Desc: "bcrypt cost for password hashes (0 uses the library default)"},

	// Draft generator
	{Name: "draft_api_url", Default: draft.DefaultBaseURL, Desc: "OpenAI-compatible API base URL"},
	{Name: "draft_api_key", Default: "", Desc: "API key for the draft generator (blank disables it)"},
	{Name: "draft_model", Default: draft.DefaultModel, Desc: "Chat model used for drafts"},
	{Name: "draft_timeout", Default: "30s", Desc: "HTTP timeout for one draft request"},

	{Name: "reconcile_interval", Default: "10m", Desc: "How often saved counts, follow edges and expired sessions are repaired (0 disables)"},
	{Name: "trending_limit", Default: 10, Desc: "Default number of trending articles"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_access", Default: "all", Desc: "Denied article edit/delete logging: 'all', 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// SOCIODEV_* environment variables and flags, merged with precedence
// flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "SOCIODEV", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:  appValues.String("session_key"),
		SessionName: appValues.String("session_name"),
		SessionTTL:  appValues.Duration("session_ttl", auth.DefaultSessionTTL),
		SessionIdle: appValues.Duration("session_idle_ttl", sessionsvc.DefaultIdleTTL),
		BcryptCost:  appValues.Int("bcrypt_cost"),

		DraftAPIURL:  appValues.String("draft_api_url"),
		DraftAPIKey:  appValues.String("draft_api_key"),
		DraftModel:   appValues.String("draft_model"),
		DraftTimeout: appValues.Duration("draft_timeout", 30*time.Second),

		ReconcileInterval: appValues.Duration("reconcile_interval", 10*time.Minute),
		TrendingLimit:     appValues.Int("trending_limit"),

		AuditLogAuth:   appValues.String("audit_log_auth"),
		AuditLogAccess: appValues.String("audit_log_access"),
	}
	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// The MongoDB URI is checked before any connection is attempted, and the
// audit destinations must be one of the known values.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if appCfg.SessionKey == "" {
		return fmt.Errorf("session_key is required")
	}
	if coreCfg.Env == "prod" && len(appCfg.SessionKey) < 32 {
		return fmt.Errorf("session_key must be at least 32 characters in prod")
	}
	for key, v := range map[string]string{
		"audit_log_auth":   appCfg.AuditLogAuth,
		"audit_log_access": appCfg.AuditLogAccess,
	} {
		switch v {
		case auditlog.All, auditlog.DB, auditlog.Log, auditlog.Off:
		default:
			return fmt.Errorf("%s must be one of all, db, log, off; got %q", key, v)
		}
	}
	if appCfg.SessionIdle < 0 {
		return fmt.Errorf("session_idle_ttl must not be negative")
	}
	if appCfg.ReconcileInterval < 0 {
		return fmt.Errorf("reconcile_interval must not be negative")
	}
	return nil
}
