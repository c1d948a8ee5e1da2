// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for SocioDev.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings (ports, TLS, log level, CORS, body limits).
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Auth tokens and the browser cookie that can carry them
	SessionKey    string        // Secret for signing tokens and cookies (must be strong in production)
	SessionName   string        // Cookie name (default: sociodev-session)
	SessionTTL    time.Duration // Lifetime of a device session
	SessionIdle   time.Duration // Unwatched live session state is dropped after this
	BcryptCost    int           // 0 means bcrypt.DefaultCost

	// Draft generator (OpenAI-compatible chat completions)
	DraftAPIURL  string
	DraftAPIKey  string // empty disables /api/drafts
	DraftModel   string
	DraftTimeout time.Duration

	// Background reconciliation of denormalized counters and edges
	ReconcileInterval time.Duration

	TrendingLimit int

	// Audit logging: "all", "db", "log" or "off"
	AuditLogAuth   string
	AuditLogAccess string
}
