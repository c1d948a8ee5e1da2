// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"
	"strings"

	"github.com/sociodev/sociodev/internal/app/store/audit"
	"go.uber.org/zap"
)

// Destinations for a category.
const (
	All = "all" // MongoDB + zap
	DB  = "db"
	Log = "log"
	Off = "off"
)

// Config selects where each category of events goes.
type Config struct {
	// Auth covers register, sign-in and sign-out.
	Auth string
	// Access covers denied article edits and deletes.
	Access string
}

// Logger writes audit events to the audit store and/or zap.
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{store: store, zapLog: zapLog, config: config}
}

// ClientIP returns the caller address, honoring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}
	if event.UID != "" {
		fields = append(fields, zap.String("uid", event.UID))
	}
	if event.DeviceID != "" {
		fields = append(fields, zap.String("device_id", event.DeviceID))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records event according to the category's configured destination.
// A nil Logger is a no-op.
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAuth:
		setting = l.config.Auth
	case audit.CategoryAccess:
		setting = l.config.Access
	}
	if setting == "" {
		setting = All
	}
	if setting == Off {
		return
	}

	if setting == All || setting == Log {
		l.logToZap(event)
	}
	if setting == All || setting == DB {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

// Recent returns uid's latest auth events, newest first. It is empty when
// events are not kept in the database.
func (l *Logger) Recent(ctx context.Context, uid string, limit int64) ([]audit.Event, error) {
	if l == nil || l.store == nil {
		return []audit.Event{}, nil
	}
	events, err := l.store.Query(ctx, audit.QueryFilter{UID: uid, Category: audit.CategoryAuth, Limit: limit})
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []audit.Event{}
	}
	return events, nil
}

func fromRequest(r *http.Request, category, eventType string) audit.Event {
	return audit.Event{
		Category:  category,
		EventType: eventType,
		DeviceID:  r.Header.Get("X-Device-ID"),
		IP:        ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// Registered logs a successful registration.
func (l *Logger) Registered(ctx context.Context, r *http.Request, uid, email string) {
	ev := fromRequest(r, audit.CategoryAuth, audit.EventRegistered)
	ev.UID = uid
	ev.Success = true
	ev.Details = map[string]string{"email": email}
	l.Log(ctx, ev)
}

// RegisterFailed logs a rejected registration.
func (l *Logger) RegisterFailed(ctx context.Context, r *http.Request, email, reason string) {
	ev := fromRequest(r, audit.CategoryAuth, audit.EventRegisterFailed)
	ev.FailureReason = reason
	ev.Details = map[string]string{"email": email}
	l.Log(ctx, ev)
}

// SignInSuccess logs a successful sign-in.
func (l *Logger) SignInSuccess(ctx context.Context, r *http.Request, uid, email string) {
	ev := fromRequest(r, audit.CategoryAuth, audit.EventSignInSuccess)
	ev.UID = uid
	ev.Success = true
	ev.Details = map[string]string{"email": email}
	l.Log(ctx, ev)
}

// SignInFailedUnknownEmail logs a sign-in for an email with no identity.
func (l *Logger) SignInFailedUnknownEmail(ctx context.Context, r *http.Request, email string) {
	ev := fromRequest(r, audit.CategoryAuth, audit.EventSignInFailedUnknownEmail)
	ev.FailureReason = "unknown email"
	ev.Details = map[string]string{"attempted_email": email}
	l.Log(ctx, ev)
}

// SignInFailedWrongPassword logs a sign-in with a bad password.
func (l *Logger) SignInFailedWrongPassword(ctx context.Context, r *http.Request, uid, email string) {
	ev := fromRequest(r, audit.CategoryAuth, audit.EventSignInFailedWrongPass)
	ev.UID = uid
	ev.FailureReason = "wrong password"
	ev.Details = map[string]string{"email": email}
	l.Log(ctx, ev)
}

// SignOut logs a sign-out. uid may be empty when the token was already dead.
func (l *Logger) SignOut(ctx context.Context, r *http.Request, uid string) {
	ev := fromRequest(r, audit.CategoryAuth, audit.EventSignOut)
	ev.UID = uid
	ev.Success = true
	l.Log(ctx, ev)
}

// ArticleDenied logs an edit or delete attempted by someone other than the author.
func (l *Logger) ArticleDenied(ctx context.Context, r *http.Request, uid, articleID, eventType string) {
	ev := fromRequest(r, audit.CategoryAccess, eventType)
	ev.UID = uid
	ev.FailureReason = "not the author"
	ev.Details = map[string]string{"article_id": articleID}
	l.Log(ctx, ev)
}
