package bootstrap

import (
	"net/http"
	"testing"

	"github.com/dalemusser/waffle/config"
	"github.com/sociodev/sociodev/internal/app/system/auditlog"
	"github.com/sociodev/sociodev/internal/app/system/draft"
	"github.com/sociodev/sociodev/internal/testutil/apitest"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validConfig() AppConfig {
	return AppConfig{
		MongoURI:       "mongodb://localhost:27017",
		MongoDatabase:  "sociodev",
		SessionKey:     "0123456789abcdef0123456789abcdef",
		SessionName:    "sociodev-session",
		AuditLogAuth:   auditlog.All,
		AuditLogAccess: auditlog.Log,
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{"valid", "dev", func(*AppConfig) {}, false},
		{"missing session key", "dev", func(c *AppConfig) { c.SessionKey = "" }, true},
		{"short key in prod", "prod", func(c *AppConfig) { c.SessionKey = "short" }, true},
		{"short key in dev", "dev", func(c *AppConfig) { c.SessionKey = "short" }, false},
		{"unknown audit destination", "dev", func(c *AppConfig) { c.AuditLogAccess = "stdout" }, true},
		{"negative reconcile interval", "dev", func(c *AppConfig) { c.ReconcileInterval = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(&config.CoreConfig{Env: tt.env}, cfg, testLogger())
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildHandler_RequiresServices(t *testing.T) {
	if _, err := BuildHandler(&config.CoreConfig{Env: "dev"}, validConfig(), DBDeps{}, testLogger()); err == nil {
		t.Error("expected an error when Startup has not run")
	}
}

func newTestHandler(t *testing.T) (http.Handler, *apitest.Env) {
	t.Helper()
	e := apitest.New(t)
	deps := DBDeps{Services: &Services{
		Provider:  e.Provider,
		Audit:     e.Audit,
		Accounts:  e.Accounts,
		Articles:  e.Articles,
		Bookmarks: e.Bookmarks,
		Social:    e.Social,
		Hub:       e.Hub,
		Drafts:    draft.New(draft.Config{}, e.Log),
	}}
	h, err := BuildHandler(&config.CoreConfig{Env: "dev"}, validConfig(), deps, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler failed: %v", err)
	}
	return h, e
}

func TestBuildHandler_Routes(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := apitest.Do(t, h, apitest.Request{
		Method:   http.MethodPost,
		Path:     "/api/auth/register",
		DeviceID: "phone",
		Body:     map[string]string{"email": "alice@example.com", "password": "password123", "username": "alice"},
	})
	apitest.ExpectStatus(t, rec, http.StatusCreated)
	var reg struct {
		Token string `json:"token"`
	}
	apitest.Decode(t, rec, &reg)

	tests := []struct {
		name   string
		req    apitest.Request
		status int
	}{
		{"public list", apitest.Request{Method: http.MethodGet, Path: "/api/articles"}, http.StatusOK},
		{"me signed in", apitest.Request{Method: http.MethodGet, Path: "/api/users/me", Token: reg.Token}, http.StatusOK},
		{"me anonymous", apitest.Request{Method: http.MethodGet, Path: "/api/users/me"}, http.StatusUnauthorized},
		{"bookmarks", apitest.Request{Method: http.MethodGet, Path: "/api/bookmarks", Token: reg.Token}, http.StatusOK},
		{"session snapshot", apitest.Request{Method: http.MethodGet, Path: "/api/session", Token: reg.Token}, http.StatusOK},
		{"session anonymous", apitest.Request{Method: http.MethodGet, Path: "/api/session", DeviceID: "phone"}, http.StatusUnauthorized},
		{"drafts disabled", apitest.Request{Method: http.MethodPost, Path: "/api/drafts", Token: reg.Token, Body: map[string]string{"topic": "go"}}, http.StatusNotImplemented},
		{"unknown api route", apitest.Request{Method: http.MethodGet, Path: "/api/nope"}, http.StatusNotFound},
		{"wrong method", apitest.Request{Method: http.MethodPatch, Path: "/api/articles"}, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := apitest.Do(t, h, tt.req)
			apitest.ExpectStatus(t, rec, tt.status)
		})
	}
}
