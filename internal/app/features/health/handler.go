package health

import (
	"context"
	"net/http"

	"github.com/go-chi/render"
	"github.com/sociodev/sociodev/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Pinger is satisfied by *mongo.Client.
type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// Sessions reports how many device session stores are live.
type Sessions interface {
	Len() int
}

// Watchers reports how many auth-change subscriptions are open.
type Watchers interface {
	SubscriberCount() int
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	DB       Pinger
	Sessions Sessions
	Watchers Watchers
	Log      *zap.Logger
}

func NewHandler(db Pinger, sessions Sessions, watchers Watchers, logger *zap.Logger) *Handler {
	return &Handler{DB: db, Sessions: sessions, Watchers: watchers, Log: logger}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Devices  int    `json:"devices"`
	Watchers int    `json:"watchers"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "devices":3, "watchers":3 }
//
// On DB failure: 503 and
//
//	{ "status":"error", "database":"disconnected", "message":"Database unavailable", "error":"…"}
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "connected"}
	if h.Sessions != nil {
		resp.Devices = h.Sessions.Len()
	}
	if h.Watchers != nil {
		resp.Watchers = h.Watchers.SubscriberCount()
	}

	if err := h.DB.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}
