// internal/app/features/session/handler.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/render"
	uierrors "github.com/sociodev/sociodev/internal/app/features/errors"
	sessionsvc "github.com/sociodev/sociodev/internal/app/services/session"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/app/system/auth"
	"github.com/sociodev/sociodev/internal/app/system/timeouts"
	"go.uber.org/zap"
)

const keepAlive = 25 * time.Second

// Handler exposes the per-device session state.
type Handler struct {
	Hub *sessionsvc.Hub
	Log *zap.Logger
}

func NewHandler(hub *sessionsvc.Hub, logger *zap.Logger) *Handler {
	return &Handler{Hub: hub, Log: logger}
}

// store returns the running Store for the device the caller's session is
// bound to, waiting until it has applied its first auth notification.
func (h *Handler) store(ctx context.Context, p auth.Principal) (*sessionsvc.Store, error) {
	st, err := h.Hub.ForDevice(p.Session.DeviceID)
	if err != nil {
		return nil, err
	}
	select {
	case <-st.Ready():
	case <-st.Done():
	case <-ctx.Done():
		return nil, fmt.Errorf("session not ready: %w", apperr.ErrUnavailable)
	}
	return st, nil
}

// ServeSnapshot handles GET /api/session.
func (h *Handler) ServeSnapshot(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "session snapshot")
	defer cancel()

	st, err := h.store(ctx, p)
	if err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}
	render.JSON(w, r, st.Snapshot())
}

// ServeEvents handles GET /api/session/events: a server-sent event stream
// with one "snapshot" event per change, starting with the current state.
// The stream ends once the device is no longer signed in as the caller.
func (h *Handler) ServeEvents(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.CurrentPrincipal(r)
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	readyCtx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	st, err := h.store(readyCtx, p)
	cancel()
	if err != nil {
		uierrors.Write(w, r, h.Log, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := st.Subscribe()
	defer st.Unsubscribe(ch)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	seen := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case snap, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				h.Log.Error("encode snapshot", zap.Error(err))
				return
			}
			_, _ = fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", snap.Version, data)
			flusher.Flush()

			mine := snap.Identity != nil && snap.Identity.ID == p.Identity.ID
			if seen && !mine {
				return
			}
			seen = seen || mine
		}
	}
}
