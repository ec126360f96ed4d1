package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/habit-tracker/internal/notify"
)

const heartbeatInterval = 25 * time.Second

// Subscriber is the part of *notify.Publisher the stream needs.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan notify.Event, error)
}

// NotificationHandler streams the caller's notifications as server-sent
// events. Without Redis there is nothing to stream and it answers 503.
type NotificationHandler struct {
	subscriber Subscriber
	heartbeat  time.Duration
	logger     *slog.Logger
}

func NewNotificationHandler(subscriber Subscriber, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{subscriber: subscriber, heartbeat: heartbeatInterval, logger: logger}
}

// HandleStream keeps the connection open and writes one SSE message per event:
//
//	event: friend_request
//	data: {"type":"friend_request","message":"alice sent you a friend request","refId":"...","at":"..."}
//
// A comment line every heartbeat interval keeps proxies from closing an idle
// stream.
//
// HTTP: GET /api/notifications/stream
func (h *NotificationHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "streaming is not supported",
		})
		return
	}

	events, err := h.subscriber.Subscribe(r.Context(), userID)
	if err != nil {
		if errors.Is(err, notify.ErrUnavailable) {
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
				Error:   "unavailable",
				Message: "notifications are not enabled on this server",
			})
			return
		}
		h.logger.Error("notification subscribe failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	// The server's WriteTimeout would cut the stream; lift it for this request.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Warn("encoding notification failed", slog.String("error", err.Error()))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
