package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/habit-tracker/internal/auth"
	"github.com/sakif/habit-tracker/internal/logging"
	"github.com/sakif/habit-tracker/internal/notify"
)

type fakeSubscriber struct {
	events chan notify.Event
	err    error
	userID string
}

func (f *fakeSubscriber) Subscribe(_ context.Context, userID string) (<-chan notify.Event, error) {
	f.userID = userID
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

// asUser stands in for auth.RequireAuth.
func asUser(userID string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
	})
}

func TestHandleStream_DeliversEvents(t *testing.T) {
	sub := &fakeSubscriber{events: make(chan notify.Event, 1)}
	h := NewNotificationHandler(sub, logging.Discard())
	h.heartbeat = 20 * time.Millisecond

	ts := httptest.NewServer(asUser("bob", h.HandleStream))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	sub.events <- notify.Event{Type: notify.FriendRequestReceived, Message: "alice sent you a friend request", RefID: "req-1"}

	sawPing := false
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == ": ping\n" {
			sawPing = true
			continue
		}
		if !strings.HasPrefix(line, "event: ") {
			continue
		}
		assert.Equal(t, "event: friend_request\n", line)

		data, err := reader.ReadString('\n')
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(data, "data: "))
		var ev notify.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(data, "data: ")), &ev))
		assert.Equal(t, "req-1", ev.RefID)
		break
	}

	// Heartbeats keep flowing on an idle stream.
	for !sawPing {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		sawPing = line == ": ping\n"
	}
}

func TestHandleStream_Errors(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		err        error
		wantStatus int
		wantType   string
	}{
		{"no user", "", nil, http.StatusUnauthorized, "unauthorized"},
		{"redis disabled", "bob", notify.ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
		{"subscribe failed", "bob", errors.New("dial tcp: refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &fakeSubscriber{err: tt.err}
			h := NewNotificationHandler(sub, logging.Discard())

			req := httptest.NewRequest(http.MethodGet, "/api/notifications/stream", nil)
			if tt.userID != "" {
				req = req.WithContext(auth.WithUserID(req.Context(), tt.userID))
			}
			rr := httptest.NewRecorder()
			h.HandleStream(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.userID, sub.userID)
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, tt.wantType, body.Error)
		})
	}
}
