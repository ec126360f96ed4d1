package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/habit-tracker/internal/logging"
)

func TestHandleHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	broken := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		db         PingFunc
		redis      PingFunc
		wantStatus int
		want       healthResponse
	}{
		{"db only", ok, nil, http.StatusOK, healthResponse{Status: "ok", Database: "ok", Redis: "disabled"}},
		{"db and redis", ok, ok, http.StatusOK, healthResponse{Status: "ok", Database: "ok", Redis: "ok"}},
		{"redis down", ok, broken, http.StatusOK, healthResponse{Status: "degraded", Database: "ok", Redis: "error"}},
		{"db down", broken, ok, http.StatusServiceUnavailable, healthResponse{Status: "down", Database: "error", Redis: "ok"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.db, tt.redis, logging.Discard())
			rr := httptest.NewRecorder()
			h.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			var got healthResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
			assert.Equal(t, tt.want, got)
		})
	}
}
