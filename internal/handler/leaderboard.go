package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/habit-tracker/internal/service"
)

// LeaderboardHandler serves leaderboards, standings, membership and manual
// point adjustments. Participants are addressed by display name.
type LeaderboardHandler struct {
	boards *service.LeaderboardService
	logger *slog.Logger
}

func NewLeaderboardHandler(boards *service.LeaderboardService, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{boards: boards, logger: logger}
}

type createLeaderboardRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"` // display names
}

type participantRequest struct {
	Name string `json:"name"`
}

type pointsRequest struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

type pointsResponse struct {
	Name  string `json:"name"`
	Total int    `json:"total"`
}

// HTTP: GET /api/leaderboards
func (h *LeaderboardHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	boards, err := h.boards.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, boards)
}

// HandleCreate makes a leaderboard administered by the caller.
//
// HTTP: POST /api/leaderboards
// REQUEST BODY: {"name": "Team A", "participants": ["alice", "bob"]}
func (h *LeaderboardHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createLeaderboardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	lb, err := h.boards.Create(r.Context(), userID, req.Name, req.Participants)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lb)
}

// HTTP: GET /api/leaderboards/{id}
func (h *LeaderboardHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	lb, err := h.boards.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

// HTTP: DELETE /api/leaderboards/{id}
func (h *LeaderboardHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.boards.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStandings returns the roster ranked by points.
//
// HTTP: GET /api/leaderboards/{id}/standings
func (h *LeaderboardHandler) HandleStandings(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	standings, err := h.boards.Standings(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, standings)
}

// HTTP: POST /api/leaderboards/{id}/participants
// REQUEST BODY: {"name": "carol"}
func (h *LeaderboardHandler) HandleAddParticipant(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req participantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	lb, err := h.boards.AddParticipant(r.Context(), userID, chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

// HTTP: DELETE /api/leaderboards/{id}/participants/{name}
func (h *LeaderboardHandler) HandleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	lb, err := h.boards.RemoveParticipant(r.Context(), userID, chi.URLParam(r, "id"), pathName(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

// HTTP: POST /api/leaderboards/{id}/points/add
// REQUEST BODY: {"name": "alice", "points": 5}
func (h *LeaderboardHandler) HandleAddPoints(w http.ResponseWriter, r *http.Request) {
	h.handlePoints(w, r, h.boards.AddPoints)
}

// HTTP: POST /api/leaderboards/{id}/points/remove
func (h *LeaderboardHandler) HandleRemovePoints(w http.ResponseWriter, r *http.Request) {
	h.handlePoints(w, r, h.boards.RemovePoints)
}

type adjustFunc func(ctx context.Context, callerID, id, name string, amount int) (int, error)

func (h *LeaderboardHandler) handlePoints(w http.ResponseWriter, r *http.Request, adjust adjustFunc) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req pointsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	total, err := adjust(r.Context(), userID, chi.URLParam(r, "id"), req.Name, req.Points)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pointsResponse{Name: req.Name, Total: total})
}

// pathName is the {name} path segment. chi matches on RawPath when the request
// carries one, and then the segment is still percent-encoded.
func pathName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if r.URL.RawPath == "" {
		return raw
	}
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}
