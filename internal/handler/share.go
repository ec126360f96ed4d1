package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/habit-tracker/internal/service"
)

// ShareHandler serves the habit share request workflow.
type ShareHandler struct {
	shares *service.ShareService
	logger *slog.Logger
}

func NewShareHandler(shares *service.ShareService, logger *slog.Logger) *ShareHandler {
	return &ShareHandler{shares: shares, logger: logger}
}

type shareRequestBody struct {
	HabitID  string `json:"habitId"`
	FriendID string `json:"friendId"`
}

// HandleSend offers one of the caller's habits to a friend.
//
// HTTP: POST /api/shares
// REQUEST BODY: {"habitId": "...", "friendId": "..."}
func (h *ShareHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body shareRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	req, err := h.shares.Send(r.Context(), userID, body.HabitID, body.FriendID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// HTTP: GET /api/shares/requests
func (h *ShareHandler) HandleListIncoming(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	reqs, err := h.shares.ListIncoming(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// HTTP: POST /api/shares/requests/{id}/respond
// REQUEST BODY: {"accept": true}
func (h *ShareHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body respondBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	accept, err := body.accept()
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.shares.Respond(r.Context(), userID, chi.URLParam(r, "id"), accept)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HTTP: DELETE /api/shares/requests/{id}
func (h *ShareHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.shares.Cancel(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
