package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/habit-tracker/internal/apperror"
	"github.com/sakif/habit-tracker/internal/service"
)

// FriendHandler serves the friend list and the friend request workflow.
type FriendHandler struct {
	friends *service.FriendService
	logger  *slog.Logger
}

func NewFriendHandler(friends *service.FriendService, logger *slog.Logger) *FriendHandler {
	return &FriendHandler{friends: friends, logger: logger}
}

type friendRequestBody struct {
	Name string `json:"name"` // recipient's display name
}

// respondBody answers a friend or share request. Accept is required.
type respondBody struct {
	Accept *bool `json:"accept"`
}

func (b respondBody) accept() (bool, error) {
	if b.Accept == nil {
		return false, apperror.ValidationFailed("accept", "accept must be true or false")
	}
	return *b.Accept, nil
}

// HTTP: GET /api/friends
func (h *FriendHandler) HandleListFriends(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	friends, err := h.friends.ListFriends(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, friends)
}

// HTTP: DELETE /api/friends/{id}
func (h *FriendHandler) HandleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.friends.RemoveFriend(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSend sends a friend request by display name.
//
// HTTP: POST /api/friends/requests
// REQUEST BODY: {"name": "bob"}
//
// 404 when no account has that name, 409 when several do or the two users
// are already friends.
func (h *FriendHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body friendRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err)
		return
	}
	req, err := h.friends.Send(r.Context(), userID, body.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// HTTP: GET /api/friends/requests
func (h *FriendHandler) HandleListIncoming(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	reqs, err := h.friends.ListIncoming(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// HTTP: GET /api/friends/requests/sent
func (h *FriendHandler) HandleListSent(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	reqs, err := h.friends.ListSent(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reqs)
}

// HandleRespond accepts or denies an incoming request.
//
// HTTP: POST /api/friends/requests/{id}/respond
// REQUEST BODY: {"accept": true}
//
// Always 200 for the recipient: {"resolved": false} means the request was
// already answered or cancelled.
func (h *FriendHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
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
	res, err := h.friends.Respond(r.Context(), userID, chi.URLParam(r, "id"), accept)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HTTP: DELETE /api/friends/requests/{id}
func (h *FriendHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.friends.Cancel(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
