// Package handler contains the HTTP handlers of the habit tracker API.
//
// A handler is the glue between HTTP and the service layer:
//  1. parse the request (URL params, JSON body, the authenticated user)
//  2. call one service method
//  3. write the result with writeJSON, or the error with writeError
//
// Business rules never live here. Services return apperror values and
// writeError turns them into status codes.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/habit-tracker/internal/model"
	"github.com/sakif/habit-tracker/internal/service"
)

// HabitHandler serves habit CRUD, completion and share revocation.
type HabitHandler struct {
	habits *service.HabitService
	logger *slog.Logger
}

func NewHabitHandler(habits *service.HabitService, logger *slog.Logger) *HabitHandler {
	return &HabitHandler{habits: habits, logger: logger}
}

// habitRequest is the body of POST /api/habits and PUT /api/habits/{id}.
// Times are RFC 3339; an omitted startTime means now (create) or unchanged
// (update).
type habitRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Frequency   string     `json:"frequency"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
	BasePoints  int        `json:"basePoints"`
	Reminders   *bool      `json:"reminders"`
}

func (req habitRequest) input() service.HabitInput {
	in := service.HabitInput{
		Name:        req.Name,
		Description: req.Description,
		Frequency:   model.Frequency(req.Frequency),
		EndTime:     req.EndTime,
		BasePoints:  req.BasePoints,
		Reminders:   req.Reminders,
	}
	if req.StartTime != nil {
		in.StartTime = *req.StartTime
	}
	return in
}

// HandleList returns the caller's habits followed by habits shared with them.
//
// HTTP: GET /api/habits
func (h *HabitHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	habits, err := h.habits.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, habits)
}

// HandleCreate adds a habit.
//
// HTTP: POST /api/habits
// REQUEST BODY: {"name": "Run", "frequency": "daily", "basePoints": 10}
func (h *HabitHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req habitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	habit, err := h.habits.Create(r.Context(), userID, req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, habit)
}

// HTTP: GET /api/habits/{id}
func (h *HabitHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	habit, err := h.habits.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

// HTTP: PUT /api/habits/{id}
func (h *HabitHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req habitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	habit, err := h.habits.Update(r.Context(), userID, chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

// HTTP: DELETE /api/habits/{id}
func (h *HabitHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.habits.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleComplete marks the habit done for the current period.
//
// HTTP: POST /api/habits/{id}/complete
//
// 409 when it was already completed this period or has ended.
func (h *HabitHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	completion, err := h.habits.Complete(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completion)
}

// HTTP: GET /api/habits/{id}/reward
func (h *HabitHandler) HandleRewardPreview(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	preview, err := h.habits.RewardPreview(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// HandleUnshare revokes a grantee's access.
//
// HTTP: DELETE /api/habits/{id}/shares/{userId}
func (h *HabitHandler) HandleUnshare(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	err = h.habits.Unshare(r.Context(), userID, chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
