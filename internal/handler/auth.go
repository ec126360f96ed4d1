package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"
	"github.com/sakif/habit-tracker/internal/auth"
	"github.com/sakif/habit-tracker/internal/model"
	"github.com/sakif/habit-tracker/internal/service"
)

const stateCookieName = "oauth_state"

// GitHubSignIn is the part of *auth.GitHubProvider the handler needs.
type GitHubSignIn interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler manages sign-up, sign-in, the optional GitHub OAuth flow and
// the current user's profile.
//
// Sessions are JWTs. Browsers get them in an HttpOnly cookie; mobile clients
// read the token from the response body and send it as a Bearer header.
// auth.RequireAuth accepts either.
type AuthHandler struct {
	auth   *service.AuthService
	github GitHubSignIn // nil when GitHub sign-in is not configured
	secure bool         // set the Secure flag on cookies (HTTPS deployments)
	logger *slog.Logger
}

func NewAuthHandler(authSvc *service.AuthService, github GitHubSignIn, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   authSvc,
		github: github,
		secure: secureCookies,
		logger: logger,
	}
}

type sessionResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

type signUpRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type renameRequest struct {
	DisplayName string `json:"displayName"`
}

// HandleSignUp creates a password account.
//
// HTTP: POST /auth/signup
// REQUEST BODY: {"displayName": "alice", "email": "alice@example.com", "password": "..."}
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.SignUp(r.Context(), req.DisplayName, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	h.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusCreated, sessionResponse{User: result.User, Token: result.Token})
}

// HandleSignIn checks credentials and starts a session.
//
// HTTP: POST /auth/signin
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	h.setSessionCookie(w, result.Token)
	writeJSON(w, http.StatusOK, sessionResponse{User: result.User, Token: result.Token})
}

// HandleSignOut clears the session cookie.
//
// HTTP: POST /auth/signout
//
// Tokens are stateless, so this only removes the browser's copy. A token
// held elsewhere stays valid until it expires.
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// A random state value goes into a short-lived cookie and the authorization
// URL; the callback only proceeds when the two match (CSRF check).
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "GitHub sign-in is not configured"})
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Create or link the account
//  4. Set the session cookie and redirect to the app
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "GitHub sign-in is not configured"})
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	result, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: sign-in failed",
			slog.Int64("githubID", ghUser.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	h.setSessionCookie(w, result.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleMe returns the signed-in user's profile.
//
// HTTP: GET /api/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleRename changes the signed-in user's display name.
//
// HTTP: PATCH /api/me
// REQUEST BODY: {"displayName": "alicia"}
func (h *AuthHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.auth.Rename(r.Context(), userID, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.auth.TokenService().Lifetime().Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
