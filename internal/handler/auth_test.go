package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/habit-tracker/internal/auth"
	"github.com/sakif/habit-tracker/internal/logging"
	sqliteRepo "github.com/sakif/habit-tracker/internal/repository/sqlite"
	"github.com/sakif/habit-tracker/internal/service"
)

// =========================================================================
// TEST SETUP
// =========================================================================

type fakeGitHub struct {
	user *auth.GitHubUser
	err  error
	code string // last code exchanged
}

func (f *fakeGitHub) AuthURL(state string) string {
	return "https://github.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeGitHub) Exchange(_ context.Context, code string) (*auth.GitHubUser, error) {
	f.code = code
	return f.user, f.err
}

func newTestAuthHandler(t *testing.T, github GitHubSignIn) *AuthHandler {
	t.Helper()
	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars")
	require.NoError(t, err)
	svc := service.NewAuthService(db, tokens, auth.NewPasswordServiceForTest(4), logging.Discard())
	return NewAuthHandler(svc, github, false, logging.Discard())
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

// =========================================================================
// TESTS
// =========================================================================

func TestHandleSignUp_SetsCookieAndReturnsToken(t *testing.T) {
	h := newTestAuthHandler(t, nil)

	body := `{"displayName":"alice","email":"Alice@Example.com","password":"password123"}`
	rr := httptest.NewRecorder()
	h.HandleSignUp(rr, httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rr.Code)
	var resp sessionResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.Token)

	c := sessionCookie(rr)
	require.NotNil(t, c)
	assert.Equal(t, resp.Token, c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, 24*60*60, c.MaxAge)
}

func TestHandleSignIn_BadCredentials(t *testing.T) {
	h := newTestAuthHandler(t, nil)
	rr := httptest.NewRecorder()
	h.HandleSignUp(rr, httptest.NewRequest(http.MethodPost, "/auth/signup",
		strings.NewReader(`{"displayName":"alice","email":"alice@example.com","password":"password123"}`)))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	h.HandleSignIn(rr, httptest.NewRequest(http.MethodPost, "/auth/signin",
		strings.NewReader(`{"email":"alice@example.com","password":"nope-nope"}`)))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Nil(t, sessionCookie(rr))
}

func TestHandleSignOut_ClearsCookie(t *testing.T) {
	h := newTestAuthHandler(t, nil)
	rr := httptest.NewRecorder()
	h.HandleSignOut(rr, httptest.NewRequest(http.MethodPost, "/auth/signout", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	c := sessionCookie(rr)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
}

func TestHandleGitHubLogin(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		h := newTestAuthHandler(t, nil)
		rr := httptest.NewRecorder()
		h.HandleGitHubLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("redirects with state", func(t *testing.T) {
		h := newTestAuthHandler(t, &fakeGitHub{})
		rr := httptest.NewRecorder()
		h.HandleGitHubLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))

		assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
		var state string
		for _, c := range rr.Result().Cookies() {
			if c.Name == stateCookieName {
				state = c.Value
			}
		}
		require.NotEmpty(t, state)
		assert.Contains(t, rr.Header().Get("Location"), "state="+state)
	})
}

func TestHandleGitHubCallback(t *testing.T) {
	const state = "abc123"

	callback := func(h *AuthHandler, query string, withCookie bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?"+query, nil)
		if withCookie {
			req.AddCookie(&http.Cookie{Name: stateCookieName, Value: state})
		}
		rr := httptest.NewRecorder()
		h.HandleGitHubCallback(rr, req)
		return rr
	}

	tests := []struct {
		name       string
		github     *fakeGitHub
		query      string
		withCookie bool
		wantStatus int
		wantLoc    string
		wantCookie bool
	}{
		{"missing state cookie", &fakeGitHub{}, "code=c&state=" + state, false, http.StatusBadRequest, "", false},
		{"state mismatch", &fakeGitHub{}, "code=c&state=other", true, http.StatusBadRequest, "", false},
		{"user denied", &fakeGitHub{}, "error=access_denied&state=" + state, true, http.StatusSeeOther, "/?auth=denied", false},
		{"missing code", &fakeGitHub{}, "state=" + state, true, http.StatusBadRequest, "", false},
		{"exchange fails", &fakeGitHub{err: errors.New("bad code")}, "code=c&state=" + state, true, http.StatusBadGateway, "", false},
		{
			"success",
			&fakeGitHub{user: &auth.GitHubUser{ID: 42, Login: "octo", Email: "octo@example.com"}},
			"code=c&state=" + state, true, http.StatusSeeOther, "/", true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestAuthHandler(t, tt.github)
			rr := callback(h, tt.query, tt.withCookie)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantLoc != "" {
				assert.Equal(t, tt.wantLoc, rr.Header().Get("Location"))
			}
			assert.Equal(t, tt.wantCookie, sessionCookie(rr) != nil)
		})
	}
}

func TestHandleMeAndRename(t *testing.T) {
	h := newTestAuthHandler(t, nil)
	rr := httptest.NewRecorder()
	h.HandleSignUp(rr, httptest.NewRequest(http.MethodPost, "/auth/signup",
		strings.NewReader(`{"displayName":"alice","email":"alice@example.com","password":"password123"}`)))
	var session sessionResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&session))

	withUser := func(req *http.Request) *http.Request {
		return req.WithContext(auth.WithUserID(req.Context(), session.User.ID))
	}

	rr = httptest.NewRecorder()
	h.HandleRename(rr, withUser(httptest.NewRequest(http.MethodPatch, "/api/me", strings.NewReader(`{"displayName":"alicia"}`))))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.HandleMe(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/me", nil)))
	require.Equal(t, http.StatusOK, rr.Code)
	var me struct {
		DisplayName string `json:"displayName"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&me))
	assert.Equal(t, "alicia", me.DisplayName)

	rr = httptest.NewRecorder()
	h.HandleMe(rr, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
