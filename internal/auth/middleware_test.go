package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAuth(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.Issue("user-42")

	var seen string
	h := RequireAuth(ts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
		wantUser   string
	}{
		{"no credentials", func(*http.Request) {}, http.StatusUnauthorized, ""},
		{"cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: CookieName, Value: token})
		}, http.StatusNoContent, "user-42"},
		{"bearer header", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+token)
		}, http.StatusNoContent, "user-42"},
		{"lowercase scheme", func(r *http.Request) {
			r.Header.Set("Authorization", "bearer "+token)
		}, http.StatusNoContent, "user-42"},
		{"basic scheme ignored", func(r *http.Request) {
			r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		}, http.StatusUnauthorized, ""},
		{"bad cookie", func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: CookieName, Value: "junk"})
		}, http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if seen != tt.wantUser {
				t.Errorf("user in context = %q, want %q", seen, tt.wantUser)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
					t.Errorf("Content-Type = %q, want application/json", ct)
				}
			}
		})
	}
}

func TestUserIDFromContext_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := UserIDFromContext(req.Context()); ok {
		t.Error("UserIDFromContext() on a bare context returned ok")
	}
	if _, ok := UserIDFromContext(WithUserID(req.Context(), "")); ok {
		t.Error("UserIDFromContext() accepted an empty id")
	}
}
