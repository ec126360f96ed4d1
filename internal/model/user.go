// Package model defines the data structures shared by every layer of the
// application. Structs here carry JSON tags for the HTTP layer; the sqlite
// repository maps them to columns by hand.
package model

import "time"

// User is a registered account.
//
// Accounts are created either by email/password sign-up or by signing in with
// GitHub. GitHubID is nil for password-only accounts, which lets the
// github_id column stay UNIQUE while allowing any number of NULLs.
//
// DisplayName is what other users type to find you (friend requests,
// leaderboard rosters). It is NOT unique: lookups by name must cope with zero,
// one, or many matches.
type User struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	GitHubID     *int64    `json:"githubId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PublicUser is the subset of a User that other accounts may see.
type PublicUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Public strips private fields.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, DisplayName: u.DisplayName}
}
