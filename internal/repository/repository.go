// Package repository declares the storage contracts the service layer depends on.
//
// Services accept these interfaces, never a concrete database type, so the
// composition root (internal/server) decides which implementation to inject.
// The only implementation today is internal/repository/sqlite.
//
// Conventions shared by every implementation:
//   - a missing row is reported as apperror.ErrNotFound (via apperror.NotFound)
//   - Create methods fill in the ID and timestamps on the value they are given
//   - multi-row mutations are applied atomically or not at all
package repository

import (
	"context"
	"time"

	"github.com/sakif/habit-tracker/internal/model"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	// UpsertGitHubUser inserts a user keyed by GitHubID, or refreshes the
	// existing row's email and keeps its id and display name.
	UpsertGitHubUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// FindUsersByDisplayName returns every account with exactly this display name.
	FindUsersByDisplayName(ctx context.Context, name string) ([]model.User, error)
	UpdateDisplayName(ctx context.Context, id, name string) error
}

type HabitRepository interface {
	CreateHabit(ctx context.Context, habit *model.Habit) error
	GetHabitByID(ctx context.Context, id string) (*model.Habit, error)
	// ListHabitsForUser returns habits the user owns followed by habits shared with them.
	ListHabitsForUser(ctx context.Context, userID string) ([]model.Habit, error)
	UpdateHabit(ctx context.Context, habit *model.Habit) error
	DeleteHabit(ctx context.Context, id string) error
	// HasHabitAccess reports whether userID owns the habit or holds a share grant.
	HasHabitAccess(ctx context.Context, habitID, userID string) (bool, error)
	// RecordCompletion stores the habit's new streak state and credits awarded
	// points to every leaderboard the owner participates in, in one transaction.
	// It returns the ids of the leaderboards that were credited.
	RecordCompletion(ctx context.Context, habit *model.Habit, awarded int) ([]string, error)
	// ListReminderHabits returns the habits that need a reminder entry:
	// recurring ones, and one-time ones starting after now.
	ListReminderHabits(ctx context.Context, now time.Time) ([]model.Habit, error)
}

type FriendRepository interface {
	CreateFriendRequest(ctx context.Context, req *model.FriendRequest) error
	GetFriendRequest(ctx context.Context, id string) (*model.FriendRequest, error)
	ListIncomingFriendRequests(ctx context.Context, recipientID string) ([]model.FriendRequest, error)
	ListSentFriendRequests(ctx context.Context, senderID string) ([]model.FriendRequest, error)
	// ResolveFriendRequest deletes the request and, when accept is true, records
	// the friendship in both directions in the same transaction. It returns
	// false when the request no longer exists.
	ResolveFriendRequest(ctx context.Context, id string, accept bool) (bool, error)
	// DeleteFriendRequest removes a request; a missing request is not an error.
	DeleteFriendRequest(ctx context.Context, id string) (bool, error)
	ListFriends(ctx context.Context, userID string) ([]model.PublicUser, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
	RemoveFriendship(ctx context.Context, a, b string) error
	// PruneRequests deletes pending friend and share requests created before cutoff.
	PruneRequests(ctx context.Context, cutoff time.Time) (int64, error)
}

type ShareRepository interface {
	CreateShareRequest(ctx context.Context, req *model.HabitShareRequest) error
	GetShareRequest(ctx context.Context, id string) (*model.HabitShareRequest, error)
	ListIncomingShareRequests(ctx context.Context, recipientID string) ([]model.HabitShareRequest, error)
	// ResolveShareRequest deletes the request and, when accept is true and the
	// habit still exists, grants the recipient access in the same transaction.
	// It returns false when the request no longer exists.
	ResolveShareRequest(ctx context.Context, id string, accept bool) (bool, error)
	DeleteShareRequest(ctx context.Context, id string) (bool, error)
	ListHabitGrantees(ctx context.Context, habitID string) ([]string, error)
	RemoveShare(ctx context.Context, habitID, userID string) error
}

type LeaderboardRepository interface {
	// CreateLeaderboard stores the leaderboard and its roster (in slice order, zero points).
	CreateLeaderboard(ctx context.Context, lb *model.Leaderboard) error
	GetLeaderboard(ctx context.Context, id string) (*model.Leaderboard, error)
	ListLeaderboardsForUser(ctx context.Context, userID string) ([]model.Leaderboard, error)
	AddParticipant(ctx context.Context, leaderboardID, userID string) error
	RemoveParticipant(ctx context.Context, leaderboardID, userID string) error
	// AdjustPoints adds delta to the participant's total and returns the new total.
	AdjustPoints(ctx context.Context, leaderboardID, userID string, delta int) (int, error)
	DeleteLeaderboard(ctx context.Context, id string) error
}
