// Package service holds the business rules of the habit tracker.
//
//	Handler (HTTP) → Service (rules, authorization) → Repository (SQLite)
//
// Services take repository interfaces and plain values, never *http.Request,
// so the same rules back the HTTP API and the habitctl CLI. Every failure a
// caller can act on is an *apperror.AppError; anything else is a 500.
//
// Side effects that don't own data (notifications, standings cache, reminder
// schedule) run after the authoritative write succeeds. Their failures are
// logged and never fail the request.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/habit-tracker/internal/apperror"
	"github.com/sakif/habit-tracker/internal/model"
	"github.com/sakif/habit-tracker/internal/notify"
	"github.com/sakif/habit-tracker/internal/repository"
)

const MaxDisplayNameLength = 50

// Notifier delivers user events. *notify.Publisher implements it.
type Notifier interface {
	Notify(ctx context.Context, userID string, ev notify.Event)
}

// ReminderScheduler keeps habit reminders in step with habit edits.
// *reminder.Scheduler implements it.
type ReminderScheduler interface {
	ScheduleHabit(h model.Habit) error
	UnscheduleHabit(habitID string)
}

// StandingsCache caches ranked leaderboards per generation; Invalidate starts
// a new one. *cache.Standings implements it.
type StandingsCache interface {
	Generation(ctx context.Context, leaderboardID string) (int64, bool)
	Get(ctx context.Context, leaderboardID string, gen int64) ([]model.Standing, bool)
	Put(ctx context.Context, leaderboardID string, gen int64, standings []model.Standing) error
	Invalidate(ctx context.Context, leaderboardIDs ...string) error
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string, notify.Event) {}

type noopScheduler struct{}

func (noopScheduler) ScheduleHabit(model.Habit) error { return nil }
func (noopScheduler) UnscheduleHabit(string) {}

type noopCache struct{}

func (noopCache) Generation(context.Context, string) (int64, bool) { return 0, false }
func (noopCache) Get(context.Context, string, int64) ([]model.Standing, bool) {
	return nil, false
}
func (noopCache) Put(context.Context, string, int64, []model.Standing) error { return nil }
func (noopCache) Invalidate(context.Context, ...string) error { return nil }

func orNoopNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// validateDisplayName trims and checks a display name.
func validateDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed("displayName", "display name is required")
	}
	if len([]rune(name)) > MaxDisplayNameLength {
		return "", apperror.ValidationFailed("displayName",
			fmt.Sprintf("display name must be %d characters or fewer", MaxDisplayNameLength))
	}
	return name, nil
}

// resolveUser maps a display name to exactly one account. Display names are
// not unique, so zero matches is not_found and several is a conflict the
// caller has to disambiguate.
func resolveUser(ctx context.Context, users repository.UserRepository, name string) (*model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "a display name is required")
	}

	matches, err := users.FindUsersByDisplayName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("service: resolving %q: %w", name, err)
	}
	switch len(matches) {
	case 0:
		return nil, apperror.NotFoundByName("user", name)
	case 1:
		return &matches[0], nil
	default:
		return nil, apperror.Conflict(fmt.Sprintf("display name %q matches %d accounts", name, len(matches)))
	}
}
