// Package rewards computes points and streaks for habit completions.
//
// Everything here is a pure function of a model.Habit value and a clock
// reading: no I/O, no shared state. The service layer decides when to call
// these and persists the results.
package rewards

import (
	"errors"
	"time"

	"github.com/sakif/habit-tracker/internal/model"
)

// Streak thresholds and the bonus each one earns. Comparisons are inclusive:
// a streak of exactly 7 earns the 7-day bonus.
const (
	WeekStreak        = 7
	WeekStreakBonus   = 5
	FortnightStreak   = 14
	FortnightBonus    = 10
	DefaultMultiplier = 1
)

var (
	// ErrAlreadyCompleted is returned when a habit is completed twice in one
	// period, or a one-time habit is completed again.
	ErrAlreadyCompleted = errors.New("rewards: habit already completed for this period")

	// ErrHabitEnded is returned when completing a habit after its end time.
	ErrHabitEnded = errors.New("rewards: habit has ended")

	// ErrNotStarted is returned when completing a habit before its start time.
	ErrNotStarted = errors.New("rewards: habit has not started")
)

// multiplier scales base points. Every habit currently gets DefaultMultiplier;
// per-habit modifiers (difficulty, frequency) would be computed here.
func multiplier(_ model.Habit) int {
	return DefaultMultiplier
}

// PointsForCompletion returns basePoints * multiplier.
func PointsForCompletion(h model.Habit) int {
	return h.BasePoints * multiplier(h)
}

// StreakBonus returns the bonus earned by the habit's current streak.
func StreakBonus(h model.Habit) int {
	switch {
	case h.CurrentStreak >= FortnightStreak:
		return FortnightBonus
	case h.CurrentStreak >= WeekStreak:
		return WeekStreakBonus
	default:
		return 0
	}
}

// Award is the total credited for one completion: points plus streak bonus.
func Award(h model.Habit) int {
	return PointsForCompletion(h) + StreakBonus(h)
}

// ApplyCompletion returns a copy of h marked complete at now with its streak
// advanced.
//
// For recurring habits the streak grows by one when the previous completion
// fell in the immediately preceding period, and restarts at 1 after a gap.
// A one-time habit can be completed exactly once. Completions are only
// accepted between the habit's start and end times.
func ApplyCompletion(h model.Habit, now time.Time) (model.Habit, error) {
	if now.Before(h.StartTime) {
		return h, ErrNotStarted
	}
	if h.Ended(now) {
		return h, ErrHabitEnded
	}

	if h.IsOneTime() {
		if h.LastCompletedAt != nil {
			return h, ErrAlreadyCompleted
		}
		h.CurrentStreak = 1
	} else {
		cur := periodIndex(h.Frequency, now)
		switch {
		case h.LastCompletedAt == nil:
			h.CurrentStreak = 1
		default:
			last := periodIndex(h.Frequency, *h.LastCompletedAt)
			switch {
			case last >= cur:
				return h, ErrAlreadyCompleted
			case last == cur-1:
				h.CurrentStreak++
			default:
				h.CurrentStreak = 1
			}
		}
	}

	at := now
	h.LastCompletedAt = &at
	h.Completed = true
	return h, nil
}

// Refresh derives the display state of h at now: Completed is set when the
// last completion falls in the current period, and a streak whose chain was
// broken by a missed period reads as zero.
func Refresh(h model.Habit, now time.Time) model.Habit {
	if h.LastCompletedAt == nil {
		h.Completed = false
		return h
	}
	if h.IsOneTime() {
		h.Completed = true
		return h
	}

	cur := periodIndex(h.Frequency, now)
	last := periodIndex(h.Frequency, *h.LastCompletedAt)
	h.Completed = last == cur
	if last < cur-1 {
		h.CurrentStreak = 0
	}
	return h
}

// periodIndex maps t to a monotonically increasing period number so that
// consecutive periods differ by exactly one. All periods are UTC.
func periodIndex(f model.Frequency, t time.Time) int64 {
	t = t.UTC()
	switch f {
	case model.FrequencyWeekly:
		// 1970-01-01 was a Thursday; shifting by 3 days makes weeks start on Monday.
		return floorDiv(dayIndex(t)+3, 7)
	case model.FrequencyMonthly:
		return int64(t.Year())*12 + int64(t.Month()) - 1
	default:
		return dayIndex(t)
	}
}

func dayIndex(t time.Time) int64 {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return floorDiv(midnight.Unix(), 86400)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
