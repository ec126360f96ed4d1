package model

import "time"

// Frequency is how often a habit recurs. The empty value means a one-time habit.
type Frequency string

const (
	FrequencyNone    Frequency = ""
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Valid reports whether f is one of the known frequencies (including none).
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyNone, FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// Habit is a trackable activity owned by exactly one user.
//
// Other users can be granted read access through an accepted share request.
// A grant is an association row (habit_shares), never a copy, so edits by the
// owner are visible to every grantee on their next read.
//
// CurrentStreak counts consecutive periods in which the habit was completed.
// Completed is derived on read: true when the habit was completed in the
// current period (or ever, for a one-time habit).
type Habit struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"ownerId"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	Frequency       Frequency  `json:"frequency,omitempty"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	BasePoints      int        `json:"basePoints"`
	CurrentStreak   int        `json:"currentStreak"`
	Completed       bool       `json:"completed"`
	LastCompletedAt *time.Time `json:"lastCompletedAt,omitempty"`
	Reminders       bool       `json:"reminders"`
	SharedWith      []string   `json:"sharedWith,omitempty"` // grantee user ids
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// IsOneTime reports whether the habit has no recurrence.
func (h *Habit) IsOneTime() bool {
	return h.Frequency == FrequencyNone
}

// Ended reports whether the habit's end time has passed at now.
func (h *Habit) Ended(now time.Time) bool {
	return h.EndTime != nil && !now.Before(*h.EndTime)
}
