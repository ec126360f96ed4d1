package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/habit-tracker/internal/apperror"
	"github.com/sakif/habit-tracker/internal/model"
	"github.com/sakif/habit-tracker/internal/repository"
)

var _ repository.HabitRepository = (*DB)(nil)

const habitColumns = `h.id, h.owner_id, h.name, h.description, h.frequency, h.start_time, h.end_time,
	h.base_points, h.current_streak, h.last_completed_at, h.reminder_enabled, h.created_at, h.updated_at`

func scanHabit(row rowScanner) (model.Habit, error) {
	var (
		h         model.Habit
		freq      string
		endTime   sql.NullTime
		completed sql.NullTime
	)
	err := row.Scan(
		&h.ID,
		&h.OwnerID,
		&h.Name,
		&h.Description,
		&freq,
		&h.StartTime,
		&endTime,
		&h.BasePoints,
		&h.CurrentStreak,
		&completed,
		&h.Reminders,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	h.Frequency = model.Frequency(freq)
	h.EndTime = timePtr(endTime)
	h.LastCompletedAt = timePtr(completed)
	return h, err
}

// CreateHabit inserts a habit and fills in its ID and timestamps.
func (db *DB) CreateHabit(ctx context.Context, habit *model.Habit) error {
	ts := now()
	habit.ID = xid.New().String()
	habit.CreatedAt = ts
	habit.UpdatedAt = ts

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO habits (id, owner_id, name, description, frequency, start_time, end_time,
		                     base_points, current_streak, last_completed_at, reminder_enabled,
		                     created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		habit.ID,
		habit.OwnerID,
		habit.Name,
		habit.Description,
		string(habit.Frequency),
		habit.StartTime.UTC(),
		nullTime(habit.EndTime),
		habit.BasePoints,
		habit.CurrentStreak,
		nullTime(habit.LastCompletedAt),
		habit.Reminders,
		habit.CreatedAt,
		habit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating habit: %w", err)
	}
	return nil
}

// GetHabitByID returns the habit with its grantee list populated.
func (db *DB) GetHabitByID(ctx context.Context, id string) (*model.Habit, error) {
	h, err := scanHabit(db.conn.QueryRowContext(ctx,
		`SELECT `+habitColumns+` FROM habits h WHERE h.id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("habit", id)
		}
		return nil, fmt.Errorf("sqlite: getting habit %s: %w", id, err)
	}

	h.SharedWith, err = db.ListHabitGrantees(ctx, id)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// ListHabitsForUser returns owned habits first, then habits shared with the user.
// Only owned habits carry their SharedWith list; grantees don't see each other.
func (db *DB) ListHabitsForUser(ctx context.Context, userID string) ([]model.Habit, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+habitColumns+`, 0 AS shared FROM habits h WHERE h.owner_id = ?
		 UNION ALL
		 SELECT `+habitColumns+`, 1 AS shared FROM habits h
		   JOIN habit_shares s ON s.habit_id = h.id
		  WHERE s.user_id = ?
		 ORDER BY shared, created_at, id`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing habits for %s: %w", userID, err)
	}

	habits, err := collectHabits(rows, true)
	if err != nil {
		return nil, err
	}

	// rows is closed by now, so the single connection is free again.
	for i := range habits {
		if habits[i].OwnerID != userID {
			continue
		}
		habits[i].SharedWith, err = db.ListHabitGrantees(ctx, habits[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return habits, nil
}

// ListReminderHabits returns habits with reminders on that are either
// recurring or start after now.
func (db *DB) ListReminderHabits(ctx context.Context, now time.Time) ([]model.Habit, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+habitColumns+` FROM habits h
		  WHERE h.reminder_enabled = 1
		    AND (h.frequency != '' OR h.start_time > ?)
		  ORDER BY h.created_at, h.id`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing reminder habits: %w", err)
	}
	return collectHabits(rows, false)
}

// collectHabits drains and closes rows. withSharedFlag skips the trailing
// "shared" column added by ListHabitsForUser.
func collectHabits(rows *sql.Rows, withSharedFlag bool) ([]model.Habit, error) {
	defer rows.Close()

	habits := []model.Habit{}
	for rows.Next() {
		var (
			h   model.Habit
			err error
		)
		if withSharedFlag {
			h, err = scanHabit(sharedFlagScanner{rows})
		} else {
			h, err = scanHabit(rows)
		}
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning habit row: %w", err)
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating habits: %w", err)
	}
	return habits, nil
}

// sharedFlagScanner appends a throwaway destination for the "shared" column.
type sharedFlagScanner struct{ rows *sql.Rows }

func (s sharedFlagScanner) Scan(dest ...any) error {
	var shared int
	return s.rows.Scan(append(dest, &shared)...)
}

// UpdateHabit writes the user-editable fields. Streak state is only written
// by RecordCompletion.
func (db *DB) UpdateHabit(ctx context.Context, habit *model.Habit) error {
	habit.UpdatedAt = now()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE habits
		    SET name = ?, description = ?, frequency = ?, start_time = ?, end_time = ?,
		        base_points = ?, reminder_enabled = ?, updated_at = ?
		  WHERE id = ?`,
		habit.Name,
		habit.Description,
		string(habit.Frequency),
		habit.StartTime.UTC(),
		nullTime(habit.EndTime),
		habit.BasePoints,
		habit.Reminders,
		habit.UpdatedAt,
		habit.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating habit %s: %w", habit.ID, err)
	}
	n, err := checkAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("habit", habit.ID)
	}
	return nil
}

// DeleteHabit removes a habit. Shares and pending share requests go with it
// (ON DELETE CASCADE).
func (db *DB) DeleteHabit(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM habits WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting habit %s: %w", id, err)
	}
	n, err := checkAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("habit", id)
	}
	return nil
}

func (db *DB) HasHabitAccess(ctx context.Context, habitID, userID string) (bool, error) {
	var ok bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM habits WHERE id = ? AND owner_id = ?)
		     OR EXISTS (SELECT 1 FROM habit_shares WHERE habit_id = ? AND user_id = ?)`,
		habitID, userID, habitID, userID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking access to habit %s: %w", habitID, err)
	}
	return ok, nil
}

// RecordCompletion persists a completed habit and credits the award.
//
// The habit row and every leaderboard row of the owner change together:
// either the completion counts everywhere or nowhere.
func (db *DB) RecordCompletion(ctx context.Context, habit *model.Habit, awarded int) ([]string, error) {
	var credited []string

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		habit.UpdatedAt = now()
		res, err := tx.ExecContext(ctx,
			`UPDATE habits SET current_streak = ?, last_completed_at = ?, updated_at = ? WHERE id = ?`,
			habit.CurrentStreak, nullTime(habit.LastCompletedAt), habit.UpdatedAt, habit.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: recording completion of %s: %w", habit.ID, err)
		}
		n, err := checkAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperror.NotFound("habit", habit.ID)
		}

		rows, err := tx.QueryContext(ctx,
			`UPDATE leaderboard_participants SET points = points + ?
			  WHERE user_id = ?
			 RETURNING leaderboard_id`,
			awarded, habit.OwnerID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: crediting leaderboards for %s: %w", habit.OwnerID, err)
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("sqlite: scanning credited leaderboard: %w", err)
			}
			credited = append(credited, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return credited, nil
}

// ListHabitGrantees returns the ids of users a habit is shared with.
func (db *DB) ListHabitGrantees(ctx context.Context, habitID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id FROM habit_shares WHERE habit_id = ? ORDER BY created_at, user_id`, habitID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing grantees of %s: %w", habitID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning grantee: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating grantees: %w", err)
	}
	return ids, nil
}
