package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/habit-tracker/internal/apperror"
	"github.com/sakif/habit-tracker/internal/model"
	"github.com/sakif/habit-tracker/internal/repository"
)

var _ repository.LeaderboardRepository = (*DB)(nil)

// CreateLeaderboard inserts the leaderboard and its roster in one transaction.
// Participants keep the slice order (position 0, 1, ...) and start at zero.
// Duplicate user ids are skipped.
func (db *DB) CreateLeaderboard(ctx context.Context, lb *model.Leaderboard) error {
	lb.ID = xid.New().String()
	lb.CreatedAt = now()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO leaderboards (id, name, admin_id, created_at) VALUES (?, ?, ?, ?)`,
			lb.ID, lb.Name, lb.AdminID, lb.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating leaderboard: %w", err)
		}

		seen := make(map[string]bool, len(lb.Participants))
		roster := lb.Participants[:0]
		for _, p := range lb.Participants {
			if seen[p.UserID] {
				continue
			}
			seen[p.UserID] = true

			_, err := tx.ExecContext(ctx,
				`INSERT INTO leaderboard_participants (leaderboard_id, user_id, position, points)
				 VALUES (?, ?, ?, 0)`,
				lb.ID, p.UserID, len(roster),
			)
			if err != nil {
				return fmt.Errorf("sqlite: adding participant %s: %w", p.UserID, err)
			}
			p.Points = 0
			roster = append(roster, p)
		}
		lb.Participants = roster
		return nil
	})
}

// GetLeaderboard loads a leaderboard and its roster in roster order.
// Display names come from the users table, so renames are reflected immediately.
func (db *DB) GetLeaderboard(ctx context.Context, id string) (*model.Leaderboard, error) {
	var lb model.Leaderboard
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, admin_id, created_at FROM leaderboards WHERE id = ?`, id,
	).Scan(&lb.ID, &lb.Name, &lb.AdminID, &lb.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("leaderboard", id)
		}
		return nil, fmt.Errorf("sqlite: getting leaderboard %s: %w", id, err)
	}

	lb.Participants, err = db.loadRoster(ctx, id)
	if err != nil {
		return nil, err
	}
	return &lb, nil
}

func (db *DB) loadRoster(ctx context.Context, leaderboardID string) ([]model.Participant, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT p.user_id, u.display_name, p.points
		   FROM leaderboard_participants p
		   JOIN users u ON u.id = p.user_id
		  WHERE p.leaderboard_id = ?
		  ORDER BY p.position`, leaderboardID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading roster of %s: %w", leaderboardID, err)
	}
	defer rows.Close()

	roster := []model.Participant{}
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.Points); err != nil {
			return nil, fmt.Errorf("sqlite: scanning participant: %w", err)
		}
		roster = append(roster, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating roster: %w", err)
	}
	return roster, nil
}

// ListLeaderboardsForUser returns leaderboards the user administers or plays in.
func (db *DB) ListLeaderboardsForUser(ctx context.Context, userID string) ([]model.Leaderboard, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT l.id, l.name, l.admin_id, l.created_at
		   FROM leaderboards l
		  WHERE l.admin_id = ?
		     OR EXISTS (SELECT 1 FROM leaderboard_participants p
		                 WHERE p.leaderboard_id = l.id AND p.user_id = ?)
		  ORDER BY l.created_at, l.id`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing leaderboards for %s: %w", userID, err)
	}

	boards := []model.Leaderboard{}
	for rows.Next() {
		var lb model.Leaderboard
		if err := rows.Scan(&lb.ID, &lb.Name, &lb.AdminID, &lb.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning leaderboard: %w", err)
		}
		boards = append(boards, lb)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("sqlite: iterating leaderboards: %w", err)
	}

	for i := range boards {
		boards[i].Participants, err = db.loadRoster(ctx, boards[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return boards, nil
}

// AddParticipant appends a user to the end of the roster at zero points.
// Returns apperror.ErrConflict if the user is already on it.
func (db *DB) AddParticipant(ctx context.Context, leaderboardID, userID string) error {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO leaderboard_participants (leaderboard_id, user_id, position, points)
		 SELECT ?, ?, COALESCE(MAX(position), -1) + 1, 0
		   FROM leaderboard_participants WHERE leaderboard_id = ?
		 ON CONFLICT(leaderboard_id, user_id) DO NOTHING`,
		leaderboardID, userID, leaderboardID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding %s to leaderboard %s: %w", userID, leaderboardID, err)
	}
	n, err := checkAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.Conflict("user is already a participant")
	}
	return nil
}

func (db *DB) RemoveParticipant(ctx context.Context, leaderboardID, userID string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM leaderboard_participants WHERE leaderboard_id = ? AND user_id = ?`,
		leaderboardID, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing %s from leaderboard %s: %w", userID, leaderboardID, err)
	}
	n, err := checkAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("participant", userID)
	}
	return nil
}

// AdjustPoints adds delta (which may be negative) to a participant's total.
// The arithmetic happens in SQL, so concurrent adjustments never lose an update.
func (db *DB) AdjustPoints(ctx context.Context, leaderboardID, userID string, delta int) (int, error) {
	var total int
	err := db.conn.QueryRowContext(ctx,
		`UPDATE leaderboard_participants SET points = points + ?
		  WHERE leaderboard_id = ? AND user_id = ?
		 RETURNING points`,
		delta, leaderboardID, userID,
	).Scan(&total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperror.NotFound("participant", userID)
		}
		return 0, fmt.Errorf("sqlite: adjusting points on %s: %w", leaderboardID, err)
	}
	return total, nil
}

// DeleteLeaderboard removes the leaderboard and, by cascade, its roster.
func (db *DB) DeleteLeaderboard(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM leaderboards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting leaderboard %s: %w", id, err)
	}
	n, err := checkAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("leaderboard", id)
	}
	return nil
}
