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

var _ repository.ShareRepository = (*DB)(nil)

func (db *DB) CreateShareRequest(ctx context.Context, req *model.HabitShareRequest) error {
	req.ID = xid.New().String()
	req.Status = model.StatusPending
	req.CreatedAt = now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO share_requests (id, habit_id, habit_name, sender_id, recipient_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		req.ID, req.HabitID, req.HabitName, req.SenderID, req.RecipientID, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating share request: %w", err)
	}
	return nil
}

func scanShareRequest(row rowScanner) (model.HabitShareRequest, error) {
	r := model.HabitShareRequest{Status: model.StatusPending}
	err := row.Scan(&r.ID, &r.HabitID, &r.HabitName, &r.SenderID, &r.RecipientID, &r.CreatedAt)
	return r, err
}

func (db *DB) GetShareRequest(ctx context.Context, id string) (*model.HabitShareRequest, error) {
	r, err := scanShareRequest(db.conn.QueryRowContext(ctx,
		`SELECT id, habit_id, habit_name, sender_id, recipient_id, created_at
		   FROM share_requests WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("share request", id)
		}
		return nil, fmt.Errorf("sqlite: getting share request %s: %w", id, err)
	}
	return &r, nil
}

func (db *DB) ListIncomingShareRequests(ctx context.Context, recipientID string) ([]model.HabitShareRequest, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, habit_id, habit_name, sender_id, recipient_id, created_at
		   FROM share_requests WHERE recipient_id = ?
		  ORDER BY created_at, id`, recipientID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing share requests: %w", err)
	}
	defer rows.Close()

	reqs := []model.HabitShareRequest{}
	for rows.Next() {
		r, err := scanShareRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning share request: %w", err)
		}
		reqs = append(reqs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating share requests: %w", err)
	}
	return reqs, nil
}

// ResolveShareRequest answers a pending share request.
//
// Same shape as ResolveFriendRequest: the DELETE decides who wins. On accept
// the grant is inserted with INSERT ... SELECT ... WHERE EXISTS, so a habit
// that disappeared in the meantime yields no grant and no foreign key error.
func (db *DB) ResolveShareRequest(ctx context.Context, id string, accept bool) (bool, error) {
	resolved := false

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var habitID, recipientID string
		err := tx.QueryRowContext(ctx,
			`SELECT habit_id, recipient_id FROM share_requests WHERE id = ?`, id,
		).Scan(&habitID, &recipientID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("sqlite: loading share request %s: %w", id, err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM share_requests WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlite: deleting share request %s: %w", id, err)
		}
		n, err := checkAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		resolved = true

		if !accept {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO habit_shares (habit_id, user_id, created_at)
			 SELECT ?, ?, ? WHERE EXISTS (SELECT 1 FROM habits WHERE id = ?)`,
			habitID, recipientID, now(), habitID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: granting habit %s to %s: %w", habitID, recipientID, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return resolved, nil
}

func (db *DB) DeleteShareRequest(ctx context.Context, id string) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM share_requests WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("sqlite: deleting share request %s: %w", id, err)
	}
	n, err := checkAffected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemoveShare revokes a grantee's access to a habit.
func (db *DB) RemoveShare(ctx context.Context, habitID, userID string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM habit_shares WHERE habit_id = ? AND user_id = ?`, habitID, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing share %s/%s: %w", habitID, userID, err)
	}
	n, err := checkAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("share", userID)
	}
	return nil
}
