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

var _ repository.FriendRepository = (*DB)(nil)

func (db *DB) CreateFriendRequest(ctx context.Context, req *model.FriendRequest) error {
	req.ID = xid.New().String()
	req.Status = model.StatusPending
	req.CreatedAt = now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO friend_requests (id, sender_id, sender_name, recipient_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		req.ID, req.SenderID, req.SenderName, req.RecipientID, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating friend request: %w", err)
	}
	return nil
}

func scanFriendRequest(row rowScanner) (model.FriendRequest, error) {
	r := model.FriendRequest{Status: model.StatusPending}
	err := row.Scan(&r.ID, &r.SenderID, &r.SenderName, &r.RecipientID, &r.CreatedAt)
	return r, err
}

func (db *DB) GetFriendRequest(ctx context.Context, id string) (*model.FriendRequest, error) {
	r, err := scanFriendRequest(db.conn.QueryRowContext(ctx,
		`SELECT id, sender_id, sender_name, recipient_id, created_at
		   FROM friend_requests WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("friend request", id)
		}
		return nil, fmt.Errorf("sqlite: getting friend request %s: %w", id, err)
	}
	return &r, nil
}

func (db *DB) ListIncomingFriendRequests(ctx context.Context, recipientID string) ([]model.FriendRequest, error) {
	return db.listFriendRequests(ctx, "recipient_id", recipientID)
}

func (db *DB) ListSentFriendRequests(ctx context.Context, senderID string) ([]model.FriendRequest, error) {
	return db.listFriendRequests(ctx, "sender_id", senderID)
}

// listFriendRequests is shared by the incoming and sent listings. column is
// always one of two constants above, never user input.
func (db *DB) listFriendRequests(ctx context.Context, column, userID string) ([]model.FriendRequest, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, sender_id, sender_name, recipient_id, created_at
		   FROM friend_requests WHERE `+column+` = ?
		  ORDER BY created_at, id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing friend requests: %w", err)
	}
	defer rows.Close()

	reqs := []model.FriendRequest{}
	for rows.Next() {
		r, err := scanFriendRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning friend request: %w", err)
		}
		reqs = append(reqs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating friend requests: %w", err)
	}
	return reqs, nil
}

// ResolveFriendRequest answers a pending request.
//
// The DELETE is the authoritative resolution: whichever caller deletes the
// row wins, and a concurrent second caller finds nothing and gets false.
// On accept, both friendship rows are inserted in the same transaction, so
// the relation is never half-recorded. INSERT OR IGNORE makes an accept
// between users who are already friends harmless.
func (db *DB) ResolveFriendRequest(ctx context.Context, id string, accept bool) (bool, error) {
	resolved := false

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var senderID, recipientID string
		err := tx.QueryRowContext(ctx,
			`SELECT sender_id, recipient_id FROM friend_requests WHERE id = ?`, id,
		).Scan(&senderID, &recipientID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("sqlite: loading friend request %s: %w", id, err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM friend_requests WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlite: deleting friend request %s: %w", id, err)
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

		ts := now()
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO friendships (user_id, friend_id, created_at)
			 VALUES (?, ?, ?), (?, ?, ?)`,
			senderID, recipientID, ts,
			recipientID, senderID, ts,
		)
		if err != nil {
			return fmt.Errorf("sqlite: recording friendship %s/%s: %w", senderID, recipientID, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return resolved, nil
}

// DeleteFriendRequest withdraws a request. It returns false if it was already gone.
func (db *DB) DeleteFriendRequest(ctx context.Context, id string) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM friend_requests WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("sqlite: deleting friend request %s: %w", id, err)
	}
	n, err := checkAffected(res)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListFriends returns the user's friends ordered by display name.
func (db *DB) ListFriends(ctx context.Context, userID string) ([]model.PublicUser, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT u.id, u.display_name
		   FROM friendships f
		   JOIN users u ON u.id = f.friend_id
		  WHERE f.user_id = ?
		  ORDER BY u.display_name, u.id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing friends of %s: %w", userID, err)
	}
	defer rows.Close()

	friends := []model.PublicUser{}
	for rows.Next() {
		var f model.PublicUser
		if err := rows.Scan(&f.ID, &f.DisplayName); err != nil {
			return nil, fmt.Errorf("sqlite: scanning friend: %w", err)
		}
		friends = append(friends, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating friends: %w", err)
	}
	return friends, nil
}

func (db *DB) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var ok bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM friendships WHERE user_id = ? AND friend_id = ?)`, a, b,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking friendship %s/%s: %w", a, b, err)
	}
	return ok, nil
}

// RemoveFriendship deletes both directions of a friendship.
func (db *DB) RemoveFriendship(ctx context.Context, a, b string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM friendships
			  WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)`,
			a, b, b, a,
		)
		if err != nil {
			return fmt.Errorf("sqlite: removing friendship %s/%s: %w", a, b, err)
		}
		n, err := checkAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperror.NotFound("friend", b)
		}
		return nil
	})
}

// PruneRequests deletes pending friend and share requests created before
// cutoff and returns how many rows went.
func (db *DB) PruneRequests(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"friend_requests", "share_requests"} {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM `+table+` WHERE created_at < ?`, cutoff.UTC(),
			)
			if err != nil {
				return fmt.Errorf("sqlite: pruning %s: %w", table, err)
			}
			n, err := checkAffected(res)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
