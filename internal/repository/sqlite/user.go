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

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, display_name, COALESCE(email, ''), password_hash, github_id, created_at, updated_at`

func scanUser(row rowScanner) (model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
	)
	err := row.Scan(
		&u.ID,
		&u.DisplayName,
		&u.Email,
		&u.PasswordHash,
		&githubID,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	return u, err
}

// CreateUser inserts a password account.
//
// Email is UNIQUE. Instead of parsing the driver's constraint error we let
// ON CONFLICT swallow the insert and look at RowsAffected: zero rows means
// the address is taken.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	ts := now()
	user.ID = xid.New().String()
	user.CreatedAt = ts
	user.UpdatedAt = ts

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, display_name, email, password_hash, created_at, updated_at)
		 VALUES (?, ?, NULLIF(?, ''), ?, ?, ?)
		 ON CONFLICT(email) DO NOTHING`,
		user.ID,
		user.DisplayName,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating user: %w", err)
	}

	n, err := checkAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.Conflict("an account with this email already exists")
	}
	return nil
}

// UpsertGitHubUser signs in a GitHub identity.
//
// Three cases, checked in order:
//  1. a row already carries this github_id → refresh its email
//  2. a password account has the same email → link the GitHub id to it
//  3. otherwise → insert a new account, using the GitHub login as display name
//
// In every case the caller's struct is overwritten with the stored row.
func (db *DB) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return fmt.Errorf("sqlite: upserting GitHub user: missing github id")
	}
	ghID := *user.GitHubID

	return db.withTx(ctx, func(tx *sql.Tx) error {
		ts := now()

		var existingID string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM users WHERE github_id = ?`, ghID,
		).Scan(&existingID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sqlite: looking up user by github_id %d: %w", ghID, err)
		}

		switch {
		case existingID != "":
			_, err = tx.ExecContext(ctx,
				`UPDATE users SET email = COALESCE(NULLIF(?, ''), email), updated_at = ? WHERE id = ?`,
				user.Email, ts, existingID,
			)
			if err != nil {
				return fmt.Errorf("sqlite: updating user %s: %w", existingID, err)
			}

		case user.Email != "":
			res, err := tx.ExecContext(ctx,
				`UPDATE users SET github_id = ?, updated_at = ? WHERE email = ? AND github_id IS NULL`,
				ghID, ts, user.Email,
			)
			if err != nil {
				return fmt.Errorf("sqlite: linking github_id %d: %w", ghID, err)
			}
			n, err := checkAffected(res)
			if err != nil {
				return err
			}
			if n > 0 {
				break
			}
			fallthrough

		default:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO users (id, display_name, email, github_id, created_at, updated_at)
				 VALUES (?, ?, NULLIF(?, ''), ?, ?, ?)`,
				xid.New().String(), user.DisplayName, user.Email, ghID, ts, ts,
			)
			if err != nil {
				return fmt.Errorf("sqlite: inserting user (githubID=%d): %w", ghID, err)
			}
		}

		stored, err := scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE github_id = ?`, ghID,
		))
		if err != nil {
			return fmt.Errorf("sqlite: reloading user (githubID=%d): %w", ghID, err)
		}
		*user = stored
		return nil
	})
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return &u, nil
}

// GetUserByEmail looks up a password account for sign-in.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundByName("user with email", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return &u, nil
}

// FindUsersByDisplayName returns all accounts whose display name matches
// exactly. Callers decide what zero or several matches mean.
func (db *DB) FindUsersByDisplayName(ctx context.Context, name string) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE display_name = ? ORDER BY created_at`, name,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding users named %q: %w", name, err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

func (db *DB) UpdateDisplayName(ctx context.Context, id, name string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET display_name = ?, updated_at = ? WHERE id = ?`,
		name, now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: renaming user %s: %w", id, err)
	}
	n, err := checkAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
