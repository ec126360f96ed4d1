// Package sqlite implements the repository interfaces on top of SQLite.
//
// The driver is modernc.org/sqlite, a pure Go translation of SQLite; no CGo.
// The database is a single file, or ":memory:" in tests.
//
// One *DB value implements every repository interface in internal/repository.
// Method names are prefixed by entity (CreateHabit, GetLeaderboard, ...) so a
// single type can satisfy all of them without collisions.
//
// TIMESTAMPS:
// Every time.Time is converted to UTC before it is written. The driver stores
// times as text, and a fixed offset keeps text comparison (created_at < ?)
// consistent with chronological order.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/habits.db" → file-based database (persistent)
//   - ":memory:"       → in-memory database (tests; lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// PRAGMAs below apply per connection, and every new connection to
	// ":memory:" gets its own empty database. A single connection keeps both
	// consistent; SQLite serialises writers anyway.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL keeps the file readable by habitctl while the server writes.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are off by default in SQLite. The schema relies on
	// ON DELETE CASCADE to clean up shares, rosters and requests.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	// Writers wait up to 5s for the lock instead of failing with SQLITE_BUSY.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// withTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
//
// fn must only use tx. Touching db.conn inside fn would wait for a second
// connection, which never comes: the pool is limited to one.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	// Rollback after a successful Commit is a no-op returning sql.ErrTxDone.
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// migrate creates every table the application needs.
//
// CREATE TABLE IF NOT EXISTS and addColumnIfNotExists keep this idempotent,
// so it runs on every start (and from `habitctl migrate`).
func (db *DB) migrate() error {
	steps := []struct {
		name string
		ddl  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				display_name  TEXT NOT NULL,
				email         TEXT UNIQUE,
				password_hash TEXT NOT NULL DEFAULT '',
				github_id     INTEGER UNIQUE,
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_users_display_name ON users(display_name);
		`},
		{"habits", `
			CREATE TABLE IF NOT EXISTS habits (
				id                TEXT PRIMARY KEY,
				owner_id          TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				name              TEXT NOT NULL,
				description       TEXT NOT NULL DEFAULT '',
				frequency         TEXT NOT NULL DEFAULT '',
				start_time        DATETIME NOT NULL,
				end_time          DATETIME,
				base_points       INTEGER NOT NULL DEFAULT 0 CHECK (base_points >= 0),
				current_streak    INTEGER NOT NULL DEFAULT 0 CHECK (current_streak >= 0),
				last_completed_at DATETIME,
				created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_habits_owner_id ON habits(owner_id);
		`},
		{"habit_shares", `
			CREATE TABLE IF NOT EXISTS habit_shares (
				habit_id   TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (habit_id, user_id)
			);
			CREATE INDEX IF NOT EXISTS idx_habit_shares_user_id ON habit_shares(user_id);
		`},
		// Both directions of a friendship are stored, so "list my friends" is a
		// single indexed lookup on user_id.
		{"friendships", `
			CREATE TABLE IF NOT EXISTS friendships (
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				friend_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (user_id, friend_id)
			);
		`},
		{"friend_requests", `
			CREATE TABLE IF NOT EXISTS friend_requests (
				id           TEXT PRIMARY KEY,
				sender_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				sender_name  TEXT NOT NULL,
				recipient_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_friend_requests_recipient ON friend_requests(recipient_id);
			CREATE INDEX IF NOT EXISTS idx_friend_requests_sender ON friend_requests(sender_id);
		`},
		{"share_requests", `
			CREATE TABLE IF NOT EXISTS share_requests (
				id           TEXT PRIMARY KEY,
				habit_id     TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
				habit_name   TEXT NOT NULL,
				sender_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				recipient_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_share_requests_recipient ON share_requests(recipient_id);
		`},
		{"leaderboards", `
			CREATE TABLE IF NOT EXISTS leaderboards (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				admin_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`},
		{"leaderboard_participants", `
			CREATE TABLE IF NOT EXISTS leaderboard_participants (
				leaderboard_id TEXT NOT NULL REFERENCES leaderboards(id) ON DELETE CASCADE,
				user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				position       INTEGER NOT NULL,
				points         INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (leaderboard_id, user_id)
			);
			CREATE INDEX IF NOT EXISTS idx_participants_user_id ON leaderboard_participants(user_id);
		`},
	}

	for _, step := range steps {
		if _, err := db.conn.Exec(step.ddl); err != nil {
			return fmt.Errorf("creating %s table: %w", step.name, err)
		}
	}

	// Added after the first release; existing databases pick it up here.
	if err := db.addColumnIfNotExists("habits", "reminder_enabled",
		"INTEGER NOT NULL DEFAULT 1"); err != nil {
		return fmt.Errorf("adding reminder_enabled to habits: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent, so they are safe to run repeatedly.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// now returns the current time in UTC; see the package doc on timestamps.
func now() time.Time {
	return time.Now().UTC()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func checkAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
