// Package sqlite provides a SQLite-backed implementation of ports.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/ewilliams-labs/duet/internal/core/domain"
	"github.com/ewilliams-labs/duet/internal/core/ports"
)

// Adapter implements the repository ports for SQLite
type Adapter struct {
	db *sql.DB
}

var _ ports.Store = (*Adapter)(nil)

// NewAdapter creates a connection and runs the schema migration
func NewAdapter(storagePath string) (*Adapter, error) {
	db, err := sql.Open("sqlite3", dsn(storagePath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: failed to ping db: %w", err)
	}

	adapter := &Adapter{db: db}

	// Auto-migrate on startup
	if err := adapter.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migration failed: %w", err)
	}

	return adapter, nil
}

// dsn enables foreign keys on every connection.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on"
}

// Close ensures the DB connection is closed gracefully
func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		spotify_id TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		photo_url TEXT,
		lat REAL,
		lon REAL,
		source_playlist_id TEXT,
		anthem TEXT,
		demo INTEGER NOT NULL DEFAULT 0,
		access_token TEXT,
		refresh_token TEXT,
		token_type TEXT,
		token_expiry DATETIME,
		profile TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		album TEXT,
		release_date TEXT,
		duration_ms INTEGER,
		isrc TEXT,
		cover_url TEXT,
		preview_url TEXT,
		danceability REAL,
		energy REAL,
		valence REAL,
		tempo REAL,
		instrumentalness REAL,
		acousticness REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS track_artists (
		track_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		artist_id TEXT NOT NULL,
		artist_name TEXT NOT NULL,
		PRIMARY KEY (track_id, position),
		FOREIGN KEY(track_id) REFERENCES tracks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS artists (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		genres TEXT NOT NULL DEFAULT '[]',
		popularity INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS libraries (
		owner_id TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS library_tracks (
		owner_id TEXT NOT NULL,
		track_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (owner_id, track_id),
		FOREIGN KEY(owner_id) REFERENCES libraries(owner_id) ON DELETE CASCADE,
		FOREIGN KEY(track_id) REFERENCES tracks(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		user_a TEXT NOT NULL,
		user_b TEXT NOT NULL,
		score REAL NOT NULL,
		breakdown TEXT NOT NULL,
		decision_a TEXT NOT NULL DEFAULT '',
		decision_b TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		mutual INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (user_a, user_b)
	);
	CREATE INDEX IF NOT EXISTS idx_matches_user_b ON matches(user_b);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		match_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		body TEXT NOT NULL,
		sent_at DATETIME NOT NULL,
		FOREIGN KEY(match_id) REFERENCES matches(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_match ON messages(match_id, sent_at);
	`
	if _, err := a.db.Exec(query); err != nil {
		return err
	}

	// Columns added after the first schema; older databases gain them here.
	additions := []string{
		"ALTER TABLE tracks ADD COLUMN popularity INTEGER NOT NULL DEFAULT 0",
		"ALTER TABLE tracks ADD COLUMN speechiness REAL",
		"ALTER TABLE tracks ADD COLUMN liveness REAL",
		"ALTER TABLE tracks ADD COLUMN loudness REAL",
		"ALTER TABLE tracks ADD COLUMN musical_key INTEGER",
		"ALTER TABLE tracks ADD COLUMN mode INTEGER",
		"ALTER TABLE tracks ADD COLUMN time_signature INTEGER",
		"ALTER TABLE tracks ADD COLUMN feature_source TEXT NOT NULL DEFAULT ''",
	}
	for _, stmt := range additions {
		if _, err := a.db.Exec(stmt); err != nil {
			if !isDuplicateColumnError(err) {
				return err
			}
		}
	}

	return nil
}

func isDuplicateColumnError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "duplicate column") || strings.Contains(err.Error(), "already exists"))
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// requireRow turns an UPDATE touching nothing into domain.ErrNotFound.
func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite: %s: %w", what, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: transaction commit failed: %w", err)
	}
	return nil
}
