// Package localstore is the on-device persistence of Timeline: the event
// cache snapshot and the current session, both in one SQLite file.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hray3182/Timeline/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

const (
	schemaName  = "timeline"
	eventsKey   = "events"
	sessionName = "default"
)

type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite file at path and brings its schema up to
// date. Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	// Single writer keeps ":memory:" databases on one connection
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM db_version WHERE name = ?", schemaName).Scan(&version)
	if err != nil {
		if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS db_version (
			name TEXT PRIMARY KEY,
			version INTEGER
		)`); err != nil {
			return fmt.Errorf("failed to create db_version table: %w", err)
		}
		if _, err := s.db.Exec("INSERT OR IGNORE INTO db_version (name, version) VALUES (?, 0)", schemaName); err != nil {
			return fmt.Errorf("failed to initialize db_version table: %w", err)
		}
		version = 0
	}

	if version == 0 {
		if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
			name TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`); err != nil {
			return fmt.Errorf("failed to create snapshots table: %w", err)
		}

		if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
			name TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			email TEXT,
			expires_at TIMESTAMP,
			access_token TEXT
		)`); err != nil {
			return fmt.Errorf("failed to create sessions table: %w", err)
		}

		if _, err := s.db.Exec("UPDATE db_version SET version = 1 WHERE name = ?", schemaName); err != nil {
			return fmt.Errorf("failed to update db_version table: %w", err)
		}
	}

	return nil
}

// Load returns the cached event list, or an empty list if nothing was saved yet.
func (s *Store) Load(ctx context.Context) ([]models.Event, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM snapshots WHERE name = ?", eventsKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return []models.Event{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read event snapshot: %w", err)
	}

	events := []models.Event{}
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to decode event snapshot: %w", err)
	}
	return events, nil
}

// Save replaces the cached event list.
func (s *Store) Save(ctx context.Context, events []models.Event) error {
	if events == nil {
		events = []models.Event{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to encode event snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO snapshots (name, data, updated_at) VALUES (?, ?, ?)",
		eventsKey, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write event snapshot: %w", err)
	}
	return nil
}

// Clear drops the cached event list.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE name = ?", eventsKey); err != nil {
		return fmt.Errorf("failed to clear event snapshot: %w", err)
	}
	return nil
}

// LoadSession returns the stored session, or nil when signed out.
func (s *Store) LoadSession(ctx context.Context) (*models.Session, error) {
	var (
		session   models.Session
		email     sql.NullString
		expiresAt sql.NullTime
		token     sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, email, expires_at, access_token FROM sessions WHERE name = ?",
		sessionName,
	).Scan(&session.UserID, &email, &expiresAt, &token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	session.Email = email.String
	session.AccessToken = token.String
	if expiresAt.Valid {
		session.ExpiresAt = expiresAt.Time.UTC()
	}
	return &session, nil
}

func (s *Store) SaveSession(ctx context.Context, session *models.Session) error {
	var expiresAt any
	if !session.ExpiresAt.IsZero() {
		expiresAt = session.ExpiresAt.UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (name, user_id, email, expires_at, access_token)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionName, session.UserID, session.Email, expiresAt, session.AccessToken,
	)
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (s *Store) DeleteSession(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE name = ?", sessionName); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
