package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/vaultrest/internal/events"
	"github.com/TheMichaelB/vaultrest/internal/session"
)

// SQLiteStore implements SQLite-based state storage.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
}

// NewSQLiteStore creates a SQLite state store.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_state_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS sessions (
        profile TEXT PRIMARY KEY,
        server_base TEXT NOT NULL,
        locale TEXT NOT NULL DEFAULT '',
        active_key_id INTEGER NOT NULL DEFAULT 0,
        device_token BLOB,
        updated_at TIMESTAMP NOT NULL,
        saved_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS schema_info (
        version INTEGER PRIMARY KEY
    );

    INSERT OR IGNORE INTO schema_info (version) VALUES (?);
    `

	if _, err := s.db.Exec(schema, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Load retrieves a profile's snapshot.
func (s *SQLiteStore) Load(profile string) (*session.Snapshot, error) {
	if err := ValidateProfile(profile); err != nil {
		return nil, err
	}

	s.logger.WithField("profile", profile).Debug("Loading state from SQLite")

	var (
		snap      session.Snapshot
		updatedAt time.Time
	)
	err := s.db.QueryRow(`
        SELECT server_base, locale, active_key_id, device_token, updated_at
        FROM sessions
        WHERE profile = ?
    `, profile).Scan(&snap.ServerBase, &snap.Locale, &snap.ActiveKeyID, &snap.DeviceToken, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query state: %w", err)
	}
	snap.UpdatedAt = updatedAt.UTC()

	return &snap, nil
}

// Save upserts a profile's snapshot.
func (s *SQLiteStore) Save(profile string, snap *session.Snapshot) error {
	if err := ValidateProfile(profile); err != nil {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"profile":       profile,
		"server":        snap.ServerBase,
		"active_key_id": snap.ActiveKeyID,
	}).Debug("Saving state to SQLite")

	updatedAt := snap.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.db.Exec(`
        INSERT INTO sessions (profile, server_base, locale, active_key_id, device_token, updated_at, saved_at)
        VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(profile) DO UPDATE SET
            server_base = excluded.server_base,
            locale = excluded.locale,
            active_key_id = excluded.active_key_id,
            device_token = excluded.device_token,
            updated_at = excluded.updated_at,
            saved_at = CURRENT_TIMESTAMP
    `, profile, snap.ServerBase, snap.Locale, snap.ActiveKeyID, snap.DeviceToken, updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	return nil
}

// Reset removes state for a profile.
func (s *SQLiteStore) Reset(profile string) error {
	if err := ValidateProfile(profile); err != nil {
		return err
	}

	s.logger.WithField("profile", profile).Info("Resetting state in SQLite")

	if _, err := s.db.Exec("DELETE FROM sessions WHERE profile = ?", profile); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}

	return nil
}

// List returns all profiles.
func (s *SQLiteStore) List() ([]string, error) {
	rows, err := s.db.Query("SELECT profile FROM sessions ORDER BY profile")
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	return profiles, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
