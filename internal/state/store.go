package state

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/TheMichaelB/vaultrest/internal/config"
	"github.com/TheMichaelB/vaultrest/internal/events"
	"github.com/TheMichaelB/vaultrest/internal/models"
	"github.com/TheMichaelB/vaultrest/internal/session"
)

// Store persists session snapshots per profile.
type Store interface {
	// Load retrieves the snapshot for a profile.
	Load(profile string) (*session.Snapshot, error)

	// Save persists the snapshot for a profile.
	Save(profile string, snap *session.Snapshot) error

	// Reset removes all state for a profile.
	Reset(profile string) error

	// List returns all known profiles.
	List() ([]string, error)

	// Close releases resources.
	Close() error
}

// Errors
var (
	ErrStateNotFound  = errors.New("state not found")
	ErrStateCorrupt   = errors.New("state file is corrupt")
	ErrInvalidProfile = errors.New("invalid profile name")
)

// CurrentSchemaVersion for migrations.
const CurrentSchemaVersion = 1

// Record wraps a snapshot with store metadata.
type Record struct {
	Session session.Snapshot `json:"session"`

	// Store metadata
	SchemaVersion int       `json:"schema_version"`
	SavedAt       time.Time `json:"saved_at"`
	Checksum      string    `json:"checksum,omitempty"`
}

var profilePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateProfile rejects names that cannot be used as a file name.
func ValidateProfile(profile string) error {
	if !profilePattern.MatchString(profile) {
		return fmt.Errorf("%w: %q", ErrInvalidProfile, profile)
	}
	return nil
}

// Open returns the store selected by cfg.Session.Store.
func Open(cfg *config.Config, logger *events.Logger) (Store, error) {
	switch cfg.Session.Store {
	case config.StoreJSON:
		return NewJSONStore(cfg.StatePath(), logger)
	case config.StoreSQLite:
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		return NewSQLiteStore(cfg.StatePath(), logger)
	case config.StoreNone:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: unknown session store %q", models.ErrInvalidConfig, cfg.Session.Store)
	}
}

// Migrate copies every profile from src to dst.
func Migrate(src, dst Store, logger *events.Logger) (int, error) {
	profiles, err := src.List()
	if err != nil {
		return 0, fmt.Errorf("list profiles: %w", err)
	}

	logger.WithField("count", len(profiles)).Info("Migrating sessions")

	migrated := 0
	for _, profile := range profiles {
		snap, err := src.Load(profile)
		if err != nil {
			logger.WithError(err).WithField("profile", profile).Error("Failed to load session")
			continue
		}

		if err := dst.Save(profile, snap); err != nil {
			return migrated, fmt.Errorf("save profile %s: %w", profile, err)
		}
		migrated++

		logger.WithField("profile", profile).Debug("Migrated session")
	}

	return migrated, nil
}
