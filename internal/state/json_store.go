package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/TheMichaelB/vaultrest/internal/events"
	"github.com/TheMichaelB/vaultrest/internal/session"
)

// JSONStore implements file-based state storage, one file per profile.
type JSONStore struct {
	baseDir string
	logger  *events.Logger
	mu      sync.RWMutex
}

// NewJSONStore creates a JSON-based state store.
func NewJSONStore(baseDir string, logger *events.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	return &JSONStore{
		baseDir: baseDir,
		logger:  logger.WithField("component", "json_state_store"),
	}, nil
}

// Load reads a profile's snapshot, falling back to the backup copy when the
// primary file is corrupt.
func (s *JSONStore) Load(profile string) (*session.Snapshot, error) {
	if err := ValidateProfile(profile); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.statePath(profile)

	s.logger.WithFields(map[string]interface{}{
		"profile": profile,
		"path":    path,
	}).Debug("Loading state")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		s.logger.WithError(err).WithField("profile", profile).Warn("State file unreadable")
		if backup, berr := s.loadBackup(profile); berr == nil {
			s.logger.Warn("Loaded state from backup due to corruption")
			return backup, nil
		}
		return nil, ErrStateCorrupt
	}

	if rec.SchemaVersion != CurrentSchemaVersion {
		s.logger.WithField("version", rec.SchemaVersion).Warn("State schema version mismatch")
	}

	return &rec.Session, nil
}

// Save writes a profile's snapshot atomically, keeping the previous file as
// a backup.
func (s *JSONStore) Save(profile string, snap *session.Snapshot) error {
	if err := ValidateProfile(profile); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.statePath(profile)

	s.logger.WithFields(map[string]interface{}{
		"profile":       profile,
		"server":        snap.ServerBase,
		"active_key_id": snap.ActiveKeyID,
	}).Debug("Saving state")

	rec := Record{
		Session:       *snap,
		SchemaVersion: CurrentSchemaVersion,
		SavedAt:       time.Now().UTC(),
	}
	sum, err := checksum(rec)
	if err != nil {
		return err
	}
	rec.Checksum = sum

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".backup"); err != nil {
			s.logger.WithError(err).Warn("Failed to create backup")
		}
	}

	tmp, err := os.CreateTemp(s.baseDir, profile+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename state file: %w", err)
	}

	return nil
}

// Reset removes state for a profile. Missing state is not an error.
func (s *JSONStore) Reset(profile string) error {
	if err := ValidateProfile(profile); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.WithField("profile", profile).Info("Resetting state")

	path := s.statePath(profile)
	for _, p := range []string{path, path + ".backup"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", filepath.Base(p), err)
		}
	}

	return nil
}

// List returns all profiles with state, sorted.
func (s *JSONStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read state directory: %w", err)
	}

	var profiles []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := entry.Name(); filepath.Ext(name) == ".json" {
			profiles = append(profiles, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(profiles)

	return profiles, nil
}

// Close releases resources.
func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) statePath(profile string) string {
	return filepath.Join(s.baseDir, profile+".json")
}

func (s *JSONStore) loadBackup(profile string) (*session.Snapshot, error) {
	data, err := os.ReadFile(s.statePath(profile) + ".backup")
	if err != nil {
		return nil, err
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}
	return &rec.Session, nil
}

// decodeRecord parses data and verifies its checksum when one is present.
func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}

	if rec.Checksum != "" {
		want := rec.Checksum
		rec.Checksum = ""
		got, err := checksum(rec)
		if err != nil {
			return nil, err
		}
		if got != want {
			return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", want, got)
		}
		rec.Checksum = want
	}

	return &rec, nil
}

// checksum hashes rec with its Checksum field cleared.
func checksum(rec Record) (string, error) {
	rec.Checksum = ""
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal state for checksum: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
