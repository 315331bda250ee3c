package state_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultrest/internal/config"
	"github.com/TheMichaelB/vaultrest/internal/events"
	"github.com/TheMichaelB/vaultrest/internal/models"
	"github.com/TheMichaelB/vaultrest/internal/session"
	"github.com/TheMichaelB/vaultrest/internal/state"
)

func testLogger() *events.Logger {
	var buf bytes.Buffer
	return events.NewTestLogger(events.DebugLevel, "json", &buf)
}

func sampleSnapshot() *session.Snapshot {
	return &session.Snapshot{
		ServerBase:  "https://eu.vault.example/api/rest/",
		Locale:      "de_DE",
		ActiveKeyID: 3,
		DeviceToken: []byte{0x01, 0x02, 0xfe},
		UpdatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestJSONStore(t *testing.T) {
	store, err := state.NewJSONStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func TestSQLiteStore(t *testing.T) {
	store, err := state.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), testLogger())
	require.NoError(t, err)
	defer store.Close()

	testStoreOperations(t, store)
}

func TestMemoryStore(t *testing.T) {
	testStoreOperations(t, state.NewMemoryStore())
}

func testStoreOperations(t *testing.T, store state.Store) {
	profile := "work"

	t.Run("load non-existent", func(t *testing.T) {
		_, err := store.Load(profile)
		assert.ErrorIs(t, err, state.ErrStateNotFound)
	})

	t.Run("save and load", func(t *testing.T) {
		snap := sampleSnapshot()
		require.NoError(t, store.Save(profile, snap))

		loaded, err := store.Load(profile)
		require.NoError(t, err)

		assert.Equal(t, snap.ServerBase, loaded.ServerBase)
		assert.Equal(t, snap.Locale, loaded.Locale)
		assert.Equal(t, snap.ActiveKeyID, loaded.ActiveKeyID)
		assert.Equal(t, snap.DeviceToken, loaded.DeviceToken)
		assert.Equal(t, snap.UpdatedAt.Unix(), loaded.UpdatedAt.Unix())
	})

	t.Run("update existing", func(t *testing.T) {
		snap := sampleSnapshot()
		snap.ActiveKeyID = 5
		snap.DeviceToken = nil
		require.NoError(t, store.Save(profile, snap))

		loaded, err := store.Load(profile)
		require.NoError(t, err)
		assert.Equal(t, int32(5), loaded.ActiveKeyID)
		assert.Empty(t, loaded.DeviceToken)
	})

	t.Run("list", func(t *testing.T) {
		require.NoError(t, store.Save("alpha", sampleSnapshot()))

		profiles, err := store.List()
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", profile}, profiles)
	})

	t.Run("reset", func(t *testing.T) {
		require.NoError(t, store.Reset(profile))

		_, err := store.Load(profile)
		assert.ErrorIs(t, err, state.ErrStateNotFound)

		// Resetting again is harmless
		assert.NoError(t, store.Reset(profile))

		profiles, err := store.List()
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha"}, profiles)
	})

	t.Run("invalid profile", func(t *testing.T) {
		for _, name := range []string{"", "../escape", "a/b", ".hidden"} {
			err := store.Save(name, sampleSnapshot())
			assert.ErrorIs(t, err, state.ErrInvalidProfile, name)
		}
	})
}

func TestJSONStoreFilePermissions(t *testing.T) {
	dir := t.TempDir()
	store, err := state.NewJSONStore(dir, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Save("default", sampleSnapshot()))

	info, err := os.Stat(filepath.Join(dir, "default.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(filepath.Join(dir, "default.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"checksum"`)
	assert.NotContains(t, string(data), "session_key")
}

func TestJSONStoreCorruptionRecovery(t *testing.T) {
	dir := t.TempDir()
	store, err := state.NewJSONStore(dir, testLogger())
	require.NoError(t, err)

	first := sampleSnapshot()
	first.ActiveKeyID = 2
	require.NoError(t, store.Save("default", first))

	second := sampleSnapshot()
	second.ActiveKeyID = 4
	require.NoError(t, store.Save("default", second))

	path := filepath.Join(dir, "default.json")

	t.Run("bad json falls back to backup", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

		loaded, err := store.Load("default")
		require.NoError(t, err)
		assert.Equal(t, int32(2), loaded.ActiveKeyID)
	})

	t.Run("checksum mismatch falls back to backup", func(t *testing.T) {
		// Two saves so the backup holds a valid copy again
		require.NoError(t, store.Save("default", second))
		require.NoError(t, store.Save("default", second))
		data, err := os.ReadFile(path)
		require.NoError(t, err)

		tampered := bytes.Replace(data, []byte(`"active_key_id": 4`), []byte(`"active_key_id": 6`), 1)
		require.NotEqual(t, data, tampered)
		require.NoError(t, os.WriteFile(path, tampered, 0600))

		loaded, err := store.Load("default")
		require.NoError(t, err)
		assert.Equal(t, int32(4), loaded.ActiveKeyID)
	})

	t.Run("no usable backup", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))
		require.NoError(t, os.WriteFile(path+".backup", []byte("garbage"), 0600))

		_, err := store.Load("default")
		assert.ErrorIs(t, err, state.ErrStateCorrupt)
	})
}

func TestMemoryStoreCopies(t *testing.T) {
	store := state.NewMemoryStore()
	snap := sampleSnapshot()
	require.NoError(t, store.Save("default", snap))

	snap.DeviceToken[0] = 0xff
	loaded, err := store.Load("default")
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), loaded.DeviceToken[0])
}

func TestOpen(t *testing.T) {
	tests := []struct {
		store   string
		wantErr bool
		check   func(t *testing.T, s state.Store)
	}{
		{store: config.StoreJSON, check: func(t *testing.T, s state.Store) { assert.IsType(t, &state.JSONStore{}, s) }},
		{store: config.StoreSQLite, check: func(t *testing.T, s state.Store) { assert.IsType(t, &state.SQLiteStore{}, s) }},
		{store: config.StoreNone, check: func(t *testing.T, s state.Store) { assert.IsType(t, &state.MemoryStore{}, s) }},
		{store: "redis", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.store, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Session.Store = tt.store
			cfg.Session.DataDir = filepath.Join(t.TempDir(), "data")

			s, err := state.Open(cfg, testLogger())
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			tt.check(t, s)
		})
	}
}

func TestMigrate(t *testing.T) {
	src, err := state.NewJSONStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	dst, err := state.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"), testLogger())
	require.NoError(t, err)
	defer dst.Close()

	for _, p := range []string{"default", "work"} {
		require.NoError(t, src.Save(p, sampleSnapshot()))
	}

	n, err := state.Migrate(src, dst, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	profiles, err := dst.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "work"}, profiles)

	loaded, err := dst.Load("work")
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot().DeviceToken, loaded.DeviceToken)
}
