package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultrest/internal/config"
	"github.com/TheMichaelB/vaultrest/internal/models"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, "https://keepersecurity.com/api/rest/", cfg.API.BaseURL)
	assert.Equal(t, "c14.0.0", cfg.API.ClientVersion)
	assert.Equal(t, "en_US", cfg.API.Locale)
	assert.Positive(t, cfg.API.Timeout)
	assert.Equal(t, "default", cfg.Session.Profile)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr string
	}{
		{
			name:    "valid config",
			modify:  func(c *config.Config) {},
			wantErr: "",
		},
		{
			name: "missing base URL",
			modify: func(c *config.Config) {
				c.API.BaseURL = ""
			},
			wantErr: "api.base_url is required",
		},
		{
			name: "relative base URL",
			modify: func(c *config.Config) {
				c.API.BaseURL = "keepersecurity.com/api/rest/"
			},
			wantErr: "absolute http(s) URL",
		},
		{
			name: "invalid log level",
			modify: func(c *config.Config) {
				c.Log.Level = "invalid"
			},
			wantErr: "invalid log level",
		},
		{
			name: "negative timeout",
			modify: func(c *config.Config) {
				c.API.Timeout = -1
			},
			wantErr: "api.timeout must be positive",
		},
		{
			name: "unknown store",
			modify: func(c *config.Config) {
				c.Session.Store = "redis"
			},
			wantErr: "invalid session store",
		},
		{
			name: "empty profile",
			modify: func(c *config.Config) {
				c.Session.Profile = ""
			},
			wantErr: "session.profile is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.ErrorIs(t, err, models.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoaderEnv(t *testing.T) {
	t.Setenv("VAULTREST_API_BASE_URL", "https://keepersecurity.eu/api/rest/")
	t.Setenv("VAULTREST_API_TIMEOUT", "45s")
	t.Setenv("VAULTREST_LOG_LEVEL", "DEBUG")
	t.Setenv("VAULTREST_SESSION_STORE", "sqlite")
	t.Setenv("VAULTREST_AUTH_USERNAME", "user@example.com")

	// Environment wins over the file
	path := writeFile(t, "vaultrest.yaml", "log:\n  level: warn\n")

	cfg, err := config.NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "https://keepersecurity.eu/api/rest/", cfg.API.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.API.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, config.StoreSQLite, cfg.Session.Store)
	assert.Equal(t, "user@example.com", cfg.Auth.Username)
}

func TestLoaderFile(t *testing.T) {
	path := writeFile(t, "vaultrest.json", `{
		"api": {
			"base_url": "https://keepersecurity.com.au/api/rest/"
		},
		"session": {
			"profile": "work"
		},
		"log": {
			"level": "warn",
			"format": "json"
		}
	}`)

	cfg, err := config.NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "https://keepersecurity.com.au/api/rest/", cfg.API.BaseURL)
	assert.Equal(t, "work", cfg.Session.Profile)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	// Untouched keys keep defaults
	assert.Equal(t, "c14.0.0", cfg.API.ClientVersion)
}

func TestLoaderYAML(t *testing.T) {
	path := writeFile(t, "vaultrest.yaml", "api:\n  locale: de_DE\n  timeout: 5s\n")

	cfg, err := config.NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "de_DE", cfg.API.Locale)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
}

func TestLoaderErrors(t *testing.T) {
	_, err := config.NewLoader(filepath.Join(t.TempDir(), "missing.json")).Load()
	assert.Error(t, err)

	path := writeFile(t, "bad.json", `{"log": {"level": "loud"}}`)
	_, err = config.NewLoader(path).Load()
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

func TestSaveExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultrest.yaml")
	require.NoError(t, config.SaveExample(path))

	cfg, err := config.NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().API, cfg.API)

	assert.Error(t, config.SaveExample(""))
}

func TestStatePath(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Session.DataDir = "/var/lib/vaultrest"

	cfg.Session.Store = config.StoreSQLite
	assert.Equal(t, filepath.Join("/var/lib/vaultrest", "sessions.db"), cfg.StatePath())

	cfg.Session.Store = config.StoreJSON
	assert.Equal(t, filepath.Join("/var/lib/vaultrest", "sessions"), cfg.StatePath())

	cfg.Session.Store = config.StoreNone
	assert.Empty(t, cfg.StatePath())
}

func TestConfigEnsureDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Session.DataDir = filepath.Join(tmpDir, "data")
	cfg.Log.File = filepath.Join(tmpDir, "logs", "app.log")

	require.NoError(t, cfg.EnsureDirectories())

	assert.DirExists(t, cfg.Session.DataDir)
	assert.DirExists(t, filepath.Dir(cfg.Log.File))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}
