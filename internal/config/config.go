package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/TheMichaelB/vaultrest/internal/models"
)

// Config holds all application configuration.
type Config struct {
	// API configuration
	API APIConfig `json:"api" mapstructure:"api"`

	// Session persistence
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Authentication configuration
	Auth AuthConfig `json:"auth" mapstructure:"auth"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`

	// Development options
	Dev DevConfig `json:"dev,omitempty" mapstructure:"dev"`
}

// APIConfig for server communication.
type APIConfig struct {
	BaseURL       string        `json:"base_url" mapstructure:"base_url"`
	Locale        string        `json:"locale" mapstructure:"locale"`
	ClientVersion string        `json:"client_version" mapstructure:"client_version"`
	Timeout       time.Duration `json:"timeout" mapstructure:"timeout"`
	UserAgent     string        `json:"user_agent" mapstructure:"user_agent"`
}

// SessionConfig controls where protocol state is kept between runs.
type SessionConfig struct {
	Profile string `json:"profile" mapstructure:"profile"`
	Store   string `json:"store" mapstructure:"store"` // json, sqlite, none
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// AuthConfig for authentication settings.
type AuthConfig struct {
	Username   string `json:"username,omitempty" mapstructure:"username"`
	Password   string `json:"password,omitempty" mapstructure:"password"`
	TOTPSecret string `json:"totp_secret,omitempty" mapstructure:"totp_secret"`

	// Credentials file path
	CredentialsFile string `json:"credentials_file,omitempty" mapstructure:"credentials_file"`

	// AWS Secrets Manager secret holding credentials
	SecretID     string `json:"secret_id,omitempty" mapstructure:"secret_id"`
	SecretRegion string `json:"secret_region,omitempty" mapstructure:"secret_region"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
	File   string `json:"file" mapstructure:"file"`     // Log file path (empty = stderr)
	Color  bool   `json:"color" mapstructure:"color"`
}

// DevConfig for development/debugging.
type DevConfig struct {
	InsecureSkipVerify bool `json:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
	DisableHTTP2       bool `json:"disable_http2" mapstructure:"disable_http2"`
}

// Store types.
const (
	StoreJSON   = "json"
	StoreSQLite = "sqlite"
	StoreNone   = "none"
)

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:       "https://keepersecurity.com/api/rest/",
			Locale:        "en_US",
			ClientVersion: "c14.0.0",
			Timeout:       30 * time.Second,
			UserAgent:     "vaultrest/1.0",
		},
		Session: SessionConfig{
			Profile: "default",
			Store:   StoreJSON,
			DataDir: ".vaultrest",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Color:  true,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url is required", models.ErrInvalidConfig)
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%w: api.base_url must be an absolute http(s) URL", models.ErrInvalidConfig)
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("%w: api.timeout must be positive", models.ErrInvalidConfig)
	}

	if c.API.ClientVersion == "" {
		return fmt.Errorf("%w: api.client_version is required", models.ErrInvalidConfig)
	}

	if c.Session.Profile == "" {
		return fmt.Errorf("%w: session.profile is required", models.ErrInvalidConfig)
	}

	switch c.Session.Store {
	case StoreJSON, StoreSQLite, StoreNone:
	default:
		return fmt.Errorf("%w: invalid session store: %s", models.ErrInvalidConfig, c.Session.Store)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s", models.ErrInvalidConfig, c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("%w: invalid log format: %s", models.ErrInvalidConfig, c.Log.Format)
	}

	return nil
}

// StatePath returns the session store location for the configured store type.
func (c *Config) StatePath() string {
	switch c.Session.Store {
	case StoreSQLite:
		return filepath.Join(c.Session.DataDir, "sessions.db")
	case StoreJSON:
		return filepath.Join(c.Session.DataDir, "sessions")
	default:
		return ""
	}
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	var dirs []string
	if c.Session.Store != StoreNone && c.Session.DataDir != "" {
		dirs = append(dirs, c.Session.DataDir)
	}
	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
