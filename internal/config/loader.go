package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. VAULTREST_API_BASE_URL.
const EnvPrefix = "VAULTREST"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty path searches the default
// locations.
func NewLoader(configPath string) *Loader {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{
		configPath: configPath,
		v:          v,
	}
}

// Load reads configuration from file and environment.
func (l *Loader) Load() (*Config, error) {
	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		l.v.SetConfigName("vaultrest")
		for _, dir := range defaultDirs() {
			l.v.AddConfigPath(dir)
		}
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("load config file %s: %w", l.v.ConfigFileUsed(), err)
			}
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// ConfigFileUsed returns the file the last Load read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// defaultDirs returns the directories searched for vaultrest.{yaml,json,toml}.
func defaultDirs() []string {
	dirs := []string{"."}
	if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(homeDir, ".config", "vaultrest"),
			filepath.Join(homeDir, ".vaultrest"),
		)
	}
	return dirs
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.locale", cfg.API.Locale)
	v.SetDefault("api.client_version", cfg.API.ClientVersion)
	v.SetDefault("api.timeout", cfg.API.Timeout)
	v.SetDefault("api.user_agent", cfg.API.UserAgent)

	v.SetDefault("session.profile", cfg.Session.Profile)
	v.SetDefault("session.store", cfg.Session.Store)
	v.SetDefault("session.data_dir", cfg.Session.DataDir)

	v.SetDefault("auth.username", cfg.Auth.Username)
	v.SetDefault("auth.password", cfg.Auth.Password)
	v.SetDefault("auth.totp_secret", cfg.Auth.TOTPSecret)
	v.SetDefault("auth.credentials_file", cfg.Auth.CredentialsFile)
	v.SetDefault("auth.secret_id", cfg.Auth.SecretID)
	v.SetDefault("auth.secret_region", cfg.Auth.SecretRegion)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.color", cfg.Log.Color)

	v.SetDefault("dev.insecure_skip_verify", cfg.Dev.InsecureSkipVerify)
	v.SetDefault("dev.disable_http2", cfg.Dev.DisableHTTP2)
}

// SaveExample writes the default configuration to path. The format follows
// the file extension (yaml, json or toml).
func SaveExample(path string) error {
	if path == "" {
		return errors.New("save example: empty path")
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return os.Chmod(path, 0600)
}
