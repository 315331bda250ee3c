package creds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/TheMichaelB/vaultrest/internal/config"
)

// ErrNoUsername is returned when no source supplies a username.
var ErrNoUsername = errors.New("credentials: username is required")

// Combined represents the combined JSON credential model.
type Combined struct {
	Auth struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		TOTPSecret string `json:"totp_secret"`
	} `json:"auth"`

	// Optional server overrides stored alongside the account
	Server struct {
		BaseURL string `json:"base_url,omitempty"`
		Locale  string `json:"locale,omitempty"`
	} `json:"server"`
}

// SecretsClient is the subset of the Secrets Manager API used here.
type SecretsClient interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ParseCombined parses JSON bytes into Combined.
func ParseCombined(data []byte) (*Combined, error) {
	var c Combined
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return &c, nil
}

// LoadFromFile loads Combined from a local file path.
func LoadFromFile(path string) (*Combined, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCombined(b)
}

// LoadFromSecret loads Combined from Secrets Manager by name or ARN. An empty
// region defers to the default AWS configuration chain.
func LoadFromSecret(ctx context.Context, secretID, region string) (*Combined, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return LoadFromSecretClient(ctx, secretsmanager.NewFromConfig(cfg), secretID)
}

// LoadFromSecretClient loads Combined through an existing client.
func LoadFromSecretClient(ctx context.Context, sm SecretsClient, secretID string) (*Combined, error) {
	out, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &secretID})
	if err != nil {
		return nil, fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret has no string payload")
	}
	return ParseCombined([]byte(*out.SecretString))
}

// Resolve gathers credentials from the configured sources. A secret takes
// precedence over a file; values set directly in cfg fill any gaps.
func Resolve(ctx context.Context, cfg *config.AuthConfig) (*Combined, error) {
	var (
		c   *Combined
		err error
	)

	switch {
	case cfg.SecretID != "":
		c, err = LoadFromSecret(ctx, cfg.SecretID, cfg.SecretRegion)
	case cfg.CredentialsFile != "":
		c, err = LoadFromFile(cfg.CredentialsFile)
	default:
		c = &Combined{}
	}
	if err != nil {
		return nil, err
	}

	c.Merge(cfg)
	return c, nil
}

// Merge fills empty fields from cfg.
func (c *Combined) Merge(cfg *config.AuthConfig) {
	if c.Auth.Username == "" {
		c.Auth.Username = cfg.Username
	}
	if c.Auth.Password == "" {
		c.Auth.Password = cfg.Password
	}
	if c.Auth.TOTPSecret == "" {
		c.Auth.TOTPSecret = cfg.TOTPSecret
	}
}

// Validate checks that a username is present.
func (c *Combined) Validate() error {
	if c.Auth.Username == "" {
		return ErrNoUsername
	}
	return nil
}
