package totp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Service provides TOTP (Time-based One-Time Password) functionality.
type Service interface {
	// GenerateCode generates a TOTP code from a secret.
	GenerateCode(secret string) (string, error)

	// ValidateCode validates a TOTP code against a secret.
	ValidateCode(secret, code string) bool

	// GenerateCodeAtTime generates a TOTP code for a specific time.
	GenerateCodeAtTime(secret string, t time.Time) (string, error)
}

// DefaultService implements TOTP operations.
type DefaultService struct {
	opts totp.ValidateOpts
	now  func() time.Time
}

// NewService creates a new TOTP service with default settings: 30 second
// period, 6 digits, SHA1.
func NewService() *DefaultService {
	return &DefaultService{
		opts: totp.ValidateOpts{
			Period:    30,
			Skew:      1,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		},
		now: time.Now,
	}
}

// NewServiceWithConfig creates a TOTP service with custom configuration.
func NewServiceWithConfig(period uint, digits int, algorithm string) (*DefaultService, error) {
	if period == 0 {
		return nil, fmt.Errorf("totp: period must be positive")
	}

	var d otp.Digits
	switch digits {
	case 6:
		d = otp.DigitsSix
	case 8:
		d = otp.DigitsEight
	default:
		return nil, fmt.Errorf("totp: unsupported digit count %d", digits)
	}

	alg, err := parseAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}

	s := NewService()
	s.opts.Period = period
	s.opts.Digits = d
	s.opts.Algorithm = alg
	return s, nil
}

// FromKeyURI builds a service from an otpauth:// URI and returns it with the
// URI's secret.
func FromKeyURI(uri string) (*DefaultService, string, error) {
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, "", fmt.Errorf("totp: parse key uri: %w", err)
	}
	if key.Type() != "totp" {
		return nil, "", fmt.Errorf("totp: unsupported key type %q", key.Type())
	}

	s := NewService()
	if p := key.Period(); p > 0 {
		s.opts.Period = uint(p)
	}
	if d := key.Digits(); d != 0 {
		s.opts.Digits = d
	}
	s.opts.Algorithm = key.Algorithm()

	return s, key.Secret(), nil
}

// GenerateCode generates a TOTP code from a secret string.
func (s *DefaultService) GenerateCode(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("totp: secret cannot be empty")
	}

	code, err := totp.GenerateCodeCustom(secret, s.now(), s.opts)
	if err != nil {
		return "", fmt.Errorf("totp: failed to generate code: %w", err)
	}

	return code, nil
}

// ValidateCode validates a TOTP code against a secret, allowing one period
// of clock skew.
func (s *DefaultService) ValidateCode(secret, code string) bool {
	if secret == "" || code == "" {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, s.now(), s.opts)
	return err == nil && ok
}

// GenerateCodeAtTime generates a TOTP code for a specific time.
func (s *DefaultService) GenerateCodeAtTime(secret string, t time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("totp: secret cannot be empty")
	}

	code, err := totp.GenerateCodeCustom(secret, t, s.opts)
	if err != nil {
		return "", fmt.Errorf("totp: failed to generate code at time %v: %w", t, err)
	}

	return code, nil
}

// TwoFactorToken returns the current code for a plain base32 secret or an
// otpauth:// URI, encoded as sent in a pre-login request.
func (s *DefaultService) TwoFactorToken(secret string) ([]byte, error) {
	svc := s
	if strings.HasPrefix(secret, "otpauth://") {
		var err error
		svc, secret, err = FromKeyURI(secret)
		if err != nil {
			return nil, err
		}
		svc.now = s.now
	}

	code, err := svc.GenerateCode(secret)
	if err != nil {
		return nil, err
	}
	return []byte(code), nil
}

// GetTimeWindow returns the current TOTP time window information.
func (s *DefaultService) GetTimeWindow() (current int64, remaining time.Duration) {
	now := s.now()
	period := int64(s.opts.Period)
	current = now.Unix() / period

	nextWindow := (current + 1) * period
	remaining = time.Unix(nextWindow, 0).Sub(now)

	return current, remaining
}

// IsValidSecret checks if a secret string is valid for TOTP.
func (s *DefaultService) IsValidSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("totp: secret cannot be empty")
	}

	if _, err := totp.GenerateCodeCustom(secret, s.now(), s.opts); err != nil {
		return fmt.Errorf("totp: invalid secret format: %w", err)
	}

	return nil
}

func parseAlgorithm(name string) (otp.Algorithm, error) {
	switch strings.ToUpper(name) {
	case "", "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	case "MD5":
		return otp.AlgorithmMD5, nil
	default:
		return 0, fmt.Errorf("totp: unsupported algorithm %q", name)
	}
}
