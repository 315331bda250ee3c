package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
)

const (
	// Key sizes
	KeySize   = 32 // AES-256
	NonceSize = 12 // GCM standard
	TagSize   = 16 // GCM tag

	// DerivedKeySize is the PBKDF2 output length for v2 authentication.
	DerivedKeySize = 64
)

// Errors
var (
	ErrInvalidKey       = errors.New("invalid key size")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrUnknownKeyID     = errors.New("unknown server key id")
	ErrInvalidParams    = errors.New("invalid key derivation parameters")
)

// CryptoProvider handles envelope cryptography against a server key registry.
type CryptoProvider struct {
	registry *Registry
}

// NewProvider creates a crypto provider. A nil registry selects the
// production server keys.
func NewProvider(registry *Registry) *CryptoProvider {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &CryptoProvider{registry: registry}
}

// Registry returns the server key registry backing this provider.
func (p *CryptoProvider) Registry() *Registry {
	return p.registry
}

// WrapSessionKey encrypts the session key under the registry key keyID.
func (p *CryptoProvider) WrapSessionKey(keyID int32, sessionKey []byte) ([]byte, error) {
	pub, err := p.registry.Lookup(keyID)
	if err != nil {
		return nil, err
	}
	return WrapSessionKey(sessionKey, pub)
}

// Seal encrypts payload under key.
func (p *CryptoProvider) Seal(payload, key []byte) ([]byte, error) {
	return Seal(payload, key)
}

// Open decrypts a sealed payload.
func (p *CryptoProvider) Open(sealed, key []byte) ([]byte, error) {
	return Open(sealed, key)
}

// DefaultKeyID returns the registry default.
func (p *CryptoProvider) DefaultKeyID() int32 {
	return p.registry.DefaultKeyID()
}

// HasKey reports whether keyID is known.
func (p *CryptoProvider) HasKey(keyID int32) bool {
	_, err := p.registry.Lookup(keyID)
	return err == nil
}

// WrapSessionKey encrypts the raw session key with RSA PKCS#1 v1.5.
func WrapSessionKey(sessionKey []byte, pub *rsa.PublicKey) ([]byte, error) {
	if len(sessionKey) != KeySize {
		return nil, ErrInvalidKey
	}
	if pub == nil {
		return nil, fmt.Errorf("wrap session key: %w", ErrUnknownKeyID)
	}

	wrapped, err := rsa.EncryptPKCS1v15(rand.Reader, pub, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("wrap session key: %w", err)
	}
	return wrapped, nil
}

// GenerateSessionKey returns a fresh random 256-bit session key.
func GenerateSessionKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	return key, nil
}

var _ Provider = (*CryptoProvider)(nil)
