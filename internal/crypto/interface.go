package crypto

// Provider defines the cryptographic operations used to build request envelopes.
type Provider interface {
	// WrapSessionKey encrypts a session key under the server key with the given ID.
	WrapSessionKey(keyID int32, sessionKey []byte) ([]byte, error)

	// Seal encrypts payload using AES-GCM under the session key.
	Seal(payload, key []byte) ([]byte, error)

	// Open decrypts a sealed payload using AES-GCM.
	Open(sealed, key []byte) ([]byte, error)

	// DefaultKeyID returns the server key used when none has been negotiated.
	DefaultKeyID() int32

	// HasKey reports whether the registry holds a key with this ID.
	HasKey(keyID int32) bool
}
