package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// DeriveKeyV2 derives the legacy v2 authentication key.
//
// PBKDF2-HMAC-SHA512 over domain||password yields 64 bytes, which then key an
// HMAC-SHA256 of the domain. The 32-byte digest is returned.
func DeriveKeyV2(domain, password string, salt []byte, iterations int) ([]byte, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalidParams, iterations)
	}

	derived := pbkdf2.Key([]byte(domain+password), salt, iterations, DerivedKeySize, sha512.New)

	mac := hmac.New(sha256.New, derived)
	mac.Write([]byte(domain))
	return mac.Sum(nil), nil
}
