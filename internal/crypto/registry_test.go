package crypto_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultrest/internal/crypto"
)

func TestDefaultRegistry(t *testing.T) {
	reg := crypto.DefaultRegistry()

	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6}, reg.IDs())
	assert.Equal(t, int32(1), reg.DefaultKeyID())

	for _, id := range reg.IDs() {
		key, err := reg.Lookup(id)
		require.NoError(t, err)
		assert.Equal(t, 2048, key.N.BitLen(), "key %d", id)
	}

	// Parsed once, shared afterwards
	assert.Same(t, reg, crypto.DefaultRegistry())
}

func TestRegistryLookupUnknown(t *testing.T) {
	_, err := crypto.DefaultRegistry().Lookup(99)
	assert.ErrorIs(t, err, crypto.ErrUnknownKeyID)
}

func TestNewRegistry(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	t.Run("lowest id is default", func(t *testing.T) {
		reg, err := crypto.NewRegistry(map[int32]*rsa.PublicKey{
			7: &priv.PublicKey,
			3: &priv.PublicKey,
		})
		require.NoError(t, err)
		assert.Equal(t, int32(3), reg.DefaultKeyID())
		assert.Equal(t, []int32{3, 7}, reg.IDs())
	})

	t.Run("empty", func(t *testing.T) {
		_, err := crypto.NewRegistry(nil)
		assert.Error(t, err)
	})

	t.Run("nil key", func(t *testing.T) {
		_, err := crypto.NewRegistry(map[int32]*rsa.PublicKey{1: nil})
		assert.Error(t, err)
	})
}

func TestWrapSessionKey(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	reg, err := crypto.NewRegistry(map[int32]*rsa.PublicKey{1: &priv.PublicKey})
	require.NoError(t, err)
	provider := crypto.NewProvider(reg)

	sessionKey := randomKey(t)

	wrapped, err := provider.WrapSessionKey(1, sessionKey)
	require.NoError(t, err)
	assert.Len(t, wrapped, priv.Size())

	unwrapped, err := rsa.DecryptPKCS1v15(rand.Reader, priv, wrapped)
	require.NoError(t, err)
	assert.Equal(t, sessionKey, unwrapped)

	_, err = provider.WrapSessionKey(2, sessionKey)
	assert.ErrorIs(t, err, crypto.ErrUnknownKeyID)

	_, err = provider.WrapSessionKey(1, sessionKey[:8])
	assert.ErrorIs(t, err, crypto.ErrInvalidKey)

	assert.True(t, provider.HasKey(1))
	assert.False(t, provider.HasKey(2))
	assert.Equal(t, int32(1), provider.DefaultKeyID())
}

func TestWrapUnderProductionKeys(t *testing.T) {
	provider := crypto.NewProvider(nil)
	sessionKey := randomKey(t)

	for _, id := range provider.Registry().IDs() {
		wrapped, err := provider.WrapSessionKey(id, sessionKey)
		require.NoError(t, err)
		assert.Len(t, wrapped, 256)
	}
}

func TestParsePublicKey(t *testing.T) {
	_, err := crypto.ParsePublicKey("!!not base64!!")
	assert.Error(t, err)

	_, err = crypto.ParsePublicKey("AAAA")
	assert.Error(t, err)
}
