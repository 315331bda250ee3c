package crypto

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
)

// Registry is an immutable table of server public keys indexed by key ID.
type Registry struct {
	keys      map[int32]*rsa.PublicKey
	ids       []int32
	defaultID int32
}

// NewRegistry builds a registry from parsed keys. The lowest ID becomes the
// default.
func NewRegistry(keys map[int32]*rsa.PublicKey) (*Registry, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("registry: at least one server key is required")
	}

	r := &Registry{keys: make(map[int32]*rsa.PublicKey, len(keys))}
	for id, key := range keys {
		if key == nil {
			return nil, fmt.Errorf("registry: key %d is nil", id)
		}
		r.keys[id] = key
		r.ids = append(r.ids, id)
	}
	sort.Slice(r.ids, func(i, j int) bool { return r.ids[i] < r.ids[j] })
	r.defaultID = r.ids[0]

	return r, nil
}

// Lookup returns the public key for id.
func (r *Registry) Lookup(id int32) (*rsa.PublicKey, error) {
	key, ok := r.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKeyID, id)
	}
	return key, nil
}

// DefaultKeyID returns the key used before the server asks for another.
func (r *Registry) DefaultKeyID() int32 {
	return r.defaultID
}

// IDs lists the registered key IDs in ascending order.
func (r *Registry) IDs() []int32 {
	out := make([]int32, len(r.ids))
	copy(out, r.ids)
	return out
}

// Production server keys, PKCS#1 DER, URL-safe base64.
var serverKeyDER = map[int32]string{
	1: "MIIBCgKCAQEA9Z_CZzxiNUz8-npqI4V10-zW3AL7-M4UQDdd_17759Xzm0MOEfH" +
		"OOsOgZxxNK1DEsbyCTCE05fd3Hz1mn1uGjXvm5HnN2mL_3TOVxyLU6VwH9EDInn" +
		"j4DNMFifs69il3KlviT3llRgPCcjF4xrF8d4SR0_N3eqS1f9CBJPNEKEH-am5Xb" +
		"_FqAlOUoXkILF0UYxA_jNLoWBSq-1W58e4xDI0p0GuP0lN8f97HBtfB7ijbtF-V" +
		"xIXtxRy-4jA49zK-CQrGmWqIm5DzZcBvUtVGZ3UXd6LeMXMJOifvuCneGC2T2uB" +
		"6G2g5yD54-onmKIETyNX0LtpR1MsZmKLgru5ugwIDAQAB",
	2: "MIIBCgKCAQEAkOpym7xC3sSysw5DAidLoVF7JUgnvXejbieDWmEiD-DQOKxzfQq" +
		"YHoFfeeix__bx3wMW3I8cAc8zwZ1JO8hyB2ON732JE2Zp301GAUMnAK_rBhQWmY" +
		"KP_-uXSKeTJPiuaW9PVG0oRJ4MEdS-t1vIA4eDPhI1EexHaY3P2wHKoV8twcGvd" +
		"WUZB5gxEpMbx5CuvEXptnXEJlxKou3TZu9uwJIo0pgqVLUgRpW1RSRipgutpUsl" +
		"BnQ72Bdbsry0KKVTlcPsudAnnWUtsMJNgmyQbESPm-aVv-GzdVUFvWKpKkAxDpN" +
		"ArPMf0xt8VL2frw2LDe5_n9IMFogUiSYt156_mQIDAQAB",
	3: "MIIBCgKCAQEAyvxCWbLvtMRmq57oFg3mY4DWfkb1dir7b29E8UcwcKDcCsGTqoI" +
		"hubU2pO46TVUXmFgC4E-Zlxt-9F-YA-MY7i_5GrDvySwAy4nbDhRL6Z0kz-rqUi" +
		"rgm9WWsP9v-X_BwzARqq83HNBuzAjf3UHgYDsKmCCarVAzRplZdT3Q5rnNiYPYS" +
		"HzwfUhKEAyXk71UdtleD-bsMAmwnuYHLhDHiT279An_Ta93c9MTqa_Tq2Eirl_N" +
		"Xn1RdtbNohmMXldAH-C8uIh3Sz8erS4hZFSdUG1WlDsKpyRouNPQ3diorbO88wE" +
		"AgpHjXkOLj63d1fYJBFG0yfu73U80aEZehQkSawIDAQAB",
	4: "MIIBCgKCAQEA0TVoXLpgluaqw3P011zFPSIzWhUMBqXT-Ocjy8NKjJbdrbs53eR" +
		"FKk1waeB3hNn5JEKNVSNbUIe-MjacB9P34iCfKtdnrdDB8JXx0nIbIPzLtcJC4H" +
		"CYASpjX_TVXrU9BgeCE3NUtnIxjHDy8PCbJyAS_Pv299Q_wpLWnkkjq70ZJ2_fX" +
		"-ObbQaZHwsWKbRZ_5sD6rLfxNACTGI_jo9-vVug6AdNq96J7nUdYV1cG-INQwJJ" +
		"KMcAbKQcLrml8CMPc2mmf0KQ5MbS_KSbLXHUF-81AsZVHfQRSuigOStQKxgSGL5" +
		"osY4NrEcODbEXtkuDrKNMsZYhijKiUHBj9vvgKwIDAQAB",
	5: "MIIBCgKCAQEAueOWC26w-HlOLW7s88WeWkXpjxK4mkjqngIzwbjnsU9145R51Hv" +
		"sILvjXJNdAuueVDHj3OOtQjfUM6eMMLr-3kaPv68y4FNusvB49uKc5ETI0HtHmH" +
		"FSn9qAZvC7dQHSpYqC2TeCus-xKeUciQ5AmSfwpNtwzM6Oh2TO45zAqSA-QBSk_" +
		"uv9TJu0e1W1AlNmizQtHX6je-mvqZCVHkzGFSQWQ8DBL9dHjviI2mmWfL_egAVV" +
		"hBgTFXRHg5OmJbbPoHj217Yh-kHYA8IWEAHylboH6CVBdrNL4Na0fracQVTm-nO" +
		"WdM95dKk3fH-KJYk_SmwB47ndWACLLi5epLl9vwIDAQAB",
	6: "MIIBCgKCAQEA2PJRM7-4R97rHwY_zCkFA8B3llawb6gF7oAZCpxprl6KB5z2cqL" +
		"AvUfEOBtnr7RIturX04p3ThnwaFnAR7ADVZWBGOYuAyaLzGHDI5mvs8D-NewG9v" +
		"w8qRkTT7Mb8fuOHC6-_lTp9AF2OA2H4QYiT1vt43KbuD0Y2CCVrOTKzDMXG8msl" +
		"_JvAKt4axY9RGUtBbv0NmpkBCjLZri5AaTMgjLdu8XBXCqoLx7qZL-Bwiv4njw-" +
		"ZAI4jIszJTdGzMtoQ0zL7LBj_TDUBI4Qhf2bZTZlUSL3xeDWOKmd8Frksw3oKyJ" +
		"17oCQK-EGau6EaJRGyasBXl8uOEWmYYgqOWirNwIDAQAB",
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the production server keys, parsed once.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		keys := make(map[int32]*rsa.PublicKey, len(serverKeyDER))
		for id, encoded := range serverKeyDER {
			key, err := ParsePublicKey(encoded)
			if err != nil {
				panic(fmt.Sprintf("crypto: server key %d: %v", id, err))
			}
			keys[id] = key
		}

		r, err := NewRegistry(keys)
		if err != nil {
			panic(err)
		}
		defaultRegistry = r
	})
	return defaultRegistry
}

// ParsePublicKey decodes a URL-safe base64 PKCS#1 RSA public key.
func ParsePublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	key, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	return key, nil
}
