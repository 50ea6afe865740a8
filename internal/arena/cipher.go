package arena

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the symmetric key length in bytes.
	KeySize = 32
	// NonceSize is the per-record nonce length in bytes.
	NonceSize = 12
	// TagSize is the authentication tag length in bytes.
	TagSize = 16
)

// Suite names an authenticated cipher with a 256-bit key, 96-bit nonce and 128-bit tag.
type Suite string

const (
	SuiteAESGCM           Suite = "aes-256-gcm"
	SuiteChaCha20Poly1305 Suite = "chacha20-poly1305"
)

// ParseSuite normalizes a configured suite name. Empty selects AES-256-GCM.
func ParseSuite(raw string) (Suite, error) {
	switch Suite(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SuiteAESGCM:
		return SuiteAESGCM, nil
	case SuiteChaCha20Poly1305:
		return SuiteChaCha20Poly1305, nil
	default:
		return "", fmt.Errorf("unknown cipher suite %q", raw)
	}
}

func (s Suite) aead(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	switch s {
	case SuiteChaCha20Poly1305:
		return chacha20poly1305.New(key)
	case SuiteAESGCM, "":
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCMWithTagSize(block, TagSize)
	default:
		return nil, fmt.Errorf("unknown cipher suite %q", s)
	}
}
