package crypto

import (
	"crypto/rand"
	"fmt"
)

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return buf, nil
}

// NewKey returns a fresh random symmetric key.
func NewKey() ([]byte, error) {
	return RandomBytes(KeySize)
}

// NewSalt returns a fresh random salt.
func NewSalt() ([]byte, error) {
	return RandomBytes(SaltSize)
}
