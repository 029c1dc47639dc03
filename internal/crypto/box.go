// Package crypto provides the symmetric primitives used by the secure box:
// an authenticated secretbox, the password-based key derivation, and the
// keyed hash used to mix session secrets.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"errors"
	"fmt"
)

const (
	// KeySize is the symmetric key size (AES-256).
	KeySize = 32
	// SaltSize is the size of session salts and KDF salts.
	SaltSize = 16
	// NonceSize is the GCM nonce size embedded in sealed output.
	NonceSize = 12
)

// ErrDecryptFailed is the single error returned for any decryption
// problem: authentication failure, wrong key, or malformed input.
// Callers must not distinguish between those cases.
var ErrDecryptFailed = errors.New("decryption failed")

// ErrInvalidKeySize is returned when a key is not KeySize bytes.
var ErrInvalidKeySize = errors.New("invalid key size")

// Encrypt seals plaintext under key using AES-256-GCM. A random nonce is
// generated internally and prepended to the output, so the result is
// self-describing: Decrypt needs only the key.
func Encrypt(key, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce, err := RandomBytes(NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any failure is reported
// uniformly as ErrDecryptFailed.
func Decrypt(key, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < NonceSize {
		return nil, ErrDecryptFailed
	}

	nonce, sealed := ciphertext[:NonceSize], ciphertext[NonceSize:]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	return cipher.NewGCM(block)
}

// SecureCompare performs constant-time comparison of two byte slices.
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
