package crypto

import (
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
)

// Default Argon2id parameters. CPU cost is tuned high ("sensitive") and
// memory cost moderate; a login is expected to take hundreds of
// milliseconds. Deployments tune these via configuration.
const (
	DefaultArgon2Memory      = 256 * 1024 // 256 MiB
	DefaultArgon2Iterations  = 4
	DefaultArgon2Parallelism = 4
)

// Params holds the Argon2id work factors.
type Params struct {
	Memory      uint32 `json:"memory" yaml:"memory"`
	Iterations  uint32 `json:"iterations" yaml:"iterations"`
	Parallelism uint8  `json:"parallelism" yaml:"parallelism"`
}

// DefaultParams returns the default Argon2id work factors.
func DefaultParams() Params {
	return Params{
		Memory:      DefaultArgon2Memory,
		Iterations:  DefaultArgon2Iterations,
		Parallelism: DefaultArgon2Parallelism,
	}
}

// Validate rejects work factors outside sane bounds.
func (p Params) Validate() error {
	if p.Memory < 1024 {
		return fmt.Errorf("memory parameter too low (minimum 1024 KiB)")
	}
	if p.Iterations < 1 {
		return fmt.Errorf("iterations parameter too low (minimum 1)")
	}
	if p.Parallelism < 1 {
		return fmt.Errorf("parallelism parameter too low (minimum 1)")
	}
	return nil
}

// DeriveKey derives a size-byte key from password and salt using Argon2id.
// This is intentionally slow; it runs synchronously on the login path.
func DeriveKey(size int, password, salt []byte, p Params) []byte {
	return argon2.IDKey(password, salt, p.Iterations, p.Memory, p.Parallelism, uint32(size))
}

// KeyedHash mixes the given segments into a size-byte digest using BLAKE2b
// keyed with key. Each segment is prefixed with "|%04X|" of its length so
// that segment boundaries are unambiguous even when an attacker controls a
// subset of the inputs.
func KeyedHash(key []byte, size int, segments ...[]byte) ([]byte, error) {
	h, err := blake2b.New(size, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create keyed hash: %w", err)
	}

	for _, seg := range segments {
		fmt.Fprintf(h, "|%04X|", len(seg))
		h.Write(seg)
	}

	return h.Sum(nil), nil
}

// WrapKeySalt derives the per-user KDF salt for the wrap key from the
// user's stored password hash. The salt changes whenever the stored hash
// does, so an out-of-band password change invalidates the wrap key.
func WrapKeySalt(passwordHash []byte) []byte {
	sum, err := KeyedHash(nil, SaltSize, passwordHash)
	if err != nil {
		// blake2b only fails on bad key/size arguments, which are fixed here.
		panic(err)
	}
	return sum
}
