package crypto

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Password hashes are stored in a PHC-style string:
//
//	$argon2id$m=65536,t=3,p=4$<b64 salt>$<b64 digest>
//
// The stored hash doubles as a derivation input elsewhere (the wrap-key
// salt and the session key mix), so it must be stable for a given
// password until the password changes.

const passwordHashAlg = "argon2id"

// HashPassword hashes a cleartext password for storage.
func HashPassword(password string, p Params) ([]byte, error) {
	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}

	digest := DeriveKey(KeySize, []byte(password), salt, p)
	enc := base64.RawStdEncoding

	hash := fmt.Sprintf("$%s$m=%d,t=%d,p=%d$%s$%s",
		passwordHashAlg, p.Memory, p.Iterations, p.Parallelism,
		enc.EncodeToString(salt), enc.EncodeToString(digest))

	return []byte(hash), nil
}

// VerifyPassword reports whether password matches the stored hash. The
// comparison is constant time.
func VerifyPassword(hash []byte, password string) bool {
	var p Params
	var saltB64, digestB64 string

	parts := strings.Split(string(hash), "$")
	if len(parts) != 5 || parts[1] != passwordHashAlg {
		return false
	}
	if _, err := fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return false
	}
	saltB64, digestB64 = parts[3], parts[4]

	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(saltB64)
	if err != nil {
		return false
	}
	digest, err := enc.DecodeString(digestB64)
	if err != nil {
		return false
	}

	derived := DeriveKey(len(digest), []byte(password), salt, p)
	defer Zeroize(derived)

	return SecureCompare(derived, digest)
}
