// Package domain defines the persisted record kinds of the secure box and
// the error values shared across the module.
package domain

import "github.com/google/uuid"

// SecureObject holds a single encrypted payload. The ciphertext is sealed
// under a per-object key that is never persisted in cleartext and never
// reused across objects. An object with no referencing link is an orphan
// and gets deleted.
type SecureObject struct {
	ID         string `json:"id"`
	Ciphertext []byte `json:"ciphertext"`
}

// NewSecureObject allocates an object with a fresh ID and no payload yet.
func NewSecureObject() *SecureObject {
	return &SecureObject{ID: uuid.NewString()}
}

// ObjectLink binds a named, per-user reference to a SecureObject. The
// object key is stored wrapped under the user's master key. Exactly one
// live link exists per (user, name).
type ObjectLink struct {
	UserID           string `json:"user_id"`
	ObjectID         string `json:"object_id"`
	Name             string `json:"name"`
	WrappedObjectKey []byte `json:"wrapped_object_key"`
}

// UserKeyRecord holds a user's master key wrapped under a session-derived
// wrap key. The master key never exists unwrapped outside an
// authenticated session. An empty WrappedMasterKey means the keys have
// not been generated (or were invalidated) and must be reset.
type UserKeyRecord struct {
	UserID           string `json:"user_id"`
	WrappedMasterKey []byte `json:"wrapped_master_key"`
}

// User is the minimal user registry record: login events need a username
// and a stored password hash. The hash string also feeds key derivation
// (wrap-key salt, session key mix), so it stays stable until the password
// changes.
type User struct {
	Name         string `json:"name"`
	PasswordHash []byte `json:"password_hash"`
}
