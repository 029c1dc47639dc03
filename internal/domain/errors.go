package domain

import "errors"

var (
	// ErrNotFound is returned when a name is absent from every tier the
	// caller asked for. Callers cannot distinguish "absent" from "present
	// but undecryptable"; both surface as ErrNotFound.
	ErrNotFound = errors.New("value not found")

	// ErrUnavailable signals a decryption or authentication failure, or a
	// key operation attempted without an authenticated session. It is an
	// internal signal: the offending record is deleted and the condition
	// re-surfaces to external callers as ErrNotFound.
	ErrUnavailable = errors.New("value unavailable")

	// ErrUserExists is returned when registering a username that is taken.
	ErrUserExists = errors.New("user already exists")

	// ErrUserNotFound is returned for an unknown username.
	ErrUserNotFound = errors.New("user not found")
)
