// Package store provides the transactional persistence layer for the
// secure box record kinds: secure objects, object links, user key records,
// and the user registry.
package store

import (
	"errors"

	"github.com/securebox/securebox/internal/domain"
)

var (
	// ErrCorrupted is returned when a stored record cannot be decoded.
	ErrCorrupted = errors.New("store record corrupted")
	// ErrNotOpen is returned when the store has been closed.
	ErrNotOpen = errors.New("store is not open")
)

// Store is the persistence collaborator. Multi-record mutations (link +
// object writes, master key reset cascades, orphan reaping) run inside a
// single transaction.
type Store interface {
	Close() error

	// User registry.
	CreateUser(name string, passwordHash []byte) (*domain.User, error)
	GetUser(name string) (*domain.User, error)

	// User master key records.
	GetOrCreateUserKeys(userID string) (*domain.UserKeyRecord, error)
	PutUserKeys(rec *domain.UserKeyRecord) error
	// ResetUserKeys atomically deletes every link the user owns, reaps
	// orphaned objects, and stores the freshly wrapped master key.
	ResetUserKeys(userID string, wrappedMasterKey []byte) error

	// Object links and secure objects.
	GetLink(userID, name string) (*domain.ObjectLink, error)
	LinksForUser(userID string) ([]*domain.ObjectLink, error)
	// PutLinkAndObject persists a link and its referenced object in one
	// transaction.
	PutLinkAndObject(link *domain.ObjectLink, obj *domain.SecureObject) error
	// DeleteLink removes a link and reaps orphans in the same
	// transaction. It reports whether a link existed.
	DeleteLink(userID, name string) (bool, error)
	GetObject(id string) (*domain.SecureObject, error)
	DeleteObject(id string) error

	// ReapOrphans deletes secure objects with no remaining links and
	// returns how many were removed.
	ReapOrphans() (int, error)
}
