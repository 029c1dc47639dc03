package securebox

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/securebox/securebox/internal/crypto"
	"github.com/securebox/securebox/internal/domain"
)

// The permanent tier stores each value as a SecureObject sealed under its
// own object key, with a per-user ObjectLink holding that key wrapped
// under the user's master key. Every decryption failure is handled by
// deleting the offending record and reaping orphans; readers only ever
// see live entries or nothing.

func (b *Box) attemptFetchPermanent(name string) (any, tierResult, error) {
	if b.user == nil {
		return nil, tierMissing, nil
	}

	link, err := b.store.GetLink(b.user.Name, name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, tierMissing, nil
	}
	if err != nil {
		return nil, tierMissing, err
	}

	masterKey, err := b.masterKeyBytes()
	if err != nil {
		// No key material in this session. The entry may well be intact,
		// so nothing is healed; it is simply unreachable.
		return nil, tierMissing, nil
	}

	objectKey, err := crypto.Decrypt(masterKey, link.WrappedObjectKey)
	if err != nil {
		log.Warn().Str("user", b.user.Name).Str("name", name).
			Msg("dropping link with undecryptable object key")
		if _, derr := b.store.DeleteLink(b.user.Name, name); derr != nil {
			return nil, tierCorrupt, derr
		}
		return nil, tierCorrupt, nil
	}

	obj, err := b.store.GetObject(link.ObjectID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Str("user", b.user.Name).Str("name", name).
			Msg("dropping dangling link")
		if _, derr := b.store.DeleteLink(b.user.Name, name); derr != nil {
			return nil, tierCorrupt, derr
		}
		return nil, tierCorrupt, nil
	}
	if err != nil {
		return nil, tierMissing, err
	}

	plaintext, err := crypto.Decrypt(objectKey, obj.Ciphertext)
	if err != nil {
		return nil, tierCorrupt, b.dropCorruptObject(name, obj.ID, "undecryptable payload")
	}
	var value any
	if err := b.codec.Unmarshal(plaintext, &value); err != nil {
		return nil, tierCorrupt, b.dropCorruptObject(name, obj.ID, "undecodable payload")
	}
	return value, tierFound, nil
}

// dropCorruptObject deletes an object whose payload cannot be recovered,
// along with this user's link to it. Other users' links to the same
// object are equally unrecoverable, so their cleanup is left to their own
// next access.
func (b *Box) dropCorruptObject(name, objectID, reason string) error {
	log.Warn().Str("user", b.user.Name).Str("name", name).
		Str("object", objectID).Msg("dropping secure object: " + reason)
	if err := b.store.DeleteObject(objectID); err != nil {
		return err
	}
	_, err := b.store.DeleteLink(b.user.Name, name)
	return err
}

// storePermanent writes value into the database tier. With updateOnly set
// it only overwrites a live, decryptable entry and reports whether it
// did. Creating requires an unlocked master key; updating silently skips
// when none is available.
func (b *Box) storePermanent(name string, value any, updateOnly bool) (bool, error) {
	if updateOnly {
		_, res, err := b.attemptFetchPermanent(name)
		if err != nil {
			return false, err
		}
		if res != tierFound {
			return false, nil
		}
	}
	if b.user == nil {
		return false, domain.ErrUnavailable
	}
	masterKey, err := b.masterKeyBytes()
	if err != nil {
		return false, err
	}

	var (
		link *domain.ObjectLink
		obj  *domain.SecureObject
	)
	link, err = b.store.GetLink(b.user.Name, name)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		obj = domain.NewSecureObject()
		link = &domain.ObjectLink{UserID: b.user.Name, ObjectID: obj.ID, Name: name}
	case err != nil:
		return false, err
	default:
		obj, err = b.store.GetObject(link.ObjectID)
		if errors.Is(err, domain.ErrNotFound) {
			obj = domain.NewSecureObject()
			link.ObjectID = obj.ID
			link.WrappedObjectKey = nil
		} else if err != nil {
			return false, err
		}
	}

	// Reuse the existing object key when it still unwraps; mint a fresh
	// one otherwise.
	var objectKey []byte
	if len(link.WrappedObjectKey) > 0 {
		if key, err := crypto.Decrypt(masterKey, link.WrappedObjectKey); err == nil {
			objectKey = key
		}
	}
	if objectKey == nil {
		objectKey, err = crypto.NewKey()
		if err != nil {
			return false, err
		}
		link.WrappedObjectKey, err = crypto.Encrypt(masterKey, objectKey)
		if err != nil {
			return false, err
		}
	}

	plaintext, err := b.codec.Marshal(value)
	if err != nil {
		return false, err
	}
	obj.Ciphertext, err = crypto.Encrypt(objectKey, plaintext)
	if err != nil {
		return false, err
	}

	if err := b.store.PutLinkAndObject(link, obj); err != nil {
		return false, err
	}
	return true, nil
}

// deletePermanent removes this user's link to name, reaping the object if
// no other link references it. Reports whether a link existed.
func (b *Box) deletePermanent(name string) (bool, error) {
	if b.user == nil {
		return false, nil
	}
	return b.store.DeleteLink(b.user.Name, name)
}
