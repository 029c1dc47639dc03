package securebox

import (
	"github.com/rs/zerolog/log"

	"github.com/securebox/securebox/internal/crypto"
)

// The transient tier keeps each value in the session, encrypted under a
// key derived per name from the full session key context. The list of
// transient names is kept alongside so the tier is enumerable without
// touching the values.

func transientValueKey(name string) string {
	return transientPrefix + name
}

func (b *Box) transientNames() []string {
	data, ok := b.sess.Get(transientNamesKey)
	if !ok {
		return nil
	}
	var names []string
	if err := b.codec.Unmarshal(data, &names); err != nil {
		log.Warn().Err(err).Msg("discarding unreadable transient name list")
		b.sess.Delete(transientNamesKey)
		return nil
	}
	return names
}

func (b *Box) setTransientNames(names []string) error {
	if len(names) == 0 {
		b.sess.Delete(transientNamesKey)
		return nil
	}
	data, err := b.codec.Marshal(names)
	if err != nil {
		return err
	}
	b.sess.Set(transientNamesKey, data)
	return nil
}

func (b *Box) attemptFetchTransient(name string) (any, tierResult, error) {
	found := false
	for _, n := range b.transientNames() {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		return nil, tierMissing, nil
	}

	sealed, ok := b.sess.Get(transientValueKey(name))
	if !ok {
		b.deleteTransient(name)
		return nil, tierMissing, nil
	}

	key, err := b.deriveKey("session", name)
	if err != nil {
		return nil, tierMissing, err
	}
	plaintext, err := crypto.Decrypt(key, sealed)
	if err != nil {
		// Undecryptable, e.g. the cookie key or salt changed underneath.
		// Heal by dropping the entry.
		log.Warn().Str("name", name).Msg("dropping undecryptable transient value")
		b.deleteTransient(name)
		return nil, tierCorrupt, nil
	}

	var value any
	if err := b.codec.Unmarshal(plaintext, &value); err != nil {
		log.Warn().Str("name", name).Err(err).Msg("dropping undecodable transient value")
		b.deleteTransient(name)
		return nil, tierCorrupt, nil
	}
	return value, tierFound, nil
}

// storeTransient writes value into the session tier. With updateOnly set
// it only overwrites a live entry and reports whether it did.
func (b *Box) storeTransient(name string, value any, updateOnly bool) (bool, error) {
	if updateOnly {
		_, res, err := b.attemptFetchTransient(name)
		if err != nil {
			return false, err
		}
		if res != tierFound {
			return false, nil
		}
	}

	key, err := b.deriveKey("session", name)
	if err != nil {
		return false, err
	}
	plaintext, err := b.codec.Marshal(value)
	if err != nil {
		return false, err
	}
	sealed, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		return false, err
	}
	b.sess.Set(transientValueKey(name), sealed)

	names := b.transientNames()
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	if err := b.setTransientNames(append(names, name)); err != nil {
		return false, err
	}
	return true, nil
}

// deleteTransient removes name from the session tier and reports whether
// it was present.
func (b *Box) deleteTransient(name string) bool {
	names := b.transientNames()
	kept := names[:0]
	found := false
	for _, n := range names {
		if n == name {
			found = true
			continue
		}
		kept = append(kept, n)
	}
	if !found {
		return false
	}
	b.setTransientNames(kept)
	b.sess.Delete(transientValueKey(name))
	return true
}
