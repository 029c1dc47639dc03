// Package securebox implements the envelope-encrypted secret store: a
// per-user key hierarchy (wrap key, master key, per-object keys) over a
// transient session tier and a permanent database tier, selected per
// operation by a storage policy.
package securebox

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/securebox/securebox/internal/codec"
	"github.com/securebox/securebox/internal/crypto"
	"github.com/securebox/securebox/internal/domain"
	"github.com/securebox/securebox/internal/session"
	"github.com/securebox/securebox/internal/store"
)

const (
	// CookieName is the cookie carrying the random client half of the
	// session key material.
	CookieName = "securebox_cookie_key"

	cookieKeySize = 32
	cookieMaxAge  = 5 * 365 * 24 * time.Hour

	saltKey           = "_securebox_salt"
	userKeyKey        = "_securebox_user_key"
	transientNamesKey = "_securebox_names"
	transientPrefix   = "_securebox_value_"
)

// Options configures a Box.
type Options struct {
	// ServerSecret is the deployment-wide secret mixed into every derived
	// session key.
	ServerSecret []byte
	// KDF holds the Argon2id work factors for the wrap key. Zero value
	// means defaults.
	KDF crypto.Params
	// Codec serializes stored values. Nil means the CBOR default.
	Codec codec.Codec
}

// Box is the per-request secret store facade. It binds a user, their
// session, and their cookie jar to the persistence layer, and caches the
// session key material it derives along the way. A Box is not safe for
// concurrent use; create one per request.
type Box struct {
	store        store.Store
	sess         *session.Session
	jar          session.Jar
	user         *domain.User
	serverSecret []byte
	kdf          crypto.Params
	codec        codec.Codec

	cookieKey []byte
	masterKey []byte
}

// New creates a Box for one request. user may be nil for anonymous
// sessions, which can still use the transient tier.
func New(st store.Store, sess *session.Session, jar session.Jar, user *domain.User, opts Options) *Box {
	b := &Box{
		store:        st,
		sess:         sess,
		jar:          jar,
		user:         user,
		serverSecret: opts.ServerSecret,
		kdf:          opts.KDF,
		codec:        opts.Codec,
	}
	if b.codec == nil {
		b.codec = codec.Default
	}
	if b.kdf == (crypto.Params{}) {
		b.kdf = crypto.DefaultParams()
	}
	return b
}

// sessionSalt returns the per-session random salt, minting one on first
// use.
func (b *Box) sessionSalt() ([]byte, error) {
	if salt, ok := b.sess.Get(saltKey); ok && len(salt) == crypto.SaltSize {
		return salt, nil
	}
	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, err
	}
	b.sess.Set(saltKey, salt)
	return salt, nil
}

// cookieKeyBytes returns the random client-side key half, minting and
// setting the cookie if the client does not present one.
func (b *Box) cookieKeyBytes() ([]byte, error) {
	if b.cookieKey != nil {
		return b.cookieKey, nil
	}
	if key, ok := b.jar.Get(CookieName); ok && len(key) == cookieKeySize {
		b.cookieKey = key
		return key, nil
	}
	key, err := crypto.RandomBytes(cookieKeySize)
	if err != nil {
		return nil, err
	}
	b.jar.Set(CookieName, key, cookieMaxAge, true)
	b.cookieKey = key
	return key, nil
}

// deriveKey builds a session-scoped key from the given purpose labels plus
// the full key context: the user's stored password hash, the server
// secret, and the cookie key, all mixed under the session salt. Neither
// the server nor the client alone holds enough state to rebuild it.
func (b *Box) deriveKey(labels ...string) ([]byte, error) {
	salt, err := b.sessionSalt()
	if err != nil {
		return nil, err
	}
	cookieKey, err := b.cookieKeyBytes()
	if err != nil {
		return nil, err
	}

	segments := make([][]byte, 0, len(labels)+3)
	for _, l := range labels {
		segments = append(segments, []byte(l))
	}
	var passwordHash []byte
	if b.user != nil {
		passwordHash = b.user.PasswordHash
	}
	segments = append(segments, passwordHash, b.serverSecret, cookieKey)

	return crypto.KeyedHash(salt, crypto.KeySize, segments...)
}

// Login unlocks the user's master key with their password, creating or
// resetting the key hierarchy when necessary, and caches it in the
// session encrypted under a session-derived key.
func (b *Box) Login(password string) error {
	if b.user == nil {
		return domain.ErrUserNotFound
	}

	wrapKey := crypto.DeriveKey(crypto.KeySize, []byte(password), crypto.WrapKeySalt(b.user.PasswordHash), b.kdf)
	defer crypto.Zeroize(wrapKey)

	masterKey, err := b.ensureKeysExist(wrapKey)
	if err != nil {
		return err
	}
	if err := b.cacheMasterKey(masterKey); err != nil {
		return err
	}
	b.masterKey = masterKey

	log.Debug().Str("user", b.user.Name).Msg("master key unlocked")
	return nil
}

// Logout drops the cached key material from the session and the cookie
// jar. Transient values become undecryptable and self-heal away on next
// access.
func (b *Box) Logout() {
	b.jar.Delete(CookieName)
	b.sess.Delete(saltKey)
	b.sess.Delete(userKeyKey)
	b.cookieKey = nil
	b.masterKey = nil
}

// cacheMasterKey stores the unwrapped master key in the session, sealed
// under a key only this session context can re-derive.
func (b *Box) cacheMasterKey(masterKey []byte) error {
	sessionKey, err := b.deriveKey("user_key")
	if err != nil {
		return err
	}
	sealed, err := crypto.Encrypt(sessionKey, masterKey)
	if err != nil {
		return err
	}
	b.sess.Set(userKeyKey, sealed)
	return nil
}

// masterKeyBytes recovers the master key from the session cache. Failure
// means the session holds no usable key material (not logged in, logged
// out, or a stale cache) and the permanent tier is unavailable.
func (b *Box) masterKeyBytes() ([]byte, error) {
	if b.masterKey != nil {
		return b.masterKey, nil
	}
	sealed, ok := b.sess.Get(userKeyKey)
	if !ok {
		return nil, domain.ErrUnavailable
	}
	sessionKey, err := b.deriveKey("user_key")
	if err != nil {
		return nil, err
	}
	masterKey, err := crypto.Decrypt(sessionKey, sealed)
	if err != nil {
		return nil, domain.ErrUnavailable
	}
	b.masterKey = masterKey
	return masterKey, nil
}

// Fetch retrieves the value stored under name, trying tiers in the
// policy's order. Absent, undecryptable, and inaccessible entries are
// indistinguishable: all yield ErrNotFound.
func (b *Box) Fetch(name string, policy Policy) (any, error) {
	order := policy.fetchOrder()
	if order == nil {
		return nil, fmt.Errorf("policy %s cannot be used to fetch", policy)
	}
	for _, t := range order {
		value, res, err := b.attemptFetch(t, name)
		if err != nil {
			return nil, err
		}
		if res == tierFound {
			return value, nil
		}
	}
	return nil, domain.ErrNotFound
}

// FetchDefault is Fetch returning def instead of ErrNotFound.
func (b *Box) FetchDefault(name string, policy Policy, def any) (any, error) {
	value, err := b.Fetch(name, policy)
	if errors.Is(err, domain.ErrNotFound) {
		return def, nil
	}
	return value, err
}

// Has reports whether Fetch would succeed for name under policy.
func (b *Box) Has(name string, policy Policy) bool {
	_, err := b.Fetch(name, policy)
	return err == nil
}

func (b *Box) attemptFetch(t tier, name string) (any, tierResult, error) {
	if t == tierTransient {
		return b.attemptFetchTransient(name)
	}
	return b.attemptFetchPermanent(name)
}

// Store writes value under name according to policy. The two-tier
// policies update an existing live entry in place, preserving its tier;
// the single-tier policies additionally evict the other tier's copy so
// the name lives in exactly one place afterwards.
func (b *Box) Store(name string, value any, policy Policy) error {
	switch policy {
	case TransientThenPermanent:
		if ok, err := b.storeTransient(name, value, true); err != nil || ok {
			return err
		}
		if ok, err := b.storePermanent(name, value, true); err != nil || ok {
			return err
		}
		_, err := b.storeTransient(name, value, false)
		return err
	case PermanentThenTransient:
		if ok, err := b.storePermanent(name, value, true); err != nil || ok {
			return err
		}
		if ok, err := b.storeTransient(name, value, true); err != nil || ok {
			return err
		}
		_, err := b.storePermanent(name, value, false)
		return err
	case TransientOnly:
		if _, err := b.storeTransient(name, value, false); err != nil {
			return err
		}
		_, err := b.deletePermanent(name)
		return err
	case PermanentOnly:
		if _, err := b.storePermanent(name, value, false); err != nil {
			return err
		}
		b.deleteTransient(name)
		return nil
	default:
		return fmt.Errorf("policy %s cannot be used to store", policy)
	}
}

// Delete removes name according to policy. Deleting a missing name is not
// an error.
func (b *Box) Delete(name string, policy Policy) error {
	if policy == PermanentOnly || policy == PermanentThenTransient || policy == All {
		deleted, err := b.deletePermanent(name)
		if err != nil {
			return err
		}
		if deleted && policy != All {
			return nil
		}
	}
	if policy != PermanentOnly {
		if b.deleteTransient(name) && policy != All {
			return nil
		}
	}
	if policy == TransientThenPermanent {
		if _, err := b.deletePermanent(name); err != nil {
			return err
		}
	}
	return nil
}

// Keys lists every name with a live, decryptable entry in either tier,
// sorted. Listing triggers the same self-healing as fetching, so corrupt
// entries disappear rather than being reported.
func (b *Box) Keys() ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string

	for _, name := range b.transientNames() {
		if _, res, err := b.attemptFetchTransient(name); err != nil {
			return nil, err
		} else if res == tierFound {
			seen[name] = struct{}{}
			keys = append(keys, name)
		}
	}

	if b.user != nil {
		links, err := b.store.LinksForUser(b.user.Name)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			if _, ok := seen[link.Name]; ok {
				continue
			}
			if _, res, err := b.attemptFetchPermanent(link.Name); err != nil {
				return nil, err
			} else if res == tierFound {
				seen[link.Name] = struct{}{}
				keys = append(keys, link.Name)
			}
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// Items calls fn for each live (name, value) pair in key order until fn
// returns false. Values are fetched lazily; a name that vanishes between
// listing and fetching is skipped.
func (b *Box) Items(fn func(name string, value any) bool) error {
	keys, err := b.Keys()
	if err != nil {
		return err
	}
	for _, name := range keys {
		value, err := b.Fetch(name, TransientThenPermanent)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if !fn(name, value) {
			return nil
		}
	}
	return nil
}
