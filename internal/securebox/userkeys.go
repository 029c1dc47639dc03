package securebox

import (
	"github.com/rs/zerolog/log"

	"github.com/securebox/securebox/internal/crypto"
	"github.com/securebox/securebox/internal/domain"
)

// ensureKeysExist returns the user's unwrapped master key, creating the
// hierarchy on first login and resetting it when the stored wrapped key
// no longer unwraps (password changed out of band, record corrupted). A
// reset destroys every secret of the user; there is no recovery path
// without the wrap key, so failing the login instead would help nobody.
func (b *Box) ensureKeysExist(wrapKey []byte) ([]byte, error) {
	rec, err := b.store.GetOrCreateUserKeys(b.user.Name)
	if err != nil {
		return nil, err
	}
	if len(rec.WrappedMasterKey) == 0 {
		return b.resetUserKeys(wrapKey)
	}

	masterKey, err := crypto.Decrypt(wrapKey, rec.WrappedMasterKey)
	if err != nil {
		log.Warn().Str("user", b.user.Name).
			Msg("master key no longer unwraps, resetting key hierarchy")
		return b.resetUserKeys(wrapKey)
	}
	return masterKey, nil
}

// resetUserKeys mints a fresh master key, wraps it under wrapKey, and
// atomically replaces the key record while cascading away every link the
// user owns and any objects orphaned by that.
func (b *Box) resetUserKeys(wrapKey []byte) ([]byte, error) {
	masterKey, err := crypto.NewKey()
	if err != nil {
		return nil, err
	}
	wrapped, err := crypto.Encrypt(wrapKey, masterKey)
	if err != nil {
		return nil, err
	}
	if err := b.store.ResetUserKeys(b.user.Name, wrapped); err != nil {
		return nil, err
	}
	return masterKey, nil
}

// ResetKeys discards the user's master key and every stored secret,
// minting a fresh hierarchy under the given password. Explicit,
// destructive, and immediate.
func (b *Box) ResetKeys(password string) error {
	if b.user == nil {
		return domain.ErrUserNotFound
	}

	wrapKey := crypto.DeriveKey(crypto.KeySize, []byte(password), crypto.WrapKeySalt(b.user.PasswordHash), b.kdf)
	defer crypto.Zeroize(wrapKey)

	masterKey, err := b.resetUserKeys(wrapKey)
	if err != nil {
		return err
	}
	if err := b.cacheMasterKey(masterKey); err != nil {
		return err
	}
	b.masterKey = masterKey
	return nil
}
