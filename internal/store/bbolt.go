package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"github.com/securebox/securebox/internal/domain"
)

// Bucket names
var (
	usersBucket    = []byte("users")
	userKeysBucket = []byte("userkeys")
	linksBucket    = []byte("links")
	objectsBucket  = []byte("objects")
)

// linkKeySep separates user ID and name in link bucket keys. Usernames
// cannot contain NUL, so the composite key is unambiguous.
const linkKeySep = "\x00"

// BoltStore implements Store on a bbolt database file.
type BoltStore struct {
	db   *bbolt.DB
	path string
}

// Open opens (creating if necessary) the store at path. The database file
// is kept at mode 0600.
func Open(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{usersBucket, userKeysBucket, linksBucket, objectsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := ensureFilePermissions(path); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to secure store file: %w", err)
	}

	log.Debug().Str("path", path).Msg("store opened")

	return &BoltStore{db: db, path: path}, nil
}

// Close releases the underlying database.
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BoltStore) view(fn func(tx *bbolt.Tx) error) error {
	if s.db == nil {
		return ErrNotOpen
	}
	return s.db.View(fn)
}

func (s *BoltStore) update(fn func(tx *bbolt.Tx) error) error {
	if s.db == nil {
		return ErrNotOpen
	}
	return s.db.Update(fn)
}

// CreateUser registers a new user with the given stored password hash.
func (s *BoltStore) CreateUser(name string, passwordHash []byte) (*domain.User, error) {
	user := &domain.User{Name: name, PasswordHash: passwordHash}

	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(usersBucket)
		if bucket.Get([]byte(name)) != nil {
			return domain.ErrUserExists
		}

		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}
		return bucket.Put([]byte(name), data)
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// GetUser looks a user up by name.
func (s *BoltStore) GetUser(name string) (*domain.User, error) {
	var user domain.User
	err := s.view(func(tx *bbolt.Tx) error {
		data := tx.Bucket(usersBucket).Get([]byte(name))
		if data == nil {
			return domain.ErrUserNotFound
		}
		if err := json.Unmarshal(data, &user); err != nil {
			return fmt.Errorf("%w: user %s", ErrCorrupted, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetOrCreateUserKeys returns the user's master key record, creating an
// empty one on first access.
func (s *BoltStore) GetOrCreateUserKeys(userID string) (*domain.UserKeyRecord, error) {
	var rec domain.UserKeyRecord
	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(userKeysBucket)
		data := bucket.Get([]byte(userID))
		if data != nil {
			if err := json.Unmarshal(data, &rec); err != nil {
				return fmt.Errorf("%w: user keys for %s", ErrCorrupted, userID)
			}
			return nil
		}

		rec = domain.UserKeyRecord{UserID: userID}
		created, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("failed to marshal user key record: %w", err)
		}
		return bucket.Put([]byte(userID), created)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutUserKeys stores a user's master key record.
func (s *BoltStore) PutUserKeys(rec *domain.UserKeyRecord) error {
	return s.update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal user key record: %w", err)
		}
		return tx.Bucket(userKeysBucket).Put([]byte(rec.UserID), data)
	})
}

// ResetUserKeys wipes the user's key material in one transaction: all of
// the user's links are deleted, orphaned objects are reaped, and the new
// wrapped master key is stored.
func (s *BoltStore) ResetUserKeys(userID string, wrappedMasterKey []byte) error {
	return s.update(func(tx *bbolt.Tx) error {
		if err := deleteLinksForUserTx(tx, userID); err != nil {
			return err
		}
		if _, err := reapOrphansTx(tx); err != nil {
			return err
		}

		rec := domain.UserKeyRecord{UserID: userID, WrappedMasterKey: wrappedMasterKey}
		data, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("failed to marshal user key record: %w", err)
		}
		if err := tx.Bucket(userKeysBucket).Put([]byte(userID), data); err != nil {
			return err
		}

		log.Info().Str("user", userID).Msg("user keys reset")
		return nil
	})
}

// GetLink returns the link for (userID, name), or domain.ErrNotFound.
func (s *BoltStore) GetLink(userID, name string) (*domain.ObjectLink, error) {
	var link domain.ObjectLink
	err := s.view(func(tx *bbolt.Tx) error {
		data := tx.Bucket(linksBucket).Get(linkKey(userID, name))
		if data == nil {
			return domain.ErrNotFound
		}
		if err := json.Unmarshal(data, &link); err != nil {
			return fmt.Errorf("%w: link %s/%s", ErrCorrupted, userID, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// LinksForUser returns every link the user owns.
func (s *BoltStore) LinksForUser(userID string) ([]*domain.ObjectLink, error) {
	var links []*domain.ObjectLink
	err := s.view(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket(linksBucket).Cursor()
		prefix := []byte(userID + linkKeySep)
		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			var link domain.ObjectLink
			if err := json.Unmarshal(v, &link); err != nil {
				return fmt.Errorf("%w: link %s", ErrCorrupted, k)
			}
			links = append(links, &link)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return links, nil
}

// PutLinkAndObject persists a link and its referenced object atomically.
func (s *BoltStore) PutLinkAndObject(link *domain.ObjectLink, obj *domain.SecureObject) error {
	if link.ObjectID != obj.ID {
		return errors.New("link does not reference the given object")
	}

	return s.update(func(tx *bbolt.Tx) error {
		objData, err := json.Marshal(obj)
		if err != nil {
			return fmt.Errorf("failed to marshal object: %w", err)
		}
		if err := tx.Bucket(objectsBucket).Put([]byte(obj.ID), objData); err != nil {
			return err
		}

		linkData, err := json.Marshal(link)
		if err != nil {
			return fmt.Errorf("failed to marshal link: %w", err)
		}
		return tx.Bucket(linksBucket).Put(linkKey(link.UserID, link.Name), linkData)
	})
}

// DeleteLink removes a link and reaps orphans in the same transaction.
func (s *BoltStore) DeleteLink(userID, name string) (bool, error) {
	existed := false
	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(linksBucket)
		key := linkKey(userID, name)
		if bucket.Get(key) == nil {
			return nil
		}
		existed = true
		if err := bucket.Delete(key); err != nil {
			return err
		}
		_, err := reapOrphansTx(tx)
		return err
	})
	return existed, err
}

// GetObject returns the secure object with the given ID.
func (s *BoltStore) GetObject(id string) (*domain.SecureObject, error) {
	var obj domain.SecureObject
	err := s.view(func(tx *bbolt.Tx) error {
		data := tx.Bucket(objectsBucket).Get([]byte(id))
		if data == nil {
			return domain.ErrNotFound
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("%w: object %s", ErrCorrupted, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

// DeleteObject removes a secure object unconditionally. Used by the
// fail-closed corruption path; links referencing the object become
// dangling and are cleaned up by their own deletion.
func (s *BoltStore) DeleteObject(id string) error {
	return s.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(objectsBucket).Delete([]byte(id))
	})
}

// ReapOrphans deletes objects with no referencing link.
func (s *BoltStore) ReapOrphans() (int, error) {
	reaped := 0
	err := s.update(func(tx *bbolt.Tx) error {
		n, err := reapOrphansTx(tx)
		reaped = n
		return err
	})
	return reaped, err
}

func deleteLinksForUserTx(tx *bbolt.Tx, userID string) error {
	bucket := tx.Bucket(linksBucket)
	prefix := []byte(userID + linkKeySep)

	var keys [][]byte
	cursor := bucket.Cursor()
	for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}

	for _, k := range keys {
		if err := bucket.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func reapOrphansTx(tx *bbolt.Tx) (int, error) {
	referenced := make(map[string]struct{})
	err := tx.Bucket(linksBucket).ForEach(func(_, v []byte) error {
		var link domain.ObjectLink
		if err := json.Unmarshal(v, &link); err != nil {
			return fmt.Errorf("%w: link record", ErrCorrupted)
		}
		referenced[link.ObjectID] = struct{}{}
		return nil
	})
	if err != nil {
		return 0, err
	}

	objects := tx.Bucket(objectsBucket)
	var orphans [][]byte
	err = objects.ForEach(func(k, _ []byte) error {
		if _, ok := referenced[string(k)]; !ok {
			orphans = append(orphans, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, k := range orphans {
		if err := objects.Delete(k); err != nil {
			return 0, err
		}
	}

	if len(orphans) > 0 {
		log.Debug().Int("count", len(orphans)).Msg("reaped orphaned objects")
	}
	return len(orphans), nil
}

func linkKey(userID, name string) []byte {
	return []byte(userID + linkKeySep + name)
}

// ensureFilePermissions tightens the store file to 0600 if needed.
func ensureFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0o077 != 0 {
		return os.Chmod(path, 0o600)
	}
	return nil
}
