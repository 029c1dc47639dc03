package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/blake2b"

	"github.com/securebox/securebox/internal/crypto"
)

// macSize is the length of the snapshot authentication tag.
const macSize = 32

// Store persists session snapshots. Opening an unknown or tampered-with
// session yields a fresh empty one; sessions never fail open.
type Store interface {
	Open(id string) (*Session, error)
	Save(s *Session) error
	Destroy(id string) error
}

// snapshot is the serialized session payload: a BLAKE2b MAC keyed with
// the store's auth key, followed by the CBOR-encoded value map.
func encodeSnapshot(authKey []byte, values map[string][]byte) ([]byte, error) {
	payload, err := cbor.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}

	mac, err := crypto.KeyedHash(authKey, macSize, payload)
	if err != nil {
		return nil, err
	}

	return append(mac, payload...), nil
}

func decodeSnapshot(authKey, data []byte) (map[string][]byte, error) {
	if len(data) < macSize {
		return nil, errors.New("session snapshot truncated")
	}

	mac, payload := data[:macSize], data[macSize:]
	want, err := crypto.KeyedHash(authKey, macSize, payload)
	if err != nil {
		return nil, err
	}
	if !crypto.SecureCompare(mac, want) {
		return nil, errors.New("session snapshot failed authentication")
	}

	var values map[string][]byte
	if err := cbor.Unmarshal(payload, &values); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return values, nil
}

// MemoryStore keeps authenticated snapshots in memory. Used in tests and
// anywhere sessions need not outlive the process.
type MemoryStore struct {
	authKey   []byte
	snapshots map[string][]byte
}

// NewMemoryStore creates an in-memory session store authenticated with
// authKey.
func NewMemoryStore(authKey []byte) *MemoryStore {
	return &MemoryStore{
		authKey:   append([]byte(nil), authKey...),
		snapshots: make(map[string][]byte),
	}
}

func (m *MemoryStore) Open(id string) (*Session, error) {
	data, ok := m.snapshots[id]
	if !ok {
		return newSession(id, nil), nil
	}

	values, err := decodeSnapshot(m.authKey, data)
	if err != nil {
		log.Warn().Str("session", id).Err(err).Msg("discarding unreadable session")
		delete(m.snapshots, id)
		return newSession(id, nil), nil
	}
	return newSession(id, values), nil
}

func (m *MemoryStore) Save(s *Session) error {
	data, err := encodeSnapshot(m.authKey, s.values)
	if err != nil {
		return err
	}
	m.snapshots[s.id] = data
	return nil
}

func (m *MemoryStore) Destroy(id string) error {
	delete(m.snapshots, id)
	return nil
}

// FileStore persists one snapshot file per session under dir. The CLI
// uses it so a session spans multiple invocations.
type FileStore struct {
	dir     string
	authKey []byte
}

// NewFileStore creates a file-backed session store rooted at dir.
func NewFileStore(dir string, authKey []byte) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &FileStore{dir: dir, authKey: append([]byte(nil), authKey...)}, nil
}

func (f *FileStore) path(id string) string {
	// Session IDs are UUIDs; reject anything path-like outright.
	return filepath.Join(f.dir, filepath.Base(id)+".session")
}

func (f *FileStore) Open(id string) (*Session, error) {
	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newSession(id, nil), nil
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	values, err := decodeSnapshot(f.authKey, data)
	if err != nil {
		log.Warn().Str("session", id).Err(err).Msg("discarding unreadable session")
		os.Remove(f.path(id))
		return newSession(id, nil), nil
	}
	return newSession(id, values), nil
}

func (f *FileStore) Save(s *Session) error {
	data, err := encodeSnapshot(f.authKey, s.values)
	if err != nil {
		return err
	}
	return os.WriteFile(f.path(s.id), data, 0o600)
}

func (f *FileStore) Destroy(id string) error {
	err := os.Remove(f.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// DeriveAuthKey derives the snapshot MAC key from the server secret, so
// session files are only readable alongside the deployment that wrote
// them.
func DeriveAuthKey(serverSecret []byte) []byte {
	key, err := crypto.KeyedHash(nil, blake2b.Size256, []byte("session-auth"), serverSecret)
	if err != nil {
		panic(err)
	}
	return key
}
