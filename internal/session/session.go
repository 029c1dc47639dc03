// Package session provides the two browser-side collaborators of the
// secure box: an authenticated, tamper-evident key/value session store and
// a cookie jar.
package session

import "github.com/google/uuid"

// Session is a mutable key/value map scoped to one browser session. All
// values are byte strings; the secure box stores only ciphertext and
// random salts here. Mutations set the modified flag so the owning store
// knows to persist a new snapshot.
type Session struct {
	id       string
	values   map[string][]byte
	modified bool
}

// NewID allocates a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

func newSession(id string, values map[string][]byte) *Session {
	if values == nil {
		values = make(map[string][]byte)
	}
	return &Session{id: id, values: values}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Get returns the value stored under key.
func (s *Session) Get(key string) ([]byte, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores a value and marks the session modified.
func (s *Session) Set(key string, value []byte) {
	s.values[key] = append([]byte(nil), value...)
	s.modified = true
}

// Delete removes a key and reports whether it was present.
func (s *Session) Delete(key string) bool {
	if _, ok := s.values[key]; !ok {
		return false
	}
	delete(s.values, key)
	s.modified = true
	return true
}

// Has reports whether key is present.
func (s *Session) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Modified reports whether the session changed since it was opened.
func (s *Session) Modified() bool { return s.modified }

// SetModified marks the session dirty. Needed when a caller mutates a
// retrieved value in place rather than calling Set.
func (s *Session) SetModified() { s.modified = true }
