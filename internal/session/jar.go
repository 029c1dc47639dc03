package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Jar abstracts the cookie transport: set-cookie with name, value,
// max-age, and http-only; delete-cookie by name. Values are raw bytes;
// implementations own the wire encoding.
type Jar interface {
	Get(name string) ([]byte, bool)
	Set(name string, value []byte, maxAge time.Duration, httpOnly bool)
	Delete(name string)
}

// MemoryJar is an in-memory Jar for tests and embedded use.
type MemoryJar struct {
	cookies map[string][]byte
}

// NewMemoryJar creates an empty in-memory jar.
func NewMemoryJar() *MemoryJar {
	return &MemoryJar{cookies: make(map[string][]byte)}
}

func (j *MemoryJar) Get(name string) ([]byte, bool) {
	v, ok := j.cookies[name]
	return v, ok
}

func (j *MemoryJar) Set(name string, value []byte, _ time.Duration, _ bool) {
	j.cookies[name] = append([]byte(nil), value...)
}

func (j *MemoryJar) Delete(name string) {
	delete(j.cookies, name)
}

// FileJar persists cookies to a single JSON file, standing in for the
// browser's cookie store when the secure box is driven from the CLI.
type FileJar struct {
	path    string
	cookies map[string]fileCookie
}

type fileCookie struct {
	Value     string    `json:"value"` // base64
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	HTTPOnly  bool      `json:"http_only,omitempty"`
}

// OpenFileJar loads (or creates) the jar at path.
func OpenFileJar(path string) (*FileJar, error) {
	jar := &FileJar{path: path, cookies: make(map[string]fileCookie)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return jar, nil
		}
		return nil, fmt.Errorf("failed to read cookie jar: %w", err)
	}

	if err := json.Unmarshal(data, &jar.cookies); err != nil {
		// Unreadable jar: start over. Cookies are re-mintable.
		jar.cookies = make(map[string]fileCookie)
	}
	return jar, nil
}

func (j *FileJar) Get(name string) ([]byte, bool) {
	c, ok := j.cookies[name]
	if !ok {
		return nil, false
	}
	if !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt) {
		delete(j.cookies, name)
		j.flush()
		return nil, false
	}

	value, err := base64.StdEncoding.DecodeString(c.Value)
	if err != nil {
		delete(j.cookies, name)
		j.flush()
		return nil, false
	}
	return value, true
}

func (j *FileJar) Set(name string, value []byte, maxAge time.Duration, httpOnly bool) {
	c := fileCookie{
		Value:    base64.StdEncoding.EncodeToString(value),
		HTTPOnly: httpOnly,
	}
	if maxAge > 0 {
		c.ExpiresAt = time.Now().Add(maxAge)
	}
	j.cookies[name] = c
	j.flush()
}

func (j *FileJar) Delete(name string) {
	delete(j.cookies, name)
	j.flush()
}

func (j *FileJar) flush() {
	data, err := json.Marshal(j.cookies)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return
	}
	os.WriteFile(j.path, data, 0o600)
}
