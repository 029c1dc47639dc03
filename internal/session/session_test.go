package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuthKey = DeriveAuthKey([]byte("test server secret"))

func TestSessionModifiedFlag(t *testing.T) {
	s := newSession(NewID(), nil)
	assert.False(t, s.Modified())

	s.Set("k", []byte("v"))
	assert.True(t, s.Modified())

	v, ok := s.Get("k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	assert.True(t, s.Delete("k"))
	assert.False(t, s.Delete("k"))
	assert.False(t, s.Has("k"))
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(testAuthKey)
	id := NewID()

	s, err := store.Open(id)
	require.NoError(t, err)
	s.Set("salt", []byte{1, 2, 3})
	require.NoError(t, store.Save(s))

	again, err := store.Open(id)
	require.NoError(t, err)
	v, ok := again.Get("salt")
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, v)
	assert.False(t, again.Modified())
}

func TestMemoryStoreDestroy(t *testing.T) {
	store := NewMemoryStore(testAuthKey)
	id := NewID()

	s, _ := store.Open(id)
	s.Set("k", []byte("v"))
	require.NoError(t, store.Save(s))
	require.NoError(t, store.Destroy(id))

	fresh, err := store.Open(id)
	require.NoError(t, err)
	assert.False(t, fresh.Has("k"))
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, testAuthKey)
	require.NoError(t, err)

	id := NewID()
	s, err := store.Open(id)
	require.NoError(t, err)
	s.Set("cookie", []byte("crumbs"))
	require.NoError(t, store.Save(s))

	again, err := store.Open(id)
	require.NoError(t, err)
	v, ok := again.Get("cookie")
	assert.True(t, ok)
	assert.Equal(t, []byte("crumbs"), v)
}

func TestFileStoreTamperedSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, testAuthKey)
	require.NoError(t, err)

	id := NewID()
	s, _ := store.Open(id)
	s.Set("secret", []byte("payload"))
	require.NoError(t, store.Save(s))

	// Flip one byte in the stored snapshot.
	path := filepath.Join(dir, id+".session")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0o600))

	// Tampered sessions come back empty, never partially trusted.
	fresh, err := store.Open(id)
	require.NoError(t, err)
	assert.False(t, fresh.Has("secret"))

	// The bad file was removed.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreWrongAuthKey(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, testAuthKey)
	require.NoError(t, err)

	id := NewID()
	s, _ := store.Open(id)
	s.Set("secret", []byte("payload"))
	require.NoError(t, store.Save(s))

	other, err := NewFileStore(dir, DeriveAuthKey([]byte("different secret")))
	require.NoError(t, err)

	fresh, err := other.Open(id)
	require.NoError(t, err)
	assert.False(t, fresh.Has("secret"))
}

func TestMemoryJar(t *testing.T) {
	jar := NewMemoryJar()

	_, ok := jar.Get("k")
	assert.False(t, ok)

	jar.Set("k", []byte("v"), time.Hour, true)
	v, ok := jar.Get("k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	jar.Delete("k")
	_, ok = jar.Get("k")
	assert.False(t, ok)
}

func TestFileJarPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")

	jar, err := OpenFileJar(path)
	require.NoError(t, err)
	jar.Set("cookie_key", []byte{0xde, 0xad}, time.Hour, true)

	reopened, err := OpenFileJar(path)
	require.NoError(t, err)
	v, ok := reopened.Get("cookie_key")
	assert.True(t, ok)
	assert.Equal(t, []byte{0xde, 0xad}, v)

	reopened.Delete("cookie_key")
	final, err := OpenFileJar(path)
	require.NoError(t, err)
	_, ok = final.Get("cookie_key")
	assert.False(t, ok)
}

func TestFileJarExpiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")

	jar, err := OpenFileJar(path)
	require.NoError(t, err)
	jar.Set("short", []byte("lived"), time.Nanosecond, false)

	time.Sleep(10 * time.Millisecond)
	_, ok := jar.Get("short")
	assert.False(t, ok)
}
