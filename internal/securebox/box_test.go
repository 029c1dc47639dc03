package securebox

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securebox/securebox/internal/crypto"
	"github.com/securebox/securebox/internal/domain"
	"github.com/securebox/securebox/internal/session"
	"github.com/securebox/securebox/internal/store"
)

// fastKDF keeps logins fast in tests. Not a valid production setting.
var fastKDF = crypto.Params{Memory: 1024, Iterations: 1, Parallelism: 1}

var testServerSecret = []byte("test server secret")

type env struct {
	t        *testing.T
	store    *store.BoltStore
	sessions *session.MemoryStore
	jar      *session.MemoryJar
	user     *domain.User
	sessID   string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "box.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hash, err := crypto.HashPassword("pw1", fastKDF)
	require.NoError(t, err)
	user, err := st.CreateUser("alice", hash)
	require.NoError(t, err)

	return &env{
		t:        t,
		store:    st,
		sessions: session.NewMemoryStore(session.DeriveAuthKey(testServerSecret)),
		jar:      session.NewMemoryJar(),
		user:     user,
		sessID:   session.NewID(),
	}
}

// run executes fn with a fresh Box over the shared session, saving the
// session afterwards. Each call models one request.
func (e *env) run(fn func(b *Box)) {
	e.t.Helper()

	s, err := e.sessions.Open(e.sessID)
	require.NoError(e.t, err)

	b := New(e.store, s, e.jar, e.user, Options{
		ServerSecret: testServerSecret,
		KDF:          fastKDF,
	})
	fn(b)

	require.NoError(e.t, e.sessions.Save(s))
}

func (e *env) login(password string) {
	e.run(func(b *Box) {
		require.NoError(e.t, b.Login(password))
	})
}

func TestPermanentRoundTripAcrossRequests(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")

	e.run(func(b *Box) {
		require.NoError(t, b.Store("api-token", "hunter2", PermanentOnly))
	})

	// A later request recovers the master key from the session cache.
	e.run(func(b *Box) {
		v, err := b.Fetch("api-token", PermanentOnly)
		require.NoError(t, err)
		assert.Equal(t, "hunter2", v)
	})
}

func TestNumericValuesRoundTrip(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")

	e.run(func(b *Box) {
		require.NoError(t, b.Store("retries", 42, PermanentOnly))
	})
	e.run(func(b *Box) {
		v, err := b.Fetch("retries", PermanentOnly)
		require.NoError(t, err)
		assert.EqualValues(t, 42, v)
	})
}

func TestSingleTierPoliciesEvictOtherTier(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")

	e.run(func(b *Box) {
		require.NoError(t, b.Store("k", "permanent", PermanentOnly))
		require.NoError(t, b.Store("k", "transient", TransientOnly))

		// The permanent copy is gone; the name lives in one place.
		_, err := b.Fetch("k", PermanentOnly)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		v, err := b.Fetch("k", TransientOnly)
		require.NoError(t, err)
		assert.Equal(t, "transient", v)

		require.NoError(t, b.Store("k", "permanent again", PermanentOnly))
		_, err = b.Fetch("k", TransientOnly)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestTwoTierStoreUpdatesInPlace(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")

	e.run(func(b *Box) {
		require.NoError(t, b.Store("perm", "v1", PermanentOnly))
		require.NoError(t, b.Store("trans", "v1", TransientOnly))

		// Updates land wherever the entry already lives, under either
		// two-tier policy.
		require.NoError(t, b.Store("perm", "v2", TransientThenPermanent))
		require.NoError(t, b.Store("trans", "v2", PermanentThenTransient))

		v, err := b.Fetch("perm", PermanentOnly)
		require.NoError(t, err)
		assert.Equal(t, "v2", v)
		_, err = b.Fetch("perm", TransientOnly)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		v, err = b.Fetch("trans", TransientOnly)
		require.NoError(t, err)
		assert.Equal(t, "v2", v)
		_, err = b.Fetch("trans", PermanentOnly)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestTwoTierStoreCreatesInPreferredTier(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")

	e.run(func(b *Box) {
		require.NoError(t, b.Store("a", "v", TransientThenPermanent))
		assert.True(t, b.Has("a", TransientOnly))
		assert.False(t, b.Has("a", PermanentOnly))

		require.NoError(t, b.Store("b", "v", PermanentThenTransient))
		assert.True(t, b.Has("b", PermanentOnly))
		assert.False(t, b.Has("b", TransientOnly))
	})
}

func TestFetchDefault(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")

	e.run(func(b *Box) {
		v, err := b.FetchDefault("absent", TransientThenPermanent, "fallback")
		require.NoError(t, err)
		assert.Equal(t, "fallback", v)

		require.NoError(t, b.Store("present", "real", TransientOnly))
		v, err = b.FetchDefault("present", TransientThenPermanent, "fallback")
		require.NoError(t, err)
		assert.Equal(t, "real", v)
	})
}

func TestDeletePolicies(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")

	e.run(func(b *Box) {
		// TransientThenPermanent falls through to the permanent copy when
		// no transient one exists.
		require.NoError(t, b.Store("p", "v", PermanentOnly))
		require.NoError(t, b.Delete("p", TransientThenPermanent))
		assert.False(t, b.Has("p", TransientThenPermanent))

		// Tier-restricted deletes leave the other tier alone.
		require.NoError(t, b.Store("q", "v", PermanentOnly))
		require.NoError(t, b.Delete("q", TransientOnly))
		assert.True(t, b.Has("q", PermanentOnly))

		require.NoError(t, b.Delete("q", All))
		assert.False(t, b.Has("q", TransientThenPermanent))

		// Deleting an absent name is fine.
		require.NoError(t, b.Delete("never-stored", All))
	})
}

func TestKeysAndItems(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")

	e.run(func(b *Box) {
		require.NoError(t, b.Store("zeta", "zv", TransientOnly))
		require.NoError(t, b.Store("alpha", "av", PermanentOnly))
		require.NoError(t, b.Store("mid", "mv", PermanentOnly))

		keys, err := b.Keys()
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "mid", "zeta"}, keys)

		got := map[string]any{}
		require.NoError(t, b.Items(func(name string, value any) bool {
			got[name] = value
			return true
		}))
		assert.Equal(t, map[string]any{"alpha": "av", "mid": "mv", "zeta": "zv"}, got)

		// Early stop.
		var visited []string
		require.NoError(t, b.Items(func(name string, _ any) bool {
			visited = append(visited, name)
			return false
		}))
		assert.Equal(t, []string{"alpha"}, visited)
	})
}

func TestLockedPermanentTierIsInvisibleButIntact(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")
	e.run(func(b *Box) {
		require.NoError(t, b.Store("secret", "payload", PermanentOnly))
	})

	e.run(func(b *Box) {
		b.Logout()
		_, err := b.Fetch("secret", PermanentOnly)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		// Storing needs the master key too.
		err = b.Store("other", "v", PermanentOnly)
		assert.ErrorIs(t, err, domain.ErrUnavailable)
	})

	// Nothing was healed away while locked.
	e.login("pw1")
	e.run(func(b *Box) {
		v, err := b.Fetch("secret", PermanentOnly)
		require.NoError(t, err)
		assert.Equal(t, "payload", v)
	})
}

func TestTamperedCookieLocksPermanentTier(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")
	e.run(func(b *Box) {
		require.NoError(t, b.Store("secret", "payload", PermanentOnly))
	})

	good, ok := e.jar.Get(CookieName)
	require.True(t, ok)
	bad := append([]byte(nil), good...)
	bad[0] ^= 0x01
	e.jar.Set(CookieName, bad, 0, true)

	// The session's cached master key no longer decrypts; the entry is
	// unreachable but untouched.
	e.run(func(b *Box) {
		_, err := b.Fetch("secret", PermanentOnly)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	e.jar.Set(CookieName, good, 0, true)
	e.run(func(b *Box) {
		v, err := b.Fetch("secret", PermanentOnly)
		require.NoError(t, err)
		assert.Equal(t, "payload", v)
	})
}

func TestLoginWithDifferentPasswordResetsHierarchy(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")
	e.run(func(b *Box) {
		require.NoError(t, b.Store("secret", "payload", PermanentOnly))
	})

	// A wrap key derived from a different password cannot unwrap the
	// master key; login succeeds by resetting the hierarchy instead of
	// failing.
	e.login("pw2")
	e.run(func(b *Box) {
		_, err := b.Fetch("secret", PermanentOnly)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		// The fresh hierarchy is fully usable.
		require.NoError(t, b.Store("new-secret", "v", PermanentOnly))
		v, err := b.Fetch("new-secret", PermanentOnly)
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	})
}

func TestResetKeysWipesEverything(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")
	e.run(func(b *Box) {
		require.NoError(t, b.Store("a", "v", PermanentOnly))
		require.NoError(t, b.Store("b", "v", PermanentOnly))
	})

	e.run(func(b *Box) {
		require.NoError(t, b.ResetKeys("pw1"))
		keys, err := b.Keys()
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	// Orphaned objects were reaped, not just unlinked.
	n, err := e.store.ReapOrphans()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCorruptPayloadSelfHeals(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")
	e.run(func(b *Box) {
		require.NoError(t, b.Store("secret", "payload", PermanentOnly))
	})

	link, err := e.store.GetLink("alice", "secret")
	require.NoError(t, err)
	obj, err := e.store.GetObject(link.ObjectID)
	require.NoError(t, err)
	obj.Ciphertext[len(obj.Ciphertext)-1] ^= 0x01
	require.NoError(t, e.store.PutLinkAndObject(link, obj))

	e.run(func(b *Box) {
		_, err := b.Fetch("secret", PermanentOnly)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	// Both the object and the link are gone.
	_, err = e.store.GetLink("alice", "secret")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = e.store.GetObject(link.ObjectID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCorruptWrappedObjectKeySelfHeals(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")
	e.run(func(b *Box) {
		require.NoError(t, b.Store("secret", "payload", PermanentOnly))
	})

	link, err := e.store.GetLink("alice", "secret")
	require.NoError(t, err)
	obj, err := e.store.GetObject(link.ObjectID)
	require.NoError(t, err)
	link.WrappedObjectKey[0] ^= 0x01
	require.NoError(t, e.store.PutLinkAndObject(link, obj))

	e.run(func(b *Box) {
		_, err := b.Fetch("secret", PermanentOnly)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	// The link is gone and the now-orphaned object was reaped with it.
	_, err = e.store.GetLink("alice", "secret")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = e.store.GetObject(link.ObjectID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnonymousSessionUsesTransientTier(t *testing.T) {
	e := newEnv(t)
	e.user = nil

	e.run(func(b *Box) {
		require.NoError(t, b.Store("scratch", "v", TransientOnly))
	})
	e.run(func(b *Box) {
		v, err := b.Fetch("scratch", TransientOnly)
		require.NoError(t, err)
		assert.Equal(t, "v", v)

		// No permanent tier without a user.
		err = b.Store("scratch", "v", PermanentOnly)
		assert.ErrorIs(t, err, domain.ErrUnavailable)
	})
}

func TestLogoutOrphansTransientValues(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")
	e.run(func(b *Box) {
		require.NoError(t, b.Store("scratch", "v", TransientOnly))
	})

	e.run(func(b *Box) {
		b.Logout()
	})

	// The derivation inputs changed, so the ciphertext no longer opens;
	// the entry heals away.
	e.run(func(b *Box) {
		_, err := b.Fetch("scratch", TransientOnly)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		keys, err := b.Keys()
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestUpdateOnlyNeverCreates(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")

	e.run(func(b *Box) {
		// Two-tier stores on an absent name create in the preferred tier,
		// never in the fallback one.
		require.NoError(t, b.Store("fresh", "v", PermanentThenTransient))
		assert.False(t, b.Has("fresh", TransientOnly))

		// A healed-away entry no longer counts as existing.
		require.NoError(t, b.Store("gone", "v", TransientOnly))
		b.Logout()
	})
	e.login("pw1")
	e.run(func(b *Box) {
		require.NoError(t, b.Store("gone", "v2", TransientThenPermanent))
		// Created fresh in the preferred tier.
		v, err := b.Fetch("gone", TransientOnly)
		require.NoError(t, err)
		assert.Equal(t, "v2", v)
	})
}

func TestEndToEndLifecycle(t *testing.T) {
	e := newEnv(t)

	e.login("pw1")
	e.run(func(b *Box) {
		require.NoError(t, b.Store("secret", 42, PermanentThenTransient))
	})

	// Logout, then a brand-new session with the right password.
	e.run(func(b *Box) { b.Logout() })
	e.sessID = session.NewID()
	e.login("pw1")
	e.run(func(b *Box) {
		v, err := b.Fetch("secret", TransientThenPermanent)
		require.NoError(t, err)
		assert.EqualValues(t, 42, v)
	})

	// A wrong password on a fresh session cannot unwrap the master key;
	// the hierarchy resets and the secret is gone.
	e.sessID = session.NewID()
	e.jar = session.NewMemoryJar()
	e.login("pw2")
	e.run(func(b *Box) {
		_, err := b.Fetch("secret", TransientThenPermanent)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestTransientValueDiesWithSession(t *testing.T) {
	e := newEnv(t)
	e.user = nil

	e.run(func(b *Box) {
		require.NoError(t, b.Store("temp", "x", TransientOnly))
		v, err := b.Fetch("temp", TransientOnly)
		require.NoError(t, err)
		assert.Equal(t, "x", v)
	})

	// Session destroyed: the value leaves no trace anywhere.
	e.sessID = session.NewID()
	e.run(func(b *Box) {
		_, err := b.Fetch("temp", TransientThenPermanent)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
	n, err := e.store.ReapOrphans()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStructuredValuesRoundTrip(t *testing.T) {
	e := newEnv(t)
	e.login("pw1")

	e.run(func(b *Box) {
		in := map[string]any{"host": "db.internal", "port": 5432}
		require.NoError(t, b.Store("dsn", in, PermanentOnly))
	})
	e.run(func(b *Box) {
		v, err := b.Fetch("dsn", PermanentOnly)
		require.NoError(t, err)
		m, ok := v.(map[any]any)
		if !ok {
			// Decoder may surface string-keyed maps directly.
			m2, ok2 := v.(map[string]any)
			require.True(t, ok2)
			assert.Equal(t, "db.internal", m2["host"])
			assert.EqualValues(t, 5432, m2["port"])
			return
		}
		assert.Equal(t, "db.internal", m["host"])
		assert.EqualValues(t, 5432, m["port"])
	})
}
