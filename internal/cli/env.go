package cli

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/securebox/securebox/internal/domain"
	"github.com/securebox/securebox/internal/securebox"
	"github.com/securebox/securebox/internal/session"
	"github.com/securebox/securebox/internal/store"
)

const (
	// sessionCookie carries the session ID, like a browser session cookie.
	sessionCookie = "securebox_session_id"
	// sessionUserKey holds the logged-in username inside the session.
	sessionUserKey = "_securebox_auth_user"
)

// Env is the per-invocation request environment: config, open store,
// session, cookie jar, current user, and the secure box bound to them.
// Each CLI invocation models one request.
type Env struct {
	Store    *store.BoltStore
	Sessions session.Store
	Jar      *session.FileJar
	Sess     *session.Session
	User     *domain.User
	Box      *securebox.Box

	serverSecret []byte
	destroyed    bool
}

// openEnv builds the environment from the loaded config.
func openEnv() (*Env, error) {
	secret, err := cfg.ServerSecretBytes()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, err
	}

	jar, err := session.OpenFileJar(cfg.CookieJarPath)
	if err != nil {
		st.Close()
		return nil, err
	}

	sessions, err := session.NewFileStore(cfg.SessionDir, session.DeriveAuthKey(secret))
	if err != nil {
		st.Close()
		return nil, err
	}

	var id string
	if raw, ok := jar.Get(sessionCookie); ok {
		id = string(raw)
	} else {
		id = session.NewID()
		jar.Set(sessionCookie, []byte(id), 0, true)
	}

	sess, err := sessions.Open(id)
	if err != nil {
		st.Close()
		return nil, err
	}

	e := &Env{
		Store:        st,
		Sessions:     sessions,
		Jar:          jar,
		Sess:         sess,
		serverSecret: secret,
	}

	if name, ok := sess.Get(sessionUserKey); ok {
		user, err := st.GetUser(string(name))
		switch {
		case errors.Is(err, domain.ErrUserNotFound):
			sess.Delete(sessionUserKey)
		case err != nil:
			st.Close()
			return nil, err
		default:
			e.User = user
		}
	}

	e.Box = e.boxFor(e.User)
	return e, nil
}

func (e *Env) boxFor(user *domain.User) *securebox.Box {
	return securebox.New(e.Store, e.Sess, e.Jar, user, securebox.Options{
		ServerSecret: e.serverSecret,
		KDF:          cfg.KDF,
	})
}

// SetUser records the logged-in user in the session and rebinds the box.
func (e *Env) SetUser(user *domain.User) {
	e.Sess.Set(sessionUserKey, []byte(user.Name))
	e.User = user
	e.Box = e.boxFor(user)
}

// RequireUser returns the logged-in user or a login hint.
func (e *Env) RequireUser() (*domain.User, error) {
	if e.User == nil {
		return nil, fmt.Errorf("not logged in: %w", domain.ErrUnavailable)
	}
	return e.User, nil
}

// DestroySession removes the session snapshot and the session cookie. The
// next invocation starts a fresh session.
func (e *Env) DestroySession() error {
	e.destroyed = true
	e.Jar.Delete(sessionCookie)
	return e.Sessions.Destroy(e.Sess.ID())
}

// Close persists the session if it changed and releases the store.
func (e *Env) Close() {
	if !e.destroyed && e.Sess.Modified() {
		if err := e.Sessions.Save(e.Sess); err != nil {
			log.Warn().Err(err).Msg("failed to save session")
		}
	}
	if err := e.Store.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close store")
	}
}
