package web

import (
	"net/http"
	"time"

	"github.com/desertthunder/seedmix/internal/models"
	"github.com/desertthunder/seedmix/internal/shared"
	"github.com/gorilla/sessions"
)

// SessionName is the cookie name used for the web session.
const SessionName = "seedmix"

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyExpiresAt    = "expires_at"
	keyUserID       = "user_id"
	keyState        = "state"
)

// SessionOptions returns cookie options for the web session.
func SessionOptions(maxAge int, secure bool) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewCookieStore returns a signed cookie store holding session values in the cookie itself.
func NewCookieStore(secret []byte, opts *sessions.Options) *sessions.CookieStore {
	store := sessions.NewCookieStore(secret)
	store.Options = opts
	store.MaxAge(opts.MaxAge)
	return store
}

// SessionManager maps [models.Session] to and from a gorilla [sessions.Store].
type SessionManager struct {
	store sessions.Store
	name  string
}

// NewSessionManager creates a manager for sessions named name in store.
func NewSessionManager(store sessions.Store, name string) *SessionManager {
	if name == "" {
		name = SessionName
	}
	return &SessionManager{store: store, name: name}
}

// session returns the raw session. A cookie that fails verification yields an empty session.
func (m *SessionManager) session(r *http.Request) *sessions.Session {
	s, err := m.store.Get(r, m.name)
	if err != nil && s == nil {
		s = sessions.NewSession(m.store, m.name)
	}
	return s
}

// Load returns the signed-in session, or nil when the request carries none.
func (m *SessionManager) Load(r *http.Request) *models.Session {
	s := m.session(r)

	access, _ := s.Values[keyAccessToken].(string)
	if access == "" {
		return nil
	}

	session := &models.Session{AccessToken: access}
	session.RefreshToken, _ = s.Values[keyRefreshToken].(string)
	session.UserID, _ = s.Values[keyUserID].(string)
	if ms, ok := s.Values[keyExpiresAt].(int64); ok {
		session.ExpiresAt = time.UnixMilli(ms)
	}
	return session
}

// Save stores session in the cookie session, dropping any pending login state.
func (m *SessionManager) Save(w http.ResponseWriter, r *http.Request, session *models.Session) error {
	s := m.session(r)
	s.Values[keyAccessToken] = session.AccessToken
	s.Values[keyRefreshToken] = session.RefreshToken
	s.Values[keyExpiresAt] = session.ExpiresAt.UnixMilli()
	s.Values[keyUserID] = session.UserID
	delete(s.Values, keyState)
	return s.Save(r, w)
}

// SetState stores the OAuth state for the login in progress.
func (m *SessionManager) SetState(w http.ResponseWriter, r *http.Request, state string) error {
	s := m.session(r)
	s.Values[keyState] = state
	return s.Save(r, w)
}

// PopState returns and removes the stored OAuth state.
func (m *SessionManager) PopState(w http.ResponseWriter, r *http.Request) (string, error) {
	s := m.session(r)
	state, _ := s.Values[keyState].(string)
	if state == "" {
		return "", shared.ErrStateMismatch
	}

	delete(s.Values, keyState)
	if err := s.Save(r, w); err != nil {
		return "", err
	}
	return state, nil
}

// Clear invalidates the session and expires its cookie.
func (m *SessionManager) Clear(w http.ResponseWriter, r *http.Request) error {
	s := m.session(r)
	for k := range s.Values {
		delete(s.Values, k)
	}
	s.Options.MaxAge = -1
	return s.Save(r, w)
}
