package repositories

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/seedmix/internal/shared"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

// SessionStore is a [sessions.Store] backed by a [SessionRepository].
//
// The cookie carries only the signed session id; values are serialized with gob into the sessions table.
type SessionStore struct {
	Codecs  []securecookie.Codec
	Options *sessions.Options

	repo       *SessionRepository
	serializer securecookie.GobEncoder
	logger     *log.Logger
}

var _ sessions.Store = (*SessionStore)(nil)

// NewSessionStore creates a store using keyPairs to sign the session id cookie, as [sessions.NewCookieStore] does.
func NewSessionStore(repo *SessionRepository, logger *log.Logger, keyPairs ...[]byte) *SessionStore {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SessionStore{
		Codecs: securecookie.CodecsFromPairs(keyPairs...),
		Options: &sessions.Options{
			Path:     "/",
			MaxAge:   86400 * 30,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		repo:   repo,
		logger: logger,
	}
}

// MaxAge sets the maximum age of the store's cookies and of new session rows.
func (s *SessionStore) MaxAge(age int) {
	s.Options.MaxAge = age
	for _, c := range s.Codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.MaxAge(age)
		}
	}
}

// Get returns a session for the given name after adding it to the registry.
func (s *SessionStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New returns the session named by the request cookie, or a new session when there is no cookie or no live row.
//
// A cookie that fails verification is reported as an error alongside a usable new session.
func (s *SessionStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}

	if err := securecookie.DecodeMulti(name, c.Value, &session.ID, s.Codecs...); err != nil {
		session.ID = ""
		return session, fmt.Errorf("failed to decode session cookie: %w", err)
	}

	if err := s.load(r.Context(), session); err != nil {
		if errors.Is(err, shared.ErrSessionNotFound) {
			return session, nil
		}
		return session, err
	}

	session.IsNew = false
	return session, nil
}

// Save writes the session row and its id cookie. A session with MaxAge < 0 is deleted and its cookie expired.
func (s *SessionStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	ctx := r.Context()

	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.repo.Delete(ctx, session.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = shared.GenerateID()
	}

	data, err := s.serializer.Serialize(session.Values)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}

	rec := &SessionRecord{
		ID:        session.ID,
		Data:      data,
		ExpiresAt: s.repo.now().Add(time.Duration(session.Options.MaxAge) * time.Second),
	}
	if err := s.repo.Save(ctx, rec); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.Codecs...)
	if err != nil {
		return fmt.Errorf("failed to encode session cookie: %w", err)
	}

	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

func (s *SessionStore) load(ctx context.Context, session *sessions.Session) error {
	rec, err := s.repo.Get(ctx, session.ID)
	if err != nil {
		return err
	}
	if err := s.serializer.Deserialize(rec.Data, &session.Values); err != nil {
		return fmt.Errorf("failed to deserialize session: %w", err)
	}
	return nil
}

// PurgeLoop deletes expired rows every interval until ctx is cancelled.
func (s *SessionStore) PurgeLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.repo.PurgeExpired(ctx)
			if err != nil {
				s.logger.Error("failed to purge expired sessions", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("purged expired sessions", "count", n)
			}
		}
	}
}
