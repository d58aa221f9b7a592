package repositories

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/seedmix/internal/shared"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func setupStore(t *testing.T) (*SessionStore, *SessionRepository) {
	t.Helper()
	repo, _ := setupRepo(t)
	store := NewSessionStore(repo, log.New(io.Discard), testKey)
	return store, repo
}

// withCookies returns a request carrying the cookies set on rec.
func withCookies(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()

	t.Run("New without cookie", func(t *testing.T) {
		store, _ := setupStore(t)
		s, err := store.New(httptest.NewRequest(http.MethodGet, "/", nil), "seedmix")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !s.IsNew {
			t.Error("expected a new session")
		}
	})

	t.Run("Save and load", func(t *testing.T) {
		store, repo := setupStore(t)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		s, _ := store.Get(req, "seedmix")
		s.Values["access_token"] = "token-123"
		s.Values["expires_at"] = int64(1700000000)

		rec := httptest.NewRecorder()
		if err := s.Save(req, rec); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}
		if s.ID == "" {
			t.Fatal("expected session id to be assigned")
		}

		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Value == s.ID {
			t.Fatalf("expected one signed cookie, got %+v", cookies)
		}
		if !cookies[0].HttpOnly {
			t.Error("expected HttpOnly cookie")
		}

		loaded, err := store.New(withCookies(rec), "seedmix")
		if err != nil {
			t.Fatalf("failed to load session: %v", err)
		}
		if loaded.IsNew {
			t.Error("expected stored session to be loaded")
		}
		if loaded.Values["access_token"] != "token-123" || loaded.Values["expires_at"] != int64(1700000000) {
			t.Errorf("unexpected values %v", loaded.Values)
		}

		if n, _ := repo.Count(ctx); n != 1 {
			t.Errorf("expected 1 row, got %d", n)
		}
	})

	t.Run("MaxAge below zero deletes row", func(t *testing.T) {
		store, repo := setupStore(t)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		s, _ := store.Get(req, "seedmix")
		s.Values["access_token"] = "token-123"
		rec := httptest.NewRecorder()
		if err := s.Save(req, rec); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}

		s.Options.MaxAge = -1
		cleared := httptest.NewRecorder()
		if err := s.Save(req, cleared); err != nil {
			t.Fatalf("failed to clear session: %v", err)
		}

		if n, _ := repo.Count(ctx); n != 0 {
			t.Errorf("expected row to be deleted, got %d rows", n)
		}

		cookies := cleared.Result().Cookies()
		if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
			t.Errorf("expected expired cookie, got %+v", cookies)
		}

		loaded, err := store.New(withCookies(rec), "seedmix")
		if err != nil {
			t.Fatalf("expected no error for a deleted row, got %v", err)
		}
		if !loaded.IsNew || len(loaded.Values) != 0 {
			t.Error("expected an empty new session after logout")
		}
	})

	t.Run("Tampered cookie", func(t *testing.T) {
		store, _ := setupStore(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "seedmix", Value: "forged"})

		s, err := store.New(req, "seedmix")
		if err == nil {
			t.Error("expected decode error")
		}
		if s == nil || !s.IsNew || s.ID != "" {
			t.Error("expected a usable new session")
		}
	})

	t.Run("Expired row", func(t *testing.T) {
		store, repo := setupStore(t)
		store.MaxAge(60)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		s, _ := store.Get(req, "seedmix")
		s.Values["k"] = "v"
		rec := httptest.NewRecorder()
		if err := s.Save(req, rec); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}

		repo.now = func() time.Time { return time.Date(2024, 1, 1, 12, 2, 0, 0, time.UTC) }

		loaded, err := store.New(withCookies(rec), "seedmix")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !loaded.IsNew {
			t.Error("expected expired row to yield a new session")
		}
	})

	t.Run("Outlives access token", func(t *testing.T) {
		repo, clock := setupRepo(t)
		store := NewSessionStore(repo, log.New(io.Discard), testKey)
		store.MaxAge(shared.DefaultConfig().Session.MaxAge)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		s, _ := store.Get(req, "seedmix")
		s.Values["access_token"] = "token-123"
		s.Values["refresh_token"] = "refresh-123"
		s.Values["expires_at"] = clock.Now().Add(shared.TokenLifetime * time.Second).UnixMilli()
		rec := httptest.NewRecorder()
		if err := s.Save(req, rec); err != nil {
			t.Fatalf("failed to save session: %v", err)
		}

		clock.Advance(shared.TokenLifetime*time.Second + time.Minute)

		loaded, err := store.New(withCookies(rec), "seedmix")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if loaded.IsNew {
			t.Fatal("expected session to survive its access token")
		}
		if loaded.Values["refresh_token"] != "refresh-123" {
			t.Errorf("expected refresh token to be kept, got %v", loaded.Values["refresh_token"])
		}
		if exp, _ := loaded.Values["expires_at"].(int64); exp > clock.Now().UnixMilli() {
			t.Errorf("expected access token to be due for refresh, expires_at %d", exp)
		}
	})

	t.Run("PurgeLoop stops on cancel", func(t *testing.T) {
		store, _ := setupStore(t)
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			store.PurgeLoop(ctx, time.Millisecond)
			close(done)
		}()

		time.Sleep(5 * time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("PurgeLoop did not return after cancel")
		}
	})
}
