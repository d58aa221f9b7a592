package tasks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/seedmix/internal/models"
	"github.com/desertthunder/seedmix/internal/services"
	"github.com/desertthunder/seedmix/internal/shared"
	tu "github.com/desertthunder/seedmix/internal/testing"
)

type mockAPI struct {
	recent       []models.Track
	recs         []models.Track
	created      *models.Playlist
	playlist     *models.Playlist
	deleted      bool
	snapshot     string
	recentErr    error
	recsErr      error
	createErr    error
	populateErr  error
	playlistErr  error
	deleteErr    error
	calls        []string
	recentLimit  int
	recsSeeds    []models.Track
	recsLimit    int
	createName   string
	populated    []models.Track
	sessionToken string
}

func (m *mockAPI) CurrentUser(ctx context.Context) (*services.User, error) {
	m.calls = append(m.calls, "me")
	return &services.User{ID: "user-1"}, nil
}

func (m *mockAPI) RecentTracks(ctx context.Context, limit int) ([]models.Track, error) {
	m.calls = append(m.calls, "recent")
	m.recentLimit = limit
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	if limit < len(m.recent) {
		return m.recent[:limit], nil
	}
	return m.recent, nil
}

func (m *mockAPI) Recommendations(ctx context.Context, seeds []models.Track, limit int) ([]models.Track, error) {
	m.calls = append(m.calls, "recommendations")
	m.recsSeeds, m.recsLimit = seeds, limit
	if m.recsErr != nil {
		return nil, m.recsErr
	}
	return m.recs, nil
}

func (m *mockAPI) CreatePlaylist(ctx context.Context, name string) (*models.Playlist, error) {
	m.calls = append(m.calls, "create")
	m.createName = name
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.created, nil
}

func (m *mockAPI) PopulatePlaylist(ctx context.Context, playlist *models.Playlist, tracks []models.Track) (*services.Snapshot, error) {
	m.calls = append(m.calls, "populate")
	m.populated = tracks
	if m.populateErr != nil {
		return nil, m.populateErr
	}
	return &services.Snapshot{ID: m.snapshot}, nil
}

func (m *mockAPI) Playlist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	m.calls = append(m.calls, "playlist")
	if m.playlistErr != nil {
		return nil, m.playlistErr
	}
	return m.playlist, nil
}

func (m *mockAPI) DeletePlaylist(ctx context.Context, playlistID string) (bool, error) {
	m.calls = append(m.calls, "delete")
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	return m.deleted, nil
}

type mockTokenManager struct {
	refreshErr   error
	refreshCalls int
	exchangeErr  error
	expiresIn    time.Duration
	clock        *tu.Clock
}

func (m *mockTokenManager) AuthURL(state string) string {
	return "https://accounts.example.com/authorize?state=" + state
}

func (m *mockTokenManager) Exchange(ctx context.Context, code string) (*models.Session, error) {
	if m.exchangeErr != nil {
		return nil, m.exchangeErr
	}
	return &models.Session{AccessToken: "access-" + code, RefreshToken: "refresh", UserID: "user-1"}, nil
}

func (m *mockTokenManager) Refresh(ctx context.Context, session *models.Session) error {
	m.refreshCalls++
	if m.refreshErr != nil {
		return m.refreshErr
	}
	session.AccessToken = "refreshed"
	session.ExpiresAt = m.clock.Now().Add(m.expiresIn)
	return nil
}

var (
	recentTracks = []models.Track{
		{ID: "t1", Name: "One", Artist: "A1"},
		{ID: "t2", Name: "Two", Artist: "A2"},
		{ID: "t3", Name: "Three", Artist: "A3"},
		{ID: "t4", Name: "Four", Artist: "A4"},
		{ID: "t5", Name: "Five", Artist: "A5"},
		{ID: "t6", Name: "Six", Artist: "A6"},
	}
	recommended = []models.Track{
		{ID: "r1", Name: "Rec One", Artist: "X"},
		{ID: "r2", Name: "Rec Two", Artist: "Y"},
	}
)

type fixture struct {
	mixer *Mixer
	api   *mockAPI
	auth  *mockTokenManager
	clock *tu.Clock
}

func newFixture() *fixture {
	clock := tu.NewClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	api := &mockAPI{
		recent:   recentTracks,
		recs:     recommended,
		created:  &models.Playlist{ID: "p1", Name: "My Mix", URL: "https://open.spotify.com/p1"},
		playlist: &models.Playlist{ID: "p1", Name: "My Mix", URL: "https://open.spotify.com/p1"},
		deleted:  true,
		snapshot: "snap-1",
	}
	auth := &mockTokenManager{expiresIn: time.Hour, clock: clock}

	mixer := NewMixer(auth, func(s *models.Session) services.API {
		api.sessionToken = s.AccessToken
		return api
	}, log.New(io.Discard))
	mixer.SetClock(clock.Now)

	return &fixture{mixer: mixer, api: api, auth: auth, clock: clock}
}

func (f *fixture) session() *models.Session {
	return &models.Session{
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    f.clock.Now().Add(time.Hour),
		UserID:       "user-1",
	}
}

func isValidation(err error) bool {
	var v *services.ValidationError
	return errors.As(err, &v)
}

func TestMixer(t *testing.T) {
	ctx := context.Background()

	t.Run("Fresh", func(t *testing.T) {
		t.Run("valid session is untouched", func(t *testing.T) {
			f := newFixture()
			s := f.session()
			if err := f.mixer.Fresh(ctx, s); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if f.auth.refreshCalls != 0 {
				t.Error("expected no refresh for a valid session")
			}
		})

		t.Run("refreshes at expiry", func(t *testing.T) {
			f := newFixture()
			s := f.session()
			s.ExpiresAt = f.clock.Now()

			if err := f.mixer.Fresh(ctx, s); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if f.auth.refreshCalls != 1 {
				t.Errorf("expected 1 refresh, got %d", f.auth.refreshCalls)
			}
			if s.AccessToken != "refreshed" {
				t.Errorf("expected refreshed token, got %q", s.AccessToken)
			}
		})

		t.Run("refresh failure propagates", func(t *testing.T) {
			f := newFixture()
			f.auth.refreshErr = &services.AuthError{Op: "refresh", StatusCode: 400, Body: `{"error":"invalid_grant"}`}
			s := f.session()
			f.clock.Advance(2 * time.Hour)

			err := f.mixer.Fresh(ctx, s)
			if !services.IsAuthError(err) {
				t.Errorf("expected auth error, got %v", err)
			}
		})

		t.Run("no session", func(t *testing.T) {
			f := newFixture()
			if err := f.mixer.Fresh(ctx, nil); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
			if err := f.mixer.Fresh(ctx, &models.Session{}); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		})
	})

	t.Run("Login", func(t *testing.T) {
		t.Run("exchanges code", func(t *testing.T) {
			f := newFixture()
			s, err := f.mixer.Login(ctx, "abc")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if s.AccessToken != "access-abc" {
				t.Errorf("unexpected session %+v", s)
			}
		})

		t.Run("empty code", func(t *testing.T) {
			f := newFixture()
			if _, err := f.mixer.Login(ctx, " "); !errors.Is(err, shared.ErrMissingArgument) {
				t.Errorf("expected ErrMissingArgument, got %v", err)
			}
		})

		t.Run("exchange failure", func(t *testing.T) {
			f := newFixture()
			f.auth.exchangeErr = &services.AuthError{Op: "exchange", StatusCode: 400}
			if _, err := f.mixer.Login(ctx, "abc"); !services.IsAuthError(err) {
				t.Errorf("expected auth error, got %v", err)
			}
		})
	})

	t.Run("Recent", func(t *testing.T) {
		tc := []struct {
			name      string
			limit     int
			wantLimit int
			wantErr   bool
		}{
			{"default limit", 0, 10, false},
			{"explicit limit", 3, 3, false},
			{"max limit", 50, 50, false},
			{"negative limit", -1, 0, true},
			{"over max", 51, 0, true},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture()
				tracks, err := f.mixer.Recent(ctx, f.session(), tt.limit)

				if tt.wantErr {
					if !isValidation(err) {
						t.Errorf("expected validation error, got %v", err)
					}
					if len(f.api.calls) != 0 {
						t.Errorf("expected no API calls, got %v", f.api.calls)
					}
					return
				}

				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if f.api.recentLimit != tt.wantLimit {
					t.Errorf("expected limit %d, got %d", tt.wantLimit, f.api.recentLimit)
				}
				if len(tracks) > tt.wantLimit {
					t.Errorf("expected at most %d tracks, got %d", tt.wantLimit, len(tracks))
				}
			})
		}

		t.Run("refreshes expired session first", func(t *testing.T) {
			f := newFixture()
			s := f.session()
			f.clock.Advance(time.Hour)

			if _, err := f.mixer.Recent(ctx, s, 3); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if f.api.sessionToken != "refreshed" {
				t.Errorf("expected client bound to refreshed token, got %q", f.api.sessionToken)
			}
		})

		t.Run("api error", func(t *testing.T) {
			f := newFixture()
			f.api.recentErr = &services.APIError{StatusCode: http.StatusUnauthorized, Body: "expired"}

			_, err := f.mixer.Recent(ctx, f.session(), 3)
			var apiErr *services.APIError
			if !errors.As(err, &apiErr) || apiErr.Body != "expired" {
				t.Errorf("expected API error with body, got %v", err)
			}
		})
	})

	t.Run("Mix", func(t *testing.T) {
		t.Run("from seed ids", func(t *testing.T) {
			f := newFixture()
			progress := make(chan ProgressUpdate, 10)

			req := MixRequest{
				Seeds: []models.Track{{ID: "a"}, {ID: "b"}},
				Name:  "  My Mix  ",
			}
			result, err := f.mixer.Mix(ctx, f.session(), req, progress)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if result.Playlist.ID != "p1" || result.SnapshotID != "snap-1" {
				t.Errorf("unexpected result %+v", result)
			}
			if len(result.Tracks) != 2 || result.Tracks[0].ID != "r1" {
				t.Errorf("unexpected tracks %+v", result.Tracks)
			}
			if f.api.createName != "My Mix" {
				t.Errorf("expected trimmed name, got %q", f.api.createName)
			}
			if f.api.recsLimit != 50 {
				t.Errorf("expected default recommendations limit 50, got %d", f.api.recsLimit)
			}
			if len(f.api.populated) != 2 || f.api.populated[1].ID != "r2" {
				t.Errorf("expected recommendations to be added in order, got %+v", f.api.populated)
			}

			want := []string{"recommendations", "create", "populate"}
			if len(f.api.calls) != len(want) {
				t.Fatalf("expected calls %v, got %v", want, f.api.calls)
			}
			for i := range want {
				if f.api.calls[i] != want[i] {
					t.Errorf("expected calls %v, got %v", want, f.api.calls)
				}
			}

			close(progress)
			var phases []Phase
			for u := range progress {
				phases = append(phases, u.Phase)
				if u.Total != 3 {
					t.Errorf("expected 3 total steps, got %d", u.Total)
				}
			}
			if len(phases) != 3 || phases[0] != FetchRecommendations || phases[2] != PopulatePlaylist {
				t.Errorf("unexpected phases %v", phases)
			}
		})

		t.Run("from 1-based indexes", func(t *testing.T) {
			f := newFixture()
			req := MixRequest{SeedIndexes: []int{1, 3}, RecentLimit: 5, Name: "Mix", Limit: 20}

			result, err := f.mixer.Mix(ctx, f.session(), req, nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if f.api.recentLimit != 5 {
				t.Errorf("expected recent limit 5, got %d", f.api.recentLimit)
			}
			if len(f.api.recsSeeds) != 2 || f.api.recsSeeds[0].ID != "t1" || f.api.recsSeeds[1].ID != "t3" {
				t.Errorf("unexpected seeds %+v", f.api.recsSeeds)
			}
			if result.Seeds[1].Name != "Three" {
				t.Errorf("expected resolved seeds in result, got %+v", result.Seeds)
			}
			if f.api.recsLimit != 20 {
				t.Errorf("expected limit 20, got %d", f.api.recsLimit)
			}
		})

		t.Run("index outside recent list", func(t *testing.T) {
			f := newFixture()
			req := MixRequest{SeedIndexes: []int{4}, RecentLimit: 3, Name: "Mix"}

			_, err := f.mixer.Mix(ctx, f.session(), req, nil)
			if !isValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
			for _, c := range f.api.calls {
				if c == "create" {
					t.Error("playlist must not be created for an invalid selection")
				}
			}
		})

		t.Run("index of track without id", func(t *testing.T) {
			f := newFixture()
			f.api.recent = []models.Track{{ID: "t1", Name: "One"}, {Name: "Removed"}}
			req := MixRequest{SeedIndexes: []int{2}, RecentLimit: 2, Name: "Mix"}

			_, err := f.mixer.Mix(ctx, f.session(), req, nil)
			if !isValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
			if f.api.recsSeeds != nil {
				t.Errorf("expected no recommendations request, got seeds %+v", f.api.recsSeeds)
			}
		})

		tc := []struct {
			name string
			req  MixRequest
		}{
			{"no seeds", MixRequest{Name: "Mix"}},
			{"six seeds", MixRequest{Seeds: make([]models.Track, 6), Name: "Mix"}},
			{"six indexes", MixRequest{SeedIndexes: []int{1, 2, 3, 4, 5, 6}, Name: "Mix"}},
			{"empty seed id", MixRequest{Seeds: []models.Track{{ID: ""}}, Name: "Mix"}},
			{"empty name", MixRequest{Seeds: []models.Track{{ID: "a"}}, Name: ""}},
			{"blank name", MixRequest{Seeds: []models.Track{{ID: "a"}}, Name: "   "}},
			{"limit over max", MixRequest{Seeds: []models.Track{{ID: "a"}}, Name: "Mix", Limit: 101}},
			{"negative limit", MixRequest{Seeds: []models.Track{{ID: "a"}}, Name: "Mix", Limit: -5}},
		}

		for _, tt := range tc {
			t.Run("rejects "+tt.name, func(t *testing.T) {
				f := newFixture()
				_, err := f.mixer.Mix(ctx, f.session(), tt.req, nil)
				if !isValidation(err) {
					t.Errorf("expected validation error, got %v", err)
				}
				if !errors.Is(err, shared.ErrInvalidInput) {
					t.Error("expected error to wrap shared.ErrInvalidInput")
				}
				if len(f.api.calls) != 0 {
					t.Errorf("expected no API calls, got %v", f.api.calls)
				}
			})
		}

		t.Run("accepts five seeds", func(t *testing.T) {
			f := newFixture()
			seeds := []models.Track{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}, {ID: "5"}}
			if _, err := f.mixer.Mix(ctx, f.session(), MixRequest{Seeds: seeds, Name: "Mix", Limit: 100}, nil); err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})

		t.Run("no recommendations", func(t *testing.T) {
			f := newFixture()
			f.api.recs = nil

			_, err := f.mixer.Mix(ctx, f.session(), MixRequest{Seeds: []models.Track{{ID: "a"}}, Name: "Mix"}, nil)
			if !errors.Is(err, shared.ErrNoRecommendations) {
				t.Errorf("expected ErrNoRecommendations, got %v", err)
			}
			if len(f.api.calls) != 1 {
				t.Errorf("expected only the recommendations call, got %v", f.api.calls)
			}
		})

		t.Run("create failure is not retried", func(t *testing.T) {
			f := newFixture()
			f.api.createErr = &services.APIError{StatusCode: http.StatusForbidden, Body: "forbidden"}

			_, err := f.mixer.Mix(ctx, f.session(), MixRequest{Seeds: []models.Track{{ID: "a"}}, Name: "Mix"}, nil)
			var apiErr *services.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected API error, got %v", err)
			}

			creates := 0
			for _, c := range f.api.calls {
				if c == "create" {
					creates++
				}
				if c == "populate" {
					t.Error("populate must not run after a failed create")
				}
			}
			if creates != 1 {
				t.Errorf("expected exactly one create call, got %d", creates)
			}
		})

		t.Run("populate failure", func(t *testing.T) {
			f := newFixture()
			f.api.populateErr = &services.APIError{StatusCode: http.StatusInternalServerError, Body: "boom"}

			if _, err := f.mixer.Mix(ctx, f.session(), MixRequest{Seeds: []models.Track{{ID: "a"}}, Name: "Mix"}, nil); err == nil {
				t.Error("expected error")
			}
		})

		t.Run("expired session refresh fails", func(t *testing.T) {
			f := newFixture()
			f.auth.refreshErr = &services.AuthError{Op: "refresh"}
			s := f.session()
			f.clock.Advance(3 * time.Hour)

			_, err := f.mixer.Mix(ctx, s, MixRequest{Seeds: []models.Track{{ID: "a"}}, Name: "Mix"}, nil)
			if !services.IsAuthError(err) {
				t.Errorf("expected auth error, got %v", err)
			}
			if len(f.api.calls) != 0 {
				t.Errorf("expected no API calls, got %v", f.api.calls)
			}
		})

		t.Run("full progress channel does not block", func(t *testing.T) {
			f := newFixture()
			progress := make(chan ProgressUpdate)

			done := make(chan error, 1)
			go func() {
				_, err := f.mixer.Mix(ctx, f.session(), MixRequest{SeedIndexes: []int{2}, Name: "Mix"}, progress)
				done <- err
			}()

			select {
			case err := <-done:
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
			case <-time.After(time.Second):
				t.Fatal("Mix blocked on an unread progress channel")
			}
		})
	})

	t.Run("Playlist", func(t *testing.T) {
		f := newFixture()
		p, err := f.mixer.Playlist(ctx, f.session(), "p1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if p.URL != "https://open.spotify.com/p1" {
			t.Errorf("unexpected playlist %+v", p)
		}

		if _, err := f.mixer.Playlist(ctx, f.session(), ""); !isValidation(err) {
			t.Errorf("expected validation error for empty id, got %v", err)
		}
	})

	t.Run("Confirm", func(t *testing.T) {
		tc := []struct {
			name        string
			action      string
			deleted     bool
			deleteErr   error
			wantDeleted bool
			wantCalls   int
			wantErr     bool
		}{
			{"keep", "keep", true, nil, false, 0, false},
			{"delete 200", "delete", true, nil, true, 1, false},
			{"delete not confirmed", "DELETE", false, nil, false, 1, false},
			{"delete fails", "delete", false, &services.APIError{StatusCode: http.StatusNotFound}, false, 1, true},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture()
				f.api.deleted = tt.deleted
				f.api.deleteErr = tt.deleteErr

				result, err := f.mixer.Confirm(ctx, f.session(), "p1", tt.action)
				if (err != nil) != tt.wantErr {
					t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
				}
				if len(f.api.calls) != tt.wantCalls {
					t.Errorf("expected %d API calls, got %v", tt.wantCalls, f.api.calls)
				}
				if err == nil && result.Deleted != tt.wantDeleted {
					t.Errorf("expected deleted=%v, got %v", tt.wantDeleted, result.Deleted)
				}
			})
		}

		t.Run("unknown action", func(t *testing.T) {
			f := newFixture()
			_, err := f.mixer.Confirm(ctx, f.session(), "p1", "archive")
			if !isValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
			if len(f.api.calls) != 0 {
				t.Errorf("expected no API calls, got %v", f.api.calls)
			}
		})
	})
}

func TestPhaseString(t *testing.T) {
	tc := []struct {
		phase Phase
		want  string
	}{
		{FetchRecent, "fetch_recent"},
		{FetchRecommendations, "fetch_recommendations"},
		{CreatePlaylist, "create_playlist"},
		{PopulatePlaylist, "populate_playlist"},
		{Phase(99), ""},
	}

	for _, tt := range tc {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}
