package tasks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/seedmix/internal/models"
	"github.com/desertthunder/seedmix/internal/services"
	"github.com/desertthunder/seedmix/internal/shared"
)

// Action is the user's decision on a freshly built playlist.
type Action string

const (
	ActionKeep   Action = "keep"
	ActionDelete Action = "delete"
)

// ParseAction parses a confirm action, ignoring case and surrounding space.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionKeep, ActionDelete:
		return a, nil
	default:
		return "", services.Invalid("action", "%q is not one of keep, delete", s)
	}
}

// MixRequest describes the playlist to build.
//
// Seeds takes precedence over SeedIndexes. SeedIndexes are 1-based positions in the list returned by
// [Mixer.Recent] with RecentLimit.
type MixRequest struct {
	Seeds       []models.Track `json:"seeds,omitempty"`
	SeedIndexes []int          `json:"indexes,omitempty"`
	RecentLimit int            `json:"recent_limit,omitempty"`
	Name        string         `json:"name"`
	Limit       int            `json:"limit,omitempty"`
}

// MixResult contains the created playlist and the tracks added to it.
type MixResult struct {
	Playlist   *models.Playlist `json:"playlist"`
	Seeds      []models.Track   `json:"seeds"`
	Tracks     []models.Track   `json:"tracks"`
	SnapshotID string           `json:"snapshot_id,omitempty"`
}

// ConfirmResult reports the outcome of [Mixer.Confirm].
type ConfirmResult struct {
	PlaylistID string `json:"playlist_id"`
	Action     Action `json:"action"`
	Deleted    bool   `json:"deleted"`
}

// ClientFactory builds an API client bound to a session.
type ClientFactory func(session *models.Session) services.API

// NewClientFactory returns a [ClientFactory] producing [services.Client] values for baseURL.
func NewClientFactory(baseURL string, httpClient *http.Client) ClientFactory {
	return func(session *models.Session) services.API {
		return services.NewClient(baseURL, httpClient, session)
	}
}

// Mixer implements the mix flow on top of a token manager and an API client factory.
type Mixer struct {
	auth      services.TokenManager
	newClient ClientFactory
	now       func() time.Time
	logger    *log.Logger
}

// NewMixer creates a Mixer. A nil logger writes to stderr.
func NewMixer(auth services.TokenManager, newClient ClientFactory, logger *log.Logger) *Mixer {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Mixer{
		auth:      auth,
		newClient: newClient,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock replaces the time source used for expiry checks.
func (m *Mixer) SetClock(now func() time.Time) {
	m.now = now
}

// AuthURL returns the provider authorization URL for state.
func (m *Mixer) AuthURL(state string) string {
	return m.auth.AuthURL(state)
}

// Login exchanges an authorization code for a new session.
func (m *Mixer) Login(ctx context.Context, code string) (*models.Session, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	session, err := m.auth.Exchange(ctx, code)
	if err != nil {
		m.logger.Error("token exchange failed", "error", err)
		return nil, err
	}

	m.logger.Info("signed in", "user", session.UserID, "expires_at", session.ExpiresAt)
	return session, nil
}

// Fresh refreshes session in place when its access token has expired.
func (m *Mixer) Fresh(ctx context.Context, session *models.Session) error {
	if session == nil || session.AccessToken == "" {
		return shared.ErrNotAuthenticated
	}
	if !session.IsExpired(m.now()) {
		return nil
	}

	m.logger.Debug("access token expired, refreshing", "user", session.UserID, "expires_at", session.ExpiresAt)
	if err := m.auth.Refresh(ctx, session); err != nil {
		m.logger.Warn("token refresh failed", "user", session.UserID, "error", err)
		return err
	}
	return nil
}

// Recent returns up to limit recently played tracks. A limit of zero selects [services.DefaultRecentLimit].
func (m *Mixer) Recent(ctx context.Context, session *models.Session, limit int) ([]models.Track, error) {
	limit, err := recentLimit(limit)
	if err != nil {
		return nil, err
	}
	if err := m.Fresh(ctx, session); err != nil {
		return nil, err
	}

	tracks, err := m.newClient(session).RecentTracks(ctx, limit)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("fetched recent tracks", "user", session.UserID, "count", len(tracks))
	return tracks, nil
}

// Mix builds a playlist of recommendations seeded from req.
//
// Playlist creation is never retried. When populating fails the empty playlist is left on the account and
// the error is returned.
func (m *Mixer) Mix(ctx context.Context, session *models.Session, req MixRequest, progress chan<- ProgressUpdate) (*MixResult, error) {
	name, limit, err := validateMix(req)
	if err != nil {
		return nil, err
	}
	if err := m.Fresh(ctx, session); err != nil {
		return nil, err
	}

	client := m.newClient(session)
	step, total := 0, 3

	seeds := req.Seeds
	if len(seeds) == 0 {
		total++
		step++
		if seeds, err = m.resolveSeeds(ctx, client, req, step, total, progress); err != nil {
			return nil, err
		}
	}

	step++
	sendProgress(progress, fetchRecommendationsUpdate(step, total, seeds))
	tracks, err := client.Recommendations(ctx, seeds, limit)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, shared.ErrNoRecommendations
	}

	step++
	sendProgress(progress, createPlaylistUpdate(step, total, name))
	playlist, err := client.CreatePlaylist(ctx, name)
	if err != nil {
		return nil, err
	}
	m.logger.Info("playlist created", "user", session.UserID, "playlist", playlist.ID, "name", playlist.Name)

	step++
	sendProgress(progress, populatePlaylistUpdate(step, total, playlist, tracks))
	snap, err := client.PopulatePlaylist(ctx, playlist, tracks)
	if err != nil {
		m.logger.Error("failed to populate playlist", "playlist", playlist.ID, "error", err)
		return nil, err
	}

	m.logger.Info("playlist populated", "playlist", playlist.ID, "tracks", len(tracks), "snapshot", snap.ID)
	return &MixResult{Playlist: playlist, Seeds: seeds, Tracks: tracks, SnapshotID: snap.ID}, nil
}

func (m *Mixer) resolveSeeds(ctx context.Context, client services.API, req MixRequest, step, total int, progress chan<- ProgressUpdate) ([]models.Track, error) {
	limit, err := recentLimit(req.RecentLimit)
	if err != nil {
		return nil, err
	}

	sendProgress(progress, fetchRecentUpdate(step, total, limit))
	recent, err := client.RecentTracks(ctx, limit)
	if err != nil {
		return nil, err
	}

	seeds := make([]models.Track, len(req.SeedIndexes))
	for i, idx := range req.SeedIndexes {
		if idx < 1 || idx > len(recent) {
			return nil, services.Invalid("indexes", "%d is outside 1..%d", idx, len(recent))
		}
		if recent[idx-1].ID == "" {
			return nil, services.Invalid("indexes", "%d has no track id", idx)
		}
		seeds[i] = recent[idx-1]
	}
	return seeds, nil
}

// Playlist returns the name and URL of playlistID for confirmation.
func (m *Mixer) Playlist(ctx context.Context, session *models.Session, playlistID string) (*models.Playlist, error) {
	if strings.TrimSpace(playlistID) == "" {
		return nil, services.Invalid("playlist_id", "must not be empty")
	}
	if err := m.Fresh(ctx, session); err != nil {
		return nil, err
	}
	return m.newClient(session).Playlist(ctx, playlistID)
}

// Confirm applies the user's keep or delete decision to playlistID.
//
// Deleted is true only when the provider answered the unfollow request with 200.
func (m *Mixer) Confirm(ctx context.Context, session *models.Session, playlistID, action string) (*ConfirmResult, error) {
	a, err := ParseAction(action)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(playlistID) == "" {
		return nil, services.Invalid("playlist_id", "must not be empty")
	}
	if err := m.Fresh(ctx, session); err != nil {
		return nil, err
	}

	result := &ConfirmResult{PlaylistID: playlistID, Action: a}
	if a == ActionKeep {
		m.logger.Info("playlist kept", "playlist", playlistID)
		return result, nil
	}

	deleted, err := m.newClient(session).DeletePlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		m.logger.Warn("delete request was not confirmed by provider", "playlist", playlistID)
	}

	result.Deleted = deleted
	return result, nil
}

func recentLimit(limit int) (int, error) {
	if limit == 0 {
		return services.DefaultRecentLimit, nil
	}
	if limit < 1 || limit > services.MaxRecentLimit {
		return 0, services.Invalid("limit", "%d is outside 1..%d", limit, services.MaxRecentLimit)
	}
	return limit, nil
}

// validateMix checks req and returns the trimmed playlist name and effective recommendations limit.
func validateMix(req MixRequest) (string, int, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", 0, services.Invalid("name", "must not be empty")
	}

	n := len(req.Seeds)
	if n == 0 {
		n = len(req.SeedIndexes)
	}
	if n < services.MinSeeds || n > services.MaxSeeds {
		return "", 0, services.Invalid("seeds", "got %d, want %d..%d", n, services.MinSeeds, services.MaxSeeds)
	}
	for _, s := range req.Seeds {
		if strings.TrimSpace(s.ID) == "" {
			return "", 0, services.Invalid("seeds", "track id must not be empty")
		}
	}

	limit := req.Limit
	if limit == 0 {
		limit = services.DefaultRecommendationsLimit
	}
	if limit < 1 || limit > services.MaxRecommendationsLimit {
		return "", 0, services.Invalid("limit", "%d is outside 1..%d", limit, services.MaxRecommendationsLimit)
	}

	return name, limit, nil
}
