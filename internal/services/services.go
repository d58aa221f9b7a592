// package services defines the Spotify token manager and API client
package services

import (
	"context"

	"github.com/desertthunder/seedmix/internal/models"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
)

const (
	DefaultRecentLimit          = 10
	MaxRecentLimit              = 50
	DefaultRecommendationsLimit = 50
	MaxRecommendationsLimit     = 100
	MinSeeds                    = 1
	MaxSeeds                    = 5

	playlistDescription = "Recommended songs"
	spotifyBaseURL      = "https://api.spotify.com/v1"
)

// Scopes are the OAuth scopes requested at login.
var Scopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopeUserReadEmail,
	spotifyauth.ScopeUserReadRecentlyPlayed,
	spotifyauth.ScopePlaylistModifyPublic,
}

// Endpoints holds the provider URLs. Tests point these at an [httptest.Server].
type Endpoints struct {
	AuthURL    string
	TokenURL   string
	APIBaseURL string
}

// DefaultEndpoints returns the production Spotify endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		AuthURL:    spotifyauth.AuthURL,
		TokenURL:   spotifyauth.TokenURL,
		APIBaseURL: spotifyBaseURL,
	}
}

// API is the set of provider operations the mix flow drives. [*Client] implements it.
type API interface {
	CurrentUser(ctx context.Context) (*User, error)
	RecentTracks(ctx context.Context, limit int) ([]models.Track, error)
	Recommendations(ctx context.Context, seeds []models.Track, limit int) ([]models.Track, error)
	CreatePlaylist(ctx context.Context, name string) (*models.Playlist, error)
	PopulatePlaylist(ctx context.Context, playlist *models.Playlist, tracks []models.Track) (*Snapshot, error)
	Playlist(ctx context.Context, playlistID string) (*models.Playlist, error)
	DeletePlaylist(ctx context.Context, playlistID string) (bool, error)
}

// TokenManager issues and refreshes sessions. [*Authenticator] implements it.
type TokenManager interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*models.Session, error)
	Refresh(ctx context.Context, session *models.Session) error
}

var (
	_ API          = (*Client)(nil)
	_ TokenManager = (*Authenticator)(nil)
)
