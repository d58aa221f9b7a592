// Spotify Web API client
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/seedmix/internal/models"
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// User is the subset of the current user's profile the app needs.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

type spotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// spotifyTrack is the track object shared by the recently-played and recommendations responses.
type spotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []spotifyArtist `json:"artists"`
	URI     string          `json:"uri"`
}

func (t spotifyTrack) model() models.Track {
	track := models.Track{ID: t.ID, Name: t.Name}
	if len(t.Artists) > 0 {
		track.Artist = t.Artists[0].Name
	}
	return track
}

type recentlyPlayed struct {
	Items []struct {
		Track    spotifyTrack `json:"track"`
		PlayedAt string       `json:"played_at"`
	} `json:"items"`
}

type recommendations struct {
	Tracks []spotifyTrack `json:"tracks"`
}

type spotifyPlaylist struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	ExternalURLs externalURLs `json:"external_urls"`
}

type createPlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
}

// Snapshot is the provider's reply to a playlist mutation.
type Snapshot struct {
	ID  string // snapshot_id
	Raw []byte
}

// Client performs Spotify Web API calls with the access token of a single session.
//
// Client does not check token freshness; callers refresh expired sessions first.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *models.Session
}

// NewClient creates a client bound to session. An empty baseURL selects the production API and a nil
// httpClient selects [http.DefaultClient].
func NewClient(baseURL string, httpClient *http.Client, session *models.Session) *Client {
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		session:    session,
	}
}

type response struct {
	status int
	body   []byte
}

// do performs an authenticated request and returns the status and body without judging the status.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) (*response, error) {
	if c.session == nil || c.session.AccessToken == "" {
		return nil, fmt.Errorf("not authenticated: missing access token")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.session.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &response{status: resp.StatusCode, body: data}, nil
}

// doRequest performs an authenticated request, failing with [*APIError] on a non-2xx status, and decodes the
// response into result when result is non-nil.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body, result any) (*response, error) {
	resp, err := c.do(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	if resp.status < 200 || resp.status >= 300 {
		return resp, &APIError{
			Method:     method,
			Path:       pathOnly(endpoint),
			StatusCode: resp.status,
			Body:       string(resp.body),
		}
	}

	if result != nil && len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, result); err != nil {
			return resp, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp, nil
}

func pathOnly(endpoint string) string {
	p, _, _ := strings.Cut(endpoint, "?")
	return p
}

// CurrentUser retrieves the profile of the session's user (GET /me).
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if _, err := c.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// RecentTracks returns up to limit recently played tracks, most recent first as ordered by the provider.
//
// A limit of zero selects [DefaultRecentLimit].
func (c *Client) RecentTracks(ctx context.Context, limit int) ([]models.Track, error) {
	if limit == 0 {
		limit = DefaultRecentLimit
	}

	var played recentlyPlayed
	endpoint := "/me/player/recently-played?limit=" + strconv.Itoa(limit)
	if _, err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &played); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(played.Items))
	for _, item := range played.Items {
		if len(tracks) == limit {
			break
		}
		// Plays of removed or local tracks come back with a null track.
		if item.Track.ID == "" {
			continue
		}
		tracks = append(tracks, item.Track.model())
	}
	return tracks, nil
}

// Recommendations returns tracks recommended from the seed tracks, in provider order.
//
// Seed count is not validated here; the provider rejects requests outside 1..5 seeds.
// A limit of zero selects [DefaultRecommendationsLimit].
func (c *Client) Recommendations(ctx context.Context, seeds []models.Track, limit int) ([]models.Track, error) {
	if limit == 0 {
		limit = DefaultRecommendationsLimit
	}

	ids := models.TrackIDs(seeds)
	for i, id := range ids {
		ids[i] = url.QueryEscape(id)
	}

	var recs recommendations
	endpoint := fmt.Sprintf("/recommendations?seed_tracks=%s&limit=%d", strings.Join(ids, ","), limit)
	if _, err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &recs); err != nil {
		return nil, err
	}

	tracks := make([]models.Track, 0, len(recs.Tracks))
	for _, t := range recs.Tracks {
		if t.ID == "" {
			continue
		}
		tracks = append(tracks, t.model())
	}
	return tracks, nil
}

// CreatePlaylist creates a public playlist named name on the session user's account.
//
// Not idempotent: every call creates a new playlist.
func (c *Client) CreatePlaylist(ctx context.Context, name string) (*models.Playlist, error) {
	body := createPlaylistRequest{Name: name, Description: playlistDescription, Public: true}
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(c.session.UserID))

	var created spotifyPlaylist
	if _, err := c.doRequest(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return nil, err
	}

	return &models.Playlist{ID: created.ID, Name: name, URL: created.ExternalURLs.Spotify}, nil
}

// PopulatePlaylist appends tracks to playlist. The order of tracks is the order in the playlist.
func (c *Client) PopulatePlaylist(ctx context.Context, playlist *models.Playlist, tracks []models.Track) (*Snapshot, error) {
	uris := make([]string, len(tracks))
	for i, t := range tracks {
		uris[i] = t.URI()
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlist.ID))
	resp, err := c.doRequest(ctx, http.MethodPost, endpoint, uris, nil)
	if err != nil {
		return nil, err
	}

	return &Snapshot{ID: gjson.GetBytes(resp.body, "snapshot_id").String(), Raw: resp.body}, nil
}

// Playlist retrieves the name and public URL of an existing playlist.
func (c *Client) Playlist(ctx context.Context, playlistID string) (*models.Playlist, error) {
	endpoint := "/playlists/" + url.PathEscape(playlistID)

	var p spotifyPlaylist
	if _, err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &p); err != nil {
		return nil, err
	}

	return &models.Playlist{ID: playlistID, Name: p.Name, URL: p.ExternalURLs.Spotify}, nil
}

// DeletePlaylist removes the playlist from the user's library by unfollowing it.
//
// It reports true only for a 200 response. Other 2xx statuses report false without an error; non-2xx statuses
// report false with an [*APIError].
func (c *Client) DeletePlaylist(ctx context.Context, playlistID string) (bool, error) {
	endpoint := fmt.Sprintf("/playlists/%s/followers", url.PathEscape(playlistID))

	resp, err := c.doRequest(ctx, http.MethodDelete, endpoint, nil, nil)
	if err != nil {
		return false, err
	}
	return resp.status == http.StatusOK, nil
}
