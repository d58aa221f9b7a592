package models

import (
	"fmt"
	"time"
)

// Track is a provider track as returned in recent-play and recommendation responses.
type Track struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Artist string `json:"artist"`
}

// URI returns the canonical Spotify URI for the track, e.g. spotify:track:4uLU6hMCjMI75M1A2tKUQC
func (t Track) URI() string {
	return "spotify:track:" + t.ID
}

func (t Track) String() string {
	if t.Artist == "" {
		return t.Name
	}
	return fmt.Sprintf("%s by %s", t.Name, t.Artist)
}

// TrackIDs returns the ids of tracks in order.
func TrackIDs(tracks []Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}

// Playlist is a provider playlist. URL is empty until a create or get response has been parsed.
type Playlist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Session holds the credentials for one signed-in user.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
}

// IsExpired reports whether the access token is unusable at now, i.e. now >= ExpiresAt.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Valid reports whether the session carries the fields every API call needs.
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && s.UserID != ""
}
