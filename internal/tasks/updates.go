package tasks

import (
	"fmt"

	"github.com/desertthunder/seedmix/internal/models"
)

// ProgressUpdate represents a progress event during a mix.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within the mix
	Total   int    // Total steps in the mix
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchRecent Phase = iota
	FetchRecommendations
	CreatePlaylist
	PopulatePlaylist
)

func (p Phase) String() string {
	switch p {
	case FetchRecent:
		return "fetch_recent"
	case FetchRecommendations:
		return "fetch_recommendations"
	case CreatePlaylist:
		return "create_playlist"
	case PopulatePlaylist:
		return "populate_playlist"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func fetchRecentUpdate(step, total, limit int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchRecent,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching your last %d tracks...", limit),
	}
}

func fetchRecommendationsUpdate(step, total int, seeds []models.Track) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchRecommendations,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching recommendations from %d seed tracks...", len(seeds)),
		Data:    seeds,
	}
}

func createPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Creating playlist '%s'...", name),
	}
}

func populatePlaylistUpdate(step, total int, pl *models.Playlist, tracks []models.Track) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PopulatePlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Adding %d tracks to '%s'...", len(tracks), pl.Name),
		Data:    pl,
	}
}
