package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/seedmix/internal/models"
)

var _ list.Item = trackItem{}

// trackItem wraps a recently played [models.Track] to implement [list.Item].
type trackItem struct {
	index    int // 1-based position in the recent list
	track    models.Track
	selected bool
}

func (i trackItem) FilterValue() string { return i.track.Name }

func (i trackItem) Title() string {
	mark := "[ ]"
	if i.selected {
		mark = "[x]"
	}
	return fmt.Sprintf("%s %2d. %s", mark, i.index, i.track.Name)
}

func (i trackItem) Description() string {
	if i.track.Artist == "" {
		return "unknown artist"
	}
	return i.track.Artist
}

func trackItems(tracks []models.Track) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, t := range tracks {
		items[i] = trackItem{index: i + 1, track: t}
	}
	return items
}
