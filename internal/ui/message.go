package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/seedmix/internal/models"
	"github.com/desertthunder/seedmix/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgRecentFetched MsgKind = iota
	MsgProgressUpdate
	MsgMixComplete
	MsgConfirmed
)

type recentFetched struct {
	tracks []models.Track
	err    error
}

type mixComplete struct {
	result *tasks.MixResult
	err    error
}

type confirmed struct {
	result *tasks.ConfirmResult
	err    error
}

// recentFetchedMsg is the constructor for [MsgRecentFetched]
func recentFetchedMsg(tracks []models.Track, err error) Msg {
	return Msg{kind: MsgRecentFetched, data: recentFetched{tracks, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// mixCompleteMsg is the constructor for [MsgMixComplete]
func mixCompleteMsg(result *tasks.MixResult, err error) Msg {
	return Msg{kind: MsgMixComplete, data: mixComplete{result, err}}
}

// confirmedMsg is the constructor for [MsgConfirmed]
func confirmedMsg(result *tasks.ConfirmResult, err error) Msg {
	return Msg{kind: MsgConfirmed, data: confirmed{result, err}}
}
