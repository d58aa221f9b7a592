// Package ui implements the interactive terminal flow using bubbletea's Elm architecture.
//
// The flow mirrors the web surface, one view per step:
//  1. [RecentView] : pick 1 to 5 seed tracks from the recently played list
//  2. [NameView] : enter the playlist name
//  3. [MixView] : follow progress while recommendations are fetched and the playlist is built
//  4. [ConfirmView] : keep or delete the new playlist
//  5. [ResultView] : outcome, with the option to start another mix
//
// [Model] drives a [Mixer] with the session obtained at sign-in. Progress updates flow through a channel from
// [tasks.Mixer.Mix] and are drained one message at a time, so a slow provider never blocks rendering.
//
// Keyboard navigation uses vim-style bindings (j/k, space, enter, esc, y/d, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
