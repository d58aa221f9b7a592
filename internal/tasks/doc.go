// Package tasks drives the seed-to-playlist flow against the Spotify Web API.
//
// # Core Operations
//
// [Mixer] exposes one method per step of the flow:
//
//  1. [Mixer.Recent] : list the user's recently played tracks
//  2. [Mixer.Mix] : turn 1..5 seed tracks into a new public playlist
//     - Resolves seed indexes against the recent-tracks list when ids are not given
//     - Fetches recommendations for the seeds
//     - Creates the playlist and adds the recommended tracks in order
//  3. [Mixer.Playlist] : read back a playlist for confirmation
//  4. [Mixer.Confirm] : keep the playlist, or delete (unfollow) it
//
// Every operation refreshes an expired session first with [Mixer.Fresh]. A refresh failure is
// returned as a [services.AuthError] and the caller must sign the user in again.
//
// # Progress Reporting
//
// [Mixer.Mix] accepts an optional channel of [ProgressUpdate]. Updates use select with default so
// a slow reader never blocks the flow.
//
// # Validation
//
// Caller input is checked before any provider request: seed count, playlist name, limits and
// confirm actions fail with [services.ValidationError].
package tasks
