// Package models defines the value records exchanged between the Spotify client, the mix flow, and the web layer.
//
//   - [Track] : a provider track id plus display metadata
//   - [Playlist] : a provider playlist id, name, and public URL
//   - [Session] : the OAuth tokens and user id for one signed-in browser or terminal session
//
// None of these types are persisted locally; identity is the provider-assigned id.
package models
