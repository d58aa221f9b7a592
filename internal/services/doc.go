// Package services talks to the Spotify Web API on behalf of one signed-in user.
//
// # Token Manager
//
// [Authenticator] runs the OAuth2 authorization-code flow through [oauth2.Config] with client credentials sent in the
// form body. [Authenticator.Exchange] turns a callback code into a [models.Session] and resolves the user id with a
// GET /me; [Authenticator.Refresh] mints a new access token in place. Neither method is called implicitly: callers
// check [models.Session.IsExpired] before each API call and refresh first.
//
// # API Client
//
// [Client] wraps the six provider operations the mix flow needs (recent tracks, recommendations, create, populate,
// get, and delete playlist) plus the current-user lookup. It never refreshes tokens and never retries;
// [Client.CreatePlaylist] in particular is not idempotent.
//
// # Error Handling
//
//   - [*AuthError] : token exchange, refresh, or user lookup failed; wraps [shared.ErrAuthFailed]
//   - [*APIError] : non-success provider status during a data call; wraps [shared.ErrAPIRequest]
//   - [*ValidationError] : caller-side misuse rejected before any request; wraps [shared.ErrInvalidInput]
//
// Both provider errors keep the raw response body verbatim for diagnostics.
package services
