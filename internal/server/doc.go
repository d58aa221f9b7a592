// Package server provides HTTP routing, middleware, and the terminal OAuth callback handler.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns, e.g. "GET /playlists/{id}".
//
// # Middleware
//
//   - [RequestLogger] : one log line per request, without query strings
//   - [Recover] : converts handler panics into 500 responses
//   - [IPLimiter] : per-client token bucket used on the sign-in routes
//
// # OAuth Callback Handler
//
// [OAuthHandler] serves the callback of a terminal sign-in. It validates the state parameter, exchanges the
// authorization code through an [Exchanger], and sends the session through a channel.
//
// It only processes one callback to prevent replay attacks. The tui command starts a temporary server on the
// configured address, opens the browser, and shuts the server down after the result arrives.
//
// # Lifecycle
//
// [Run] serves an [http.Server] until its context is cancelled and then shuts it down gracefully.
package server
