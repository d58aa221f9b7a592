// Package repositories implements SQLite persistence for server-side web sessions.
//
// Key Implementations:
//   - [SessionRepository] : CRUD on the sessions table with expiry-aware lookups
//   - [SessionStore] : a gorilla/sessions [sessions.Store] keeping values in SQLite and only a signed session id in the cookie
//
// Rows are deleted when a session is cleared (MaxAge < 0) and purged once expired, so tokens never outlive the
// session they belong to. [SessionStore.PurgeLoop] runs the purge on an interval for the lifetime of the server.
package repositories
