// Package web implements the seedmix web application as a JSON request/response surface.
//
// # Flow
//
// The sign-in and mix flow is split into separate exchanges so no handler ever waits on user input:
//
//	GET  /                        → status: signed in or not, login URL
//	GET  /login                   → store OAuth state in the session, redirect to Spotify
//	GET  /callback                → verify state, exchange the code, redirect to /tracks/recent
//	POST /logout                  → clear the session
//	GET  /tracks/recent?limit=N   → recently played tracks, numbered from 1
//	POST /mixes                   → seeds (ids) or indexes, name, limit: build the playlist
//	GET  /playlists/{id}          → name and URL of a playlist for confirmation
//	POST /playlists/{id}/confirm  → action=keep|delete
//	GET  /healthz                 → liveness
//
// /login and /callback are throttled per client IP.
//
// # Sessions
//
// [SessionManager] stores the access token, refresh token, expiry and user id in a gorilla/sessions store,
// either a signed cookie store ([NewCookieStore]) or the SQLite store from the repositories package. Expired
// access tokens are refreshed before each operation and the refreshed session is saved before the response
// is written.
//
// # Errors
//
// Handlers answer with a JSON body {"error": "..."}:
//   - 400 for invalid input ([services.ValidationError]) and OAuth errors reported on the callback
//   - 401 with a login_url when there is no session, or when refresh fails ([services.AuthError]); the
//     session is cleared in the second case
//   - 502 with the provider status and raw body for provider failures ([services.APIError])
package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/seedmix/internal/models"
	"github.com/desertthunder/seedmix/internal/server"
	"github.com/desertthunder/seedmix/internal/services"
	"github.com/desertthunder/seedmix/internal/shared"
	"github.com/desertthunder/seedmix/internal/tasks"
	"github.com/goccy/go-json"
)

const loginPath = "/login"

// Flow is the set of mix operations the web handlers drive. [tasks.Mixer] implements it.
type Flow interface {
	AuthURL(state string) string
	Login(ctx context.Context, code string) (*models.Session, error)
	Recent(ctx context.Context, session *models.Session, limit int) ([]models.Track, error)
	Mix(ctx context.Context, session *models.Session, req tasks.MixRequest, progress chan<- tasks.ProgressUpdate) (*tasks.MixResult, error)
	Playlist(ctx context.Context, session *models.Session, playlistID string) (*models.Playlist, error)
	Confirm(ctx context.Context, session *models.Session, playlistID, action string) (*tasks.ConfirmResult, error)
}

var _ Flow = (*tasks.Mixer)(nil)

// App holds the web handlers and their dependencies.
type App struct {
	flow     Flow
	sessions *SessionManager
	limiter  *server.IPLimiter
	logger   *log.Logger
}

// NewApp creates an App. A nil limiter disables sign-in throttling.
func NewApp(flow Flow, sessions *SessionManager, limiter *server.IPLimiter, logger *log.Logger) *App {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if limiter == nil {
		limiter = server.NewIPLimiter(0, 0)
	}
	return &App{flow: flow, sessions: sessions, limiter: limiter, logger: logger}
}

// Router returns the application's routes wrapped with panic recovery and request logging.
func (a *App) Router() *server.BasicRouter {
	router := server.NewBasicRouter()
	router.Use(server.Recover(a.logger), server.RequestLogger(a.logger))

	throttle := a.limiter.Middleware()

	router.HandleFunc(http.MethodGet, "/{$}", a.index)
	router.HandleFunc(http.MethodGet, "/healthz", a.health)
	router.Handle(http.MethodGet, loginPath, throttle(http.HandlerFunc(a.login)))
	router.Handle(http.MethodGet, "/callback", throttle(http.HandlerFunc(a.callback)))
	router.HandleFunc(http.MethodPost, "/logout", a.logout)
	router.HandleFunc(http.MethodGet, "/tracks/recent", a.authed(a.recent))
	router.HandleFunc(http.MethodPost, "/mixes", a.authed(a.mix))
	router.HandleFunc(http.MethodGet, "/playlists/{id}", a.authed(a.playlist))
	router.HandleFunc(http.MethodPost, "/playlists/{id}/confirm", a.authed(a.confirm))

	return router
}

func (a *App) index(w http.ResponseWriter, r *http.Request) {
	session := a.sessions.Load(r)
	body := map[string]any{
		"authenticated": session != nil,
		"login_url":     loginPath,
	}
	if session != nil {
		body["user_id"] = session.UserID
		body["recent_url"] = "/tracks/recent"
	}
	a.writeJSON(w, http.StatusOK, body)
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) login(w http.ResponseWriter, r *http.Request) {
	state, err := shared.GenerateState()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.sessions.SetState(w, r, state); err != nil {
		a.fail(w, r, err)
		return
	}
	http.Redirect(w, r, a.flow.AuthURL(state), http.StatusFound)
}

func (a *App) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		a.logger.Warn("authorization denied", "error", e)
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": e})
		return
	}

	state, err := a.sessions.PopState(w, r)
	if err != nil || q.Get("state") != state {
		a.fail(w, r, shared.ErrStateMismatch)
		return
	}

	session, err := a.flow.Login(r.Context(), q.Get("code"))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	if err := a.sessions.Save(w, r, session); err != nil {
		a.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/tracks/recent", http.StatusFound)
}

func (a *App) logout(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Clear(w, r); err != nil {
		a.fail(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// sessionHandler handles a request for a signed-in user and returns the status and body to write.
type sessionHandler func(r *http.Request, session *models.Session) (int, any, error)

// authed loads the session, runs fn, saves the session when fn refreshed it, and writes the result.
func (a *App) authed(fn sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := a.sessions.Load(r)
		if session == nil {
			a.fail(w, r, shared.ErrNotAuthenticated)
			return
		}

		before := *session
		status, body, err := fn(r, session)

		if !services.IsAuthError(err) && (session.AccessToken != before.AccessToken || !session.ExpiresAt.Equal(before.ExpiresAt)) {
			if saveErr := a.sessions.Save(w, r, session); saveErr != nil {
				a.logger.Error("failed to save refreshed session", "user", session.UserID, "error", saveErr)
			}
		}

		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.writeJSON(w, status, body)
	}
}

type indexedTrack struct {
	Index int `json:"index"`
	models.Track
}

func (a *App) recent(r *http.Request, session *models.Session) (int, any, error) {
	limit, err := intParam(r.URL.Query().Get("limit"), "limit")
	if err != nil {
		return 0, nil, err
	}

	tracks, err := a.flow.Recent(r.Context(), session, limit)
	if err != nil {
		return 0, nil, err
	}

	items := make([]indexedTrack, len(tracks))
	for i, t := range tracks {
		items[i] = indexedTrack{Index: i + 1, Track: t}
	}
	return http.StatusOK, map[string]any{"tracks": items, "count": len(items)}, nil
}

// mixBody is the JSON form of a mix request. Seeds are track ids.
type mixBody struct {
	Seeds       []string `json:"seeds"`
	Indexes     []int    `json:"indexes"`
	RecentLimit int      `json:"recent_limit"`
	Name        string   `json:"name"`
	Limit       int      `json:"limit"`
}

func (a *App) mix(r *http.Request, session *models.Session) (int, any, error) {
	body, err := parseMix(r)
	if err != nil {
		return 0, nil, err
	}

	req := tasks.MixRequest{
		SeedIndexes: body.Indexes,
		RecentLimit: body.RecentLimit,
		Name:        body.Name,
		Limit:       body.Limit,
	}
	for _, id := range body.Seeds {
		req.Seeds = append(req.Seeds, models.Track{ID: id})
	}

	result, err := a.flow.Mix(r.Context(), session, req, nil)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusCreated, map[string]any{
		"playlist":    result.Playlist,
		"seeds":       result.Seeds,
		"tracks":      result.Tracks,
		"snapshot_id": result.SnapshotID,
		"confirm_url": "/playlists/" + result.Playlist.ID,
	}, nil
}

func (a *App) playlist(r *http.Request, session *models.Session) (int, any, error) {
	id := r.PathValue("id")

	p, err := a.flow.Playlist(r.Context(), session, id)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, map[string]any{
		"id":      id,
		"name":    p.Name,
		"url":     p.URL,
		"actions": []tasks.Action{tasks.ActionKeep, tasks.ActionDelete},
	}, nil
}

func (a *App) confirm(r *http.Request, session *models.Session) (int, any, error) {
	var body struct {
		Action string `json:"action"`
	}
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return 0, nil, services.Invalid("body", "malformed JSON: %v", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return 0, nil, services.Invalid("body", "malformed form: %v", err)
		}
		body.Action = r.PostForm.Get("action")
	}

	result, err := a.flow.Confirm(r.Context(), session, r.PathValue("id"), body.Action)
	if err != nil {
		return 0, nil, err
	}

	msg := "Playlist kept successfully."
	switch {
	case result.Action == tasks.ActionDelete && result.Deleted:
		msg = "Playlist deleted successfully."
	case result.Action == tasks.ActionDelete:
		msg = "Playlist deletion was not confirmed by Spotify."
	}

	return http.StatusOK, map[string]any{
		"playlist_id": result.PlaylistID,
		"action":      result.Action,
		"deleted":     result.Deleted,
		"message":     msg,
	}, nil
}

func parseMix(r *http.Request) (*mixBody, error) {
	var body mixBody
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return nil, services.Invalid("body", "malformed JSON: %v", err)
		}
		return &body, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, services.Invalid("body", "malformed form: %v", err)
	}
	form := r.PostForm

	body.Name = form.Get("name")
	for _, v := range form["seeds"] {
		body.Seeds = append(body.Seeds, splitList(v)...)
	}
	for _, v := range form["indexes"] {
		for _, s := range splitList(v) {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, services.Invalid("indexes", "%q is not a number", s)
			}
			body.Indexes = append(body.Indexes, n)
		}
	}

	var err error
	if body.Limit, err = intParam(form.Get("limit"), "limit"); err != nil {
		return nil, err
	}
	if body.RecentLimit, err = intParam(form.Get("recent_limit"), "recent_limit"); err != nil {
		return nil, err
	}
	return &body, nil
}

// splitList splits on commas and whitespace, e.g. "1 3,5".
func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

// intParam parses an optional integer parameter; empty means zero.
func intParam(v, field string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, services.Invalid(field, "%q is not a number", v)
	}
	return n, nil
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

// fail maps err to a status and JSON error body.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		authErr       *services.AuthError
		apiErr        *services.APIError
		validationErr *services.ValidationError
	)

	switch {
	case errors.As(err, &validationErr):
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "field": validationErr.Field})

	case errors.Is(err, shared.ErrStateMismatch), errors.Is(err, shared.ErrMissingArgument):
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})

	case errors.As(err, &authErr):
		a.logger.Warn("authentication failed, clearing session", "op", authErr.Op, "status", authErr.StatusCode, "error", err)
		if clearErr := a.sessions.Clear(w, r); clearErr != nil {
			a.logger.Error("failed to clear session", "error", clearErr)
		}
		a.writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error":     err.Error(),
			"login_url": loginPath,
			"status":    authErr.StatusCode,
			"body":      authErr.Body,
		})

	case errors.Is(err, shared.ErrNotAuthenticated):
		a.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not signed in", "login_url": loginPath})

	case errors.As(err, &apiErr):
		a.logger.Error("spotify request failed", "method", apiErr.Method, "path", apiErr.Path, "status", apiErr.StatusCode)
		a.writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  err.Error(),
			"status": apiErr.StatusCode,
			"body":   apiErr.Body,
		})

	case errors.Is(err, shared.ErrNoRecommendations):
		a.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})

	default:
		a.logger.Error("request failed", "path", r.URL.Path, "error", err)
		a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func (a *App) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("failed to encode response", "error", err)
	}
}
