package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/desertthunder/seedmix/internal/models"
	"github.com/desertthunder/seedmix/internal/shared"
	"golang.org/x/oauth2"
)

// Authenticator manages the OAuth2 authorization-code exchange and refresh against the Spotify accounts service.
type Authenticator struct {
	config     *oauth2.Config
	apiBaseURL string
	httpClient *http.Client
}

// NewAuthenticator creates an [Authenticator] from the app credentials.
//
// An empty redirect URI falls back to http://127.0.0.1:3000/callback. A nil httpClient selects [http.DefaultClient].
func NewAuthenticator(creds shared.SpotifyConfig, endpoints Endpoints, httpClient *http.Client) (*Authenticator, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := creds.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://127.0.0.1:3000/callback"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   endpoints.AuthURL,
			TokenURL:  endpoints.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &Authenticator{
		config:     config,
		apiBaseURL: endpoints.APIBaseURL,
		httpClient: httpClient,
	}, nil
}

// OAuthConfig returns the underlying [oauth2.Config].
func (a *Authenticator) OAuthConfig() *oauth2.Config {
	return a.config
}

// AuthURL returns the authorization URL the user is redirected to at login.
func (a *Authenticator) AuthURL(state string) string {
	return a.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a session and resolves the session's user id with GET /me.
func (a *Authenticator) Exchange(ctx context.Context, code string) (*models.Session, error) {
	ctx, rec := a.recordingContext(ctx)

	tok, err := a.config.Exchange(ctx, code)
	if err = checkTokenResponse(tok, err, rec); err != nil {
		return nil, a.authError("exchange", err, rec)
	}

	session := &models.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}

	user, err := NewClient(a.apiBaseURL, a.httpClient, session).CurrentUser(ctx)
	if err != nil {
		authErr := &AuthError{Op: "user lookup", Err: err}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			authErr.StatusCode = apiErr.StatusCode
			authErr.Body = apiErr.Body
		}
		return nil, authErr
	}
	if user.ID == "" {
		return nil, &AuthError{Op: "user lookup", Err: fmt.Errorf("response missing user id")}
	}

	session.UserID = user.ID
	return session, nil
}

// Refresh replaces the session's access token and expiry in place. The refresh token is replaced only when the
// provider issues a new one.
func (a *Authenticator) Refresh(ctx context.Context, session *models.Session) error {
	if session == nil || session.RefreshToken == "" {
		return &AuthError{Op: "refresh", Err: shared.ErrNoRefreshToken}
	}

	ctx, rec := a.recordingContext(ctx)

	src := a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: session.RefreshToken})
	tok, err := src.Token()
	if err = checkTokenResponse(tok, err, rec); err != nil {
		return a.authError("refresh", err, rec)
	}

	session.AccessToken = tok.AccessToken
	session.ExpiresAt = tok.Expiry
	if tok.RefreshToken != "" {
		session.RefreshToken = tok.RefreshToken
	}
	return nil
}

// IsExpired reports whether session's access token is unusable at now.
func IsExpired(session *models.Session, now time.Time) bool {
	return session.IsExpired(now)
}

// checkTokenResponse applies the exchange rules on top of oauth2's: the token endpoint must answer exactly 200 with
// an access token.
func checkTokenResponse(tok *oauth2.Token, err error, rec *bodyRecorder) error {
	if err != nil {
		return err
	}
	if status, _ := rec.last(); status != 0 && status != http.StatusOK {
		return fmt.Errorf("unexpected status %d", status)
	}
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("response missing access_token")
	}
	return nil
}

func (a *Authenticator) authError(op string, err error, rec *bodyRecorder) *AuthError {
	authErr := &AuthError{Op: op, Err: err}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.Response != nil {
			authErr.StatusCode = retrieveErr.Response.StatusCode
		}
		authErr.Body = string(retrieveErr.Body)
		return authErr
	}

	authErr.StatusCode, authErr.Body = rec.last()
	return authErr
}

// recordingContext returns a context carrying an HTTP client for oauth2 that keeps a copy of the token endpoint's
// last response, so failures can report the raw body even when oauth2 does not.
func (a *Authenticator) recordingContext(ctx context.Context) (context.Context, *bodyRecorder) {
	rec := &bodyRecorder{base: a.httpClient.Transport}
	client := &http.Client{Transport: rec, Timeout: a.httpClient.Timeout}
	return context.WithValue(ctx, oauth2.HTTPClient, client), rec
}

type bodyRecorder struct {
	base http.RoundTripper

	mu     sync.Mutex
	status int
	body   []byte
}

func (r *bodyRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	base := r.base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))

	r.mu.Lock()
	r.status, r.body = resp.StatusCode, data
	r.mu.Unlock()

	return resp, nil
}

func (r *bodyRecorder) last() (int, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, string(r.body)
}
