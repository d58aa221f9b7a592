package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/desertthunder/seedmix/internal/models"
	"github.com/desertthunder/seedmix/internal/shared"
)

// Exchanger trades an authorization code for a session. [services.Authenticator] implements it.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (*models.Session, error)
}

// OAuthResult contains the result of an OAuth authorization flow.
type OAuthResult struct {
	Session *models.Session
	err     error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler handles the single OAuth2 callback of a terminal sign-in.
// Implements the Handler interface for registration with a Router.
type OAuthHandler struct {
	exchanger   Exchanger
	state       string
	resultChan  chan OAuthResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewOAuthHandler creates a new OAuth handler for the given state token.
func NewOAuthHandler(exchanger Exchanger, state string) *OAuthHandler {
	return &OAuthHandler{
		exchanger:  exchanger,
		state:      state,
		resultChan: make(chan OAuthResult, 1),
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"GET /callback"}
}

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>seedmix</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { margin: 0 0 1rem 0; }
        h1.ok { color: #1DB954; }
        h1.fail { color: #E22134; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        {{if .OK}}<h1 class="ok">Signed in</h1>{{else}}<h1 class="fail">Sign-in failed</h1>{{end}}
        <p>{{.Message}}</p>
    </div>
</body>
</html>
`))

type callbackView struct {
	OK      bool
	Message string
}

// ServeHTTP handles the OAuth callback request.
//
// Validates the state parameter, exchanges the authorization code for a session, and sends the result through
// the result channel. Only the first callback is processed.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	q := r.URL.Query()

	if q.Get("state") != h.state {
		h.Send(OAuthResult{err: shared.ErrStateMismatch})
		h.render(w, http.StatusBadRequest, callbackView{Message: "Invalid state parameter."})
		return
	}

	code := q.Get("code")
	if code == "" {
		err := fmt.Errorf("%w: %s", shared.ErrAuthFailed, q.Get("error"))
		h.Send(OAuthResult{err: err})
		h.render(w, http.StatusBadRequest, callbackView{Message: "Authorization was denied: " + q.Get("error")})
		return
	}

	session, err := h.exchanger.Exchange(r.Context(), code)
	if err != nil {
		h.Send(OAuthResult{err: err})
		h.render(w, http.StatusBadGateway, callbackView{Message: "Token exchange failed. Check the terminal for details."})
		return
	}

	h.Send(OAuthResult{Session: session})
	h.render(w, http.StatusOK, callbackView{OK: true, Message: "You can close this window and return to the terminal."})
}

func (h *OAuthHandler) render(w http.ResponseWriter, status int, view callbackView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	callbackPage.Execute(w, view)
}

// Send sends the OAuth result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel for receiving OAuth flow completion.
//
// Channel will receive exactly one result and then be closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}
