package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/desertthunder/seedmix/internal/models"
	"github.com/desertthunder/seedmix/internal/server"
	"github.com/desertthunder/seedmix/internal/services"
	"github.com/desertthunder/seedmix/internal/shared"
	"github.com/urfave/cli/v3"
)

const signInTimeout = 2 * time.Minute

// AuthURL prints the authorization URL with a fresh state token.
func (r *Runner) AuthURL(ctx context.Context, cmd *cli.Command) error {
	auth, err := r.authenticator()
	if err != nil {
		return err
	}

	state, err := shared.GenerateState()
	if err != nil {
		return fmt.Errorf("failed to generate state token: %w", err)
	}

	authURL := auth.AuthURL(state)
	if cmd.Bool("json") {
		return r.writeJSON(map[string]string{"url": authURL, "state": state}, true)
	}
	return r.writePlain("%s\n", authURL)
}

// signIn runs the authorization code flow with a temporary callback server on the redirect URI's address.
func (r *Runner) signIn(ctx context.Context, auth *services.Authenticator) (*models.Session, error) {
	addr, err := callbackAddr(r.config.Credentials.Spotify.RedirectURI)
	if err != nil {
		return nil, err
	}

	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	oauthHandler := server.NewOAuthHandler(auth, state)
	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handler(oauthHandler)

	srvCtx, stop := context.WithCancel(ctx)
	defer stop()

	ready := make(chan string, 1)
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Run(srvCtx, server.NewHTTPServer(addr, router), r.logger, ready)
	}()

	select {
	case <-ready:
	case err := <-serverErrors:
		return nil, fmt.Errorf("failed to start callback server: %w", err)
	}

	authURL := auth.AuthURL(state)
	r.writePlain("→ Opening browser for Spotify sign-in...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlain("\n⚠ Could not open browser automatically.\n")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%v timeout)...\n", signInTimeout)

	timeout := time.NewTimer(signInTimeout)
	defer timeout.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		if err == nil {
			err = errors.New("callback server stopped")
		}
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after %v", shared.ErrTimeout, signInTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Session == nil {
		return nil, fmt.Errorf("%w: no session received", shared.ErrAuthFailed)
	}
	return result.Session, nil
}

// callbackAddr returns the listen address for a loopback redirect URI such as http://127.0.0.1:3000/callback.
func callbackAddr(redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("%w: redirect_uri: %v", shared.ErrInvalidConfig, err)
	}
	if u.Path != "/callback" {
		return "", fmt.Errorf("%w: redirect_uri path must be /callback, got %q", shared.ErrInvalidConfig, u.Path)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: redirect_uri has no host", shared.ErrInvalidConfig)
	}

	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
