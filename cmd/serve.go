package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/seedmix/internal/repositories"
	"github.com/desertthunder/seedmix/internal/server"
	"github.com/desertthunder/seedmix/internal/shared"
	"github.com/desertthunder/seedmix/internal/web"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/urfave/cli/v3"
)

const (
	purgeInterval   = 10 * time.Minute
	limiterInterval = time.Minute
	limiterIdle     = 10 * time.Minute
)

// Serve runs the web application until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	auth, err := r.authenticator()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := r.sessionStore(ctx, r.secretKey())
	if err != nil {
		return err
	}
	defer closeStore()

	limiter := server.NewIPLimiter(r.config.Server.LoginRate, r.config.Server.LoginBurst)
	go limiter.PruneLoop(ctx, limiterInterval, limiterIdle)

	app := web.NewApp(r.mixer(auth), web.NewSessionManager(store, web.SessionName), limiter, r.logger)

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	r.logger.Info("starting seedmix", "addr", addr, "session_store", r.config.Session.Store)
	return server.Run(ctx, server.NewHTTPServer(addr, app.Router()), r.logger, nil)
}

// secretKey returns the configured cookie signing key, or a random one when none is set.
func (r *Runner) secretKey() []byte {
	if key := r.config.Server.SecretKey; key != "" {
		return []byte(key)
	}
	r.logger.Warn("server.secret_key is not set; using a random key, sessions will not survive a restart")
	return securecookie.GenerateRandomKey(32)
}

// sessionStore builds the configured session store and returns a func releasing its resources.
func (r *Runner) sessionStore(ctx context.Context, secret []byte) (sessions.Store, func(), error) {
	opts := web.SessionOptions(r.config.Session.MaxAge, r.config.Server.SecureCookies)

	switch r.config.Session.Store {
	case shared.SessionStoreCookie:
		return web.NewCookieStore(secret, opts), func() {}, nil

	case shared.SessionStoreSQLite:
		db, err := shared.NewDatabase(ctx, r.config.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open session database: %w", err)
		}
		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

		if err := shared.RunMigrations(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		store := repositories.NewSessionStore(repositories.NewSessionRepository(db), r.logger, secret)
		store.Options = opts
		store.MaxAge(opts.MaxAge)
		go store.PurgeLoop(ctx, purgeInterval)

		r.logger.Info("using sqlite session store", "path", r.config.Database.Path)
		return store, func() { db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown session store %q", shared.ErrInvalidConfig, r.config.Session.Store)
	}
}
