// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/seedmix/internal/services"
	"github.com/urfave/cli/v3"
)

// serveCommand runs the web application
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the seedmix web application",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to server.host:server.port)",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand runs the terminal flow
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Sign in through the browser and build a mix in the terminal",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "recent",
				Usage: "Number of recently played tracks to choose seeds from",
				Value: services.DefaultRecentLimit,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of recommended tracks in the playlist",
				Value: services.DefaultRecommendationsLimit,
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Initial playlist name",
			},
			&cli.StringFlag{
				Name:  "log",
				Usage: "Log file (the terminal is used for rendering)",
				Value: "./tmp/seedmix-tui.log",
			},
		},
		Action: r.TUI,
	}
}

// setupCommand handles configuration and database initialization
func setupCommand(r *Runner) *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}

	return &cli.Command{
		Name:  "setup",
		Usage: "Create configuration and initialize the session database",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml from the built-in template",
				Flags:  []cli.Flag{configFlag},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Create the session database and run migrations",
				Flags: []cli.Flag{
					configFlag,
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the latest migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles OAuth helpers
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Spotify OAuth helpers",
		Commands: []*cli.Command{
			{
				Name:  "url",
				Usage: "Print the Spotify authorization URL for the configured client",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output JSON with the state token",
					},
				},
				Action: r.AuthURL,
			},
		},
	}
}
