package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/seedmix/internal/shared"
	"github.com/desertthunder/seedmix/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI signs in through the browser and launches the interactive terminal flow.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	auth, err := r.authenticator()
	if err != nil {
		return err
	}

	session, err := r.signIn(ctx, auth)
	if err != nil {
		return err
	}
	r.writePlain("✓ Signed in as %s\n", session.UserID)

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	model := ui.NewModel(ctx, r.mixer(auth), session, ui.Options{
		RecentLimit: cmd.Int("recent"),
		Limit:       cmd.Int("limit"),
		Name:        cmd.String("name"),
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
