package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/trackshift/internal/session"
	"github.com/desertthunder/trackshift/internal/tasks"
	"github.com/desertthunder/trackshift/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI, routed by the identity session.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	logPath := filepath.Join(os.TempDir(), "trackshift-tui.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer logFile.Close()
	r.logger.SetOutput(logFile)

	svc, err := r.identityService()
	if err != nil {
		return err
	}

	auth := tasks.NewAuthTasks(svc, r.logger)
	model := ui.NewModel(ctx, session.NewHolder(auth), auth.AuthenticateAnonymously)

	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
