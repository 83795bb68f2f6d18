package cmd

import (
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/marcus/todos/internal/output"
	"github.com/marcus/todos/internal/tui"
	"github.com/spf13/cobra"
)

var uiCmd = &cobra.Command{
	Use:     "ui",
	Aliases: []string{"tui"},
	Short:   "Open the interactive todo list",
	Long: `Open the full screen todo list. Starts at the sign in form unless a
session is stored or TODOS_TOKEN is set.`,
	GroupID: "core",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}

		opts := tui.Options{OnSession: a.saveSession}
		ctx, cancel := a.context()
		session, err := a.session(ctx)
		cancel()
		switch {
		case err == nil:
			opts.Session = &session
		case errors.Is(err, errNotSignedIn):
		default:
			output.Warning("%v", err)
		}

		p := tea.NewProgram(tui.New(a.environment(), opts), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("run ui: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uiCmd)
}
