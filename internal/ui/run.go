package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/firi-app/firi/internal/session"
	"github.com/firi-app/firi/internal/state"
)

// Run boots the TUI program and blocks until it exits. Flow goroutines
// merge into the store; the change hook pumps a redraw message into the
// program from outside the update loop.
func Run(ctx context.Context, st *state.Store, ctrl *session.Controller, version string) error {
	m := initialModel(ctx, st, ctrl, version)
	program := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	st.OnChange(func(_, _ state.AppState) {
		go program.Send(stateChangedMsg{})
	})
	_, err := program.Run()
	return err
}
