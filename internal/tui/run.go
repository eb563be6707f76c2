package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the monitor on the alternate screen until the user quits or ctx
// is canceled.
func Run(ctx context.Context, ctl Control, opts Options) error {
	p := tea.NewProgram(NewModel(ctl, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
