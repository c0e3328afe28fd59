package tui

import (
	"context"
	"errors"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ppiankov/tokendesk/internal/history"
	"github.com/ppiankov/tokendesk/internal/workflow"
)

// Run shows the issuance screen until the operator quits or ctx ends.
// When watchPath is set, external rewrites of that file reload the history.
func Run(ctx context.Context, wf *workflow.Workflow, hist HistoryView, watchPath string, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var changes chan struct{}
	if watchPath != "" {
		changes = make(chan struct{}, 1)
		go func() {
			err := history.Watch(ctx, watchPath, func() {
				select {
				case changes <- struct{}{}:
				default:
				}
			})
			if err != nil && ctx.Err() == nil && logger != nil {
				logger.Warn("history watch stopped", "path", watchPath, "error", err)
			}
		}()
	}

	p := tea.NewProgram(New(ctx, wf, hist, changes), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
