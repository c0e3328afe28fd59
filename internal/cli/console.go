package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ppiankov/tokendesk/internal/console"
	"github.com/ppiankov/tokendesk/internal/tui"
)

func init() {
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(tuiCmd)
}

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Drive the issuance workflow from a line-oriented prompt",
	Long: `Reads commands (confirm, refresh, select N, lock, issue, copy, history) from stdin.
When TOKENDESK_ADMIN_KEY is set, an empty confirm uses it.`,
	RunE: runConsole,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Drive the issuance workflow from a full-screen terminal UI",
	RunE:  runTUI,
}

func runConsole(cmd *cobra.Command, args []string) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	clip, err := a.newClipboard()
	if err != nil {
		return err
	}
	wf, err := a.newWorkflow(clip)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []console.Option{console.WithDefaultSecret(a.cfg.AdminKey)}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		opts = append(opts, console.WithSecretPrompt(console.TerminalSecretPrompt(os.Stdout)))
	}
	return console.New(wf, a.history, os.Stdin, os.Stdout, opts...).Run(ctx)
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	clip, err := a.newClipboard()
	if err != nil {
		return err
	}
	wf, err := a.newWorkflow(clip)
	if err != nil {
		return err
	}
	if a.cfg.AdminKey != "" {
		if err := wf.Confirm(a.cfg.AdminKey); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return tui.Run(ctx, wf, a.history, a.historyFile(), a.logger)
}
