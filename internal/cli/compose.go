package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tokendesk/internal/compose"
)

var (
	composeToken string
	composeLink  string
)

func init() {
	composeCmd.Flags().StringVar(&composeToken, "token", "", "Token to place in the message")
	composeCmd.Flags().StringVar(&composeLink, "link", "", "Entry link (overrides entry_link)")
	rootCmd.AddCommand(composeCmd)
}

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Render the configured message template without issuing",
	RunE:  runCompose,
}

func runCompose(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(composeToken) == "" {
		return fmt.Errorf("--token is required")
	}
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	tpl, err := a.cfg.MessageTemplate()
	if err != nil {
		return err
	}
	link := a.cfg.EntryLink
	if composeLink != "" {
		link = composeLink
	}
	fmt.Fprintln(cmd.OutOrStdout(), compose.Compose(tpl, link, composeToken))
	return nil
}
