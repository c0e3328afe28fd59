package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tokendesk/internal/config"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Writes ~/.tokendesk/config.yaml (or --config) with the built-in defaults.
The admin secret is never written; provide it through TOKENDESK_ADMIN_KEY or the prompt.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if err := config.WriteDefault(path, initForce); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
