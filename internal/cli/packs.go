package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tokendesk/internal/model"
)

var packsJSON bool

func init() {
	packsCmd.Flags().BoolVar(&packsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(packsCmd)
}

var packsCmd = &cobra.Command{
	Use:   "packs",
	Short: "List the active packs",
	RunE:  runPacks,
}

func runPacks(cmd *cobra.Command, args []string) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	secret, err := resolveSecret(a.cfg.AdminKey)
	if err != nil {
		return err
	}
	packs, err := a.packs.FetchActive(context.Background(), secret)
	if err != nil {
		return err
	}
	return printPacks(cmd.OutOrStdout(), packs, packsJSON)
}

func printPacks(out io.Writer, packs []model.Pack, asJSON bool) error {
	if asJSON {
		if packs == nil {
			packs = []model.Pack{}
		}
		data, err := json.MarshalIndent(packs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	if len(packs) == 0 {
		fmt.Fprintln(out, "No active packs.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tFORM KEY\tVERSION")
	for i, p := range packs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, p.Label(), p.FormKey, p.FormVersion)
	}
	return tw.Flush()
}
