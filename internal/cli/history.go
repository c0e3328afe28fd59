package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tokendesk/internal/history"
	"github.com/ppiankov/tokendesk/internal/model"
	"github.com/ppiankov/tokendesk/internal/notify"
	"github.com/ppiankov/tokendesk/internal/redact"
)

var (
	historyJSON   bool
	historyLimit  int
	historyReveal bool
	historyCopy   bool
	historyYes    bool
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyExportCmd)
	historyCmd.AddCommand(historyClearCmd)
	historyCmd.AddCommand(historyCopyCmd)

	historyListCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
	historyListCmd.Flags().IntVarP(&historyLimit, "lines", "n", 20, "Number of recent entries to show (0 for all)")
	historyListCmd.Flags().BoolVar(&historyReveal, "reveal", false, "Show full tokens instead of masked ones")
	historyExportCmd.Flags().BoolVar(&historyCopy, "copy", false, "Also copy the export to the clipboard")
	historyClearCmd.Flags().BoolVar(&historyYes, "yes", false, "Confirm erasing the history")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the record of issued credentials",
	Long:  "The history keeps the last " + strconv.Itoa(history.Limit) + " issued credentials, most recent first.",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List issued credentials with tokens masked",
	RunE:  runHistoryList,
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the full history as plain text",
	RunE:  runHistoryExport,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Erase the history",
	RunE:  runHistoryClear,
}

var historyCopyCmd = &cobra.Command{
	Use:   "copy <n>",
	Short: "Copy the token of the n-th most recent entry (1 is the latest)",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryCopy,
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()
	return printHistory(cmd.OutOrStdout(), a.history.Items(), historyLimit, historyReveal, historyJSON)
}

func printHistory(out io.Writer, items []model.HistoryItem, limit int, reveal, asJSON bool) error {
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	if !reveal {
		masked := make([]model.HistoryItem, len(items))
		for i, it := range items {
			it.Token = redact.MaskToken(it.Token)
			masked[i] = it
		}
		items = masked
	}
	if asJSON {
		data, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	if len(items) == 0 {
		fmt.Fprintln(out, history.EmptyText)
		return nil
	}
	for i, it := range items {
		fmt.Fprintf(out, "%3d. [%s] %s (%s %s) %s\n", i+1, it.IssuedAt, it.DisplayName, it.FormKey, it.FormVersion, it.Token)
	}
	return nil
}

func runHistoryExport(cmd *cobra.Command, args []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	text := a.history.ExportText()
	fmt.Fprintln(cmd.OutOrStdout(), text)
	if historyCopy {
		clip, err := a.newClipboard()
		if err != nil {
			return err
		}
		copyOrWarn(cmd.ErrOrStderr(), clip, text)
	}
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	if !historyYes {
		return fmt.Errorf("refusing to erase the history without --yes")
	}
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	n := a.history.Len()
	if err := a.history.Clear(); err != nil {
		return err
	}
	a.notifier = notify.NewDispatcher(a.cfg.Notify, a.logger)
	a.notifier.Dispatch(notify.Event{Type: notify.EventHistoryCleared})
	fmt.Fprintf(cmd.OutOrStdout(), "History cleared (%d entries removed).\n", n)
	return nil
}

func runHistoryCopy(cmd *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return fmt.Errorf("entry number must be a positive integer, got %q", args[0])
	}
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	item, ok := a.history.Item(n - 1)
	if !ok {
		return fmt.Errorf("no history entry %d (have %d)", n, a.history.Len())
	}
	clip, err := a.newClipboard()
	if err != nil {
		return err
	}
	if err := clip.Copy(item.Token); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Copied token for %s (%s).\n", item.DisplayName, item.FormVersion)
	return nil
}
