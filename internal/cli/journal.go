package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tokendesk/internal/journal"
)

var journalTail int

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalVerifyCmd)
	journalCmd.AddCommand(journalTailCmd)
	journalTailCmd.Flags().IntVarP(&journalTail, "lines", "n", 20, "Number of recent entries to show (0 for all)")
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Journal operations",
	Long:  "Commands for verifying and reading the hash-chained workflow journal.",
}

var journalVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of the journal",
	Long:  "Walks the JSONL journal and checks that every entry's prev_hash\nmatches the SHA-256 of the previous line. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalVerify,
}

var journalTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent journal entries as a timeline",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalTail,
}

func journalPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	a, err := loadApp(false)
	if err != nil {
		return "", err
	}
	defer a.Close()
	if a.cfg.JournalPath == "" {
		return "", fmt.Errorf("journal_path is not configured")
	}
	return a.cfg.JournalPath, nil
}

func runJournalVerify(cmd *cobra.Command, args []string) error {
	path, err := journalPath(args)
	if err != nil {
		return err
	}
	result := journal.Verify(path)
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runJournalTail(cmd *cobra.Command, args []string) error {
	path, err := journalPath(args)
	if err != nil {
		return err
	}
	entries, err := journal.Tail(path, journalTail)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), journal.FormatTimeline(entries))
	return nil
}
