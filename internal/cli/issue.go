package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ppiankov/tokendesk/internal/clipboard"
	"github.com/ppiankov/tokendesk/internal/console"
	"github.com/ppiankov/tokendesk/internal/model"
	"github.com/ppiankov/tokendesk/internal/redact"
	"github.com/ppiankov/tokendesk/internal/workflow"
)

var (
	issueFormKey     string
	issueFormVersion string
	issueLink        string
	issueNoCopy      bool
)

func init() {
	issueCmd.Flags().StringVar(&issueFormKey, "form-key", "", "form_key of the pack to issue for")
	issueCmd.Flags().StringVar(&issueFormVersion, "form-version", "", "form_version of the pack (required when several versions are active)")
	issueCmd.Flags().StringVar(&issueLink, "link", "", "Entry link for the message (overrides entry_link)")
	issueCmd.Flags().BoolVar(&issueNoCopy, "no-copy", false, "Do not copy the message to the clipboard")
	rootCmd.AddCommand(issueCmd)
}

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue one credential for a pack without the interactive screens",
	Long: `Runs the whole workflow once: confirm, refresh, select the pack matching
--form-key/--form-version, lock, issue. The composed message goes to stdout;
the token fingerprint and any copy warning go to stderr.`,
	RunE: runIssue,
}

func runIssue(cmd *cobra.Command, args []string) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	if issueLink != "" {
		a.cfg.EntryLink = issueLink
	}
	if issueNoCopy {
		a.cfg.AutoCopy = false
	}
	clip, err := a.newClipboard()
	if err != nil {
		return err
	}
	wf, err := a.newWorkflow(clip)
	if err != nil {
		return err
	}

	secret, err := resolveSecret(a.cfg.AdminKey)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	iss, err := issueOnce(ctx, wf, secret, issueFormKey, issueFormVersion)
	if err != nil {
		return err
	}
	return printIssuance(cmd.OutOrStdout(), cmd.ErrOrStderr(), iss)
}

// issueOnce drives wf from a fresh start to StepIssued for the pack
// matching formKey and formVersion.
func issueOnce(ctx context.Context, wf *workflow.Workflow, secret, formKey, formVersion string) (*workflow.Issuance, error) {
	if err := wf.Confirm(secret); err != nil {
		return nil, err
	}
	packs, err := wf.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := matchPack(packs, formKey, formVersion)
	if err != nil {
		return nil, err
	}
	if err := wf.Select(idx); err != nil {
		return nil, err
	}
	if _, err := wf.Lock(); err != nil {
		return nil, err
	}
	return wf.Issue(ctx)
}

// matchPack finds the single pack identified by formKey and formVersion.
// With no form key, a catalog of exactly one pack matches.
func matchPack(packs []model.Pack, formKey, formVersion string) (int, error) {
	if len(packs) == 0 {
		return -1, model.Errorf(model.KindPrecondition, "issue", "no active packs")
	}
	if formKey == "" {
		if len(packs) == 1 {
			return 0, nil
		}
		return -1, model.Errorf(model.KindValidation, "issue", "--form-key is required when %d packs are active: %s", len(packs), packList(packs))
	}
	found := -1
	for i, p := range packs {
		if p.FormKey != formKey || (formVersion != "" && p.FormVersion != formVersion) {
			continue
		}
		if found >= 0 {
			return -1, model.Errorf(model.KindValidation, "issue", "form_key %q matches several versions; pass --form-version", formKey)
		}
		found = i
	}
	if found < 0 {
		return -1, model.Errorf(model.KindValidation, "issue", "no active pack matches %s %s", formKey, formVersion)
	}
	return found, nil
}

func packList(packs []model.Pack) string {
	names := make([]string, len(packs))
	for i, p := range packs {
		names[i] = p.FormKey + "@" + p.FormVersion
	}
	return strings.Join(names, ", ")
}

func printIssuance(out, errOut io.Writer, iss *workflow.Issuance) error {
	fmt.Fprintln(out, iss.Message)
	fmt.Fprintf(errOut, "issued %s for %s (%s)\n", redact.Fingerprint(iss.Token), iss.Item.DisplayName, iss.Item.FormVersion)
	if iss.Copied {
		fmt.Fprintln(errOut, "message copied to clipboard")
	}
	if iss.CopyErr != nil {
		fmt.Fprintf(errOut, "warning: %v\n", iss.CopyErr)
	}
	if iss.PersistErr != nil {
		fmt.Fprintf(errOut, "warning: %v\n", iss.PersistErr)
	}
	return nil
}

// resolveSecret returns the configured admin key or reads one from the
// terminal.
func resolveSecret(adminKey string) (string, error) {
	if adminKey != "" {
		return adminKey, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("admin secret required: set TOKENDESK_ADMIN_KEY or run from a terminal")
	}
	return console.TerminalSecretPrompt(os.Stderr)()
}

// copyOrWarn copies text and reports the outcome on errOut.
func copyOrWarn(errOut io.Writer, clip clipboard.Copier, text string) {
	if err := clip.Copy(text); err != nil {
		fmt.Fprintf(errOut, "warning: %v\n", err)
		return
	}
	fmt.Fprintln(errOut, "copied to clipboard")
}
