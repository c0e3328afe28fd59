// Package console is the line-oriented operator surface. It reads one
// command per line, turns it into a workflow intent and prints the outcome
// and the gate that results.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/ppiankov/tokendesk/internal/model"
	"github.com/ppiankov/tokendesk/internal/redact"
	"github.com/ppiankov/tokendesk/internal/workflow"
)

// HistoryView lists the audit log for display.
type HistoryView interface {
	Items() []model.HistoryItem
}

// Console drives a workflow from text commands.
type Console struct {
	wf            *workflow.Workflow
	history       HistoryView
	in            *bufio.Reader
	out           io.Writer
	readSecret    func() (string, error)
	defaultSecret string

	ok   func(a ...any) string
	fail func(a ...any) string
	dim  func(a ...any) string
	head func(a ...any) string
}

// Option configures a Console.
type Option func(*Console)

// WithSecretPrompt sets the function used to read the admin secret when
// confirm is given no argument.
func WithSecretPrompt(fn func() (string, error)) Option {
	return func(c *Console) { c.readSecret = fn }
}

// WithDefaultSecret sets the secret used when the prompt is left empty.
func WithDefaultSecret(secret string) Option {
	return func(c *Console) { c.defaultSecret = secret }
}

// New creates a Console reading commands from in and writing to out.
func New(wf *workflow.Workflow, history HistoryView, in io.Reader, out io.Writer, opts ...Option) *Console {
	c := &Console{
		wf:      wf,
		history: history,
		in:      bufio.NewReader(in),
		out:     out,
		ok:      color.New(color.FgGreen).SprintFunc(),
		fail:    color.New(color.FgRed).SprintFunc(),
		dim:     color.New(color.Faint).SprintFunc(),
		head:    color.New(color.Bold, color.FgCyan).SprintFunc(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.readSecret == nil {
		c.readSecret = func() (string, error) {
			fmt.Fprint(c.out, "Admin secret: ")
			return c.readLine()
		}
	}
	return c
}

// TerminalSecretPrompt reads a secret from the terminal on stdin without
// echoing it.
func TerminalSecretPrompt(out io.Writer) func() (string, error) {
	return func() (string, error) {
		fmt.Fprint(out, "Admin secret: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
}

// Run reads commands until quit or end of input.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, c.head("tokendesk console")+c.dim("  (type help for commands)"))
	fmt.Fprintln(c.out, c.wf.Status())
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprintf(c.out, "[%s] > ", c.wf.Snapshot().Step)
		line, err := c.readLine()
		if err == io.EOF {
			fmt.Fprintln(c.out)
			return nil
		}
		if err != nil {
			return err
		}
		if quit := c.Exec(ctx, line); quit {
			return nil
		}
	}
}

func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Exec runs a single command line. It reports whether the console should
// exit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		c.printHelp()
	case "status":
		c.printState()
	case "confirm":
		c.confirm(args)
	case "refresh":
		packs, err := c.wf.Refresh(ctx)
		if c.report(err) {
			c.printPacks(packs)
		}
	case "select":
		n, ok := c.index(args)
		if ok {
			c.report(c.wf.Select(n))
		}
	case "lock":
		_, err := c.wf.Lock()
		c.report(err)
	case "issue":
		iss, err := c.wf.Issue(ctx)
		if c.report(err) {
			fmt.Fprintf(c.out, "token: %s\n\n%s\n", iss.Token, iss.Message)
		}
	case "copy":
		c.copy(args)
	case "history":
		c.historyCmd(args)
	default:
		fmt.Fprintln(c.out, c.fail("unknown command: "+cmd)+c.dim(" (type help)"))
	}
	return false
}

func (c *Console) confirm(args []string) {
	secret := strings.Join(args, " ")
	if secret == "" {
		s, err := c.readSecret()
		if err != nil {
			c.report(err)
			return
		}
		secret = s
	}
	if strings.TrimSpace(secret) == "" {
		secret = c.defaultSecret
	}
	c.report(c.wf.Confirm(secret))
}

func (c *Console) copy(args []string) {
	what := ""
	if len(args) > 0 {
		what = strings.ToLower(args[0])
	}
	switch what {
	case "token":
		c.report(c.wf.CopyToken())
	case "message", "msg":
		c.report(c.wf.CopyMessage())
	default:
		fmt.Fprintln(c.out, c.fail("usage: copy token|message"))
	}
}

func (c *Console) historyCmd(args []string) {
	sub := "list"
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}
	switch sub {
	case "list":
		c.printHistory()
	case "export":
		text, err := c.wf.ExportHistory()
		fmt.Fprintln(c.out, text)
		c.report(err)
	case "clear":
		c.report(c.wf.ClearHistory())
	case "copy":
		n, ok := c.index(args[1:])
		if ok {
			_, err := c.wf.CopyHistoryItem(n)
			c.report(err)
		}
	default:
		fmt.Fprintln(c.out, c.fail("usage: history [list|export|clear|copy N]"))
	}
}

// index parses a 1-based position into a 0-based index.
func (c *Console) index(args []string) (int, bool) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, c.fail("a number is required"))
		return 0, false
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintln(c.out, c.fail("not a number: "+args[0]))
		return 0, false
	}
	return n - 1, true
}

// report prints the outcome of an intent and returns true on success.
func (c *Console) report(err error) bool {
	if err != nil {
		fmt.Fprintln(c.out, c.fail("✗ ")+err.Error())
		return false
	}
	fmt.Fprintln(c.out, c.ok("✓ ")+c.wf.Status())
	return true
}

func (c *Console) printPacks(packs []model.Pack) {
	snap := c.wf.Snapshot()
	for i, p := range packs {
		marker := " "
		if i == snap.Selected {
			marker = "*"
		}
		fmt.Fprintf(c.out, " %s %d. %s %s\n", marker, i+1, p.Label(), c.dim(p.FormKey+" "+p.FormVersion))
	}
}

func (c *Console) printHistory() {
	items := c.history.Items()
	if len(items) == 0 {
		fmt.Fprintln(c.out, c.dim("No records"))
		return
	}
	for i, it := range items {
		fmt.Fprintf(c.out, "%3d. [%s] %s (%s) %s\n", i+1, it.IssuedAt, it.DisplayName, it.FormVersion, c.dim(redact.MaskToken(it.Token)))
	}
}

func (c *Console) printState() {
	snap := c.wf.Snapshot()
	fmt.Fprintf(c.out, "%s %s\n", c.head("step:"), snap.Step)
	if p, ok := snap.SelectedPack(); ok {
		fmt.Fprintf(c.out, "%s %s\n", c.head("selected:"), p.Label())
	}
	if snap.Locked != nil {
		fmt.Fprintf(c.out, "%s %s (%s %s)\n", c.head("locked:"), snap.Locked.DisplayName, snap.Locked.FormKey, snap.Locked.FormVersion)
	}
	if snap.Token != "" {
		fmt.Fprintf(c.out, "%s %s\n", c.head("token:"), snap.Token)
	}
	fmt.Fprintf(c.out, "%s %s\n", c.head("available:"), strings.Join(c.available(workflow.Project(snap)), ", "))
}

func (c *Console) available(g workflow.Gate) []string {
	var names []string
	for _, intent := range workflow.Intents {
		if g.Allows(intent) {
			names = append(names, string(intent))
		}
	}
	return names
}

func (c *Console) printHelp() {
	fmt.Fprint(c.out, `commands:
  confirm [secret]        confirm the admin secret (prompts when omitted)
  refresh                 fetch the active packs
  select N                select pack N
  lock                    lock the selected pack
  issue                   issue a token for the locked pack
  copy token|message      copy the issued token or message
  history [list]          show issued tokens
  history export          print and copy the history
  history clear           erase the history
  history copy N          copy the token of entry N
  status                  show the current state
  quit                    leave the console
`)
}
