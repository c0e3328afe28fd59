// Package tui is the full-screen operator surface. It renders the workflow
// snapshot and gate, and turns key presses into intents. Network-bound
// intents run as commands so the screen stays responsive.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/tokendesk/internal/model"
	"github.com/ppiankov/tokendesk/internal/redact"
	"github.com/ppiankov/tokendesk/internal/workflow"
)

// historyRows is the number of history entries shown.
const historyRows = 5

// HistoryView lists the audit log and re-reads it on demand.
type HistoryView interface {
	Items() []model.HistoryItem
	Reload()
}

type refreshDoneMsg struct{ err error }

type issueDoneMsg struct {
	iss *workflow.Issuance
	err error
}

type historyChangedMsg struct{}

// Model is the bubbletea model for the issuance screen.
type Model struct {
	ctx     context.Context
	wf      *workflow.Workflow
	history HistoryView
	changes <-chan struct{}

	keys   KeyMap
	help   help.Model
	styles styles
	secret textinput.Model

	editingSecret bool
	pendingClear  bool
	width         int
}

// New creates the model. changes, when non-nil, signals that the history
// was rewritten by another process.
func New(ctx context.Context, wf *workflow.Workflow, history HistoryView, changes <-chan struct{}) Model {
	ti := textinput.New()
	ti.Placeholder = "admin secret"
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.Prompt = "secret: "

	return Model{
		ctx:     ctx,
		wf:      wf,
		history: history,
		changes: changes,
		keys:    DefaultKeyMap,
		help:    help.New(),
		styles:  defaultStyles(),
		secret:  ti,
	}
}

// Init starts listening for history changes.
func (m Model) Init() tea.Cmd {
	return m.waitForHistory()
}

func (m Model) waitForHistory() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	ch := m.changes
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return historyChangedMsg{}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case refreshDoneMsg, issueDoneMsg:
		// The workflow already holds the outcome; the next View renders it.
		return m, nil

	case historyChangedMsg:
		m.history.Reload()
		return m, m.waitForHistory()

	case tea.KeyMsg:
		if m.editingSecret {
			return m.updateSecret(msg)
		}
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateSecret(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		// A refused secret keeps the prompt open; the workflow status
		// already carries the reason.
		err := m.wf.Confirm(m.secret.Value())
		m.secret.SetValue("")
		if err != nil {
			return m, nil
		}
		m.secret.Blur()
		m.editingSecret = false
		return m, nil
	case key.Matches(msg, m.keys.Cancel):
		m.secret.SetValue("")
		m.secret.Blur()
		m.editingSecret = false
		return m, nil
	}
	var cmd tea.Cmd
	m.secret, cmd = m.secret.Update(msg)
	return m, cmd
}

// updateKey maps keys to workflow intents. Intent errors are dropped here
// because the workflow records each outcome in the status line View renders.
func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !key.Matches(msg, m.keys.Clear) {
		m.pendingClear = false
	}
	snap := m.wf.Snapshot()

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Confirm):
		m.editingSecret = true
		return m, m.secret.Focus()

	case key.Matches(msg, m.keys.Refresh):
		ctx, wf := m.ctx, m.wf
		return m, func() tea.Msg {
			_, err := wf.Refresh(ctx)
			return refreshDoneMsg{err: err}
		}

	case key.Matches(msg, m.keys.Up):
		_ = m.wf.Select(max(snap.Selected-1, 0))

	case key.Matches(msg, m.keys.Down):
		next := snap.Selected + 1
		if next >= len(snap.Packs) {
			next = len(snap.Packs) - 1
		}
		_ = m.wf.Select(next)

	case key.Matches(msg, m.keys.Lock):
		_, _ = m.wf.Lock()

	case key.Matches(msg, m.keys.Issue):
		ctx, wf := m.ctx, m.wf
		return m, func() tea.Msg {
			iss, err := wf.Issue(ctx)
			return issueDoneMsg{iss: iss, err: err}
		}

	case key.Matches(msg, m.keys.CopyToken):
		_ = m.wf.CopyToken()

	case key.Matches(msg, m.keys.CopyMessage):
		_ = m.wf.CopyMessage()

	case key.Matches(msg, m.keys.Export):
		_, _ = m.wf.ExportHistory()

	case key.Matches(msg, m.keys.CopyHistory):
		_, _ = m.wf.CopyHistoryItem(0)

	case key.Matches(msg, m.keys.Clear):
		if !m.pendingClear {
			m.pendingClear = true
			return m, nil
		}
		m.pendingClear = false
		_ = m.wf.ClearHistory()
	}
	return m, nil
}

// bindings returns the key bindings enabled by the gate.
func (m Model) bindings(g workflow.Gate) []key.Binding {
	if m.editingSecret {
		return []key.Binding{m.keys.Submit, m.keys.Cancel}
	}
	enable := func(b key.Binding, on bool) key.Binding {
		b.SetEnabled(on)
		return b
	}
	return []key.Binding{
		enable(m.keys.Confirm, g.Confirm),
		enable(m.keys.Refresh, g.Refresh),
		enable(m.keys.Down, g.Select),
		enable(m.keys.Lock, g.Lock),
		enable(m.keys.Issue, g.Issue),
		enable(m.keys.CopyToken, g.CopyToken),
		enable(m.keys.CopyMessage, g.CopyMessage),
		enable(m.keys.Export, g.ExportHistory),
		enable(m.keys.CopyHistory, g.CopyHistory),
		enable(m.keys.Clear, g.ClearHistory),
		m.keys.Quit,
	}
}

// View renders the screen from the workflow snapshot.
func (m Model) View() string {
	snap := m.wf.Snapshot()
	gate := workflow.Project(snap)
	s := m.styles

	var b strings.Builder
	b.WriteString(s.title.Render("tokendesk") + "  " + s.step.Render(snap.Step.String()))
	if gate.Busy {
		b.WriteString(s.muted.Render("  working…"))
	}
	b.WriteString("\n\n")

	if m.editingSecret {
		b.WriteString(m.secret.View() + "\n\n")
	}

	b.WriteString(s.panel.Render(m.packsView(snap)) + "\n")
	if out := m.outputView(snap); out != "" {
		b.WriteString(s.panel.Render(out) + "\n")
	}
	b.WriteString(s.panel.Render(m.historyView()) + "\n")

	status := snap.Status
	if m.pendingClear {
		status = "Press X again to clear the history."
	}
	if snap.StatusErr {
		b.WriteString(s.err.Render(status))
	} else {
		b.WriteString(s.ok.Render(status))
	}
	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(m.bindings(gate)))
	return b.String()
}

func (m Model) packsView(snap workflow.Snapshot) string {
	s := m.styles
	var lines []string
	lines = append(lines, s.label.Render("Packs"))
	if len(snap.Packs) == 0 {
		lines = append(lines, s.muted.Render("none loaded"))
	}
	for i, p := range snap.Packs {
		row := fmt.Sprintf("  %s %s", p.Label(), s.muted.Render(p.FormKey+" "+p.FormVersion))
		if i == snap.Selected {
			row = s.selected.Render("> "+p.Label()) + " " + s.muted.Render(p.FormKey+" "+p.FormVersion)
		}
		lines = append(lines, row)
	}
	if snap.Locked != nil {
		lines = append(lines, "", s.label.Render("Locked: ")+fmt.Sprintf("%s (%s %s)", snap.Locked.DisplayName, snap.Locked.FormKey, snap.Locked.FormVersion))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) outputView(snap workflow.Snapshot) string {
	if snap.Token == "" {
		return ""
	}
	s := m.styles
	return lipgloss.JoinVertical(lipgloss.Left,
		s.label.Render("Token: ")+s.token.Render(snap.Token),
		"",
		snap.Message,
	)
}

func (m Model) historyView() string {
	s := m.styles
	items := m.history.Items()
	lines := []string{s.label.Render(fmt.Sprintf("History (%d)", len(items)))}
	if len(items) == 0 {
		lines = append(lines, s.muted.Render("No records"))
	}
	for i, it := range items {
		if i >= historyRows {
			lines = append(lines, s.muted.Render(fmt.Sprintf("… %d more", len(items)-historyRows)))
			break
		}
		lines = append(lines, fmt.Sprintf("[%s] %s (%s) %s", it.IssuedAt, it.DisplayName, it.FormVersion, s.muted.Render(redact.MaskToken(it.Token))))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
