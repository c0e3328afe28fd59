package tui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ppiankov/tokendesk/internal/history"
	"github.com/ppiankov/tokendesk/internal/kvstore"
	"github.com/ppiankov/tokendesk/internal/model"
	"github.com/ppiankov/tokendesk/internal/workflow"
)

type stubPacks struct{ packs []model.Pack }

func (s stubPacks) FetchActive(ctx context.Context, secret string) ([]model.Pack, error) {
	return s.packs, nil
}

type stubIssuer struct{ token string }

func (s stubIssuer) Issue(ctx context.Context, locked *model.LockedPack, secret string) (string, error) {
	return s.token, nil
}

type memClipboard struct {
	mu    sync.Mutex
	texts []string
}

func (c *memClipboard) Copy(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

type reloadCounter struct {
	*history.Log
	reloads int
}

func (r *reloadCounter) Reload() {
	r.reloads++
	r.Log.Reload()
}

func newTestModel(t *testing.T) (Model, *workflow.Workflow, *history.Log, *memClipboard) {
	t.Helper()
	store, err := kvstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	hist, err := history.Open(store, nil)
	if err != nil {
		t.Fatal(err)
	}
	clip := &memClipboard{}
	wf, err := workflow.New(workflow.Config{
		Packs: stubPacks{packs: []model.Pack{
			{DisplayName: "A", FormKey: "k1", FormVersion: "v1", Active: true},
			{DisplayName: "B", FormKey: "k2", FormVersion: "v2", Active: true},
		}},
		Issuer:    stubIssuer{token: "T123"},
		History:   hist,
		Clipboard: clip,
		Link:      "https://forms.example.com/enter",
		Template:  "{link} {token}",
		AutoCopy:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	return New(context.Background(), wf, hist, nil), wf, hist, clip
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// send applies msg and runs any returned command synchronously, feeding
// its message back into the model.
func send(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd != nil {
		if out := cmd(); out != nil {
			if _, ok := out.(tea.QuitMsg); !ok {
				next, _ = m.Update(out)
				m = next.(Model)
			}
		}
	}
	return m
}

// press applies msg and drops the returned command.
func press(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func typeSecret(t *testing.T, m Model, secret string) Model {
	t.Helper()
	m = press(m, runes("s"))
	for _, r := range secret {
		m = press(m, runes(string(r)))
	}
	return press(m, tea.KeyMsg{Type: tea.KeyEnter})
}

func TestKeysDriveIssuance(t *testing.T) {
	m, wf, hist, clip := newTestModel(t)

	m = typeSecret(t, m, "s1")
	if s := wf.Snapshot(); s.Step != model.StepAuthenticated {
		t.Fatalf("expected authenticated, got %s", s.Step)
	}

	m = send(t, m, runes("r"))
	m = send(t, m, runes("j"))
	if s := wf.Snapshot(); s.Selected != 1 {
		t.Fatalf("expected second pack selected, got %d", s.Selected)
	}
	m = send(t, m, runes("k"))
	m = send(t, m, runes("l"))
	if s := wf.Snapshot(); s.Locked == nil || s.Locked.FormKey != "k1" {
		t.Fatalf("expected k1 locked, got %+v", s.Locked)
	}

	m = send(t, m, runes("i"))
	s := wf.Snapshot()
	if s.Step != model.StepIssued || s.Token != "T123" {
		t.Fatalf("expected issued T123, got %s %q", s.Step, s.Token)
	}
	if hist.Len() != 1 {
		t.Errorf("expected one history entry, got %d", hist.Len())
	}
	if len(clip.texts) != 1 || !strings.Contains(clip.texts[0], "T123") {
		t.Errorf("expected message auto-copied, got %v", clip.texts)
	}

	view := m.View()
	for _, want := range []string{"issued", "T123", "History (1)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestSecretEntryIsMasked(t *testing.T) {
	m, _, _, _ := newTestModel(t)

	m = press(m, runes("s"))
	for _, r := range "hunter2" {
		m = press(m, runes(string(r)))
	}
	if strings.Contains(m.View(), "hunter2") {
		t.Error("expected secret to be masked in view")
	}
}

func TestEscapeCancelsSecretEntry(t *testing.T) {
	m, wf, _, _ := newTestModel(t)

	m = press(m, runes("s"))
	m = press(m, runes("x"))
	m = press(m, tea.KeyMsg{Type: tea.KeyEsc})

	if m.editingSecret {
		t.Error("expected secret entry closed")
	}
	if wf.Snapshot().Step != model.StepUnauthenticated {
		t.Error("expected cancel not to confirm")
	}
}

func TestEmptySecretKeepsPromptOpen(t *testing.T) {
	m, wf, _, _ := newTestModel(t)

	m = press(m, runes("s"))
	m = press(m, tea.KeyMsg{Type: tea.KeyEnter})

	if !m.editingSecret {
		t.Error("expected secret prompt to stay open after a refused secret")
	}
	s := wf.Snapshot()
	if s.Step != model.StepUnauthenticated || !s.StatusErr {
		t.Errorf("expected refusal in status, got %s %q", s.Step, s.Status)
	}

	m = typeSecretInPrompt(m, "s1")
	if m.editingSecret || wf.Snapshot().Step != model.StepAuthenticated {
		t.Error("expected retry in the same prompt to confirm")
	}
}

// typeSecretInPrompt types into an already open prompt and submits.
func typeSecretInPrompt(m Model, secret string) Model {
	for _, r := range secret {
		m = press(m, runes(string(r)))
	}
	return press(m, tea.KeyMsg{Type: tea.KeyEnter})
}

func TestIssueKeyBeforeLockIsRefused(t *testing.T) {
	m, wf, hist, _ := newTestModel(t)

	m = typeSecret(t, m, "s1")
	m = send(t, m, runes("i"))

	s := wf.Snapshot()
	if s.Token != "" || hist.Len() != 0 {
		t.Errorf("expected no issuance, got token %q", s.Token)
	}
	if !s.StatusErr {
		t.Error("expected error status")
	}
	if !strings.Contains(m.View(), "confirm") && !strings.Contains(m.View(), "lock a pack first") {
		t.Errorf("expected refusal in view:\n%s", m.View())
	}
}

func TestClearNeedsSecondPress(t *testing.T) {
	m, wf, hist, _ := newTestModel(t)
	m = typeSecret(t, m, "s1")
	m = send(t, m, runes("r"))
	m = send(t, m, runes("l"))
	m = send(t, m, runes("i"))
	if hist.Len() != 1 {
		t.Fatalf("expected one entry, got %d", hist.Len())
	}

	m = send(t, m, runes("X"))
	if hist.Len() != 1 {
		t.Fatal("expected first press to only arm the clear")
	}
	if !strings.Contains(m.View(), "Press X again") {
		t.Error("expected confirmation prompt")
	}
	m = send(t, m, runes("X"))
	if hist.Len() != 0 {
		t.Errorf("expected history cleared, got %d", hist.Len())
	}
	if wf.Snapshot().Step != model.StepIssued {
		t.Error("expected clearing history to leave the step alone")
	}
}

func TestClearDisarmedByOtherKey(t *testing.T) {
	m, _, _, _ := newTestModel(t)
	m = send(t, m, runes("X"))
	m = send(t, m, runes("e"))
	if m.pendingClear {
		t.Error("expected another key to disarm the clear")
	}
}

func TestHistoryChangeReloads(t *testing.T) {
	m, _, hist, _ := newTestModel(t)
	rc := &reloadCounter{Log: hist}
	changes := make(chan struct{}, 1)
	m.history = rc
	m.changes = changes

	changes <- struct{}{}
	cmd := m.Init()
	if cmd == nil {
		t.Fatal("expected a watch command")
	}
	msg := cmd()
	if _, ok := msg.(historyChangedMsg); !ok {
		t.Fatalf("expected historyChangedMsg, got %T", msg)
	}
	_, rearm := m.Update(msg)
	if rc.reloads != 1 {
		t.Errorf("expected one reload, got %d", rc.reloads)
	}
	if rearm == nil {
		t.Error("expected the watch to be re-armed")
	}
}

func TestQuitKey(t *testing.T) {
	m, _, _, _ := newTestModel(t)
	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestHelpFollowsGate(t *testing.T) {
	m, _, _, _ := newTestModel(t)
	view := m.View()
	if !strings.Contains(view, "secret") {
		t.Errorf("expected secret binding in help:\n%s", view)
	}
	if strings.Contains(view, "copy token") {
		t.Errorf("expected copy token hidden before issuance:\n%s", view)
	}
}
