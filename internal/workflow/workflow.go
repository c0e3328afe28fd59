// Package workflow is the gated issuance state machine. It accepts operator
// intents with explicit values, checks them against the transition table,
// delegates to the catalog, issuer, history and clipboard, and exposes its
// state only through Snapshot and Gate.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/tokendesk/internal/clipboard"
	"github.com/ppiankov/tokendesk/internal/compose"
	"github.com/ppiankov/tokendesk/internal/journal"
	"github.com/ppiankov/tokendesk/internal/model"
	"github.com/ppiankov/tokendesk/internal/notify"
	"github.com/ppiankov/tokendesk/internal/redact"
)

// PackSource fetches the active packs.
type PackSource interface {
	FetchActive(ctx context.Context, secret string) ([]model.Pack, error)
}

// TokenIssuer requests a credential for a locked pack.
type TokenIssuer interface {
	Issue(ctx context.Context, locked *model.LockedPack, secret string) (string, error)
}

// HistoryLog is the audit log of issued credentials.
type HistoryLog interface {
	Append(item model.HistoryItem) error
	Item(i int) (model.HistoryItem, bool)
	Len() int
	ExportText() string
	Clear() error
}

// Notifier receives workflow events.
type Notifier interface {
	Dispatch(event notify.Event)
}

// Config wires a Workflow to its collaborators. Packs, Issuer, History and
// Clipboard are required.
type Config struct {
	Packs     PackSource
	Issuer    TokenIssuer
	History   HistoryLog
	Clipboard clipboard.Copier
	Journal   journal.Recorder
	Notifier  Notifier
	Logger    *slog.Logger

	// Link is substituted for the link placeholder of Template.
	Link     string
	Template string
	// AutoCopy copies the composed message after each issuance.
	AutoCopy bool
	Now      func() time.Time
}

// Issuance is the result of a successful Issue. CopyErr and PersistErr
// report follow-up problems that do not undo the issuance.
type Issuance struct {
	Token      string
	Message    string
	Item       model.HistoryItem
	Copied     bool
	CopyErr    error
	PersistErr error
}

// Workflow owns the issuance state. All methods are safe for concurrent
// use; network calls run without holding the state lock.
type Workflow struct {
	packs    PackSource
	issuer   TokenIssuer
	history  HistoryLog
	clip     clipboard.Copier
	journal  journal.Recorder
	notifier Notifier
	logger   *slog.Logger
	link     string
	template string
	autoCopy bool
	now      func() time.Time
	session  string

	mu         sync.Mutex
	step       model.Step
	secret     string
	generation uint64
	cache      []model.Pack
	selected   int
	locked     *model.LockedPack
	token      string
	message    string
	refreshing bool
	issuing    bool
	status     string
	statusErr  bool
}

// New creates a Workflow at StepUnauthenticated.
func New(cfg Config) (*Workflow, error) {
	if cfg.Packs == nil || cfg.Issuer == nil || cfg.History == nil || cfg.Clipboard == nil {
		return nil, fmt.Errorf("workflow: packs, issuer, history and clipboard are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	session := uuid.NewString()
	return &Workflow{
		packs:    cfg.Packs,
		issuer:   cfg.Issuer,
		history:  cfg.History,
		clip:     cfg.Clipboard,
		journal:  cfg.Journal,
		notifier: cfg.Notifier,
		logger:   logger.With("session", session),
		link:     cfg.Link,
		template: cfg.Template,
		autoCopy: cfg.AutoCopy,
		now:      now,
		session:  session,
		selected: -1,
		status:   "Enter the admin secret to begin.",
	}, nil
}

// Session identifies this workflow instance in the journal and webhooks.
func (w *Workflow) Session() string { return w.session }

// Confirm accepts the admin secret and resets everything downstream of it.
// It is the only transition that moves the step backward.
func (w *Workflow) Confirm(secret string) error {
	secret = strings.TrimSpace(secret)

	w.mu.Lock()
	defer w.mu.Unlock()

	if secret == "" {
		return w.failLocked(IntentConfirm, model.Errorf(model.KindValidation, string(IntentConfirm), "admin secret must not be empty"))
	}
	w.secret = secret
	w.generation++
	w.step = model.StepAuthenticated
	w.cache = []model.Pack{}
	w.selected = -1
	w.locked = nil
	w.token = ""
	w.message = ""
	w.refreshing = false
	w.succeedLocked(IntentConfirm, "Secret confirmed. Refresh the pack list.", "")
	return nil
}

// Refresh fetches the active packs and replaces the cache. The first pack
// is auto-selected; an empty catalog leaves the workflow authenticated with
// nothing selected. A result that arrives after a reset or a lock is
// discarded.
func (w *Workflow) Refresh(ctx context.Context) ([]model.Pack, error) {
	w.mu.Lock()
	if err := w.guardLocked(IntentRefresh); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	if w.refreshing {
		err := w.failLocked(IntentRefresh, model.Errorf(model.KindPrecondition, string(IntentRefresh), "a refresh is already in progress"))
		w.mu.Unlock()
		return nil, err
	}
	w.refreshing = true
	gen := w.generation
	secret := w.secret
	w.mu.Unlock()

	packs, err := w.packs.FetchActive(ctx, secret)

	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.generation || w.step >= model.StepLocked {
		if gen == w.generation {
			w.refreshing = false
		}
		return nil, w.discardLocked(IntentRefresh, "", "catalog result discarded: the workflow was reset or locked meanwhile")
	}
	w.refreshing = false
	if err != nil {
		return nil, w.failLocked(IntentRefresh, err)
	}

	w.cache = packs
	if len(packs) == 0 {
		w.selected = -1
		w.step = model.StepAuthenticated
		w.succeedLocked(IntentRefresh, "No active packs.", "")
		return []model.Pack{}, nil
	}
	w.selected = 0
	w.step = model.StepPackSelected
	w.succeedLocked(IntentRefresh, fmt.Sprintf("Loaded %d active pack(s); selected %s.", len(packs), packs[0].Label()), "")
	return clonePacks(packs), nil
}

// Select picks the pack at index in the cache. An index that does not
// resolve clears the selection and returns to StepAuthenticated.
func (w *Workflow) Select(index int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.guardLocked(IntentSelect); err != nil {
		return err
	}
	if index < 0 || index >= len(w.cache) {
		w.selected = -1
		w.step = model.StepAuthenticated
		w.succeedLocked(IntentSelect, "Selection cleared.", "")
		return nil
	}
	w.selected = index
	w.step = model.StepPackSelected
	w.succeedLocked(IntentSelect, fmt.Sprintf("Selected %s.", w.cache[index].Label()), "")
	return nil
}

// Lock commits to the selected pack. The snapshot must carry form_key and
// form_version. Once locked, refresh and select stay disabled until the next
// Confirm.
func (w *Workflow) Lock() (model.LockedPack, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.guardLocked(IntentLock); err != nil {
		return model.LockedPack{}, err
	}
	if w.selected < 0 || w.selected >= len(w.cache) {
		return model.LockedPack{}, w.failLocked(IntentLock, model.Errorf(model.KindPrecondition, string(IntentLock), "no pack selected"))
	}
	snap := w.cache[w.selected].Snapshot()
	if err := snap.Validate(); err != nil {
		return model.LockedPack{}, w.failLocked(IntentLock, err)
	}
	w.locked = &snap
	w.step = model.StepLocked
	w.succeedLocked(IntentLock, fmt.Sprintf("Locked %s (%s %s).", snap.DisplayName, snap.FormKey, snap.FormVersion), "")
	return snap, nil
}

// Issue requests one credential for the locked pack. At most one issuance
// is in flight at a time. On success the message is composed, the item is
// appended to the history and the workflow moves to StepIssued; on failure
// it stays at StepLocked and the error is returned verbatim.
func (w *Workflow) Issue(ctx context.Context) (*Issuance, error) {
	w.mu.Lock()
	if err := w.guardLocked(IntentIssue); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	if w.locked == nil {
		err := w.failLocked(IntentIssue, model.Errorf(model.KindPrecondition, string(IntentIssue), "lock a pack first"))
		w.mu.Unlock()
		return nil, err
	}
	if w.issuing {
		err := w.failLocked(IntentIssue, model.Errorf(model.KindPrecondition, string(IntentIssue), "an issuance is already in progress"))
		w.mu.Unlock()
		return nil, err
	}
	w.issuing = true
	w.step = model.StepLocked
	w.token = ""
	w.message = ""
	gen := w.generation
	locked := *w.locked
	secret := w.secret
	w.logger.Info("issuing", "form_key", locked.FormKey, "form_version", locked.FormVersion, "generation", gen)
	w.mu.Unlock()

	token, err := w.issuer.Issue(ctx, &locked, secret)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.issuing = false

	if err != nil {
		if gen != w.generation {
			return nil, w.discardLocked(IntentIssue, "", "issuance failed after the workflow was reset: "+err.Error())
		}
		w.dispatch(notify.Event{
			Type:        notify.EventIssueFailed,
			DisplayName: locked.DisplayName,
			FormKey:     locked.FormKey,
			FormVersion: locked.FormVersion,
			Reason:      err.Error(),
		})
		return nil, w.failLocked(IntentIssue, err)
	}

	item := model.HistoryItem{
		Token:       token,
		IssuedAt:    w.now().Format(model.IssuedAtLayout),
		DisplayName: locked.DisplayName,
		FormKey:     locked.FormKey,
		FormVersion: locked.FormVersion,
	}
	persistErr := w.history.Append(item)
	if persistErr != nil {
		w.logger.Error("history append failed", "error", persistErr)
	}
	w.dispatch(notify.Event{
		Type:        notify.EventIssued,
		DisplayName: locked.DisplayName,
		FormKey:     locked.FormKey,
		FormVersion: locked.FormVersion,
		TokenFP:     redact.Fingerprint(token),
	})

	if gen != w.generation {
		return nil, w.discardLocked(IntentIssue, token,
			fmt.Sprintf("token %s was recorded in history but not applied: the workflow was reset meanwhile", redact.MaskToken(token)))
	}

	msg := compose.Compose(w.template, w.link, token)
	w.token = token
	w.message = msg
	w.step = model.StepIssued

	iss := &Issuance{Token: token, Message: msg, Item: item, PersistErr: persistErr}
	status := fmt.Sprintf("Token issued for %s (%s).", locked.DisplayName, locked.FormVersion)
	if w.autoCopy {
		if iss.CopyErr = w.clip.Copy(msg); iss.CopyErr != nil {
			status += " Copy failed: " + iss.CopyErr.Error()
		} else {
			iss.Copied = true
			status += " Message copied."
		}
	}
	if persistErr != nil {
		status += " History not saved: " + persistErr.Error()
	}
	w.succeedLocked(IntentIssue, status, token)
	w.statusErr = iss.CopyErr != nil || persistErr != nil
	return iss, nil
}

// CopyToken copies the issued token.
func (w *Workflow) CopyToken() error {
	return w.copyOutput(IntentCopyToken, func() string { return w.token }, "Token copied.")
}

// CopyMessage copies the composed message.
func (w *Workflow) CopyMessage() error {
	return w.copyOutput(IntentCopyMessage, func() string { return w.message }, "Message copied.")
}

func (w *Workflow) copyOutput(intent Intent, text func() string, done string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.guardLocked(intent); err != nil {
		return err
	}
	if err := w.clip.Copy(text()); err != nil {
		return w.failLocked(intent, err)
	}
	w.succeedLocked(intent, done, w.token)
	return nil
}

// ExportHistory renders the history and copies it. The text is returned
// even when the copy fails.
func (w *Workflow) ExportHistory() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	text := w.history.ExportText()
	if err := w.clip.Copy(text); err != nil {
		return text, w.failLocked(IntentExportHistory, err)
	}
	w.succeedLocked(IntentExportHistory, fmt.Sprintf("History exported (%d entries) and copied.", w.history.Len()), "")
	return text, nil
}

// ClearHistory empties the persisted history. The step is not affected.
func (w *Workflow) ClearHistory() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.history.Clear(); err != nil {
		return w.failLocked(IntentClearHistory, err)
	}
	w.dispatch(notify.Event{Type: notify.EventHistoryCleared})
	w.succeedLocked(IntentClearHistory, "History cleared.", "")
	return nil
}

// CopyHistoryItem copies the token of the i-th most recent history entry.
func (w *Workflow) CopyHistoryItem(i int) (model.HistoryItem, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	item, ok := w.history.Item(i)
	if !ok {
		return model.HistoryItem{}, w.failLocked(IntentCopyHistoryItem,
			model.Errorf(model.KindValidation, string(IntentCopyHistoryItem), "no history entry #%d", i+1))
	}
	if err := w.clip.Copy(item.Token); err != nil {
		return item, w.failLocked(IntentCopyHistoryItem, err)
	}
	w.succeedLocked(IntentCopyHistoryItem, fmt.Sprintf("Token from %s copied.", item.IssuedAt), item.Token)
	return item, nil
}

// Snapshot returns a copy of the current state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	var locked *model.LockedPack
	if w.locked != nil {
		l := *w.locked
		locked = &l
	}
	return Snapshot{
		Step:       w.step,
		Generation: w.generation,
		SecretSet:  w.secret != "",
		Packs:      clonePacks(w.cache),
		Selected:   w.selected,
		Locked:     locked,
		Token:      w.token,
		Message:    w.message,
		Refreshing: w.refreshing,
		Issuing:    w.issuing,
		Status:     w.status,
		StatusErr:  w.statusErr,
	}
}

// Gate projects the current state.
func (w *Workflow) Gate() Gate { return Project(w.Snapshot()) }

// Status returns the outcome text of the last intent.
func (w *Workflow) Status() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// guardLocked refuses intent when the table does not permit it at the
// current step. Caller holds w.mu.
func (w *Workflow) guardLocked(intent Intent) error {
	if Permits(w.step, intent) {
		return nil
	}
	return w.failLocked(intent, model.Errorf(model.KindPrecondition, string(intent), "%s", refusal(w.step, intent)))
}

func refusal(step model.Step, intent Intent) string {
	switch {
	case step == model.StepUnauthenticated:
		return "confirm the admin secret first"
	case step >= model.StepLocked && (intent == IntentRefresh || intent == IntentSelect || intent == IntentLock):
		return "a pack is locked; confirm the secret again to start over"
	case intent == IntentLock:
		return "select a pack first"
	case intent == IntentIssue:
		return "lock a pack first"
	case intent == IntentCopyToken || intent == IntentCopyMessage:
		return "no credential has been issued"
	}
	return fmt.Sprintf("%s is not available while %s", intent, step)
}

func (w *Workflow) succeedLocked(intent Intent, status, token string) {
	w.status = status
	w.statusErr = false
	attrs := []any{"intent", string(intent), "step", w.step.String(), "generation", w.generation}
	if token != "" {
		attrs = append(attrs, "token", redact.MaskToken(token))
	}
	w.logger.Info(status, attrs...)
	w.record(intent, journal.OutcomeOK, "", token)
}

func (w *Workflow) failLocked(intent Intent, err error) error {
	w.status = err.Error()
	w.statusErr = true
	outcome := journal.OutcomeFailed
	switch model.KindOf(err) {
	case model.KindPrecondition, model.KindValidation:
		outcome = journal.OutcomeRejected
		w.logger.Warn("intent refused", "intent", string(intent), "step", w.step.String(), "error", err)
	default:
		w.logger.Error("intent failed", "intent", string(intent), "step", w.step.String(), "error", err)
	}
	w.record(intent, outcome, err.Error(), "")
	return err
}

// discardLocked reports a result that arrived for an earlier generation.
// State, including the status line the current session shows, is left
// untouched; the outcome only reaches the caller, the log and the journal.
func (w *Workflow) discardLocked(intent Intent, token, msg string) error {
	err := model.Errorf(model.KindPrecondition, string(intent), "%s", msg)
	w.logger.Warn("stale result discarded", "intent", string(intent), "generation", w.generation)
	w.record(intent, journal.OutcomeStale, msg, token)
	return err
}

func (w *Workflow) record(intent Intent, outcome, reason, token string) {
	if w.journal == nil {
		return
	}
	entry := journal.Entry{
		Session:    w.session,
		Generation: w.generation,
		Intent:     string(intent),
		Step:       w.step.String(),
		Outcome:    outcome,
		Reason:     reason,
	}
	if w.locked != nil {
		entry.FormKey = w.locked.FormKey
		entry.FormVersion = w.locked.FormVersion
	}
	if token != "" {
		entry.TokenFP = redact.Fingerprint(token)
	}
	if err := w.journal.Record(entry); err != nil {
		w.logger.Error("journal write failed", "error", err)
	}
}

func (w *Workflow) dispatch(event notify.Event) {
	if w.notifier == nil {
		return
	}
	event.Session = w.session
	event.Timestamp = time.Now().UTC().Format(journal.TimestampFormat)
	w.notifier.Dispatch(event)
}

func clonePacks(packs []model.Pack) []model.Pack {
	out := make([]model.Pack, len(packs))
	copy(out, packs)
	return out
}
