package workflow

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/tokendesk/internal/history"
	"github.com/ppiankov/tokendesk/internal/journal"
	"github.com/ppiankov/tokendesk/internal/kvstore"
	"github.com/ppiankov/tokendesk/internal/model"
	"github.com/ppiankov/tokendesk/internal/notify"
)

type fakePacks struct {
	mu    sync.Mutex
	packs []model.Pack
	err   error
	calls int
	// release, when set, blocks FetchActive until closed.
	release chan struct{}
	started chan struct{}
}

func (f *fakePacks) FetchActive(ctx context.Context, secret string) ([]model.Pack, error) {
	f.mu.Lock()
	f.calls++
	packs, err, release, started := f.packs, f.err, f.release, f.started
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	out := make([]model.Pack, len(packs))
	copy(out, packs)
	return out, nil
}

type fakeIssuer struct {
	mu      sync.Mutex
	token   string
	err     error
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
	lastKey string
}

func (f *fakeIssuer) Issue(ctx context.Context, locked *model.LockedPack, secret string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	token, err, release, started := f.token, f.err, f.release, f.started
	f.lastKey = locked.FormKey + "/" + locked.FormVersion + "/" + secret
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return token, err
}

type fakeClipboard struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeClipboard) Copy(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeClipboard) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Dispatch(e notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type harness struct {
	wf       *Workflow
	packs    *fakePacks
	issuer   *fakeIssuer
	clip     *fakeClipboard
	history  *history.Log
	notifier *recordingNotifier
	journal  string
}

var packA = model.Pack{DisplayName: "A", FormKey: "k1", FormVersion: "v1", Active: true}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := kvstore.NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	hist, err := history.Open(store, nil)
	if err != nil {
		t.Fatal(err)
	}
	jpath := filepath.Join(dir, "journal.jsonl")
	jl, err := journal.Open(jpath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { jl.Close() })

	h := &harness{
		packs:    &fakePacks{packs: []model.Pack{packA}},
		issuer:   &fakeIssuer{token: "T123"},
		clip:     &fakeClipboard{},
		history:  hist,
		notifier: &recordingNotifier{},
		journal:  jpath,
	}
	h.wf, err = New(Config{
		Packs:     h.packs,
		Issuer:    h.issuer,
		History:   hist,
		Clipboard: h.clip,
		Journal:   jl,
		Notifier:  h.notifier,
		Link:      "https://forms.example.com/enter",
		Template:  "link={link} token={token}",
		AutoCopy:  true,
		Now:       func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local) },
	})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

// toLocked drives the harness to StepLocked on packA.
func (h *harness) toLocked(t *testing.T) {
	t.Helper()
	if err := h.wf.Confirm("s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.wf.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.wf.Lock(); err != nil {
		t.Fatal(err)
	}
}

func checkInvariant(t *testing.T, s Snapshot) {
	t.Helper()
	if (s.Locked != nil) != (s.Step >= model.StepLocked) {
		t.Fatalf("lock invariant broken: step=%s locked=%v", s.Step, s.Locked)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing collaborators")
	}
}

func TestEndToEndIssuance(t *testing.T) {
	h := newHarness(t)

	if err := h.wf.Confirm("s1"); err != nil {
		t.Fatal(err)
	}
	if s := h.wf.Snapshot(); s.Step != model.StepAuthenticated {
		t.Fatalf("expected authenticated, got %s", s.Step)
	}

	packs, err := h.wf.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s := h.wf.Snapshot()
	if len(packs) != 1 || s.Step != model.StepPackSelected || s.Selected != 0 {
		t.Fatalf("expected auto-selection of index 0 at step 2, got step=%s selected=%d", s.Step, s.Selected)
	}

	locked, err := h.wf.Lock()
	if err != nil {
		t.Fatal(err)
	}
	want := model.LockedPack{DisplayName: "A", FormKey: "k1", FormVersion: "v1"}
	if locked != want {
		t.Fatalf("unexpected lock %+v", locked)
	}
	if s := h.wf.Snapshot(); s.Step != model.StepLocked || *s.Locked != want {
		t.Fatalf("expected locked step with snapshot, got %+v", s)
	}

	iss, err := h.wf.Issue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if iss.Token != "T123" {
		t.Errorf("expected token T123, got %q", iss.Token)
	}
	if iss.Message != "link=https://forms.example.com/enter token=T123" {
		t.Errorf("unexpected message %q", iss.Message)
	}
	if !iss.Copied || h.clip.last() != iss.Message {
		t.Errorf("expected message auto-copied, got %q", h.clip.last())
	}
	if h.issuer.lastKey != "k1/v1/s1" {
		t.Errorf("expected issuer called with lock identity and secret, got %q", h.issuer.lastKey)
	}

	s = h.wf.Snapshot()
	if s.Step != model.StepIssued || s.Token != "T123" {
		t.Fatalf("expected issued step, got %+v", s)
	}

	items := h.history.Items()
	if len(items) != 1 {
		t.Fatalf("expected one history entry, got %d", len(items))
	}
	got := items[0]
	if got.Token != "T123" || got.DisplayName != "A" || got.FormKey != "k1" || got.FormVersion != "v1" || got.IssuedAt != "2026-03-01 10:00:00" {
		t.Errorf("unexpected history entry %+v", got)
	}

	if len(h.notifier.events) != 1 || h.notifier.events[0].Type != notify.EventIssued {
		t.Fatalf("expected one issued event, got %+v", h.notifier.events)
	}
	if strings.Contains(h.notifier.events[0].TokenFP, "T123") || h.notifier.events[0].TokenFP == "" {
		t.Errorf("expected fingerprint without raw token, got %q", h.notifier.events[0].TokenFP)
	}

	if res := journal.Verify(h.journal); !res.Valid || res.Lines != 4 {
		t.Errorf("expected 4 valid journal lines, got %+v", res)
	}
}

func TestEmptyCatalog(t *testing.T) {
	h := newHarness(t)
	h.packs.packs = nil

	h.wf.Confirm("s1")
	packs, err := h.wf.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	s := h.wf.Snapshot()
	if len(packs) != 0 || s.Step != model.StepAuthenticated || s.Selected != -1 {
		t.Fatalf("expected step 1 with no selection, got %+v", s)
	}

	_, err = h.wf.Lock()
	if model.KindOf(err) != model.KindPrecondition {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if h.wf.Gate().Lock {
		t.Error("expected lock unavailable")
	}
}

func TestIssueWithoutLockMakesNoCall(t *testing.T) {
	h := newHarness(t)

	for _, prep := range []func(){
		func() {},
		func() { h.wf.Confirm("s1") },
		func() { h.wf.Refresh(context.Background()) },
	} {
		prep()
		_, err := h.wf.Issue(context.Background())
		if model.KindOf(err) != model.KindPrecondition {
			t.Fatalf("expected precondition error at step %s, got %v", h.wf.Snapshot().Step, err)
		}
	}
	if n := h.issuer.calls.Load(); n != 0 {
		t.Errorf("expected no issuer call, got %d", n)
	}
}

func TestConfirmRejectsEmptySecret(t *testing.T) {
	h := newHarness(t)
	h.toLocked(t)
	before := h.wf.Snapshot()

	err := h.wf.Confirm("   ")
	if model.KindOf(err) != model.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	after := h.wf.Snapshot()
	if after.Step != before.Step || after.Generation != before.Generation || after.Locked == nil {
		t.Errorf("expected state unchanged, got %+v", after)
	}
}

func TestConfirmResetsFromIssued(t *testing.T) {
	h := newHarness(t)
	h.toLocked(t)
	if _, err := h.wf.Issue(context.Background()); err != nil {
		t.Fatal(err)
	}
	gen := h.wf.Snapshot().Generation

	if err := h.wf.Confirm("s2"); err != nil {
		t.Fatal(err)
	}
	s := h.wf.Snapshot()
	if s.Step != model.StepAuthenticated || s.Locked != nil || len(s.Packs) != 0 || s.Token != "" || s.Message != "" || s.Selected != -1 {
		t.Fatalf("expected full reset, got %+v", s)
	}
	if s.Generation != gen+1 {
		t.Errorf("expected generation bump, got %d -> %d", gen, s.Generation)
	}
	if h.history.Len() != 1 {
		t.Error("expected history untouched by confirm")
	}
}

func TestRefreshAndSelectRefusedOnceLocked(t *testing.T) {
	h := newHarness(t)
	h.packs.packs = []model.Pack{packA, {DisplayName: "B", FormKey: "k2", FormVersion: "v2", Status: "ACTIVE"}}
	h.toLocked(t)

	check := func() {
		t.Helper()
		before := h.wf.Snapshot()
		if _, err := h.wf.Refresh(context.Background()); model.KindOf(err) != model.KindPrecondition {
			t.Fatalf("expected refresh refused, got %v", err)
		}
		if err := h.wf.Select(1); model.KindOf(err) != model.KindPrecondition {
			t.Fatalf("expected select refused, got %v", err)
		}
		if _, err := h.wf.Lock(); model.KindOf(err) != model.KindPrecondition {
			t.Fatalf("expected relock refused, got %v", err)
		}
		after := h.wf.Snapshot()
		if *after.Locked != *before.Locked || len(after.Packs) != len(before.Packs) || after.Selected != before.Selected {
			t.Fatalf("expected cache and lock unchanged")
		}
	}

	check()
	h.wf.Issue(context.Background())
	check()
	h.wf.Issue(context.Background())
	check()

	if calls := h.packs.calls; calls != 1 {
		t.Errorf("expected a single catalog fetch, got %d", calls)
	}
}

func TestSelectInvalidIndexDeselects(t *testing.T) {
	h := newHarness(t)
	h.wf.Confirm("s1")
	h.wf.Refresh(context.Background())

	if err := h.wf.Select(5); err != nil {
		t.Fatal(err)
	}
	s := h.wf.Snapshot()
	if s.Step != model.StepAuthenticated || s.Selected != -1 {
		t.Fatalf("expected deselect to step 1, got %+v", s)
	}
	if err := h.wf.Select(0); err != nil {
		t.Fatal(err)
	}
	if s := h.wf.Snapshot(); s.Step != model.StepPackSelected {
		t.Fatalf("expected step 2, got %s", s.Step)
	}
}

func TestLockRejectsPackWithoutIdentity(t *testing.T) {
	h := newHarness(t)
	h.packs.packs = []model.Pack{{DisplayName: "broken", FormKey: "k1", Active: true}}
	h.wf.Confirm("s1")
	h.wf.Refresh(context.Background())

	_, err := h.wf.Lock()
	if model.KindOf(err) != model.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if s := h.wf.Snapshot(); s.Step != model.StepPackSelected || s.Locked != nil {
		t.Errorf("expected state unchanged, got %+v", s)
	}
}

func TestLockUsesUntitledName(t *testing.T) {
	h := newHarness(t)
	h.packs.packs = []model.Pack{{FormKey: "k1", FormVersion: "v1", Active: true}}
	h.toLocked(t)

	if got := h.wf.Snapshot().Locked.DisplayName; got != model.UntitledPack {
		t.Errorf("expected %q, got %q", model.UntitledPack, got)
	}
}

func TestIssueFailureStaysLocked(t *testing.T) {
	h := newHarness(t)
	h.toLocked(t)
	h.issuer.err = model.Errorf(model.KindServer, "issue", "HTTP 500")

	_, err := h.wf.Issue(context.Background())
	if model.KindOf(err) != model.KindServer {
		t.Fatalf("expected server error surfaced, got %v", err)
	}
	s := h.wf.Snapshot()
	if s.Step != model.StepLocked || s.Locked == nil || s.Token != "" {
		t.Fatalf("expected step 3 with lock kept, got %+v", s)
	}
	if h.issuer.calls.Load() != 1 {
		t.Errorf("expected exactly one attempt, got %d", h.issuer.calls.Load())
	}
	if h.history.Len() != 0 {
		t.Error("expected no history entry on failure")
	}
	if !strings.Contains(h.wf.Status(), "HTTP 500") {
		t.Errorf("expected failure text in status, got %q", h.wf.Status())
	}

	h.issuer.err = nil
	if _, err := h.wf.Issue(context.Background()); err != nil {
		t.Fatalf("expected operator retry to succeed, got %v", err)
	}
}

func TestReissueFromIssuedNeverDropsBelowLocked(t *testing.T) {
	h := newHarness(t)
	h.toLocked(t)
	h.wf.Issue(context.Background())

	h.issuer.token = "T456"
	iss, err := h.wf.Issue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if iss.Token != "T456" || h.wf.Snapshot().Step != model.StepIssued {
		t.Fatalf("expected second issuance applied, got %+v", iss)
	}
	items := h.history.Items()
	if len(items) != 2 || items[0].Token != "T456" || items[1].Token != "T123" {
		t.Errorf("expected both tokens in history, most recent first, got %+v", items)
	}
}

func TestConcurrentIssueIsRefused(t *testing.T) {
	h := newHarness(t)
	h.toLocked(t)
	h.issuer.release = make(chan struct{})
	h.issuer.started = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := h.wf.Issue(context.Background())
		done <- err
	}()
	<-h.issuer.started

	if !h.wf.Snapshot().Issuing || h.wf.Gate().Issue {
		t.Error("expected issue gated while in flight")
	}
	_, err := h.wf.Issue(context.Background())
	if model.KindOf(err) != model.KindPrecondition {
		t.Fatalf("expected second issue refused, got %v", err)
	}

	close(h.issuer.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if n := h.issuer.calls.Load(); n != 1 {
		t.Errorf("expected exactly one issuer call, got %d", n)
	}
}

func TestStaleIssueDiscardedAfterConfirm(t *testing.T) {
	h := newHarness(t)
	h.toLocked(t)
	h.issuer.release = make(chan struct{})
	h.issuer.started = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := h.wf.Issue(context.Background())
		done <- err
	}()
	<-h.issuer.started

	if err := h.wf.Confirm("s2"); err != nil {
		t.Fatal(err)
	}
	close(h.issuer.release)

	err := <-done
	if model.KindOf(err) != model.KindPrecondition {
		t.Fatalf("expected stale result refused, got %v", err)
	}
	s := h.wf.Snapshot()
	if s.Step != model.StepAuthenticated || s.Token != "" || s.Locked != nil {
		t.Fatalf("expected stale token not applied, got %+v", s)
	}
	if h.history.Len() != 1 {
		t.Error("expected minted token kept in history")
	}
	if len(h.clip.texts) != 0 {
		t.Error("expected stale message not copied")
	}
}

func TestStaleIssueFailureIsSilent(t *testing.T) {
	h := newHarness(t)
	h.toLocked(t)
	h.issuer.err = model.Errorf(model.KindServer, "issue token", "HTTP 500")
	h.issuer.release = make(chan struct{})
	h.issuer.started = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := h.wf.Issue(context.Background())
		done <- err
	}()
	<-h.issuer.started

	if err := h.wf.Confirm("s2"); err != nil {
		t.Fatal(err)
	}
	before := h.wf.Snapshot()
	close(h.issuer.release)

	if err := <-done; model.KindOf(err) != model.KindPrecondition {
		t.Fatalf("expected stale failure refused, got %v", err)
	}
	after := h.wf.Snapshot()
	if after.Status != before.Status || after.StatusErr != before.StatusErr {
		t.Errorf("expected status of the new session kept, got %q (was %q)", after.Status, before.Status)
	}

	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	for _, e := range h.notifier.events {
		if e.Type == notify.EventIssueFailed {
			t.Errorf("expected no %s event for a stale failure, got %+v", notify.EventIssueFailed, e)
		}
	}
}

func TestStaleRefreshDiscardedAfterConfirm(t *testing.T) {
	h := newHarness(t)
	h.wf.Confirm("s1")
	h.packs.release = make(chan struct{})
	h.packs.started = make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := h.wf.Refresh(context.Background())
		done <- err
	}()
	<-h.packs.started

	h.wf.Confirm("s2")
	close(h.packs.release)

	if err := <-done; model.KindOf(err) != model.KindPrecondition {
		t.Fatalf("expected stale refresh refused, got %v", err)
	}
	s := h.wf.Snapshot()
	if s.Step != model.StepAuthenticated || len(s.Packs) != 0 || s.Refreshing {
		t.Fatalf("expected stale catalog not applied, got %+v", s)
	}
}

func TestRefreshFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	h.wf.Confirm("s1")
	h.wf.Refresh(context.Background())
	before := h.wf.Snapshot()

	h.packs.err = model.Errorf(model.KindTransport, "fetch packs", "connection refused")
	_, err := h.wf.Refresh(context.Background())
	if model.KindOf(err) != model.KindTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
	after := h.wf.Snapshot()
	if after.Step != before.Step || after.Selected != before.Selected || len(after.Packs) != len(before.Packs) {
		t.Errorf("expected state unchanged, got %+v", after)
	}
}

func TestCopyActionsRequireIssued(t *testing.T) {
	h := newHarness(t)
	h.toLocked(t)

	if err := h.wf.CopyToken(); model.KindOf(err) != model.KindPrecondition {
		t.Fatalf("expected copy-token refused before issue, got %v", err)
	}
	if err := h.wf.CopyMessage(); model.KindOf(err) != model.KindPrecondition {
		t.Fatalf("expected copy-message refused before issue, got %v", err)
	}

	h.wf.Issue(context.Background())
	if err := h.wf.CopyToken(); err != nil {
		t.Fatal(err)
	}
	if h.clip.last() != "T123" {
		t.Errorf("expected token copied, got %q", h.clip.last())
	}
	if err := h.wf.CopyMessage(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(h.clip.last(), "T123") {
		t.Errorf("expected message copied, got %q", h.clip.last())
	}
}

func TestCopyFailureAfterIssuanceIsReportedNotRolledBack(t *testing.T) {
	h := newHarness(t)
	h.toLocked(t)
	h.clip.err = model.Errorf(model.KindCapability, "copy", "no clipboard")

	iss, err := h.wf.Issue(context.Background())
	if err != nil {
		t.Fatalf("expected issuance to succeed, got %v", err)
	}
	if model.KindOf(iss.CopyErr) != model.KindCapability || iss.Copied {
		t.Errorf("expected capability copy error, got %v", iss.CopyErr)
	}
	if s := h.wf.Snapshot(); s.Step != model.StepIssued || !s.StatusErr {
		t.Errorf("expected issued step with error status, got %+v", s)
	}

	if err := h.wf.CopyToken(); model.KindOf(err) != model.KindCapability {
		t.Errorf("expected capability error surfaced, got %v", err)
	}
	if h.wf.Snapshot().Step != model.StepIssued {
		t.Error("expected copy failure not to affect step")
	}
}

func TestHistoryActionsAtAnyStep(t *testing.T) {
	h := newHarness(t)

	text, err := h.wf.ExportHistory()
	if err != nil || text != history.EmptyText {
		t.Fatalf("expected empty sentinel exported, got %q %v", text, err)
	}
	if h.clip.last() != history.EmptyText {
		t.Errorf("expected export copied, got %q", h.clip.last())
	}

	h.toLocked(t)
	h.wf.Issue(context.Background())

	item, err := h.wf.CopyHistoryItem(0)
	if err != nil || item.Token != "T123" || h.clip.last() != "T123" {
		t.Fatalf("expected history token copied, got %+v %v", item, err)
	}
	if _, err := h.wf.CopyHistoryItem(3); model.KindOf(err) != model.KindValidation {
		t.Errorf("expected validation error for missing entry, got %v", err)
	}

	stepBefore := h.wf.Snapshot().Step
	if err := h.wf.ClearHistory(); err != nil {
		t.Fatal(err)
	}
	if h.history.Len() != 0 {
		t.Error("expected history cleared")
	}
	if h.wf.Snapshot().Step != stepBefore {
		t.Error("expected clear-history not to change step")
	}
}

func TestExportReturnsTextWhenCopyFails(t *testing.T) {
	h := newHarness(t)
	h.clip.err = errors.New("no clipboard")

	text, err := h.wf.ExportHistory()
	if err == nil || text != history.EmptyText {
		t.Errorf("expected text with error, got %q %v", text, err)
	}
}

// TestLockInvariantUnderRandomIntents drives random intent sequences and
// checks that a lock exists exactly when the step is locked or issued, and
// that nothing but confirm changes the cache or the lock once locked.
func TestLockInvariantUnderRandomIntents(t *testing.T) {
	h := newHarness(t)
	h.packs.packs = []model.Pack{packA, {DisplayName: "B", FormKey: "k2", FormVersion: "v2", Status: "active"}, {DisplayName: "C", FormKey: "k3", Active: true}}
	rng := rand.New(rand.NewSource(42))
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		before := h.wf.Snapshot()
		intent := Intents[rng.Intn(len(Intents))]
		if rng.Intn(10) == 0 {
			h.issuer.err = errors.New("flaky")
		} else {
			h.issuer.err = nil
		}

		var err error
		switch intent {
		case IntentConfirm:
			secret := "s1"
			if rng.Intn(5) == 0 {
				secret = ""
			}
			err = h.wf.Confirm(secret)
		case IntentRefresh:
			_, err = h.wf.Refresh(ctx)
		case IntentSelect:
			err = h.wf.Select(rng.Intn(5) - 1)
		case IntentLock:
			_, err = h.wf.Lock()
		case IntentIssue:
			_, err = h.wf.Issue(ctx)
		case IntentCopyToken:
			err = h.wf.CopyToken()
		case IntentCopyMessage:
			err = h.wf.CopyMessage()
		case IntentExportHistory:
			_, err = h.wf.ExportHistory()
		case IntentClearHistory:
			err = h.wf.ClearHistory()
		case IntentCopyHistoryItem:
			_, err = h.wf.CopyHistoryItem(rng.Intn(3))
		}

		after := h.wf.Snapshot()
		checkInvariant(t, after)

		if !Permits(before.Step, intent) && model.KindOf(err) != model.KindPrecondition {
			t.Fatalf("step %d: %s at %s should be refused, got %v", i, intent, before.Step, err)
		}
		if model.KindOf(err) == model.KindPrecondition || model.KindOf(err) == model.KindValidation {
			if after.Step != before.Step || after.Generation != before.Generation {
				t.Fatalf("step %d: refused %s changed state %s -> %s", i, intent, before.Step, after.Step)
			}
		}
		if intent != IntentConfirm && before.Step >= model.StepLocked {
			if after.Locked == nil || *after.Locked != *before.Locked || len(after.Packs) != len(before.Packs) || after.Selected != before.Selected {
				t.Fatalf("step %d: %s changed lock or cache while locked", i, intent)
			}
		}
		if intent == IntentConfirm && err == nil {
			if after.Step != model.StepAuthenticated || after.Locked != nil || len(after.Packs) != 0 {
				t.Fatalf("step %d: confirm did not reset", i)
			}
		}
	}
}

func TestProjectGate(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want []Intent
	}{
		{"unauthenticated", Snapshot{Step: model.StepUnauthenticated, Selected: -1},
			[]Intent{IntentConfirm, IntentExportHistory, IntentClearHistory, IntentCopyHistoryItem}},
		{"authenticated empty", Snapshot{Step: model.StepAuthenticated, Selected: -1},
			[]Intent{IntentConfirm, IntentRefresh, IntentExportHistory, IntentClearHistory, IntentCopyHistoryItem}},
		{"selected", Snapshot{Step: model.StepPackSelected, Packs: []model.Pack{packA}, Selected: 0},
			[]Intent{IntentConfirm, IntentRefresh, IntentSelect, IntentLock, IntentExportHistory, IntentClearHistory, IntentCopyHistoryItem}},
		{"locked", Snapshot{Step: model.StepLocked, Packs: []model.Pack{packA}, Selected: 0, Locked: &model.LockedPack{FormKey: "k1", FormVersion: "v1"}},
			[]Intent{IntentConfirm, IntentIssue, IntentExportHistory, IntentClearHistory, IntentCopyHistoryItem}},
		{"issuing", Snapshot{Step: model.StepLocked, Locked: &model.LockedPack{FormKey: "k1", FormVersion: "v1"}, Issuing: true, Selected: -1},
			[]Intent{IntentConfirm, IntentExportHistory, IntentClearHistory, IntentCopyHistoryItem}},
		{"issued", Snapshot{Step: model.StepIssued, Locked: &model.LockedPack{FormKey: "k1", FormVersion: "v1"}, Token: "T", Message: "M", Selected: -1},
			[]Intent{IntentConfirm, IntentIssue, IntentCopyToken, IntentCopyMessage, IntentExportHistory, IntentClearHistory, IntentCopyHistoryItem}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Project(tt.snap)
			allowed := map[Intent]bool{}
			for _, i := range tt.want {
				allowed[i] = true
			}
			for _, i := range Intents {
				if g.Allows(i) != allowed[i] {
					t.Errorf("%s: expected allowed=%v", i, allowed[i])
				}
			}
		})
	}
}
