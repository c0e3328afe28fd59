package workflow

import "github.com/ppiankov/tokendesk/internal/model"

// Intent names an operator action.
type Intent string

const (
	IntentConfirm         Intent = "confirm"
	IntentRefresh         Intent = "refresh"
	IntentSelect          Intent = "select"
	IntentLock            Intent = "lock"
	IntentIssue           Intent = "issue"
	IntentCopyToken       Intent = "copy-token"
	IntentCopyMessage     Intent = "copy-message"
	IntentExportHistory   Intent = "export-history"
	IntentClearHistory    Intent = "clear-history"
	IntentCopyHistoryItem Intent = "copy-history-item"
)

// Intents lists every intent in display order.
var Intents = []Intent{
	IntentConfirm, IntentRefresh, IntentSelect, IntentLock, IntentIssue,
	IntentCopyToken, IntentCopyMessage,
	IntentExportHistory, IntentClearHistory, IntentCopyHistoryItem,
}

type stepRange struct{ min, max model.Step }

// permitted is the transition table: the closed step range in which each
// intent is accepted. Refresh and select stop at StepPackSelected, so they
// stay unavailable for as long as a lock exists.
var permitted = map[Intent]stepRange{
	IntentConfirm:         {model.StepUnauthenticated, model.StepIssued},
	IntentRefresh:         {model.StepAuthenticated, model.StepPackSelected},
	IntentSelect:          {model.StepAuthenticated, model.StepPackSelected},
	IntentLock:            {model.StepPackSelected, model.StepPackSelected},
	IntentIssue:           {model.StepLocked, model.StepIssued},
	IntentCopyToken:       {model.StepIssued, model.StepIssued},
	IntentCopyMessage:     {model.StepIssued, model.StepIssued},
	IntentExportHistory:   {model.StepUnauthenticated, model.StepIssued},
	IntentClearHistory:    {model.StepUnauthenticated, model.StepIssued},
	IntentCopyHistoryItem: {model.StepUnauthenticated, model.StepIssued},
}

// Permits reports whether intent is accepted at step.
func Permits(step model.Step, intent Intent) bool {
	r, ok := permitted[intent]
	return ok && step >= r.min && step <= r.max
}

// Snapshot is a point-in-time copy of the workflow state. The secret is
// never included; SecretSet reports whether one is confirmed.
type Snapshot struct {
	Step       model.Step
	Generation uint64
	SecretSet  bool
	Packs      []model.Pack
	Selected   int
	Locked     *model.LockedPack
	Token      string
	Message    string
	Refreshing bool
	Issuing    bool
	Status     string
	StatusErr  bool
}

// SelectedPack returns the selected cache entry, if any.
func (s Snapshot) SelectedPack() (model.Pack, bool) {
	if s.Selected < 0 || s.Selected >= len(s.Packs) {
		return model.Pack{}, false
	}
	return s.Packs[s.Selected], true
}

// Gate is the set of actions a surface may offer right now.
type Gate struct {
	Step          model.Step
	Confirm       bool
	Refresh       bool
	Select        bool
	Lock          bool
	Issue         bool
	CopyToken     bool
	CopyMessage   bool
	ExportHistory bool
	ClearHistory  bool
	CopyHistory   bool
	Busy          bool
}

// Allows reports whether the gate offers intent.
func (g Gate) Allows(intent Intent) bool {
	switch intent {
	case IntentConfirm:
		return g.Confirm
	case IntentRefresh:
		return g.Refresh
	case IntentSelect:
		return g.Select
	case IntentLock:
		return g.Lock
	case IntentIssue:
		return g.Issue
	case IntentCopyToken:
		return g.CopyToken
	case IntentCopyMessage:
		return g.CopyMessage
	case IntentExportHistory:
		return g.ExportHistory
	case IntentClearHistory:
		return g.ClearHistory
	case IntentCopyHistoryItem:
		return g.CopyHistory
	}
	return false
}

// Project renders a snapshot into a gate. It is pure; every surface derives
// its enabled controls from it.
func Project(s Snapshot) Gate {
	_, hasSelection := s.SelectedPack()
	return Gate{
		Step:          s.Step,
		Confirm:       Permits(s.Step, IntentConfirm),
		Refresh:       Permits(s.Step, IntentRefresh) && !s.Refreshing,
		Select:        Permits(s.Step, IntentSelect) && len(s.Packs) > 0,
		Lock:          Permits(s.Step, IntentLock) && hasSelection,
		Issue:         Permits(s.Step, IntentIssue) && s.Locked != nil && !s.Issuing,
		CopyToken:     Permits(s.Step, IntentCopyToken) && s.Token != "",
		CopyMessage:   Permits(s.Step, IntentCopyMessage) && s.Message != "",
		ExportHistory: Permits(s.Step, IntentExportHistory),
		ClearHistory:  Permits(s.Step, IntentClearHistory),
		CopyHistory:   Permits(s.Step, IntentCopyHistoryItem),
		Busy:          s.Refreshing || s.Issuing,
	}
}
