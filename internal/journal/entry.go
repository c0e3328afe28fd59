package journal

// Outcome values recorded per entry.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeStale    = "stale"
)

// Entry is one line in the hash-chained JSONL journal.
// Plain struct fields keep json.Marshal field order stable so line hashes
// are reproducible. The raw token is never recorded, only its fingerprint.
type Entry struct {
	Timestamp   string `json:"ts"`
	Session     string `json:"session"`
	Generation  uint64 `json:"generation"`
	Intent      string `json:"intent"`
	Step        string `json:"step"`
	Outcome     string `json:"outcome"`
	Reason      string `json:"reason,omitempty"`
	FormKey     string `json:"form_key,omitempty"`
	FormVersion string `json:"form_version,omitempty"`
	TokenFP     string `json:"token_fp,omitempty"`
	PrevHash    string `json:"prev_hash"`
}
