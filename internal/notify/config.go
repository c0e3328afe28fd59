// Package notify posts workflow events to operator webhooks.
package notify

// Event types.
const (
	EventIssued         = "issued"
	EventIssueFailed    = "issue_failed"
	EventHistoryCleared = "history_cleared"
)

// Config defines a webhook destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack"
	Events  []string          `yaml:"events"  json:"events"` // empty means every event
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints. It never carries the
// issued credential itself, only its fingerprint.
type Event struct {
	Timestamp   string `json:"timestamp"`
	Session     string `json:"session"`
	Type        string `json:"type"`
	DisplayName string `json:"display_name,omitempty"`
	FormKey     string `json:"form_key,omitempty"`
	FormVersion string `json:"form_version,omitempty"`
	TokenFP     string `json:"token_fp,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
