// Package history keeps the bounded record of issued credentials. The list
// is most recent first, capped at Limit entries, and persisted as a single
// named record.
package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ppiankov/tokendesk/internal/kvstore"
	"github.com/ppiankov/tokendesk/internal/model"
)

const (
	// Key names the persisted record.
	Key = "tokendesk_issue_history_v1"
	// Limit caps the number of kept entries; the oldest are evicted first.
	Limit = 200
	// EmptyText is returned by ExportText when there are no records.
	EmptyText = "No records"
)

// Log is the audit log of issued credentials.
type Log struct {
	store  kvstore.Store
	logger *slog.Logger

	mu    sync.Mutex
	items []model.HistoryItem
}

// Open loads the log from store. Unreadable or corrupt data degrades to an
// empty log; Open itself only fails on a nil store.
func Open(store kvstore.Store, logger *slog.Logger) (*Log, error) {
	if store == nil {
		return nil, fmt.Errorf("history: store is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	l := &Log{store: store, logger: logger}
	l.items = l.load()
	return l, nil
}

// Reload re-reads the persisted record, replacing the in-memory copy.
func (l *Log) Reload() {
	items := l.load()
	l.mu.Lock()
	l.items = items
	l.mu.Unlock()
}

func (l *Log) load() []model.HistoryItem {
	raw, ok, err := l.store.Get(Key)
	if err != nil {
		l.logger.Warn("history unreadable, starting empty", "error", err)
		return nil
	}
	items, err := decode(raw, ok)
	if err != nil {
		l.logger.Warn("history corrupt, starting empty", "error", err)
		return nil
	}
	return items
}

// refreshLocked picks up writes made through other handles on the same
// store. A read failure keeps the in-memory copy. Caller holds l.mu.
func (l *Log) refreshLocked() {
	raw, ok, err := l.store.Get(Key)
	if err != nil {
		l.logger.Debug("history unreadable, keeping in-memory copy", "error", err)
		return
	}
	items, err := decode(raw, ok)
	if err != nil {
		l.logger.Warn("history corrupt, treating as empty", "error", err)
	}
	l.items = items
}

func decode(raw []byte, ok bool) ([]model.HistoryItem, error) {
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var items []model.HistoryItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	if len(items) > Limit {
		items = items[:Limit]
	}
	return items, nil
}

func prepend(item model.HistoryItem, items []model.HistoryItem) []model.HistoryItem {
	out := make([]model.HistoryItem, 0, len(items)+1)
	out = append(out, item)
	out = append(out, items...)
	if len(out) > Limit {
		out = out[:Limit]
	}
	return out
}

// Append records item as the most recent entry and persists the list,
// evicting the oldest entries beyond Limit. The persisted list is re-read
// and rewritten in one store update, so entries appended by other processes
// since Open are kept. When persisting fails the item is still kept in
// memory for this session.
func (l *Log) Append(item model.HistoryItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var next []model.HistoryItem
	err := l.store.Update(Key, func(old []byte, ok bool) ([]byte, error) {
		current, err := decode(old, ok)
		if err != nil {
			l.logger.Warn("history corrupt, overwriting", "error", err)
		}
		next = prepend(item, current)
		data, err := json.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("marshal: %w", err)
		}
		return data, nil
	})
	if err != nil {
		l.items = prepend(item, l.items)
		return fmt.Errorf("history: persist: %w", err)
	}
	l.items = next
	return nil
}

// Items returns a copy of the log, most recent first.
func (l *Log) Items() []model.HistoryItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshLocked()
	out := make([]model.HistoryItem, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshLocked()
	return len(l.items)
}

// Item returns the i-th most recent entry.
func (l *Log) Item(i int) (model.HistoryItem, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshLocked()
	if i < 0 || i >= len(l.items) {
		return model.HistoryItem{}, false
	}
	return l.items[i], true
}

// Clear erases the persisted log. The in-memory copy is only dropped once
// the store delete succeeds.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.Delete(Key); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	l.items = nil
	return nil
}

// ExportText renders the log for pasting elsewhere.
func (l *Log) ExportText() string {
	return FormatText(l.Items())
}

// FormatText renders items as blocks of
//
//	[issued_at] display_name (form_version)
//	token: <token>
//
// separated by blank lines, newest first.
func FormatText(items []model.HistoryItem) string {
	if len(items) == 0 {
		return EmptyText
	}
	blocks := make([]string, len(items))
	for i, it := range items {
		blocks[i] = fmt.Sprintf("[%s] %s (%s)\ntoken: %s\n", it.IssuedAt, it.DisplayName, it.FormVersion, it.Token)
	}
	return strings.Join(blocks, "\n")
}
