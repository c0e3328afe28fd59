package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// Tail returns the last n well-formed entries of the journal, oldest first.
// n <= 0 returns every entry.
func Tail(path string, n int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
		if n > 0 && len(entries) > n {
			entries = entries[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}

// FormatTimeline renders entries as a human-readable text timeline.
func FormatTimeline(entries []Entry) string {
	if len(entries) == 0 {
		return "Journal is empty.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Journal | %s to %s UTC\n",
		formatDateTime(entries[0].Timestamp), formatDateTime(entries[len(entries)-1].Timestamp))
	b.WriteString(separator + "\n")

	counts := map[string]int{}
	for _, e := range entries {
		counts[e.Outcome]++
		detail := e.Reason
		if e.TokenFP != "" {
			detail = e.TokenFP
		}
		form := ""
		if e.FormKey != "" {
			form = e.FormKey + "@" + e.FormVersion
		}
		fmt.Fprintf(&b, "%-10s %-16s %-14s %-9s %-20s %s\n",
			formatTimeOnly(e.Timestamp), e.Intent, e.Step, strings.ToUpper(e.Outcome),
			truncate(form, 20), truncate(detail, 40))
	}

	b.WriteString(separator + "\n")
	parts := []string{}
	for _, o := range []string{OutcomeOK, OutcomeRejected, OutcomeFailed, OutcomeStale} {
		if counts[o] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[o], o))
		}
	}
	fmt.Fprintf(&b, "Summary: %d entries | %s\n", len(entries), strings.Join(parts, ", "))
	return b.String()
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
