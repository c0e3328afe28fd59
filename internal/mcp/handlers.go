package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/tokendesk/internal/compose"
	"github.com/ppiankov/tokendesk/internal/history"
	"github.com/ppiankov/tokendesk/internal/journal"
	"github.com/ppiankov/tokendesk/internal/redact"
)

// --- Input/Output types ---

// PacksInput is empty; the admin key comes from the server configuration.
type PacksInput struct{}

// PackItem is one active pack.
type PackItem struct {
	DisplayName string `json:"display_name"`
	FormKey     string `json:"form_key"`
	FormVersion string `json:"form_version"`
}

// PacksOutput lists active packs or the lookup failure.
type PacksOutput struct {
	Packs []PackItem `json:"packs"`
	Error string     `json:"error,omitempty"`
}

// HistoryInput limits the number of returned entries.
type HistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of entries (default 20)"`
}

// HistoryEntry is a history item with the token masked.
type HistoryEntry struct {
	IssuedAt    string `json:"issued_at"`
	DisplayName string `json:"display_name"`
	FormKey     string `json:"form_key"`
	FormVersion string `json:"form_version"`
	Token       string `json:"token"`
}

// HistoryOutput lists history entries.
type HistoryOutput struct {
	Total   int            `json:"total"`
	Entries []HistoryEntry `json:"entries"`
}

// ComposeInput defines parameters for the compose tool.
type ComposeInput struct {
	Token    string `json:"token" jsonschema:"credential to place in the message"`
	Link     string `json:"link,omitempty" jsonschema:"entry link (defaults to the configured link)"`
	Template string `json:"template,omitempty" jsonschema:"template with {link} and {token} placeholders (defaults to the configured template)"`
}

// ComposeOutput is the rendered message.
type ComposeOutput struct {
	Message string `json:"message"`
}

// JournalVerifyInput is empty.
type JournalVerifyInput struct{}

const defaultHistoryLimit = 20

func (s *Server) handlePacks(ctx context.Context, req *mcpsdk.CallToolRequest, input PacksInput) (*mcpsdk.CallToolResult, PacksOutput, error) {
	packs, err := s.cfg.Packs.FetchActive(ctx, s.cfg.AdminKey)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, PacksOutput{Packs: []PackItem{}, Error: err.Error()}, nil
	}
	out := PacksOutput{Packs: make([]PackItem, len(packs))}
	for i, p := range packs {
		out.Packs[i] = PackItem{DisplayName: p.Label(), FormKey: p.FormKey, FormVersion: p.FormVersion}
	}
	return nil, out, nil
}

func (s *Server) handleHistory(ctx context.Context, req *mcpsdk.CallToolRequest, input HistoryInput) (*mcpsdk.CallToolResult, HistoryOutput, error) {
	s.cfg.History.Reload()
	items := s.cfg.History.Items()

	limit := input.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > history.Limit {
		limit = history.Limit
	}
	out := HistoryOutput{Total: len(items), Entries: []HistoryEntry{}}
	for i, it := range items {
		if i >= limit {
			break
		}
		out.Entries = append(out.Entries, HistoryEntry{
			IssuedAt:    it.IssuedAt,
			DisplayName: it.DisplayName,
			FormKey:     it.FormKey,
			FormVersion: it.FormVersion,
			Token:       redact.MaskToken(it.Token),
		})
	}
	return nil, out, nil
}

func (s *Server) handleCompose(ctx context.Context, req *mcpsdk.CallToolRequest, input ComposeInput) (*mcpsdk.CallToolResult, ComposeOutput, error) {
	link := input.Link
	if link == "" {
		link = s.cfg.Link
	}
	tpl := input.Template
	if tpl == "" {
		tpl = s.cfg.Template
	}
	return nil, ComposeOutput{Message: compose.Compose(tpl, link, input.Token)}, nil
}

func (s *Server) handleJournalVerify(ctx context.Context, req *mcpsdk.CallToolRequest, input JournalVerifyInput) (*mcpsdk.CallToolResult, journal.VerifyResult, error) {
	result := journal.Verify(s.cfg.JournalPath)
	if !result.Valid {
		return &mcpsdk.CallToolResult{IsError: true}, result, nil
	}
	return nil, result, nil
}
