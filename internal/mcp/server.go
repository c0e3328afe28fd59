// Package mcp exposes read-only tokendesk tools over the Model Context
// Protocol. Issuance is deliberately absent: it stays operator-driven.
package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/tokendesk/internal/model"
)

// PackSource fetches the active packs.
type PackSource interface {
	FetchActive(ctx context.Context, secret string) ([]model.Pack, error)
}

// HistorySource lists issued credentials, most recent first.
type HistorySource interface {
	Items() []model.HistoryItem
	Reload()
}

// Config holds MCP server configuration.
type Config struct {
	Packs PackSource
	// AdminKey authenticates catalog lookups. Without it the packs tool
	// reports a validation error.
	AdminKey    string
	History     HistorySource
	Link        string
	Template    string
	JournalPath string
	Version     string
}

// Server wraps the MCP SDK server with the tokendesk tools.
type Server struct {
	mcpServer *mcpsdk.Server
	cfg       Config
}

// New creates an MCP server with its tools registered.
func New(cfg Config) (*Server, error) {
	if cfg.Packs == nil || cfg.History == nil {
		return nil, fmt.Errorf("mcp: packs and history are required")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	s := &Server{cfg: cfg}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "tokendesk",
			Version: cfg.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "tokendesk_packs",
		Description: "List the active configuration packs (display name, form_key, form_version) known to the issuer.",
	}, s.handlePacks)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "tokendesk_history",
		Description: "List recently issued credentials, most recent first. Tokens are masked.",
	}, s.handleHistory)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "tokendesk_compose",
		Description: "Render the operator message template for a given entry link and token.",
	}, s.handleCompose)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "tokendesk_journal_verify",
		Description: "Verify the hash chain of the operation journal.",
	}, s.handleJournalVerify)
}
