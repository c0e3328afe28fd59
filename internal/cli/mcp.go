package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	tdmcp "github.com/ppiankov/tokendesk/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: `Runs tokendesk as an MCP (Model Context Protocol) server over stdio.
Exposes read-only tools: packs, history (masked), compose, journal verify.
Issuing credentials is not exposed.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	tpl, err := a.cfg.MessageTemplate()
	if err != nil {
		return err
	}
	srv, err := tdmcp.New(tdmcp.Config{
		Packs:       a.packs,
		AdminKey:    a.cfg.AdminKey,
		History:     a.history,
		Link:        a.cfg.EntryLink,
		Template:    tpl,
		JournalPath: a.cfg.JournalPath,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "tokendesk MCP server running on stdio")
	return srv.Run(ctx)
}
