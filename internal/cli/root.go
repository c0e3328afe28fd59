package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tokendesk/internal/redact"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "tokendesk",
	Short: "Guarded issuance of single-use form credentials",
	Long: `Issues one-time credentials for configuration packs through a gated workflow:
confirm the admin secret, refresh the pack list, select and lock a pack, then issue.
Each issued credential is composed into a shareable message and kept in a bounded history.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.tokendesk/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger writes structured logs to stderr with secrets and tokens masked.
func newLogger(level string) (*slog.Logger, error) {
	var lv slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lv = slog.LevelDebug
	case "info":
		lv = slog.LevelInfo
	case "", "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       lv,
		ReplaceAttr: redact.ReplaceAttr(nil),
	})
	return slog.New(h), nil
}
