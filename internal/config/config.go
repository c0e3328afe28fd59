// Package config loads the tokendesk configuration file and applies
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/tokendesk/internal/clipboard"
	"github.com/ppiankov/tokendesk/internal/compose"
	"github.com/ppiankov/tokendesk/internal/kvstore"
	"github.com/ppiankov/tokendesk/internal/notify"
)

// Environment variables that override the file.
const (
	EnvBaseURL   = "TOKENDESK_BASE_URL"
	EnvEntryLink = "TOKENDESK_ENTRY_LINK"
	EnvAdminKey  = "TOKENDESK_ADMIN_KEY"
)

// HistoryConfig selects where the audit log is kept.
type HistoryConfig struct {
	Backend string `yaml:"backend"`
	// Path is a directory for the file backend and a database file for sqlite.
	Path string `yaml:"path"`
}

// Config holds every configurable tokendesk parameter.
type Config struct {
	BaseURL      string          `yaml:"base_url"`
	EntryLink    string          `yaml:"entry_link"`
	TemplatePath string          `yaml:"template_path"`
	Template     string          `yaml:"template"`
	Timeout      time.Duration   `yaml:"timeout"`
	AutoCopy     bool            `yaml:"auto_copy"`
	Clipboard    string          `yaml:"clipboard"`
	History      HistoryConfig   `yaml:"history"`
	JournalPath  string          `yaml:"journal_path"`
	Notify       []notify.Config `yaml:"notify"`

	// AdminKey comes from the environment only and is never written out.
	AdminKey string `yaml:"-"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	dir := kvstore.DefaultDir()
	return &Config{
		Timeout:   15 * time.Second,
		AutoCopy:  true,
		Clipboard: clipboard.ModeAuto,
		History: HistoryConfig{
			Backend: kvstore.BackendFile,
			Path:    dir,
		},
		JournalPath: filepath.Join(dir, "journal.jsonl"),
	}
}

// DefaultPath returns ~/.tokendesk/config.yaml.
func DefaultPath() string {
	return filepath.Join(kvstore.DefaultDir(), "config.yaml")
}

// LoadConfig loads configuration from a YAML file and applies environment
// overrides. Empty path falls back to DefaultPath. Missing file returns
// defaults. Invalid YAML returns an error.
func LoadConfig(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Start with defaults, YAML overwrites only specified fields
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if v := getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := getenv(EnvEntryLink); v != "" {
		cfg.EntryLink = v
	}
	cfg.AdminKey = strings.TrimSpace(getenv(EnvAdminKey))

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.TemplatePath = expandHome(cfg.TemplatePath)
	cfg.History.Path = expandHome(cfg.History.Path)
	cfg.JournalPath = expandHome(cfg.JournalPath)
	return cfg, nil
}

// Validate checks the settings every command relies on.
func (c *Config) Validate() error {
	switch c.History.Backend {
	case kvstore.BackendFile, kvstore.BackendSQLite:
	default:
		return fmt.Errorf("history.backend must be %q or %q, got %q", kvstore.BackendFile, kvstore.BackendSQLite, c.History.Backend)
	}
	switch c.Clipboard {
	case clipboard.ModeAuto, clipboard.ModeNative, clipboard.ModeOSC52:
	default:
		return fmt.Errorf("clipboard must be auto, native or osc52, got %q", c.Clipboard)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	for i, n := range c.Notify {
		if n.URL == "" {
			return fmt.Errorf("notify[%d]: url is required", i)
		}
	}
	return nil
}

// RequireRemote validates the settings needed to reach the issuer.
func (c *Config) RequireRemote() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is not set (config file or %s)", EnvBaseURL)
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base_url must start with http:// or https://, got %q", c.BaseURL)
	}
	return nil
}

// MessageTemplate returns the configured template: the inline template
// wins, then template_path, then the built-in default.
func (c *Config) MessageTemplate() (string, error) {
	if strings.TrimSpace(c.Template) != "" {
		return c.Template, nil
	}
	tpl, err := compose.LoadTemplate(c.TemplatePath)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(tpl) == "" {
		return compose.DefaultTemplate, nil
	}
	return tpl, nil
}

// WriteDefault writes a starter config to path. An existing file is kept
// unless force is set.
func WriteDefault(path string, force bool) error {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	cfg := DefaultConfig()
	cfg.BaseURL = "https://issuer.example.com"
	cfg.EntryLink = "https://forms.example.com/enter"
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	header := "# tokendesk configuration. The admin secret is never stored here;\n# set " + EnvAdminKey + " or enter it at the prompt.\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
