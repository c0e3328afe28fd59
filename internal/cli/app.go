package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ppiankov/tokendesk/internal/catalog"
	"github.com/ppiankov/tokendesk/internal/clipboard"
	"github.com/ppiankov/tokendesk/internal/config"
	"github.com/ppiankov/tokendesk/internal/history"
	"github.com/ppiankov/tokendesk/internal/issuer"
	"github.com/ppiankov/tokendesk/internal/journal"
	"github.com/ppiankov/tokendesk/internal/kvstore"
	"github.com/ppiankov/tokendesk/internal/notify"
	"github.com/ppiankov/tokendesk/internal/remote"
	"github.com/ppiankov/tokendesk/internal/workflow"
)

// app holds the wired collaborators shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    kvstore.Store
	history  *history.Log
	packs    *catalog.Repository
	issuer   *issuer.Issuer
	journal  *journal.Log
	notifier *notify.Dispatcher
}

// loadApp reads the config and opens local state. With remote set the
// issuer settings are validated and the catalog and issuer are wired.
func loadApp(remoteNeeded bool) (*app, error) {
	logger, err := newLogger(logLevel)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if remoteNeeded {
		err = cfg.RequireRemote()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := kvstore.Open(cfg.History.Backend, storePath(cfg.History))
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	hist, err := history.Open(store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: store, history: hist}
	if remoteNeeded {
		client := remote.New(cfg.BaseURL, remote.WithTimeout(cfg.Timeout), remote.WithUserAgent("tokendesk/"+version))
		a.packs = catalog.NewRepository(client)
		a.issuer = issuer.New(client)
	}
	return a, nil
}

// storePath points the sqlite backend at a database file when the
// configured path is a directory.
func storePath(h config.HistoryConfig) string {
	if h.Backend != kvstore.BackendSQLite || h.Path == "" {
		return h.Path
	}
	if info, err := os.Stat(h.Path); err == nil && info.IsDir() {
		return filepath.Join(h.Path, "tokendesk.db")
	}
	return h.Path
}

// historyFile returns the file an external writer would rewrite, or "" when
// the backend has no single watchable file.
func (a *app) historyFile() string {
	if fs, ok := a.store.(*kvstore.FileStore); ok {
		return fs.Path(history.Key)
	}
	return ""
}

// newWorkflow opens the journal and notifier and builds a Workflow.
func (a *app) newWorkflow(clip clipboard.Copier) (*workflow.Workflow, error) {
	tpl, err := a.cfg.MessageTemplate()
	if err != nil {
		return nil, err
	}
	if a.cfg.JournalPath != "" {
		a.journal, err = journal.Open(a.cfg.JournalPath)
		if err != nil {
			return nil, err
		}
	}
	a.notifier = notify.NewDispatcher(a.cfg.Notify, a.logger)

	wcfg := workflow.Config{
		Packs:     a.packs,
		Issuer:    a.issuer,
		History:   a.history,
		Clipboard: clip,
		Notifier:  a.notifier,
		Logger:    a.logger,
		Link:      a.cfg.EntryLink,
		Template:  tpl,
		AutoCopy:  a.cfg.AutoCopy,
	}
	if a.journal != nil {
		wcfg.Journal = a.journal
	}
	return workflow.New(wcfg)
}

func (a *app) newClipboard() (*clipboard.Service, error) {
	return clipboard.New(a.cfg.Clipboard)
}

// Close drains pending webhooks and releases local state.
func (a *app) Close() {
	a.notifier.Wait()
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("journal close failed", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("history store close failed", "error", err)
	}
}
