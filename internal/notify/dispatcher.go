package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher fans out events to matching webhook configurations.
type Dispatcher struct {
	configs []Config
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty; a nil Dispatcher drops every event.
func NewDispatcher(configs []Config, logger *slog.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{configs: configs, logger: logger}
}

// Dispatch sends the event to every webhook whose Events list matches.
// Delivery runs in the background; use Wait to drain before exit.
func (d *Dispatcher) Dispatch(event Event) {
	if d == nil {
		return
	}
	for _, cfg := range d.configs {
		if !matches(cfg.Events, event) {
			continue
		}
		d.wg.Add(1)
		go func(cfg Config) {
			defer d.wg.Done()
			if err := Send(context.Background(), cfg, event); err != nil {
				d.logger.Warn("webhook delivery failed", "url", cfg.URL, "event", event.Type, "error", err)
			}
		}(cfg)
	}
}

// Wait blocks until every dispatched delivery has finished.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

func matches(events []string, event Event) bool {
	if len(events) == 0 {
		return true
	}
	for _, e := range events {
		if e == event.Type {
			return true
		}
	}
	return false
}
