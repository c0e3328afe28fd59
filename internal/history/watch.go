package history

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDefault coalesces the create/rename/write burst of one atomic save.
const debounceDefault = 200 * time.Millisecond

// Watch calls onChange whenever the file at path is rewritten or removed by
// any process, including this one. The parent directory is watched because
// atomic saves replace the file. Blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	name := filepath.Base(path)

	// Initialized as stopped; first event starts it.
	debounceTimer := time.NewTimer(debounceDefault)
	debounceTimer.Stop()
	defer debounceTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-debounceTimer.C:
			onChange()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(debounceDefault)

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}
