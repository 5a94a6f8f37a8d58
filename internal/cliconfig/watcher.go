package cliconfig

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/retransmit/internal/ports"
)

// DefaultDebounceDelay is how long the watcher waits after the last write
// before reloading.
const DefaultDebounceDelay = 100 * time.Millisecond

// Watcher monitors the config file via fsnotify and reports peer list changes.
// Only the peer list is reloaded; retry settings are fixed for the process.
type Watcher struct {
	path     string
	logger   ports.Logger
	onPeers  func([]string)
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the config file at path.
// onPeers is called with the new peer list after every successful reload.
func NewWatcher(path string, logger ports.Logger, onPeers func([]string)) *Watcher {
	return &Watcher{
		path:     path,
		logger:   logger,
		onPeers:  onPeers,
		debounce: DefaultDebounceDelay,
	}
}

// Run watches the directory containing the config file until ctx is done.
// The directory is watched rather than the file so editors that replace the
// file on save are handled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.logger.Info("watching config file for peer changes", ports.String("path", w.path))

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watcher error", ports.Err(err))
		}
	}
}

func (w *Watcher) scheduleReload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload()
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	fc, err := LoadFileConfig(w.path)
	if err != nil {
		w.logger.Error("failed to reload config file",
			ports.String("path", w.path),
			ports.Err(err),
		)
		return
	}
	if len(fc.Peers) == 0 {
		w.logger.Warn("reloaded config has no peers, keeping current list")
		return
	}

	w.logger.Info("peer list reloaded", ports.Int("peers", len(fc.Peers)))
	w.onPeers(fc.Peers)
}
