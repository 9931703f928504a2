package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/EOSC-Data-Commons/req-packager/internal/logging"
	"github.com/EOSC-Data-Commons/req-packager/internal/metrics"
)

// Watcher reloads the catalog when its file changes and hands each valid
// snapshot to a callback. An invalid file is logged and the previous
// snapshot stays in effect.
type Watcher struct {
	path     string
	onReload func(*Snapshot)
	debounce time.Duration
}

// NewWatcher watches path. onReload runs on the watcher goroutine.
func NewWatcher(path string, onReload func(*Snapshot)) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		onReload: onReload,
		debounce: 250 * time.Millisecond, // editors write in bursts
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	// Watch the directory: atomic saves replace the file and drop a
	// watch placed on the file itself.
	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logging.Info("watching catalog", zap.String("path", w.path))

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			fire = time.After(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.Warn("catalog watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			w.Reload()
		}
	}
}

// Reload loads the file now and reports whether a new snapshot was
// accepted.
func (w *Watcher) Reload() bool {
	snap, err := Load(w.path)
	if err != nil {
		metrics.RecordCatalogReload(false)
		logging.Error("catalog reload rejected, keeping previous snapshot", zap.Error(err))
		return false
	}
	metrics.RecordCatalogReload(true)
	logging.Info("catalog reloaded",
		zap.Int("tools", len(snap.order)),
		zap.Int("repositories", len(snap.repositories)))
	w.onReload(snap)
	return true
}
