package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 50 * time.Millisecond

// Watcher reports artifact rewrites. It watches the artifact's directory so
// atomic renames are seen.
type Watcher struct {
	store    *ArtifactStore
	log      *slog.Logger
	debounce time.Duration
	fs       *fsnotify.Watcher
	name     string
}

// NewWatcher starts watching the store's directory. Changes made after it
// returns are reported by Run.
func NewWatcher(store *ArtifactStore, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	dir := filepath.Dir(store.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		store:    store,
		log:      log,
		debounce: defaultDebounce,
		fs:       fs,
		name:     filepath.Base(store.Path()),
	}, nil
}

// Run calls onChange with each newly written artifact until ctx is done.
// Unreadable artifacts are logged and skipped.
func (w *Watcher) Run(ctx context.Context, onChange func(Artifact)) error {
	defer w.fs.Close()

	// Editors and atomic writers emit several events per save
	timer := time.NewTimer(0)
	<-timer.C
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != w.name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = true
			timer.Reset(w.debounce)

		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			a, ok, err := w.store.Load()
			if err != nil {
				w.log.Warn("Failed to reload tuning artifact", "path", w.store.Path(), "error", err)
				continue
			}
			if !ok {
				continue
			}
			w.log.Info("Tuning artifact changed", "path", w.store.Path(), "thread_count", a.ThreadCount)
			onChange(a)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("Artifact watcher error", "error", err)
		}
	}
}
