// Package watcher reports changes to a single file using OS notifications.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Event represents a change to the watched file.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher monitors one file. The parent directory is watched so the file
// may be created, truncated, rotated or removed while it runs.
type Watcher struct {
	fsw    *fsnotify.Watcher
	path   string
	Events chan Event
	logger *slog.Logger
}

// New creates a Watcher for path. The parent directory must exist.
func New(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("cannot watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		fsw:    fsw,
		path:   abs,
		Events: make(chan Event, 64),
		logger: logger.With("component", "watcher", "path", abs),
	}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Start forwards events for the watched file until ctx is cancelled.
// Events is closed when Start returns.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()
	defer close(w.Events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			switch {
			case ev.Has(fsnotify.Write),
				ev.Has(fsnotify.Create),
				ev.Has(fsnotify.Remove),
				ev.Has(fsnotify.Rename):
				select {
				case w.Events <- Event{Path: ev.Name, Op: ev.Op}:
				case <-ctx.Done():
					return
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// Follow calls onChange after every change to path until ctx is cancelled.
func Follow(ctx context.Context, path string, logger *slog.Logger, onChange func(Event)) error {
	w, err := New(path, logger)
	if err != nil {
		return err
	}

	w.logger.Debug("following file", "path", w.Path())
	go w.Start(ctx)
	for ev := range w.Events {
		onChange(ev)
	}
	return ctx.Err()
}
