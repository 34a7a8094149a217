// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch reloads metadata documents into a live workspace when they
// change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/ilscope/services/inspect/metadata"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when no debounce is configured.
const DefaultDebounce = 250 * time.Millisecond

// ReloadEvent reports one document reload attempt.
type ReloadEvent struct {
	// Path is the document path as registered.
	Path string

	// Loaded are the module names replaced or added.
	Loaded []string

	// Unloaded are module names the document no longer defines.
	Unloaded []string

	// Err is non-nil when the document could not be read or decoded. The
	// previously loaded modules stay in place.
	Err error
}

// Option configures a Reloader.
type Option func(*Reloader)

// WithDebounce sets the quiet period before a changed document is reloaded.
func WithDebounce(d time.Duration) Option {
	return func(r *Reloader) {
		if d >= 0 {
			r.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reloader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithOnReload registers a callback run after every reload attempt, from
// the reloader's goroutine.
func WithOnReload(fn func(ReloadEvent)) Option {
	return func(r *Reloader) { r.onReload = fn }
}

// Reloader watches metadata document files and applies changes to a
// workspace.
//
// Description:
//
//	Parent directories are watched rather than the files themselves so an
//	editor's write-to-temp-then-rename is seen. Events for the same path
//	are coalesced within the debounce window. A decode failure is logged
//	and reported; the workspace keeps the last good modules.
//
// Thread Safety:
//
//	Start and Stop may be called from any goroutine. Reloads run on a
//	single goroutine.
type Reloader struct {
	ws       *metadata.Workspace
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration
	onReload func(ReloadEvent)

	// paths maps absolute path to the path as given.
	paths map[string]string

	mu sync.Mutex
	// owned maps a registered path to the module names it last loaded.
	owned map[string][]string

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReloader creates a reloader for paths. Documents are not loaded until
// they change; seed ownership with Track after the initial load.
//
// Inputs:
//
//	ws - The workspace to update. Must not be nil.
//	paths - Document paths. Must not be empty.
//
// Outputs:
//
//	*Reloader - Ready reloader; call Start.
//	error - Non-nil if a directory cannot be watched.
func NewReloader(ws *metadata.Workspace, paths []string, opts ...Option) (*Reloader, error) {
	if ws == nil {
		return nil, fmt.Errorf("workspace must not be nil")
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no document paths to watch")
	}

	r := &Reloader{
		ws:       ws,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		paths:    make(map[string]string, len(paths)),
		owned:    make(map[string][]string, len(paths)),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", p, err)
		}
		r.paths[abs] = p
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	r.watcher = watcher
	return r, nil
}

// Track records the modules a document currently provides, so a later
// reload that drops one of them unloads it.
func (r *Reloader) Track(path string, modules []*metadata.Module) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	names := make([]string, 0, len(modules))
	for _, m := range modules {
		names = append(names, m.Name)
	}
	r.mu.Lock()
	r.owned[abs] = names
	r.mu.Unlock()
}

// Start begins watching. It returns immediately; watching stops when ctx
// is cancelled or Stop is called.
func (r *Reloader) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.loop(ctx)
}

// Stop stops watching and waits for an in-flight reload to finish.
func (r *Reloader) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.watcher.Close()
	})
	r.wg.Wait()
}

func (r *Reloader) loop(ctx context.Context) {
	defer r.wg.Done()

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
			r.logger.Debug("reloader stopped with pending changes", slog.Int("pending", len(pending)))
		}
	}()

	flush := func() {
		abs := make([]string, 0, len(pending))
		for p := range pending {
			abs = append(abs, p)
		}
		sort.Strings(abs)
		clear(pending)
		timer, timerC = nil, nil
		for _, p := range abs {
			r.reload(p)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if _, tracked := r.paths[abs]; !tracked {
				continue
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			pending[abs] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
				timerC = timer.C
			} else {
				timer.Reset(r.debounce)
			}
		case <-timerC:
			flush()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("file watcher error", slog.Any("error", err))
		}
	}
}

// reload applies the current contents of one document.
func (r *Reloader) reload(abs string) {
	path := r.paths[abs]
	event := ReloadEvent{Path: path}

	r.mu.Lock()
	previous := r.owned[abs]
	r.mu.Unlock()

	modules, err := metadata.LoadDocumentFile(abs)
	switch {
	case errors.Is(err, os.ErrNotExist):
		modules = nil
	case err != nil:
		event.Err = err
		r.logger.Warn("document reload failed, keeping previous modules",
			slog.String("path", path),
			slog.Any("error", err),
		)
		r.emit(event)
		return
	}

	current := make(map[string]bool, len(modules))
	for _, m := range modules {
		if err := r.ws.Replace(m); err != nil {
			event.Err = err
			r.logger.Warn("module reload failed",
				slog.String("path", path),
				slog.String("module", m.Name),
				slog.Any("error", err),
			)
			continue
		}
		current[m.Name] = true
		event.Loaded = append(event.Loaded, m.Name)
	}
	for _, name := range previous {
		if current[name] {
			continue
		}
		if err := r.ws.Unload(name); err != nil && !errors.Is(err, metadata.ErrModuleNotLoaded) {
			event.Err = err
			continue
		}
		event.Unloaded = append(event.Unloaded, name)
	}

	r.mu.Lock()
	r.owned[abs] = event.Loaded
	r.mu.Unlock()

	r.logger.Info("document reloaded",
		slog.String("path", path),
		slog.Int("loaded", len(event.Loaded)),
		slog.Int("unloaded", len(event.Unloaded)),
	)
	r.emit(event)
}

func (r *Reloader) emit(event ReloadEvent) {
	if r.onReload != nil {
		r.onReload(event)
	}
}
