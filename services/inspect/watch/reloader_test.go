// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/ilscope/services/inspect/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	docA = `modules:
  - name: A.dll
    types:
      - {namespace: A, name: One}
`
	docAB = `modules:
  - name: A.dll
    types:
      - {namespace: A, name: One}
      - {namespace: A, name: Two}
  - name: B.dll
    types:
      - {namespace: B, name: Three}
`
	docB = `modules:
  - name: B.dll
    types:
      - {namespace: B, name: Three}
`
)

type eventLog struct {
	mu     sync.Mutex
	events []ReloadEvent
}

func (l *eventLog) add(e ReloadEvent) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) hasError() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Err != nil {
			return true
		}
	}
	return false
}

func writeDoc(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func hasType(ws *metadata.Workspace, name string) bool {
	snap, release := ws.Acquire()
	defer release()
	_, ok := snap.FindType(name)
	return ok
}

func TestReloader_AppliesChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	writeDoc(t, path, docA)

	modules, err := metadata.LoadDocumentFile(path)
	require.NoError(t, err)
	ws := metadata.NewWorkspace(metadata.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, ws.Load(modules...))

	log := &eventLog{}
	r, err := NewReloader(ws, []string{path},
		WithDebounce(20*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithOnReload(log.add),
	)
	require.NoError(t, err)
	r.Track(path, modules)
	r.Start(context.Background())
	t.Cleanup(r.Stop)

	t.Run("added module and type", func(t *testing.T) {
		writeDoc(t, path, docAB)
		require.Eventually(t, func() bool {
			return hasType(ws, "A.Two") && slices.Contains(ws.ModuleNames(), "B.dll")
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("invalid document keeps modules", func(t *testing.T) {
		writeDoc(t, path, "modules: [\n")
		require.Eventually(t, log.hasError, 5*time.Second, 10*time.Millisecond)
		assert.True(t, hasType(ws, "A.Two"))
		assert.True(t, hasType(ws, "B.Three"))
	})

	t.Run("dropped module is unloaded", func(t *testing.T) {
		writeDoc(t, path, docB)
		require.Eventually(t, func() bool {
			return !slices.Contains(ws.ModuleNames(), "A.dll")
		}, 5*time.Second, 10*time.Millisecond)
		assert.True(t, hasType(ws, "B.Three"))
	})

	t.Run("removed file unloads its modules", func(t *testing.T) {
		require.NoError(t, os.Remove(path))
		require.Eventually(t, func() bool {
			return len(ws.ModuleNames()) == 0
		}, 5*time.Second, 10*time.Millisecond)
	})
}

func TestReloader_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	writeDoc(t, path, docA)

	ws := metadata.NewWorkspace(metadata.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	log := &eventLog{}
	r, err := NewReloader(ws, []string{path}, WithDebounce(10*time.Millisecond), WithOnReload(log.add))
	require.NoError(t, err)
	r.Start(context.Background())
	t.Cleanup(r.Stop)

	writeDoc(t, filepath.Join(dir, "other.yaml"), docB)
	time.Sleep(200 * time.Millisecond)

	log.mu.Lock()
	defer log.mu.Unlock()
	assert.Empty(t, log.events)
	assert.Empty(t, ws.ModuleNames())
}

func TestNewReloader_Validation(t *testing.T) {
	_, err := NewReloader(nil, []string{"x.yaml"})
	assert.Error(t, err)

	_, err = NewReloader(metadata.NewWorkspace(), nil)
	assert.Error(t, err)

	_, err = NewReloader(metadata.NewWorkspace(), []string{filepath.Join(t.TempDir(), "missing", "doc.yaml")})
	assert.Error(t, err, "parent directory must exist")
}

func TestReloader_StopIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	r, err := NewReloader(metadata.NewWorkspace(), []string{path})
	require.NoError(t, err)
	r.Start(context.Background())
	r.Stop()
	r.Stop()
}

func TestReloader_StopDropsPendingReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	writeDoc(t, path, docA)

	var buf bytes.Buffer
	ws := metadata.NewWorkspace(metadata.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	log := &eventLog{}
	r, err := NewReloader(ws, []string{path},
		WithDebounce(time.Hour),
		WithLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))),
		WithOnReload(log.add),
	)
	require.NoError(t, err)
	r.Start(context.Background())

	writeDoc(t, path, docAB)
	time.Sleep(300 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return with a reload pending")
	}

	assert.Contains(t, buf.String(), "reloader stopped with pending changes")
	log.mu.Lock()
	defer log.mu.Unlock()
	assert.Empty(t, log.events)
	assert.Empty(t, ws.ModuleNames())
}
