// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metadata

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadFixtureWorkspace(t *testing.T) *Workspace {
	t.Helper()
	modules, err := LoadDocumentFile(fixturePath())
	require.NoError(t, err)
	ws := NewWorkspace(WithLogger(quietLogger()))
	require.NoError(t, ws.Load(modules...))
	return ws
}

func TestWorkspace_LoadAndFind(t *testing.T) {
	ws := loadFixtureWorkspace(t)
	assert.Equal(t, []string{"App.dll", "Lib.dll"}, ws.ModuleNames())

	snap, release := ws.Acquire()
	defer release()

	circle, ok := snap.FindType("App.Circle")
	require.True(t, ok)
	assert.Equal(t, "App.dll", circle.ModuleName())
	assert.Same(t, circle, circle.Methods[0].DeclaringType)

	_, ok = snap.FindType("app.circle")
	assert.False(t, ok, "exact lookup is case-sensitive")

	inner, ok := snap.FindTypeBySuffix("outer/INNER")
	require.True(t, ok)
	assert.Equal(t, "App.Outer/Inner", inner.FullName())

	all := snap.AllTypes()
	require.NotEmpty(t, all)
	assert.Equal(t, "App.IShape", all[0].FullName())
	assert.Equal(t, "Lib.Triangle", all[len(all)-1].FullName())
	assert.Equal(t, len(all), snap.TypeCount())
}

func TestWorkspace_LoadErrors(t *testing.T) {
	ws := loadFixtureWorkspace(t)

	err := ws.Load(&Module{Name: "App.dll"})
	assert.True(t, errors.Is(err, ErrDuplicateModule))

	err = ws.Load(&Module{})
	assert.True(t, errors.Is(err, ErrInvalidModule))

	err = ws.Unload("Missing.dll")
	assert.True(t, errors.Is(err, ErrModuleNotLoaded))

	dup := &Module{Name: "Dup.dll", Types: []*TypeDef{{Namespace: "D", Name: "T"}, {Namespace: "D", Name: "T"}}}
	before := ws.Version()
	err = ws.Load(dup)
	require.Error(t, err)
	assert.Equal(t, before, ws.Version(), "failed load leaves the workspace untouched")
	assert.Equal(t, []string{"App.dll", "Lib.dll"}, ws.ModuleNames())
}

func TestWorkspace_UnloadReplace(t *testing.T) {
	ws := loadFixtureWorkspace(t)
	v := ws.Version()

	require.NoError(t, ws.Unload("Lib.dll"))
	assert.Greater(t, ws.Version(), v)

	snap, release := ws.Acquire()
	_, ok := snap.FindType("Lib.Triangle")
	release()
	assert.False(t, ok)

	replacement := &Module{Name: "App.dll", Types: []*TypeDef{{Namespace: "App", Name: "Only"}}}
	require.NoError(t, ws.Replace(replacement))

	snap, release = ws.Acquire()
	defer release()
	require.Len(t, snap.Modules(), 1)
	_, ok = snap.FindType("App.Circle")
	assert.False(t, ok)
	_, ok = snap.FindType("App.Only")
	assert.True(t, ok)
}

func TestWorkspace_Mutate(t *testing.T) {
	ws := loadFixtureWorkspace(t)

	err := ws.Mutate(func(modules []*Module) error {
		modules[0].Types = append(modules[0].Types, &TypeDef{Namespace: "App", Name: "Added"})
		return nil
	})
	require.NoError(t, err)

	snap, release := ws.Acquire()
	added, ok := snap.FindType("App.Added")
	release()
	require.True(t, ok)
	assert.Equal(t, "App.dll", added.ModuleName(), "mutation relinks back-pointers")

	boom := errors.New("boom")
	err = ws.Mutate(func([]*Module) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestWorkspace_MutationWaitsForSnapshots(t *testing.T) {
	ws := loadFixtureWorkspace(t)

	snap, release := ws.Acquire()
	version := snap.Version()

	var mutated atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ws.Mutate(func([]*Module) error {
			mutated.Store(true)
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, mutated.Load(), "mutation must not run while a snapshot is held")
	assert.Equal(t, version, snap.Version())

	release()
	release() // idempotent

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mutation did not proceed after release")
	}
	assert.True(t, mutated.Load())
}

func TestSnapshot_Resolve(t *testing.T) {
	ws := loadFixtureWorkspace(t)
	snap, release := ws.Acquire()
	defer release()

	t.Run("type sig through generic instantiation", func(t *testing.T) {
		td, ok := snap.ResolveTypeSig(MustParseTypeSig("App.Repo`1<App.Circle>[]"))
		require.True(t, ok)
		assert.Equal(t, "App.Repo`1", td.FullName())

		_, ok = snap.ResolveTypeSig(MustParseTypeSig("System.Console"))
		assert.False(t, ok)

		_, ok = snap.ResolveTypeSig(GenericVar(0))
		assert.False(t, ok)
	})

	t.Run("method by exact params", func(t *testing.T) {
		ref := &MethodRef{DeclaringType: Named("App.Circle"), Name: ".ctor", Params: []*TypeSig{Named("System.Double")}}
		m, ok := snap.ResolveMethod(ref)
		require.True(t, ok)
		assert.Equal(t, "System.Void App.Circle::.ctor(System.Double)", m.FullName())
	})

	t.Run("method through instantiated declaring type", func(t *testing.T) {
		ref := &MethodRef{
			DeclaringType: MustParseTypeSig("App.Repo`1<App.Circle>"),
			Name:          "Add",
			Params:        []*TypeSig{Named("App.Circle")},
		}
		m, ok := snap.ResolveMethod(ref)
		require.True(t, ok, "single overload with matching arity resolves")
		assert.Equal(t, "System.Void App.Repo`1::Add(!0)", m.FullName())
	})

	t.Run("unresolvable method", func(t *testing.T) {
		_, ok := snap.ResolveMethod(&MethodRef{DeclaringType: Named("System.Console"), Name: "WriteLine"})
		assert.False(t, ok)
		_, ok = snap.ResolveMethod(&MethodRef{DeclaringType: Named("App.Circle"), Name: "Missing"})
		assert.False(t, ok)
		_, ok = snap.ResolveMethod(nil)
		assert.False(t, ok)
	})

	t.Run("field", func(t *testing.T) {
		f, ok := snap.ResolveField(&FieldRef{DeclaringType: Named("App.Circle"), Name: "radius"})
		require.True(t, ok)
		assert.Equal(t, "System.Double App.Circle::radius", f.FullName())

		_, ok = snap.ResolveField(&FieldRef{DeclaringType: Named("App.Circle"), Name: "nope"})
		assert.False(t, ok)
	})
}

func TestWorkspace_LogsIndexStats(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	modules, err := LoadDocumentFile(fixturePath())
	require.NoError(t, err)

	ws := NewWorkspace(WithLogger(logger))
	require.NoError(t, ws.Load(modules...))

	out := buf.String()
	assert.Contains(t, out, "workspace indexed")
	assert.Contains(t, out, "types=11")
	assert.Contains(t, out, "namespaces=2")
	assert.Contains(t, out, "modules=2")
}
