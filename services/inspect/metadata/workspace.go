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
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/AleutianAI/ilscope/services/inspect/index"
)

// WorkspaceOption configures a Workspace.
type WorkspaceOption func(*Workspace)

// WithLogger sets the workspace logger.
func WithLogger(logger *slog.Logger) WorkspaceOption {
	return func(w *Workspace) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMaxTypes caps the number of indexed types.
func WithMaxTypes(max int) WorkspaceOption {
	return func(w *Workspace) {
		if max > 0 {
			w.maxTypes = max
		}
	}
}

// Workspace is the set of loaded modules.
//
// Description:
//
//	Owns the loaded modules and a type index over them. Analysis reads
//	through a Snapshot obtained from Acquire; structural edits go through
//	Load, Unload, Replace and Mutate, which take the write lock and so
//	wait for every outstanding snapshot to be released.
//
// Thread Safety:
//
//	Safe for concurrent use. A goroutine holding a snapshot MUST NOT call
//	a mutating method or Acquire again before releasing it.
type Workspace struct {
	mu       sync.RWMutex
	modules  []*Module
	types    *index.TypeIndex[*TypeDef]
	version  uint64
	maxTypes int
	logger   *slog.Logger
}

// NewWorkspace creates an empty workspace.
func NewWorkspace(opts ...WorkspaceOption) *Workspace {
	w := &Workspace{
		maxTypes: index.DefaultMaxEntries,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.types = index.New[*TypeDef](index.WithMaxEntries(w.maxTypes))
	return w
}

// Load adds modules to the workspace.
//
// Description:
//
//	Links each module (sets member back-pointers, flattens nested types)
//	and indexes its types. Modules are appended in argument order, which
//	becomes the scan order of every analysis. Either every module is
//	loaded or none is.
//
// Inputs:
//
//	modules - Modules to add. Names must be non-empty and not loaded yet.
//
// Outputs:
//
//	error - ErrInvalidModule, ErrDuplicateModule, or an index error.
//
// Thread Safety:
//
//	Blocks until outstanding snapshots are released.
func (w *Workspace) Load(modules ...*Module) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	seen := make(map[string]bool, len(w.modules)+len(modules))
	for _, m := range w.modules {
		seen[m.Name] = true
	}
	for _, m := range modules {
		if m == nil || m.Name == "" {
			return fmt.Errorf("%w: module has no name", ErrInvalidModule)
		}
		if seen[m.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateModule, m.Name)
		}
		seen[m.Name] = true
	}

	next := append(append([]*Module(nil), w.modules...), modules...)
	if err := w.rebuildLocked(next); err != nil {
		return err
	}

	for _, m := range modules {
		w.logger.Info("module loaded",
			slog.String("module", m.Name),
			slog.String("assembly", m.Assembly.Name),
			slog.Int("types", len(m.AllTypes())),
		)
	}
	return nil
}

// Unload removes the named module.
//
// Outputs:
//
//	error - ErrModuleNotLoaded if no module has that name.
func (w *Workspace) Unload(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	next := make([]*Module, 0, len(w.modules))
	found := false
	for _, m := range w.modules {
		if m.Name == name {
			found = true
			continue
		}
		next = append(next, m)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrModuleNotLoaded, name)
	}
	if err := w.rebuildLocked(next); err != nil {
		return err
	}
	w.logger.Info("module unloaded", slog.String("module", name))
	return nil
}

// Replace swaps the loaded module with the same name for m, keeping its
// position in module order. If no module has that name, m is appended.
func (w *Workspace) Replace(m *Module) error {
	if m == nil || m.Name == "" {
		return fmt.Errorf("%w: module has no name", ErrInvalidModule)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	next := make([]*Module, 0, len(w.modules)+1)
	replaced := false
	for _, existing := range w.modules {
		if existing.Name == m.Name {
			next = append(next, m)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		next = append(next, m)
	}
	if err := w.rebuildLocked(next); err != nil {
		return err
	}
	w.logger.Info("module replaced",
		slog.String("module", m.Name),
		slog.Bool("appended", !replaced),
	)
	return nil
}

// Mutate runs fn with exclusive access to the loaded modules.
//
// Description:
//
//	The editing capability: fn may change types, members and bodies in
//	place. After fn returns the modules are relinked and reindexed and the
//	version is bumped. If fn returns an error the workspace is still
//	reindexed, since fn may have partially applied its edits.
//
// Thread Safety:
//
//	Blocks until outstanding snapshots are released; no snapshot can
//	observe a half-applied mutation.
func (w *Workspace) Mutate(fn func(modules []*Module) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	fnErr := fn(w.modules)
	if err := w.rebuildLocked(w.modules); err != nil {
		return err
	}
	if fnErr != nil {
		return fmt.Errorf("mutating workspace: %w", fnErr)
	}
	return nil
}

// rebuildLocked relinks modules and rebuilds the index. On failure the
// previous state is kept. Caller must hold w.mu.Lock().
func (w *Workspace) rebuildLocked(modules []*Module) error {
	types := index.New[*TypeDef](index.WithMaxEntries(w.maxTypes))
	for _, m := range modules {
		m.link()
		if err := types.AddBatch(m.allTypes); err != nil {
			// Restore links of the modules still loaded.
			for _, prev := range w.modules {
				prev.link()
			}
			return fmt.Errorf("indexing module %s: %w", m.Name, err)
		}
	}
	w.modules = modules
	w.types = types
	w.version++

	stats := types.Stats()
	w.logger.Debug("workspace indexed",
		slog.Int("types", stats.TotalEntries),
		slog.Int("namespaces", stats.Namespaces),
		slog.Int("modules", len(stats.ByModule)),
		slog.Uint64("version", w.version),
	)
	return nil
}

// Acquire returns a read-only snapshot and its release function.
//
// Description:
//
//	Holds the workspace read lock until release is called. release is
//	idempotent. Every analysis operation acquires at entry and releases
//	with defer.
//
// Example:
//
//	snap, release := ws.Acquire()
//	defer release()
func (w *Workspace) Acquire() (*Snapshot, func()) {
	w.mu.RLock()
	snap := &Snapshot{
		modules: w.modules,
		types:   w.types,
		version: w.version,
	}
	var once sync.Once
	return snap, func() {
		once.Do(w.mu.RUnlock)
	}
}

// Version returns the mutation counter.
func (w *Workspace) Version() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.version
}

// ModuleNames returns loaded module names in load order.
func (w *Workspace) ModuleNames() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, len(w.modules))
	for i, m := range w.modules {
		names[i] = m.Name
	}
	return names
}

// Snapshot is a consistent read-only view of a workspace.
//
// A Snapshot is valid until its release function is called. It MUST NOT be
// retained afterwards.
type Snapshot struct {
	modules []*Module
	types   *index.TypeIndex[*TypeDef]
	version uint64
}

// Version returns the workspace version the snapshot was taken at.
func (s *Snapshot) Version() uint64 { return s.version }

// Modules returns loaded modules in load order. The slice is shared.
func (s *Snapshot) Modules() []*Module { return s.modules }

// Types returns the module's types, flattened in declaration order.
func (s *Snapshot) Types(m *Module) []*TypeDef { return m.AllTypes() }

// AllTypes returns every type in module order then declaration order.
func (s *Snapshot) AllTypes() []*TypeDef { return s.types.All() }

// TypeCount returns the number of loaded types.
func (s *Snapshot) TypeCount() int { return s.types.Len() }

// FindType returns the first type with the exact full name.
func (s *Snapshot) FindType(fullName string) (*TypeDef, bool) {
	return s.types.FirstByFullName(fullName)
}

// FindTypeBySuffix returns the first type whose full name ends with suffix,
// case-insensitively.
func (s *Snapshot) FindTypeBySuffix(suffix string) (*TypeDef, bool) {
	return s.types.FirstWithSuffixFold(suffix)
}

// Index exposes the type index for ranked name search.
func (s *Snapshot) Index() *index.TypeIndex[*TypeDef] { return s.types }

// ResolveTypeSig resolves the type a signature is built on.
//
// Wrappers and generic instantiation are stripped; the remaining named type
// is looked up by exact full name. Generic parameters never resolve.
func (s *Snapshot) ResolveTypeSig(sig *TypeSig) (*TypeDef, bool) {
	name := sig.DefinitionName()
	if name == "" {
		return nil, false
	}
	return s.FindType(name)
}

// ResolveMethod resolves a method reference to its definition.
//
// Description:
//
//	Resolves the declaring type, then matches by name and rendered
//	parameter types. If no overload matches exactly and exactly one
//	overload has the same name and arity, that one is returned (covers
//	references through generic instantiations, whose parameter types are
//	substituted).
func (s *Snapshot) ResolveMethod(ref *MethodRef) (*MethodDef, bool) {
	if ref == nil {
		return nil, false
	}
	decl, ok := s.ResolveTypeSig(ref.DeclaringType)
	if !ok {
		return nil, false
	}
	want := strings.Join(ref.ParamTypeNames(), ",")

	var candidate *MethodDef
	candidates := 0
	for _, m := range decl.Methods {
		if m.Name != ref.Name {
			continue
		}
		params := m.ParamTypes()
		if len(params) != len(ref.Params) {
			continue
		}
		if joinSigs(params) == want {
			return m, true
		}
		candidate = m
		candidates++
	}
	if candidates == 1 {
		return candidate, true
	}
	return nil, false
}

// ResolveField resolves a field reference to its definition.
func (s *Snapshot) ResolveField(ref *FieldRef) (*FieldDef, bool) {
	if ref == nil {
		return nil, false
	}
	decl, ok := s.ResolveTypeSig(ref.DeclaringType)
	if !ok {
		return nil, false
	}
	return decl.FindField(ref.Name)
}

func joinSigs(sigs []*TypeSig) string {
	names := make([]string, len(sigs))
	for i, sig := range sigs {
		names[i] = sig.String()
	}
	return strings.Join(names, ",")
}
