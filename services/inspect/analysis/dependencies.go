// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"sort"
	"strings"

	"github.com/AleutianAI/ilscope/services/inspect/metadata"
	"go.opentelemetry.io/otel/attribute"
)

// rootTypeName is the universal base type, never reported as a dependency.
const rootTypeName = "System.Object"

const voidTypeName = "System.Void"

// Direction selects which side of a dependency report to compute.
type Direction string

const (
	DirectionBoth     Direction = "both"
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// ParseDirection parses "both", "in"/"incoming" or "out"/"outgoing".
// Empty means both.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both":
		return DirectionBoth, nil
	case "in", "incoming":
		return DirectionIncoming, nil
	case "out", "outgoing":
		return DirectionOutgoing, nil
	default:
		return "", invalidArgf("unknown dependency direction: %s", s)
	}
}

// dependencySet collects unique (name, kind) pairs.
type dependencySet map[Dependency]struct{}

func (s dependencySet) add(name string, kind DependencyKind) {
	if name == "" {
		return
	}
	s[Dependency{TypeName: name, Kind: kind}] = struct{}{}
}

// sorted returns the set ordered by name, then kind.
func (s dependencySet) sorted() []Dependency {
	out := make([]Dependency, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TypeName != out[j].TypeName {
			return out[i].TypeName < out[j].TypeName
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// unwrap reduces a signature to the named types it depends on.
//
// Arrays, pointers, by-ref and modifiers are stripped. For a generic
// instantiation the arguments are unwrapped and the generic definition is
// kept only if it is defined in a loaded module, so List`1<App.Item> yields
// App.Item while App.Repo`1<App.Item> yields both. Generic parameters yield
// nothing.
func unwrap(snap *metadata.Snapshot, sig *metadata.TypeSig) []string {
	var out []string
	stack := []*metadata.TypeSig{sig}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == nil {
			continue
		}
		switch cur.Kind {
		case metadata.SigNamed:
			out = append(out, cur.Ref.FullName)
		case metadata.SigGenericInst:
			if def := cur.Next.DefinitionName(); def != "" {
				if _, ok := snap.FindType(def); ok {
					out = append(out, def)
				}
			}
			for i := len(cur.Args) - 1; i >= 0; i-- {
				stack = append(stack, cur.Args[i])
			}
		case metadata.SigGenericVar, metadata.SigGenericMVar:
		case metadata.SigArray, metadata.SigSZArray, metadata.SigPointer, metadata.SigByRef, metadata.SigModifier:
			stack = append(stack, cur.Next)
		}
	}
	return out
}

func outgoingDependencies(snap *metadata.Snapshot, td *metadata.TypeDef) dependencySet {
	self := td.FullName()
	set := make(dependencySet)
	add := func(name string, kind DependencyKind) {
		if name != self {
			set.add(name, kind)
		}
	}
	addSig := func(sig *metadata.TypeSig, kind DependencyKind) {
		for _, name := range unwrap(snap, sig) {
			add(name, kind)
		}
	}

	if td.BaseType != nil {
		if base := td.BaseType.DefinitionName(); base != rootTypeName {
			add(base, DepInherits)
		}
	}
	for _, iface := range td.Interfaces {
		add(iface.DefinitionName(), DepImplements)
	}
	for _, f := range td.Fields {
		addSig(f.Type, DepFieldType)
	}
	for _, m := range td.Methods {
		for _, name := range unwrap(snap, m.ReturnType) {
			if name != voidTypeName {
				add(name, DepReturnType)
			}
		}
		for _, p := range m.VisibleParams() {
			addSig(p.Type, DepParameterType)
		}
		if m.HasBody() {
			for _, local := range m.Body.Locals {
				addSig(local, DepLocalVariable)
			}
		}
	}
	for _, p := range td.Properties {
		addSig(p.Type, DepPropertyType)
	}
	return set
}

func incomingDependencies(snap *metadata.Snapshot, td *metadata.TypeDef, types []*metadata.TypeDef) dependencySet {
	target := td.FullName()
	set := make(dependencySet)
	for _, t := range types {
		if t == td {
			continue
		}
		name := t.FullName()
		if t.BaseType != nil && t.BaseType.DefinitionName() == target {
			set.add(name, DepInherits)
		}
		for _, iface := range t.Interfaces {
			if iface.DefinitionName() == target {
				set.add(name, DepImplements)
				break
			}
		}
	fields:
		for _, f := range t.Fields {
			for _, dep := range unwrap(snap, f.Type) {
				if dep == target {
					set.add(name, DepFieldType)
					break fields
				}
			}
		}
	}
	return set
}

// AnalyzeDependencies reports what a type depends on and what depends on it.
//
// Description:
//
//	Outgoing dependencies come from the base type (except System.Object),
//	implemented interfaces, and the unwrapped types of fields, method
//	return types (except System.Void), parameters, locals and properties.
//	Incoming dependencies come from every other type whose base, interfaces
//	or field types name the target. Both sides are sets sorted by type name
//	then kind; totals count the full sets before MaxResults caps each side.
//
// Inputs:
//
//	ctx - Context for tracing.
//	typeName - Full or partial type name.
//	direction - Which sides to compute.
//	opts - MaxResults and Module bounds (Module scopes the incoming scan).
//
// Outputs:
//
//	*DependencyReport - The requested sides.
//	error - NotFound if the type is unresolved.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) AnalyzeDependencies(ctx context.Context, typeName string, direction Direction, opts ...QueryOption) (result *DependencyReport, err error) {
	options := a.applyOptions(opts)
	c := a.begin(ctx, "analyze_dependencies",
		attribute.String("type", typeName),
		attribute.String("direction", string(direction)),
		attribute.Int("max_results", options.MaxResults),
	)
	defer func() { c.finish(err, result != nil && result.Truncated) }()

	if direction == "" {
		direction = DirectionBoth
	}
	switch direction {
	case DirectionBoth, DirectionOutgoing, DirectionIncoming:
	default:
		return nil, invalidArgf("unknown dependency direction: %s", direction)
	}

	td, err := resolveType(c.ctx, c.snap, typeName)
	if err != nil {
		return nil, err
	}

	result = &DependencyReport{Type: td.FullName(), Direction: direction}
	if direction != DirectionIncoming {
		deps := outgoingDependencies(c.snap, td).sorted()
		result.TotalOutgoing = len(deps)
		result.Outgoing, result.Truncated = capDependencies(deps, options.MaxResults)
	}
	if direction != DirectionOutgoing {
		deps := incomingDependencies(c.snap, td, c.scopedTypes(options.Module)).sorted()
		result.TotalIncoming = len(deps)
		var truncated bool
		result.Incoming, truncated = capDependencies(deps, options.MaxResults)
		result.Truncated = result.Truncated || truncated
	}
	return result, nil
}

func capDependencies(deps []Dependency, max int) ([]Dependency, bool) {
	if len(deps) > max {
		return deps[:max], true
	}
	return deps, false
}

// AnalyzeAssemblyDependencies reports assembly-level references.
//
// Description:
//
//	Finds the module whose assembly simple name or module name equals the
//	input case-insensitively, falling back to the first whose names contain
//	it. Outgoing lists the full names of the assemblies it references.
//	Incoming lists the other loaded assemblies whose references name the
//	target's simple name, case-insensitively. Both lists are sorted.
//
// Inputs:
//
//	ctx - Context for tracing.
//	assemblyName - Assembly simple name, module name or a substring.
//
// Outputs:
//
//	*AssemblyDependencies - Both sides.
//	error - NotFound if no module matches, InvalidArgument if empty.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) AnalyzeAssemblyDependencies(ctx context.Context, assemblyName string) (result *AssemblyDependencies, err error) {
	c := a.begin(ctx, "analyze_assembly_dependencies", attribute.String("assembly", assemblyName))
	defer func() { c.finish(err, false) }()

	mod, err := findAssembly(c.snap, assemblyName)
	if err != nil {
		return nil, err
	}

	result = &AssemblyDependencies{
		Assembly: mod.Assembly.FullName(),
		Module:   mod.Name,
		Outgoing: make([]string, 0, len(mod.References)),
		Incoming: make([]string, 0),
	}
	seen := make(map[string]bool)
	for _, ref := range mod.References {
		name := ref.FullName()
		if !seen[name] {
			seen[name] = true
			result.Outgoing = append(result.Outgoing, name)
		}
	}
	sort.Strings(result.Outgoing)

	seen = make(map[string]bool)
	for _, other := range c.snap.Modules() {
		if other == mod {
			continue
		}
		for _, ref := range other.References {
			if !strings.EqualFold(ref.Name, mod.Assembly.Name) {
				continue
			}
			name := other.Assembly.FullName()
			if !seen[name] {
				seen[name] = true
				result.Incoming = append(result.Incoming, name)
			}
			break
		}
	}
	sort.Strings(result.Incoming)
	return result, nil
}

func findAssembly(snap *metadata.Snapshot, name string) (*metadata.Module, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidArgf("assembly name is required")
	}
	for _, m := range snap.Modules() {
		if strings.EqualFold(m.Assembly.Name, name) || strings.EqualFold(m.Name, name) {
			return m, nil
		}
	}
	lower := strings.ToLower(name)
	for _, m := range snap.Modules() {
		if strings.Contains(strings.ToLower(m.Assembly.Name), lower) ||
			strings.Contains(strings.ToLower(m.Name), lower) {
			return m, nil
		}
	}
	return nil, notFoundf("assembly not found: %s", name)
}
