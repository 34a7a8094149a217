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
	"strings"

	"github.com/AleutianAI/ilscope/services/inspect/metadata"
	"go.opentelemetry.io/otel/attribute"
)

// GetTypeHierarchy returns a type's base chain and interface closure.
//
// Description:
//
//	The base chain lists every base reference name starting at the direct
//	base, whether or not it resolves; the walk stops at the first absent or
//	unresolvable base. The interface closure is collected depth-first:
//	direct interfaces in declared order, each followed by the interfaces it
//	extends, then the interfaces visible through the base chain. Each
//	interface appears once.
//
// Inputs:
//
//	ctx - Context for tracing.
//	typeName - Full or partial type name.
//
// Outputs:
//
//	*TypeHierarchy - Base chain and closure; both empty, never nil.
//	error - NotFound if the type is unresolved.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) GetTypeHierarchy(ctx context.Context, typeName string) (result *TypeHierarchy, err error) {
	c := a.begin(ctx, "get_type_hierarchy", attribute.String("type", typeName))
	defer func() { c.finish(err, false) }()

	td, err := resolveType(c.ctx, c.snap, typeName)
	if err != nil {
		return nil, err
	}

	result = &TypeHierarchy{
		Type:       td.FullName(),
		Module:     td.ModuleName(),
		BaseTypes:  baseChain(c.snap, td),
		Interfaces: make([]string, 0),
	}
	for _, iface := range interfaceClosure(c.snap, td) {
		result.Interfaces = append(result.Interfaces, iface.String())
	}
	return result, nil
}

// baseChain renders td's base references, nearest first.
func baseChain(snap *metadata.Snapshot, td *metadata.TypeDef) []string {
	chain := make([]string, 0)
	seen := map[*metadata.TypeDef]bool{td: true}
	for cur := td; cur.BaseType != nil; {
		chain = append(chain, cur.BaseType.String())
		next, ok := snap.ResolveTypeSig(cur.BaseType)
		if !ok || seen[next] {
			break
		}
		seen[next] = true
		cur = next
	}
	return chain
}

// derivesFrom reports whether td's base chain reaches target, and whether
// target is the direct base.
func derivesFrom(snap *metadata.Snapshot, td *metadata.TypeDef, target string) (derived, direct bool) {
	seen := map[*metadata.TypeDef]bool{td: true}
	first := true
	for cur := td; cur.BaseType != nil; {
		if cur.BaseType.DefinitionName() == target {
			return true, first
		}
		next, ok := snap.ResolveTypeSig(cur.BaseType)
		if !ok || seen[next] {
			return false, false
		}
		seen[next] = true
		cur = next
		first = false
	}
	return false, false
}

// closureFrame is a unit of work for interfaceClosure: either emit one
// interface reference or expand one resolved type.
type closureFrame struct {
	emit   *metadata.TypeSig
	expand *metadata.TypeDef
}

// interfaceClosure collects the interfaces reachable from td.
//
// Iterative DFS with an explicit stack. Emitted interfaces are deduplicated
// by rendered name and each resolved type is expanded at most once, so
// diamonds and cyclic metadata terminate. Unresolved interfaces are emitted
// but not expanded.
func interfaceClosure(snap *metadata.Snapshot, td *metadata.TypeDef) []*metadata.TypeSig {
	out := make([]*metadata.TypeSig, 0)
	emitted := make(map[string]bool)
	expanded := make(map[*metadata.TypeDef]bool)
	stack := []closureFrame{{expand: td}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.expand != nil {
			if expanded[f.expand] {
				continue
			}
			expanded[f.expand] = true
			// Pushed first so it is processed after every direct interface.
			if f.expand.BaseType != nil {
				if base, ok := snap.ResolveTypeSig(f.expand.BaseType); ok {
					stack = append(stack, closureFrame{expand: base})
				}
			}
			for i := len(f.expand.Interfaces) - 1; i >= 0; i-- {
				stack = append(stack, closureFrame{emit: f.expand.Interfaces[i]})
			}
			continue
		}

		name := f.emit.String()
		if emitted[name] {
			continue
		}
		emitted[name] = true
		out = append(out, f.emit)
		if def, ok := snap.ResolveTypeSig(f.emit); ok {
			stack = append(stack, closureFrame{expand: def})
		}
	}
	return out
}

func closureContains(closure []*metadata.TypeSig, target string) bool {
	for _, sig := range closure {
		if sig.DefinitionName() == target {
			return true
		}
	}
	return false
}

// scopedTypes returns every type of the modules matching filter.
func (c *call) scopedTypes(filter string) []*metadata.TypeDef {
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		return c.snap.AllTypes()
	}
	var out []*metadata.TypeDef
	for _, mod := range c.snap.Modules() {
		if strings.Contains(strings.ToLower(mod.Name), filter) {
			out = append(out, c.snap.Types(mod)...)
		}
	}
	return out
}

// FindDerivedTypes finds types whose base chain reaches a type.
//
// Inputs:
//
//	ctx - Context for tracing.
//	typeName - Full or partial name of the base type.
//	opts - MaxResults and Module bounds.
//
// Outputs:
//
//	*DerivedTypesResult - Derived types in scan order, IsDirect when the
//	                      target is the immediate base.
//	error - NotFound if the type is unresolved.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) FindDerivedTypes(ctx context.Context, typeName string, opts ...QueryOption) (result *DerivedTypesResult, err error) {
	options := a.applyOptions(opts)
	c := a.begin(ctx, "find_derived_types",
		attribute.String("type", typeName),
		attribute.Int("max_results", options.MaxResults),
	)
	defer func() { c.finish(err, result != nil && result.Truncated) }()

	td, err := resolveType(c.ctx, c.snap, typeName)
	if err != nil {
		return nil, err
	}
	target := td.FullName()

	result = &DerivedTypesResult{Target: target, Types: make([]DerivedType, 0)}
	for _, t := range c.scopedTypes(options.Module) {
		if t == td {
			continue
		}
		derived, direct := derivesFrom(c.snap, t, target)
		if !derived {
			continue
		}
		if len(result.Types) >= options.MaxResults {
			result.Truncated = true
			break
		}
		result.Types = append(result.Types, DerivedType{
			TypeName: t.FullName(),
			Module:   t.ModuleName(),
			IsDirect: direct,
		})
	}
	return result, nil
}

// FindImplementations finds types whose interface closure contains an
// interface.
//
// Inputs:
//
//	ctx - Context for tracing.
//	interfaceName - Full or partial interface name.
//	opts - MaxResults and Module bounds.
//
// Outputs:
//
//	*ImplementationsResult - Implementing types in scan order. IsDirect
//	                         marks types listing the interface themselves;
//	                         IsInterface marks extending interfaces.
//	error - NotFound if the interface is unresolved.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) FindImplementations(ctx context.Context, interfaceName string, opts ...QueryOption) (result *ImplementationsResult, err error) {
	options := a.applyOptions(opts)
	c := a.begin(ctx, "find_implementations",
		attribute.String("interface", interfaceName),
		attribute.Int("max_results", options.MaxResults),
	)
	defer func() { c.finish(err, result != nil && result.Truncated) }()

	iface, err := resolveType(c.ctx, c.snap, interfaceName)
	if err != nil {
		return nil, err
	}
	target := iface.FullName()

	result = &ImplementationsResult{Interface: target, Types: make([]Implementation, 0)}
	for _, t := range c.scopedTypes(options.Module) {
		if t == iface || !closureContains(interfaceClosure(c.snap, t), target) {
			continue
		}
		if len(result.Types) >= options.MaxResults {
			result.Truncated = true
			break
		}
		result.Types = append(result.Types, Implementation{
			TypeName:    t.FullName(),
			Module:      t.ModuleName(),
			IsDirect:    closureContains(t.Interfaces, target),
			IsInterface: t.IsInterface(),
		})
	}
	return result, nil
}

// FindMemberImplementations finds members implementing an interface member.
//
// Description:
//
//	Considers every non-interface type whose interface closure contains
//	the interface. A method matches when an explicit override declaration
//	names the interface member, when it is named "Interface.Member" (full
//	or simple interface name), or implicitly when it has the same name, is
//	public and non-static, and has compatible parameter types (generic
//	parameters match any type). Properties match by the same naming rules.
//	Each member is reported once with its strongest match.
//
// Inputs:
//
//	ctx - Context for tracing.
//	interfaceName - Full or partial interface name.
//	memberName - Interface method or property name, case-insensitive.
//	opts - MaxResults and Module bounds.
//
// Outputs:
//
//	*MemberImplementationsResult - Implementations in scan order.
//	error - NotFound if the interface or member is unresolved,
//	        InvalidArgument if the type is not an interface.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) FindMemberImplementations(ctx context.Context, interfaceName, memberName string, opts ...QueryOption) (result *MemberImplementationsResult, err error) {
	options := a.applyOptions(opts)
	c := a.begin(ctx, "find_member_implementations",
		attribute.String("interface", interfaceName),
		attribute.String("member", memberName),
		attribute.Int("max_results", options.MaxResults),
	)
	defer func() { c.finish(err, result != nil && result.Truncated) }()

	iface, err := resolveType(c.ctx, c.snap, interfaceName)
	if err != nil {
		return nil, err
	}
	if !iface.IsInterface() {
		return nil, invalidArgf("not an interface: %s", iface.FullName())
	}
	memberName = strings.TrimSpace(memberName)
	if memberName == "" {
		return nil, invalidArgf("member name is required")
	}

	var methods []*metadata.MethodDef
	for _, m := range iface.Methods {
		if strings.EqualFold(m.Name, memberName) {
			methods = append(methods, m)
		}
	}
	var props []*metadata.PropertyDef
	for _, p := range iface.Properties {
		if strings.EqualFold(p.Name, memberName) {
			props = append(props, p)
		}
	}
	if len(methods) == 0 && len(props) == 0 {
		return nil, notFoundf("member not found: %s::%s", iface.FullName(), memberName)
	}

	target := iface.FullName()
	result = &MemberImplementationsResult{
		Interface:       target,
		Member:          memberName,
		Implementations: make([]MemberImplementation, 0),
	}
	add := func(t *metadata.TypeDef, member, kind string, match MatchKind) bool {
		if len(result.Implementations) >= options.MaxResults {
			result.Truncated = true
			return false
		}
		result.Implementations = append(result.Implementations, MemberImplementation{
			TypeName:   t.FullName(),
			Module:     t.ModuleName(),
			Member:     member,
			MemberKind: kind,
			Match:      match,
		})
		return true
	}

	for _, t := range c.scopedTypes(options.Module) {
		if t.IsInterface() || !closureContains(interfaceClosure(c.snap, t), target) {
			continue
		}
		for _, m := range t.Methods {
			if match, ok := matchMethod(m, iface, methods); ok {
				if !add(t, m.FullName(), "method", match) {
					return result, nil
				}
			}
		}
		for _, p := range t.Properties {
			if match, ok := matchProperty(p, iface, props); ok {
				if !add(t, p.Name, "property", match) {
					return result, nil
				}
			}
		}
	}
	return result, nil
}

// explicitNames returns the "Interface.Member" spellings for a member.
func explicitNames(iface *metadata.TypeDef, member string) (full, simple string) {
	return iface.FullName() + "." + member, iface.SimpleName() + "." + member
}

func matchMethod(m *metadata.MethodDef, iface *metadata.TypeDef, targets []*metadata.MethodDef) (MatchKind, bool) {
	target := iface.FullName()
	for _, im := range targets {
		for _, o := range m.Overrides {
			if o.Name == im.Name && o.DeclaringType.DefinitionName() == target {
				return MatchExplicitOverride, true
			}
		}
	}
	for _, im := range targets {
		full, simple := explicitNames(iface, im.Name)
		if m.Name == full || m.Name == simple {
			return MatchExplicitName, true
		}
	}
	if !m.IsPublic() || m.IsStatic() {
		return "", false
	}
	for _, im := range targets {
		if m.Name == im.Name && paramsCompatible(m.ParamTypes(), im.ParamTypes()) {
			return MatchImplicit, true
		}
	}
	return "", false
}

func matchProperty(p *metadata.PropertyDef, iface *metadata.TypeDef, targets []*metadata.PropertyDef) (MatchKind, bool) {
	for _, ip := range targets {
		full, simple := explicitNames(iface, ip.Name)
		if p.Name == full || p.Name == simple {
			return MatchExplicitName, true
		}
	}
	for _, ip := range targets {
		if p.Name == ip.Name {
			return MatchImplicit, true
		}
	}
	return "", false
}

// paramsCompatible compares parameter lists. A parameter containing a
// generic parameter on either side matches any type; others compare by
// rendering.
func paramsCompatible(have, want []*metadata.TypeSig) bool {
	if len(have) != len(want) {
		return false
	}
	for i := range have {
		h, w := have[i], want[i]
		if h.ContainsGenericParameter() || w.ContainsGenericParameter() {
			continue
		}
		if h.String() != w.String() {
			return false
		}
	}
	return true
}
