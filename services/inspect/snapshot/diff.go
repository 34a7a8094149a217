// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"sort"
	"strings"

	"github.com/AleutianAI/ilscope/services/inspect/metadata"
)

// Change types reported in TypeDiff.ChangeType, highest precedence first.
const (
	ChangeMoved          = "moved"
	ChangeBaseChanged    = "base_changed"
	ChangeMembersChanged = "members_changed"
	ChangeBodyChanged    = "body_changed"
)

// Diff is the type-level difference between two module sets.
type Diff struct {
	BaseSnapshotID   string `json:"base_snapshot_id"`
	TargetSnapshotID string `json:"target_snapshot_id"`

	// TypesAdded are full type names present only in the target, sorted.
	TypesAdded []string `json:"types_added"`

	// TypesRemoved are full type names present only in the base, sorted.
	TypesRemoved []string `json:"types_removed"`

	// TypesModified are types present in both whose shape changed, sorted
	// by name.
	TypesModified []TypeDiff `json:"types_modified"`

	// CallEdgesAdded counts caller/callee pairs new in the target.
	CallEdgesAdded int `json:"call_edges_added"`

	// CallEdgesRemoved counts caller/callee pairs gone from the target.
	CallEdgesRemoved int `json:"call_edges_removed"`

	Summary DiffSummary `json:"summary"`
}

// TypeDiff describes one modified type.
type TypeDiff struct {
	TypeName   string `json:"type_name"`
	ChangeType string `json:"change_type"`
}

// DiffSummary aggregates a Diff.
type DiffSummary struct {
	// TotalChanges is added + removed + modified types.
	TotalChanges int `json:"total_changes"`

	// ModulesAffected counts distinct modules holding a changed type, on
	// either side.
	ModulesAffected int `json:"modules_affected"`

	// ChangeRatio is TotalChanges over the larger type count, 0 when both
	// sides are empty.
	ChangeRatio float64 `json:"change_ratio"`
}

// typeShape is the comparable projection of a type.
type typeShape struct {
	module  string
	base    string
	members string
	bodies  string
}

// DiffModules compares two module sets at type granularity.
//
// Description:
//
//	Types are matched by full name. A matched type is "moved" when its
//	defining module changed, "base_changed" when its base type or
//	interface list changed, "members_changed" when its field, property or
//	method signatures changed, and "body_changed" when only instructions
//	changed. Call edges are caller/callee method name pairs taken from
//	call, callvirt and newobj instructions.
//
// Inputs:
//
//	base - The earlier module set.
//	target - The later module set.
//	baseID, targetID - Snapshot IDs copied into the result. May be empty.
//
// Outputs:
//
//	*Diff - Never nil. Slices are non-nil.
//
// Thread Safety: Safe for concurrent use on modules no one is mutating.
func DiffModules(base, target []*metadata.Module, baseID, targetID string) *Diff {
	baseShapes := shapes(base)
	targetShapes := shapes(target)

	diff := &Diff{
		BaseSnapshotID:   baseID,
		TargetSnapshotID: targetID,
		TypesAdded:       make([]string, 0),
		TypesRemoved:     make([]string, 0),
		TypesModified:    make([]TypeDiff, 0),
	}
	modules := make(map[string]struct{})

	for name, ts := range targetShapes {
		bs, ok := baseShapes[name]
		if !ok {
			diff.TypesAdded = append(diff.TypesAdded, name)
			modules[ts.module] = struct{}{}
			continue
		}
		if change := compareShapes(bs, ts); change != "" {
			diff.TypesModified = append(diff.TypesModified, TypeDiff{TypeName: name, ChangeType: change})
			modules[bs.module] = struct{}{}
			modules[ts.module] = struct{}{}
		}
	}
	for name, bs := range baseShapes {
		if _, ok := targetShapes[name]; !ok {
			diff.TypesRemoved = append(diff.TypesRemoved, name)
			modules[bs.module] = struct{}{}
		}
	}

	sort.Strings(diff.TypesAdded)
	sort.Strings(diff.TypesRemoved)
	sort.Slice(diff.TypesModified, func(i, j int) bool {
		return diff.TypesModified[i].TypeName < diff.TypesModified[j].TypeName
	})

	baseEdges := callEdges(base)
	targetEdges := callEdges(target)
	for key := range targetEdges {
		if _, ok := baseEdges[key]; !ok {
			diff.CallEdgesAdded++
		}
	}
	for key := range baseEdges {
		if _, ok := targetEdges[key]; !ok {
			diff.CallEdgesRemoved++
		}
	}

	total := len(diff.TypesAdded) + len(diff.TypesRemoved) + len(diff.TypesModified)
	diff.Summary = DiffSummary{
		TotalChanges:    total,
		ModulesAffected: len(modules),
	}
	if denom := max(len(baseShapes), len(targetShapes)); denom > 0 {
		diff.Summary.ChangeRatio = float64(total) / float64(denom)
	}
	return diff
}

func compareShapes(a, b typeShape) string {
	switch {
	case a.module != b.module:
		return ChangeMoved
	case a.base != b.base:
		return ChangeBaseChanged
	case a.members != b.members:
		return ChangeMembersChanged
	case a.bodies != b.bodies:
		return ChangeBodyChanged
	}
	return ""
}

func shapes(modules []*metadata.Module) map[string]typeShape {
	out := make(map[string]typeShape)
	for _, mod := range modules {
		for _, t := range mod.AllTypes() {
			out[t.FullName()] = shapeOf(mod.Name, t)
		}
	}
	return out
}

func shapeOf(module string, t *metadata.TypeDef) typeShape {
	var base strings.Builder
	base.WriteString(t.KindName())
	if t.BaseType != nil {
		base.WriteString(" : ")
		base.WriteString(t.BaseType.String())
	}
	for _, iface := range t.Interfaces {
		base.WriteString(", ")
		base.WriteString(iface.String())
	}

	members := make([]string, 0, len(t.Fields)+len(t.Properties)+len(t.Methods))
	for _, f := range t.Fields {
		members = append(members, "F "+f.FullName())
	}
	for _, p := range t.Properties {
		members = append(members, "P "+p.Name+" "+p.Type.String())
	}
	bodies := make([]string, 0, len(t.Methods))
	for _, m := range t.Methods {
		name := m.FullName()
		members = append(members, "M "+name)
		if m.Body == nil {
			continue
		}
		var b strings.Builder
		b.WriteString(name)
		for _, ins := range m.Body.Instructions {
			b.WriteByte('\n')
			b.WriteString(ins.String())
		}
		bodies = append(bodies, b.String())
	}
	sort.Strings(members)
	sort.Strings(bodies)

	return typeShape{
		module:  module,
		base:    base.String(),
		members: strings.Join(members, "\n"),
		bodies:  strings.Join(bodies, "\n\n"),
	}
}

// callEdges returns the set of "caller|callee" keys.
func callEdges(modules []*metadata.Module) map[string]struct{} {
	edges := make(map[string]struct{})
	for _, mod := range modules {
		for _, t := range mod.AllTypes() {
			for _, m := range t.Methods {
				if m.Body == nil {
					continue
				}
				caller := m.FullName()
				for _, ins := range m.Body.Instructions {
					if ins.OpCode == nil || !ins.OpCode.Class.IsCallLike() || ins.Operand.Method == nil {
						continue
					}
					edges[caller+"|"+ins.Operand.Method.FullName()] = struct{}{}
				}
			}
		}
	}
	return edges
}
