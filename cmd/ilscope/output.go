// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/ilscope/services/inspect/analysis"
	"github.com/AleutianAI/ilscope/services/inspect/metadata"
	"github.com/AleutianAI/ilscope/services/inspect/snapshot"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// =============================================================================
// Styles
// =============================================================================

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	kindStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))
)

// printer renders results as JSON or as plain text, styled when writing to
// a terminal.
type printer struct {
	w      io.Writer
	json   bool
	styled bool
}

func (a *app) printer() *printer {
	return &printer{w: a.stdout, json: a.flags.json, styled: isTerminal(a.stdout)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *printer) style(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *printer) header(format string, args ...any) {
	fmt.Fprintln(p.w, p.style(headerStyle, fmt.Sprintf(format, args...)))
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) truncated(truncated bool) {
	if truncated {
		fmt.Fprintln(p.w, p.style(warnStyle, "(truncated; raise --max-results for more)"))
	}
}

// print writes v as JSON or dispatches to its text form.
func (p *printer) print(v any) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	switch r := v.(type) {
	case *analysis.TypeInfo:
		p.typeInfo(r)
	case *analysis.MethodInfo:
		p.methodInfo(r)
	case *analysis.ScanResult:
		p.scan(r)
	case *analysis.CalleesResult:
		p.callees(r)
	case *analysis.Disassembly:
		p.disassembly(r)
	case *analysis.CallGraph:
		p.callGraph(r)
	case *analysis.TypeHierarchy:
		p.hierarchy(r)
	case *analysis.DerivedTypesResult:
		p.derived(r)
	case *analysis.ImplementationsResult:
		p.implementations(r)
	case *analysis.MemberImplementationsResult:
		p.memberImplementations(r)
	case *analysis.DependencyReport:
		p.dependencies(r)
	case *analysis.AssemblyDependencies:
		p.assemblyDependencies(r)
	case *snapshot.Metadata:
		p.snapshotMeta(r)
	case []*snapshot.Metadata:
		p.snapshotList(r)
	case *snapshot.Diff:
		p.diff(r)
	case *loadedSnapshot:
		p.snapshotMeta(r.Metadata)
		for _, m := range r.Modules {
			p.line("  %s (%s)", m.Name, m.Assembly.FullName())
		}
	default:
		return fmt.Errorf("no text form for %T", v)
	}
	return nil
}

// =============================================================================
// Text Renderers
// =============================================================================

func (p *printer) typeInfo(t *analysis.TypeInfo) {
	p.header("%s %s", t.Kind, t.FullName)
	p.line("  module:     %s", t.Module)
	if t.BaseType != "" {
		p.line("  base:       %s", t.BaseType)
	}
	if len(t.Interfaces) > 0 {
		p.line("  interfaces: %s", strings.Join(t.Interfaces, ", "))
	}
	p.line("  members:    %d fields, %d methods, %d properties", t.FieldCount, t.MethodCount, t.PropertyCount)
}

func (p *printer) methodInfo(m *analysis.MethodInfo) {
	p.header("%s", m.FullName)
	p.line("  module: %s", m.Module)
	var flags []string
	if m.IsStatic {
		flags = append(flags, "static")
	}
	if m.IsAbstract {
		flags = append(flags, "abstract")
	} else if m.IsVirtual {
		flags = append(flags, "virtual")
	}
	if len(flags) > 0 {
		p.line("  flags:  %s", strings.Join(flags, " "))
	}
	if m.HasBody {
		p.line("  body:   %d instructions", m.InstructionCount)
	} else {
		p.line("  body:   none")
	}
}

func (p *printer) scan(r *analysis.ScanResult) {
	p.header("%s: %d result(s)", r.Query, len(r.References))
	for _, ref := range r.References {
		operand := ""
		if ref.Operand != "" {
			operand = " " + ref.Operand
		}
		p.line("  %s %s %s%s", p.style(kindStyle, string(ref.Kind)),
			p.style(dimStyle, metadata.FormatOffset(ref.Offset)), ref.OpCode, operand)
		p.line("      in %s", ref.Method)
		for _, w := range ref.Window {
			p.line("      %s", w)
		}
	}
	p.truncated(r.Truncated)
}

func (p *printer) callees(r *analysis.CalleesResult) {
	p.header("%s calls %d method(s)", r.Method, len(r.Callees))
	for _, c := range r.Callees {
		marker := ""
		if !c.Resolved {
			marker = p.style(dimStyle, " [external]")
		}
		p.line("  %s %-8s %s%s", p.style(dimStyle, metadata.FormatOffset(c.Offset)), c.OpCode, c.Callee, marker)
	}
	p.truncated(r.Truncated)
}

func (p *printer) disassembly(d *analysis.Disassembly) {
	p.header("%s", d.Method)
	p.line("  %s", p.style(dimStyle, "module "+d.Module))
	for i, l := range d.Locals {
		p.line("  .local [%d] %s", i, l)
	}
	for _, ins := range d.Instructions {
		p.line("  %s", ins)
	}
}

func (p *printer) callGraph(g *analysis.CallGraph) {
	p.header("call graph of %s: %d node(s), %d edge(s)", g.Root, g.TotalNodes, g.TotalEdges)
	for _, n := range g.Nodes {
		p.line("  %s%s", strings.Repeat("  ", n.Depth), n.ID)
	}
	if len(g.Edges) > 0 {
		p.line("  %s", p.style(dimStyle, "edges:"))
	}
	for _, e := range g.Edges {
		p.line("  %s -> %s %s", e.From, e.To, p.style(dimStyle, "@"+metadata.FormatOffset(e.Offset)))
	}
	if g.Truncated {
		p.line("%s", p.style(warnStyle, fmt.Sprintf("(truncated at %d nodes; raise --max-nodes)", g.MaxNodes)))
	}
}

func (p *printer) hierarchy(h *analysis.TypeHierarchy) {
	p.header("%s", h.Type)
	p.line("  module: %s", h.Module)
	for i, b := range h.BaseTypes {
		p.line("  %s%s %s", strings.Repeat("  ", i), p.style(dimStyle, "extends"), b)
	}
	for _, iface := range h.Interfaces {
		p.line("  %s %s", p.style(dimStyle, "implements"), iface)
	}
}

func (p *printer) derived(r *analysis.DerivedTypesResult) {
	p.header("types derived from %s: %d", r.Target, len(r.Types))
	for _, t := range r.Types {
		p.line("  %s %s %s", directMarker(t.IsDirect), t.TypeName, p.style(dimStyle, t.Module))
	}
	p.truncated(r.Truncated)
}

func (p *printer) implementations(r *analysis.ImplementationsResult) {
	p.header("implementations of %s: %d", r.Interface, len(r.Types))
	for _, t := range r.Types {
		kind := ""
		if t.IsInterface {
			kind = p.style(dimStyle, " (interface)")
		}
		p.line("  %s %s%s %s", directMarker(t.IsDirect), t.TypeName, kind, p.style(dimStyle, t.Module))
	}
	p.truncated(r.Truncated)
}

func (p *printer) memberImplementations(r *analysis.MemberImplementationsResult) {
	p.header("implementations of %s::%s: %d", r.Interface, r.Member, len(r.Implementations))
	for _, m := range r.Implementations {
		p.line("  %s %s", p.style(kindStyle, string(m.Match)), m.Member)
	}
	p.truncated(r.Truncated)
}

func (p *printer) dependencies(r *analysis.DependencyReport) {
	p.header("dependencies of %s (%s)", r.Type, r.Direction)
	if r.Direction != analysis.DirectionIncoming {
		p.line("  outgoing (%d):", r.TotalOutgoing)
		for _, d := range r.Outgoing {
			p.line("    %s %s", p.style(kindStyle, fmt.Sprintf("%-13s", d.Kind)), d.TypeName)
		}
	}
	if r.Direction != analysis.DirectionOutgoing {
		p.line("  incoming (%d):", r.TotalIncoming)
		for _, d := range r.Incoming {
			p.line("    %s %s", p.style(kindStyle, fmt.Sprintf("%-13s", d.Kind)), d.TypeName)
		}
	}
	p.truncated(r.Truncated)
}

func (p *printer) assemblyDependencies(r *analysis.AssemblyDependencies) {
	p.header("%s", r.Assembly)
	p.line("  module: %s", r.Module)
	p.line("  references (%d):", len(r.Outgoing))
	for _, name := range r.Outgoing {
		p.line("    %s", name)
	}
	p.line("  referenced by (%d):", len(r.Incoming))
	for _, name := range r.Incoming {
		p.line("    %s", name)
	}
}

func (p *printer) snapshotMeta(m *snapshot.Metadata) {
	label := ""
	if m.Label != "" {
		label = " " + p.style(kindStyle, m.Label)
	}
	p.line("%s%s  %s  %d module(s), %d type(s)  %s",
		p.style(headerStyle, m.SnapshotID), label, m.Workspace, m.ModuleCount, m.TypeCount,
		p.style(dimStyle, time.UnixMilli(m.CreatedAtMilli).UTC().Format(time.RFC3339)))
}

func (p *printer) snapshotList(list []*snapshot.Metadata) {
	if len(list) == 0 {
		p.line("no snapshots")
		return
	}
	for _, m := range list {
		p.snapshotMeta(m)
	}
}

func (p *printer) diff(d *snapshot.Diff) {
	p.header("%d change(s) across %d module(s), ratio %.2f",
		d.Summary.TotalChanges, d.Summary.ModulesAffected, d.Summary.ChangeRatio)
	for _, name := range d.TypesAdded {
		p.line("  + %s", name)
	}
	for _, name := range d.TypesRemoved {
		p.line("  - %s", name)
	}
	for _, t := range d.TypesModified {
		p.line("  ~ %s %s", t.TypeName, p.style(dimStyle, t.ChangeType))
	}
	p.line("  call edges: +%d -%d", d.CallEdgesAdded, d.CallEdgesRemoved)
}

func directMarker(direct bool) string {
	if direct {
		return "*"
	}
	return " "
}
