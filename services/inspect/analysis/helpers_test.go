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
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/ilscope/services/inspect/metadata"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newModule builds a module named "<assembly>.dll".
func newModule(assembly string, refs []string, types ...*metadata.TypeDef) *metadata.Module {
	m := &metadata.Module{
		Name:     assembly + ".dll",
		Assembly: metadata.AssemblyName{Name: assembly, Version: "1.0.0.0"},
		Types:    types,
	}
	for _, r := range refs {
		m.References = append(m.References, metadata.AssemblyName{Name: r, Version: "1.0.0.0"})
	}
	return m
}

func splitName(fullName string) (ns, name string) {
	if i := strings.LastIndexByte(fullName, '.'); i >= 0 {
		return fullName[:i], fullName[i+1:]
	}
	return "", fullName
}

// classDef builds a public class. An empty base means no base type.
func classDef(fullName, base string, ifaces ...string) *metadata.TypeDef {
	ns, name := splitName(fullName)
	td := &metadata.TypeDef{Namespace: ns, Name: name, Attributes: metadata.TypePublic}
	if base != "" {
		td.BaseType = metadata.MustParseTypeSig(base)
	}
	for _, i := range ifaces {
		td.Interfaces = append(td.Interfaces, metadata.MustParseTypeSig(i))
	}
	return td
}

// interfaceDef builds a public interface extending the given interfaces.
func interfaceDef(fullName string, extends ...string) *metadata.TypeDef {
	td := classDef(fullName, "", extends...)
	td.Attributes |= metadata.TypeInterface | metadata.TypeAbstract
	return td
}

// withMethods attaches methods to td, adding the hidden receiver to
// instance methods the way the document decoder does.
func withMethods(td *metadata.TypeDef, methods ...*metadata.MethodDef) *metadata.TypeDef {
	for _, m := range methods {
		if !m.IsStatic() {
			this := &metadata.Parameter{Name: "this", Type: td.Sig(), IsHiddenThis: true}
			m.Params = append([]*metadata.Parameter{this}, m.Params...)
		}
		td.Methods = append(td.Methods, m)
	}
	return td
}

func withFields(td *metadata.TypeDef, nameTypes ...string) *metadata.TypeDef {
	for i := 0; i+1 < len(nameTypes); i += 2 {
		td.Fields = append(td.Fields, &metadata.FieldDef{
			Name: nameTypes[i],
			Type: metadata.MustParseTypeSig(nameTypes[i+1]),
		})
	}
	return td
}

// methodDef builds a method. A nil body leaves the method without one.
func methodDef(name string, attrs metadata.MethodAttributes, ret string, params []string, body *metadata.Body) *metadata.MethodDef {
	m := &metadata.MethodDef{Name: name, Attributes: attrs, Body: body}
	if ret != "" {
		m.ReturnType = metadata.MustParseTypeSig(ret)
	}
	for i, p := range params {
		m.Params = append(m.Params, &metadata.Parameter{
			Name: "p" + string(rune('0'+i)),
			Type: metadata.MustParseTypeSig(p),
		})
	}
	return m
}

func body(instructions ...*metadata.Instruction) *metadata.Body {
	return &metadata.Body{Instructions: instructions}
}

func ins(offset uint32, op string, operand metadata.Operand) *metadata.Instruction {
	code, ok := metadata.LookupOpCode(op)
	if !ok {
		panic("unknown opcode " + op)
	}
	return &metadata.Instruction{Offset: offset, OpCode: code, Operand: operand}
}

func callOperand(decl, name string, params ...string) metadata.Operand {
	ref := &metadata.MethodRef{DeclaringType: metadata.MustParseTypeSig(decl), Name: name}
	for _, p := range params {
		ref.Params = append(ref.Params, metadata.MustParseTypeSig(p))
	}
	return metadata.MethodOperand(ref)
}

func noOperand() metadata.Operand { return metadata.NoOperand() }

const (
	public     = metadata.MethodPublic
	staticFlag = metadata.MethodStatic
)

func newTestWorkspace(t *testing.T, modules ...*metadata.Module) *metadata.Workspace {
	t.Helper()
	ws := metadata.NewWorkspace(metadata.WithLogger(quietLogger()))
	require.NoError(t, ws.Load(modules...))
	return ws
}

func newTestAnalyzer(t *testing.T, modules ...*metadata.Module) *Analyzer {
	t.Helper()
	return NewAnalyzer(newTestWorkspace(t, modules...), WithLogger(quietLogger()))
}

// fixtureAnalyzer loads test/fixtures/sample-assembly.yaml.
func fixtureAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	modules, err := metadata.LoadDocumentFile(filepath.Join("..", "..", "..", "test", "fixtures", "sample-assembly.yaml"))
	require.NoError(t, err)
	return newTestAnalyzer(t, modules...)
}
