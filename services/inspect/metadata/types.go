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
	"strings"
)

// AssemblyName identifies an assembly.
type AssemblyName struct {
	Name           string
	Version        string
	Culture        string
	PublicKeyToken string
}

// FullName renders "Name, Version=1.0.0.0, Culture=neutral, PublicKeyToken=null".
func (a AssemblyName) FullName() string {
	version := a.Version
	if version == "" {
		version = "0.0.0.0"
	}
	culture := a.Culture
	if culture == "" {
		culture = "neutral"
	}
	token := a.PublicKeyToken
	if token == "" {
		token = "null"
	}
	return fmt.Sprintf("%s, Version=%s, Culture=%s, PublicKeyToken=%s", a.Name, version, culture, token)
}

// Module is one loaded module and the assembly it belongs to.
type Module struct {
	// Name is the module file name ("App.dll"). Unique within a workspace.
	Name string

	// Assembly is the identity of the assembly the module defines.
	Assembly AssemblyName

	// References are the assemblies the module references, in declared order.
	References []AssemblyName

	// Types are the top-level types in declaration order. Nested types hang
	// off their declaring type.
	Types []*TypeDef

	// allTypes is Types flattened with nested types following their
	// declaring type. Set by link.
	allTypes []*TypeDef
}

// AllTypes returns every type of the module, nested types included, each
// nested type immediately following its declaring type's subtree position.
//
// The slice is shared; callers must not modify it.
func (m *Module) AllTypes() []*TypeDef {
	if m.allTypes == nil {
		m.link()
	}
	return m.allTypes
}

// link sets back-pointers on every member and flattens the type list.
func (m *Module) link() {
	m.allTypes = m.allTypes[:0]
	var visit func(t *TypeDef, declaring *TypeDef)
	visit = func(t *TypeDef, declaring *TypeDef) {
		t.Module = m
		t.DeclaringType = declaring
		for _, f := range t.Fields {
			f.DeclaringType = t
		}
		for _, meth := range t.Methods {
			meth.DeclaringType = t
		}
		for _, p := range t.Properties {
			p.DeclaringType = t
		}
		m.allTypes = append(m.allTypes, t)
		for _, nested := range t.NestedTypes {
			visit(nested, t)
		}
	}
	for _, t := range m.Types {
		visit(t, nil)
	}
	if m.allTypes == nil {
		m.allTypes = []*TypeDef{}
	}
}

// TypeAttributes are the kind flags of a type definition.
type TypeAttributes uint32

const (
	TypePublic TypeAttributes = 1 << iota
	TypeInterface
	TypeAbstract
	TypeSealed
	TypeValueType
	TypeEnum
)

// TypeDef is a type defined in a loaded module.
type TypeDef struct {
	Namespace  string
	Name       string
	Attributes TypeAttributes

	// BaseType is nil for interfaces and System.Object.
	BaseType *TypeSig

	// Interfaces are the directly implemented interfaces, declared order.
	Interfaces []*TypeSig

	Fields      []*FieldDef
	Methods     []*MethodDef
	Properties  []*PropertyDef
	NestedTypes []*TypeDef

	// DeclaringType is set for nested types.
	DeclaringType *TypeDef

	// Module is the defining module.
	Module *Module
}

// FullName renders "Namespace.Name"; nested types render "Outer/Inner".
func (t *TypeDef) FullName() string {
	if t.DeclaringType != nil {
		return t.DeclaringType.FullName() + "/" + t.Name
	}
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// SimpleName returns the type's own name.
func (t *TypeDef) SimpleName() string { return t.Name }

// NamespaceName returns the namespace of the outermost declaring type.
func (t *TypeDef) NamespaceName() string {
	outer := t
	for outer.DeclaringType != nil {
		outer = outer.DeclaringType
	}
	return outer.Namespace
}

// ModuleName returns the defining module's name.
func (t *TypeDef) ModuleName() string {
	if t.Module == nil {
		return ""
	}
	return t.Module.Name
}

// IsInterface reports whether the type is an interface.
func (t *TypeDef) IsInterface() bool { return t.Attributes&TypeInterface != 0 }

// IsValueType reports whether the type is a struct or enum.
func (t *TypeDef) IsValueType() bool { return t.Attributes&TypeValueType != 0 }

// KindName returns "interface", "enum", "struct" or "class".
func (t *TypeDef) KindName() string {
	switch {
	case t.IsInterface():
		return "interface"
	case t.Attributes&TypeEnum != 0:
		return "enum"
	case t.IsValueType():
		return "struct"
	default:
		return "class"
	}
}

// Sig returns a signature naming this type.
func (t *TypeDef) Sig() *TypeSig {
	return Named(t.FullName())
}

// FindField returns the field with the given name.
func (t *TypeDef) FindField(name string) (*FieldDef, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// FindProperty returns the property with the given name.
func (t *TypeDef) FindProperty(name string) (*PropertyDef, bool) {
	for _, p := range t.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// FieldDef is a field defined on a type.
type FieldDef struct {
	Name          string
	Type          *TypeSig
	IsStatic      bool
	IsPublic      bool
	DeclaringType *TypeDef
}

// FullName renders "Type Decl::Name".
func (f *FieldDef) FullName() string {
	return sigOrVoid(f.Type) + " " + f.DeclaringType.FullName() + "::" + f.Name
}

// PropertyDef is a property defined on a type.
type PropertyDef struct {
	Name          string
	Type          *TypeSig
	Getter        string
	Setter        string
	DeclaringType *TypeDef
}

// MethodAttributes are the flags of a method definition.
type MethodAttributes uint32

const (
	MethodPublic MethodAttributes = 1 << iota
	MethodStatic
	MethodVirtual
	MethodAbstract
	MethodFinal
)

// Parameter is one method parameter.
type Parameter struct {
	Name string
	Type *TypeSig

	// IsHiddenThis marks the synthesized receiver of instance methods.
	IsHiddenThis bool
}

// MethodDef is a method defined on a type.
type MethodDef struct {
	Name       string
	Attributes MethodAttributes
	ReturnType *TypeSig

	// Params includes the hidden receiver at index 0 for instance methods.
	Params []*Parameter

	// GenericParams is the number of method generic parameters.
	GenericParams int

	// Overrides are explicit override declarations (interface methods or
	// base methods this method implements by name-independent mapping).
	Overrides []*MethodRef

	// Body is nil for abstract, extern and interface methods.
	Body *Body

	DeclaringType *TypeDef
}

// FullName renders "Ret Decl::Name(P1,P2)". The hidden receiver is omitted.
// This is the identity of a method node in the call graph.
func (m *MethodDef) FullName() string {
	return formatMethodName(m.ReturnType, m.DeclaringType.FullName(), m.Name, nil, m.ParamTypes())
}

// ParamTypes returns the declared parameter types, hidden receiver excluded.
func (m *MethodDef) ParamTypes() []*TypeSig {
	params := m.VisibleParams()
	types := make([]*TypeSig, len(params))
	for i, p := range params {
		types[i] = p.Type
	}
	return types
}

// VisibleParams returns the parameters excluding the hidden receiver.
func (m *MethodDef) VisibleParams() []*Parameter {
	out := make([]*Parameter, 0, len(m.Params))
	for _, p := range m.Params {
		if p.IsHiddenThis {
			continue
		}
		out = append(out, p)
	}
	return out
}

// IsStatic reports whether the method has no receiver.
func (m *MethodDef) IsStatic() bool { return m.Attributes&MethodStatic != 0 }

// IsPublic reports whether the method is publicly visible.
func (m *MethodDef) IsPublic() bool { return m.Attributes&MethodPublic != 0 }

// IsVirtual reports whether the method is virtual.
func (m *MethodDef) IsVirtual() bool { return m.Attributes&MethodVirtual != 0 }

// IsAbstract reports whether the method is abstract.
func (m *MethodDef) IsAbstract() bool { return m.Attributes&MethodAbstract != 0 }

// IsConstructor reports whether the method is an instance or type initializer.
func (m *MethodDef) IsConstructor() bool { return m.Name == ".ctor" || m.Name == ".cctor" }

// HasBody reports whether the method has instructions.
func (m *MethodDef) HasBody() bool { return m.Body != nil }

// Body is a method's instruction stream and local variables.
type Body struct {
	Instructions []*Instruction
	Locals       []*TypeSig
}

// Instruction is one decoded instruction.
type Instruction struct {
	Offset  uint32
	OpCode  *OpCode
	Operand Operand
}

// String renders "IL_0000: opcode operand".
func (i *Instruction) String() string {
	var b strings.Builder
	b.WriteString(FormatOffset(i.Offset))
	b.WriteString(": ")
	b.WriteString(i.OpCode.String())
	if operand := i.Operand.String(); operand != "" {
		b.WriteByte(' ')
		b.WriteString(operand)
	}
	return b.String()
}

// OperandText returns the rendered operand, "" when there is none.
func (i *Instruction) OperandText() string {
	return i.Operand.String()
}
