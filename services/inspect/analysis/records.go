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

// =============================================================================
// Resolver records
// =============================================================================

// TypeInfo describes a resolved type.
type TypeInfo struct {
	FullName      string   `json:"full_name"`
	Namespace     string   `json:"namespace"`
	Name          string   `json:"name"`
	Module        string   `json:"module"`
	Kind          string   `json:"kind"`
	BaseType      string   `json:"base_type,omitempty"`
	Interfaces    []string `json:"interfaces,omitempty"`
	FieldCount    int      `json:"field_count"`
	MethodCount   int      `json:"method_count"`
	PropertyCount int      `json:"property_count"`
}

// MethodInfo describes a resolved method.
type MethodInfo struct {
	FullName         string   `json:"full_name"`
	DeclaringType    string   `json:"declaring_type"`
	Name             string   `json:"name"`
	Module           string   `json:"module"`
	ReturnType       string   `json:"return_type"`
	Parameters       []string `json:"parameters"`
	IsStatic         bool     `json:"is_static"`
	IsVirtual        bool     `json:"is_virtual"`
	IsAbstract       bool     `json:"is_abstract"`
	HasBody          bool     `json:"has_body"`
	InstructionCount int      `json:"instruction_count"`
}

// =============================================================================
// Reference Scanner records
// =============================================================================

// ReferenceKind classifies a scanned reference.
type ReferenceKind string

const (
	// Type-only usage kinds.
	RefTypeReference ReferenceKind = "TypeReference"
	RefMethodCall    ReferenceKind = "MethodCall"
	RefFieldAccess   ReferenceKind = "FieldAccess"

	// Member usage kinds.
	RefCall      ReferenceKind = "Call"
	RefReference ReferenceKind = "Reference"
	RefRead      ReferenceKind = "Read"
	RefWrite     ReferenceKind = "Write"
	RefAddressOf ReferenceKind = "AddressOf"

	// Literal and pattern kinds.
	RefStringLiteral ReferenceKind = "StringLiteral"
	RefNumberLiteral ReferenceKind = "NumberLiteral"
	RefPattern       ReferenceKind = "PatternMatch"
)

// Reference is one matching instruction.
type Reference struct {
	Kind ReferenceKind `json:"kind"`

	// Module, Type and Method locate the containing method. Method is the
	// full signature.
	Module string `json:"module"`
	Type   string `json:"type"`
	Method string `json:"method"`

	Offset  uint32 `json:"il_offset"`
	OpCode  string `json:"opcode"`
	Operand string `json:"operand,omitempty"`

	// Window holds the rendered instructions of an opcode pattern match.
	Window []string `json:"window,omitempty"`
}

// ScanResult is the ordered output of a reference scan.
type ScanResult struct {
	Query      string      `json:"query"`
	References []Reference `json:"references"`

	// Truncated is true if matches beyond MaxResults were dropped or the context ended.
	Truncated bool `json:"truncated"`
}

// Callee is one call site inside a method body.
type Callee struct {
	// Callee is the full signature of the called method. Resolved callees
	// use the definition's signature, unresolved ones the reference's.
	Callee        string `json:"callee"`
	DeclaringType string `json:"declaring_type"`
	Name          string `json:"name"`
	Offset        uint32 `json:"il_offset"`
	OpCode        string `json:"opcode"`
	IsVirtual     bool   `json:"is_virtual"`
	Resolved      bool   `json:"resolved"`
}

// CalleesResult lists the call sites of one method in body order.
type CalleesResult struct {
	Method    string   `json:"method"`
	Callees   []Callee `json:"callees"`
	Truncated bool     `json:"truncated"`
}

// Disassembly is the rendered body of one method.
type Disassembly struct {
	Method       string   `json:"method"`
	Module       string   `json:"module"`
	Locals       []string `json:"locals,omitempty"`
	Instructions []string `json:"instructions"`
}

// =============================================================================
// Call Graph records
// =============================================================================

// CallGraphNode is a visited method.
type CallGraphNode struct {
	// ID is the method full signature.
	ID            string `json:"id"`
	DeclaringType string `json:"declaring_type"`
	Name          string `json:"name"`
	Module        string `json:"module"`
	Depth         int    `json:"depth"`
}

// CallGraphEdge is one call site between two methods.
type CallGraphEdge struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Offset    uint32 `json:"il_offset"`
	IsVirtual bool   `json:"is_virtual"`
}

// CallGraph is the output of a bounded breadth-first call walk.
type CallGraph struct {
	Root       string          `json:"root"`
	Nodes      []CallGraphNode `json:"nodes"`
	Edges      []CallGraphEdge `json:"edges"`
	TotalNodes int             `json:"total_nodes"`
	TotalEdges int             `json:"total_edges"`

	// Truncated is true when the node cap stopped the walk while unvisited
	// methods were still queued.
	Truncated bool `json:"truncated"`

	MaxDepth int `json:"max_depth"`
	MaxNodes int `json:"max_nodes"`
}

// =============================================================================
// Hierarchy records
// =============================================================================

// TypeHierarchy is a type's base chain and interface closure.
type TypeHierarchy struct {
	Type       string   `json:"type"`
	Module     string   `json:"module"`
	BaseTypes  []string `json:"base_types"`
	Interfaces []string `json:"interfaces"`
}

// DerivedType is a type whose base chain reaches the target.
type DerivedType struct {
	TypeName string `json:"type_name"`
	Module   string `json:"module"`
	IsDirect bool   `json:"is_direct"`
}

// DerivedTypesResult lists derived types in scan order.
type DerivedTypesResult struct {
	Target    string        `json:"target"`
	Types     []DerivedType `json:"types"`
	Truncated bool          `json:"truncated"`
}

// Implementation is a type whose interface closure contains the target.
type Implementation struct {
	TypeName    string `json:"type_name"`
	Module      string `json:"module"`
	IsDirect    bool   `json:"is_direct"`
	IsInterface bool   `json:"is_interface"`
}

// ImplementationsResult lists implementations in scan order.
type ImplementationsResult struct {
	Interface string           `json:"interface"`
	Types     []Implementation `json:"types"`
	Truncated bool             `json:"truncated"`
}

// MatchKind is how a member implements an interface member.
type MatchKind string

const (
	// MatchImplicit is a public instance member with the same name and
	// compatible parameters.
	MatchImplicit MatchKind = "implicit"

	// MatchExplicitOverride is an explicit override declaration naming the
	// interface member.
	MatchExplicitOverride MatchKind = "explicit_override"

	// MatchExplicitName is a member named "Interface.Member".
	MatchExplicitName MatchKind = "explicit_name"
)

// MemberImplementation is one member implementing an interface member.
type MemberImplementation struct {
	TypeName string `json:"type_name"`
	Module   string `json:"module"`

	// Member is a method full signature or a property name.
	Member     string    `json:"member"`
	MemberKind string    `json:"member_kind"`
	Match      MatchKind `json:"match"`
}

// MemberImplementationsResult lists member implementations in scan order.
type MemberImplementationsResult struct {
	Interface       string                 `json:"interface"`
	Member          string                 `json:"member"`
	Implementations []MemberImplementation `json:"implementations"`
	Truncated       bool                   `json:"truncated"`
}

// =============================================================================
// Dependency records
// =============================================================================

// DependencyKind is the structural relation behind a dependency.
type DependencyKind string

const (
	DepInherits      DependencyKind = "Inherits"
	DepImplements    DependencyKind = "Implements"
	DepFieldType     DependencyKind = "FieldType"
	DepReturnType    DependencyKind = "ReturnType"
	DepParameterType DependencyKind = "ParameterType"
	DepLocalVariable DependencyKind = "LocalVariable"
	DepPropertyType  DependencyKind = "PropertyType"
)

// Dependency is one (type, kind) pair, relative to the queried type.
type Dependency struct {
	TypeName string         `json:"type_name"`
	Kind     DependencyKind `json:"kind"`
}

// DependencyReport is the two-sided dependency view of one type.
type DependencyReport struct {
	Type      string    `json:"type"`
	Direction Direction `json:"direction"`

	Outgoing []Dependency `json:"outgoing,omitempty"`
	Incoming []Dependency `json:"incoming,omitempty"`

	// Totals count the full sets before the MaxResults cap.
	TotalOutgoing int  `json:"total_outgoing"`
	TotalIncoming int  `json:"total_incoming"`
	Truncated     bool `json:"truncated"`
}

// AssemblyDependencies lists referenced and referencing assemblies.
type AssemblyDependencies struct {
	Assembly string   `json:"assembly"`
	Module   string   `json:"module"`
	Outgoing []string `json:"outgoing"`
	Incoming []string `json:"incoming"`
}
