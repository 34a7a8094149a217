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
	"strconv"
	"strings"
)

// OperandKind discriminates the Operand variants.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandType
	OperandMethod
	OperandField
	OperandString
	OperandInteger
	OperandBranchTarget
	OperandLocal
	OperandParameter
)

var operandKindNames = [...]string{
	OperandNone:         "none",
	OperandType:         "type",
	OperandMethod:       "method",
	OperandField:        "field",
	OperandString:       "string",
	OperandInteger:      "integer",
	OperandBranchTarget: "branch_target",
	OperandLocal:        "local",
	OperandParameter:    "parameter",
}

// String returns the kind name.
func (k OperandKind) String() string {
	if int(k) < len(operandKindNames) {
		return operandKindNames[k]
	}
	return "unknown"
}

// Operand is the instruction operand. Exactly the field matching Kind is
// meaningful; Int carries the integer value, the branch target offset, or
// the local/parameter index.
type Operand struct {
	Kind   OperandKind
	Type   *TypeSig
	Method *MethodRef
	Field  *FieldRef
	Str    string
	Int    int64
}

// NoOperand is the operand of instructions that take none.
func NoOperand() Operand { return Operand{} }

// TypeOperand wraps a type token.
func TypeOperand(sig *TypeSig) Operand { return Operand{Kind: OperandType, Type: sig} }

// MethodOperand wraps a method token.
func MethodOperand(ref *MethodRef) Operand { return Operand{Kind: OperandMethod, Method: ref} }

// FieldOperand wraps a field token.
func FieldOperand(ref *FieldRef) Operand { return Operand{Kind: OperandField, Field: ref} }

// StringOperand wraps a string literal.
func StringOperand(s string) Operand { return Operand{Kind: OperandString, Str: s} }

// IntOperand wraps a numeric constant.
func IntOperand(v int64) Operand { return Operand{Kind: OperandInteger, Int: v} }

// BranchOperand wraps a branch target offset.
func BranchOperand(target uint32) Operand {
	return Operand{Kind: OperandBranchTarget, Int: int64(target)}
}

// LocalOperand wraps a local variable index.
func LocalOperand(index int) Operand { return Operand{Kind: OperandLocal, Int: int64(index)} }

// ParamOperand wraps a parameter index.
func ParamOperand(index int) Operand { return Operand{Kind: OperandParameter, Int: int64(index)} }

// String renders the operand as it appears in a disassembly listing.
func (o Operand) String() string {
	switch o.Kind {
	case OperandType:
		return o.Type.String()
	case OperandMethod:
		return o.Method.FullName()
	case OperandField:
		return o.Field.FullName()
	case OperandString:
		return strconv.Quote(o.Str)
	case OperandInteger:
		return strconv.FormatInt(o.Int, 10)
	case OperandBranchTarget:
		return FormatOffset(uint32(o.Int))
	case OperandLocal:
		return "V_" + strconv.FormatInt(o.Int, 10)
	case OperandParameter:
		return "A_" + strconv.FormatInt(o.Int, 10)
	default:
		return ""
	}
}

// FormatOffset renders an instruction offset as "IL_0000".
func FormatOffset(offset uint32) string {
	return fmt.Sprintf("IL_%04X", offset)
}

// MethodRef references a method by declaring type, name and signature.
type MethodRef struct {
	DeclaringType *TypeSig
	Name          string
	ReturnType    *TypeSig
	Params        []*TypeSig
	GenericArgs   []*TypeSig
}

// FullName renders "Ret Decl::Name(P1,P2)". A nil return type renders as
// System.Void.
func (r *MethodRef) FullName() string {
	if r == nil {
		return ""
	}
	return formatMethodName(r.ReturnType, r.DeclaringType.String(), r.Name, r.GenericArgs, r.Params)
}

// ParamTypeNames returns the rendered parameter types.
func (r *MethodRef) ParamTypeNames() []string {
	names := make([]string, len(r.Params))
	for i, p := range r.Params {
		names[i] = p.String()
	}
	return names
}

// FieldRef references a field by declaring type and name.
type FieldRef struct {
	DeclaringType *TypeSig
	Name          string
	FieldType     *TypeSig
}

// FullName renders "Type Decl::Name".
func (r *FieldRef) FullName() string {
	if r == nil {
		return ""
	}
	return sigOrVoid(r.FieldType) + " " + r.DeclaringType.String() + "::" + r.Name
}

func sigOrVoid(sig *TypeSig) string {
	if sig == nil {
		return "System.Void"
	}
	return sig.String()
}

func formatMethodName(ret *TypeSig, decl, name string, genericArgs, params []*TypeSig) string {
	var b strings.Builder
	b.WriteString(sigOrVoid(ret))
	b.WriteByte(' ')
	b.WriteString(decl)
	b.WriteString("::")
	b.WriteString(name)
	if len(genericArgs) > 0 {
		b.WriteByte('<')
		for i, arg := range genericArgs {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(arg.String())
		}
		b.WriteByte('>')
	}
	b.WriteByte('(')
	for i, p := range params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.String())
	}
	b.WriteByte(')')
	return b.String()
}
