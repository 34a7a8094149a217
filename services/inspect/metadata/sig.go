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
	"strconv"
	"strings"
)

// TypeRef names a type by full name without resolving it.
//
// FullName uses the same rendering as TypeDef.FullName: "Namespace.Name",
// nested types as "Outer/Inner", generic arity suffix kept ("List`1").
type TypeRef struct {
	// FullName is the referenced type's full name.
	FullName string `json:"full_name"`

	// Scope is the simple name of the assembly the reference points into.
	// Empty when the reference is to the same module or unknown.
	Scope string `json:"scope,omitempty"`
}

// Namespace returns the namespace part of the full name.
func (r TypeRef) Namespace() string {
	outer := r.FullName
	if i := strings.IndexByte(outer, '/'); i >= 0 {
		outer = outer[:i]
	}
	if i := strings.LastIndexByte(outer, '.'); i >= 0 {
		return outer[:i]
	}
	return ""
}

// Name returns the simple name (innermost nested name, no namespace).
func (r TypeRef) Name() string {
	name := r.FullName
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// SigKind discriminates the TypeSig variants.
type SigKind uint8

const (
	// SigNamed is a reference to a named type.
	SigNamed SigKind = iota

	// SigGenericInst is a generic type applied to type arguments.
	SigGenericInst

	// SigArray is a multi-dimensional array.
	SigArray

	// SigSZArray is a single-dimensional zero-based array.
	SigSZArray

	// SigPointer is an unmanaged pointer.
	SigPointer

	// SigByRef is a managed reference.
	SigByRef

	// SigModifier is a required or optional custom modifier.
	SigModifier

	// SigGenericVar is a generic parameter of the enclosing type (!N).
	SigGenericVar

	// SigGenericMVar is a generic parameter of the enclosing method (!!N).
	SigGenericMVar
)

var sigKindNames = [...]string{
	SigNamed:       "named",
	SigGenericInst: "generic_inst",
	SigArray:       "array",
	SigSZArray:     "szarray",
	SigPointer:     "pointer",
	SigByRef:       "byref",
	SigModifier:    "modifier",
	SigGenericVar:  "generic_var",
	SigGenericMVar: "generic_mvar",
}

// String returns the kind name.
func (k SigKind) String() string {
	if int(k) < len(sigKindNames) {
		return sigKindNames[k]
	}
	return "unknown"
}

// TypeSig is a type signature: a named type, possibly wrapped in arrays,
// pointers, by-refs, modifiers or a generic instantiation.
//
// Which fields are meaningful depends on Kind:
//
//	SigNamed        Ref
//	SigGenericInst  Next (the generic type, itself SigNamed), Args
//	SigArray        Next (element), Rank
//	SigSZArray      Next (element)
//	SigPointer      Next (element)
//	SigByRef        Next (element)
//	SigModifier     Ref (modifier type), Required, Next (modified type)
//	SigGenericVar   Index
//	SigGenericMVar  Index
//
// TypeSig values are immutable once built.
type TypeSig struct {
	Kind     SigKind    `json:"kind"`
	Ref      TypeRef    `json:"ref,omitempty"`
	Next     *TypeSig   `json:"next,omitempty"`
	Args     []*TypeSig `json:"args,omitempty"`
	Rank     int        `json:"rank,omitempty"`
	Required bool       `json:"required,omitempty"`
	Index    int        `json:"index,omitempty"`
}

// Named returns a signature for the named type.
func Named(fullName string) *TypeSig {
	return &TypeSig{Kind: SigNamed, Ref: TypeRef{FullName: fullName}}
}

// NamedIn returns a signature for a named type defined in the given assembly.
func NamedIn(fullName, scope string) *TypeSig {
	return &TypeSig{Kind: SigNamed, Ref: TypeRef{FullName: fullName, Scope: scope}}
}

// GenericInst returns generic applied to args.
func GenericInst(generic *TypeSig, args ...*TypeSig) *TypeSig {
	return &TypeSig{Kind: SigGenericInst, Next: generic, Args: args}
}

// SZArrayOf returns a single-dimensional array of elem.
func SZArrayOf(elem *TypeSig) *TypeSig {
	return &TypeSig{Kind: SigSZArray, Next: elem}
}

// ArrayOf returns an array of elem with the given rank.
func ArrayOf(elem *TypeSig, rank int) *TypeSig {
	if rank < 1 {
		rank = 1
	}
	return &TypeSig{Kind: SigArray, Next: elem, Rank: rank}
}

// PointerTo returns an unmanaged pointer to elem.
func PointerTo(elem *TypeSig) *TypeSig {
	return &TypeSig{Kind: SigPointer, Next: elem}
}

// ByRefTo returns a managed reference to elem.
func ByRefTo(elem *TypeSig) *TypeSig {
	return &TypeSig{Kind: SigByRef, Next: elem}
}

// ModReq returns inner with a required modifier.
func ModReq(modifier string, inner *TypeSig) *TypeSig {
	return &TypeSig{Kind: SigModifier, Ref: TypeRef{FullName: modifier}, Required: true, Next: inner}
}

// ModOpt returns inner with an optional modifier.
func ModOpt(modifier string, inner *TypeSig) *TypeSig {
	return &TypeSig{Kind: SigModifier, Ref: TypeRef{FullName: modifier}, Next: inner}
}

// GenericVar returns the type generic parameter !index.
func GenericVar(index int) *TypeSig {
	return &TypeSig{Kind: SigGenericVar, Index: index}
}

// GenericMVar returns the method generic parameter !!index.
func GenericMVar(index int) *TypeSig {
	return &TypeSig{Kind: SigGenericMVar, Index: index}
}

// String renders the signature deterministically.
//
// The rendering round-trips through ParseTypeSig.
func (s *TypeSig) String() string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	s.write(&b)
	return b.String()
}

func (s *TypeSig) write(b *strings.Builder) {
	switch s.Kind {
	case SigNamed:
		b.WriteString(s.Ref.FullName)
	case SigGenericInst:
		s.Next.write(b)
		b.WriteByte('<')
		for i, arg := range s.Args {
			if i > 0 {
				b.WriteByte(',')
			}
			arg.write(b)
		}
		b.WriteByte('>')
	case SigArray:
		s.Next.write(b)
		b.WriteByte('[')
		b.WriteString(strings.Repeat(",", s.Rank-1))
		b.WriteByte(']')
	case SigSZArray:
		s.Next.write(b)
		b.WriteString("[]")
	case SigPointer:
		s.Next.write(b)
		b.WriteByte('*')
	case SigByRef:
		s.Next.write(b)
		b.WriteByte('&')
	case SigModifier:
		if s.Required {
			b.WriteString("modreq(")
		} else {
			b.WriteString("modopt(")
		}
		b.WriteString(s.Ref.FullName)
		b.WriteString(") ")
		s.Next.write(b)
	case SigGenericVar:
		b.WriteByte('!')
		b.WriteString(strconv.Itoa(s.Index))
	case SigGenericMVar:
		b.WriteString("!!")
		b.WriteString(strconv.Itoa(s.Index))
	}
}

// DefinitionName returns the full name of the type the signature is built
// on: wrappers and generic instantiation are stripped down to the named
// type. Generic parameters have no definition and return "".
//
// Example:
//
//	ParseTypeSig("App.Repo`1<App.Item>[]").DefinitionName() == "App.Repo`1"
func (s *TypeSig) DefinitionName() string {
	for cur := s; cur != nil; cur = cur.Next {
		switch cur.Kind {
		case SigNamed:
			return cur.Ref.FullName
		case SigGenericVar, SigGenericMVar:
			return ""
		}
	}
	return ""
}

// IsGenericParameter reports whether the signature is !N or !!N.
func (s *TypeSig) IsGenericParameter() bool {
	return s != nil && (s.Kind == SigGenericVar || s.Kind == SigGenericMVar)
}

// ContainsGenericParameter reports whether a generic parameter appears
// anywhere in the signature.
func (s *TypeSig) ContainsGenericParameter() bool {
	if s == nil {
		return false
	}
	if s.IsGenericParameter() {
		return true
	}
	for _, arg := range s.Args {
		if arg.ContainsGenericParameter() {
			return true
		}
	}
	return s.Next.ContainsGenericParameter()
}

// NamedLeaves returns the full names of every named type appearing in the
// signature, including generic arguments, in rendering order. Modifier
// types are not included.
func (s *TypeSig) NamedLeaves() []string {
	var out []string
	var walk func(*TypeSig)
	walk = func(cur *TypeSig) {
		if cur == nil {
			return
		}
		switch cur.Kind {
		case SigNamed:
			out = append(out, cur.Ref.FullName)
		case SigGenericInst:
			walk(cur.Next)
			for _, arg := range cur.Args {
				walk(arg)
			}
		default:
			walk(cur.Next)
		}
	}
	walk(s)
	return out
}
