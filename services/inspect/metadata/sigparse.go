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

// primitiveAliases maps short primitive names to their full type names.
var primitiveAliases = map[string]string{
	"void":    "System.Void",
	"bool":    "System.Boolean",
	"char":    "System.Char",
	"int8":    "System.SByte",
	"sbyte":   "System.SByte",
	"uint8":   "System.Byte",
	"byte":    "System.Byte",
	"int16":   "System.Int16",
	"short":   "System.Int16",
	"uint16":  "System.UInt16",
	"ushort":  "System.UInt16",
	"int32":   "System.Int32",
	"int":     "System.Int32",
	"uint32":  "System.UInt32",
	"uint":    "System.UInt32",
	"int64":   "System.Int64",
	"long":    "System.Int64",
	"uint64":  "System.UInt64",
	"ulong":   "System.UInt64",
	"float32": "System.Single",
	"float":   "System.Single",
	"float64": "System.Double",
	"double":  "System.Double",
	"string":  "System.String",
	"object":  "System.Object",
	"nint":    "System.IntPtr",
	"nuint":   "System.UIntPtr",
}

// ExpandAlias returns the full type name for a primitive alias such as
// "int32" or "string". The lookup is case-insensitive.
func ExpandAlias(name string) (string, bool) {
	full, ok := primitiveAliases[strings.ToLower(name)]
	return full, ok
}

// ParseTypeSig parses a rendered type signature.
//
// Description:
//
//	Accepts the rendering produced by TypeSig.String plus primitive aliases
//	("int32", "string", "void", ...). Grammar:
//
//	  sig      := modifier* core suffix*
//	  modifier := ("modreq" | "modopt") "(" name ")"
//	  core     := "!" int | "!!" int | name [ "<" sig ("," sig)* ">" ]
//	  suffix   := "[]" | "[" ","* "]" | "*" | "&"
//
//	A modifier applies to everything that follows it.
//
// Inputs:
//
//	s - The signature string. Surrounding whitespace is ignored.
//
// Outputs:
//
//	*TypeSig - The parsed signature.
//	error - *SigParseError if the string is malformed.
//
// Thread Safety:
//
//	Safe for concurrent use (stateless).
func ParseTypeSig(s string) (*TypeSig, error) {
	p := &sigParser{input: s}
	p.skipSpace()
	sig, err := p.parseSig()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, p.errorf("unexpected %q", p.input[p.pos:])
	}
	return sig, nil
}

// MustParseTypeSig is ParseTypeSig for literals known to be valid.
// It panics on malformed input.
func MustParseTypeSig(s string) *TypeSig {
	sig, err := ParseTypeSig(s)
	if err != nil {
		panic(err)
	}
	return sig
}

type sigParser struct {
	input string
	pos   int
}

func (p *sigParser) errorf(format string, args ...any) *SigParseError {
	return &SigParseError{Input: p.input, Pos: p.pos, Message: fmt.Sprintf(format, args...)}
}

func (p *sigParser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *sigParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *sigParser) parseSig() (*TypeSig, error) {
	p.skipSpace()
	for _, mod := range []string{"modreq(", "modopt("} {
		if strings.HasPrefix(p.input[p.pos:], mod) {
			p.pos += len(mod)
			name := p.parseName()
			if name == "" {
				return nil, p.errorf("expected modifier type name")
			}
			if p.peek() != ')' {
				return nil, p.errorf("expected ')' after modifier")
			}
			p.pos++
			inner, err := p.parseSig()
			if err != nil {
				return nil, err
			}
			return &TypeSig{
				Kind:     SigModifier,
				Ref:      TypeRef{FullName: name},
				Required: mod == "modreq(",
				Next:     inner,
			}, nil
		}
	}

	core, err := p.parseCore()
	if err != nil {
		return nil, err
	}
	return p.parseSuffixes(core)
}

func (p *sigParser) parseCore() (*TypeSig, error) {
	if p.peek() == '!' {
		p.pos++
		method := false
		if p.peek() == '!' {
			method = true
			p.pos++
		}
		start := p.pos
		for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
			p.pos++
		}
		if start == p.pos {
			return nil, p.errorf("expected generic parameter index")
		}
		index, _ := strconv.Atoi(p.input[start:p.pos])
		if method {
			return GenericMVar(index), nil
		}
		return GenericVar(index), nil
	}

	name := p.parseName()
	if name == "" {
		return nil, p.errorf("expected type name")
	}
	if full, ok := primitiveAliases[name]; ok {
		name = full
	}
	named := Named(name)
	if p.peek() != '<' {
		return named, nil
	}

	p.pos++
	var args []*TypeSig
	for {
		arg, err := p.parseSig()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '>':
			p.pos++
			return GenericInst(named, args...), nil
		default:
			return nil, p.errorf("expected ',' or '>' in generic argument list")
		}
	}
}

func (p *sigParser) parseSuffixes(sig *TypeSig) (*TypeSig, error) {
	for {
		switch p.peek() {
		case '*':
			p.pos++
			sig = PointerTo(sig)
		case '&':
			p.pos++
			sig = ByRefTo(sig)
		case '[':
			p.pos++
			rank := 1
			for p.peek() == ',' {
				rank++
				p.pos++
			}
			if p.peek() != ']' {
				return nil, p.errorf("expected ']'")
			}
			p.pos++
			if rank == 1 {
				sig = SZArrayOf(sig)
			} else {
				sig = ArrayOf(sig, rank)
			}
		default:
			return sig, nil
		}
	}
}

// parseName consumes a type name: everything up to a structural character.
func (p *sigParser) parseName() string {
	start := p.pos
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case '<', '>', ',', '[', ']', '*', '&', '(', ')', ' ', '!':
			return p.input[start:p.pos]
		}
		p.pos++
	}
	return p.input[start:p.pos]
}
