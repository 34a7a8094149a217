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

// OpPattern matches one instruction. Both sides may contain '*' wildcards.
type OpPattern struct {
	OpCode string

	// Operand is empty when the element names no operand; it then matches
	// any operand.
	Operand string
}

// ParseOpcodePattern parses "op [operand];op [operand];...".
//
// Description:
//
//	Elements are separated by ';' and trimmed; one trailing ';' is
//	allowed. Each element is an opcode pattern optionally followed by
//	whitespace and an operand pattern. An opcode without '*' must name a
//	known opcode.
//
// Outputs:
//
//	[]OpPattern - One pattern per instruction in the window.
//	error - InvalidArgument for an empty pattern, an empty element or an
//	        unknown opcode.
func ParseOpcodePattern(pattern string) ([]OpPattern, error) {
	trimmed := strings.TrimSpace(pattern)
	trimmed = strings.TrimSuffix(trimmed, ";")
	if strings.TrimSpace(trimmed) == "" {
		return nil, invalidArgf("opcode pattern is empty")
	}

	parts := strings.Split(trimmed, ";")
	out := make([]OpPattern, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, invalidArgf("opcode pattern element %d is empty", i+1)
		}
		op, operand := part, ""
		if idx := strings.IndexAny(part, " \t"); idx >= 0 {
			op, operand = part[:idx], part[idx+1:]
		}
		op = strings.ToLower(op)
		if !strings.Contains(op, "*") {
			if _, ok := metadata.LookupOpCode(op); !ok {
				return nil, invalidArgf("unknown opcode in pattern: %s", op)
			}
		}
		out = append(out, OpPattern{OpCode: op, Operand: strings.TrimSpace(operand)})
	}
	return out, nil
}

// Match reports whether ins satisfies the pattern.
func (p OpPattern) Match(ins *metadata.Instruction) bool {
	if !globMatch(p.OpCode, ins.OpCode.Name) {
		return false
	}
	if p.Operand == "" {
		return true
	}
	if globMatch(p.Operand, ins.OperandText()) {
		return true
	}
	// Let callers write string operands unquoted.
	return ins.Operand.Kind == metadata.OperandString && globMatch(p.Operand, ins.Operand.Str)
}

// FindOpcodePattern finds windows of consecutive instructions matching a
// pattern sequence.
//
// Description:
//
//	Slides a window the length of the pattern over every method body.
//	Windows never cross method boundaries and may overlap. Each match is
//	reported at the window's first instruction with the rendered window.
//
// Inputs:
//
//	ctx - Context for tracing and cancellation between modules.
//	pattern - e.g. "ldarg.0;ldfld *radius;*".
//	opts - MaxResults and Module bounds.
//
// Outputs:
//
//	*ScanResult - Ordered matches, kind PatternMatch.
//	error - InvalidArgument if the pattern does not parse.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) FindOpcodePattern(ctx context.Context, pattern string, opts ...QueryOption) (result *ScanResult, err error) {
	options := a.applyOptions(opts)
	c := a.begin(ctx, "find_opcode_pattern",
		attribute.String("pattern", pattern),
		attribute.Int("max_results", options.MaxResults),
	)
	defer func() { c.finish(err, result != nil && result.Truncated) }()

	elems, err := ParseOpcodePattern(pattern)
	if err != nil {
		return nil, err
	}

	refs, truncated := c.scan(options, func(body []*metadata.Instruction, i int) (hit, bool) {
		if i+len(elems) > len(body) {
			return hit{}, false
		}
		for j, elem := range elems {
			if !elem.Match(body[i+j]) {
				return hit{}, false
			}
		}
		window := make([]string, len(elems))
		for j := range elems {
			window[j] = body[i+j].String()
		}
		return hit{kind: RefPattern, window: window}, true
	})
	return &ScanResult{Query: strings.TrimSpace(pattern), References: refs, Truncated: truncated}, nil
}

// globMatch matches s against a pattern where '*' matches any run of
// characters, case-insensitively. No other character is special.
func globMatch(pattern, s string) bool {
	pattern = strings.ToLower(pattern)
	s = strings.ToLower(s)

	p, i := 0, 0
	star, mark := -1, 0
	for i < len(s) {
		switch {
		case p < len(pattern) && pattern[p] == '*':
			star, mark = p, i
			p++
		case p < len(pattern) && pattern[p] == s[i]:
			p++
			i++
		case star >= 0:
			p = star + 1
			mark++
			i = mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
