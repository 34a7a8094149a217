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
	"errors"
	"testing"

	"github.com/AleutianAI/ilscope/services/inspect/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOpcodePattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    []OpPattern
		wantErr bool
	}{
		{"single", "ret", []OpPattern{{OpCode: "ret"}}, false},
		{"trailing separator", "ldarg.0; ret;", []OpPattern{{OpCode: "ldarg.0"}, {OpCode: "ret"}}, false},
		{"operand", "ldfld *radius", []OpPattern{{OpCode: "ldfld", Operand: "*radius"}}, false},
		{"tab separated operand", "LDSTR\tarea", []OpPattern{{OpCode: "ldstr", Operand: "area"}}, false},
		{"wildcard opcode", "ldc.*;*", []OpPattern{{OpCode: "ldc.*"}, {OpCode: "*"}}, false},
		{"empty", "  ", nil, true},
		{"only separator", ";", nil, true},
		{"empty element", "ldarg.0;;ret", nil, true},
		{"unknown opcode", "ldarg.0;frobnicate", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOpcodePattern(tt.pattern)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidArgument))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern, s string
		want       bool
	}{
		{"*", "", true},
		{"", "", true},
		{"", "x", false},
		{"ldc.*", "ldc.i4.s", true},
		{"LDC.I4", "ldc.i4", true},
		{"ldc.i4", "ldc.i4.s", false},
		{"*radius", "System.Double App.Circle::radius", true},
		{"*::.ctor(*)", "System.Void App.Circle::.ctor(System.Double)", true},
		{"a*b*c", "aXXbYYc", true},
		{"a*b*c", "aXXbYY", false},
		{"[abc]", "[abc]", true},
		{"[abc]", "a", false},
		{"?", "x", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, globMatch(tt.pattern, tt.s), "%q ~ %q", tt.pattern, tt.s)
	}
}

func TestFindOpcodePattern_Fixture(t *testing.T) {
	a := fixtureAnalyzer(t)
	ctx := context.Background()

	res, err := a.FindOpcodePattern(ctx, "ldarg.0;ldfld *radius")
	require.NoError(t, err)
	require.Len(t, res.References, 1)
	ref := res.References[0]
	assert.Equal(t, RefPattern, ref.Kind)
	assert.Equal(t, "App.Circle", ref.Type)
	assert.Equal(t, uint32(0), ref.Offset)
	assert.Equal(t, []string{
		"IL_0000: ldarg.0",
		"IL_0001: ldfld System.Double App.Circle::radius",
	}, ref.Window)

	res, err = a.FindOpcodePattern(ctx, "ldstr area;call *")
	require.NoError(t, err)
	require.Len(t, res.References, 1, "string operands match unquoted")
	assert.Equal(t, uint32(15), res.References[0].Offset)

	_, err = a.FindOpcodePattern(ctx, "nope")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestFindOpcodePattern_Windows(t *testing.T) {
	first := withMethods(classDef("P.A", "System.Object"),
		methodDef("One", public|staticFlag, "", nil, body(
			ins(0, "nop", noOperand()),
			ins(1, "nop", noOperand()),
			ins(2, "nop", noOperand()),
		)),
		methodDef("Two", public|staticFlag, "", nil, body(
			ins(0, "nop", noOperand()),
			ins(1, "ret", noOperand()),
		)),
	)
	a := newTestAnalyzer(t, newModule("P", nil, first))

	res, err := a.FindOpcodePattern(context.Background(), "nop;nop")
	require.NoError(t, err)
	// Overlapping windows in One; One's tail and Two's head never join.
	require.Len(t, res.References, 2)
	assert.Equal(t, uint32(0), res.References[0].Offset)
	assert.Equal(t, uint32(1), res.References[1].Offset)
	for _, r := range res.References {
		assert.Equal(t, "System.Void P.A::One()", r.Method)
	}

	res, err = a.FindOpcodePattern(context.Background(), "nop;nop;nop;nop")
	require.NoError(t, err)
	assert.Empty(t, res.References, "a window longer than the body never matches")
}

func TestOpPattern_Match(t *testing.T) {
	p := OpPattern{OpCode: "ldc.i4*", Operand: "4*"}
	assert.True(t, p.Match(ins(0, "ldc.i4", metadata.IntOperand(42))))
	assert.False(t, p.Match(ins(0, "ldc.i4", metadata.IntOperand(7))))
	assert.False(t, p.Match(ins(0, "ldc.i4.4", noOperand())), "implied constants have no operand text")
	assert.True(t, OpPattern{OpCode: "ldc.i4.4"}.Match(ins(0, "ldc.i4.4", noOperand())))
}
