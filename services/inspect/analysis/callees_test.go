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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindCallees_RepeatedCall(t *testing.T) {
	util := withMethods(classDef("App.Util", "System.Object"),
		methodDef("Helper", public|staticFlag, "", nil, body(
			ins(0x0, "nop", noOperand()),
			ins(0x1, "nop", noOperand()),
			ins(0x2, "call", callOperand("App.Util", "Other")),
			ins(0x7, "nop", noOperand()),
			ins(0x10, "call", callOperand("App.Util", "Other")),
			ins(0x15, "ret", noOperand()),
		)),
		methodDef("Other", public|staticFlag, "", nil, body(ins(0, "ret", noOperand()))),
	)
	a := newTestAnalyzer(t, newModule("App", nil, util))

	res, err := a.FindCallees(context.Background(), "App.Util", "Helper", "")
	require.NoError(t, err)
	assert.Equal(t, "System.Void App.Util::Helper()", res.Method)
	require.Len(t, res.Callees, 2)

	assert.Equal(t, uint32(0x2), res.Callees[0].Offset)
	assert.Equal(t, uint32(0x10), res.Callees[1].Offset)
	for _, c := range res.Callees {
		assert.Equal(t, "System.Void App.Util::Other()", c.Callee)
		assert.Equal(t, "App.Util", c.DeclaringType)
		assert.Equal(t, "Other", c.Name)
		assert.False(t, c.IsVirtual)
		assert.True(t, c.Resolved)
	}

	capped, err := a.FindCallees(context.Background(), "App.Util", "Helper", "", WithMaxResults(1))
	require.NoError(t, err)
	assert.Len(t, capped.Callees, 1)
	assert.True(t, capped.Truncated)
}

func TestFindCallees_Fixture(t *testing.T) {
	a := fixtureAnalyzer(t)
	ctx := context.Background()

	res, err := a.FindCallees(ctx, "App.Program", "Main", "")
	require.NoError(t, err)
	require.Len(t, res.Callees, 3)

	assert.Equal(t, "newobj", res.Callees[0].OpCode)
	assert.Equal(t, "System.Void App.Circle::.ctor(System.Double)", res.Callees[0].Callee)

	assert.Equal(t, "callvirt", res.Callees[1].OpCode)
	assert.Equal(t, "System.Double App.IShape::Area()", res.Callees[1].Callee)
	assert.True(t, res.Callees[1].IsVirtual)

	assert.Equal(t, "System.Void App.Program::Log(System.String)", res.Callees[2].Callee)
	assert.False(t, res.Callees[2].IsVirtual)

	external, err := a.FindCallees(ctx, "App.Program", "Log", "")
	require.NoError(t, err)
	require.Len(t, external.Callees, 2)
	assert.False(t, external.Callees[0].Resolved)
	assert.Equal(t, "System.String", external.Callees[0].DeclaringType)
	assert.Equal(t, "System.String System.String::Concat(System.String,System.String)", external.Callees[0].Callee)

	_, err = a.FindCallees(ctx, "App.Shape", "Area", "")
	assert.True(t, errors.Is(err, ErrNoBody))

	_, err = a.FindCallees(ctx, "App.Shape", "Perimeter", "")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDisassembleMethod(t *testing.T) {
	a := fixtureAnalyzer(t)
	ctx := context.Background()

	dis, err := a.DisassembleMethod(ctx, "App.Program", "Main", "")
	require.NoError(t, err)
	assert.Equal(t, "App.dll", dis.Module)
	assert.Equal(t, []string{"App.Shape", "App.Shape[]"}, dis.Locals)
	require.Len(t, dis.Instructions, 12)
	assert.Equal(t, "IL_0000: ldc.i4.2", dis.Instructions[0])
	assert.Equal(t, "IL_000F: ldstr \"area\"", dis.Instructions[7])
	assert.Equal(t, "IL_0014: call System.Void App.Program::Log(System.String)", dis.Instructions[8])

	_, err = a.DisassembleMethod(ctx, "App.IShape", "Area", "")
	assert.True(t, errors.Is(err, ErrNoBody))
}
