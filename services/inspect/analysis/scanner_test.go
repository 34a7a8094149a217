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

func fieldOperand(decl, name string) metadata.Operand {
	return metadata.FieldOperand(&metadata.FieldRef{
		DeclaringType: metadata.MustParseTypeSig(decl),
		Name:          name,
		FieldType:     metadata.MustParseTypeSig("int32"),
	})
}

// offsets returns "Type@offset" for each reference.
func offsets(refs []Reference) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Type + "@" + metadata.FormatOffset(r.Offset)
	}
	return out
}

func TestFindUsages_Fixture(t *testing.T) {
	a := fixtureAnalyzer(t)
	ctx := context.Background()

	t.Run("type only", func(t *testing.T) {
		res, err := a.FindUsages(ctx, "App.Circle", "")
		require.NoError(t, err)
		assert.Equal(t, "App.Circle", res.Query)
		assert.False(t, res.Truncated)
		require.Len(t, res.References, 3)

		assert.Equal(t, RefFieldAccess, res.References[0].Kind)
		assert.Equal(t, "System.Void App.Circle::.ctor(System.Double)", res.References[0].Method)
		assert.Equal(t, uint32(8), res.References[0].Offset)
		assert.Equal(t, "stfld", res.References[0].OpCode)

		assert.Equal(t, RefFieldAccess, res.References[1].Kind)
		assert.Equal(t, "System.Double App.Circle::Area()", res.References[1].Method)

		assert.Equal(t, RefMethodCall, res.References[2].Kind)
		assert.Equal(t, "App.Program", res.References[2].Type)
		assert.Equal(t, "newobj", res.References[2].OpCode)
		assert.Equal(t, uint32(2), res.References[2].Offset)
		assert.Equal(t, "App.dll", res.References[2].Module)
	})

	t.Run("field member", func(t *testing.T) {
		res, err := a.FindUsages(ctx, "App.Circle", "Radius")
		require.NoError(t, err)
		assert.Equal(t, "App.Circle::Radius", res.Query)
		require.Len(t, res.References, 2)
		assert.Equal(t, RefWrite, res.References[0].Kind)
		assert.Equal(t, uint32(8), res.References[0].Offset)
		assert.Equal(t, RefRead, res.References[1].Kind)
		assert.Equal(t, uint32(1), res.References[1].Offset)
	})

	t.Run("method member", func(t *testing.T) {
		res, err := a.FindUsages(ctx, "App.Program", "Log")
		require.NoError(t, err)
		require.Len(t, res.References, 1)
		assert.Equal(t, RefCall, res.References[0].Kind)
		assert.Equal(t, uint32(20), res.References[0].Offset)
	})

	t.Run("unknown member", func(t *testing.T) {
		_, err := a.FindUsages(ctx, "App.Circle", "Diameter")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := a.FindUsages(ctx, "App.Hexagon", "")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestFindUsages_Kinds(t *testing.T) {
	holder := withFields(classDef("Kinds.Holder", "System.Object"), "count", "int32")
	holder.Properties = append(holder.Properties, &metadata.PropertyDef{
		Name:   "Count",
		Type:   metadata.MustParseTypeSig("int32"),
		Getter: "get_Count",
	})
	withMethods(holder, methodDef("get_Count", public, "int32", nil, body(
		ins(0, "ldarg.0", noOperand()),
		ins(1, "ldfld", fieldOperand("Kinds.Holder", "count")),
		ins(6, "ret", noOperand()),
	)))
	user := withMethods(classDef("Kinds.User", "System.Object"),
		methodDef("Run", public|staticFlag, "", nil, body(
			ins(0, "castclass", metadata.TypeOperand(metadata.MustParseTypeSig("Kinds.Holder[]"))),
			ins(5, "ldflda", fieldOperand("Kinds.Holder", "count")),
			ins(10, "ldtoken", fieldOperand("Kinds.Holder", "count")),
			ins(15, "stsfld", fieldOperand("Kinds.Holder", "count")),
			ins(20, "callvirt", callOperand("Kinds.Holder", "get_Count")),
			ins(25, "ldftn", callOperand("Kinds.Holder", "get_Count")),
			ins(31, "ret", noOperand()),
		)),
	)
	a := newTestAnalyzer(t, newModule("Kinds", nil, holder, user))
	ctx := context.Background()

	t.Run("type only", func(t *testing.T) {
		res, err := a.FindUsages(ctx, "Kinds.Holder", "")
		require.NoError(t, err)
		kinds := make([]ReferenceKind, len(res.References))
		for i, r := range res.References {
			kinds[i] = r.Kind
		}
		assert.Equal(t, []ReferenceKind{
			RefFieldAccess,   // get_Count ldfld
			RefTypeReference, // castclass Holder[]
			RefFieldAccess, RefFieldAccess, RefFieldAccess,
			RefMethodCall, RefMethodCall,
		}, kinds)
	})

	t.Run("field access kinds", func(t *testing.T) {
		res, err := a.FindFieldReferences(ctx, "Kinds.Holder", "COUNT")
		require.NoError(t, err)
		kinds := make([]ReferenceKind, len(res.References))
		for i, r := range res.References {
			kinds[i] = r.Kind
		}
		// ldtoken is not a field access.
		assert.Equal(t, []ReferenceKind{RefRead, RefAddressOf, RefWrite}, kinds)
	})

	t.Run("member field includes ldtoken", func(t *testing.T) {
		res, err := a.FindUsages(ctx, "Kinds.Holder", "count")
		require.NoError(t, err)
		// "count" matches the field and, case-insensitively, the property.
		kinds := make([]ReferenceKind, len(res.References))
		for i, r := range res.References {
			kinds[i] = r.Kind
		}
		assert.Equal(t, []ReferenceKind{RefRead, RefAddressOf, RefReference, RefWrite, RefCall, RefReference}, kinds)
	})

	t.Run("property resolves to accessor", func(t *testing.T) {
		res, err := a.FindUsages(ctx, "Kinds.Holder", "Count")
		require.NoError(t, err)
		require.NotEmpty(t, res.References)
		last := res.References[len(res.References)-1]
		assert.Equal(t, "ldftn", last.OpCode)
		assert.Equal(t, RefReference, last.Kind)
	})
}

func TestFindCallers(t *testing.T) {
	a := fixtureAnalyzer(t)
	ctx := context.Background()

	res, err := a.FindCallers(ctx, "App.Program", "log")
	require.NoError(t, err)
	assert.Equal(t, "App.Program::Log", res.Query)
	require.Len(t, res.References, 1)
	assert.Equal(t, RefCall, res.References[0].Kind)
	assert.Equal(t, "System.Void App.Program::Main()", res.References[0].Method)
	assert.Equal(t, uint32(20), res.References[0].Offset)

	res, err = a.FindCallers(ctx, "Program", "Countdown")
	require.NoError(t, err)
	require.Len(t, res.References, 1)
	assert.Equal(t, "System.Void App.Program::Countdown(System.Int32)", res.References[0].Method)
	assert.Equal(t, uint32(6), res.References[0].Offset)

	res, err = a.FindCallers(ctx, "App.Program", "Main")
	require.NoError(t, err)
	assert.Empty(t, res.References, "no callers is an empty result")
	assert.NotNil(t, res.References)

	_, err = a.FindCallers(ctx, "App.Program", "Exit")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFindFieldReferences_Fixture(t *testing.T) {
	a := fixtureAnalyzer(t)

	res, err := a.FindFieldReferences(context.Background(), "App.Shape", "name")
	require.NoError(t, err)
	require.Len(t, res.References, 1)
	assert.Equal(t, RefRead, res.References[0].Kind)
	assert.Equal(t, "System.String App.Shape::get_Name()", res.References[0].Method)

	_, err = a.FindFieldReferences(context.Background(), "App.Shape", "Area")
	assert.True(t, errors.Is(err, ErrNotFound), "methods are not fields")
}

func TestFindStringUsages(t *testing.T) {
	a := fixtureAnalyzer(t)
	ctx := context.Background()

	res, err := a.FindStringUsages(ctx, "area")
	require.NoError(t, err)
	assert.Equal(t, `"area"`, res.Query)
	require.Len(t, res.References, 1)
	assert.Equal(t, RefStringLiteral, res.References[0].Kind)
	assert.Equal(t, uint32(15), res.References[0].Offset)
	assert.Equal(t, `"area"`, res.References[0].Operand)

	res, err = a.FindStringUsages(ctx, "Area")
	require.NoError(t, err)
	assert.Empty(t, res.References, "matching is exact")

	res, err = a.FindStringUsages(ctx, "log")
	require.NoError(t, err)
	assert.Empty(t, res.References, "no substring matching")
}

func TestFindNumberUsages(t *testing.T) {
	a := fixtureAnalyzer(t)
	ctx := context.Background()

	tests := []struct {
		value int64
		want  []string
	}{
		{42, []string{"App.Program@IL_0019"}},
		{2, []string{"App.Program@IL_0000"}},
		{1, []string{"App.Square@IL_0000", "App.Program@IL_0004"}},
		{0, []string{"Lib.Triangle@IL_0000"}},
		{7, []string{}},
	}
	for _, tt := range tests {
		res, err := a.FindNumberUsages(ctx, tt.value)
		require.NoError(t, err)
		assert.Equal(t, tt.want, offsets(res.References), "value %d", tt.value)
		for _, r := range res.References {
			assert.Equal(t, RefNumberLiteral, r.Kind)
		}
	}
}

func TestLoadedInteger(t *testing.T) {
	tests := []struct {
		op      string
		operand metadata.Operand
		want    int64
		ok      bool
	}{
		{"ldc.i4.m1", noOperand(), -1, true},
		{"ldc.i4.0", noOperand(), 0, true},
		{"ldc.i4.8", noOperand(), 8, true},
		{"ldc.i4.s", metadata.IntOperand(-5), -5, true},
		{"ldc.i8", metadata.IntOperand(1 << 40), 1 << 40, true},
		{"ldc.i4", noOperand(), 0, false},
	}
	for _, tt := range tests {
		got, ok := loadedInteger(ins(0, tt.op, tt.operand))
		assert.Equal(t, tt.ok, ok, tt.op)
		assert.Equal(t, tt.want, got, tt.op)
	}
}

// emptyStrings builds a module whose single method loads "" n times.
func emptyStrings(n int) *metadata.Module {
	instructions := make([]*metadata.Instruction, 0, n+1)
	for i := 0; i < n; i++ {
		instructions = append(instructions, ins(uint32(i*5), "ldstr", metadata.StringOperand("")))
	}
	instructions = append(instructions, ins(uint32(n*5), "ret", noOperand()))
	td := withMethods(classDef("Strings.Table", "System.Object"),
		methodDef("Fill", public|staticFlag, "", nil, body(instructions...)))
	return newModule("Strings", nil, td)
}

func TestFindStringUsages_MaxResults(t *testing.T) {
	a := newTestAnalyzer(t, emptyStrings(300))

	res, err := a.FindStringUsages(context.Background(), "", WithMaxResults(3))
	require.NoError(t, err)
	assert.Len(t, res.References, 3)
	assert.True(t, res.Truncated)
	assert.Equal(t, `""`, res.Query)
}

func TestFindStringUsages_ExactlyMaxResults(t *testing.T) {
	a := newTestAnalyzer(t, emptyStrings(3))

	res, err := a.FindStringUsages(context.Background(), "", WithMaxResults(3))
	require.NoError(t, err)
	assert.Len(t, res.References, 3)
	assert.False(t, res.Truncated, "nothing lies beyond the bound")

	res, err = a.FindStringUsages(context.Background(), "", WithMaxResults(2))
	require.NoError(t, err)
	assert.Len(t, res.References, 2)
	assert.True(t, res.Truncated)
}

func TestScan_PrefixStability(t *testing.T) {
	a := newTestAnalyzer(t, emptyStrings(40))
	ctx := context.Background()

	full, err := a.FindStringUsages(ctx, "", WithMaxResults(MaxResultsLimit))
	require.NoError(t, err)
	require.Len(t, full.References, 40)
	assert.False(t, full.Truncated)

	for _, n := range []int{1, 7, 39} {
		res, err := a.FindStringUsages(ctx, "", WithMaxResults(n))
		require.NoError(t, err)
		assert.Equal(t, full.References[:n], res.References, "max %d", n)
	}
}

func TestScan_Deterministic(t *testing.T) {
	a := fixtureAnalyzer(t)
	ctx := context.Background()

	first, err := a.FindUsages(ctx, "App.Shape", "")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := a.FindUsages(ctx, "App.Shape", "")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestScan_ModuleFilter(t *testing.T) {
	a := fixtureAnalyzer(t)
	ctx := context.Background()

	res, err := a.FindNumberUsages(ctx, 0, WithModule("app"))
	require.NoError(t, err)
	assert.Empty(t, res.References)

	res, err = a.FindNumberUsages(ctx, 0, WithModule("LIB"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Lib.Triangle@IL_0000"}, offsets(res.References))
}

func TestScan_CancelledContext(t *testing.T) {
	a := fixtureAnalyzer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := a.FindNumberUsages(ctx, 1)
	require.NoError(t, err, "cancellation yields a partial result")
	assert.True(t, res.Truncated)
	assert.Empty(t, res.References)
}
