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

func TestResolveType(t *testing.T) {
	a := fixtureAnalyzer(t)
	ctx := context.Background()

	t.Run("exact name", func(t *testing.T) {
		info, err := a.ResolveType(ctx, "App.Circle")
		require.NoError(t, err)
		assert.Equal(t, "App.Circle", info.FullName)
		assert.Equal(t, "App", info.Namespace)
		assert.Equal(t, "Circle", info.Name)
		assert.Equal(t, "App.dll", info.Module)
		assert.Equal(t, "class", info.Kind)
		assert.Equal(t, "App.Shape", info.BaseType)
		assert.Equal(t, 1, info.FieldCount)
		assert.Equal(t, 2, info.MethodCount)
	})

	t.Run("suffix is case-insensitive", func(t *testing.T) {
		info, err := a.ResolveType(ctx, "triangle")
		require.NoError(t, err)
		assert.Equal(t, "Lib.Triangle", info.FullName)
		assert.Equal(t, "Lib.dll", info.Module)
	})

	t.Run("nested type", func(t *testing.T) {
		info, err := a.ResolveType(ctx, "App.Outer/Inner")
		require.NoError(t, err)
		assert.Equal(t, "App", info.Namespace)
		assert.Equal(t, "Inner", info.Name)
	})

	t.Run("interface kind", func(t *testing.T) {
		info, err := a.ResolveType(ctx, "App.ILabeled")
		require.NoError(t, err)
		assert.Equal(t, "interface", info.Kind)
		assert.Equal(t, []string{"App.INamed"}, info.Interfaces)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := a.ResolveType(ctx, "App.Hexagon")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.Contains(t, err.Error(), "App.Hexagon")
		assert.NotContains(t, err.Error(), "did you mean")
	})

	t.Run("not found suggests a close name", func(t *testing.T) {
		_, err := a.ResolveType(ctx, "Cirle")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.Equal(t, "type not found: Cirle (did you mean App.Circle?)", err.Error())
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := a.ResolveType(ctx, "  ")
		assert.True(t, errors.Is(err, ErrInvalidArgument))
	})
}

func TestResolveMethod_Overloads(t *testing.T) {
	calc := withMethods(classDef("Calc.Ops", "System.Object"),
		methodDef("Add", public, "int32", []string{"int32", "int32"}, body(ins(0, "ret", noOperand()))),
		methodDef("Add", public, "float64", []string{"float64", "float64"}, body(ins(0, "ret", noOperand()))),
		methodDef("Add", public, "System.String", []string{"System.String"}, nil),
		methodDef("Reset", public|staticFlag, "", nil, body(ins(0, "ret", noOperand()))),
	)
	a := newTestAnalyzer(t, newModule("Calc", nil, calc))
	ctx := context.Background()

	tests := []struct {
		name      string
		signature string
		want      string
	}{
		{"no signature picks first", "", "System.Int32 Calc.Ops::Add(System.Int32,System.Int32)"},
		{"alias", "(float64, float64)", "System.Double Calc.Ops::Add(System.Double,System.Double)"},
		{"substring", "double,double", "System.Double Calc.Ops::Add(System.Double,System.Double)"},
		{"single parameter", "(string)", "System.String Calc.Ops::Add(System.String)"},
		{"no match falls back to first", "(bool)", "System.Int32 Calc.Ops::Add(System.Int32,System.Int32)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := a.ResolveMethod(ctx, "Calc.Ops", "add", tt.signature)
			require.NoError(t, err)
			assert.Equal(t, tt.want, info.FullName)
		})
	}

	t.Run("info", func(t *testing.T) {
		info, err := a.ResolveMethod(ctx, "Ops", "Add", "(string)")
		require.NoError(t, err)
		assert.Equal(t, []string{"System.String p0"}, info.Parameters)
		assert.False(t, info.HasBody)
		assert.Equal(t, 0, info.InstructionCount)

		info, err = a.ResolveMethod(ctx, "Ops", "Reset", "()")
		require.NoError(t, err)
		assert.True(t, info.IsStatic)
		assert.Equal(t, "System.Void", info.ReturnType)
		assert.Empty(t, info.Parameters)
		assert.Equal(t, 1, info.InstructionCount)
	})

	t.Run("method not found", func(t *testing.T) {
		_, err := a.ResolveMethod(ctx, "Calc.Ops", "Sub", "")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("empty method name", func(t *testing.T) {
		_, err := a.ResolveMethod(ctx, "Calc.Ops", "", "")
		assert.True(t, errors.Is(err, ErrInvalidArgument))
	})
}

func TestSignatureTokens(t *testing.T) {
	tokens, ok := signatureTokens("")
	assert.False(t, ok)
	assert.Nil(t, tokens)

	tokens, ok = signatureTokens("()")
	assert.True(t, ok)
	assert.Empty(t, tokens)

	tokens, ok = signatureTokens(" (Int32, System.String) ")
	assert.True(t, ok)
	assert.Equal(t, []string{"int32", "system.string"}, tokens)
}
