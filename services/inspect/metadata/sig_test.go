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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeSig_String(t *testing.T) {
	tests := []struct {
		name string
		sig  *TypeSig
		want string
	}{
		{"named", Named("App.Item"), "App.Item"},
		{"szarray", SZArrayOf(Named("App.Item")), "App.Item[]"},
		{"array rank 2", ArrayOf(Named("System.Int32"), 2), "System.Int32[,]"},
		{"pointer", PointerTo(Named("System.Int32")), "System.Int32*"},
		{"byref", ByRefTo(Named("App.Item")), "App.Item&"},
		{"generic inst", GenericInst(Named("System.Collections.Generic.List`1"), Named("App.Item")),
			"System.Collections.Generic.List`1<App.Item>"},
		{"two args", GenericInst(Named("Dict`2"), Named("System.String"), SZArrayOf(Named("App.Item"))),
			"Dict`2<System.String,App.Item[]>"},
		{"modreq", ModReq("System.Runtime.CompilerServices.IsVolatile", Named("System.Int32")),
			"modreq(System.Runtime.CompilerServices.IsVolatile) System.Int32"},
		{"modopt", ModOpt("X", Named("System.Int32")), "modopt(X) System.Int32"},
		{"generic var", GenericVar(0), "!0"},
		{"generic mvar", GenericMVar(1), "!!1"},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sig.String())
		})
	}
}

func TestParseTypeSig_RoundTrip(t *testing.T) {
	inputs := []string{
		"App.Item",
		"App.Item[]",
		"System.Int32[,,]",
		"App.Item*&",
		"System.Collections.Generic.List`1<App.Item>",
		"System.Collections.Generic.Dictionary`2<System.String,System.Collections.Generic.List`1<App.Item[]>>",
		"modreq(X) System.Int32",
		"modopt(Y) App.Item[]",
		"!0",
		"!!2[]",
		"App.Outer/Inner",
		"App.Repo`1<!0>",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			sig, err := ParseTypeSig(in)
			require.NoError(t, err)
			assert.Equal(t, in, sig.String())
		})
	}
}

func TestParseTypeSig_Aliases(t *testing.T) {
	sig, err := ParseTypeSig("List`1<int32>[]")
	require.NoError(t, err)
	assert.Equal(t, "List`1<System.Int32>[]", sig.String())

	sig, err = ParseTypeSig("  string  ")
	require.NoError(t, err)
	assert.Equal(t, SigNamed, sig.Kind)
	assert.Equal(t, "System.String", sig.Ref.FullName)
}

func TestParseTypeSig_Structure(t *testing.T) {
	sig, err := ParseTypeSig("modreq(X) List`1<App.Item[]>&")
	require.NoError(t, err)

	require.Equal(t, SigModifier, sig.Kind)
	assert.True(t, sig.Required)
	assert.Equal(t, "X", sig.Ref.FullName)

	byref := sig.Next
	require.Equal(t, SigByRef, byref.Kind)
	inst := byref.Next
	require.Equal(t, SigGenericInst, inst.Kind)
	assert.Equal(t, "List`1", inst.Next.Ref.FullName)
	require.Len(t, inst.Args, 1)
	assert.Equal(t, SigSZArray, inst.Args[0].Kind)
}

func TestParseTypeSig_Errors(t *testing.T) {
	for _, in := range []string{"", "List`1<", "List`1<A,>", "A[", "modreq(X", "!", "A B"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseTypeSig(in)
			require.Error(t, err)
			var perr *SigParseError
			assert.True(t, errors.As(err, &perr))
		})
	}
}

func TestTypeSig_DefinitionName(t *testing.T) {
	tests := map[string]string{
		"App.Item":                     "App.Item",
		"App.Repo`1<App.Item>[]":       "App.Repo`1",
		"modreq(X) App.Item&":          "App.Item",
		"App.Item*[,]":                 "App.Item",
		"!0":                           "",
		"!!0[]":                        "",
		"System.Nullable`1<App.Money>": "System.Nullable`1",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, MustParseTypeSig(in).DefinitionName())
		})
	}
}

func TestTypeSig_NamedLeaves(t *testing.T) {
	sig := MustParseTypeSig("modopt(M) Dict`2<App.Key,List`1<App.Value[]>>&")
	assert.Equal(t, []string{"Dict`2", "App.Key", "List`1", "App.Value"}, sig.NamedLeaves())
	assert.Nil(t, GenericVar(0).NamedLeaves())
}

func TestTypeSig_ContainsGenericParameter(t *testing.T) {
	assert.True(t, MustParseTypeSig("List`1<!0>").ContainsGenericParameter())
	assert.True(t, MustParseTypeSig("!!0[]").ContainsGenericParameter())
	assert.False(t, MustParseTypeSig("List`1<App.Item>").ContainsGenericParameter())
}

func TestTypeRef_Parts(t *testing.T) {
	ref := TypeRef{FullName: "App.Models.Outer/Inner"}
	assert.Equal(t, "App.Models", ref.Namespace())
	assert.Equal(t, "Inner", ref.Name())

	ref = TypeRef{FullName: "Global"}
	assert.Equal(t, "", ref.Namespace())
	assert.Equal(t, "Global", ref.Name())
}

func TestOpCodes(t *testing.T) {
	call, ok := LookupOpCode("CALL")
	require.True(t, ok)
	assert.Equal(t, OpClassCall, call.Class)
	assert.True(t, call.Class.IsCallLike())

	callvirt, _ := LookupOpCode("callvirt")
	assert.Equal(t, OpClassVirtualCall, callvirt.Class)

	ldflda, _ := LookupOpCode("ldflda")
	assert.True(t, ldflda.Class.IsFieldAccess())
	assert.False(t, ldflda.Class.IsCallLike())

	_, ok = LookupOpCode("frobnicate")
	assert.False(t, ok)

	names := OpCodeNames()
	assert.Contains(t, names, "ldc.i4.s")
	assert.IsNonDecreasing(t, names)
}

func TestOperand_String(t *testing.T) {
	ref := &MethodRef{
		DeclaringType: Named("App.Util"),
		Name:          "Helper",
		ReturnType:    Named("System.Void"),
		Params:        []*TypeSig{Named("System.Int32"), SZArrayOf(Named("System.String"))},
	}
	assert.Equal(t, "System.Void App.Util::Helper(System.Int32,System.String[])", MethodOperand(ref).String())
	assert.Equal(t, `"a\"b"`, StringOperand(`a"b`).String())
	assert.Equal(t, "-7", IntOperand(-7).String())
	assert.Equal(t, "IL_001A", BranchOperand(26).String())
	assert.Equal(t, "V_2", LocalOperand(2).String())
	assert.Equal(t, "", NoOperand().String())

	field := &FieldRef{DeclaringType: Named("App.Util"), Name: "count", FieldType: Named("System.Int32")}
	assert.Equal(t, "System.Int32 App.Util::count", FieldOperand(field).String())
}
