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
	"sort"
	"strings"
)

// OpClass groups opcodes by what the reference scanner cares about.
type OpClass uint8

const (
	// OpClassOther is every opcode without a scanner-relevant meaning.
	OpClassOther OpClass = iota

	// OpClassCall is a direct call (call).
	OpClassCall

	// OpClassVirtualCall is a virtual call (callvirt).
	OpClassVirtualCall

	// OpClassConstruct is an object construction (newobj).
	OpClassConstruct

	// OpClassFieldRead loads a field value (ldfld, ldsfld).
	OpClassFieldRead

	// OpClassFieldWrite stores a field value (stfld, stsfld).
	OpClassFieldWrite

	// OpClassFieldAddress loads a field address (ldflda, ldsflda).
	OpClassFieldAddress

	// OpClassLoadString loads a string literal (ldstr).
	OpClassLoadString

	// OpClassLoadNumber loads a numeric constant (ldc.*).
	OpClassLoadNumber
)

var opClassNames = [...]string{
	OpClassOther:        "other",
	OpClassCall:         "call",
	OpClassVirtualCall:  "virtual_call",
	OpClassConstruct:    "construct",
	OpClassFieldRead:    "field_read",
	OpClassFieldWrite:   "field_write",
	OpClassFieldAddress: "field_address",
	OpClassLoadString:   "load_string",
	OpClassLoadNumber:   "load_number",
}

// String returns the class name.
func (c OpClass) String() string {
	if int(c) < len(opClassNames) {
		return opClassNames[c]
	}
	return "unknown"
}

// IsCallLike reports whether the class transfers control to a method.
func (c OpClass) IsCallLike() bool {
	return c == OpClassCall || c == OpClassVirtualCall || c == OpClassConstruct
}

// IsFieldAccess reports whether the class reads, writes or addresses a field.
func (c OpClass) IsFieldAccess() bool {
	return c == OpClassFieldRead || c == OpClassFieldWrite || c == OpClassFieldAddress
}

// OpCode describes one instruction opcode.
type OpCode struct {
	// Name is the lower-case mnemonic ("call", "ldc.i4.s").
	Name string

	// Class groups the opcode for scanning.
	Class OpClass

	// Size is the encoded instruction size in bytes, operand included.
	Size int
}

// String returns the mnemonic.
func (o *OpCode) String() string {
	if o == nil {
		return ""
	}
	return o.Name
}

// opcodeTable lists the standard CIL opcodes with their encoded sizes.
var opcodeTable = []OpCode{
	{"nop", OpClassOther, 1},
	{"break", OpClassOther, 1},
	{"ldarg.0", OpClassOther, 1},
	{"ldarg.1", OpClassOther, 1},
	{"ldarg.2", OpClassOther, 1},
	{"ldarg.3", OpClassOther, 1},
	{"ldloc.0", OpClassOther, 1},
	{"ldloc.1", OpClassOther, 1},
	{"ldloc.2", OpClassOther, 1},
	{"ldloc.3", OpClassOther, 1},
	{"stloc.0", OpClassOther, 1},
	{"stloc.1", OpClassOther, 1},
	{"stloc.2", OpClassOther, 1},
	{"stloc.3", OpClassOther, 1},
	{"ldarg.s", OpClassOther, 2},
	{"ldarga.s", OpClassOther, 2},
	{"starg.s", OpClassOther, 2},
	{"ldloc.s", OpClassOther, 2},
	{"ldloca.s", OpClassOther, 2},
	{"stloc.s", OpClassOther, 2},
	{"ldnull", OpClassOther, 1},
	{"ldc.i4.m1", OpClassLoadNumber, 1},
	{"ldc.i4.0", OpClassLoadNumber, 1},
	{"ldc.i4.1", OpClassLoadNumber, 1},
	{"ldc.i4.2", OpClassLoadNumber, 1},
	{"ldc.i4.3", OpClassLoadNumber, 1},
	{"ldc.i4.4", OpClassLoadNumber, 1},
	{"ldc.i4.5", OpClassLoadNumber, 1},
	{"ldc.i4.6", OpClassLoadNumber, 1},
	{"ldc.i4.7", OpClassLoadNumber, 1},
	{"ldc.i4.8", OpClassLoadNumber, 1},
	{"ldc.i4.s", OpClassLoadNumber, 2},
	{"ldc.i4", OpClassLoadNumber, 5},
	{"ldc.i8", OpClassLoadNumber, 9},
	{"ldc.r4", OpClassLoadNumber, 5},
	{"ldc.r8", OpClassLoadNumber, 9},
	{"dup", OpClassOther, 1},
	{"pop", OpClassOther, 1},
	{"jmp", OpClassOther, 5},
	{"call", OpClassCall, 5},
	{"calli", OpClassOther, 5},
	{"ret", OpClassOther, 1},
	{"br.s", OpClassOther, 2},
	{"brfalse.s", OpClassOther, 2},
	{"brtrue.s", OpClassOther, 2},
	{"beq.s", OpClassOther, 2},
	{"bge.s", OpClassOther, 2},
	{"bgt.s", OpClassOther, 2},
	{"ble.s", OpClassOther, 2},
	{"blt.s", OpClassOther, 2},
	{"bne.un.s", OpClassOther, 2},
	{"br", OpClassOther, 5},
	{"brfalse", OpClassOther, 5},
	{"brtrue", OpClassOther, 5},
	{"beq", OpClassOther, 5},
	{"bge", OpClassOther, 5},
	{"bgt", OpClassOther, 5},
	{"ble", OpClassOther, 5},
	{"blt", OpClassOther, 5},
	{"bne.un", OpClassOther, 5},
	{"switch", OpClassOther, 5},
	{"add", OpClassOther, 1},
	{"sub", OpClassOther, 1},
	{"mul", OpClassOther, 1},
	{"div", OpClassOther, 1},
	{"rem", OpClassOther, 1},
	{"and", OpClassOther, 1},
	{"or", OpClassOther, 1},
	{"xor", OpClassOther, 1},
	{"shl", OpClassOther, 1},
	{"shr", OpClassOther, 1},
	{"neg", OpClassOther, 1},
	{"not", OpClassOther, 1},
	{"conv.i4", OpClassOther, 1},
	{"conv.i8", OpClassOther, 1},
	{"conv.r8", OpClassOther, 1},
	{"conv.u1", OpClassOther, 1},
	{"callvirt", OpClassVirtualCall, 5},
	{"cpobj", OpClassOther, 5},
	{"ldobj", OpClassOther, 5},
	{"ldstr", OpClassLoadString, 5},
	{"newobj", OpClassConstruct, 5},
	{"castclass", OpClassOther, 5},
	{"isinst", OpClassOther, 5},
	{"unbox", OpClassOther, 5},
	{"throw", OpClassOther, 1},
	{"ldfld", OpClassFieldRead, 5},
	{"ldflda", OpClassFieldAddress, 5},
	{"stfld", OpClassFieldWrite, 5},
	{"ldsfld", OpClassFieldRead, 5},
	{"ldsflda", OpClassFieldAddress, 5},
	{"stsfld", OpClassFieldWrite, 5},
	{"stobj", OpClassOther, 5},
	{"box", OpClassOther, 5},
	{"newarr", OpClassOther, 5},
	{"ldlen", OpClassOther, 1},
	{"ldelema", OpClassOther, 5},
	{"ldelem", OpClassOther, 5},
	{"ldelem.i4", OpClassOther, 1},
	{"ldelem.ref", OpClassOther, 1},
	{"stelem", OpClassOther, 5},
	{"stelem.i4", OpClassOther, 1},
	{"stelem.ref", OpClassOther, 1},
	{"unbox.any", OpClassOther, 5},
	{"ldtoken", OpClassOther, 5},
	{"endfinally", OpClassOther, 1},
	{"leave", OpClassOther, 5},
	{"leave.s", OpClassOther, 2},
	{"ceq", OpClassOther, 2},
	{"cgt", OpClassOther, 2},
	{"cgt.un", OpClassOther, 2},
	{"clt", OpClassOther, 2},
	{"clt.un", OpClassOther, 2},
	{"ldftn", OpClassOther, 6},
	{"ldvirtftn", OpClassOther, 6},
	{"ldarg", OpClassOther, 4},
	{"ldarga", OpClassOther, 4},
	{"starg", OpClassOther, 4},
	{"ldloc", OpClassOther, 4},
	{"ldloca", OpClassOther, 4},
	{"stloc", OpClassOther, 4},
	{"initobj", OpClassOther, 6},
	{"constrained.", OpClassOther, 6},
	{"rethrow", OpClassOther, 2},
	{"sizeof", OpClassOther, 6},
}

var opcodesByName = func() map[string]*OpCode {
	m := make(map[string]*OpCode, len(opcodeTable))
	for i := range opcodeTable {
		m[opcodeTable[i].Name] = &opcodeTable[i]
	}
	return m
}()

// LookupOpCode returns the opcode with the given mnemonic (case-insensitive).
func LookupOpCode(name string) (*OpCode, bool) {
	op, ok := opcodesByName[strings.ToLower(name)]
	return op, ok
}

// OpCodeNames returns every known mnemonic, sorted.
func OpCodeNames() []string {
	names := make([]string, 0, len(opcodeTable))
	for _, op := range opcodeTable {
		names = append(names, op.Name)
	}
	sort.Strings(names)
	return names
}
