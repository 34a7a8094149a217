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

	"github.com/AleutianAI/ilscope/services/inspect/metadata"
	"go.opentelemetry.io/otel/attribute"
)

// FindCallees lists every call site in one method body.
//
// Description:
//
//	Walks the resolved method's instructions in order and reports each
//	call, callvirt and newobj with its callee, offset and whether the call
//	is virtual. Callees outside the loaded modules are reported with their
//	reference signature and Resolved=false.
//
// Inputs:
//
//	ctx - Context for tracing.
//	typeName - Full or partial type name.
//	methodName - Method name, case-insensitive.
//	signature - Optional overload selector (see ResolveMethod).
//	opts - MaxResults bound.
//
// Outputs:
//
//	*CalleesResult - Call sites in body order.
//	error - NotFound if unresolved, NoBody if the method has no body.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) FindCallees(ctx context.Context, typeName, methodName, signature string, opts ...QueryOption) (result *CalleesResult, err error) {
	options := a.applyOptions(opts)
	c := a.begin(ctx, "find_callees",
		attribute.String("type", typeName),
		attribute.String("method", methodName),
		attribute.Int("max_results", options.MaxResults),
	)
	defer func() { c.finish(err, result != nil && result.Truncated) }()

	m, err := resolveMethod(c.ctx, c.snap, typeName, methodName, signature)
	if err != nil {
		return nil, err
	}
	if !m.HasBody() {
		return nil, noBodyf("method has no body: %s", m.FullName())
	}

	result = &CalleesResult{Method: m.FullName(), Callees: make([]Callee, 0)}
	for _, ins := range m.Body.Instructions {
		c.scanned++
		if !ins.OpCode.Class.IsCallLike() || ins.Operand.Kind != metadata.OperandMethod {
			continue
		}
		if len(result.Callees) >= options.MaxResults {
			result.Truncated = true
			break
		}
		ref := ins.Operand.Method
		callee := Callee{
			Callee:        ref.FullName(),
			DeclaringType: ref.DeclaringType.String(),
			Name:          ref.Name,
			Offset:        ins.Offset,
			OpCode:        ins.OpCode.Name,
			IsVirtual:     ins.OpCode.Class == metadata.OpClassVirtualCall,
		}
		if def, ok := c.snap.ResolveMethod(ref); ok {
			callee.Callee = def.FullName()
			callee.DeclaringType = def.DeclaringType.FullName()
			callee.Resolved = true
		}
		result.Callees = append(result.Callees, callee)
	}
	return result, nil
}

// DisassembleMethod renders one method body.
//
// Outputs:
//
//	*Disassembly - Locals and "IL_0000: op operand" lines in order.
//	error - NotFound if unresolved, NoBody if the method has no body.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) DisassembleMethod(ctx context.Context, typeName, methodName, signature string) (result *Disassembly, err error) {
	c := a.begin(ctx, "disassemble_method",
		attribute.String("type", typeName),
		attribute.String("method", methodName),
	)
	defer func() { c.finish(err, false) }()

	m, err := resolveMethod(c.ctx, c.snap, typeName, methodName, signature)
	if err != nil {
		return nil, err
	}
	if !m.HasBody() {
		return nil, noBodyf("method has no body: %s", m.FullName())
	}

	result = &Disassembly{
		Method:       m.FullName(),
		Module:       m.DeclaringType.ModuleName(),
		Instructions: make([]string, 0, len(m.Body.Instructions)),
	}
	for _, local := range m.Body.Locals {
		result.Locals = append(result.Locals, local.String())
	}
	for _, ins := range m.Body.Instructions {
		c.scanned++
		result.Instructions = append(result.Instructions, ins.String())
	}
	return result, nil
}
