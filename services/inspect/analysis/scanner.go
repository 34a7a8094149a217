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
	"strconv"
	"strings"

	"github.com/AleutianAI/ilscope/services/inspect/metadata"
	"go.opentelemetry.io/otel/attribute"
)

// hit is a predicate match at one instruction index.
type hit struct {
	kind   ReferenceKind
	window []string
}

// predicate tests the instruction at body[i].
type predicate func(body []*metadata.Instruction, i int) (hit, bool)

// scan runs the shared reference scan loop.
//
// Order is module order, flattened type order, declared method order, then
// instruction order. Once MaxResults references exist the next match stops
// the scan with truncated set, so a smaller bound always yields a prefix of
// a larger one and a result that exactly fills the bound is not truncated. The context is
// checked between modules; cancellation returns the prefix with truncated
// set.
func (c *call) scan(opts QueryOptions, match predicate) (refs []Reference, truncated bool) {
	refs = make([]Reference, 0)
	filter := strings.ToLower(strings.TrimSpace(opts.Module))

	for _, mod := range c.snap.Modules() {
		if c.ctx.Err() != nil {
			return refs, true
		}
		if filter != "" && !strings.Contains(strings.ToLower(mod.Name), filter) {
			continue
		}
		for _, td := range c.snap.Types(mod) {
			for _, m := range td.Methods {
				if !m.HasBody() {
					continue
				}
				body := m.Body.Instructions
				for i, ins := range body {
					c.scanned++
					h, ok := match(body, i)
					if !ok {
						continue
					}
					if len(refs) >= opts.MaxResults {
						return refs, true
					}
					refs = append(refs, Reference{
						Kind:    h.kind,
						Module:  mod.Name,
						Type:    td.FullName(),
						Method:  m.FullName(),
						Offset:  ins.Offset,
						OpCode:  ins.OpCode.Name,
						Operand: ins.OperandText(),
						Window:  h.window,
					})
				}
			}
		}
	}
	return refs, false
}

// FindUsages finds instructions referencing a type or one of its members.
//
// Description:
//
//	With only a type name, reports type operands mentioning the type
//	(TypeReference), method operands declared on it (MethodCall) and field
//	operands declared on it (FieldAccess). With a member name, reports
//	method operands naming the member (Call for call-like opcodes,
//	Reference otherwise) and field operands naming it (Read, Write,
//	AddressOf, or Reference for non-access opcodes such as ldtoken). A
//	property member name matches its getter and setter.
//
// Inputs:
//
//	ctx - Context for tracing and cancellation between modules.
//	typeName - Full or partial type name.
//	memberName - Optional member name, case-insensitive.
//	opts - MaxResults and Module bounds.
//
// Outputs:
//
//	*ScanResult - Ordered references, possibly empty.
//	error - NotFound if the type or member does not exist.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) FindUsages(ctx context.Context, typeName, memberName string, opts ...QueryOption) (result *ScanResult, err error) {
	options := a.applyOptions(opts)
	c := a.begin(ctx, "find_usages",
		attribute.String("type", typeName),
		attribute.String("member", memberName),
		attribute.Int("max_results", options.MaxResults),
	)
	defer func() { c.finish(err, result != nil && result.Truncated) }()

	td, err := resolveType(c.ctx, c.snap, typeName)
	if err != nil {
		return nil, err
	}
	target := td.FullName()
	memberName = strings.TrimSpace(memberName)

	var match predicate
	query := target
	if memberName == "" {
		match = typeUsagePredicate(target)
	} else {
		methods, field := memberTargets(td, memberName)
		if len(methods) == 0 && field == "" {
			return nil, notFoundf("member not found: %s::%s", target, memberName)
		}
		match = memberUsagePredicate(target, methods, field)
		query = target + "::" + memberName
	}

	refs, truncated := c.scan(options, match)
	return &ScanResult{Query: query, References: refs, Truncated: truncated}, nil
}

// memberTargets returns the method names and field name a member name
// refers to on td. Properties contribute their accessors.
func memberTargets(td *metadata.TypeDef, memberName string) (methods map[string]bool, field string) {
	methods = make(map[string]bool)
	for _, m := range td.Methods {
		if strings.EqualFold(m.Name, memberName) {
			methods[m.Name] = true
		}
	}
	for _, p := range td.Properties {
		if !strings.EqualFold(p.Name, memberName) {
			continue
		}
		if p.Getter != "" {
			methods[p.Getter] = true
		}
		if p.Setter != "" {
			methods[p.Setter] = true
		}
	}
	for _, f := range td.Fields {
		if strings.EqualFold(f.Name, memberName) {
			field = f.Name
			break
		}
	}
	return methods, field
}

func typeUsagePredicate(target string) predicate {
	return func(body []*metadata.Instruction, i int) (hit, bool) {
		op := body[i].Operand
		switch op.Kind {
		case metadata.OperandType:
			for _, leaf := range op.Type.NamedLeaves() {
				if leaf == target {
					return hit{kind: RefTypeReference}, true
				}
			}
		case metadata.OperandMethod:
			if op.Method.DeclaringType.DefinitionName() == target {
				return hit{kind: RefMethodCall}, true
			}
		case metadata.OperandField:
			if op.Field.DeclaringType.DefinitionName() == target {
				return hit{kind: RefFieldAccess}, true
			}
		case metadata.OperandNone, metadata.OperandString, metadata.OperandInteger,
			metadata.OperandBranchTarget, metadata.OperandLocal, metadata.OperandParameter:
		}
		return hit{}, false
	}
}

func memberUsagePredicate(target string, methods map[string]bool, field string) predicate {
	return func(body []*metadata.Instruction, i int) (hit, bool) {
		ins := body[i]
		switch ins.Operand.Kind {
		case metadata.OperandMethod:
			ref := ins.Operand.Method
			if !methods[ref.Name] || ref.DeclaringType.DefinitionName() != target {
				return hit{}, false
			}
			if ins.OpCode.Class.IsCallLike() {
				return hit{kind: RefCall}, true
			}
			return hit{kind: RefReference}, true
		case metadata.OperandField:
			ref := ins.Operand.Field
			if field == "" || ref.Name != field || ref.DeclaringType.DefinitionName() != target {
				return hit{}, false
			}
			return hit{kind: fieldAccessKind(ins.OpCode.Class)}, true
		case metadata.OperandNone, metadata.OperandType, metadata.OperandString, metadata.OperandInteger,
			metadata.OperandBranchTarget, metadata.OperandLocal, metadata.OperandParameter:
		}
		return hit{}, false
	}
}

func fieldAccessKind(class metadata.OpClass) ReferenceKind {
	switch class {
	case metadata.OpClassFieldRead:
		return RefRead
	case metadata.OpClassFieldWrite:
		return RefWrite
	case metadata.OpClassFieldAddress:
		return RefAddressOf
	default:
		return RefReference
	}
}

// FindCallers finds call-like instructions targeting a method.
//
// Description:
//
//	Matches call, callvirt and newobj instructions whose method operand is
//	declared on the resolved type and has the resolved method's name.
//	Overloads are not distinguished.
//
// Inputs:
//
//	ctx - Context for tracing and cancellation between modules.
//	typeName - Full or partial type name.
//	methodName - Method name, case-insensitive.
//	opts - MaxResults and Module bounds.
//
// Outputs:
//
//	*ScanResult - Ordered call sites, possibly empty.
//	error - NotFound if the type or method does not exist.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) FindCallers(ctx context.Context, typeName, methodName string, opts ...QueryOption) (result *ScanResult, err error) {
	options := a.applyOptions(opts)
	c := a.begin(ctx, "find_callers",
		attribute.String("type", typeName),
		attribute.String("method", methodName),
		attribute.Int("max_results", options.MaxResults),
	)
	defer func() { c.finish(err, result != nil && result.Truncated) }()

	m, err := resolveMethod(c.ctx, c.snap, typeName, methodName, "")
	if err != nil {
		return nil, err
	}
	target := m.DeclaringType.FullName()
	name := m.Name

	refs, truncated := c.scan(options, func(body []*metadata.Instruction, i int) (hit, bool) {
		ins := body[i]
		if !ins.OpCode.Class.IsCallLike() || ins.Operand.Kind != metadata.OperandMethod {
			return hit{}, false
		}
		ref := ins.Operand.Method
		if ref.Name != name || ref.DeclaringType.DefinitionName() != target {
			return hit{}, false
		}
		return hit{kind: RefCall}, true
	})
	return &ScanResult{Query: target + "::" + name, References: refs, Truncated: truncated}, nil
}

// FindFieldReferences finds reads, writes and address loads of a field.
//
// Inputs:
//
//	ctx - Context for tracing and cancellation between modules.
//	typeName - Full or partial type name.
//	fieldName - Field name, case-insensitive.
//	opts - MaxResults and Module bounds.
//
// Outputs:
//
//	*ScanResult - Ordered accesses classified Read, Write or AddressOf.
//	error - NotFound if the type or field does not exist.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) FindFieldReferences(ctx context.Context, typeName, fieldName string, opts ...QueryOption) (result *ScanResult, err error) {
	options := a.applyOptions(opts)
	c := a.begin(ctx, "find_field_references",
		attribute.String("type", typeName),
		attribute.String("field", fieldName),
		attribute.Int("max_results", options.MaxResults),
	)
	defer func() { c.finish(err, result != nil && result.Truncated) }()

	td, err := resolveType(c.ctx, c.snap, typeName)
	if err != nil {
		return nil, err
	}
	_, field := memberTargets(td, strings.TrimSpace(fieldName))
	if field == "" {
		return nil, notFoundf("field not found: %s::%s", td.FullName(), fieldName)
	}
	target := td.FullName()

	refs, truncated := c.scan(options, func(body []*metadata.Instruction, i int) (hit, bool) {
		ins := body[i]
		if !ins.OpCode.Class.IsFieldAccess() || ins.Operand.Kind != metadata.OperandField {
			return hit{}, false
		}
		ref := ins.Operand.Field
		if ref.Name != field || ref.DeclaringType.DefinitionName() != target {
			return hit{}, false
		}
		return hit{kind: fieldAccessKind(ins.OpCode.Class)}, true
	})
	return &ScanResult{Query: target + "::" + field, References: refs, Truncated: truncated}, nil
}

// FindStringUsages finds ldstr instructions loading exactly value.
//
// Any value, including the empty string, is a valid target. There is no
// wildcard matching.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) FindStringUsages(ctx context.Context, value string, opts ...QueryOption) (result *ScanResult, err error) {
	options := a.applyOptions(opts)
	c := a.begin(ctx, "find_string_usages",
		attribute.String("value", value),
		attribute.Int("max_results", options.MaxResults),
	)
	defer func() { c.finish(err, result != nil && result.Truncated) }()

	refs, truncated := c.scan(options, func(body []*metadata.Instruction, i int) (hit, bool) {
		ins := body[i]
		if ins.OpCode.Class != metadata.OpClassLoadString || ins.Operand.Kind != metadata.OperandString {
			return hit{}, false
		}
		if ins.Operand.Str != value {
			return hit{}, false
		}
		return hit{kind: RefStringLiteral}, true
	})
	return &ScanResult{Query: strconv.Quote(value), References: refs, Truncated: truncated}, nil
}

// FindNumberUsages finds ldc instructions loading the integer value.
//
// Short forms with an implied constant (ldc.i4.m1 through ldc.i4.8) match
// their implied value.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) FindNumberUsages(ctx context.Context, value int64, opts ...QueryOption) (result *ScanResult, err error) {
	options := a.applyOptions(opts)
	c := a.begin(ctx, "find_number_usages",
		attribute.Int64("value", value),
		attribute.Int("max_results", options.MaxResults),
	)
	defer func() { c.finish(err, result != nil && result.Truncated) }()

	refs, truncated := c.scan(options, func(body []*metadata.Instruction, i int) (hit, bool) {
		ins := body[i]
		if ins.OpCode.Class != metadata.OpClassLoadNumber {
			return hit{}, false
		}
		loaded, ok := loadedInteger(ins)
		if !ok || loaded != value {
			return hit{}, false
		}
		return hit{kind: RefNumberLiteral}, true
	})
	return &ScanResult{Query: strconv.FormatInt(value, 10), References: refs, Truncated: truncated}, nil
}

// loadedInteger returns the integer an ldc instruction pushes.
func loadedInteger(ins *metadata.Instruction) (int64, bool) {
	if ins.Operand.Kind == metadata.OperandInteger {
		return ins.Operand.Int, true
	}
	suffix, ok := strings.CutPrefix(ins.OpCode.Name, "ldc.i4.")
	if !ok {
		return 0, false
	}
	if suffix == "m1" {
		return -1, true
	}
	n, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
