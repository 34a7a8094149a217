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

// ResolveType looks up a type by name.
//
// Description:
//
//	Tries an exact full-name match across all loaded modules (module order,
//	then declaration order). If none matches, returns the first type whose
//	full name ends with name, case-insensitively. The fallback lets callers
//	use short names and can match an unintended type when names collide as
//	suffixes.
//
// Inputs:
//
//	ctx - Context for tracing.
//	name - Full or partial type name.
//
// Outputs:
//
//	*TypeInfo - The resolved type.
//	error - NotFound if nothing matches, InvalidArgument if name is empty.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) ResolveType(ctx context.Context, name string) (info *TypeInfo, err error) {
	c := a.begin(ctx, "resolve_type", attribute.String("type", name))
	defer func() { c.finish(err, false) }()

	td, err := resolveType(c.ctx, c.snap, name)
	if err != nil {
		return nil, err
	}
	return typeInfo(td), nil
}

// ResolveMethod looks up a method on a type.
//
// Description:
//
//	Resolves the type with ResolveType rules, then filters its methods by
//	case-insensitive name. Without a signature the first declared overload
//	wins. A signature is a comma-separated list of parameter-type
//	substrings matched positionally and case-insensitively against
//	overloads of the same arity (receiver excluded); "()" selects a
//	parameterless overload. If no overload matches the signature, the first
//	declared overload is returned.
//
// Inputs:
//
//	ctx - Context for tracing.
//	typeName - Full or partial type name.
//	methodName - Method name, case-insensitive.
//	signature - Optional parameter-type tokens, e.g. "int32,string".
//
// Outputs:
//
//	*MethodInfo - The resolved method.
//	error - NotFound if the type or method does not exist.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) ResolveMethod(ctx context.Context, typeName, methodName, signature string) (info *MethodInfo, err error) {
	c := a.begin(ctx, "resolve_method",
		attribute.String("type", typeName),
		attribute.String("method", methodName),
		attribute.String("signature", signature),
	)
	defer func() { c.finish(err, false) }()

	m, err := resolveMethod(c.ctx, c.snap, typeName, methodName, signature)
	if err != nil {
		return nil, err
	}
	return methodInfo(m), nil
}

// resolveType finds a type by exact full name, then by case-insensitive
// suffix. A miss names the closest loaded type when there is one.
func resolveType(ctx context.Context, snap *metadata.Snapshot, name string) (*metadata.TypeDef, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidArgf("type name is required")
	}
	if td, ok := snap.FindType(name); ok {
		return td, nil
	}
	if td, ok := snap.FindTypeBySuffix(name); ok {
		return td, nil
	}
	if suggestions, err := snap.Index().Search(ctx, name, 1); err == nil && len(suggestions) > 0 {
		return nil, notFoundf("type not found: %s (did you mean %s?)", name, suggestions[0].FullName())
	}
	return nil, notFoundf("type not found: %s", name)
}

func resolveMethod(ctx context.Context, snap *metadata.Snapshot, typeName, methodName, signature string) (*metadata.MethodDef, error) {
	td, err := resolveType(ctx, snap, typeName)
	if err != nil {
		return nil, err
	}
	return selectOverload(td, methodName, signature)
}

// selectOverload picks one method of td by name and optional signature.
func selectOverload(td *metadata.TypeDef, methodName, signature string) (*metadata.MethodDef, error) {
	methodName = strings.TrimSpace(methodName)
	if methodName == "" {
		return nil, invalidArgf("method name is required")
	}

	var overloads []*metadata.MethodDef
	for _, m := range td.Methods {
		if strings.EqualFold(m.Name, methodName) {
			overloads = append(overloads, m)
		}
	}
	if len(overloads) == 0 {
		return nil, notFoundf("method not found: %s::%s", td.FullName(), methodName)
	}

	tokens, ok := signatureTokens(signature)
	if !ok {
		return overloads[0], nil
	}
	for _, m := range overloads {
		if paramsMatch(m.ParamTypes(), tokens) {
			return m, nil
		}
	}
	return overloads[0], nil
}

// signatureTokens splits a signature into lower-cased parameter tokens.
// ok is false when no signature was given; "()" yields zero tokens.
func signatureTokens(signature string) (tokens []string, ok bool) {
	s := strings.TrimSpace(signature)
	if s == "" {
		return nil, false
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[1 : len(s)-1])
		if s == "" {
			return []string{}, true
		}
	}
	parts := strings.Split(s, ",")
	tokens = make([]string, len(parts))
	for i, p := range parts {
		tokens[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return tokens, true
}

func paramsMatch(params []*metadata.TypeSig, tokens []string) bool {
	if len(params) != len(tokens) {
		return false
	}
	for i, tok := range tokens {
		name := strings.ToLower(params[i].String())
		if strings.Contains(name, tok) {
			continue
		}
		if full, ok := metadata.ExpandAlias(tok); ok && strings.EqualFold(name, full) {
			continue
		}
		return false
	}
	return true
}

func typeInfo(td *metadata.TypeDef) *TypeInfo {
	info := &TypeInfo{
		FullName:      td.FullName(),
		Namespace:     td.NamespaceName(),
		Name:          td.SimpleName(),
		Module:        td.ModuleName(),
		Kind:          td.KindName(),
		FieldCount:    len(td.Fields),
		MethodCount:   len(td.Methods),
		PropertyCount: len(td.Properties),
	}
	if td.BaseType != nil {
		info.BaseType = td.BaseType.String()
	}
	for _, iface := range td.Interfaces {
		info.Interfaces = append(info.Interfaces, iface.String())
	}
	return info
}

func methodInfo(m *metadata.MethodDef) *MethodInfo {
	info := &MethodInfo{
		FullName:      m.FullName(),
		DeclaringType: m.DeclaringType.FullName(),
		Name:          m.Name,
		Module:        m.DeclaringType.ModuleName(),
		ReturnType:    sigOrVoid(m.ReturnType),
		Parameters:    make([]string, 0, len(m.Params)),
		IsStatic:      m.IsStatic(),
		IsVirtual:     m.IsVirtual(),
		IsAbstract:    m.IsAbstract(),
		HasBody:       m.HasBody(),
	}
	for _, p := range m.VisibleParams() {
		info.Parameters = append(info.Parameters, strings.TrimSpace(p.Type.String()+" "+p.Name))
	}
	if m.HasBody() {
		info.InstructionCount = len(m.Body.Instructions)
	}
	return info
}

func sigOrVoid(sig *metadata.TypeSig) string {
	if sig == nil {
		return "System.Void"
	}
	return sig.String()
}
