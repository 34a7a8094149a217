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

// BuildCallGraph builds the call graph reachable from one method.
//
// Description:
//
//	Performs iterative BFS from the resolved root at depth 0. Each dequeued
//	method that was not visited yet becomes a node keyed by its full
//	signature. Below MaxDepth, every call-like instruction of its body adds
//	an edge, and callees that resolve to a definition with a body and are
//	not visited are queued at depth+1. The walk ends when the queue is
//	empty or the node count reaches MaxNodes. Truncated is set iff an
//	unvisited method is still queued at that point. Reaching MaxDepth alone
//	does not set Truncated.
//
// Inputs:
//
//	ctx - Context for tracing.
//	typeName - Full or partial type name of the root.
//	methodName - Root method name, case-insensitive.
//	signature - Optional overload selector (see ResolveMethod).
//	opts - MaxDepth and MaxNodes bounds.
//
// Outputs:
//
//	*CallGraph - Nodes in visit order and edges in discovery order.
//	error - NotFound if the root is unresolved, NoBody if it has no body.
//
// Thread Safety: Safe for concurrent use.
func (a *Analyzer) BuildCallGraph(ctx context.Context, typeName, methodName, signature string, opts ...QueryOption) (result *CallGraph, err error) {
	options := a.applyOptions(opts)
	c := a.begin(ctx, "build_call_graph",
		attribute.String("type", typeName),
		attribute.String("method", methodName),
		attribute.Int("max_depth", options.MaxDepth),
		attribute.Int("max_nodes", options.MaxNodes),
	)
	defer func() { c.finish(err, result != nil && result.Truncated) }()

	root, err := resolveMethod(c.ctx, c.snap, typeName, methodName, signature)
	if err != nil {
		return nil, err
	}
	if !root.HasBody() {
		return nil, noBodyf("method has no body: %s", root.FullName())
	}

	result = c.walkCalls(root, options.MaxDepth, options.MaxNodes)
	c.span.SetAttributes(
		attribute.Int("nodes", result.TotalNodes),
		attribute.Int("edges", result.TotalEdges),
	)
	return result, nil
}

type queueItem struct {
	method *metadata.MethodDef
	id     string
	depth  int
}

func (c *call) walkCalls(root *metadata.MethodDef, maxDepth, maxNodes int) *CallGraph {
	graph := &CallGraph{
		Root:     root.FullName(),
		Nodes:    make([]CallGraphNode, 0),
		Edges:    make([]CallGraphEdge, 0),
		MaxDepth: maxDepth,
		MaxNodes: maxNodes,
	}

	visited := make(map[string]bool)
	queue := []queueItem{{method: root, id: graph.Root, depth: 0}}

	for len(queue) > 0 {
		if len(graph.Nodes) >= maxNodes {
			break
		}
		item := queue[0]
		queue = queue[1:]
		if visited[item.id] {
			continue // cycle or duplicate enqueue
		}
		visited[item.id] = true

		decl := item.method.DeclaringType
		graph.Nodes = append(graph.Nodes, CallGraphNode{
			ID:            item.id,
			DeclaringType: decl.FullName(),
			Name:          item.method.Name,
			Module:        decl.ModuleName(),
			Depth:         item.depth,
		})

		if item.depth >= maxDepth || !item.method.HasBody() {
			continue
		}
		for _, ins := range item.method.Body.Instructions {
			c.scanned++
			if !ins.OpCode.Class.IsCallLike() || ins.Operand.Kind != metadata.OperandMethod {
				continue
			}
			ref := ins.Operand.Method
			def, resolved := c.snap.ResolveMethod(ref)
			to := ref.FullName()
			if resolved {
				to = def.FullName()
			}
			graph.Edges = append(graph.Edges, CallGraphEdge{
				From:      item.id,
				To:        to,
				Offset:    ins.Offset,
				IsVirtual: ins.OpCode.Class == metadata.OpClassVirtualCall,
			})
			if resolved && def.HasBody() && !visited[to] {
				queue = append(queue, queueItem{method: def, id: to, depth: item.depth + 1})
			}
		}
	}

	for _, item := range queue {
		if !visited[item.id] {
			graph.Truncated = true
			break
		}
	}
	graph.TotalNodes = len(graph.Nodes)
	graph.TotalEdges = len(graph.Edges)
	return graph
}
