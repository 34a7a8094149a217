// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package export writes analysis results to external graph stores.
package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/ilscope/services/inspect/analysis"
	"github.com/AleutianAI/ilscope/services/inspect/telemetry"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "export"

// DefaultBatchSize is the number of rows sent per UNWIND statement.
const DefaultBatchSize = 500

// Cypher statements. Method nodes are keyed by full signature.
const (
	cypherIndex = "CREATE INDEX il_method_id IF NOT EXISTS FOR (n:ILMethod) ON (n.id)"

	cypherNodes = `UNWIND $batch AS row
		 MERGE (n:ILMethod {id: row.id})
		 SET n.declaring_type = row.declaring_type, n.name = row.name, n.module = row.module`

	cypherEdges = `UNWIND $batch AS row
		 MATCH (a:ILMethod {id: row.from})
		 MATCH (b:ILMethod {id: row.to})
		 MERGE (a)-[r:IL_CALLS {offset: row.offset}]->(b)
		 SET r.virtual = row.virtual, r.root = $root`

	cypherClear = `MATCH (:ILMethod)-[r:IL_CALLS {root: $root}]->(:ILMethod) DELETE r`
)

// Runner executes one Cypher statement.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) error
}

// driverRunner runs statements through neo4j.ExecuteQuery.
type driverRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

func (r *driverRunner) Run(ctx context.Context, cypher string, params map[string]any) error {
	opts := []neo4j.ExecuteQueryConfigurationOption{}
	if r.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(r.database))
	}
	_, err := neo4j.ExecuteQuery(ctx, r.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
	return err
}

// Neo4jExporter upserts call graphs as ILMethod nodes joined by IL_CALLS
// relationships.
//
// Thread Safety: Safe for concurrent use if the Runner is.
type Neo4jExporter struct {
	runner    Runner
	closeFn   func(context.Context) error
	logger    *slog.Logger
	batchSize int
}

// ExportOption configures a Neo4jExporter.
type ExportOption func(*Neo4jExporter)

// WithBatchSize sets the UNWIND batch size. Values <= 0 are ignored.
func WithBatchSize(n int) ExportOption {
	return func(e *Neo4jExporter) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ExportOption {
	return func(e *Neo4jExporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewNeo4jExporter connects to Neo4j with basic auth.
//
// Inputs:
//
//	ctx - Context for the connectivity check.
//	uri - Bolt or neo4j URI. Must not be empty.
//	user, password - Basic auth credentials.
//	database - Target database; empty uses the server default.
//
// Outputs:
//
//	*Neo4jExporter - Ready exporter. Caller must Close it.
//	error - Non-nil if the driver cannot be created or the server is
//	        unreachable.
func NewNeo4jExporter(ctx context.Context, uri, user, password, database string, opts ...ExportOption) (*Neo4jExporter, error) {
	if uri == "" {
		return nil, fmt.Errorf("neo4j uri must not be empty")
	}
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j at %s: %w", uri, err)
	}
	e := NewExporterWithRunner(&driverRunner{driver: driver, database: database}, opts...)
	e.closeFn = driver.Close
	return e, nil
}

// NewExporterWithRunner builds an exporter over an existing Runner.
func NewExporterWithRunner(runner Runner, opts ...ExportOption) *Neo4jExporter {
	e := &Neo4jExporter{
		runner:    runner,
		logger:    slog.Default(),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close releases the driver. Safe to call on a runner-backed exporter.
func (e *Neo4jExporter) Close(ctx context.Context) error {
	if e.closeFn == nil {
		return nil
	}
	return e.closeFn(ctx)
}

// ExportCallGraph upserts a call graph.
//
// Description:
//
//	Ensures the ILMethod index, removes IL_CALLS edges previously written
//	for the same root, then upserts nodes and edges in batches. Nodes are
//	shared across roots; edges carry the root that produced them.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	graph - The graph to write. Must not be nil.
//
// Outputs:
//
//	error - The first failing statement's error, wrapped.
func (e *Neo4jExporter) ExportCallGraph(ctx context.Context, graph *analysis.CallGraph) (err error) {
	if graph == nil {
		return fmt.Errorf("call graph must not be nil")
	}
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Neo4jExporter.ExportCallGraph",
		trace.WithAttributes(
			attribute.String("root", graph.Root),
			attribute.Int("nodes", len(graph.Nodes)),
			attribute.Int("edges", len(graph.Edges)),
		),
	)
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		}
	}()

	if err := e.runner.Run(ctx, cypherIndex, nil); err != nil {
		return fmt.Errorf("creating index: %w", err)
	}
	if err := e.runner.Run(ctx, cypherClear, map[string]any{"root": graph.Root}); err != nil {
		return fmt.Errorf("clearing previous edges: %w", err)
	}

	nodes := make([]map[string]any, 0, len(graph.Nodes))
	for _, n := range graph.Nodes {
		nodes = append(nodes, map[string]any{
			"id":             n.ID,
			"declaring_type": n.DeclaringType,
			"name":           n.Name,
			"module":         n.Module,
		})
	}
	if err := e.runBatches(ctx, cypherNodes, nodes, nil); err != nil {
		return fmt.Errorf("loading nodes: %w", err)
	}

	edges := make([]map[string]any, 0, len(graph.Edges))
	for _, edge := range graph.Edges {
		edges = append(edges, map[string]any{
			"from":    edge.From,
			"to":      edge.To,
			"offset":  int64(edge.Offset),
			"virtual": edge.IsVirtual,
		})
	}
	if err := e.runBatches(ctx, cypherEdges, edges, map[string]any{"root": graph.Root}); err != nil {
		return fmt.Errorf("loading edges: %w", err)
	}

	telemetry.SetSpanOK(span)
	e.logger.Info("call graph exported",
		slog.String("root", graph.Root),
		slog.Int("nodes", len(nodes)),
		slog.Int("edges", len(edges)),
	)
	return nil
}

func (e *Neo4jExporter) runBatches(ctx context.Context, cypher string, rows []map[string]any, extra map[string]any) error {
	for start := 0; start < len(rows); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+e.batchSize, len(rows))
		params := map[string]any{"batch": rows[start:end]}
		for k, v := range extra {
			params[k] = v
		}
		if err := e.runner.Run(ctx, cypher, params); err != nil {
			return err
		}
	}
	return nil
}
