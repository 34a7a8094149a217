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
	"log/slog"
	"time"

	"github.com/AleutianAI/ilscope/services/inspect/metadata"
	"github.com/AleutianAI/ilscope/services/inspect/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "analysis"

// Analyzer runs structural queries against a workspace.
//
// Thread Safety: Safe for concurrent use. Each operation holds its own
// workspace snapshot.
type Analyzer struct {
	ws       *metadata.Workspace
	logger   *slog.Logger
	defaults QueryOptions
}

// NewAnalyzer creates an analyzer over ws.
//
// Inputs:
//
//	ws - The workspace to query. Must not be nil.
//	opts - Optional logger and default bounds.
//
// Outputs:
//
//	*Analyzer - Ready to use.
func NewAnalyzer(ws *metadata.Workspace, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		ws:       ws,
		logger:   slog.Default(),
		defaults: DefaultQueryOptions(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Defaults returns the bounds applied when a query passes no options.
func (a *Analyzer) Defaults() QueryOptions {
	return a.defaults
}

// call is the per-operation state: span, snapshot and accounting.
type call struct {
	a         *Analyzer
	operation string
	ctx       context.Context
	span      trace.Span
	snap      *metadata.Snapshot
	release   func()
	start     time.Time

	// scanned counts instructions visited by this operation.
	scanned int
}

// begin starts a span and acquires the snapshot the operation reads from.
// The caller must defer finish.
func (a *Analyzer) begin(ctx context.Context, operation string, attrs ...attribute.KeyValue) *call {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Analyzer."+operation,
		trace.WithAttributes(attrs...),
	)
	snap, release := a.ws.Acquire()
	span.SetAttributes(attribute.Int64("workspace.version", int64(snap.Version())))
	return &call{
		a:         a,
		operation: operation,
		ctx:       ctx,
		span:      span,
		snap:      snap,
		release:   release,
		start:     time.Now(),
	}
}

// finish releases the snapshot, records metrics and ends the span.
func (c *call) finish(err error, truncated bool) {
	c.release()
	elapsed := time.Since(c.start)

	telemetry.RecordInstructionsScanned(c.scanned)
	status := telemetry.StatusSuccess
	if err != nil {
		status = KindOf(err).String()
		if KindOf(err) == 0 {
			status = telemetry.StatusError
		}
		telemetry.RecordError(c.span, err)
	} else {
		telemetry.SetSpanOK(c.span)
	}
	if truncated {
		telemetry.RecordTruncated(c.operation)
	}
	telemetry.RecordQuery(c.operation, status, elapsed)

	c.span.SetAttributes(
		attribute.Bool("truncated", truncated),
		attribute.Int("instructions_scanned", c.scanned),
	)
	c.span.End()

	telemetry.LoggerWithTrace(c.ctx, c.a.logger).Debug("analysis query",
		slog.String("operation", c.operation),
		slog.String("status", status),
		slog.Bool("truncated", truncated),
		slog.Duration("elapsed", elapsed),
	)
}
