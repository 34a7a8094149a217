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
	"log/slog"
)

// Query bounds.
const (
	// DefaultMaxResults is the default cap on returned records.
	DefaultMaxResults = 100

	// MaxResultsLimit is the largest accepted MaxResults.
	MaxResultsLimit = 10000

	// DefaultMaxDepth is the default call graph depth.
	DefaultMaxDepth = 5

	// MaxDepthLimit is the largest accepted MaxDepth.
	MaxDepthLimit = 50

	// DefaultMaxNodes is the default call graph node cap.
	DefaultMaxNodes = 200

	// MaxNodesLimit is the largest accepted MaxNodes.
	MaxNodesLimit = 5000
)

// QueryOptions bounds a single analysis operation.
type QueryOptions struct {
	// MaxResults caps scan and list results (default: 100, max: 10000).
	MaxResults int

	// MaxDepth bounds call graph depth (default: 5, max: 50).
	MaxDepth int

	// MaxNodes bounds call graph size (default: 200, max: 5000).
	MaxNodes int

	// Module restricts scans to modules whose name contains this substring,
	// case-insensitively. Empty means every module.
	Module string
}

// DefaultQueryOptions returns the built-in bounds.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		MaxResults: DefaultMaxResults,
		MaxDepth:   DefaultMaxDepth,
		MaxNodes:   DefaultMaxNodes,
	}
}

// QueryOption is a functional option for configuring one query.
type QueryOption func(*QueryOptions)

// WithMaxResults sets the result cap.
//
// If n <= 0, uses the default (100).
// If n > 10000, clamps to 10000.
func WithMaxResults(n int) QueryOption {
	return func(o *QueryOptions) {
		o.MaxResults = clamp(n, DefaultMaxResults, MaxResultsLimit)
	}
}

// WithMaxDepth sets the call graph depth bound.
//
// If d <= 0, uses the default (5).
// If d > 50, clamps to 50.
func WithMaxDepth(d int) QueryOption {
	return func(o *QueryOptions) {
		o.MaxDepth = clamp(d, DefaultMaxDepth, MaxDepthLimit)
	}
}

// WithMaxNodes sets the call graph node cap.
//
// If n <= 0, uses the default (200).
// If n > 5000, clamps to 5000.
func WithMaxNodes(n int) QueryOption {
	return func(o *QueryOptions) {
		o.MaxNodes = clamp(n, DefaultMaxNodes, MaxNodesLimit)
	}
}

// WithModule restricts scans to modules whose name contains substr.
func WithModule(substr string) QueryOption {
	return func(o *QueryOptions) {
		o.Module = substr
	}
}

func clamp(v, def, limit int) int {
	switch {
	case v <= 0:
		return def
	case v > limit:
		return limit
	default:
		return v
	}
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithLogger sets the analyzer logger. Nil keeps slog.Default().
func WithLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithDefaults replaces the bounds used when a query passes no options.
// Zero fields keep the built-in defaults; values are clamped to the limits.
func WithDefaults(defaults QueryOptions) AnalyzerOption {
	return func(a *Analyzer) {
		a.defaults = QueryOptions{
			MaxResults: clamp(defaults.MaxResults, DefaultMaxResults, MaxResultsLimit),
			MaxDepth:   clamp(defaults.MaxDepth, DefaultMaxDepth, MaxDepthLimit),
			MaxNodes:   clamp(defaults.MaxNodes, DefaultMaxNodes, MaxNodesLimit),
			Module:     defaults.Module,
		}
	}
}

func (a *Analyzer) applyOptions(opts []QueryOption) QueryOptions {
	options := a.defaults
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
