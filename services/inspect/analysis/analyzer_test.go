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
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestQueryOptions_Clamping(t *testing.T) {
	a := NewAnalyzer(nil)
	tests := []struct {
		name string
		opts []QueryOption
		want QueryOptions
	}{
		{"defaults", nil, DefaultQueryOptions()},
		{"zero uses default", []QueryOption{WithMaxResults(0), WithMaxDepth(-1), WithMaxNodes(0)}, DefaultQueryOptions()},
		{"clamped", []QueryOption{WithMaxResults(1 << 20), WithMaxDepth(999), WithMaxNodes(1 << 20)},
			QueryOptions{MaxResults: MaxResultsLimit, MaxDepth: MaxDepthLimit, MaxNodes: MaxNodesLimit}},
		{"explicit", []QueryOption{WithMaxResults(3), WithMaxDepth(2), WithMaxNodes(7), WithModule("lib")},
			QueryOptions{MaxResults: 3, MaxDepth: 2, MaxNodes: 7, Module: "lib"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.applyOptions(tt.opts))
		})
	}
}

func TestWithDefaults(t *testing.T) {
	a := NewAnalyzer(nil, WithDefaults(QueryOptions{MaxResults: 10, MaxNodes: 99999}))
	got := a.Defaults()
	assert.Equal(t, 10, got.MaxResults)
	assert.Equal(t, DefaultMaxDepth, got.MaxDepth)
	assert.Equal(t, MaxNodesLimit, got.MaxNodes)
	assert.Equal(t, 4, a.applyOptions([]QueryOption{WithMaxResults(4)}).MaxResults)
}

func TestError_Is(t *testing.T) {
	err := notFoundf("type not found: %s", "X")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrNoBody))
	assert.Equal(t, "type not found: X", err.Error())

	wrapped := fmt.Errorf("cli: %w", noBodyf("no body"))
	assert.True(t, errors.Is(wrapped, ErrNoBody))
	assert.Equal(t, KindNoBody, KindOf(wrapped))
	assert.Equal(t, ErrorKind(0), KindOf(errors.New("plain")))

	assert.False(t, errors.Is(notFoundf("a"), notFoundf("b")), "distinct messages are distinct errors")
	assert.Equal(t, "invalid_argument", ErrInvalidArgument.Error())
}

func TestAnalyzer_Telemetry(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	a := fixtureAnalyzer(t)
	_, err := a.FindCallers(context.Background(), "App.Program", "Log")
	require.NoError(t, err)
	_, err = a.FindCallers(context.Background(), "App.Program", "Missing")
	require.Error(t, err)

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "Analyzer.find_callers", ended[0].Name())
	assert.Equal(t, codes.Ok, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[1].Status().Code)

	count, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "ilscope_analysis_queries_total")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 2, "success and not_found series")
}

func TestAnalyzer_ReleasesSnapshot(t *testing.T) {
	a := fixtureAnalyzer(t)
	_, err := a.ResolveType(context.Background(), "Nope")
	require.Error(t, err)

	// A mutation only proceeds once every snapshot is released.
	require.NoError(t, a.ws.Unload("Lib.dll"))
	_, err = a.ResolveType(context.Background(), "Lib.Triangle")
	assert.True(t, errors.Is(err, ErrNotFound))
}
