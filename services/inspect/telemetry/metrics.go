// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// MetricsPrefix is the name prefix shared by every ilscope metric.
const MetricsPrefix = "ilscope_"

// Query status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// =============================================================================
// Prometheus Metrics for Analysis Queries
// =============================================================================

var (
	// queriesTotal counts analysis operations.
	// Labels: operation (e.g. find_usages), status (success or an error kind)
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ilscope",
		Subsystem: "analysis",
		Name:      "queries_total",
		Help:      "Total analysis queries by operation and status",
	}, []string{"operation", "status"})

	// queryDuration measures analysis operation latency.
	// Labels: operation
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ilscope",
		Subsystem: "analysis",
		Name:      "query_duration_seconds",
		Help:      "Analysis query latency in seconds",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"operation"})

	// instructionsScanned counts instructions visited by scans.
	instructionsScanned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ilscope",
		Subsystem: "analysis",
		Name:      "instructions_scanned_total",
		Help:      "Total instructions visited by reference scans",
	})

	// truncatedTotal counts results cut short by a bound.
	// Labels: operation
	truncatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ilscope",
		Subsystem: "analysis",
		Name:      "truncated_total",
		Help:      "Total analysis results truncated by a result, depth or node bound",
	}, []string{"operation"})
)

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordQuery records the outcome and latency of one analysis operation.
//
// Inputs:
//
//	operation - Operation name, e.g. "find_callers".
//	status - StatusSuccess or an error kind name.
//	elapsed - Wall-clock duration of the operation.
func RecordQuery(operation, status string, elapsed time.Duration) {
	queriesTotal.WithLabelValues(operation, status).Inc()
	queryDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordInstructionsScanned adds n to the scanned-instruction counter.
func RecordInstructionsScanned(n int) {
	if n <= 0 {
		return
	}
	instructionsScanned.Add(float64(n))
}

// RecordTruncated records that an operation hit one of its bounds.
func RecordTruncated(operation string) {
	truncatedTotal.WithLabelValues(operation).Inc()
}

// MetricsHandler returns an HTTP handler serving the default registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// WriteMetrics writes every ilscope metric family in the Prometheus text
// exposition format.
//
// Inputs:
//
//	w - Destination writer.
//	gatherer - Registry to read. Nil uses prometheus.DefaultGatherer.
//
// Outputs:
//
//	error - Non-nil if gathering or writing fails.
func WriteMetrics(w io.Writer, gatherer prometheus.Gatherer) error {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), MetricsPrefix) {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
