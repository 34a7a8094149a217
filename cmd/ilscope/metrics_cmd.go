// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/AleutianAI/ilscope/services/inspect/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newMetricsDumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics-dump",
		Short: "Print this process's analysis metrics in Prometheus text format",
		Long: `Prints the ilscope_* metric families. Most useful inside the shell, where
counters accumulate across queries.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return telemetry.WriteMetrics(a.stdout, prometheus.DefaultGatherer)
		},
	}
}
