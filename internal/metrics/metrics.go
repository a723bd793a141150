// Copyright 2025 Partner Opportunity Intelligence Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes Prometheus instrumentation for the analysis
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnalyzeRequests counts pipeline invocations by outcome
	// (success, fallback, error).
	AnalyzeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opportunity_analyze_requests_total",
			Help: "Total number of opportunity analysis requests by outcome",
		},
		[]string{"outcome"},
	)

	// AnalyzeDuration observes end-to-end pipeline latency.
	AnalyzeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "opportunity_analyze_duration_seconds",
			Help:    "End-to-end duration of opportunity analysis in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 240, 300},
		},
	)

	// StageDuration observes per-stage latency.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opportunity_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 240},
		},
		[]string{"stage"},
	)

	// FallbackTotal counts fallback activations by stage.
	FallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opportunity_fallback_total",
			Help: "Total number of stage fallback activations",
		},
		[]string{"stage"},
	)
)
