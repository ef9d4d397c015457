// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
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

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	toolInvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpuslice_tool_invocation_duration_seconds",
			Help:    "Duration of external tool invocations (az, terraform, helm)",
			Buckets: []float64{0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"tool", "subcommand"},
	)

	toolInvocationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpuslice_tool_invocation_total",
			Help: "Total external tool invocations by outcome",
		},
		[]string{"tool", "status"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpuslice_operation_duration_seconds",
			Help:    "End-to-end duration of gpuslice operations",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600},
		},
		[]string{"operation"},
	)

	validationChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpuslice_validation_checks_total",
			Help: "Total cluster validation checks by status",
		},
		[]string{"check", "status"},
	)
)

// ObserveToolInvocation records one external tool invocation.
func ObserveToolInvocation(tool, subcommand string, d time.Duration, success bool) {
	toolInvocationDuration.WithLabelValues(tool, subcommand).Observe(d.Seconds())

	status := "success"
	if !success {
		status = "error"
	}
	toolInvocationTotal.WithLabelValues(tool, status).Inc()
}

// ObserveOperation records one end-to-end operation duration.
func ObserveOperation(operation string, d time.Duration) {
	operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveValidationCheck records one validation check outcome.
func ObserveValidationCheck(check, status string) {
	validationChecksTotal.WithLabelValues(check, status).Inc()
}
