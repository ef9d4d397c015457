// Package metrics defines Prometheus instruments for gpuslice operations.
// Instruments register on the default registry; the CLI exposes them only
// in long-running contexts, but observations are always cheap to record.
package metrics
