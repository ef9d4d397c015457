// Package defaults centralizes timeout and polling constants for external
// tool orchestration and Kubernetes API operations.
package defaults
