// Package errors provides structured error types shared across gpuslice.
//
// A StructuredError carries a stable code for programmatic handling, a
// human-readable message, the underlying cause, and optional context for
// debugging. Errors integrate with the standard errors.Is/As chain via
// Unwrap.
package errors
