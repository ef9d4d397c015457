// Package logging provides structured logging for gpuslice components.
//
// All output is JSON to stderr via the standard library slog package,
// with module and version attributes attached to every record. The log
// level comes from the LOG_LEVEL environment variable unless set
// explicitly with SetDefaultStructuredLoggerWithLevel.
package logging
