// Package serializer writes CLI results (node summaries, validation
// results, rendered configs) to files or stdout in JSON, YAML, or a
// flattened table format, and reads structured input files back.
package serializer
