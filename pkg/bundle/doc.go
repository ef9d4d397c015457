// Package bundle assembles a self-contained deployment bundle: operator
// Helm values, the time-slicing ConfigMap manifest, Terraform variables,
// and a README describing how to apply them without this tool.
package bundle
