// Package azure orchestrates the az CLI to provision and tear down the
// Azure resource graph for a GPU-enabled AKS cluster.
//
// All Azure interaction goes through the external az binary; this package
// adds context timeouts, bounded retries for transient failures,
// rate-limited provisioning-state polls, and JSON response parsing.
package azure
