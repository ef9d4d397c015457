// Package client provides cached Kubernetes client construction with
// kubeconfig auto-discovery and in-cluster fallback.
package client
