// Package oci parses bundle output targets and pushes deployment bundles
// to OCI registries via ORAS.
package oci
