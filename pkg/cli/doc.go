// Package cli implements the gpuslicectl command-line interface.
//
// # Overview
//
// gpuslicectl provisions GPU-enabled AKS clusters and configures NVIDIA
// GPU time-slicing on them. It orchestrates the az, terraform, and helm
// binaries for the cloud-facing work and talks to the Kubernetes API
// directly for ConfigMap and node label management.
//
// # Commands
//
// provision - Create the Azure resource graph:
//
//	gpuslicectl provision --config cluster.yaml [--terraform] [--yes]
//
// Creates the resource group, VNet, optional Log Analytics workspace, AKS
// cluster, and GPU node pool, and merges the cluster credentials into the
// local kubeconfig. With --terraform the bundled Terraform module is
// driven instead of the az CLI.
//
// operator install - Install the NVIDIA GPU Operator:
//
//	gpuslicectl operator install --config cluster.yaml [--values-only]
//
// Applies the time-slicing ConfigMap, renders the Helm values, and runs
// helm upgrade --install, waiting for the device plugin unless --no-wait.
//
// slice render / slice apply - Manage time-slicing profiles:
//
//	gpuslicectl slice apply --profile ampere --replicas 8 [--wait]
//
// Writes the sharing configuration with server-side apply and labels GPU
// nodes with the selected profile. --wait blocks until the sliced
// capacity is advertised.
//
// validate - Check the live cluster against the declared profiles:
//
//	gpuslicectl validate --fail-on-error [--expect-gpu-nodes N]
//
// nodes - Summarize GPU nodes; bundle - render or push the deployment
// artifacts; teardown - delete the provisioned resources behind a y/N
// prompt (--emergency skips prompts and deletion polling).
//
// # Destructive operations
//
// provision, operator install, slice apply, and teardown prompt for
// confirmation on stdin unless --yes is given. Prompts read a single
// line; only "y" or "yes" (any case) proceeds.
//
// # Exit codes
//
//	0  success
//	1  general error (invalid arguments, execution failure, failed checks
//	   with --fail-on-error)
//
// Version information is embedded at build time using ldflags:
//
//	go build -ldflags="-X 'github.com/NVIDIA/gpuslice/pkg/cli.version=1.0.0'"
package cli
