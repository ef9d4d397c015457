// Package operator installs and configures the NVIDIA GPU Operator on an
// AKS cluster via Helm, wiring the device plugin to a time-slicing
// configuration.
package operator
