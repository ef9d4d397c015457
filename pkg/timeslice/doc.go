// Package timeslice renders and applies GPU time-slicing configuration
// for the NVIDIA device plugin.
//
// A profile maps a GPU architecture name to a replica count. The device
// plugin advertises replicas * physical GPUs as schedulable
// nvidia.com/gpu resources on nodes labeled with the profile, letting
// multiple pods share a physical GPU. Larger replica counts mean finer
// sharing granularity at the cost of per-slice memory.
package timeslice
