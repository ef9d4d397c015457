// Package node inspects cluster nodes, with a focus on GPU node state:
// readiness, advertised nvidia.com/gpu capacity, and the time-slicing
// profile each node is pinned to.
package node
