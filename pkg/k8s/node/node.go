// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package node

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8s "k8s.io/client-go/kubernetes"

	"github.com/NVIDIA/gpuslice/pkg/k8s/client"
	"github.com/NVIDIA/gpuslice/pkg/timeslice"
)

const (
	// InstanceTypeLabel carries the cloud VM size.
	InstanceTypeLabel = "node.kubernetes.io/instance-type"
	// GPUProductLabel is published by GPU feature discovery.
	GPUProductLabel = "nvidia.com/gpu.product"
	// GPUCountLabel is published by GPU feature discovery with the
	// physical GPU count.
	GPUCountLabel = "nvidia.com/gpu.count"
	// DriverVersionLabel is published by GPU feature discovery.
	DriverVersionLabel = "nvidia.com/cuda.driver-version.full"

	// ResourceGPU is the extended resource advertised by the device plugin.
	ResourceGPU = v1.ResourceName(timeslice.ResourceGPU)
)

// ListOptions contains the configuration options for listing nodes.
type ListOptions struct {
	// Kubeconfig is the path to the kubeconfig file.
	Kubeconfig string
	// LabelSelector filters nodes based on labels.
	LabelSelector string
	// Limit is the maximum number of nodes to return.
	Limit int64

	// Client overrides the Kubernetes client, used in tests.
	Client k8s.Interface
}

// GPUNode summarizes the GPU-relevant state of a single node.
type GPUNode struct {
	// Name is the node name.
	Name string `json:"name" yaml:"name"`
	// Ready reports the node Ready condition.
	Ready bool `json:"ready" yaml:"ready"`
	// Age is the time since node creation, human readable.
	Age string `json:"age" yaml:"age"`
	// InstanceType is the Azure VM size.
	InstanceType string `json:"instanceType,omitempty" yaml:"instanceType,omitempty"`
	// Product is the GPU product name from feature discovery, empty until
	// the operator has labeled the node.
	Product string `json:"product,omitempty" yaml:"product,omitempty"`
	// DriverVersion is the CUDA driver version from feature discovery.
	DriverVersion string `json:"driverVersion,omitempty" yaml:"driverVersion,omitempty"`
	// Profile is the time-slicing profile the node is pinned to via the
	// device plugin config label.
	Profile string `json:"profile,omitempty" yaml:"profile,omitempty"`
	// PhysicalGPUs is the physical GPU count for the VM size.
	PhysicalGPUs int `json:"physicalGPUs" yaml:"physicalGPUs"`
	// Capacity is the advertised nvidia.com/gpu capacity. With
	// time-slicing active this is PhysicalGPUs times the profile replica
	// count.
	Capacity int `json:"capacity" yaml:"capacity"`
}

// GPUSummary returns all GPU nodes in the cluster, sorted by name.
// Nodes are selected by the operator's gpu.present label, narrowed by
// any caller-provided selector.
func GPUSummary(ctx context.Context, opt ListOptions) ([]*GPUNode, error) {
	selector := timeslice.GPUPresentLabel + "=true"
	if opt.LabelSelector != "" {
		selector += "," + opt.LabelSelector
	}
	opt.LabelSelector = selector

	list, err := List(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to list GPU nodes: %w", err)
	}

	nodes := make([]*GPUNode, 0, len(list))
	for _, n := range list {
		nodes = append(nodes, Summarize(n))
	}

	sort.Slice(nodes, func(i, j int) bool {
		return strings.ToLower(nodes[i].Name) < strings.ToLower(nodes[j].Name)
	})

	return nodes, nil
}

// Summarize extracts the GPU-relevant state from a node object.
func Summarize(n *v1.Node) *GPUNode {
	gn := &GPUNode{
		Name:          n.Name,
		Ready:         IsReady(n),
		Age:           FormatAge(n.CreationTimestamp.Time),
		InstanceType:  n.Labels[InstanceTypeLabel],
		Product:       n.Labels[GPUProductLabel],
		DriverVersion: n.Labels[DriverVersionLabel],
		Profile:       n.Labels[timeslice.NodeConfigLabel],
	}

	gn.PhysicalGPUs = PhysicalGPUCount(n)

	if qty, ok := n.Status.Capacity[ResourceGPU]; ok {
		gn.Capacity = int(qty.Value())
	}

	return gn
}

// IsReady reports the node Ready condition.
func IsReady(n *v1.Node) bool {
	for _, cond := range n.Status.Conditions {
		if cond.Type == v1.NodeReady {
			return cond.Status == v1.ConditionTrue
		}
	}
	return false
}

// vmSizeGPUs maps Azure GPU VM sizes to their physical GPU count.
// Sizes absent from the map fall back to the feature discovery count
// label, then to 1.
var vmSizeGPUs = map[string]int{
	// NCv3 (V100)
	"Standard_NC6s_v3":  1,
	"Standard_NC12s_v3": 2,
	"Standard_NC24s_v3": 4,
	// NCasT4 (T4)
	"Standard_NC4as_T4_v3":  1,
	"Standard_NC8as_T4_v3":  1,
	"Standard_NC16as_T4_v3": 1,
	"Standard_NC64as_T4_v3": 4,
	// NC A100 v4
	"Standard_NC24ads_A100_v4": 1,
	"Standard_NC48ads_A100_v4": 2,
	"Standard_NC96ads_A100_v4": 4,
	// ND A100 v4
	"Standard_ND96asr_v4":       8,
	"Standard_ND96amsr_A100_v4": 8,
	// NC/ND H100 v5
	"Standard_NC40ads_H100_v5":  1,
	"Standard_NC80adis_H100_v5": 2,
	"Standard_ND96isr_H100_v5":  8,
}

// PhysicalGPUCount resolves the physical GPU count for a node from its VM
// size, falling back to the feature discovery count label.
func PhysicalGPUCount(n *v1.Node) int {
	if count, ok := vmSizeGPUs[n.Labels[InstanceTypeLabel]]; ok {
		return count
	}

	if raw, ok := n.Labels[GPUCountLabel]; ok {
		var count int
		if _, err := fmt.Sscanf(raw, "%d", &count); err == nil && count > 0 {
			return count
		}
	}

	slog.Debug("unknown GPU count for node, assuming 1",
		"node", n.Name, "instanceType", n.Labels[InstanceTypeLabel])
	return 1
}

// ArchForVMSize returns the built-in time-slicing architecture name for
// an Azure GPU VM size, or empty when the size is not recognized.
func ArchForVMSize(vmSize string) string {
	s := strings.ToLower(vmSize)
	switch {
	case strings.Contains(s, "h100") || strings.Contains(s, "h200"):
		return timeslice.ArchHopper
	case strings.Contains(s, "a100") || strings.Contains(s, "a10"):
		return timeslice.ArchAmpere
	case strings.Contains(s, "l4") || strings.Contains(s, "l40"):
		return timeslice.ArchAda
	case strings.Contains(s, "t4"):
		return timeslice.ArchTuring
	case strings.HasSuffix(s, "s_v3") && strings.HasPrefix(s, "standard_nc"):
		return timeslice.ArchVolta
	default:
		return ""
	}
}

const (
	nodeListPageSize    int64 = 500
	nodeListAbsoluteMax int64 = 10000
)

// List returns nodes matching the options, paginated to handle large
// clusters without holding the full list response in one API call.
func List(ctx context.Context, opt ListOptions) ([]*v1.Node, error) {
	if opt.Client == nil {
		c, _, err := client.GetWithKubeconfig(opt.Kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to get kubernetes client: %w", err)
		}
		opt.Client = c
	}

	limit := opt.Limit
	if limit == 0 || limit > nodeListAbsoluteMax {
		limit = nodeListAbsoluteMax
	}

	pageSize := nodeListPageSize
	if limit < pageSize {
		pageSize = limit
	}

	var nodes []*v1.Node
	continueToken := ""
	fetched := int64(0)

	for {
		currentLimit := pageSize
		if fetched+currentLimit > limit {
			currentLimit = limit - fetched
		}

		list, err := opt.Client.CoreV1().Nodes().List(ctx, metav1.ListOptions{
			LabelSelector: opt.LabelSelector,
			Limit:         currentLimit,
			Continue:      continueToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get nodes: %w", err)
		}

		for i := range list.Items {
			nodes = append(nodes, &list.Items[i])
		}
		fetched += int64(len(list.Items))

		continueToken = list.Continue
		if continueToken == "" || fetched >= limit || len(list.Items) == 0 {
			break
		}
	}

	slog.Debug("node list complete", "total", len(nodes), "selector", opt.LabelSelector)
	return nodes, nil
}

const (
	minuteDuration = time.Minute
	hourDuration   = time.Hour
	dayDuration    = 24 * hourDuration
)

// FormatAge formats the time since createdOn as a short human-readable
// string, e.g. "3 days 4 hours".
func FormatAge(createdOn time.Time) string {
	d := metav1.Now().Sub(createdOn)

	if d < minuteDuration {
		return "0m"
	}

	days := d / dayDuration
	d -= days * dayDuration

	hours := d / hourDuration
	d -= hours * hourDuration

	minutes := d / minuteDuration

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%d days", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%d hours", hours))
	}
	if minutes > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d minutes", minutes))
	}

	if len(parts) > 1 {
		return parts[0] + " " + parts[1]
	}
	return parts[0]
}
