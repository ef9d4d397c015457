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

package terraform

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/NVIDIA/gpuslice/pkg/config"
)

// VarsFileName is the generated variable file picked up automatically by
// terraform (the .auto.tfvars.json convention).
const VarsFileName = "gpuslicectl.auto.tfvars.json"

// Vars is the variable set rendered for the Terraform module. Field names
// match the module's declared variables.
type Vars struct {
	ClusterName       string            `json:"cluster_name"`
	ResourceGroup     string            `json:"resource_group_name"`
	Location          string            `json:"location"`
	KubernetesVersion string            `json:"kubernetes_version,omitempty"`
	VNetName          string            `json:"vnet_name"`
	VNetCIDR          string            `json:"vnet_cidr"`
	SubnetName        string            `json:"subnet_name"`
	SubnetCIDR        string            `json:"subnet_cidr"`
	SystemVMSize      string            `json:"system_vm_size"`
	SystemNodeCount   int               `json:"system_node_count"`
	GPUPoolName       string            `json:"gpu_pool_name"`
	GPUVMSize         string            `json:"gpu_vm_size"`
	GPUNodeCount      int               `json:"gpu_node_count"`
	GPUSpot           bool              `json:"gpu_spot"`
	LogAnalytics      bool              `json:"log_analytics_enabled"`
	LogRetentionDays  int               `json:"log_retention_days"`
	Tags              map[string]string `json:"tags,omitempty"`
}

// VarsFromConfig maps the cluster configuration onto module variables.
// The config must already be validated.
func VarsFromConfig(cfg *config.Cluster) (*Vars, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Vars{
		ClusterName:       cfg.Name,
		ResourceGroup:     cfg.ResourceGroup,
		Location:          cfg.Location,
		KubernetesVersion: cfg.KubernetesVersion,
		VNetName:          cfg.Network.VNetName,
		VNetCIDR:          cfg.Network.VNetCIDR,
		SubnetName:        cfg.Network.SubnetName,
		SubnetCIDR:        cfg.Network.SubnetCIDR,
		SystemVMSize:      cfg.SystemPool.VMSize,
		SystemNodeCount:   cfg.SystemPool.Count,
		GPUPoolName:       cfg.GPUPool.Name,
		GPUVMSize:         cfg.GPUPool.VMSize,
		GPUNodeCount:      cfg.GPUPool.Count,
		GPUSpot:           cfg.GPUPool.Spot,
		LogAnalytics:      cfg.LogAnalytics.Enabled,
		LogRetentionDays:  cfg.LogAnalytics.RetentionDays,
		Tags:              cfg.Tags,
	}, nil
}

// Render serializes the variable set as indented tfvars JSON.
func (v *Vars) Render() ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render tfvars: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFile renders the variable set into dir under VarsFileName.
func (v *Vars) WriteFile(dir string) (string, error) {
	data, err := v.Render()
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, VarsFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
