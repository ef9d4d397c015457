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

package operator

import (
	"fmt"
	"time"

	"github.com/distribution/reference"

	"github.com/NVIDIA/gpuslice/pkg/timeslice"
	"github.com/NVIDIA/gpuslice/pkg/version"
)

const (
	// HelmRepoName is the local name for the NVIDIA Helm repository.
	HelmRepoName = "nvidia"
	// HelmRepoURL is the NVIDIA NGC Helm repository.
	HelmRepoURL = "https://helm.ngc.nvidia.com/nvidia"
	// HelmChart is the GPU Operator chart reference.
	HelmChart = "nvidia/gpu-operator"
	// ReleaseName is the Helm release name used for the operator.
	ReleaseName = "gpu-operator"

	// DefaultDriverRegistry hosts the NVIDIA driver images.
	DefaultDriverRegistry = "nvcr.io/nvidia"
)

// HelmValues is the data rendered into the GPU Operator values file.
// Boolean toggles are strings so the template emits them verbatim.
type HelmValues struct {
	Timestamp string
	Namespace string

	ChartVersion string

	// Driver
	EnableDriver        string
	DriverVersion       string
	DriverRegistry      string
	UseOpenKernelModule string

	// Device plugin wiring for time-slicing
	DevicePluginConfigMap string
	DevicePluginDefault   string

	// MIG
	MIGStrategy string

	// Toolkit
	EnableToolkit string

	CustomLabels map[string]string
}

// NewHelmValues builds the values set for a cluster whose GPU nodes carry
// no preinstalled driver: the operator manages driver, toolkit, and the
// device plugin, and the device plugin reads its sharing config from the
// time-slicing ConfigMap.
func NewHelmValues(profiles *timeslice.ProfileSet) (*HelmValues, error) {
	if err := profiles.Validate(); err != nil {
		return nil, err
	}

	return &HelmValues{
		Timestamp:             time.Now().UTC().Format(time.RFC3339),
		Namespace:             timeslice.DefaultNamespace,
		EnableDriver:          "true",
		DriverRegistry:        DefaultDriverRegistry,
		UseOpenKernelModule:   "true",
		DevicePluginConfigMap: timeslice.DefaultConfigMapName,
		DevicePluginDefault:   profiles.Default,
		MIGStrategy:           timeslice.MIGStrategyNone,
		EnableToolkit:         "true",
	}, nil
}

// Validate checks the values set for internal consistency.
func (v *HelmValues) Validate() error {
	if v.Namespace == "" {
		return fmt.Errorf("namespace cannot be empty")
	}
	if v.DriverRegistry == "" {
		return fmt.Errorf("driver registry cannot be empty")
	}
	if _, err := reference.ParseNormalizedNamed(v.DriverRegistry + "/driver"); err != nil {
		return fmt.Errorf("invalid driver registry %q: %w", v.DriverRegistry, err)
	}
	if v.DriverVersion != "" {
		if _, err := version.Parse(v.DriverVersion); err != nil {
			return fmt.Errorf("invalid driver version %q: %w", v.DriverVersion, err)
		}
	}
	if v.ChartVersion != "" {
		if _, err := version.Parse(v.ChartVersion); err != nil {
			return fmt.Errorf("invalid chart version %q: %w", v.ChartVersion, err)
		}
	}
	switch v.MIGStrategy {
	case timeslice.MIGStrategyNone, timeslice.MIGStrategySingle, timeslice.MIGStrategyMixed:
	default:
		return fmt.Errorf("invalid MIG strategy: %s", v.MIGStrategy)
	}
	if v.DevicePluginConfigMap == "" {
		return fmt.Errorf("device plugin config map cannot be empty")
	}
	if v.DevicePluginDefault == "" {
		return fmt.Errorf("device plugin default profile cannot be empty")
	}
	return nil
}
