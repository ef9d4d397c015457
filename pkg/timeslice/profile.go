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

package timeslice

import (
	"fmt"
	"regexp"

	apperrors "github.com/NVIDIA/gpuslice/pkg/errors"
)

// GPU architecture profile names recognized out of the box.
const (
	ArchVolta  = "volta"
	ArchTuring = "turing"
	ArchAmpere = "ampere"
	ArchAda    = "ada"
	ArchHopper = "hopper"
)

// Replica bounds for a single physical GPU. One replica means no sharing,
// so the minimum useful value is 2. The upper bound mirrors the device
// plugin's practical limit before per-slice memory becomes unusable.
const (
	MinReplicas = 2
	MaxReplicas = 48
)

// MIG strategies accepted by the device plugin. Time-slicing here assumes
// MIG is disabled, so "none" is the default.
const (
	MIGStrategyNone   = "none"
	MIGStrategySingle = "single"
	MIGStrategyMixed  = "mixed"
)

// ResourceGPU is the extended resource advertised to the scheduler.
const ResourceGPU = "nvidia.com/gpu"

// profileNameRx matches valid profile names (ConfigMap key constraints).
var profileNameRx = regexp.MustCompile(`^[a-z0-9]([a-z0-9.-]{0,61}[a-z0-9])?$`)

// Profile maps a GPU architecture name to a time-slicing replica count.
type Profile struct {
	// Name is the profile key, typically a GPU architecture ("ampere").
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Replicas is the number of virtual GPUs advertised per physical GPU.
	Replicas int `json:"replicas" yaml:"replicas" mapstructure:"replicas"`

	// MIGStrategy is the device plugin MIG strategy. Defaults to "none".
	MIGStrategy string `json:"migStrategy,omitempty" yaml:"migStrategy,omitempty" mapstructure:"migStrategy"`

	// RenameByDefault renames shared resources to nvidia.com/gpu.shared.
	RenameByDefault bool `json:"renameByDefault,omitempty" yaml:"renameByDefault,omitempty" mapstructure:"renameByDefault"`

	// FailRequestsGreaterThanOne rejects pods requesting more than one
	// slice, which would not grant additional compute anyway.
	FailRequestsGreaterThanOne bool `json:"failRequestsGreaterThanOne,omitempty" yaml:"failRequestsGreaterThanOne,omitempty" mapstructure:"failRequestsGreaterThanOne"`
}

// Validate checks the profile against device plugin constraints.
func (p Profile) Validate() error {
	if !profileNameRx.MatchString(p.Name) {
		return apperrors.Newf(apperrors.ErrCodeInvalidRequest, "invalid profile name: %q", p.Name)
	}
	if p.Replicas < MinReplicas || p.Replicas > MaxReplicas {
		return apperrors.Newf(apperrors.ErrCodeInvalidRequest,
			"profile %q: replicas must be between %d and %d, got %d",
			p.Name, MinReplicas, MaxReplicas, p.Replicas)
	}
	switch p.migStrategy() {
	case MIGStrategyNone, MIGStrategySingle, MIGStrategyMixed:
	default:
		return apperrors.Newf(apperrors.ErrCodeInvalidRequest,
			"profile %q: unknown MIG strategy: %q", p.Name, p.MIGStrategy)
	}
	return nil
}

func (p Profile) migStrategy() string {
	if p.MIGStrategy == "" {
		return MIGStrategyNone
	}
	return p.MIGStrategy
}

// ProfileSet is a named collection of profiles with a default selection.
type ProfileSet struct {
	// Default is the profile name the device plugin falls back to for
	// nodes without an explicit profile label.
	Default string `json:"default" yaml:"default" mapstructure:"default"`

	// Profiles are the available time-slicing profiles.
	Profiles []Profile `json:"profiles" yaml:"profiles" mapstructure:"profiles"`
}

// Validate checks profile uniqueness and that Default names a declared profile.
func (s ProfileSet) Validate() error {
	if len(s.Profiles) == 0 {
		return apperrors.New(apperrors.ErrCodeInvalidRequest, "at least one profile is required")
	}

	seen := make(map[string]bool, len(s.Profiles))
	for _, p := range s.Profiles {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Name] {
			return apperrors.Newf(apperrors.ErrCodeInvalidRequest, "duplicate profile name: %q", p.Name)
		}
		seen[p.Name] = true
	}

	if s.Default == "" {
		return apperrors.New(apperrors.ErrCodeInvalidRequest, "default profile is required")
	}
	if !seen[s.Default] {
		return apperrors.Newf(apperrors.ErrCodeNotFound, "default profile %q is not declared", s.Default)
	}
	return nil
}

// Get returns the named profile.
func (s ProfileSet) Get(name string) (Profile, error) {
	for _, p := range s.Profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, apperrors.Newf(apperrors.ErrCodeNotFound, "profile %q is not declared", name)
}

// Names returns the declared profile names in declaration order.
func (s ProfileSet) Names() []string {
	names := make([]string, 0, len(s.Profiles))
	for _, p := range s.Profiles {
		names = append(names, p.Name)
	}
	return names
}

// DefaultProfiles returns the built-in per-architecture profile set.
// Replica counts follow the per-slice memory available on typical SKUs
// for each architecture.
func DefaultProfiles() ProfileSet {
	return ProfileSet{
		Default: ArchAmpere,
		Profiles: []Profile{
			{Name: ArchVolta, Replicas: 4, MIGStrategy: MIGStrategyNone},
			{Name: ArchTuring, Replicas: 4, MIGStrategy: MIGStrategyNone},
			{Name: ArchAmpere, Replicas: 8, MIGStrategy: MIGStrategyNone},
			{Name: ArchAda, Replicas: 8, MIGStrategy: MIGStrategyNone},
			{Name: ArchHopper, Replicas: 8, MIGStrategy: MIGStrategyNone},
		},
	}
}

// SupportedArchitectures returns the built-in architecture names.
func SupportedArchitectures() []string {
	return []string{ArchVolta, ArchTuring, ArchAmpere, ArchAda, ArchHopper}
}

// IsKnownArchitecture reports whether name is a built-in architecture.
func IsKnownArchitecture(name string) bool {
	switch name {
	case ArchVolta, ArchTuring, ArchAmpere, ArchAda, ArchHopper:
		return true
	default:
		return false
	}
}

// ExpectedCapacity returns the nvidia.com/gpu capacity a node should
// advertise for the given physical GPU count under profile p.
func (p Profile) ExpectedCapacity(physicalGPUs int) (int, error) {
	if physicalGPUs < 1 {
		return 0, fmt.Errorf("physical GPU count must be positive, got %d", physicalGPUs)
	}
	return physicalGPUs * p.Replicas, nil
}
