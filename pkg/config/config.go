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

package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	apperrors "github.com/NVIDIA/gpuslice/pkg/errors"
	"github.com/NVIDIA/gpuslice/pkg/timeslice"
)

// EnvPrefix is the environment variable prefix for config overrides,
// e.g. GPUSLICE_LOCATION=westus3.
const EnvPrefix = "GPUSLICE"

// Cluster is the full cluster configuration.
type Cluster struct {
	// Name is the AKS cluster name.
	Name string `mapstructure:"name" yaml:"name" validate:"required,hostname_rfc1123"`

	// ResourceGroup is the Azure resource group holding all resources.
	ResourceGroup string `mapstructure:"resourceGroup" yaml:"resourceGroup" validate:"required"`

	// Location is the Azure region (e.g. "westus3").
	Location string `mapstructure:"location" yaml:"location" validate:"required,azure_region"`

	// KubernetesVersion pins the AKS control plane version. Empty means
	// the region default.
	KubernetesVersion string `mapstructure:"kubernetesVersion" yaml:"kubernetesVersion,omitempty" validate:"omitempty,semver_loose"`

	Network      Network      `mapstructure:"network" yaml:"network"`
	SystemPool   Pool         `mapstructure:"systemPool" yaml:"systemPool"`
	GPUPool      GPUPool      `mapstructure:"gpuPool" yaml:"gpuPool"`
	LogAnalytics LogAnalytics `mapstructure:"logAnalytics" yaml:"logAnalytics"`
	Operator     Operator     `mapstructure:"operator" yaml:"operator"`

	// TimeSlicing declares the available sharing profiles.
	TimeSlicing timeslice.ProfileSet `mapstructure:"timeSlicing" yaml:"timeSlicing"`

	// Tags are applied to every provisioned Azure resource.
	Tags map[string]string `mapstructure:"tags" yaml:"tags,omitempty"`
}

// Network declares the VNet and subnet for the cluster.
type Network struct {
	VNetName   string `mapstructure:"vnetName" yaml:"vnetName" validate:"required"`
	VNetCIDR   string `mapstructure:"vnetCIDR" yaml:"vnetCIDR" validate:"required,cidrv4"`
	SubnetName string `mapstructure:"subnetName" yaml:"subnetName" validate:"required"`
	SubnetCIDR string `mapstructure:"subnetCIDR" yaml:"subnetCIDR" validate:"required,cidrv4"`
}

// Pool declares the system node pool.
type Pool struct {
	VMSize string `mapstructure:"vmSize" yaml:"vmSize" validate:"required,azure_vm_size"`
	Count  int    `mapstructure:"count" yaml:"count" validate:"min=1,max=100"`
}

// GPUPool declares the GPU node pool. The VM size must be an N-series SKU.
type GPUPool struct {
	Name   string `mapstructure:"name" yaml:"name" validate:"required,aks_pool_name"`
	VMSize string `mapstructure:"vmSize" yaml:"vmSize" validate:"required,azure_gpu_vm_size"`
	Count  int    `mapstructure:"count" yaml:"count" validate:"min=0,max=100"`
	Spot   bool   `mapstructure:"spot" yaml:"spot,omitempty"`
}

// LogAnalytics declares the monitoring workspace.
type LogAnalytics struct {
	Enabled       bool `mapstructure:"enabled" yaml:"enabled"`
	RetentionDays int  `mapstructure:"retentionDays" yaml:"retentionDays" validate:"omitempty,min=30,max=730"`
}

// Operator declares GPU Operator install settings.
type Operator struct {
	Namespace      string `mapstructure:"namespace" yaml:"namespace" validate:"required,hostname_rfc1123"`
	ChartVersion   string `mapstructure:"chartVersion" yaml:"chartVersion,omitempty"`
	DriverVersion  string `mapstructure:"driverVersion" yaml:"driverVersion,omitempty"`
	DriverRegistry string `mapstructure:"driverRegistry" yaml:"driverRegistry" validate:"required"`
}

// Validation patterns for Azure naming constraints.
var (
	azureRegionRx  = regexp.MustCompile(`^[a-z][a-z0-9]+$`)
	azureVMSizeRx  = regexp.MustCompile(`^Standard_[A-Za-z0-9_]+$`)
	azureGPUSizeRx = regexp.MustCompile(`^Standard_N[A-Za-z0-9_]+$`)
	aksPoolNameRx  = regexp.MustCompile(`^[a-z][a-z0-9]{0,11}$`)
	semverLooseRx  = regexp.MustCompile(`^v?\d+(\.\d+){0,2}$`)
)

// newValidator builds the struct validator with Azure-specific rules.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	rules := map[string]*regexp.Regexp{
		"azure_region":      azureRegionRx,
		"azure_vm_size":     azureVMSizeRx,
		"azure_gpu_vm_size": azureGPUSizeRx,
		"aks_pool_name":     aksPoolNameRx,
		"semver_loose":      semverLooseRx,
	}

	for tag, rx := range rules {
		// Errors only occur for empty tags or duplicate registration.
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return rx.MatchString(fl.Field().String())
		})
	}

	return v
}

// Validate checks the configuration against structural and Azure rules.
func (c *Cluster) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return apperrors.WrapWithContext(apperrors.ErrCodeInvalidRequest,
				"invalid cluster configuration", err,
				map[string]any{"fields": strings.Join(fields, ", ")})
		}
		return apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "invalid cluster configuration", err)
	}

	return c.TimeSlicing.Validate()
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}

// Default returns a configuration with sensible defaults. Callers still
// need to set Name, ResourceGroup, and Location before Validate passes.
func Default() *Cluster {
	return &Cluster{
		Network: Network{
			VNetName:   "gpu-vnet",
			VNetCIDR:   "10.10.0.0/16",
			SubnetName: "aks-subnet",
			SubnetCIDR: "10.10.1.0/24",
		},
		SystemPool: Pool{
			VMSize: "Standard_D4s_v5",
			Count:  2,
		},
		GPUPool: GPUPool{
			Name:   "gpupool",
			VMSize: "Standard_NC24ads_A100_v4",
			Count:  1,
		},
		LogAnalytics: LogAnalytics{
			Enabled:       true,
			RetentionDays: 30,
		},
		Operator: Operator{
			Namespace:      timeslice.DefaultNamespace,
			DriverRegistry: "nvcr.io/nvidia",
		},
		TimeSlicing: timeslice.DefaultProfiles(),
	}
}

// Load reads the configuration from path, applies GPUSLICE_* environment
// overrides, and validates the result.
func Load(path string) (*Cluster, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, apperrors.WrapWithContext(apperrors.ErrCodeNotFound,
			"failed to read config file", err, map[string]any{"path": path})
	}

	cfg := &Cluster{}
	// Decode through mapstructure directly so zero-value handling and
	// embedded profile types behave the same as programmatic construction.
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create config decoder", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidRequest, "failed to decode config file", err)
	}

	applyFallbacks(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := Default()

	v.SetDefault("network.vnetName", def.Network.VNetName)
	v.SetDefault("network.vnetCIDR", def.Network.VNetCIDR)
	v.SetDefault("network.subnetName", def.Network.SubnetName)
	v.SetDefault("network.subnetCIDR", def.Network.SubnetCIDR)
	v.SetDefault("systemPool.vmSize", def.SystemPool.VMSize)
	v.SetDefault("systemPool.count", def.SystemPool.Count)
	v.SetDefault("gpuPool.name", def.GPUPool.Name)
	v.SetDefault("gpuPool.vmSize", def.GPUPool.VMSize)
	v.SetDefault("gpuPool.count", def.GPUPool.Count)
	v.SetDefault("logAnalytics.enabled", def.LogAnalytics.Enabled)
	v.SetDefault("logAnalytics.retentionDays", def.LogAnalytics.RetentionDays)
	v.SetDefault("operator.namespace", def.Operator.Namespace)
	v.SetDefault("operator.driverRegistry", def.Operator.DriverRegistry)
}

// applyFallbacks fills nested defaults that viper cannot express, such as
// the built-in profile set when timeSlicing is omitted entirely.
func applyFallbacks(cfg *Cluster) {
	if len(cfg.TimeSlicing.Profiles) == 0 {
		cfg.TimeSlicing = timeslice.DefaultProfiles()
	}
	if cfg.TimeSlicing.Default == "" && len(cfg.TimeSlicing.Profiles) > 0 {
		cfg.TimeSlicing.Default = cfg.TimeSlicing.Profiles[0].Name
	}
}
