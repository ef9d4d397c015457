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

package azure

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/NVIDIA/gpuslice/pkg/config"
	"github.com/NVIDIA/gpuslice/pkg/defaults"
	apperrors "github.com/NVIDIA/gpuslice/pkg/errors"
	"github.com/NVIDIA/gpuslice/pkg/metrics"
)

// provisioningSucceeded is the terminal success state reported by ARM.
const provisioningSucceeded = "Succeeded"

// StepResult captures one provisioning step for the report.
type StepResult struct {
	Name     string        `json:"name" yaml:"name"`
	Status   string        `json:"status" yaml:"status"`
	Detail   string        `json:"detail,omitempty" yaml:"detail,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Report summarizes a provision or teardown run.
type Report struct {
	// RunID correlates log lines and report entries for one invocation.
	RunID     string        `json:"runId" yaml:"runId"`
	Cluster   string        `json:"cluster" yaml:"cluster"`
	Location  string        `json:"location" yaml:"location"`
	Steps     []StepResult  `json:"steps" yaml:"steps"`
	StartedAt time.Time     `json:"startedAt" yaml:"startedAt"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Provisioner creates the Azure resource graph for a GPU cluster.
type Provisioner struct {
	runner *Runner
	cfg    *config.Cluster
}

// NewProvisioner creates a Provisioner for the given cluster config.
func NewProvisioner(runner *Runner, cfg *config.Cluster) *Provisioner {
	return &Provisioner{runner: runner, cfg: cfg}
}

// Provision runs all provisioning steps in order: resource group, Log
// Analytics workspace, VNet and subnet, AKS cluster, GPU node pool, and
// kubeconfig merge. Every step is idempotent: existing resources are
// detected and skipped.
func (p *Provisioner) Provision(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Cluster:   p.cfg.Name,
		Location:  p.cfg.Location,
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		metrics.ObserveOperation("provision", report.Duration)
	}()

	slog.Info("provisioning cluster",
		"run_id", report.RunID,
		"cluster", p.cfg.Name,
		"resource_group", p.cfg.ResourceGroup,
		"location", p.cfg.Location)

	steps := []struct {
		name string
		fn   func(context.Context) (string, error)
	}{
		{"resource-group", p.ensureGroup},
		{"log-analytics", p.ensureWorkspace},
		{"vnet", p.ensureVNet},
		{"aks-cluster", p.ensureCluster},
		{"gpu-node-pool", p.ensureGPUNodePool},
		{"kubeconfig", p.getCredentials},
	}

	for _, step := range steps {
		start := time.Now()
		detail, err := step.fn(ctx)
		result := StepResult{
			Name:     step.name,
			Status:   "succeeded",
			Detail:   detail,
			Duration: time.Since(start),
		}
		if err != nil {
			result.Status = "failed"
			result.Detail = err.Error()
			report.Steps = append(report.Steps, result)
			return report, err
		}
		report.Steps = append(report.Steps, result)
		slog.Info("provisioning step complete",
			"run_id", report.RunID,
			"step", step.name,
			"duration", result.Duration.Round(time.Second))
	}

	return report, nil
}

func (p *Provisioner) ensureGroup(ctx context.Context) (string, error) {
	exists, err := p.runner.AZ(ctx, defaults.AzCommandTimeout,
		"group", "exists", "--name", p.cfg.ResourceGroup)
	if err != nil {
		return "", err
	}
	if exists.Bool() {
		return "already exists", nil
	}

	args := []string{
		"group", "create",
		"--name", p.cfg.ResourceGroup,
		"--location", p.cfg.Location,
	}
	args = appendTags(args, p.cfg.Tags)

	out, err := p.runner.AZ(ctx, defaults.AzCommandTimeout, args...)
	if err != nil {
		return "", err
	}
	return out.Get("id").String(), nil
}

func (p *Provisioner) ensureWorkspace(ctx context.Context) (string, error) {
	if !p.cfg.LogAnalytics.Enabled {
		return "disabled", nil
	}

	name := p.cfg.Name + "-logs"
	existing, err := p.runner.AZ(ctx, defaults.AzCommandTimeout,
		"monitor", "log-analytics", "workspace", "show",
		"--resource-group", p.cfg.ResourceGroup,
		"--workspace-name", name)
	if err == nil && existing.Get("id").Exists() {
		return "already exists", nil
	}

	out, err := p.runner.AZ(ctx, defaults.AzProvisionTimeout,
		"monitor", "log-analytics", "workspace", "create",
		"--resource-group", p.cfg.ResourceGroup,
		"--workspace-name", name,
		"--location", p.cfg.Location,
		"--retention-time", strconv.Itoa(p.cfg.LogAnalytics.RetentionDays))
	if err != nil {
		return "", err
	}
	return out.Get("id").String(), nil
}

func (p *Provisioner) ensureVNet(ctx context.Context) (string, error) {
	existing, err := p.runner.AZ(ctx, defaults.AzCommandTimeout,
		"network", "vnet", "show",
		"--resource-group", p.cfg.ResourceGroup,
		"--name", p.cfg.Network.VNetName)
	if err == nil && existing.Get("id").Exists() {
		return "already exists", nil
	}

	out, err := p.runner.AZ(ctx, defaults.AzProvisionTimeout,
		"network", "vnet", "create",
		"--resource-group", p.cfg.ResourceGroup,
		"--name", p.cfg.Network.VNetName,
		"--address-prefix", p.cfg.Network.VNetCIDR,
		"--subnet-name", p.cfg.Network.SubnetName,
		"--subnet-prefix", p.cfg.Network.SubnetCIDR)
	if err != nil {
		return "", err
	}
	return out.Get("newVNet.id").String(), nil
}

// SubnetID returns the ARM resource id of the cluster subnet.
func (p *Provisioner) SubnetID(ctx context.Context) (string, error) {
	out, err := p.runner.AZ(ctx, defaults.AzCommandTimeout,
		"network", "vnet", "subnet", "show",
		"--resource-group", p.cfg.ResourceGroup,
		"--vnet-name", p.cfg.Network.VNetName,
		"--name", p.cfg.Network.SubnetName)
	if err != nil {
		return "", err
	}
	id := out.Get("id").String()
	if id == "" {
		return "", apperrors.Newf(apperrors.ErrCodeNotFound,
			"subnet %s/%s not found", p.cfg.Network.VNetName, p.cfg.Network.SubnetName)
	}
	return id, nil
}

func (p *Provisioner) ensureCluster(ctx context.Context) (string, error) {
	existing, err := p.runner.AZ(ctx, defaults.AzCommandTimeout,
		"aks", "show",
		"--resource-group", p.cfg.ResourceGroup,
		"--name", p.cfg.Name)
	if err == nil && existing.Get("id").Exists() {
		if state := existing.Get("provisioningState").String(); state != provisioningSucceeded {
			return "", apperrors.Newf(apperrors.ErrCodeUnavailable,
				"cluster %s exists in state %s", p.cfg.Name, state)
		}
		return "already exists", nil
	}

	subnetID, err := p.SubnetID(ctx)
	if err != nil {
		return "", err
	}

	args := []string{
		"aks", "create",
		"--resource-group", p.cfg.ResourceGroup,
		"--name", p.cfg.Name,
		"--location", p.cfg.Location,
		"--node-count", strconv.Itoa(p.cfg.SystemPool.Count),
		"--node-vm-size", p.cfg.SystemPool.VMSize,
		"--vnet-subnet-id", subnetID,
		"--network-plugin", "azure",
		"--generate-ssh-keys",
	}
	if p.cfg.KubernetesVersion != "" {
		args = append(args, "--kubernetes-version", p.cfg.KubernetesVersion)
	}
	if p.cfg.LogAnalytics.Enabled {
		args = append(args, "--enable-addons", "monitoring")
	}
	args = appendTags(args, p.cfg.Tags)

	out, err := p.runner.AZ(ctx, defaults.AzProvisionTimeout, args...)
	if err != nil {
		return "", err
	}

	if state := out.Get("provisioningState").String(); state != provisioningSucceeded {
		return "", p.waitProvisioned(ctx, "cluster "+p.cfg.Name, func(c context.Context) (gjson.Result, error) {
			return p.runner.AZ(c, defaults.AzCommandTimeout,
				"aks", "show",
				"--resource-group", p.cfg.ResourceGroup,
				"--name", p.cfg.Name)
		})
	}
	return out.Get("id").String(), nil
}

func (p *Provisioner) ensureGPUNodePool(ctx context.Context) (string, error) {
	if p.cfg.GPUPool.Count == 0 {
		return "skipped (count=0)", nil
	}

	existing, err := p.runner.AZ(ctx, defaults.AzCommandTimeout,
		"aks", "nodepool", "show",
		"--resource-group", p.cfg.ResourceGroup,
		"--cluster-name", p.cfg.Name,
		"--name", p.cfg.GPUPool.Name)
	if err == nil && existing.Get("name").Exists() {
		return "already exists", nil
	}

	args := []string{
		"aks", "nodepool", "add",
		"--resource-group", p.cfg.ResourceGroup,
		"--cluster-name", p.cfg.Name,
		"--name", p.cfg.GPUPool.Name,
		"--node-count", strconv.Itoa(p.cfg.GPUPool.Count),
		"--node-vm-size", p.cfg.GPUPool.VMSize,
		// The GPU Operator manages the full driver stack; keep the AKS
		// preinstalled driver off the nodes.
		"--gpu-driver", "none",
		"--node-taints", "nvidia.com/gpu=present:NoSchedule",
		"--labels", "gpupool=true",
	}
	if p.cfg.GPUPool.Spot {
		args = append(args,
			"--priority", "Spot",
			"--eviction-policy", "Delete",
			"--spot-max-price", "-1")
	}

	out, err := p.runner.AZ(ctx, defaults.AzProvisionTimeout, args...)
	if err != nil {
		return "", err
	}

	if state := out.Get("provisioningState").String(); state != provisioningSucceeded {
		return "", p.waitProvisioned(ctx, "node pool "+p.cfg.GPUPool.Name, func(c context.Context) (gjson.Result, error) {
			return p.runner.AZ(c, defaults.AzCommandTimeout,
				"aks", "nodepool", "show",
				"--resource-group", p.cfg.ResourceGroup,
				"--cluster-name", p.cfg.Name,
				"--name", p.cfg.GPUPool.Name)
		})
	}
	return out.Get("id").String(), nil
}

func (p *Provisioner) getCredentials(ctx context.Context) (string, error) {
	_, err := p.runner.AZ(ctx, defaults.AzCommandTimeout,
		"aks", "get-credentials",
		"--resource-group", p.cfg.ResourceGroup,
		"--name", p.cfg.Name,
		"--overwrite-existing")
	if err != nil {
		return "", err
	}
	return "merged into kubeconfig", nil
}

// waitProvisioned polls an az show call until provisioningState reaches
// Succeeded, failing fast on terminal failure states.
func (p *Provisioner) waitProvisioned(ctx context.Context, what string, show func(context.Context) (gjson.Result, error)) error {
	return p.runner.PollUntil(ctx, defaults.AzProvisionTimeout, what, func(c context.Context) (bool, error) {
		out, err := show(c)
		if err != nil {
			return false, err
		}
		switch state := out.Get("provisioningState").String(); state {
		case provisioningSucceeded:
			return true, nil
		case "Failed", "Canceled":
			return false, apperrors.Newf(apperrors.ErrCodeExternalTool,
				"%s entered terminal state %s", what, state)
		default:
			return false, nil
		}
	})
}

// TeardownOptions configures resource group deletion.
type TeardownOptions struct {
	// NoWait returns immediately after the delete is accepted. Used by
	// emergency teardown where polling is skipped.
	NoWait bool
}

// Teardown deletes the resource group and everything in it. The caller is
// responsible for confirmation; this function does not prompt.
func (p *Provisioner) Teardown(ctx context.Context, opts TeardownOptions) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Cluster:   p.cfg.Name,
		Location:  p.cfg.Location,
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		metrics.ObserveOperation("teardown", report.Duration)
	}()

	exists, err := p.runner.AZ(ctx, defaults.AzCommandTimeout,
		"group", "exists", "--name", p.cfg.ResourceGroup)
	if err != nil {
		return report, err
	}
	if !exists.Bool() {
		report.Steps = append(report.Steps, StepResult{
			Name:   "resource-group-delete",
			Status: "skipped",
			Detail: "resource group does not exist",
		})
		return report, nil
	}

	start := time.Now()
	args := []string{"group", "delete", "--name", p.cfg.ResourceGroup, "--yes"}
	timeout := defaults.AzDeleteTimeout
	if opts.NoWait {
		args = append(args, "--no-wait")
		timeout = defaults.AzCommandTimeout
	}

	if _, err := p.runner.AZ(ctx, timeout, args...); err != nil {
		report.Steps = append(report.Steps, StepResult{
			Name:     "resource-group-delete",
			Status:   "failed",
			Detail:   err.Error(),
			Duration: time.Since(start),
		})
		return report, err
	}

	detail := "deleted"
	if opts.NoWait {
		detail = "deletion accepted (not waiting)"
	}
	report.Steps = append(report.Steps, StepResult{
		Name:     "resource-group-delete",
		Status:   "succeeded",
		Detail:   detail,
		Duration: time.Since(start),
	})

	slog.Info("teardown complete",
		"run_id", report.RunID,
		"resource_group", p.cfg.ResourceGroup,
		"no_wait", opts.NoWait)

	return report, nil
}

func appendTags(args []string, tags map[string]string) []string {
	if len(tags) == 0 {
		return args
	}
	args = append(args, "--tags")
	for k, v := range tags {
		args = append(args, fmt.Sprintf("%s=%s", k, v))
	}
	return args
}
