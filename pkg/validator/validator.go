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

package validator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8s "k8s.io/client-go/kubernetes"

	"github.com/NVIDIA/gpuslice/pkg/defaults"
	apperrors "github.com/NVIDIA/gpuslice/pkg/errors"
	"github.com/NVIDIA/gpuslice/pkg/k8s/client"
	"github.com/NVIDIA/gpuslice/pkg/k8s/node"
	"github.com/NVIDIA/gpuslice/pkg/metrics"
	"github.com/NVIDIA/gpuslice/pkg/timeslice"
	"github.com/NVIDIA/gpuslice/pkg/version"
)

// Check names as they appear in results and metrics.
const (
	CheckNodesReady        = "nodes-ready"
	CheckProfileLabels     = "device-plugin-config"
	CheckTimeSlicingConfig = "time-slicing-config"
	CheckGPUCapacity       = "gpu-capacity"
	CheckOperatorPods      = "operator-pods"
	CheckDriverVersion     = "driver-version"
)

// Options configures a validation run.
type Options struct {
	// Kubeconfig is an optional explicit kubeconfig path.
	Kubeconfig string
	// Namespace is the GPU Operator namespace. Defaults to gpu-operator.
	Namespace string
	// ConfigMapName is the device plugin config ConfigMap name.
	ConfigMapName string
	// ExpectedGPUNodes fails the readiness check when fewer GPU nodes are
	// found. Zero disables the count assertion.
	ExpectedGPUNodes int
	// MinDriverVersion raises the minimum driver version the driver check
	// accepts. Empty keeps the built-in floor.
	MinDriverVersion string

	// Client overrides the cluster client, used in tests.
	Client k8s.Interface
}

func (o *Options) complete() {
	if o.Namespace == "" {
		o.Namespace = timeslice.DefaultNamespace
	}
	if o.ConfigMapName == "" {
		o.ConfigMapName = timeslice.DefaultConfigMapName
	}
}

// minSupportedDriver is the oldest data center driver branch the GPU
// Operator's device plugin sharing config works with (CUDA 12 minimum).
var minSupportedDriver = version.MustParse("525.60.13")

// Validator evaluates cluster state against a declared profile set.
type Validator struct {
	client    k8s.Interface
	profiles  timeslice.ProfileSet
	opts      Options
	minDriver version.Version
}

// New creates a Validator for the given profile set.
func New(profiles timeslice.ProfileSet, opts Options) (*Validator, error) {
	if err := profiles.Validate(); err != nil {
		return nil, err
	}
	opts.complete()

	minDriver := minSupportedDriver
	if opts.MinDriverVersion != "" {
		parsed, err := version.Parse(opts.MinDriverVersion)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInvalidRequest,
				"invalid minimum driver version "+opts.MinDriverVersion, err)
		}
		minDriver = parsed
	}

	cs := opts.Client
	if cs == nil {
		var err error
		cs, _, err = client.GetWithKubeconfig(opts.Kubeconfig)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeUnavailable, "failed to get kubernetes client", err)
		}
	}

	return &Validator{client: cs, profiles: profiles, opts: opts, minDriver: minDriver}, nil
}

// clusterState is the cluster data all checks evaluate against, fetched
// once per run.
type clusterState struct {
	nodes     []*node.GPUNode
	configMap *corev1.ConfigMap
	pods      []corev1.Pod
}

// Run fetches cluster state and evaluates all checks. The returned error
// covers fetch failures only; check failures are reported in the result
// (see ValidationResult.Err).
func (v *Validator) Run(ctx context.Context) (*ValidationResult, error) {
	started := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, defaults.CLIValidateTimeout)
	defer cancel()

	state, err := v.fetch(runCtx)
	if err != nil {
		return nil, err
	}

	result := NewValidationResult(v.opts.Namespace)
	checks := []func(*clusterState) CheckResult{
		v.checkNodesReady,
		v.checkProfileLabels,
		v.checkTimeSlicingConfig,
		v.checkGPUCapacity,
		v.checkOperatorPods,
		v.checkDriverVersion,
	}
	for _, check := range checks {
		c := check(state)
		metrics.ObserveValidationCheck(c.Name, string(c.Status))
		result.Results = append(result.Results, c)
	}

	result.finalize(started)
	slog.Info("validation complete",
		"status", result.Summary.Status,
		"passed", result.Summary.Passed,
		"failed", result.Summary.Failed,
		"skipped", result.Summary.Skipped)

	return result, nil
}

// fetch pulls nodes, the device plugin ConfigMap, and operator pods
// concurrently.
func (v *Validator) fetch(ctx context.Context) (*clusterState, error) {
	state := &clusterState{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		nodes, err := node.GPUSummary(gctx, node.ListOptions{Client: v.client})
		if err != nil {
			return err
		}
		state.nodes = nodes
		return nil
	})

	g.Go(func() error {
		cm, err := v.client.CoreV1().ConfigMaps(v.opts.Namespace).
			Get(gctx, v.opts.ConfigMapName, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			return nil // reported by the config check, not a fetch failure
		}
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCodeUnavailable, "failed to get time-slicing ConfigMap", err)
		}
		state.configMap = cm
		return nil
	})

	g.Go(func() error {
		pods, err := v.client.CoreV1().Pods(v.opts.Namespace).List(gctx, metav1.ListOptions{})
		if err != nil {
			return apperrors.Wrap(apperrors.ErrCodeUnavailable, "failed to list operator pods", err)
		}
		state.pods = pods.Items
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return state, nil
}

func (v *Validator) checkNodesReady(state *clusterState) CheckResult {
	c := CheckResult{Name: CheckNodesReady}

	expected := "all GPU nodes ready"
	if v.opts.ExpectedGPUNodes > 0 {
		expected = fmt.Sprintf("%d GPU nodes ready", v.opts.ExpectedGPUNodes)
	}
	c.Expected = expected

	ready := 0
	var notReady []string
	for _, n := range state.nodes {
		if n.Ready {
			ready++
		} else {
			notReady = append(notReady, n.Name)
		}
	}
	c.Actual = fmt.Sprintf("%d/%d ready", ready, len(state.nodes))

	switch {
	case len(state.nodes) == 0:
		c.Status = CheckStatusFailed
		c.Message = "no nodes with label " + timeslice.GPUPresentLabel + "=true"
	case len(notReady) > 0:
		c.Status = CheckStatusFailed
		c.Message = "not ready: " + strings.Join(notReady, ", ")
	case v.opts.ExpectedGPUNodes > 0 && ready < v.opts.ExpectedGPUNodes:
		c.Status = CheckStatusFailed
	default:
		c.Status = CheckStatusPassed
	}
	return c
}

func (v *Validator) checkProfileLabels(state *clusterState) CheckResult {
	c := CheckResult{
		Name:     CheckProfileLabels,
		Expected: "every GPU node labeled with a declared profile",
	}

	var unlabeled, unknown []string
	for _, n := range state.nodes {
		if n.Profile == "" {
			unlabeled = append(unlabeled, n.Name)
			continue
		}
		if _, err := v.profiles.Get(n.Profile); err != nil {
			unknown = append(unknown, fmt.Sprintf("%s=%s", n.Name, n.Profile))
		}
	}

	switch {
	case len(state.nodes) == 0:
		c.Status = CheckStatusSkipped
		c.Actual = "no GPU nodes"
	case len(unlabeled) > 0:
		c.Status = CheckStatusFailed
		c.Actual = "unlabeled: " + strings.Join(unlabeled, ", ")
		c.Message = "nodes without " + timeslice.NodeConfigLabel + " fall back to the default profile"
	case len(unknown) > 0:
		c.Status = CheckStatusFailed
		c.Actual = "undeclared profiles: " + strings.Join(unknown, ", ")
	default:
		c.Status = CheckStatusPassed
		c.Actual = fmt.Sprintf("%d nodes labeled", len(state.nodes))
	}
	return c
}

func (v *Validator) checkTimeSlicingConfig(state *clusterState) CheckResult {
	c := CheckResult{
		Name:     CheckTimeSlicingConfig,
		Expected: fmt.Sprintf("ConfigMap %s/%s matches declared profiles", v.opts.Namespace, v.opts.ConfigMapName),
	}

	if state.configMap == nil {
		c.Status = CheckStatusFailed
		c.Actual = "ConfigMap not found"
		return c
	}

	var mismatches []string
	for _, p := range v.profiles.Profiles {
		content, ok := state.configMap.Data[p.Name]
		if !ok {
			mismatches = append(mismatches, p.Name+": missing")
			continue
		}

		parsed, err := timeslice.ParseProfileData(content)
		if err != nil {
			mismatches = append(mismatches, p.Name+": unparseable")
			continue
		}
		if parsed.Replicas != p.Replicas {
			mismatches = append(mismatches,
				fmt.Sprintf("%s: replicas %d != %d", p.Name, parsed.Replicas, p.Replicas))
		}
		if parsed.Resource != timeslice.ResourceGPU {
			mismatches = append(mismatches, p.Name+": unexpected resource "+parsed.Resource)
		}
	}

	if len(mismatches) > 0 {
		c.Status = CheckStatusFailed
		c.Actual = strings.Join(mismatches, "; ")
		return c
	}

	c.Status = CheckStatusPassed
	c.Actual = fmt.Sprintf("%d profiles in sync", len(v.profiles.Profiles))
	return c
}

func (v *Validator) checkGPUCapacity(state *clusterState) CheckResult {
	c := CheckResult{
		Name:     CheckGPUCapacity,
		Expected: "capacity = physical GPUs x profile replicas",
	}

	if len(state.nodes) == 0 {
		c.Status = CheckStatusSkipped
		c.Actual = "no GPU nodes"
		return c
	}

	var mismatches []string
	checked := 0
	for _, n := range state.nodes {
		profileName := n.Profile
		if profileName == "" {
			profileName = v.profiles.Default
		}
		profile, err := v.profiles.Get(profileName)
		if err != nil {
			// reported by the profile label check
			continue
		}

		want, err := profile.ExpectedCapacity(n.PhysicalGPUs)
		if err != nil {
			continue
		}
		checked++
		if n.Capacity != want {
			mismatches = append(mismatches,
				fmt.Sprintf("%s: %d != %d", n.Name, n.Capacity, want))
		}
	}

	switch {
	case checked == 0:
		c.Status = CheckStatusSkipped
		c.Actual = "no nodes with resolvable profiles"
	case len(mismatches) > 0:
		c.Status = CheckStatusFailed
		c.Actual = strings.Join(mismatches, "; ")
		c.Message = "device plugin may still be restarting after a config change"
	default:
		c.Status = CheckStatusPassed
		c.Actual = fmt.Sprintf("%d nodes at sliced capacity", checked)
	}
	return c
}

func (v *Validator) checkOperatorPods(state *clusterState) CheckResult {
	c := CheckResult{
		Name:     CheckOperatorPods,
		Expected: "all pods in " + v.opts.Namespace + " running",
	}

	if len(state.pods) == 0 {
		c.Status = CheckStatusFailed
		c.Actual = "no pods found"
		c.Message = "is the GPU Operator installed?"
		return c
	}

	var unhealthy []string
	for i := range state.pods {
		pod := &state.pods[i]
		if pod.Status.Phase != corev1.PodRunning && pod.Status.Phase != corev1.PodSucceeded {
			unhealthy = append(unhealthy, fmt.Sprintf("%s (%s)", pod.Name, pod.Status.Phase))
		}
	}

	if len(unhealthy) > 0 {
		c.Status = CheckStatusFailed
		c.Actual = strings.Join(unhealthy, "; ")
		return c
	}

	c.Status = CheckStatusPassed
	c.Actual = fmt.Sprintf("%d pods running", len(state.pods))
	return c
}

func (v *Validator) checkDriverVersion(state *clusterState) CheckResult {
	c := CheckResult{
		Name:     CheckDriverVersion,
		Expected: fmt.Sprintf("single driver version >= %s across GPU nodes", v.minDriver),
	}

	versions := make(map[string][]string)
	for _, n := range state.nodes {
		if n.DriverVersion == "" {
			continue
		}
		versions[n.DriverVersion] = append(versions[n.DriverVersion], n.Name)
	}

	switch len(versions) {
	case 0:
		c.Status = CheckStatusSkipped
		c.Actual = "driver version labels not published yet"
	case 1:
		for ver := range versions {
			c.Actual = ver
		}
		parsed, err := version.Parse(c.Actual)
		switch {
		case err != nil:
			c.Status = CheckStatusFailed
			c.Message = "driver version label is not a version: " + err.Error()
		case !parsed.EqualsOrNewer(v.minDriver):
			c.Status = CheckStatusFailed
			c.Message = fmt.Sprintf("driver %s is older than the required %s", c.Actual, v.minDriver)
		default:
			c.Status = CheckStatusPassed
		}
	default:
		c.Status = CheckStatusFailed
		var parts []string
		for ver, names := range versions {
			parts = append(parts, fmt.Sprintf("%s: %s", ver, strings.Join(names, ",")))
		}
		sort.Strings(parts)
		c.Actual = strings.Join(parts, "; ")
	}
	return c
}
