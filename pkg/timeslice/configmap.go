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
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	accorev1 "k8s.io/client-go/applyconfigurations/core/v1"

	"github.com/NVIDIA/gpuslice/pkg/defaults"
	apperrors "github.com/NVIDIA/gpuslice/pkg/errors"
	"github.com/NVIDIA/gpuslice/pkg/k8s/client"
)

const (
	// DefaultConfigMapName is the device plugin config ConfigMap name.
	DefaultConfigMapName = "time-slicing-config"

	// DefaultNamespace is the GPU Operator namespace.
	DefaultNamespace = "gpu-operator"

	// NodeConfigLabel selects a device plugin config profile per node.
	NodeConfigLabel = "nvidia.com/device-plugin.config"

	// GPUPresentLabel marks nodes with NVIDIA GPUs (set by GFD).
	GPUPresentLabel = "nvidia.com/gpu.present"

	// FieldManager identifies this tool in server-side apply operations.
	FieldManager = "gpuslicectl"
)

// deviceConfig is the device plugin sharing config rendered per profile.
// Field order follows the upstream config file layout.
type deviceConfig struct {
	Version string      `yaml:"version"`
	Flags   configFlags `yaml:"flags"`
	Sharing sharing     `yaml:"sharing"`
}

type configFlags struct {
	MIGStrategy string `yaml:"migStrategy"`
}

type sharing struct {
	TimeSlicing timeSlicing `yaml:"timeSlicing"`
}

type timeSlicing struct {
	RenameByDefault            bool              `yaml:"renameByDefault"`
	FailRequestsGreaterThanOne bool              `yaml:"failRequestsGreaterThanOne"`
	Resources                  []sharedResources `yaml:"resources"`
}

type sharedResources struct {
	Name     string `yaml:"name"`
	Replicas int    `yaml:"replicas"`
}

// RenderProfile renders the device plugin sharing config for one profile.
func RenderProfile(p Profile) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	cfg := deviceConfig{
		Version: "v1",
		Flags:   configFlags{MIGStrategy: p.migStrategy()},
		Sharing: sharing{
			TimeSlicing: timeSlicing{
				RenameByDefault:            p.RenameByDefault,
				FailRequestsGreaterThanOne: p.FailRequestsGreaterThanOne,
				Resources: []sharedResources{
					{Name: ResourceGPU, Replicas: p.Replicas},
				},
			},
		},
	}

	var sb strings.Builder
	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to render profile %q: %w", p.Name, err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// RenderData renders every profile in the set as ConfigMap data entries,
// keyed by profile name.
func RenderData(set ProfileSet) (map[string]string, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}

	data := make(map[string]string, len(set.Profiles))
	for _, p := range set.Profiles {
		content, err := RenderProfile(p)
		if err != nil {
			return nil, err
		}
		data[p.Name] = content
	}
	return data, nil
}

// ParsedProfile is the subset of a rendered profile entry that cluster
// validation compares against the declared profile set.
type ParsedProfile struct {
	Version     string
	MIGStrategy string
	Resource    string
	Replicas    int
}

// ParseProfileData parses a rendered device plugin config entry back into
// its checkable fields. Fails on entries not produced by RenderProfile,
// such as hand-edited ConfigMaps with multiple shared resources.
func ParseProfileData(content string) (*ParsedProfile, error) {
	var cfg deviceConfig
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInvalidRequest,
			"failed to parse device plugin config entry", err)
	}

	resources := cfg.Sharing.TimeSlicing.Resources
	if len(resources) != 1 {
		return nil, apperrors.Newf(apperrors.ErrCodeInvalidRequest,
			"expected exactly one shared resource, found %d", len(resources))
	}

	return &ParsedProfile{
		Version:     cfg.Version,
		MIGStrategy: cfg.Flags.MIGStrategy,
		Resource:    resources[0].Name,
		Replicas:    resources[0].Replicas,
	}, nil
}

// configMapManifest mirrors the ConfigMap wire layout for file rendering.
type configMapManifest struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   manifestMeta      `yaml:"metadata"`
	Data       map[string]string `yaml:"data"`
}

type manifestMeta struct {
	Name      string            `yaml:"name"`
	Namespace string            `yaml:"namespace"`
	Labels    map[string]string `yaml:"labels,omitempty"`
}

// RenderConfigMap renders the complete ConfigMap manifest YAML for the set.
// Suitable for kubectl apply or inclusion in a bundle.
func RenderConfigMap(set ProfileSet, namespace, name string) (string, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if name == "" {
		name = DefaultConfigMapName
	}

	data, err := RenderData(set)
	if err != nil {
		return "", err
	}

	manifest := configMapManifest{
		APIVersion: "v1",
		Kind:       "ConfigMap",
		Metadata: manifestMeta{
			Name:      name,
			Namespace: namespace,
			Labels: map[string]string{
				"app.kubernetes.io/name":       "gpuslice",
				"app.kubernetes.io/managed-by": FieldManager,
			},
		},
		Data: data,
	}

	var sb strings.Builder
	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(2)
	if err := enc.Encode(manifest); err != nil {
		return "", fmt.Errorf("failed to render ConfigMap manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// ApplyOptions configures Apply and LabelNodes.
type ApplyOptions struct {
	// Namespace is the GPU Operator namespace.
	Namespace string
	// Name is the ConfigMap name.
	Name string
	// Kubeconfig is an optional explicit kubeconfig path.
	Kubeconfig string
	// DryRun renders and validates without touching the cluster.
	DryRun bool
	// Client overrides the cluster client, used in tests.
	Client client.Interface
}

func (o *ApplyOptions) complete() {
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if o.Name == "" {
		o.Name = DefaultConfigMapName
	}
}

func (o *ApplyOptions) clientset() (client.Interface, error) {
	if o.Client != nil {
		return o.Client, nil
	}
	cs, _, err := client.GetWithKubeconfig(o.Kubeconfig)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeUnavailable, "failed to get kubernetes client", err)
	}
	return cs, nil
}

// Apply writes the profile set to the device plugin ConfigMap using
// server-side apply. The operation is idempotent: re-applying the same
// set is a no-op from the scheduler's perspective.
func Apply(ctx context.Context, set ProfileSet, opts ApplyOptions) error {
	opts.complete()

	data, err := RenderData(set)
	if err != nil {
		return err
	}

	if opts.DryRun {
		slog.Info("dry-run: skipping ConfigMap apply",
			"namespace", opts.Namespace,
			"name", opts.Name,
			"profiles", set.Names())
		return nil
	}

	cs, err := opts.clientset()
	if err != nil {
		return err
	}

	applyCtx, cancel := context.WithTimeout(ctx, defaults.ConfigMapWriteTimeout)
	defer cancel()

	cm := accorev1.ConfigMap(opts.Name, opts.Namespace).
		WithLabels(map[string]string{
			"app.kubernetes.io/name":       "gpuslice",
			"app.kubernetes.io/managed-by": FieldManager,
		}).
		WithData(data)

	// Force takes field ownership from prior managers (kubectl, older runs).
	if _, err := cs.CoreV1().ConfigMaps(opts.Namespace).Apply(applyCtx, cm, metav1.ApplyOptions{
		FieldManager: FieldManager,
		Force:        true,
	}); err != nil {
		return apperrors.WrapWithContext(apperrors.ErrCodeUnavailable,
			"failed to apply time-slicing ConfigMap", err,
			map[string]any{"namespace": opts.Namespace, "name": opts.Name})
	}

	slog.Info("applied time-slicing ConfigMap",
		"namespace", opts.Namespace,
		"name", opts.Name,
		"profiles", set.Names())

	return nil
}

// LabelNodes sets the device plugin config label on every GPU node so the
// device plugin picks up the named profile. Returns the labeled node names.
func LabelNodes(ctx context.Context, profile string, opts ApplyOptions) ([]string, error) {
	opts.complete()

	cs, err := opts.clientset()
	if err != nil {
		return nil, err
	}

	listCtx, cancel := context.WithTimeout(ctx, defaults.K8sRequestTimeout)
	defer cancel()

	nodes, err := cs.CoreV1().Nodes().List(listCtx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=true", GPUPresentLabel),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeUnavailable, "failed to list GPU nodes", err)
	}
	if len(nodes.Items) == 0 {
		return nil, apperrors.Newf(apperrors.ErrCodeNotFound,
			"no nodes with label %s=true found", GPUPresentLabel)
	}

	labeled := make([]string, 0, len(nodes.Items))
	for i := range nodes.Items {
		node := &nodes.Items[i]

		if opts.DryRun {
			slog.Info("dry-run: would label node", "node", node.Name, "profile", profile)
			labeled = append(labeled, node.Name)
			continue
		}

		nodeApply := accorev1.Node(node.Name).
			WithLabels(map[string]string{NodeConfigLabel: profile})

		applyCtx, applyCancel := context.WithTimeout(ctx, defaults.K8sRequestTimeout)
		_, err := cs.CoreV1().Nodes().Apply(applyCtx, nodeApply, metav1.ApplyOptions{
			FieldManager: FieldManager,
			Force:        true,
		})
		applyCancel()
		if err != nil {
			return labeled, apperrors.WrapWithContext(apperrors.ErrCodeUnavailable,
				"failed to label node", err, map[string]any{"node": node.Name})
		}

		slog.Debug("labeled node", "node", node.Name, "profile", profile)
		labeled = append(labeled, node.Name)
	}

	return labeled, nil
}
