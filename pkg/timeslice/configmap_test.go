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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	apperrors "github.com/NVIDIA/gpuslice/pkg/errors"
)

func TestRenderProfile(t *testing.T) {
	content, err := RenderProfile(Profile{Name: ArchAmpere, Replicas: 8})
	require.NoError(t, err)

	var cfg map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(content), &cfg))

	assert.Equal(t, "v1", cfg["version"])

	flags, ok := cfg["flags"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "none", flags["migStrategy"])

	sharing, ok := cfg["sharing"].(map[string]any)
	require.True(t, ok)
	ts, ok := sharing["timeSlicing"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, ts["renameByDefault"])

	resources, ok := ts["resources"].([]any)
	require.True(t, ok)
	require.Len(t, resources, 1)
	res := resources[0].(map[string]any)
	assert.Equal(t, "nvidia.com/gpu", res["name"])
	assert.Equal(t, 8, res["replicas"])
}

func TestRenderProfileInvalid(t *testing.T) {
	_, err := RenderProfile(Profile{Name: ArchAmpere, Replicas: 1})
	assert.Error(t, err)
}

func TestRenderData(t *testing.T) {
	set := DefaultProfiles()

	data, err := RenderData(set)
	require.NoError(t, err)
	assert.Len(t, data, len(set.Profiles))

	for _, name := range set.Names() {
		assert.Contains(t, data, name)
		assert.Contains(t, data[name], "timeSlicing")
	}
}

func TestParseProfileData(t *testing.T) {
	content, err := RenderProfile(Profile{Name: ArchHopper, Replicas: 8, MIGStrategy: MIGStrategySingle})
	require.NoError(t, err)

	parsed, err := ParseProfileData(content)
	require.NoError(t, err)
	assert.Equal(t, "v1", parsed.Version)
	assert.Equal(t, MIGStrategySingle, parsed.MIGStrategy)
	assert.Equal(t, ResourceGPU, parsed.Resource)
	assert.Equal(t, 8, parsed.Replicas)
}

func TestParseProfileDataRejectsGarbage(t *testing.T) {
	_, err := ParseProfileData(":::not yaml")
	assert.Error(t, err)

	// multiple shared resources are outside what this tool manages
	_, err = ParseProfileData(`
version: v1
sharing:
  timeSlicing:
    resources:
      - name: nvidia.com/gpu
        replicas: 4
      - name: nvidia.com/mig-1g.5gb
        replicas: 2
`)
	assert.Error(t, err)
}

func TestRenderConfigMap(t *testing.T) {
	manifest, err := RenderConfigMap(DefaultProfiles(), "", "")
	require.NoError(t, err)

	var cm map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(manifest), &cm))

	assert.Equal(t, "v1", cm["apiVersion"])
	assert.Equal(t, "ConfigMap", cm["kind"])

	meta, ok := cm["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, DefaultConfigMapName, meta["name"])
	assert.Equal(t, DefaultNamespace, meta["namespace"])

	data, ok := cm["data"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, data, ArchAmpere)
}

func TestApply(t *testing.T) {
	cs := fake.NewClientset()
	set := DefaultProfiles()

	err := Apply(t.Context(), set, ApplyOptions{Client: cs})
	require.NoError(t, err)

	cm, err := cs.CoreV1().ConfigMaps(DefaultNamespace).Get(t.Context(), DefaultConfigMapName, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Contains(t, cm.Data, ArchAmpere)
	assert.Equal(t, FieldManager, cm.Labels["app.kubernetes.io/managed-by"])

	// Re-apply is idempotent.
	require.NoError(t, Apply(t.Context(), set, ApplyOptions{Client: cs}))
}

func TestApplyDryRun(t *testing.T) {
	cs := fake.NewClientset()

	err := Apply(t.Context(), DefaultProfiles(), ApplyOptions{Client: cs, DryRun: true})
	require.NoError(t, err)

	_, err = cs.CoreV1().ConfigMaps(DefaultNamespace).Get(t.Context(), DefaultConfigMapName, metav1.GetOptions{})
	assert.Error(t, err, "dry-run must not create the ConfigMap")
}

func gpuNode(name string) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: map[string]string{GPUPresentLabel: "true"},
		},
	}
}

func TestLabelNodes(t *testing.T) {
	cs := fake.NewClientset(
		gpuNode("aks-gpu-1"),
		gpuNode("aks-gpu-2"),
		&corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "aks-system-1"}},
	)

	labeled, err := LabelNodes(t.Context(), ArchAmpere, ApplyOptions{Client: cs})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"aks-gpu-1", "aks-gpu-2"}, labeled)

	node, err := cs.CoreV1().Nodes().Get(t.Context(), "aks-gpu-1", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, ArchAmpere, node.Labels[NodeConfigLabel])

	system, err := cs.CoreV1().Nodes().Get(t.Context(), "aks-system-1", metav1.GetOptions{})
	require.NoError(t, err)
	assert.NotContains(t, system.Labels, NodeConfigLabel)
}

func TestLabelNodesNoGPUNodes(t *testing.T) {
	cs := fake.NewClientset(
		&corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "aks-system-1"}},
	)

	_, err := LabelNodes(t.Context(), ArchAmpere, ApplyOptions{Client: cs})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestLabelNodesDryRun(t *testing.T) {
	cs := fake.NewClientset(gpuNode("aks-gpu-1"))

	labeled, err := LabelNodes(t.Context(), ArchHopper, ApplyOptions{Client: cs, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"aks-gpu-1"}, labeled)

	node, err := cs.CoreV1().Nodes().Get(t.Context(), "aks-gpu-1", metav1.GetOptions{})
	require.NoError(t, err)
	assert.NotContains(t, node.Labels, NodeConfigLabel)
}
