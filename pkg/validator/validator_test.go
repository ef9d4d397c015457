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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/NVIDIA/gpuslice/pkg/k8s/node"
	"github.com/NVIDIA/gpuslice/pkg/timeslice"
)

func testProfiles() timeslice.ProfileSet {
	return timeslice.ProfileSet{
		Default: "ampere",
		Profiles: []timeslice.Profile{
			{Name: "ampere", Replicas: 8},
		},
	}
}

func testNode(name, profile, driver string, capacity int64, ready bool) *corev1.Node {
	status := corev1.ConditionFalse
	if ready {
		status = corev1.ConditionTrue
	}
	labels := map[string]string{
		timeslice.GPUPresentLabel: "true",
		node.InstanceTypeLabel:    "Standard_NC24ads_A100_v4",
	}
	if profile != "" {
		labels[timeslice.NodeConfigLabel] = profile
	}
	if driver != "" {
		labels[node.DriverVersionLabel] = driver
	}
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels},
		Status: corev1.NodeStatus{
			Capacity: corev1.ResourceList{
				node.ResourceGPU: *resource.NewQuantity(capacity, resource.DecimalSI),
			},
			Conditions: []corev1.NodeCondition{{Type: corev1.NodeReady, Status: status}},
		},
	}
}

func testConfigMap(t *testing.T) *corev1.ConfigMap {
	t.Helper()
	data, err := timeslice.RenderData(testProfiles())
	require.NoError(t, err)
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      timeslice.DefaultConfigMapName,
			Namespace: timeslice.DefaultNamespace,
		},
		Data: data,
	}
}

func testPod(name string, phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: timeslice.DefaultNamespace},
		Status:     corev1.PodStatus{Phase: phase},
	}
}

func healthyCluster(t *testing.T) []runtime.Object {
	t.Helper()
	return []runtime.Object{
		testNode("gpu-1", "ampere", "570.124.06", 8, true),
		testNode("gpu-2", "ampere", "570.124.06", 8, true),
		testConfigMap(t),
		testPod("gpu-operator-abc", corev1.PodRunning),
		testPod("nvidia-device-plugin-xyz", corev1.PodRunning),
	}
}

func run(t *testing.T, objs ...runtime.Object) *ValidationResult {
	t.Helper()
	v, err := New(testProfiles(), Options{Client: fake.NewClientset(objs...)})
	require.NoError(t, err)

	result, err := v.Run(t.Context())
	require.NoError(t, err)
	return result
}

func checkByName(t *testing.T, result *ValidationResult, name string) CheckResult {
	t.Helper()
	for _, c := range result.Results {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %s not found", name)
	return CheckResult{}
}

func TestRunHealthyCluster(t *testing.T) {
	result := run(t, healthyCluster(t)...)

	assert.Equal(t, ValidationStatusPass, result.Summary.Status)
	assert.Equal(t, 6, result.Summary.Total)
	assert.Equal(t, 6, result.Summary.Passed)
	assert.NoError(t, result.Err())
}

func TestRunNodeNotReady(t *testing.T) {
	objs := healthyCluster(t)
	objs[1] = testNode("gpu-2", "ampere", "570.124.06", 8, false)

	result := run(t, objs...)
	assert.Equal(t, ValidationStatusFail, result.Summary.Status)

	c := checkByName(t, result, CheckNodesReady)
	assert.Equal(t, CheckStatusFailed, c.Status)
	assert.Contains(t, c.Message, "gpu-2")
}

func TestRunCapacityMismatch(t *testing.T) {
	objs := healthyCluster(t)
	// capacity 1 means the device plugin has not applied slicing yet
	objs[0] = testNode("gpu-1", "ampere", "570.124.06", 1, true)

	result := run(t, objs...)

	c := checkByName(t, result, CheckGPUCapacity)
	assert.Equal(t, CheckStatusFailed, c.Status)
	assert.Contains(t, c.Actual, "gpu-1: 1 != 8")
	assert.Error(t, result.Err())
}

func TestRunMissingConfigMap(t *testing.T) {
	result := run(t,
		testNode("gpu-1", "ampere", "570.124.06", 8, true),
		testPod("gpu-operator-abc", corev1.PodRunning),
	)

	c := checkByName(t, result, CheckTimeSlicingConfig)
	assert.Equal(t, CheckStatusFailed, c.Status)
	assert.Contains(t, c.Actual, "not found")
}

func TestRunConfigMapReplicaDrift(t *testing.T) {
	cm := testConfigMap(t)
	drifted, err := timeslice.RenderProfile(timeslice.Profile{Name: "ampere", Replicas: 4})
	require.NoError(t, err)
	cm.Data["ampere"] = drifted

	objs := healthyCluster(t)
	objs[2] = cm

	result := run(t, objs...)

	c := checkByName(t, result, CheckTimeSlicingConfig)
	assert.Equal(t, CheckStatusFailed, c.Status)
	assert.Contains(t, c.Actual, "replicas 4 != 8")
}

func TestRunUnlabeledNode(t *testing.T) {
	objs := healthyCluster(t)
	objs[1] = testNode("gpu-2", "", "570.124.06", 8, true)

	result := run(t, objs...)

	c := checkByName(t, result, CheckProfileLabels)
	assert.Equal(t, CheckStatusFailed, c.Status)
	assert.Contains(t, c.Actual, "gpu-2")
}

func TestRunMixedDriverVersions(t *testing.T) {
	objs := healthyCluster(t)
	objs[1] = testNode("gpu-2", "ampere", "560.35.03", 8, true)

	result := run(t, objs...)

	c := checkByName(t, result, CheckDriverVersion)
	assert.Equal(t, CheckStatusFailed, c.Status)
	assert.Contains(t, c.Actual, "570.124.06")
	assert.Contains(t, c.Actual, "560.35.03")
}

func TestRunDriverOlderThanFloor(t *testing.T) {
	objs := healthyCluster(t)
	objs[0] = testNode("gpu-1", "ampere", "470.82.01", 8, true)
	objs[1] = testNode("gpu-2", "ampere", "470.82.01", 8, true)

	result := run(t, objs...)

	c := checkByName(t, result, CheckDriverVersion)
	assert.Equal(t, CheckStatusFailed, c.Status)
	assert.Contains(t, c.Message, "older than")
}

func TestRunMinDriverVersionOption(t *testing.T) {
	v, err := New(testProfiles(), Options{
		Client:           fake.NewClientset(healthyCluster(t)...),
		MinDriverVersion: "575",
	})
	require.NoError(t, err)

	result, err := v.Run(t.Context())
	require.NoError(t, err)

	c := checkByName(t, result, CheckDriverVersion)
	assert.Equal(t, CheckStatusFailed, c.Status)
	assert.Contains(t, c.Message, "570.124.06")
}

func TestNewRejectsBadMinDriverVersion(t *testing.T) {
	_, err := New(testProfiles(), Options{
		Client:           fake.NewClientset(),
		MinDriverVersion: "not-a-version",
	})
	require.Error(t, err)
}

func TestRunMissingDriverLabelsSkips(t *testing.T) {
	objs := healthyCluster(t)
	objs[0] = testNode("gpu-1", "ampere", "", 8, true)
	objs[1] = testNode("gpu-2", "ampere", "", 8, true)

	result := run(t, objs...)

	c := checkByName(t, result, CheckDriverVersion)
	assert.Equal(t, CheckStatusSkipped, c.Status)
	assert.Equal(t, ValidationStatusPartial, result.Summary.Status)
}

func TestRunUnhealthyOperatorPod(t *testing.T) {
	objs := healthyCluster(t)
	objs[3] = testPod("gpu-operator-abc", corev1.PodPending)

	result := run(t, objs...)

	c := checkByName(t, result, CheckOperatorPods)
	assert.Equal(t, CheckStatusFailed, c.Status)
	assert.Contains(t, c.Actual, "gpu-operator-abc")
}

func TestRunExpectedNodeCount(t *testing.T) {
	v, err := New(testProfiles(), Options{
		Client:           fake.NewClientset(healthyCluster(t)...),
		ExpectedGPUNodes: 3,
	})
	require.NoError(t, err)

	result, err := v.Run(t.Context())
	require.NoError(t, err)

	c := checkByName(t, result, CheckNodesReady)
	assert.Equal(t, CheckStatusFailed, c.Status)
	assert.Equal(t, "3 GPU nodes ready", c.Expected)
}

func TestWriteReport(t *testing.T) {
	result := run(t, healthyCluster(t)...)

	var buf bytes.Buffer
	WriteReport(&buf, result)

	out := buf.String()
	assert.Contains(t, out, CheckGPUCapacity)
	assert.Contains(t, out, "6 passed, 0 failed, 0 skipped")
}
