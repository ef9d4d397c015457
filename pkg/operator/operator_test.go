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
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	apperrors "github.com/NVIDIA/gpuslice/pkg/errors"
	"github.com/NVIDIA/gpuslice/pkg/timeslice"
)

type fakeCommander struct {
	calls []string
	err   error
}

func (f *fakeCommander) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	if f.err != nil {
		return nil, []byte("Error: release failed"), f.err
	}
	return nil, nil, nil
}

func testValues(t *testing.T) *HelmValues {
	t.Helper()
	profiles := timeslice.DefaultProfiles()
	v, err := NewHelmValues(&profiles)
	require.NoError(t, err)
	return v
}

func TestNewHelmValues(t *testing.T) {
	v := testValues(t)

	assert.Equal(t, "gpu-operator", v.Namespace)
	assert.Equal(t, "true", v.EnableDriver)
	assert.Equal(t, timeslice.DefaultConfigMapName, v.DevicePluginConfigMap)
	assert.Equal(t, timeslice.ArchAmpere, v.DevicePluginDefault)
	assert.NoError(t, v.Validate())
}

func TestHelmValuesValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*HelmValues)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*HelmValues) {},
		},
		{
			name:    "empty namespace",
			mutate:  func(v *HelmValues) { v.Namespace = "" },
			wantErr: "namespace",
		},
		{
			name:    "bad registry",
			mutate:  func(v *HelmValues) { v.DriverRegistry = "NOT a registry!" },
			wantErr: "driver registry",
		},
		{
			name:    "bad driver version",
			mutate:  func(v *HelmValues) { v.DriverVersion = "not.a.version" },
			wantErr: "driver version",
		},
		{
			name:    "bad mig strategy",
			mutate:  func(v *HelmValues) { v.MIGStrategy = "all" },
			wantErr: "MIG strategy",
		},
		{
			name:    "missing config map",
			mutate:  func(v *HelmValues) { v.DevicePluginConfigMap = "" },
			wantErr: "config map",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := testValues(t)
			tt.mutate(v)

			err := v.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRenderValues(t *testing.T) {
	v := testValues(t)
	v.ChartVersion = "25.3.0"
	v.DriverVersion = "570.124.06"

	out, err := RenderValues(v)
	require.NoError(t, err)

	rendered := string(out)
	assert.Contains(t, rendered, "enabled: true")
	assert.Contains(t, rendered, `version: "570.124.06"`)
	assert.Contains(t, rendered, "name: "+timeslice.DefaultConfigMapName)
	assert.Contains(t, rendered, "default: "+timeslice.ArchAmpere)
	assert.Contains(t, rendered, "strategy: none")
	assert.NotContains(t, rendered, "<no value>")
}

func TestRenderValuesSkipsEmptyDriverVersion(t *testing.T) {
	out, err := RenderValues(testValues(t))
	require.NoError(t, err)
	assert.NotContains(t, string(out), "version:")
}

func TestRenderReadme(t *testing.T) {
	v := testValues(t)
	v.ChartVersion = "25.3.0"

	out, err := RenderReadme(NewReadmeData(v))
	require.NoError(t, err)

	rendered := string(out)
	assert.Contains(t, rendered, HelmRepoURL)
	assert.Contains(t, rendered, "--version 25.3.0")
	assert.Contains(t, rendered, "helm upgrade --install gpu-operator nvidia/gpu-operator")
}

func TestInstall(t *testing.T) {
	f := &fakeCommander{}
	i := NewInstaller(WithCommander(f))

	v := testValues(t)
	v.ChartVersion = "25.3.0"
	require.NoError(t, i.Install(t.Context(), v))

	require.Len(t, f.calls, 3)
	assert.Contains(t, f.calls[0], "helm repo add nvidia "+HelmRepoURL)
	assert.Contains(t, f.calls[1], "helm repo update")

	install := f.calls[2]
	assert.Contains(t, install, "upgrade --install gpu-operator nvidia/gpu-operator")
	assert.Contains(t, install, "--namespace gpu-operator")
	assert.Contains(t, install, "--create-namespace")
	assert.Contains(t, install, "--version 25.3.0")
	assert.Contains(t, install, "--wait")
}

func TestInstallWrapsHelmFailure(t *testing.T) {
	f := &fakeCommander{err: assert.AnError}
	i := NewInstaller(WithCommander(f))

	err := i.Install(t.Context(), testValues(t))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeExternalTool))
}

func readyPod(name string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "gpu-operator",
			Labels:    map[string]string{"app": "nvidia-device-plugin-daemonset"},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
		},
	}
}

func TestWaitReady(t *testing.T) {
	cs := fake.NewClientset(readyPod("plugin-abc"), readyPod("plugin-def"))
	i := NewInstaller(WithClient(cs))

	assert.NoError(t, i.WaitReady(t.Context(), "gpu-operator"))
}

func TestWaitReadyRequiresClient(t *testing.T) {
	err := NewInstaller().WaitReady(t.Context(), "gpu-operator")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidRequest))
}
