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
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/gpuslice/pkg/config"
	apperrors "github.com/NVIDIA/gpuslice/pkg/errors"
)

type fakeCommander struct {
	calls []string
	err   error
}

func (f *fakeCommander) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	if f.err != nil {
		return nil, []byte("Error: something broke"), f.err
	}
	return nil, nil, nil
}

func testConfig() *config.Cluster {
	cfg := config.Default()
	cfg.Name = "gpu-dev"
	cfg.ResourceGroup = "rg-gpu-dev"
	cfg.Location = "westus3"
	return cfg
}

func testModuleDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.tf"), []byte(`resource "null_resource" "x" {}`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".terraform"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "terraform.tfstate"), []byte(`{}`), 0o644))
	return dir
}

func TestVarsFromConfig(t *testing.T) {
	vars, err := VarsFromConfig(testConfig())
	require.NoError(t, err)

	assert.Equal(t, "gpu-dev", vars.ClusterName)
	assert.Equal(t, "rg-gpu-dev", vars.ResourceGroup)
	assert.Equal(t, "gpupool", vars.GPUPoolName)
	assert.Equal(t, "Standard_NC24ads_A100_v4", vars.GPUVMSize)
}

func TestVarsFromConfigRejectsInvalid(t *testing.T) {
	cfg := testConfig()
	cfg.GPUPool.VMSize = "Standard_D4s_v5" // not a GPU size

	_, err := VarsFromConfig(cfg)
	require.Error(t, err)
}

func TestVarsRender(t *testing.T) {
	vars, err := VarsFromConfig(testConfig())
	require.NoError(t, err)

	data, err := vars.Render()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "gpu-dev", decoded["cluster_name"])
	assert.Equal(t, "westus3", decoded["location"])
	assert.Contains(t, decoded, "gpu_node_count")
}

func TestStage(t *testing.T) {
	r := NewRunner(testModuleDir(t))
	t.Cleanup(r.Cleanup)

	require.NoError(t, r.Stage(testConfig()))
	ws := r.Workspace()
	require.NotEmpty(t, ws)

	assert.FileExists(t, filepath.Join(ws, "main.tf"))
	assert.FileExists(t, filepath.Join(ws, VarsFileName))

	// state and provider caches must not be carried over
	assert.NoFileExists(t, filepath.Join(ws, "terraform.tfstate"))
	assert.NoDirExists(t, filepath.Join(ws, ".terraform"))
}

func TestBundledModuleProviderSupportsGPUDriver(t *testing.T) {
	r := NewRunner(filepath.Join("..", "..", "deploy", "terraform"))
	t.Cleanup(r.Cleanup)
	require.NoError(t, r.Stage(testConfig()))

	main, err := os.ReadFile(filepath.Join(r.Workspace(), "main.tf"))
	require.NoError(t, err)
	versions, err := os.ReadFile(filepath.Join(r.Workspace(), "versions.tf"))
	require.NoError(t, err)

	// the gpu_driver node pool argument exists only in azurerm 4.x
	require.Contains(t, string(main), "gpu_driver")
	assert.Contains(t, string(versions), "hashicorp/azurerm")
	assert.Regexp(t, `version\s*=\s*"~> 4\.`, string(versions))
}

func TestStageMissingModuleDir(t *testing.T) {
	r := NewRunner(filepath.Join(t.TempDir(), "missing"))

	err := r.Stage(testConfig())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestRunRequiresStagedWorkspace(t *testing.T) {
	r := NewRunner(testModuleDir(t), WithCommander(&fakeCommander{}))

	err := r.Init(t.Context())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidRequest))
}

func TestLifecycleCommands(t *testing.T) {
	f := &fakeCommander{}
	r := NewRunner(testModuleDir(t), WithCommander(f))
	t.Cleanup(r.Cleanup)
	require.NoError(t, r.Stage(testConfig()))

	require.NoError(t, r.Init(t.Context()))
	require.NoError(t, r.Validate(t.Context()))
	require.NoError(t, r.Plan(t.Context()))
	require.NoError(t, r.Apply(t.Context()))
	require.NoError(t, r.Destroy(t.Context()))

	require.Len(t, f.calls, 5)
	for _, c := range f.calls {
		assert.Contains(t, c, "-chdir="+r.Workspace())
	}
	assert.Contains(t, f.calls[0], "init -input=false")
	assert.Contains(t, f.calls[3], "apply")
	assert.Contains(t, f.calls[3], "-auto-approve")
	assert.Contains(t, f.calls[4], "destroy")
}

func TestPlanTreatsPendingChangesAsSuccess(t *testing.T) {
	f := &fakeCommander{err: errors.New("exit status 2")}
	r := NewRunner(testModuleDir(t), WithCommander(f))
	t.Cleanup(r.Cleanup)
	require.NoError(t, r.Stage(testConfig()))

	assert.NoError(t, r.Plan(t.Context()))
}

func TestRunWrapsFailures(t *testing.T) {
	f := &fakeCommander{err: errors.New("exit status 1")}
	r := NewRunner(testModuleDir(t), WithCommander(f))
	t.Cleanup(r.Cleanup)
	require.NoError(t, r.Stage(testConfig()))

	err := r.Apply(t.Context())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeExternalTool))
	assert.Contains(t, err.Error(), "terraform apply failed")
}
