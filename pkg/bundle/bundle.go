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

package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/NVIDIA/gpuslice/pkg/config"
	apperrors "github.com/NVIDIA/gpuslice/pkg/errors"
	"github.com/NVIDIA/gpuslice/pkg/oci"
	"github.com/NVIDIA/gpuslice/pkg/operator"
	"github.com/NVIDIA/gpuslice/pkg/terraform"
	"github.com/NVIDIA/gpuslice/pkg/timeslice"
)

// Bundle file names.
const (
	ValuesFile    = "values.yaml"
	ConfigMapFile = "time-slicing-config.yaml"
	ReadmeFile    = "README.md"
	ManifestFile  = "manifest.yaml"
)

// Options configures bundle generation.
type Options struct {
	// Profiles is the time-slicing profile set to bundle.
	Profiles timeslice.ProfileSet

	// Values are the operator Helm values. Nil derives defaults from
	// Profiles.
	Values *operator.HelmValues

	// Config optionally adds Terraform variables for the cluster.
	Config *config.Cluster

	// Version is the generating tool version, recorded in the manifest.
	Version string

	// PlainHTTP uses HTTP for OCI registry connections (local registries).
	PlainHTTP bool
	// InsecureTLS skips registry TLS certificate verification.
	InsecureTLS bool
}

// FileEntry records one bundle file in the manifest.
type FileEntry struct {
	Name   string `yaml:"name"`
	SHA256 string `yaml:"sha256"`
	Size   int    `yaml:"size"`
}

// Manifest describes a generated bundle.
type Manifest struct {
	// ID uniquely identifies this bundle generation run.
	ID string `yaml:"id"`
	// CreatedAt is the generation timestamp.
	CreatedAt time.Time `yaml:"createdAt"`
	// Version is the generating tool version.
	Version string `yaml:"version,omitempty"`
	// DefaultProfile is the profile unlabeled nodes fall back to.
	DefaultProfile string `yaml:"defaultProfile"`
	// Files lists the bundle contents with content digests.
	Files []FileEntry `yaml:"files"`
}

// Write renders the bundle into dir, creating it if needed, and returns
// the manifest (which is also written into the bundle).
func Write(dir string, opts Options) (*Manifest, error) {
	if err := opts.Profiles.Validate(); err != nil {
		return nil, err
	}

	values := opts.Values
	if values == nil {
		var err error
		values, err = operator.NewHelmValues(&opts.Profiles)
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create bundle directory", err)
	}

	files := make(map[string][]byte, 4)

	rendered, err := operator.RenderValues(values)
	if err != nil {
		return nil, err
	}
	files[ValuesFile] = rendered

	manifest, err := timeslice.RenderConfigMap(opts.Profiles, values.Namespace, values.DevicePluginConfigMap)
	if err != nil {
		return nil, err
	}
	files[ConfigMapFile] = []byte(manifest)

	readme, err := operator.RenderReadme(operator.NewReadmeData(values))
	if err != nil {
		return nil, err
	}
	files[ReadmeFile] = readme

	if opts.Config != nil {
		vars, err := terraform.VarsFromConfig(opts.Config)
		if err != nil {
			return nil, err
		}
		tfvars, err := vars.Render()
		if err != nil {
			return nil, err
		}
		files[terraform.VarsFileName] = tfvars
	}

	m := &Manifest{
		ID:             uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		Version:        opts.Version,
		DefaultProfile: opts.Profiles.Default,
	}

	for _, name := range orderedNames(files) {
		content := files[name]
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrCodeInternal,
				fmt.Sprintf("failed to write bundle file %s", name), err)
		}
		sum := sha256.Sum256(content)
		m.Files = append(m.Files, FileEntry{
			Name:   name,
			SHA256: hex.EncodeToString(sum[:]),
			Size:   len(content),
		})
	}

	manifestBytes, err := yaml.Marshal(m)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to render bundle manifest", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), manifestBytes, 0o644); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to write bundle manifest", err)
	}

	slog.Info("bundle written", "dir", dir, "id", m.ID, "files", len(m.Files)+1)
	return m, nil
}

// WriteTarget renders the bundle to the parsed output target: a local
// directory, or a temporary directory pushed to an OCI registry. The
// default tag for untagged OCI targets is the tool version.
func WriteTarget(ctx context.Context, target string, opts Options) (*Manifest, *oci.PushResult, error) {
	ref, err := oci.ParseOutputTarget(target)
	if err != nil {
		return nil, nil, err
	}

	if !ref.IsOCI {
		m, err := Write(ref.LocalPath, opts)
		return m, nil, err
	}

	if ref.Tag == "" {
		if opts.Version == "" {
			return nil, nil, apperrors.New(apperrors.ErrCodeInvalidRequest,
				"OCI target has no tag and no tool version is available for a default")
		}
		ref = ref.WithTag(opts.Version)
	}

	dir, err := os.MkdirTemp("", "gpuslice-bundle-*")
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create bundle staging dir", err)
	}
	defer os.RemoveAll(dir)

	m, err := Write(dir, opts)
	if err != nil {
		return nil, nil, err
	}

	result, err := oci.Push(ctx, oci.PushOptions{
		SourceDir:   dir,
		Reference:   ref,
		Version:     opts.Version,
		PlainHTTP:   opts.PlainHTTP,
		InsecureTLS: opts.InsecureTLS,
	})
	if err != nil {
		return nil, nil, err
	}

	return m, result, nil
}

func orderedNames(files map[string][]byte) []string {
	ordered := []string{ValuesFile, ConfigMapFile, terraform.VarsFileName, ReadmeFile}
	names := make([]string, 0, len(files))
	for _, n := range ordered {
		if _, ok := files[n]; ok {
			names = append(names, n)
		}
	}
	return names
}
