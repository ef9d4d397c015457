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
	"bytes"
	_ "embed"
	"fmt"
	"text/template"
)

//go:embed templates/values.yaml.tmpl
var valuesTemplate string

//go:embed templates/README.md.tmpl
var readmeTemplate string

// RenderValues renders the Helm values file for the operator chart.
func RenderValues(v *HelmValues) ([]byte, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return render("values.yaml", valuesTemplate, v)
}

// ReadmeData feeds the bundle README template.
type ReadmeData struct {
	Timestamp    string
	Namespace    string
	HelmRepoName string
	HelmRepoURL  string
	HelmChart    string
	ReleaseName  string
	ChartVersion string
}

// NewReadmeData derives README data from the values set.
func NewReadmeData(v *HelmValues) *ReadmeData {
	return &ReadmeData{
		Timestamp:    v.Timestamp,
		Namespace:    v.Namespace,
		HelmRepoName: HelmRepoName,
		HelmRepoURL:  HelmRepoURL,
		HelmChart:    HelmChart,
		ReleaseName:  ReleaseName,
		ChartVersion: v.ChartVersion,
	}
}

// RenderReadme renders the bundle README.
func RenderReadme(data *ReadmeData) ([]byte, error) {
	return render("README.md", readmeTemplate, data)
}

func render(name, tmpl string, data any) ([]byte, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
