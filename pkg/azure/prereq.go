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
	"log/slog"
	"os/exec"

	"github.com/NVIDIA/gpuslice/pkg/defaults"
	apperrors "github.com/NVIDIA/gpuslice/pkg/errors"
)

// LookPathFunc resolves a binary on PATH. Overridable in tests.
type LookPathFunc func(name string) (string, error)

// PrereqOptions configures prerequisite checks.
type PrereqOptions struct {
	// Terraform additionally requires the terraform binary.
	Terraform bool
	// SkipLogin skips the az account check (e.g. for render-only flows).
	SkipLogin bool

	// LookPath overrides binary resolution, used in tests.
	LookPath LookPathFunc
}

// CheckPrerequisites verifies the required CLI tools are installed and the
// az session is authenticated. Returns a structured PREREQUISITE error
// naming the first missing piece.
func (r *Runner) CheckPrerequisites(ctx context.Context, opts PrereqOptions) error {
	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	required := []string{"az", "kubectl", "helm"}
	if opts.Terraform {
		required = append(required, "terraform")
	}

	for _, tool := range required {
		if _, err := lookPath(tool); err != nil {
			return apperrors.Newf(apperrors.ErrCodePrerequisite,
				"required tool %q not found on PATH", tool)
		}
		slog.Debug("prerequisite found", "tool", tool)
	}

	if opts.SkipLogin {
		return nil
	}

	account, err := r.AZ(ctx, defaults.AzCommandTimeout, "account", "show")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodePrerequisite,
			"az session not authenticated, run 'az login'", err)
	}

	slog.Info("azure session",
		"subscription", account.Get("name").String(),
		"subscription_id", account.Get("id").String(),
		"tenant", account.Get("tenantId").String())

	return nil
}
