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
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	cp "github.com/otiai10/copy"

	"github.com/NVIDIA/gpuslice/pkg/azure"
	"github.com/NVIDIA/gpuslice/pkg/config"
	"github.com/NVIDIA/gpuslice/pkg/defaults"
	apperrors "github.com/NVIDIA/gpuslice/pkg/errors"
	"github.com/NVIDIA/gpuslice/pkg/metrics"
)

// Runner stages a Terraform module directory and drives the terraform
// binary against the staged copy.
type Runner struct {
	cmd azure.Commander

	// moduleDir is the source module directory, never written to.
	moduleDir string

	// workspace is the staged copy; populated by Stage.
	workspace string
}

// Option is a functional option for configuring Runner instances.
type Option func(*Runner)

// WithCommander overrides the command executor, used in tests.
func WithCommander(c azure.Commander) Option {
	return func(r *Runner) { r.cmd = c }
}

// NewRunner creates a Runner for the given module directory.
func NewRunner(moduleDir string, opts ...Option) *Runner {
	r := &Runner{
		cmd:       azure.ExecCommander{},
		moduleDir: moduleDir,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Workspace returns the staged workspace directory, empty before Stage.
func (r *Runner) Workspace() string {
	return r.workspace
}

// Stage copies the module directory into a scratch workspace and renders
// the variable file for cfg into it. Repeat calls re-stage from scratch.
func (r *Runner) Stage(cfg *config.Cluster) error {
	info, err := os.Stat(r.moduleDir)
	if err != nil || !info.IsDir() {
		return apperrors.Newf(apperrors.ErrCodeNotFound,
			"terraform module directory %q not found", r.moduleDir)
	}

	vars, err := VarsFromConfig(cfg)
	if err != nil {
		return err
	}

	workspace, err := os.MkdirTemp("", "gpuslice-tf-*")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create terraform workspace", err)
	}

	opt := cp.Options{
		// Stale state and provider binaries must not leak between runs.
		Skip: func(_ os.FileInfo, src, _ string) (bool, error) {
			base := filepath.Base(src)
			return base == ".terraform" || strings.HasSuffix(base, ".tfstate") ||
				strings.HasSuffix(base, ".tfstate.backup"), nil
		},
	}
	if err := cp.Copy(r.moduleDir, workspace, opt); err != nil {
		_ = os.RemoveAll(workspace)
		return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to stage terraform module", err)
	}

	if _, err := vars.WriteFile(workspace); err != nil {
		_ = os.RemoveAll(workspace)
		return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to write terraform variables", err)
	}

	if r.workspace != "" {
		_ = os.RemoveAll(r.workspace)
	}
	r.workspace = workspace

	slog.Debug("terraform workspace staged", "module", r.moduleDir, "workspace", workspace)
	return nil
}

// Cleanup removes the staged workspace.
func (r *Runner) Cleanup() {
	if r.workspace == "" {
		return
	}
	_ = os.RemoveAll(r.workspace)
	r.workspace = ""
}

// Init runs terraform init in the staged workspace.
func (r *Runner) Init(ctx context.Context) error {
	return r.run(ctx, defaults.TerraformInitTimeout, "init", "-input=false", "-no-color")
}

// Validate runs terraform validate in the staged workspace.
func (r *Runner) Validate(ctx context.Context) error {
	return r.run(ctx, defaults.TerraformPlanTimeout, "validate", "-no-color")
}

// Plan runs terraform plan and logs whether changes are pending.
func (r *Runner) Plan(ctx context.Context) error {
	err := r.run(ctx, defaults.TerraformPlanTimeout, "plan", "-input=false", "-no-color", "-detailed-exitcode")
	if err == nil {
		slog.Info("terraform plan: no changes")
		return nil
	}
	// -detailed-exitcode returns 2 when the plan holds pending changes.
	if strings.Contains(err.Error(), "exit status 2") {
		slog.Info("terraform plan: changes pending")
		return nil
	}
	return err
}

// Apply runs terraform apply. The caller is responsible for confirming the
// operation before invoking this; apply itself runs unattended.
func (r *Runner) Apply(ctx context.Context) error {
	return r.run(ctx, defaults.TerraformApplyTimeout, "apply", "-input=false", "-no-color", "-auto-approve")
}

// Destroy runs terraform destroy. Same confirmation contract as Apply.
func (r *Runner) Destroy(ctx context.Context) error {
	return r.run(ctx, defaults.TerraformApplyTimeout, "destroy", "-input=false", "-no-color", "-auto-approve")
}

func (r *Runner) run(ctx context.Context, timeout time.Duration, args ...string) error {
	if r.workspace == "" {
		return apperrors.New(apperrors.ErrCodeInvalidRequest, "terraform workspace not staged")
	}

	fullArgs := append([]string{"-chdir=" + r.workspace}, args...)

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	stdout, stderr, err := r.cmd.Run(cmdCtx, "terraform", fullArgs...)
	metrics.ObserveToolInvocation("terraform", args[0], time.Since(start), err == nil)

	if err != nil {
		if cmdCtx.Err() != nil {
			return apperrors.Newf(apperrors.ErrCodeTimeout,
				"terraform %s timed out after %s", args[0], timeout)
		}
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			detail = strings.TrimSpace(string(stdout))
		}
		return apperrors.WrapWithContext(apperrors.ErrCodeExternalTool,
			"terraform "+args[0]+" failed", err,
			map[string]any{"output": tail(detail, 480)})
	}

	slog.Debug("terraform completed", "subcommand", args[0], "duration", time.Since(start))
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
