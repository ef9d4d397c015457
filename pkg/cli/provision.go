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

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/gpuslice/pkg/azure"
	"github.com/NVIDIA/gpuslice/pkg/config"
	"github.com/NVIDIA/gpuslice/pkg/terraform"
)

func provisionCmd() *cli.Command {
	return &cli.Command{
		Name:                  "provision",
		EnableShellCompletion: true,
		Usage:                 "Provision an AKS cluster with a GPU node pool",
		Description: `Create the Azure resource graph for a GPU cluster: resource group,
Log Analytics workspace, VNet and subnet, the AKS cluster, and a GPU
node pool provisioned with --gpu-driver none so the GPU Operator
manages the driver stack. Finishes by merging cluster credentials into
the local kubeconfig.

Every step is idempotent: existing resources are detected and skipped,
so rerunning after a partial failure resumes where it left off.

With --terraform the Azure CLI steps are replaced by an equivalent
Terraform module run (init, validate, plan, apply) staged into a
private workspace with variables generated from the cluster config.`,
		Flags: []cli.Flag{
			configFlag,
			&cli.BoolFlag{
				Name:  "terraform",
				Usage: "Provision with the bundled Terraform module instead of az",
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"module-dir"},
				Value:   "deploy/terraform",
				Usage:   "Terraform module directory (with --terraform)",
			},
			&cli.BoolFlag{
				Name:  "skip-prereqs",
				Usage: "Skip tool and az login checks",
			},
			yesFlag,
			outputFlag,
			formatFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadClusterConfig(cmd)
			if err != nil {
				return err
			}

			useTerraform := cmd.Bool("terraform")

			runner := azure.NewRunner()
			if !cmd.Bool("skip-prereqs") {
				if err := runner.CheckPrerequisites(ctx, azure.PrereqOptions{
					Terraform: useTerraform,
				}); err != nil {
					return err
				}
			}

			if !cmd.Bool("yes") {
				prompt := fmt.Sprintf("Provision cluster %q (resource group %q, location %q)",
					cfg.Name, cfg.ResourceGroup, cfg.Location)
				if !confirm(os.Stdin, os.Stdout, prompt) {
					fmt.Fprintln(os.Stdout, "aborted")
					return nil
				}
			}

			var report *azure.Report
			if useTerraform {
				report, err = provisionTerraform(ctx, cmd.String("dir"), cfg)
			} else {
				report, err = azure.NewProvisioner(runner, cfg).Provision(ctx)
			}

			// The report carries per-step detail even on failure.
			if report != nil {
				if serr := serialize(cmd, report); serr != nil && err == nil {
					err = serr
				}
			}
			return err
		},
	}
}

// provisionTerraform stages the module with generated variables and runs
// the init/validate/plan/apply sequence. The staged workspace, including
// local state, is retained for later destroy runs.
func provisionTerraform(ctx context.Context, moduleDir string, cfg *config.Cluster) (*azure.Report, error) {
	tf := terraform.NewRunner(moduleDir)

	report := &azure.Report{
		RunID:     uuid.NewString(),
		Cluster:   cfg.Name,
		Location:  cfg.Location,
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		report.Duration = time.Since(report.StartedAt)
	}()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"stage", func() error { return tf.Stage(cfg) }},
		{"init", func() error { return tf.Init(ctx) }},
		{"validate", func() error { return tf.Validate(ctx) }},
		{"plan", func() error { return tf.Plan(ctx) }},
		{"apply", func() error { return tf.Apply(ctx) }},
	}

	for _, step := range steps {
		start := time.Now()
		err := step.fn()
		result := azure.StepResult{
			Name:     "terraform-" + step.name,
			Status:   "succeeded",
			Duration: time.Since(start),
		}
		if err != nil {
			result.Status = "failed"
			result.Detail = err.Error()
			report.Steps = append(report.Steps, result)
			return report, err
		}
		report.Steps = append(report.Steps, result)
	}

	report.Steps = append(report.Steps, azure.StepResult{
		Name:   "workspace",
		Status: "succeeded",
		Detail: tf.Workspace(),
	})

	return report, nil
}
