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

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/gpuslice/pkg/azure"
	"github.com/NVIDIA/gpuslice/pkg/terraform"
)

func teardownCmd() *cli.Command {
	return &cli.Command{
		Name:                  "teardown",
		EnableShellCompletion: true,
		Usage:                 "Delete the cluster and every Azure resource in its resource group",
		Description: `Delete the resource group named in the cluster config, which removes
the AKS cluster, node pools, VNet, and the Log Analytics workspace in
one operation. This works for clusters provisioned with either az or
the Terraform module.

With --terraform the module is staged and terraform destroy runs
against it instead. This needs a reachable state backend; clusters
applied with purely local state should use the default resource group
deletion.

Deletion is irreversible and requires interactive confirmation unless
--yes is given. With --emergency the confirmation and completion
polling are both skipped: the delete is accepted by Azure and the
command returns immediately. Use it when spot GPU capacity is burning
budget and minutes matter.`,
		Flags: []cli.Flag{
			configFlag,
			yesFlag,
			&cli.BoolFlag{
				Name:  "terraform",
				Usage: "Destroy with the Terraform module instead of deleting the resource group",
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"module-dir"},
				Value:   "deploy/terraform",
				Usage:   "Terraform module directory (with --terraform)",
			},
			&cli.BoolFlag{
				Name:  "no-wait",
				Usage: "Return once deletion is accepted instead of waiting for completion",
			},
			&cli.BoolFlag{
				Name:  "emergency",
				Usage: "Skip confirmation and completion polling (implies --yes and --no-wait)",
			},
			outputFlag,
			formatFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadClusterConfig(cmd)
			if err != nil {
				return err
			}

			emergency := cmd.Bool("emergency")

			if !emergency && !cmd.Bool("yes") {
				prompt := fmt.Sprintf(
					"Delete resource group %q and ALL resources in it (cluster %q)",
					cfg.ResourceGroup, cfg.Name)
				if !confirm(os.Stdin, os.Stdout, prompt) {
					fmt.Fprintln(os.Stdout, "aborted")
					return nil
				}
			}

			useTerraform := cmd.Bool("terraform")

			runner := azure.NewRunner()
			if err := runner.CheckPrerequisites(ctx, azure.PrereqOptions{
				Terraform: useTerraform,
			}); err != nil {
				return err
			}

			if useTerraform {
				tf := terraform.NewRunner(cmd.String("dir"))
				if err := tf.Stage(cfg); err != nil {
					return err
				}
				defer tf.Cleanup()
				if err := tf.Init(ctx); err != nil {
					return err
				}
				return tf.Destroy(ctx)
			}

			report, err := azure.NewProvisioner(runner, cfg).Teardown(ctx, azure.TeardownOptions{
				NoWait: emergency || cmd.Bool("no-wait"),
			})

			if report != nil {
				if serr := serialize(cmd, report); serr != nil && err == nil {
					err = serr
				}
			}
			return err
		},
	}
}
