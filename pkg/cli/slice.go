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
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/gpuslice/pkg/k8s/node"
	"github.com/NVIDIA/gpuslice/pkg/serializer"
	"github.com/NVIDIA/gpuslice/pkg/timeslice"
)

var (
	namespaceFlag = &cli.StringFlag{
		Name:  "namespace",
		Value: timeslice.DefaultNamespace,
		Usage: "GPU Operator namespace",
	}

	configMapFlag = &cli.StringFlag{
		Name:  "configmap",
		Value: timeslice.DefaultConfigMapName,
		Usage: "Device plugin config ConfigMap name",
	}

	dryRunFlag = &cli.BoolFlag{
		Name:  "dry-run",
		Usage: "Render and validate without touching the cluster",
	}
)

func sliceCmd() *cli.Command {
	return &cli.Command{
		Name:                  "slice",
		EnableShellCompletion: true,
		Usage:                 "Manage GPU time-slicing profiles",
		Description: `Manage the device plugin sharing configuration that splits each
physical GPU into multiple schedulable nvidia.com/gpu resources.

Profiles are keyed by GPU architecture (ampere, hopper, ...) and map to
a replica count. Render writes the ConfigMap manifest for GitOps flows;
apply writes it to the cluster with server-side apply and optionally
labels the GPU nodes with the selected profile.`,
		Commands: []*cli.Command{
			sliceRenderCmd(),
			sliceApplyCmd(),
		},
	}
}

func sliceRenderCmd() *cli.Command {
	return &cli.Command{
		Name:                  "render",
		EnableShellCompletion: true,
		Usage:                 "Render the time-slicing ConfigMap manifest",
		Description: `Render the complete ConfigMap manifest for the declared profile set,
one data entry per profile. The output is ready for kubectl apply or a
GitOps repository.`,
		Flags: []cli.Flag{
			profilesFlag,
			configFlag,
			namespaceFlag,
			configMapFlag,
			outputFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			profiles, err := loadProfiles(cmd)
			if err != nil {
				return err
			}

			manifest, err := timeslice.RenderConfigMap(profiles,
				cmd.String("namespace"), cmd.String("configmap"))
			if err != nil {
				return err
			}

			if path := cmd.String("output"); path != "" {
				if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
					return fmt.Errorf("failed to write manifest to %q: %w", path, err)
				}
				slog.Info("manifest written", "path", path, "profiles", profiles.Names())
				return nil
			}

			_, err = fmt.Fprint(os.Stdout, manifest)
			return err
		},
	}
}

func sliceApplyCmd() *cli.Command {
	return &cli.Command{
		Name:                  "apply",
		EnableShellCompletion: true,
		Usage:                 "Apply the time-slicing ConfigMap and select a node profile",
		Description: `Write the profile set to the device plugin ConfigMap using
server-side apply, then label every GPU node with the profile named by
--profile so the device plugin picks it up. Re-applying the same set is
a no-op. The device plugin restarts on affected nodes; running GPU pods
keep their allocations but new capacity only shows once the plugin
re-registers. --wait blocks until every GPU node advertises the sliced
capacity.`,
		Flags: []cli.Flag{
			profilesFlag,
			configFlag,
			kubeconfigFlag,
			namespaceFlag,
			configMapFlag,
			&cli.StringFlag{
				Name:  "profile",
				Usage: "Profile to select on all GPU nodes (must be in the declared set)",
			},
			&cli.IntFlag{
				Name:  "replicas",
				Usage: "Override the replica count of the selected profile",
			},
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Wait until all GPU nodes advertise the sliced capacity",
			},
			dryRunFlag,
			yesFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			profiles, err := loadProfiles(cmd)
			if err != nil {
				return err
			}

			profile := cmd.String("profile")
			if profile != "" {
				if _, err := profiles.Get(profile); err != nil {
					return err
				}
			}
			if cmd.Bool("wait") && profile == "" {
				return fmt.Errorf("--wait requires --profile")
			}

			if replicas := int(cmd.Int("replicas")); replicas > 0 {
				if profile == "" {
					return fmt.Errorf("--replicas requires --profile")
				}
				for i := range profiles.Profiles {
					if profiles.Profiles[i].Name == profile {
						profiles.Profiles[i].Replicas = replicas
					}
				}
				if err := profiles.Validate(); err != nil {
					return err
				}
			}

			opts := timeslice.ApplyOptions{
				Namespace:  cmd.String("namespace"),
				Name:       cmd.String("configmap"),
				Kubeconfig: cmd.String("kubeconfig"),
				DryRun:     cmd.Bool("dry-run"),
			}

			if !opts.DryRun && !cmd.Bool("yes") {
				prompt := fmt.Sprintf("Apply time-slicing profiles %v to %s/%s",
					profiles.Names(), opts.Namespace, opts.Name)
				if !confirm(os.Stdin, os.Stdout, prompt) {
					fmt.Fprintln(os.Stdout, "aborted")
					return nil
				}
			}

			if err := timeslice.Apply(ctx, profiles, opts); err != nil {
				return err
			}

			if profile == "" {
				return nil
			}

			labeled, err := timeslice.LabelNodes(ctx, profile, opts)
			if err != nil {
				return err
			}

			if cmd.Bool("wait") && !opts.DryRun {
				selected, err := profiles.Get(profile)
				if err != nil {
					return err
				}
				listOpts := node.ListOptions{Kubeconfig: cmd.String("kubeconfig")}
				if err := node.WaitSlicedCapacity(ctx, selected, listOpts); err != nil {
					return err
				}
			}

			return serializer.NewWriter(serializer.FormatYAML, os.Stdout).Serialize(map[string]any{
				"profile":      profile,
				"labeledNodes": labeled,
				"dryRun":       opts.DryRun,
			})
		},
	}
}
