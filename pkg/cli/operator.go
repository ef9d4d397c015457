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

	"github.com/NVIDIA/gpuslice/pkg/k8s/client"
	"github.com/NVIDIA/gpuslice/pkg/operator"
	"github.com/NVIDIA/gpuslice/pkg/timeslice"
)

func operatorCmd() *cli.Command {
	return &cli.Command{
		Name:                  "operator",
		EnableShellCompletion: true,
		Usage:                 "Install or remove the NVIDIA GPU Operator",
		Description: `Manage the GPU Operator Helm release. The operator installs the
driver, container toolkit, device plugin, and GPU feature discovery on
every GPU node. The device plugin is wired to read its sharing
configuration from the time-slicing ConfigMap, which install applies
before the Helm release so the plugin never starts unconfigured.`,
		Commands: []*cli.Command{
			operatorInstallCmd(),
			operatorUninstallCmd(),
		},
	}
}

func operatorInstallCmd() *cli.Command {
	return &cli.Command{
		Name:                  "install",
		EnableShellCompletion: true,
		Usage:                 "Install the GPU Operator wired for time-slicing",
		Description: `Apply the time-slicing ConfigMap, then install the GPU Operator with
helm upgrade --install:
  - Driver and container toolkit managed by the operator (node pools
    are provisioned with --gpu-driver none)
  - Device plugin config sourced from the time-slicing ConfigMap with
    the declared default profile
  - Waits for the device plugin daemonset to become Ready unless
    --no-wait is given

Chart and driver versions default to the latest in the NGC repository;
pin them for reproducible installs. Use --values-only to render the
values file for inspection or GitOps without touching the cluster, and
--set for raw chart overrides beyond what the flags cover.`,
		Flags: []cli.Flag{
			configFlag,
			profilesFlag,
			kubeconfigFlag,
			namespaceFlag,
			configMapFlag,
			&cli.StringFlag{
				Name:  "chart-version",
				Usage: "GPU Operator chart version (default: latest)",
			},
			&cli.StringFlag{
				Name:  "driver-version",
				Usage: "NVIDIA driver version (default: chart default)",
			},
			&cli.StringFlag{
				Name:  "driver-registry",
				Value: operator.DefaultDriverRegistry,
				Usage: "Registry hosting the driver images",
			},
			&cli.StringSliceFlag{
				Name:  "set",
				Usage: "Raw chart override passed to helm --set (key=value, repeatable)",
			},
			&cli.BoolFlag{
				Name:  "values-only",
				Usage: "Render the values file to --output without installing",
			},
			&cli.BoolFlag{
				Name:  "no-wait",
				Usage: "Do not wait for the device plugin to become Ready",
			},
			yesFlag,
			outputFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			profiles, err := loadProfiles(cmd)
			if err != nil {
				return err
			}

			values, err := operator.NewHelmValues(&profiles)
			if err != nil {
				return err
			}
			values.Namespace = cmd.String("namespace")
			values.DevicePluginConfigMap = cmd.String("configmap")
			values.ChartVersion = cmd.String("chart-version")
			values.DriverVersion = cmd.String("driver-version")
			values.DriverRegistry = cmd.String("driver-registry")
			if err := applyOperatorConfig(cmd, values); err != nil {
				return err
			}

			if err := values.Validate(); err != nil {
				return err
			}

			if cmd.Bool("values-only") {
				rendered, err := operator.RenderValues(values)
				if err != nil {
					return err
				}
				if path := cmd.String("output"); path != "" {
					return os.WriteFile(path, rendered, 0o644)
				}
				_, err = os.Stdout.Write(rendered)
				return err
			}

			if !cmd.Bool("yes") {
				prompt := fmt.Sprintf("Install GPU Operator release %q in namespace %q",
					operator.ReleaseName, values.Namespace)
				if !confirm(os.Stdin, os.Stdout, prompt) {
					fmt.Fprintln(os.Stdout, "aborted")
					return nil
				}
			}

			// The device plugin reads this ConfigMap on startup; apply it
			// before the release exists.
			applyOpts := timeslice.ApplyOptions{
				Namespace:  values.Namespace,
				Name:       values.DevicePluginConfigMap,
				Kubeconfig: cmd.String("kubeconfig"),
			}
			if err := timeslice.Apply(ctx, profiles, applyOpts); err != nil {
				return err
			}

			installer := operator.NewInstaller()
			if !cmd.Bool("no-wait") {
				cs, _, err := client.GetWithKubeconfig(cmd.String("kubeconfig"))
				if err != nil {
					return fmt.Errorf("failed to get kubernetes client: %w", err)
				}
				installer = operator.NewInstaller(operator.WithClient(cs))
			}

			if err := installer.Install(ctx, values, cmd.StringSlice("set")...); err != nil {
				return err
			}

			if cmd.Bool("no-wait") {
				return nil
			}
			return installer.WaitReady(ctx, values.Namespace)
		},
	}
}

// applyOperatorConfig overlays operator settings from the cluster config
// file for flags left at their defaults.
func applyOperatorConfig(cmd *cli.Command, values *operator.HelmValues) error {
	if cmd.String("config") == "" {
		return nil
	}
	cfg, err := loadClusterConfig(cmd)
	if err != nil {
		return err
	}

	if !cmd.IsSet("namespace") && cfg.Operator.Namespace != "" {
		values.Namespace = cfg.Operator.Namespace
	}
	if !cmd.IsSet("chart-version") && cfg.Operator.ChartVersion != "" {
		values.ChartVersion = cfg.Operator.ChartVersion
	}
	if !cmd.IsSet("driver-version") && cfg.Operator.DriverVersion != "" {
		values.DriverVersion = cfg.Operator.DriverVersion
	}
	if !cmd.IsSet("driver-registry") && cfg.Operator.DriverRegistry != "" {
		values.DriverRegistry = cfg.Operator.DriverRegistry
	}
	return nil
}

func operatorUninstallCmd() *cli.Command {
	return &cli.Command{
		Name:                  "uninstall",
		EnableShellCompletion: true,
		Usage:                 "Uninstall the GPU Operator Helm release",
		Description: `Remove the GPU Operator release from the cluster. The time-slicing
ConfigMap and node labels are left in place so a reinstall resumes with
the same sharing configuration.`,
		Flags: []cli.Flag{
			namespaceFlag,
			yesFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			namespace := cmd.String("namespace")

			if !cmd.Bool("yes") {
				prompt := fmt.Sprintf("Uninstall GPU Operator release %q from namespace %q",
					operator.ReleaseName, namespace)
				if !confirm(os.Stdin, os.Stdout, prompt) {
					fmt.Fprintln(os.Stdout, "aborted")
					return nil
				}
			}

			return operator.NewInstaller().Uninstall(ctx, namespace)
		},
	}
}
