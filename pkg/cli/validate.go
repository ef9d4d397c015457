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

	"github.com/NVIDIA/gpuslice/pkg/serializer"
	"github.com/NVIDIA/gpuslice/pkg/validator"
)

func validateCmd() *cli.Command {
	return &cli.Command{
		Name:                  "validate",
		EnableShellCompletion: true,
		Usage:                 "Validate that the cluster matches the declared time-slicing profiles",
		Description: `Run read-only checks against the cluster and compare the observed state
to the declared profile set:
  - GPU nodes exist and are Ready
  - Every GPU node selects a declared device plugin config profile
  - The time-slicing ConfigMap exists with matching replica counts
  - Advertised nvidia.com/gpu capacity equals physical GPUs x replicas
  - GPU Operator pods are running
  - Driver versions are consistent across nodes and not older than
    --min-driver-version

The table format prints a colorized report; JSON and YAML emit the raw
result for machine consumption. With --fail-on-error the command exits
non-zero when any check fails.`,
		Flags: []cli.Flag{
			kubeconfigFlag,
			configFlag,
			profilesFlag,
			namespaceFlag,
			configMapFlag,
			&cli.IntFlag{
				Name:  "expect-gpu-nodes",
				Usage: "Fail unless at least this many GPU nodes are found (0 disables)",
			},
			&cli.StringFlag{
				Name:  "min-driver-version",
				Usage: "Minimum acceptable NVIDIA driver version (default: built-in floor)",
			},
			&cli.BoolFlag{
				Name:  "fail-on-error",
				Usage: "Exit non-zero when any check fails",
			},
			outputFlag,
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"t"},
				Value:   string(serializer.FormatTable),
				Usage:   "Output format: table, yaml, json",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			profiles, err := loadProfiles(cmd)
			if err != nil {
				return err
			}

			v, err := validator.New(profiles, validator.Options{
				Kubeconfig:       cmd.String("kubeconfig"),
				Namespace:        cmd.String("namespace"),
				ConfigMapName:    cmd.String("configmap"),
				ExpectedGPUNodes: int(cmd.Int("expect-gpu-nodes")),
				MinDriverVersion: cmd.String("min-driver-version"),
			})
			if err != nil {
				return err
			}

			result, err := v.Run(ctx)
			if err != nil {
				return fmt.Errorf("validation run failed: %w", err)
			}

			if err := writeValidation(cmd, format, result); err != nil {
				return err
			}

			if cmd.Bool("fail-on-error") {
				return result.Err()
			}
			return nil
		},
	}
}

// writeValidation renders the result: a human report for table format,
// the raw result through the serializer otherwise.
func writeValidation(cmd *cli.Command, format serializer.Format, result *validator.ValidationResult) error {
	if format != serializer.FormatTable {
		return serialize(cmd, result)
	}

	out := os.Stdout
	if path := cmd.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file %q: %w", path, err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				slog.Warn("failed to close output file", "error", err)
			}
		}()
		out = f
	}

	validator.WriteReport(out, result)
	return nil
}
