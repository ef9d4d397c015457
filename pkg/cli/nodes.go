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

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/gpuslice/pkg/k8s/node"
)

func nodesCmd() *cli.Command {
	return &cli.Command{
		Name:                  "nodes",
		EnableShellCompletion: true,
		Usage:                 "List GPU nodes with their time-slicing profile and advertised capacity",
		Description: `List every node carrying the nvidia.com/gpu.present label with:
  - Instance type and GPU product
  - Physical GPU count and advertised nvidia.com/gpu capacity
  - The device plugin config profile selected for the node
  - Driver version and readiness

The advertised capacity exceeds the physical count when time-slicing is
active. Output is available in JSON, YAML, or table format.`,
		Flags: []cli.Flag{
			kubeconfigFlag,
			&cli.StringFlag{
				Name:  "selector",
				Usage: "Additional label selector to filter nodes (e.g. gpupool=true)",
			},
			outputFlag,
			formatFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			nodes, err := node.GPUSummary(ctx, node.ListOptions{
				Kubeconfig:    cmd.String("kubeconfig"),
				LabelSelector: cmd.String("selector"),
			})
			if err != nil {
				return fmt.Errorf("failed to list GPU nodes: %w", err)
			}

			return serialize(cmd, nodes)
		},
	}
}
