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
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/gpuslice/pkg/bundle"
	"github.com/NVIDIA/gpuslice/pkg/config"
	"github.com/NVIDIA/gpuslice/pkg/serializer"
)

func bundleCmd() *cli.Command {
	return &cli.Command{
		Name:                  "bundle",
		EnableShellCompletion: true,
		Usage:                 "Generate a self-contained deployment bundle",
		Description: `Render everything needed to deploy GPU time-slicing without this
tool: the GPU Operator Helm values, the time-slicing ConfigMap
manifest, Terraform variables (when a cluster config is given), and a
README with the exact helm and kubectl commands. A manifest with
content digests accompanies the files.

The output target is either a local directory or an OCI registry
reference (oci://registry/repository[:tag]), in which case the bundle
is packaged as a single-layer artifact and pushed with the local
Docker credentials. Untagged OCI targets default to the tool version.`,
		Flags: []cli.Flag{
			profilesFlag,
			configFlag,
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "./bundle",
				Usage:   "Output directory or OCI reference (oci://registry/repo[:tag])",
			},
			&cli.BoolFlag{
				Name:  "plain-http",
				Usage: "Use HTTP for the registry connection (local registries)",
			},
			&cli.BoolFlag{
				Name:  "insecure-tls",
				Usage: "Skip registry TLS certificate verification",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			profiles, err := loadProfiles(cmd)
			if err != nil {
				return err
			}

			var cfg *config.Cluster
			if cmd.String("config") != "" {
				cfg, err = loadClusterConfig(cmd)
				if err != nil {
					return err
				}
			}

			target := cmd.String("output")
			manifest, push, err := bundle.WriteTarget(ctx, target, bundle.Options{
				Profiles:    profiles,
				Config:      cfg,
				Version:     version,
				PlainHTTP:   cmd.Bool("plain-http"),
				InsecureTLS: cmd.Bool("insecure-tls"),
			})
			if err != nil {
				return err
			}

			out := map[string]any{
				"target":   target,
				"manifest": manifest,
			}
			if push != nil {
				out["digest"] = push.Digest
				out["reference"] = push.Reference
			}

			ser := serializer.NewWriter(serializer.FormatYAML, os.Stdout)
			defer func() {
				if err := ser.Close(); err != nil {
					slog.Warn("failed to close serializer", "error", err)
				}
			}()
			return ser.Serialize(out)
		},
	}
}
