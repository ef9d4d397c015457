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
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/gpuslice/pkg/config"
	"github.com/NVIDIA/gpuslice/pkg/serializer"
	"github.com/NVIDIA/gpuslice/pkg/timeslice"
)

// outputFormat parses and validates the --format flag.
func outputFormat(cmd *cli.Command) (serializer.Format, error) {
	f := serializer.Format(cmd.String("format"))
	if f.IsUnknown() {
		return "", fmt.Errorf("unknown output format %q (supported: %v)", f, serializer.SupportedFormats())
	}
	return f, nil
}

// loadClusterConfig loads and validates the cluster config named by the
// --config flag.
func loadClusterConfig(cmd *cli.Command) (*config.Cluster, error) {
	path := cmd.String("config")
	if path == "" {
		return nil, fmt.Errorf("a cluster config file is required (--config)")
	}
	return config.Load(path)
}

// loadProfiles resolves the time-slicing profile set for a command:
// the --profiles file wins, then the timeSlicing section of --config,
// then the built-in per-architecture defaults.
func loadProfiles(cmd *cli.Command) (timeslice.ProfileSet, error) {
	if path := cmd.String("profiles"); path != "" {
		set, err := serializer.FromFile[timeslice.ProfileSet](path)
		if err != nil {
			return timeslice.ProfileSet{}, fmt.Errorf("failed to load profiles from %q: %w", path, err)
		}
		if err := set.Validate(); err != nil {
			return timeslice.ProfileSet{}, err
		}
		return *set, nil
	}

	if path := cmd.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return timeslice.ProfileSet{}, err
		}
		return cfg.TimeSlicing, nil
	}

	return timeslice.DefaultProfiles(), nil
}

// serialize writes v to the --output destination in the --format format.
func serialize(cmd *cli.Command, v any) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	ser := serializer.NewFileWriterOrStdout(format, cmd.String("output"))
	defer func() {
		if err := ser.Close(); err != nil {
			slog.Warn("failed to close serializer", "error", err)
		}
	}()

	return ser.Serialize(v)
}
