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

package node

import (
	"context"
	"log/slog"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/NVIDIA/gpuslice/pkg/defaults"
	apperrors "github.com/NVIDIA/gpuslice/pkg/errors"
	"github.com/NVIDIA/gpuslice/pkg/timeslice"
)

// WaitSlicedCapacity blocks until every GPU node advertises the capacity
// expected under profile: physical GPUs times the replica count. The
// device plugin re-registers after a config change, so the sliced
// capacity can lag the apply by several minutes. Nodes whose physical GPU
// count cannot be resolved are not waited on.
func WaitSlicedCapacity(ctx context.Context, profile timeslice.Profile, opt ListOptions) error {
	err := wait.PollUntilContextTimeout(ctx, defaults.K8sPollInterval, defaults.K8sCapacityTimeout, true,
		func(ctx context.Context) (bool, error) {
			nodes, err := GPUSummary(ctx, opt)
			if err != nil {
				// Transient API errors are retried until the deadline.
				slog.Debug("node summary failed, retrying", "error", err)
				return false, nil
			}
			if len(nodes) == 0 {
				return false, nil
			}

			for _, n := range nodes {
				want, err := profile.ExpectedCapacity(n.PhysicalGPUs)
				if err != nil {
					continue
				}
				if n.Capacity != want {
					slog.Debug("capacity not yet sliced",
						"node", n.Name, "capacity", n.Capacity, "want", want)
					return false, nil
				}
			}
			return true, nil
		})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeTimeout,
			"timed out waiting for sliced GPU capacity for profile "+profile.Name, err)
	}

	slog.Info("sliced capacity advertised", "profile", profile.Name)
	return nil
}
