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

package defaults

import "time"

// Azure CLI timeouts. Cluster creation dominates: AKS control plane plus a
// GPU node pool routinely takes 10+ minutes.
const (
	// AzCommandTimeout bounds a single non-provisioning az invocation.
	AzCommandTimeout = 2 * time.Minute

	// AzProvisionTimeout bounds long-running az create operations.
	AzProvisionTimeout = 30 * time.Minute

	// AzDeleteTimeout bounds resource group deletion when waiting.
	AzDeleteTimeout = 30 * time.Minute

	// AzPollInterval is the pause between provisioning state polls.
	AzPollInterval = 15 * time.Second

	// AzRetryAttempts is the number of attempts for transient az failures.
	AzRetryAttempts = 3

	// AzRetryBackoff is the base backoff between retry attempts.
	AzRetryBackoff = 5 * time.Second
)

// Terraform timeouts.
const (
	// TerraformInitTimeout bounds terraform init (provider downloads).
	TerraformInitTimeout = 5 * time.Minute

	// TerraformPlanTimeout bounds terraform plan and validate.
	TerraformPlanTimeout = 10 * time.Minute

	// TerraformApplyTimeout bounds terraform apply and destroy.
	TerraformApplyTimeout = 45 * time.Minute
)

// Helm timeouts.
const (
	// HelmCommandTimeout bounds helm repo operations.
	HelmCommandTimeout = 2 * time.Minute

	// HelmInstallTimeout bounds helm upgrade --install of the GPU Operator.
	HelmInstallTimeout = 15 * time.Minute
)

// Kubernetes timeouts for API operations and readiness waits.
const (
	// K8sRequestTimeout bounds individual Kubernetes API calls.
	K8sRequestTimeout = 30 * time.Second

	// K8sOperatorReadyTimeout bounds the wait for GPU Operator pods.
	// Driver container compilation on first rollout can take a while.
	K8sOperatorReadyTimeout = 20 * time.Minute

	// K8sCapacityTimeout bounds the wait for time-sliced GPU capacity to
	// be re-advertised after a device plugin config change.
	K8sCapacityTimeout = 5 * time.Minute

	// K8sPollInterval is the pause between readiness polls.
	K8sPollInterval = 10 * time.Second

	// ConfigMapWriteTimeout bounds ConfigMap writes.
	ConfigMapWriteTimeout = 30 * time.Second
)

// CLI timeouts.
const (
	// CLIValidateTimeout is the default deadline for the validate command.
	CLIValidateTimeout = 5 * time.Minute
)
