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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Guards against accidental inversions when tuning timeouts.
func TestTimeoutRelationships(t *testing.T) {
	assert.Less(t, AzCommandTimeout, AzProvisionTimeout,
		"single command timeout must be shorter than provisioning timeout")
	assert.Less(t, AzPollInterval, AzProvisionTimeout)
	assert.Less(t, AzRetryBackoff, AzCommandTimeout)

	assert.Less(t, TerraformInitTimeout, TerraformApplyTimeout)
	assert.Less(t, TerraformPlanTimeout, TerraformApplyTimeout)

	assert.Less(t, HelmCommandTimeout, HelmInstallTimeout)

	assert.Less(t, K8sRequestTimeout, K8sOperatorReadyTimeout)
	assert.Less(t, K8sPollInterval, K8sCapacityTimeout)
}

func TestRetrySettings(t *testing.T) {
	assert.GreaterOrEqual(t, AzRetryAttempts, 1)
}
