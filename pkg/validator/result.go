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

package validator

import (
	"time"

	"github.com/hashicorp/go-multierror"

	apperrors "github.com/NVIDIA/gpuslice/pkg/errors"
)

// ValidationStatus represents the overall validation outcome.
type ValidationStatus string

const (
	// ValidationStatusPass indicates all checks passed.
	ValidationStatusPass ValidationStatus = "pass"

	// ValidationStatusFail indicates one or more checks failed.
	ValidationStatusFail ValidationStatus = "fail"

	// ValidationStatusPartial indicates some checks could not be evaluated.
	ValidationStatusPartial ValidationStatus = "partial"
)

// CheckStatus represents the outcome of a single check.
type CheckStatus string

const (
	// CheckStatusPassed indicates the check was satisfied.
	CheckStatusPassed CheckStatus = "passed"

	// CheckStatusFailed indicates the check was not satisfied.
	CheckStatusFailed CheckStatus = "failed"

	// CheckStatusSkipped indicates the check could not be evaluated,
	// typically because the cluster has not published the data yet.
	CheckStatusSkipped CheckStatus = "skipped"
)

// CheckResult represents the result of evaluating a single check.
type CheckResult struct {
	// Name identifies the check (e.g. "gpu-capacity").
	Name string `json:"name" yaml:"name"`

	// Expected describes the condition the check looked for.
	Expected string `json:"expected" yaml:"expected"`

	// Actual is the observed cluster state.
	Actual string `json:"actual" yaml:"actual"`

	// Status is the outcome of the check.
	Status CheckStatus `json:"status" yaml:"status"`

	// Message provides additional context for failures or skips.
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// ValidationSummary contains aggregate statistics about the validation.
type ValidationSummary struct {
	Passed  int              `json:"passed" yaml:"passed"`
	Failed  int              `json:"failed" yaml:"failed"`
	Skipped int              `json:"skipped" yaml:"skipped"`
	Total   int              `json:"total" yaml:"total"`
	Status  ValidationStatus `json:"status" yaml:"status"`

	// Duration is how long the validation took.
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// ValidationResult represents the complete validation outcome.
type ValidationResult struct {
	// Timestamp is when the validation ran.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// Namespace is the GPU Operator namespace that was inspected.
	Namespace string `json:"namespace" yaml:"namespace"`

	// Summary contains aggregate validation statistics.
	Summary ValidationSummary `json:"summary" yaml:"summary"`

	// Results contains per-check details.
	Results []CheckResult `json:"results" yaml:"results"`
}

// NewValidationResult creates a ValidationResult with initialized slices.
func NewValidationResult(namespace string) *ValidationResult {
	return &ValidationResult{
		Timestamp: time.Now().UTC(),
		Namespace: namespace,
		Results:   make([]CheckResult, 0),
	}
}

// finalize computes the summary from the accumulated results.
func (r *ValidationResult) finalize(started time.Time) {
	for _, c := range r.Results {
		switch c.Status {
		case CheckStatusPassed:
			r.Summary.Passed++
		case CheckStatusFailed:
			r.Summary.Failed++
		case CheckStatusSkipped:
			r.Summary.Skipped++
		}
	}
	r.Summary.Total = len(r.Results)
	r.Summary.Duration = time.Since(started)

	switch {
	case r.Summary.Failed > 0:
		r.Summary.Status = ValidationStatusFail
	case r.Summary.Skipped > 0:
		r.Summary.Status = ValidationStatusPartial
	default:
		r.Summary.Status = ValidationStatusPass
	}
}

// Err aggregates failed checks into a single error, or nil when nothing
// failed. Skipped checks do not contribute.
func (r *ValidationResult) Err() error {
	var merr *multierror.Error
	for _, c := range r.Results {
		if c.Status == CheckStatusFailed {
			merr = multierror.Append(merr, apperrors.Newf(apperrors.ErrCodeInvalidRequest,
				"check %s failed: expected %s, got %s", c.Name, c.Expected, c.Actual))
		}
	}
	return merr.ErrorOrNil()
}
