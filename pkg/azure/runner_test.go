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

package azure

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/NVIDIA/gpuslice/pkg/errors"
)

// fakeCommander scripts az responses by matching a prefix of the joined
// argument list. Unmatched calls fail the test.
type fakeCommander struct {
	t     *testing.T
	calls []string

	// responses maps an args prefix to a scripted response. First match
	// in declaration order wins.
	responses []fakeResponse
}

type fakeResponse struct {
	prefix string
	stdout string
	stderr string
	err    error

	// failures makes the response fail this many times before succeeding.
	failures int
}

func (f *fakeCommander) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	joined := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, joined)

	for i := range f.responses {
		r := &f.responses[i]
		if strings.HasPrefix(joined, r.prefix) {
			if r.failures > 0 {
				r.failures--
				return nil, []byte(r.stderr), errors.New("exit status 1")
			}
			return []byte(r.stdout), []byte(r.stderr), r.err
		}
	}

	f.t.Fatalf("unexpected command: %s", joined)
	return nil, nil, nil
}

func (f *fakeCommander) callCount(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func newTestRunner(f *fakeCommander) *Runner {
	return NewRunner(WithCommander(f), WithRetry(3, time.Millisecond))
}

func TestAZAppendsJSONOutput(t *testing.T) {
	f := &fakeCommander{t: t, responses: []fakeResponse{
		{prefix: "az account show", stdout: `{"name":"dev","id":"sub-1"}`},
	}}

	out, err := newTestRunner(f).AZ(t.Context(), time.Second, "account", "show")
	require.NoError(t, err)
	assert.Equal(t, "dev", out.Get("name").String())

	require.Len(t, f.calls, 1)
	assert.True(t, strings.HasSuffix(f.calls[0], "--output json"))
}

func TestAZEmptyOutput(t *testing.T) {
	f := &fakeCommander{t: t, responses: []fakeResponse{
		{prefix: "az aks get-credentials", stdout: ""},
	}}

	out, err := newTestRunner(f).AZ(t.Context(), time.Second, "aks", "get-credentials")
	require.NoError(t, err)
	assert.False(t, out.Exists())
}

func TestAZRetriesTransientFailures(t *testing.T) {
	f := &fakeCommander{t: t, responses: []fakeResponse{
		{prefix: "az group create", stdout: `{"id":"rg-1"}`, stderr: "TooManyRequests", failures: 2},
	}}

	out, err := newTestRunner(f).AZ(t.Context(), time.Second, "group", "create")
	require.NoError(t, err)
	assert.Equal(t, "rg-1", out.Get("id").String())
	assert.Equal(t, 3, f.callCount("az group create"))
}

func TestAZFailsFastOnNonTransientError(t *testing.T) {
	f := &fakeCommander{t: t, responses: []fakeResponse{
		{prefix: "az group create", stderr: "InvalidResourceGroup", failures: 99},
	}}

	_, err := newTestRunner(f).AZ(t.Context(), time.Second, "group", "create")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeExternalTool))
	assert.Equal(t, 1, f.callCount("az group create"), "non-transient errors must not retry")
}

func TestAZGivesUpAfterRetryBudget(t *testing.T) {
	f := &fakeCommander{t: t, responses: []fakeResponse{
		{prefix: "az group create", stderr: "ServiceUnavailable", failures: 99},
	}}

	_, err := newTestRunner(f).AZ(t.Context(), time.Second, "group", "create")
	require.Error(t, err)
	assert.Equal(t, 3, f.callCount("az group create"))
}

func TestAZReturnsImmediatelyAfterFinalAttempt(t *testing.T) {
	f := &fakeCommander{t: t, responses: []fakeResponse{
		{prefix: "az group create", stderr: "ServiceUnavailable", failures: 99},
	}}

	r := NewRunner(WithCommander(f), WithRetry(2, 150*time.Millisecond))
	start := time.Now()
	_, err := r.AZ(t.Context(), time.Second, "group", "create")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, 2, f.callCount("az group create"))
	// one backoff between the two attempts, none after the last
	assert.Less(t, elapsed, 300*time.Millisecond)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail("short", 10))
	long := strings.Repeat("x", 20) + "tail"
	got := tail(long, 8)
	assert.True(t, strings.HasPrefix(got, "..."))
	assert.True(t, strings.HasSuffix(got, "tail"))
}

func TestCheckPrerequisites(t *testing.T) {
	f := &fakeCommander{t: t, responses: []fakeResponse{
		{prefix: "az account show", stdout: `{"name":"dev","id":"sub-1","tenantId":"t-1"}`},
	}}
	r := newTestRunner(f)

	t.Run("all present", func(t *testing.T) {
		err := r.CheckPrerequisites(t.Context(), PrereqOptions{
			LookPath: func(string) (string, error) { return "/usr/bin/tool", nil },
		})
		assert.NoError(t, err)
	})

	t.Run("missing helm", func(t *testing.T) {
		err := r.CheckPrerequisites(t.Context(), PrereqOptions{
			LookPath: func(name string) (string, error) {
				if name == "helm" {
					return "", errors.New("not found")
				}
				return "/usr/bin/" + name, nil
			},
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodePrerequisite))
		assert.Contains(t, err.Error(), "helm")
	})

	t.Run("terraform required", func(t *testing.T) {
		err := r.CheckPrerequisites(t.Context(), PrereqOptions{
			Terraform: true,
			LookPath: func(name string) (string, error) {
				if name == "terraform" {
					return "", errors.New("not found")
				}
				return "/usr/bin/" + name, nil
			},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "terraform")
	})

	t.Run("skip login", func(t *testing.T) {
		fresh := &fakeCommander{t: t}
		err := newTestRunner(fresh).CheckPrerequisites(t.Context(), PrereqOptions{
			SkipLogin: true,
			LookPath:  func(string) (string, error) { return "/usr/bin/tool", nil },
		})
		assert.NoError(t, err)
		assert.Empty(t, fresh.calls)
	})
}
