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
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/NVIDIA/gpuslice/pkg/defaults"
	apperrors "github.com/NVIDIA/gpuslice/pkg/errors"
	"github.com/NVIDIA/gpuslice/pkg/metrics"
)

// Commander runs an external command and returns its output streams.
// Abstracted for testing with a fake implementation.
type Commander interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecCommander is the production Commander backed by os/exec.
type ExecCommander struct{}

// Run executes the command and captures stdout and stderr separately.
func (ExecCommander) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// Runner invokes the az CLI with retries and polling rate limits.
type Runner struct {
	cmd      Commander
	limiter  *rate.Limiter
	attempts int
	backoff  time.Duration
}

// Option is a functional option for configuring Runner instances.
type Option func(*Runner)

// WithCommander overrides the command executor, used in tests.
func WithCommander(c Commander) Option {
	return func(r *Runner) { r.cmd = c }
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(r *Runner) {
		r.attempts = attempts
		r.backoff = backoff
	}
}

// NewRunner creates a Runner with default retry and poll settings.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		cmd:      ExecCommander{},
		limiter:  rate.NewLimiter(rate.Every(defaults.AzPollInterval), 1),
		attempts: defaults.AzRetryAttempts,
		backoff:  defaults.AzRetryBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// transientFragments mark az failures worth retrying: throttling and
// transient service errors. Anything else fails fast.
var transientFragments = []string{
	"429",
	"TooManyRequests",
	"ServiceUnavailable",
	"InternalServerError",
	"GatewayTimeout",
	"connection reset",
	"timed out",
}

func isTransient(stderr string) bool {
	for _, frag := range transientFragments {
		if strings.Contains(stderr, frag) {
			return true
		}
	}
	return false
}

// AZ runs `az args... --output json` bounded by timeout and returns the
// parsed JSON result. Transient failures are retried with linear backoff.
func (r *Runner) AZ(ctx context.Context, timeout time.Duration, args ...string) (gjson.Result, error) {
	fullArgs := append(append([]string{}, args...), "--output", "json")

	var lastStderr string
	var lastErr error

	for attempt := 1; attempt <= r.attempts; attempt++ {
		cmdCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		stdout, stderr, err := r.cmd.Run(cmdCtx, "az", fullArgs...)
		cancel()

		metrics.ObserveToolInvocation("az", args[0], time.Since(start), err == nil)

		if err == nil {
			if len(bytes.TrimSpace(stdout)) == 0 {
				return gjson.Result{}, nil
			}
			out := gjson.ParseBytes(stdout)
			return out, nil
		}

		lastStderr = strings.TrimSpace(string(stderr))
		lastErr = err

		if ctx.Err() != nil {
			return gjson.Result{}, apperrors.Wrap(apperrors.ErrCodeTimeout, "az invocation canceled", ctx.Err())
		}
		if !isTransient(lastStderr) {
			break
		}
		if attempt == r.attempts {
			break
		}

		slog.Warn("transient az failure, retrying",
			"args", strings.Join(args, " "),
			"attempt", attempt,
			"stderr", tail(lastStderr, 240))

		select {
		case <-ctx.Done():
			return gjson.Result{}, apperrors.Wrap(apperrors.ErrCodeTimeout, "az invocation canceled", ctx.Err())
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}

	return gjson.Result{}, apperrors.WrapWithContext(apperrors.ErrCodeExternalTool,
		"az "+strings.Join(args, " ")+" failed", lastErr,
		map[string]any{"stderr": tail(lastStderr, 480)})
}

// PollUntil repeatedly invokes check, rate limited, until it reports done,
// the context expires, or the timeout elapses.
func (r *Runner) PollUntil(ctx context.Context, timeout time.Duration, what string, check func(context.Context) (bool, error)) error {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		if err := r.limiter.Wait(pollCtx); err != nil {
			return apperrors.Newf(apperrors.ErrCodeTimeout, "timed out waiting for %s after %s", what, timeout)
		}

		done, err := check(pollCtx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		slog.Debug("still waiting", "for", what)
	}
}

// tail returns at most n trailing bytes of s; error details from az live
// at the end of stderr.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
