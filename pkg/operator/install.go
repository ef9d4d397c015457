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

package operator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"

	"github.com/NVIDIA/gpuslice/pkg/azure"
	"github.com/NVIDIA/gpuslice/pkg/defaults"
	apperrors "github.com/NVIDIA/gpuslice/pkg/errors"
	"github.com/NVIDIA/gpuslice/pkg/metrics"
)

// devicePluginLabel selects the device plugin daemonset pods managed by
// the operator.
const devicePluginLabel = "app=nvidia-device-plugin-daemonset"

// Installer drives helm to install the GPU Operator and waits for its
// workloads to come up.
type Installer struct {
	cmd    azure.Commander
	client kubernetes.Interface
}

// InstallerOption is a functional option for configuring Installer instances.
type InstallerOption func(*Installer)

// WithCommander overrides the command executor, used in tests.
func WithCommander(c azure.Commander) InstallerOption {
	return func(i *Installer) { i.cmd = c }
}

// WithClient overrides the Kubernetes client, used in tests.
func WithClient(client kubernetes.Interface) InstallerOption {
	return func(i *Installer) { i.client = client }
}

// NewInstaller creates an Installer. The client may be nil when only
// Install (not WaitReady) will be used.
func NewInstaller(opts ...InstallerOption) *Installer {
	i := &Installer{cmd: azure.ExecCommander{}}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install renders the values file and runs helm upgrade --install for the
// GPU Operator chart. The release is idempotent: rerunning converges the
// deployed release onto the rendered values. Overrides are raw key=value
// pairs passed through to helm --set, applied after the values file.
func (i *Installer) Install(ctx context.Context, values *HelmValues, overrides ...string) error {
	rendered, err := RenderValues(values)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "gpuslice-helm-*")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to create helm values dir", err)
	}
	defer os.RemoveAll(dir)

	valuesFile := filepath.Join(dir, "values.yaml")
	if err := os.WriteFile(valuesFile, rendered, 0o644); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInternal, "failed to write helm values", err)
	}

	if err := i.helm(ctx, defaults.HelmCommandTimeout,
		"repo", "add", HelmRepoName, HelmRepoURL, "--force-update"); err != nil {
		return err
	}
	if err := i.helm(ctx, defaults.HelmCommandTimeout, "repo", "update", HelmRepoName); err != nil {
		return err
	}

	args := []string{
		"upgrade", "--install", ReleaseName, HelmChart,
		"--namespace", values.Namespace,
		"--create-namespace",
		"--values", valuesFile,
		"--wait",
		"--timeout", defaults.HelmInstallTimeout.String(),
	}
	if values.ChartVersion != "" {
		args = append(args, "--version", values.ChartVersion)
	}
	for _, kv := range overrides {
		if !strings.Contains(kv, "=") {
			return apperrors.Newf(apperrors.ErrCodeInvalidRequest,
				"invalid --set override %q, expected key=value", kv)
		}
		args = append(args, "--set", kv)
	}

	slog.Info("installing gpu operator",
		"chart", HelmChart,
		"version", values.ChartVersion,
		"namespace", values.Namespace)

	return i.helm(ctx, defaults.HelmInstallTimeout+time.Minute, args...)
}

// Uninstall removes the operator release. Missing releases are not an error.
func (i *Installer) Uninstall(ctx context.Context, namespace string) error {
	err := i.helm(ctx, defaults.HelmInstallTimeout,
		"uninstall", ReleaseName, "--namespace", namespace, "--wait")
	if err != nil && strings.Contains(err.Error(), "not found") {
		slog.Debug("gpu operator release not found, nothing to uninstall")
		return nil
	}
	return err
}

// WaitReady blocks until the device plugin daemonset pods are running and
// ready, which is the last operator component to settle after a config
// change.
func (i *Installer) WaitReady(ctx context.Context, namespace string) error {
	if i.client == nil {
		return apperrors.New(apperrors.ErrCodeInvalidRequest, "kubernetes client not configured")
	}

	err := wait.PollUntilContextTimeout(ctx, defaults.K8sPollInterval, defaults.K8sOperatorReadyTimeout, true,
		func(ctx context.Context) (bool, error) {
			pods, err := i.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
				LabelSelector: devicePluginLabel,
			})
			if err != nil {
				// Transient API errors are retried until the deadline.
				slog.Debug("pod list failed, retrying", "error", err)
				return false, nil
			}
			if len(pods.Items) == 0 {
				return false, nil
			}
			for _, pod := range pods.Items {
				if !podReady(&pod) {
					return false, nil
				}
			}
			return true, nil
		})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeTimeout,
			"timed out waiting for device plugin pods", err)
	}

	slog.Info("gpu operator ready", "namespace", namespace)
	return nil
}

func podReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

func (i *Installer) helm(ctx context.Context, timeout time.Duration, args ...string) error {
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	_, stderr, err := i.cmd.Run(cmdCtx, "helm", args...)
	metrics.ObserveToolInvocation("helm", args[0], time.Since(start), err == nil)

	if err != nil {
		if cmdCtx.Err() != nil {
			return apperrors.Newf(apperrors.ErrCodeTimeout,
				"helm %s timed out after %s", args[0], timeout)
		}
		return apperrors.WrapWithContext(apperrors.ErrCodeExternalTool,
			"helm "+args[0]+" failed", err,
			map[string]any{"stderr": strings.TrimSpace(string(stderr))})
	}
	return nil
}
