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
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/gpuslice/pkg/logging"
)

const (
	name           = "gpuslicectl"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

// Flags shared across commands.
var (
	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output file path (default: stdout)",
	}

	formatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"t"},
		Value:   "yaml",
		Usage:   "Output format: yaml, json, table",
	}

	kubeconfigFlag = &cli.StringFlag{
		Name:  "kubeconfig",
		Usage: "Path to kubeconfig (default: KUBECONFIG, then ~/.kube/config)",
	}

	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Cluster config file (yaml). Omit to use built-in defaults.",
	}

	profilesFlag = &cli.StringFlag{
		Name:    "profiles",
		Aliases: []string{"p"},
		Usage:   "Time-slicing profile set file (yaml). Omit to use the built-in per-architecture set.",
	}

	yesFlag = &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Skip confirmation prompts",
	}
)

// Run is the CLI entrypoint, called by main. It handles SIGINT/SIGTERM
// for graceful cancellation of in-flight az/terraform/helm operations.
func Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:    name,
		Usage:   "Provision AKS GPU clusters and configure GPU time-slicing",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Description: `gpuslicectl provisions Azure Kubernetes Service clusters with GPU node
pools, installs the NVIDIA GPU Operator, and configures time-slicing so
each physical GPU is shared by multiple pods.

Typical flow:
  gpuslicectl provision -c cluster.yaml
  gpuslicectl operator install
  gpuslicectl slice apply --profile ampere
  gpuslicectl validate`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Expose Prometheus metrics on this address during long operations (e.g. :9090)",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			logging.SetDefaultStructuredLoggerWithLevel(name, version, cmd.String("log-level"))

			if addr := cmd.String("metrics-addr"); addr != "" {
				startMetricsServer(ctx, addr)
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			provisionCmd(),
			operatorCmd(),
			sliceCmd(),
			nodesCmd(),
			validateCmd(),
			bundleCmd(),
			teardownCmd(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// startMetricsServer serves /metrics for scraping during long-running
// provisioning operations. The server dies with the process.
func startMetricsServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Warn("metrics server failed", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// confirm prompts for y/N on the given reader and returns whether the
// user accepted. Anything but an explicit yes declines.
func confirm(r io.Reader, w io.Writer, prompt string) bool {
	fmt.Fprintf(w, "%s [y/N]: ", prompt)

	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
