// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

// This package handles a web server to expose endpoints on the sweeper (e.g.
// endpoint for healthcheck and run-progress counters).
package httpserver

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unimib-datAI/faasweep/sweeper/config"
)

//////////////////// MAIN PRIVATE VARS AND INIT FUNCTION ////////////////////

var _config config.Configuration
var _registry *prometheus.Registry

// Run-progress counters, incremented by the orchestrator.
var (
	ConfigsCompleted  prometheus.Counter
	ConfigsSkipped    prometheus.Counter
	ConfigsOverloaded prometheus.Counter
	IterationsRun     prometheus.Counter
)

// Initialize initializes this package (sets some vars, registers counters).
func Initialize(config config.Configuration) {
	_config = config

	_registry = prometheus.NewRegistry()
	factory := promauto.With(_registry)

	ConfigsCompleted = factory.NewCounter(prometheus.CounterOpts{
		Name: "faasweep_configs_completed_total",
		Help: "Configurations whose iterations all executed.",
	})
	ConfigsSkipped = factory.NewCounter(prometheus.CounterOpts{
		Name: "faasweep_configs_skipped_total",
		Help: "Configurations skipped (already indexed, dominated or failed).",
	})
	ConfigsOverloaded = factory.NewCounter(prometheus.CounterOpts{
		Name: "faasweep_configs_overloaded_total",
		Help: "Configurations classified as overloading the node.",
	})
	IterationsRun = factory.NewCounter(prometheus.CounterOpts{
		Name: "faasweep_iterations_total",
		Help: "Load-test iterations executed.",
	})
}

//////////////////// PUBLIC FUNCTIONS ////////////////////

// RunHttpServer runs the http server. It should run in a goroutine.
func RunHttpServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthzHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(_registry, promhttp.HandlerOpts{}))

	ip := _config.HttpServerHost
	port := strconv.FormatUint(uint64(_config.HttpServerPort), 10)
	return http.ListenAndServe(ip+":"+port, mux)
}

//////////////////// PRIVATE REQUEST HANDLERS FUNCTIONS ////////////////////

// healthzHandler reports whether the sweeper and its collaborators (gateway
// and Prometheus) are reachable.
func healthzHandler(w http.ResponseWriter, r *http.Request) {
	gatewayErr := ping(fmt.Sprintf("http://%s:%d/healthz", _config.GatewayHost, _config.GatewayPort))
	promErr := ping(fmt.Sprintf("http://%s:%d/-/ready", _config.PrometheusHost, _config.PrometheusPort))

	if gatewayErr != nil || promErr != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	io.WriteString(w, "faasweep running.\n")
	io.WriteString(w, "Components status:\n")

	if gatewayErr != nil {
		io.WriteString(w, "- Gateway not ready.\n")
	} else {
		io.WriteString(w, "- Gateway ready.\n")
	}

	if promErr != nil {
		io.WriteString(w, "- Prometheus not ready.\n")
	} else {
		io.WriteString(w, "- Prometheus ready.\n")
	}
}

func ping(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %q", resp.Status)
	}
	return nil
}
