// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

// This package classifies per-function and node-level overload from one
// executed load test and shapes the result into a fixed wide row. The row
// always carries one column group per function of the whole universe, with
// blank placeholders for functions absent from the current configuration, so
// every run exports the same table shape.
package results

import (
	"fmt"
	"math"

	"github.com/unimib-datAI/faasweep/sweeper/confspace"
	"github.com/unimib-datAI/faasweep/sweeper/infogath/promq"
	"github.com/unimib-datAI/faasweep/sweeper/loadgen"
)

// Thresholds hold the overload classification knobs.
type Thresholds struct {
	// FunctionSuccessFloor is the success rate below which a single function
	// counts as overloaded.
	FunctionSuccessFloor float64

	// NodeSuccessFloor is the floor on the average success rate across the
	// functions present in the configuration.
	NodeSuccessFloor float64

	// ReplicaOverload is the replica count at or above which a function
	// counts as overloaded.
	ReplicaOverload int

	// NodeCPUCapacityPct and NodeRAMThresholdPct bound node-level usage.
	NodeCPUCapacityPct  float64
	NodeRAMThresholdPct float64
}

// Row is one wide result row, every value already formatted.
type Row map[string]string

// functionColumns are the per-function column suffixes, in output order.
var functionColumns = []string{
	"rate", "success_rate", "latency", "requests", "replicas", "cpu_pct", "ram", "power", "overloaded",
}

// nodeColumns are the node-level columns, in output order.
var nodeColumns = []string{
	"node_cpu_pct", "node_ram", "node_ram_pct", "node_power",
	"baseline_cpu_pct", "baseline_ram", "baseline_ram_pct", "baseline_power",
	"seconds_rested", "overloaded_node",
}

// Columns returns the full deterministic column list for the given function
// universe.
func Columns(allFunctions []string) []string {
	var out []string
	for _, fn := range allFunctions {
		for _, suffix := range functionColumns {
			out = append(out, fn+"_"+suffix)
		}
	}
	return append(out, nodeColumns...)
}

// Build classifies one executed iteration. allFunctions is the whole function
// universe; pairs are the (function, rate) assignments of the current
// configuration. It returns the formatted row and the node-level overload
// flag.
func Build(
	allFunctions []string,
	pairs []confspace.Pair,
	load map[string]loadgen.FunctionLoadMetrics,
	replicas map[string]int,
	metrics promq.AllMetrics,
	baseline promq.NodeSnapshot,
	secondsRested float64,
	th Thresholds,
) (Row, bool) {
	rates := map[string]int{}
	for _, p := range pairs {
		rates[p.Function] = p.Rate
	}

	row := Row{}

	successSum := 0.0
	successCount := 0
	anyFunctionOverloaded := false

	for _, fn := range allFunctions {
		rate, present := rates[fn]
		if !present {
			for _, suffix := range functionColumns {
				row[fn+"_"+suffix] = ""
			}
			continue
		}

		fnLoad := load[fn]
		fnMetrics := metrics.Functions[fn]
		replicaCount := replicas[fn]

		overloaded := fnLoad.SuccessRate < th.FunctionSuccessFloor ||
			replicaCount >= th.ReplicaOverload

		if overloaded {
			anyFunctionOverloaded = true
		}
		if !math.IsNaN(fnLoad.SuccessRate) {
			successSum += fnLoad.SuccessRate
			successCount++
		}

		row[fn+"_rate"] = fmt.Sprintf("%d", rate)
		row[fn+"_success_rate"] = formatNumber(fnLoad.SuccessRate)
		row[fn+"_latency"] = formatNumber(fnLoad.AvgLatency)
		row[fn+"_requests"] = formatNumber(fnLoad.Requests)
		row[fn+"_replicas"] = fmt.Sprintf("%d", replicaCount)
		row[fn+"_cpu_pct"] = formatNumber(fnMetrics.CPUPct)
		row[fn+"_ram"] = formatNumber(fnMetrics.RAM)
		row[fn+"_power"] = formatNumber(fnMetrics.Power)
		row[fn+"_overloaded"] = formatBool(overloaded)
	}

	avgSuccess := math.NaN()
	if successCount > 0 {
		avgSuccess = successSum / float64(successCount)
	}

	nodeOverloaded := anyFunctionOverloaded
	if !math.IsNaN(avgSuccess) && avgSuccess < th.NodeSuccessFloor {
		nodeOverloaded = true
	}
	if !math.IsNaN(metrics.Node.CPUPct) && metrics.Node.CPUPct > th.NodeCPUCapacityPct {
		nodeOverloaded = true
	}
	if !math.IsNaN(metrics.Node.RAMPct) && metrics.Node.RAMPct > th.NodeRAMThresholdPct {
		nodeOverloaded = true
	}

	row["node_cpu_pct"] = formatNumber(metrics.Node.CPUPct)
	row["node_ram"] = formatNumber(metrics.Node.RAM)
	row["node_ram_pct"] = formatNumber(metrics.Node.RAMPct)
	row["node_power"] = formatNumber(metrics.Node.Power)
	row["baseline_cpu_pct"] = formatNumber(baseline.CPUPct)
	row["baseline_ram"] = formatNumber(baseline.RAM)
	row["baseline_ram_pct"] = formatNumber(baseline.RAMPct)
	row["baseline_power"] = formatNumber(baseline.Power)
	row["seconds_rested"] = formatNumber(secondsRested)
	row["overloaded_node"] = formatBool(nodeOverloaded)

	return row, nodeOverloaded
}

// formatNumber renders a value with 3 decimal places; NaN renders as the
// literal "nan".
func formatNumber(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return fmt.Sprintf("%.3f", v)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
