// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package results

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unimib-datAI/faasweep/sweeper/confspace"
	"github.com/unimib-datAI/faasweep/sweeper/infogath/promq"
	"github.com/unimib-datAI/faasweep/sweeper/loadgen"
)

var testThresholds = Thresholds{
	FunctionSuccessFloor: 0.95,
	NodeSuccessFloor:     0.98,
	ReplicaOverload:      8,
	NodeCPUCapacityPct:   90,
	NodeRAMThresholdPct:  90,
}

func healthyMetrics(fns ...string) promq.AllMetrics {
	all := promq.AllMetrics{
		Node:      promq.NodeSnapshot{CPUPct: 30, RAM: 1 << 30, RAMPct: 40, Power: math.NaN()},
		Functions: map[string]promq.FunctionMetrics{},
	}
	for _, fn := range fns {
		all.Functions[fn] = promq.FunctionMetrics{CPUPct: 10, RAM: 1 << 20, Power: math.NaN()}
	}
	return all
}

func TestColumnsShape(t *testing.T) {
	ass := require.New(t)

	cols := Columns([]string{"a", "b"})
	// 9 per-function columns per function plus 10 node columns.
	ass.Len(cols, 2*9+10)
	ass.Equal("a_rate", cols[0])
	ass.Equal("overloaded_node", cols[len(cols)-1])
}

func TestBuildHealthyRow(t *testing.T) {
	ass := require.New(t)

	row, overloaded := Build(
		[]string{"figlet", "shasum"},
		[]confspace.Pair{{Function: "figlet", Rate: 10}},
		map[string]loadgen.FunctionLoadMetrics{
			"figlet": {SuccessRate: 1.0, AvgLatency: 12.5, Requests: 600},
		},
		map[string]int{"figlet": 2},
		healthyMetrics("figlet"),
		promq.NodeSnapshot{CPUPct: 5, RAM: 1 << 29, RAMPct: 20, Power: math.NaN()},
		3.5,
		testThresholds,
	)

	ass.False(overloaded)
	ass.Equal("10", row["figlet_rate"])
	ass.Equal("1.000", row["figlet_success_rate"])
	ass.Equal("12.500", row["figlet_latency"])
	ass.Equal("2", row["figlet_replicas"])
	ass.Equal("0", row["figlet_overloaded"])
	ass.Equal("3.500", row["seconds_rested"])
	ass.Equal("0", row["overloaded_node"])
	ass.Equal("nan", row["node_power"])

	// Absent functions get blank placeholders, not zeros.
	ass.Equal("", row["shasum_rate"])
	ass.Equal("", row["shasum_overloaded"])
}

func TestBuildFunctionOverloadBySuccessRate(t *testing.T) {
	ass := require.New(t)

	row, overloaded := Build(
		[]string{"figlet"},
		[]confspace.Pair{{Function: "figlet", Rate: 50}},
		map[string]loadgen.FunctionLoadMetrics{
			"figlet": {SuccessRate: 0.5, AvgLatency: 900, Requests: 3000},
		},
		map[string]int{"figlet": 2},
		healthyMetrics("figlet"),
		promq.NodeSnapshot{},
		0,
		testThresholds,
	)

	// One overloaded function overloads the node.
	ass.True(overloaded)
	ass.Equal("1", row["figlet_overloaded"])
	ass.Equal("1", row["overloaded_node"])
}

func TestBuildFunctionOverloadByReplicas(t *testing.T) {
	ass := require.New(t)

	_, overloaded := Build(
		[]string{"figlet"},
		[]confspace.Pair{{Function: "figlet", Rate: 50}},
		map[string]loadgen.FunctionLoadMetrics{
			"figlet": {SuccessRate: 1.0},
		},
		map[string]int{"figlet": 8},
		healthyMetrics("figlet"),
		promq.NodeSnapshot{},
		0,
		testThresholds,
	)

	ass.True(overloaded)
}

func TestBuildNodeOverloadByCPU(t *testing.T) {
	ass := require.New(t)

	metrics := healthyMetrics("figlet")
	metrics.Node.CPUPct = 95

	row, overloaded := Build(
		[]string{"figlet"},
		[]confspace.Pair{{Function: "figlet", Rate: 10}},
		map[string]loadgen.FunctionLoadMetrics{
			"figlet": {SuccessRate: 1.0},
		},
		map[string]int{"figlet": 1},
		metrics,
		promq.NodeSnapshot{},
		0,
		testThresholds,
	)

	// The node overloads without any single function overloading.
	ass.True(overloaded)
	ass.Equal("0", row["figlet_overloaded"])
	ass.Equal("1", row["overloaded_node"])
}

func TestBuildNodeOverloadByAverageSuccess(t *testing.T) {
	ass := require.New(t)

	_, overloaded := Build(
		[]string{"a", "b"},
		[]confspace.Pair{{Function: "a", Rate: 10}, {Function: "b", Rate: 10}},
		map[string]loadgen.FunctionLoadMetrics{
			// Both above the per-function floor, average below the node floor.
			"a": {SuccessRate: 0.96},
			"b": {SuccessRate: 0.96},
		},
		map[string]int{"a": 1, "b": 1},
		healthyMetrics("a", "b"),
		promq.NodeSnapshot{},
		0,
		testThresholds,
	)

	ass.True(overloaded)
}

func TestBuildNaNMetricsDoNotOverload(t *testing.T) {
	ass := require.New(t)

	metrics := promq.AllMetrics{
		Node: promq.NodeSnapshot{
			CPUPct: math.NaN(), RAM: math.NaN(), RAMPct: math.NaN(), Power: math.NaN(),
		},
		Functions: map[string]promq.FunctionMetrics{
			"figlet": {CPUPct: math.NaN(), RAM: math.NaN(), Power: math.NaN()},
		},
	}

	row, overloaded := Build(
		[]string{"figlet"},
		[]confspace.Pair{{Function: "figlet", Rate: 10}},
		map[string]loadgen.FunctionLoadMetrics{
			"figlet": {SuccessRate: 1.0},
		},
		map[string]int{"figlet": 1},
		metrics,
		promq.NodeSnapshot{},
		0,
		testThresholds,
	)

	ass.False(overloaded)
	ass.Equal("nan", row["node_cpu_pct"])
	ass.Equal("nan", row["figlet_cpu_pct"])
}
