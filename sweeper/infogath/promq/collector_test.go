// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package promq

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// promHandler answers instant queries with a fixed value per query substring,
// and with an empty result for queries matching emptyFor.
func promHandler(values map[string]float64, emptyFor string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")

		if emptyFor != "" && strings.Contains(query, emptyFor) {
			fmt.Fprint(w, `{"status": "success", "data": {"resultType": "vector", "result": []}}`)
			return
		}

		for substr, v := range values {
			if strings.Contains(query, substr) {
				fmt.Fprintf(w, `{
					"status": "success",
					"data": {"resultType": "vector", "result": [
						{"metric": {}, "value": [1720000000, "%g"]}
					]}
				}`, v)
				return
			}
		}

		fmt.Fprint(w, `{"status": "success", "data": {"resultType": "vector", "result": []}}`)
	}
}

func newTestCollector(t *testing.T, handler http.HandlerFunc) *Collector {
	t.Helper()

	return &Collector{
		Client:        newTestClient(t, handler),
		Queries:       mustQuerySet(t),
		RetryBudget:   10 * time.Millisecond,
		SleepInterval: time.Millisecond,
		RangeStep:     time.Second,
		PowerEnabled:  false,
	}
}

func mustQuerySet(t *testing.T) *QuerySet {
	t.Helper()

	qs, err := LoadQuerySet(writeQueryDefs(t, testQueryDefs), false)
	require.NoError(t, err)
	return qs
}

func TestGetNodeSnapshot(t *testing.T) {
	ass := require.New(t)

	c := newTestCollector(t, promHandler(map[string]float64{
		"node_cpu_seconds_total":    35.5,
		"MemTotal_bytes - ":         2048,
		"MemAvailable_bytes / node": 60,
	}, ""))

	snap, err := c.GetNodeSnapshot(time.Minute, nil, nil)
	ass.NoError(err)
	ass.Equal(35.5, snap.CPUPct)
	ass.Equal(2048.0, snap.RAM)
	ass.Equal(60.0, snap.RAMPct)
	// Power disabled.
	ass.True(math.IsNaN(snap.Power))
}

func TestGetNodeSnapshotFailsOnEmptyNodeQuery(t *testing.T) {
	ass := require.New(t)

	// The RAM query keeps returning empty until the retry budget runs out.
	c := newTestCollector(t, promHandler(map[string]float64{
		"node_cpu_seconds_total":    35.5,
		"MemAvailable_bytes / node": 60,
	}, "MemTotal_bytes - "))

	_, err := c.GetNodeSnapshot(time.Minute, nil, nil)
	ass.Error(err)

	var timeoutErr *QueryTimeoutError
	ass.ErrorAs(err, &timeoutErr)
	ass.Equal(10*time.Millisecond, timeoutErr.Budget)
}

func TestGetFunctionMetricsDegradesToNaN(t *testing.T) {
	ass := require.New(t)

	// Only the RAM query answers; the CPU query stays empty.
	c := newTestCollector(t, promHandler(map[string]float64{
		`ram{fn="figlet"}`: 512,
	}, `cpu{fn="figlet"}`))

	metrics := c.GetFunctionMetrics("figlet", time.Minute, nil, nil)
	ass.True(math.IsNaN(metrics.CPUPct))
	ass.Equal(512.0, metrics.RAM)
	ass.True(math.IsNaN(metrics.Power))
}

func TestCollectAllUsesInstantWithinNominal(t *testing.T) {
	ass := require.New(t)

	rangeCalls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/query_range" {
			rangeCalls++
		}
		promHandler(map[string]float64{
			"node_cpu_seconds_total":    10,
			"MemTotal_bytes - ":         100,
			"MemAvailable_bytes / node": 20,
			`cpu{fn="figlet"}`:          1,
			`ram{fn="figlet"}`:          2,
		}, "")(w, r)
	}

	c := newTestCollector(t, handler)

	// The test finished within its nominal duration: instant queries only.
	end := time.Now()
	start := end.Add(-10 * time.Second)
	all, err := c.CollectAll([]string{"figlet"}, time.Minute, start, end)
	ass.NoError(err)
	ass.Zero(rangeCalls)
	ass.Equal(10.0, all.Node.CPUPct)
	ass.Equal(1.0, all.Functions["figlet"].CPUPct)
}

func TestMetricsMarshalNaNAsNull(t *testing.T) {
	ass := require.New(t)

	all := AllMetrics{
		Node: NodeSnapshot{CPUPct: 30, RAM: 100, RAMPct: 40, Power: math.NaN()},
		Functions: map[string]FunctionMetrics{
			"figlet": {CPUPct: math.NaN(), RAM: 512, Power: math.Inf(1)},
		},
	}

	data, err := json.Marshal(all)
	ass.NoError(err)
	ass.Contains(string(data), `"power":null`)
	ass.Contains(string(data), `"cpu_pct":null`)
	ass.Contains(string(data), `"ram":512`)
}

func TestWindowString(t *testing.T) {
	ass := require.New(t)

	ass.Equal("60s", windowString(time.Minute))
	ass.Equal("1s", windowString(200*time.Millisecond))
}
