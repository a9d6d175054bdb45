// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package promq

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/unimib-datAI/faasweep/sweeper/logging"
)

// NodeSnapshot is the node-level resource picture at a point or over a range.
// Power is NaN when power collection is disabled or unavailable.
type NodeSnapshot struct {
	CPUPct float64 `json:"cpu_pct"`
	RAM    float64 `json:"ram"`
	RAMPct float64 `json:"ram_pct"`
	Power  float64 `json:"power"`
}

// FunctionMetrics is the per-function resource picture. Any metric may be NaN
// when its query failed; per-function failures never abort collection.
type FunctionMetrics struct {
	CPUPct float64 `json:"cpu_pct"`
	RAM    float64 `json:"ram"`
	Power  float64 `json:"power"`
}

// AllMetrics bundles one node snapshot with the per-function metrics of every
// function of the current configuration.
type AllMetrics struct {
	Node      NodeSnapshot               `json:"node"`
	Functions map[string]FunctionMetrics `json:"functions"`
}

// jsonNumber renders NaN and infinities as null, keeping metric payloads
// valid JSON.
func jsonNumber(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func (s NodeSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"cpu_pct": jsonNumber(s.CPUPct),
		"ram":     jsonNumber(s.RAM),
		"ram_pct": jsonNumber(s.RAMPct),
		"power":   jsonNumber(s.Power),
	})
}

func (m FunctionMetrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"cpu_pct": jsonNumber(m.CPUPct),
		"ram":     jsonNumber(m.RAM),
		"power":   jsonNumber(m.Power),
	})
}

// QueryTimeoutError is raised when a query keeps returning empty results for
// the whole retry budget.
type QueryTimeoutError struct {
	Query  string
	Budget time.Duration
}

func (e *QueryTimeoutError) Error() string {
	return fmt.Sprintf("query %q returned no data within %v", e.Query, e.Budget)
}

// Collector executes the named queries of a QuerySet against Prometheus.
//
// Node-level failures are returned to the caller: the cooldown decision
// depends on node metrics being trustworthy, so they must not be silently
// degraded. Per-function failures degrade to NaN instead.
type Collector struct {
	Client  *Client
	Queries *QuerySet

	// RetryBudget and SleepInterval control the retry loop on empty results.
	RetryBudget   time.Duration
	SleepInterval time.Duration

	// RangeStep is the step parameter of ranged queries.
	RangeStep time.Duration

	// PidPattern is substituted into queries that filter by process.
	PidPattern string

	PowerEnabled bool
}

// value renders and executes one named query. Ranged execution is used when
// both start and end are given and the query is flagged for it. Empty results
// are retried every SleepInterval until RetryBudget elapses, then a
// QueryTimeoutError is returned. Transport errors are not retried.
func (c *Collector) value(name string, args QueryArgs, start, end *time.Time) (float64, error) {
	query, err := c.Queries.Render(name, args)
	if err != nil {
		return math.NaN(), err
	}

	ranged := start != nil && end != nil && c.Queries.IsRange(name)

	deadline := time.Now().Add(c.RetryBudget)
	for {
		var v float64
		if ranged {
			v, err = c.Client.QueryRange(query, *start, *end, c.RangeStep)
		} else {
			v, err = c.Client.QueryInstant(query)
		}
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrEmptyResult) {
			return math.NaN(), err
		}
		if !time.Now().Before(deadline) {
			return math.NaN(), &QueryTimeoutError{Query: query, Budget: c.RetryBudget}
		}
		time.Sleep(c.SleepInterval)
	}
}

// GetNodeSnapshot returns the node-level snapshot. With non-nil start and end
// the ranged variants of the queries are executed, otherwise instant ones.
// Any failing node query fails the whole snapshot.
func (c *Collector) GetNodeSnapshot(window time.Duration, start, end *time.Time) (NodeSnapshot, error) {
	args := QueryArgs{Window: windowString(window), PidPattern: c.PidPattern}

	snap := NodeSnapshot{Power: math.NaN()}
	var err error

	if snap.CPUPct, err = c.value(QueryNodeCPUPct, args, start, end); err != nil {
		return snap, err
	}
	if snap.RAM, err = c.value(QueryNodeRAM, args, start, end); err != nil {
		return snap, err
	}
	if snap.RAMPct, err = c.value(QueryNodeRAMPct, args, start, end); err != nil {
		return snap, err
	}

	if c.PowerEnabled && c.Queries.Has(QueryNodePower) {
		if snap.Power, err = c.value(QueryNodePower, args, start, end); err != nil {
			return snap, err
		}
	}

	return snap, nil
}

// GetFunctionMetrics returns the per-function metrics. Failing queries
// degrade to NaN and are only logged: the absence of one function's metrics
// must not block the run.
func (c *Collector) GetFunctionMetrics(function string, window time.Duration, start, end *time.Time) FunctionMetrics {
	logger := logging.Logger()

	args := QueryArgs{Window: windowString(window), Function: function, PidPattern: c.PidPattern}

	metrics := FunctionMetrics{CPUPct: math.NaN(), RAM: math.NaN(), Power: math.NaN()}

	if v, err := c.value(QueryFnCPU, args, start, end); err != nil {
		logger.Warnf("Function CPU query failed for %q, substituting NaN: %v", function, err)
	} else {
		metrics.CPUPct = v
	}

	if v, err := c.value(QueryFnRAM, args, start, end); err != nil {
		logger.Warnf("Function RAM query failed for %q, substituting NaN: %v", function, err)
	} else {
		metrics.RAM = v
	}

	if c.PowerEnabled && c.Queries.Has(QueryFnPower) {
		if v, err := c.value(QueryFnPower, args, start, end); err != nil {
			logger.Warnf("Function power query failed for %q, substituting NaN: %v", function, err)
		} else {
			metrics.Power = v
		}
	}

	return metrics
}

// CollectAll gathers the node snapshot and the metrics of every given
// function for the test that ran between start and end. Ranged queries are
// used when the actual elapsed duration exceeds the nominal test duration,
// instant ones otherwise.
func (c *Collector) CollectAll(functions []string, nominal time.Duration, start, end time.Time) (AllMetrics, error) {
	elapsed := end.Sub(start)

	var rangeStart, rangeEnd *time.Time
	window := nominal
	if elapsed > nominal {
		rangeStart, rangeEnd = &start, &end
		window = elapsed
	}

	node, err := c.GetNodeSnapshot(window, rangeStart, rangeEnd)
	if err != nil {
		return AllMetrics{}, err
	}

	all := AllMetrics{Node: node, Functions: map[string]FunctionMetrics{}}
	for _, fn := range functions {
		all.Functions[fn] = c.GetFunctionMetrics(fn, window, rangeStart, rangeEnd)
	}

	return all, nil
}

// windowString formats a duration the way Prometheus expects it in a range
// selector, with a floor of one second.
func windowString(window time.Duration) string {
	secs := int64(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("%ds", secs)
}
