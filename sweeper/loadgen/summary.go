// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package loadgen

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// FunctionLoadMetrics is what one load test measured for one function.
type FunctionLoadMetrics struct {
	SuccessRate float64 `json:"success_rate"`
	AvgLatency  float64 `json:"avg_latency"`
	Requests    float64 `json:"requests"`
}

// summaryFile is the summary-export shape: a metrics map keyed by the
// synthesized per-function metric names. Each metric body is kept raw because
// two schema shapes exist: older exports carry the sample values at the top
// level ({"value": x, "avg": y, "count": z}), newer ones nest them under
// "values".
type summaryFile struct {
	Metrics map[string]json.RawMessage `json:"metrics"`
}

// ParseSummary extracts success rate, average latency and request count per
// function from the summary export. A function whose metrics are entirely
// absent fails the whole parse, naming every missing function.
func ParseSummary(data []byte, functions []string) (map[string]FunctionLoadMetrics, error) {
	var file summaryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "Error while deserializing the load-test summary")
	}
	if file.Metrics == nil {
		return nil, errors.New("load-test summary carries no metrics map")
	}

	out := map[string]FunctionLoadMetrics{}
	var missing []string

	for _, fn := range functions {
		id := MetricID(fn)

		success, okSuccess := metricValue(file.Metrics, "success_rate_"+id, "rate", "value")
		latency, okLatency := metricValue(file.Metrics, "latency_"+id, "avg", "value")
		requests, okRequests := metricValue(file.Metrics, "requests_"+id, "count", "value")

		if !okSuccess && !okLatency && !okRequests {
			missing = append(missing, fn)
			continue
		}

		out[fn] = FunctionLoadMetrics{
			SuccessRate: success,
			AvgLatency:  latency,
			Requests:    requests,
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("load-test summary has no metrics for functions: %s", strings.Join(missing, ", "))
	}

	return out, nil
}

// metricValue looks up one metric and tries the given field names, first
// under the nested "values" object and then at the metric's top level.
func metricValue(metrics map[string]json.RawMessage, name string, fields ...string) (float64, bool) {
	raw, ok := metrics[name]
	if !ok {
		return 0, false
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0, false
	}

	scopes := []map[string]json.RawMessage{body}
	if nested, ok := body["values"]; ok {
		var values map[string]json.RawMessage
		if err := json.Unmarshal(nested, &values); err == nil {
			scopes = []map[string]json.RawMessage{values, body}
		}
	}

	for _, scope := range scopes {
		for _, field := range fields {
			raw, ok := scope[field]
			if !ok {
				continue
			}
			var v float64
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, true
			}
		}
	}

	return 0, false
}
