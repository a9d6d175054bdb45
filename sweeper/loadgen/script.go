// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

// This package synthesizes one k6 load-test script per configuration, runs
// the external k6 binary and parses the exported summary.
package loadgen

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"

	"github.com/unimib-datAI/faasweep/sweeper/confspace"
	"github.com/unimib-datAI/faasweep/sweeper/fnspec"
)

// ScriptOptions are the per-run knobs of script generation.
type ScriptOptions struct {
	// GatewayURL is the base URL functions are invoked through, without a
	// trailing slash.
	GatewayURL string

	// DurationSecs is the nominal duration of one load test.
	DurationSecs int

	// MaxVUs bounds the virtual users each constant-arrival-rate scenario may
	// allocate.
	MaxVUs int
}

var nonIdentifier = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// MetricID derives a collision-safe script identifier from a function name:
// the sanitized name plus a short content-hash suffix, so that two names
// sanitizing to the same string stay distinct.
func MetricID(name string) string {
	sanitized := nonIdentifier.ReplaceAllString(name, "_")
	sum := sha256.Sum256([]byte(name))
	return fmt.Sprintf("%s_%s", sanitized, hex.EncodeToString(sum[:])[:6])
}

type scriptFunc struct {
	Name        string
	ID          string
	Method      string
	URL         string
	BodyJSON    string
	HeadersJSON string
	Rate        int
	MaxVUs      int
	DurationSec int
}

type scriptData struct {
	Funcs       []scriptFunc
	Idle        bool
	DurationSec int
}

// scriptTemplate renders the whole k6 script: one traffic-generating exec
// function per participating function and a scenarios block mapping every
// function with rate > 0 to a constant-arrival-rate profile. When every rate
// is zero a single idle scenario keeps the script valid.
const scriptTemplate = `import http from 'k6/http';
import { sleep } from 'k6';
import { Rate, Trend, Counter } from 'k6/metrics';

{{- range .Funcs }}

const success_rate_{{ .ID }} = new Rate('success_rate_{{ .ID }}');
const latency_{{ .ID }} = new Trend('latency_{{ .ID }}');
const requests_{{ .ID }} = new Counter('requests_{{ .ID }}');

export function invoke_{{ .ID }}() {
    const res = http.request('{{ .Method }}', '{{ .URL }}', {{ .BodyJSON }}, { headers: {{ .HeadersJSON }} });
    success_rate_{{ .ID }}.add(res.status >= 200 && res.status < 300);
    latency_{{ .ID }}.add(res.timings.duration);
    requests_{{ .ID }}.add(1);
}
{{- end }}

export function idle() {
    sleep(1);
}

export const options = {
    scenarios: {
{{- if .Idle }}
        idle: {
            executor: 'constant-vus',
            vus: 1,
            duration: '{{ .DurationSec }}s',
            exec: 'idle',
        },
{{- else }}
{{- range .Funcs }}
{{- if gt .Rate 0 }}
        {{ .ID }}: {
            executor: 'constant-arrival-rate',
            rate: {{ .Rate }},
            timeUnit: '1s',
            duration: '{{ .DurationSec }}s',
            preAllocatedVUs: {{ max (div .Rate 2) 1 }},
            maxVUs: {{ .MaxVUs }},
            exec: 'invoke_{{ .ID }}',
        },
{{- end }}
{{- end }}
{{- end }}
    },
};
`

var scriptTmpl = template.Must(
	template.New("k6script").Funcs(sprig.TxtFuncMap()).Parse(scriptTemplate))

// BuildScript renders the load-test script for one candidate configuration.
// Every function referenced by the candidate must be present in specs.
func BuildScript(cand confspace.Candidate, specs map[string]fnspec.FunctionSpec, opts ScriptOptions) (string, error) {
	data := scriptData{Idle: true, DurationSec: opts.DurationSecs}

	for _, pair := range cand.Pairs {
		spec, ok := specs[pair.Function]
		if !ok {
			return "", fmt.Errorf("candidate references unknown function %q", pair.Function)
		}

		bodyJSON, err := json.Marshal(spec.Body)
		if err != nil {
			return "", errors.Wrap(err, "Error while encoding the request body for the load script")
		}
		headersJSON, err := json.Marshal(spec.Headers)
		if err != nil {
			return "", errors.Wrap(err, "Error while encoding the request headers for the load script")
		}

		maxVUs := opts.MaxVUs
		if maxVUs <= 0 {
			maxVUs = pair.Rate + 1
		}

		data.Funcs = append(data.Funcs, scriptFunc{
			Name:        spec.Name,
			ID:          MetricID(spec.Name),
			Method:      spec.Method,
			URL:         fmt.Sprintf("%s/function/%s", opts.GatewayURL, spec.Name),
			BodyJSON:    string(bodyJSON),
			HeadersJSON: string(headersJSON),
			Rate:        pair.Rate,
			MaxVUs:      maxVUs,
			DurationSec: opts.DurationSecs,
		})

		if pair.Rate > 0 {
			data.Idle = false
		}
	}

	var buf bytes.Buffer
	if err := scriptTmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "Error while applying the load-script template to the configuration")
	}

	return buf.String(), nil
}
