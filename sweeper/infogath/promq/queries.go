// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package promq

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// The query texts are externally authored and live in a declarative
// definitions file. Each entry is a named template with placeholders for the
// time window, the function name and the PID pattern, a range-vs-instant
// flag, and an optional enabled_if gate (only the power gate is recognized).

// QueryArgs carries the values substituted into a query template.
type QueryArgs struct {
	Window     string
	Function   string
	PidPattern string
}

// Named queries the collector requires to exist in the definitions file.
const (
	QueryNodeCPUPct = "node_cpu_pct"
	QueryNodeRAM    = "node_ram"
	QueryNodeRAMPct = "node_ram_pct"
	QueryFnCPU      = "fn_cpu"
	QueryFnRAM      = "fn_ram"
	QueryNodePower  = "node_power"
	QueryFnPower    = "fn_power"
)

// gatePower is the only enabled_if value currently recognized.
const gatePower = "power"

// QueryDef is one entry of the definitions file.
type QueryDef struct {
	Name      string `yaml:"name"`
	Query     string `yaml:"query"`
	Range     bool   `yaml:"range"`
	EnabledIf string `yaml:"enabled_if"`
}

type queryDefsFile struct {
	Queries []QueryDef `yaml:"queries"`
}

// QuerySet holds the parsed query templates, keyed by name.
type QuerySet struct {
	defs      map[string]QueryDef
	templates map[string]*template.Template
}

// LoadQuerySet reads the definitions file, applies the enabled_if gates and
// validates that every required query is present. A missing required query is
// a fatal construction error.
func LoadQuerySet(path string, powerEnabled bool) (*QuerySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "Error while reading the query definitions file")
	}

	var file queryDefsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "Error while deserializing the query definitions file")
	}

	qs := &QuerySet{
		defs:      map[string]QueryDef{},
		templates: map[string]*template.Template{},
	}

	for _, def := range file.Queries {
		if def.Name == "" {
			return nil, errors.New("query definition with empty name")
		}
		if def.EnabledIf == gatePower && !powerEnabled {
			continue
		}
		if def.EnabledIf != "" && def.EnabledIf != gatePower {
			return nil, fmt.Errorf("query %q has unrecognized enabled_if gate %q", def.Name, def.EnabledIf)
		}

		tmpl, err := template.New(def.Name).Parse(def.Query)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Error while parsing the template of query %q", def.Name))
		}

		qs.defs[def.Name] = def
		qs.templates[def.Name] = tmpl
	}

	required := []string{QueryNodeCPUPct, QueryNodeRAM, QueryNodeRAMPct, QueryFnCPU, QueryFnRAM}
	if powerEnabled {
		required = append(required, QueryNodePower, QueryFnPower)
	}

	var missing []string
	for _, name := range required {
		if _, ok := qs.defs[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("query definitions file is missing required queries: %s", strings.Join(missing, ", "))
	}

	return qs, nil
}

// Has reports whether the set contains (and has enabled) the named query.
func (qs *QuerySet) Has(name string) bool {
	_, ok := qs.defs[name]
	return ok
}

// IsRange reports whether the named query is flagged for ranged execution.
func (qs *QuerySet) IsRange(name string) bool {
	return qs.defs[name].Range
}

// Render substitutes args into the named query template. The rendered query
// is collapsed to a single line.
func (qs *QuerySet) Render(name string, args QueryArgs) (string, error) {
	tmpl, ok := qs.templates[name]
	if !ok {
		return "", fmt.Errorf("no query named %q in the query set", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, args); err != nil {
		return "", errors.Wrap(err, fmt.Sprintf("Error while rendering query %q", name))
	}

	return strings.Join(strings.Fields(buf.String()), " "), nil
}
