// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

// This package defines the specs of the functions under test and loads them
// from the workload file.
package fnspec

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/unimib-datAI/faasweep/sweeper/constants"
)

// FunctionSpec describes one function under test. It is immutable after
// construction: build instances only through New or LoadWorkload.
type FunctionSpec struct {
	Name    string            `yaml:"name"`
	Method  string            `yaml:"method"`
	Body    string            `yaml:"body"`
	Headers map[string]string `yaml:"headers"`

	// MaxRate caps the rates this function participates with in the
	// configuration space. Nil means no cap.
	MaxRate *int `yaml:"max_rate"`
}

type workloadFile struct {
	Functions []FunctionSpec `yaml:"functions"`
}

// New validates and returns a FunctionSpec. The method is uppercased before
// checking it against the allow-list.
func New(name, method, body string, headers map[string]string, maxRate *int) (FunctionSpec, error) {
	if name == "" {
		return FunctionSpec{}, errors.New("function name must not be empty")
	}

	method = strings.ToUpper(method)
	if !constants.IsAllowedMethod(method) {
		return FunctionSpec{}, fmt.Errorf("method %q not allowed for function %q", method, name)
	}

	if maxRate != nil && *maxRate < 0 {
		return FunctionSpec{}, fmt.Errorf("max_rate of function %q must be non-negative", name)
	}

	if headers == nil {
		headers = map[string]string{}
	}

	return FunctionSpec{
		Name:    name,
		Method:  method,
		Body:    body,
		Headers: headers,
		MaxRate: maxRate,
	}, nil
}

// LoadWorkload reads the workload file and returns the validated function
// specs, sorted by name. Duplicate names are a fatal configuration error.
func LoadWorkload(path string) ([]FunctionSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "Error while reading the workload file")
	}

	var file workloadFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "Error while deserializing the workload file")
	}

	if len(file.Functions) == 0 {
		return nil, errors.New("the workload file lists no functions")
	}

	seen := map[string]bool{}
	specs := make([]FunctionSpec, 0, len(file.Functions))
	for _, raw := range file.Functions {
		spec, err := New(raw.Name, raw.Method, raw.Body, raw.Headers, raw.MaxRate)
		if err != nil {
			return nil, err
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("duplicate function name %q in workload file", spec.Name)
		}
		seen[spec.Name] = true
		specs = append(specs, spec)
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

	return specs, nil
}

// Names returns the function names in spec order.
func Names(specs []FunctionSpec) []string {
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name
	}
	return names
}

// ByName indexes the specs by function name.
func ByName(specs []FunctionSpec) map[string]FunctionSpec {
	m := make(map[string]FunctionSpec, len(specs))
	for _, spec := range specs {
		m[spec.Name] = spec
	}
	return m
}
