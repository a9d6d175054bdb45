// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package memory

import (
	"math"
	"sort"
	"strconv"

	"github.com/unimib-datAI/faasweep/sweeper/confspace"
	"github.com/unimib-datAI/faasweep/sweeper/results"
)

// TensorCache maps configuration identity to a dense numeric feature vector
// derived from a result row. It lives for the process lifetime; only the
// membership (not the vectors) is rebuilt from the store on startup.
type TensorCache struct {
	vectors map[string][]float64
}

func NewTensorCache() *TensorCache {
	return &TensorCache{vectors: map[string][]float64{}}
}

// FeatureVector flattens a result row into a dense vector: booleans become
// 0/1, numerics pass through, non-numeric strings are dropped, and NaN/±Inf
// are sanitized to 0. Columns are visited in sorted order so the layout is
// stable for a fixed row shape.
func FeatureVector(row results.Row) []float64 {
	columns := make([]string, 0, len(row))
	for col := range row {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var vec []float64
	for _, col := range columns {
		value := row[col]
		if value == "" {
			continue
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		vec = append(vec, v)
	}
	return vec
}

// Put derives and stores the feature vector of the given key's row.
func (c *TensorCache) Put(key confspace.Key, row results.Row) {
	c.vectors[key.String()] = FeatureVector(row)
}

// Get returns the cached vector for the key, if present.
func (c *TensorCache) Get(key confspace.Key) ([]float64, bool) {
	vec, ok := c.vectors[key.String()]
	return vec, ok
}

// Len returns the number of cached vectors.
func (c *TensorCache) Len() int {
	return len(c.vectors)
}
