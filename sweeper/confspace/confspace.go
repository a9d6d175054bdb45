// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

// This package builds the combinatorial configuration space of the sweep and
// defines the canonical identity and dominance relation of configurations.
package confspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/unimib-datAI/faasweep/sweeper/rates"
)

// Pair assigns one request rate to one function.
type Pair struct {
	Function string `json:"function"`
	Rate     int    `json:"rate"`
}

// Candidate is one configuration to test: an ordered set of (function, rate)
// pairs, one rate per participating function.
type Candidate struct {
	Pairs []Pair `json:"pairs"`
}

// Key is the canonical identity of a configuration: function names sorted
// ascending with their rates re-ordered alongside. Two candidates are the
// same configuration iff their keys are equal.
type Key struct {
	Functions []string
	Rates     []int
}

// Key returns the canonical key of the candidate. Any permutation of the
// candidate's pairs yields the same key.
func (c Candidate) Key() Key {
	pairs := make([]Pair, len(c.Pairs))
	copy(pairs, c.Pairs)
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Function < pairs[j].Function })

	key := Key{
		Functions: make([]string, len(pairs)),
		Rates:     make([]int, len(pairs)),
	}
	for i, p := range pairs {
		key.Functions[i] = p.Function
		key.Rates[i] = p.Rate
	}
	return key
}

// String returns a stable textual form of the key, usable as a map key and in
// the on-disk index.
func (k Key) String() string {
	parts := make([]string, len(k.Functions))
	for i := range k.Functions {
		parts[i] = fmt.Sprintf("%s=%d", k.Functions[i], k.Rates[i])
	}
	return strings.Join(parts, ",")
}

// Hash returns the content-derived configuration id: the first 16 hex chars
// of the SHA-256 of the key's textual form.
func (k Key) Hash() string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])[:16]
}

// FunctionCount returns the number of participating functions.
func (k Key) FunctionCount() int {
	return len(k.Functions)
}

// RateSum returns the sum of all rates in the key.
func (k Key) RateSum() int {
	sum := 0
	for _, r := range k.Rates {
		sum += r
	}
	return sum
}

// SameFunctions reports whether both keys reference the exact same
// function-name tuple.
func SameFunctions(a, b Key) bool {
	if len(a.Functions) != len(b.Functions) {
		return false
	}
	for i := range a.Functions {
		if a.Functions[i] != b.Functions[i] {
			return false
		}
	}
	return true
}

// Dominates reports whether a dominates b: same function tuple, every rate in
// a is >= the corresponding rate in b, and at least one is strictly greater.
func Dominates(a, b Key) bool {
	if !SameFunctions(a, b) {
		return false
	}
	strict := false
	for i := range a.Rates {
		if a.Rates[i] < b.Rates[i] {
			return false
		}
		if a.Rates[i] > b.Rates[i] {
			strict = true
		}
	}
	return strict
}

// BuildSpace enumerates the full Cartesian candidate list: for every subset
// size in [minFunctions, maxFunctions), for every subset of that size in
// lexicographic order, for every rate assignment, one candidate. Functions
// with a cap in caps draw from the global rate list truncated at their cap.
// The enumeration order is deterministic, which makes runs over the same
// inputs resumable through the seen-key index.
func BuildSpace(names []string, strategy rates.Strategy, minFunctions, maxFunctions int, caps map[string]int) []Candidate {
	if len(names) == 0 {
		return nil
	}

	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	global := strategy.GenerateRates()

	// Per-function rate lists, capped where a cap applies.
	perFunc := make(map[string][]int, len(sorted))
	for _, name := range sorted {
		limit, capped := caps[name]
		if !capped {
			perFunc[name] = global
			continue
		}
		var list []int
		for _, r := range global {
			if r <= limit {
				list = append(list, r)
			}
		}
		perFunc[name] = list
	}

	var out []Candidate
	for size := minFunctions; size < maxFunctions; size++ {
		if size <= 0 || size > len(sorted) {
			continue
		}
		forEachSubset(sorted, size, func(subset []string) {
			out = append(out, assignRates(subset, perFunc)...)
		})
	}
	return out
}

// forEachSubset visits every size-k subset of names in lexicographic order.
func forEachSubset(names []string, k int, visit func([]string)) {
	subset := make([]string, k)
	var rec func(start, depth int)
	rec = func(start, depth int) {
		if depth == k {
			visit(subset)
			return
		}
		for i := start; i <= len(names)-(k-depth); i++ {
			subset[depth] = names[i]
			rec(i+1, depth+1)
		}
	}
	rec(0, 0)
}

// assignRates emits one candidate per element of the Cartesian product of the
// subset's per-function rate lists, as a mixed-radix counter with the last
// function varying fastest.
func assignRates(subset []string, perFunc map[string][]int) []Candidate {
	lists := make([][]int, len(subset))
	for i, name := range subset {
		lists[i] = perFunc[name]
		if len(lists[i]) == 0 {
			// A fully capped-out function leaves nothing to assign.
			return nil
		}
	}

	idx := make([]int, len(subset))
	var out []Candidate
	for {
		pairs := make([]Pair, len(subset))
		for i, name := range subset {
			pairs[i] = Pair{Function: name, Rate: lists[i][idx[i]]}
		}
		out = append(out, Candidate{Pairs: pairs})

		// Advance the counter.
		pos := len(idx) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(lists[pos]) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return out
		}
	}
}
