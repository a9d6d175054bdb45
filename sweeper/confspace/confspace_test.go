// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package confspace

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unimib-datAI/faasweep/sweeper/rates"
)

func TestKeyIsCanonical(t *testing.T) {
	ass := require.New(t)

	a := Candidate{Pairs: []Pair{{"figlet", 10}, {"shasum", 20}}}
	b := Candidate{Pairs: []Pair{{"shasum", 20}, {"figlet", 10}}}

	ass.Equal(a.Key(), b.Key())
	ass.Equal("figlet=10,shasum=20", a.Key().String())
	ass.Equal(a.Key().Hash(), b.Key().Hash())
	ass.Len(a.Key().Hash(), 16)
}

func TestKeyAccessors(t *testing.T) {
	ass := require.New(t)

	key := Candidate{Pairs: []Pair{{"a", 10}, {"b", 30}}}.Key()
	ass.Equal(2, key.FunctionCount())
	ass.Equal(40, key.RateSum())
}

func TestDominates(t *testing.T) {
	ass := require.New(t)

	var tests = []struct {
		a, b Candidate
		want bool
	}{
		// Strictly higher rate on the same function set.
		{Candidate{[]Pair{{"f", 20}}}, Candidate{[]Pair{{"f", 10}}}, true},
		// Equal keys never dominate.
		{Candidate{[]Pair{{"f", 10}}}, Candidate{[]Pair{{"f", 10}}}, false},
		// Lower rate.
		{Candidate{[]Pair{{"f", 5}}}, Candidate{[]Pair{{"f", 10}}}, false},
		// Mixed direction.
		{Candidate{[]Pair{{"f", 20}, {"g", 5}}}, Candidate{[]Pair{{"f", 10}, {"g", 10}}}, false},
		// All rates >=, one strictly greater.
		{Candidate{[]Pair{{"f", 20}, {"g", 10}}}, Candidate{[]Pair{{"f", 10}, {"g", 10}}}, true},
		// Different function sets.
		{Candidate{[]Pair{{"f", 20}}}, Candidate{[]Pair{{"g", 10}}}, false},
		{Candidate{[]Pair{{"f", 20}}}, Candidate{[]Pair{{"f", 10}, {"g", 10}}}, false},
	}

	for _, tt := range tests {
		ass.Equal(tt.want, Dominates(tt.a.Key(), tt.b.Key()))
	}
}

func TestBuildSpaceSingleFunctionSubsets(t *testing.T) {
	ass := require.New(t)

	strategy, err := rates.NewLinear(0, 10, 10)
	ass.NoError(err)

	// Sizes [1, 2): only single-function subsets. Two functions, two rates
	// each: four candidates.
	out := BuildSpace([]string{"b", "a"}, strategy, 1, 2, nil)
	ass.Len(out, 4)

	keys := make([]string, len(out))
	for i, cand := range out {
		keys[i] = cand.Key().String()
	}
	ass.Equal([]string{"a=0", "a=10", "b=0", "b=10"}, keys)
}

func TestBuildSpaceIsDeterministic(t *testing.T) {
	ass := require.New(t)

	strategy, err := rates.NewLinear(0, 20, 10)
	ass.NoError(err)

	names := []string{"c", "a", "b"}
	first := BuildSpace(names, strategy, 1, 3, nil)
	second := BuildSpace(names, strategy, 1, 3, nil)

	ass.Equal(len(first), len(second))
	for i := range first {
		ass.Equal(first[i].Key().String(), second[i].Key().String())
	}

	// 3 single-function subsets * 3 rates + 3 pairs * 9 rate assignments.
	ass.Len(first, 9+27)
}

func TestBuildSpaceAppliesCaps(t *testing.T) {
	ass := require.New(t)

	strategy, err := rates.NewLinear(0, 20, 10)
	ass.NoError(err)

	out := BuildSpace([]string{"a", "b"}, strategy, 1, 2, map[string]int{"a": 10})
	keys := make([]string, len(out))
	for i, cand := range out {
		keys[i] = cand.Key().String()
	}
	// a draws from {0, 10}, b from {0, 10, 20}.
	ass.Equal([]string{"a=0", "a=10", "b=0", "b=10", "b=20"}, keys)
}

func TestBuildSpaceCappedOutFunction(t *testing.T) {
	ass := require.New(t)

	strategy, err := rates.NewLinear(10, 20, 10)
	ass.NoError(err)

	// a's cap leaves no usable rate, so every subset containing a is empty.
	out := BuildSpace([]string{"a", "b"}, strategy, 1, 3, map[string]int{"a": 5})
	keys := make([]string, len(out))
	for i, cand := range out {
		keys[i] = cand.Key().String()
	}
	ass.Equal([]string{"b=10", "b=20"}, keys)
}

func TestBuildSpaceEmptyInputs(t *testing.T) {
	ass := require.New(t)

	strategy, err := rates.NewLinear(0, 10, 10)
	ass.NoError(err)

	ass.Nil(BuildSpace(nil, strategy, 1, 2, nil))
	ass.Nil(BuildSpace([]string{"a"}, strategy, 2, 2, nil))
}
