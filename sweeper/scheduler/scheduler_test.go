// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unimib-datAI/faasweep/sweeper/confspace"
)

func candidate(fn string, rate int) confspace.Candidate {
	return confspace.Candidate{Pairs: []confspace.Pair{{Function: fn, Rate: rate}}}
}

func TestSequentialSkipsSeen(t *testing.T) {
	ass := require.New(t)

	candidates := []confspace.Candidate{
		candidate("a", 10),
		candidate("a", 20),
		candidate("b", 10),
	}
	seen := map[string]bool{
		candidate("a", 20).Key().String(): true,
	}

	s := &Sequential{}
	out := s.ProposeBatch(candidates, seen, 10)

	ass.Len(out, 2)
	ass.Equal("a=10", out[0].Key().String())
	ass.Equal("b=10", out[1].Key().String())
}

func TestSequentialHonorsDesired(t *testing.T) {
	ass := require.New(t)

	candidates := []confspace.Candidate{
		candidate("a", 10),
		candidate("a", 20),
		candidate("b", 10),
	}

	s := &Sequential{}
	out := s.ProposeBatch(candidates, nil, 2)

	ass.Len(out, 2)
	ass.Equal("a=10", out[0].Key().String())
	ass.Equal("a=20", out[1].Key().String())
}

func TestSequentialNoBackfill(t *testing.T) {
	ass := require.New(t)

	candidates := []confspace.Candidate{candidate("a", 10)}
	seen := map[string]bool{candidate("a", 10).Key().String(): true}

	s := &Sequential{}
	ass.Empty(s.ProposeBatch(candidates, seen, 5))
}

func TestFactoryFallsBackToSequential(t *testing.T) {
	ass := require.New(t)

	ass.IsType(&Sequential{}, New(""))
	ass.IsType(&Sequential{}, New(SequentialScheduler))
	ass.IsType(&Sequential{}, New("no-such-scheduler"))
}
