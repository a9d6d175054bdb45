// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

// This package persists every executed configuration, keeps an in-memory
// feature cache and drives the pluggable policy algorithm in online or
// micro-batch mode.
package memory

import (
	"time"

	"github.com/unimib-datAI/faasweep/sweeper/confspace"
	"github.com/unimib-datAI/faasweep/sweeper/infogath/promq"
	"github.com/unimib-datAI/faasweep/sweeper/loadgen"
	"github.com/unimib-datAI/faasweep/sweeper/results"
)

// Event is one executed iteration. Immutable once created; the unit ingested
// into memory.
type Event struct {
	RunID      string
	ConfigID   string
	Key        confspace.Key
	Iteration  int
	Repetition int
	StartedAt  time.Time
	EndedAt    time.Time

	Row        results.Row
	Metrics    promq.AllMetrics
	Summary    map[string]loadgen.FunctionLoadMetrics
	RawSummary []byte
	OutputPath string
}

// Algorithm is the pluggable policy seam driven by the engine. A policy may
// re-rank candidate batches and learns from execution events either one at a
// time (online) or in accumulated micro-batches.
type Algorithm interface {
	// ChooseBatch may reorder or shrink the proposed candidates. It never
	// grows the batch.
	ChooseBatch(candidates []confspace.Candidate, desired int) []confspace.Candidate

	// UpdateOnline feeds the policy a single event.
	UpdateOnline(event Event) error

	// UpdateBatch feeds the policy an accumulated micro-batch.
	UpdateBatch(events []Event) error

	// Name returns the registered policy name, for the policy-update log.
	Name() string
}
