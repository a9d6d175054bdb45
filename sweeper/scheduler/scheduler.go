// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright 2024-2026 The faasweep Authors. All rights reserved.
// This file is licensed under the AGPL v3.0 or later license. See LICENSE and
// AUTHORS file for more information.

// This package proposes the next batch of configurations to execute. It is
// implemented using a modular approach: a new scheduler can be added by
// defining a factory type and a scheduler type, mirroring the strategy
// factories of the load balancer this project descends from.
package scheduler

import (
	"github.com/unimib-datAI/faasweep/sweeper/confspace"
	"github.com/unimib-datAI/faasweep/sweeper/logging"
)

// ConfigScheduler proposes the next batch of not-yet-seen candidates. Every
// new scheduler must implement this interface.
type ConfigScheduler interface {
	// ProposeBatch walks candidates and returns up to desired of them whose
	// key is not in seen. If fewer unseen candidates exist, fewer are
	// returned: there is no backfill.
	ProposeBatch(candidates []confspace.Candidate, seen map[string]bool, desired int) []confspace.Candidate
}

// Scheduler names recognized by the factory.
const (
	SequentialScheduler = "sequential"
)

// schedulerFactory is the interface which represents a generic scheduler
// factory. Every factory for new schedulers must implement this interface.
type schedulerFactory interface {
	createScheduler() ConfigScheduler
}

//////////////////// SEQUENTIAL SCHEDULER ////////////////////

// Sequential returns unseen candidates in their generation order, which makes
// the default behavior "run everything not yet seen, in generation order".
type Sequential struct{}

func (s *Sequential) ProposeBatch(candidates []confspace.Candidate, seen map[string]bool, desired int) []confspace.Candidate {
	var out []confspace.Candidate
	for _, cand := range candidates {
		if len(out) >= desired {
			break
		}
		if seen[cand.Key().String()] {
			continue
		}
		out = append(out, cand)
	}
	return out
}

type sequentialSchedulerFactory struct{}

func (f *sequentialSchedulerFactory) createScheduler() ConfigScheduler {
	return &Sequential{}
}

//////////////////// FACTORY ////////////////////

// New returns the scheduler registered under the given name. An unknown name
// logs a warning and falls back to the sequential scheduler.
func New(name string) ConfigScheduler {
	var factory schedulerFactory

	switch name {
	default:
		logging.Logger().Warnf("No scheduler named %q found, using the sequential scheduler by default", name)
		fallthrough
	case SequentialScheduler, "":
		factory = &sequentialSchedulerFactory{}
	}

	return factory.createScheduler()
}
